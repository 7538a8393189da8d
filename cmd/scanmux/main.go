package main

import (
	"os"

	"github.com/scanmux/scanmux/cmd/scanmux/commands"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
