package bind

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/scanexec"
)

// BindScanOptions extracts scan command flags into scan run parameters.
//
// Flags read:
//   - --profile: Scan profile (quick, full)
//   - --timeout: Overall scan deadline as a Go duration string
//
// The target is checked for presence only; full normalization happens in the
// engine so the CLI and the HTTP API reject inputs identically.
func BindScanOptions(cmd *cobra.Command, target string) (scanexec.Params, error) {
	trimmed := strings.TrimSpace(target)
	if trimmed == "" {
		return scanexec.Params{}, fmt.Errorf("%w: target cannot be empty", engine.ErrInvalidInput)
	}

	profile, _ := cmd.Flags().GetString("profile")
	timeout, _ := cmd.Flags().GetString("timeout")

	return scanexec.Params{
		Target:  trimmed,
		Profile: strings.ToLower(strings.TrimSpace(profile)),
		Timeout: strings.TrimSpace(timeout),
	}, nil
}
