package commands

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/scanmux/scanmux/pkg/config"
	"github.com/scanmux/scanmux/pkg/server/app"
	"github.com/scanmux/scanmux/pkg/server/deps"
)

// NewServeCommand constructs the 'serve' command, running the HTTP API until
// interrupted.
func NewServeCommand() *cobra.Command {
	var (
		host string
		port int
	)

	cmd := &cobra.Command{
		Use:     "serve",
		Short:   "Start the scanmux HTTP API server",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFromCommand(cmd)
			if err != nil {
				return err
			}

			// --host/--port beat every config source for this run.
			overrides := map[string]any{}
			if cmd.Flags().Changed("host") {
				overrides["server.addr"] = host
			}
			if cmd.Flags().Changed("port") {
				overrides["server.port"] = port
			}
			if len(overrides) > 0 {
				if err := applyConfigOverrides(cmd, manager, overrides); err != nil {
					return fmt.Errorf("apply server flag overrides: %w", err)
				}
			}
			cfg := manager.Get()

			if err := configureServerLogging(cmd, cfg.Log); err != nil {
				return err
			}

			logger := log.With().Str("component", "serve").Logger()
			d := deps.New(manager, &logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			application, err := app.New(ctx, cfg.Server, d)
			if err != nil {
				return fmt.Errorf("initialize server: %w", err)
			}
			return application.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Bind address for the HTTP server (overrides config)")
	cmd.Flags().IntVar(&port, "port", 0, "Listen port for the HTTP server (overrides config)")

	return cmd
}

// configureServerLogging applies the log section of the configuration to the
// global zerolog logger. The -v/--verbose flags still win for the level; the
// configured level only applies when neither was given.
func configureServerLogging(cmd *cobra.Command, cfg config.LogConfig) error {
	writer := io.Writer(os.Stderr)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		writer = f
	}
	if cfg.Format == "text" {
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	}
	log.Logger = log.Output(writer)

	verbosityCount, _ := cmd.Flags().GetCount("verbosity")
	verbose, _ := cmd.Flags().GetBool("verbose")
	if verbosityCount == 0 && !verbose {
		level, err := zerolog.ParseLevel(cfg.Level)
		if err != nil {
			return fmt.Errorf("unknown log level %q: %w", cfg.Level, err)
		}
		zerolog.SetGlobalLevel(level)
	}
	return nil
}
