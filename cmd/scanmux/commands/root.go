package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/scanmux/scanmux/pkg/config"
)

const cliExecutable = "scanmux"

// contextKey scopes values the root command stores on the command context.
type contextKey string

// managerKey carries the loaded *config.Manager from PersistentPreRunE to
// subcommands.
const managerKey contextKey = "config-manager"

// NewCommand constructs the top-level scanmux CLI command, wiring global
// flags, configuration loading and log verbosity.
func NewCommand() *cobra.Command {
	var (
		configFile     string
		verbosityCount int
		verbose        bool
	)

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Scanmux runs security scans through multiple analysis providers",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			manager := config.NewManager()
			if err := manager.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}

			// Configure global log level based on verbosity flags
			// If explicit --verbose is set, show debug and above
			// Else use -v count: 0=>Error, 1=>Info, 2+=>Debug
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			} else {
				switch {
				case verbosityCount <= 0:
					zerolog.SetGlobalLevel(zerolog.ErrorLevel)
				case verbosityCount == 1:
					zerolog.SetGlobalLevel(zerolog.InfoLevel)
				default:
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
			}

			ctx := context.WithValue(cmd.Context(), managerKey, manager)
			cmd.SetContext(ctx)
			if root := cmd.Root(); root != nil && root != cmd {
				root.SetContext(ctx)
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path")
	cmd.PersistentFlags().CountVarP(&verbosityCount, "verbosity", "v", "Increase logging verbosity (repeatable)")
	cmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging (shows service layer logs)")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddGroup(&cobra.Group{ID: "scan", Title: "Scan Commands"})
	cmd.AddGroup(&cobra.Group{ID: "core", Title: "Core Commands"})

	cmd.AddCommand(ScanCmd)
	cmd.AddCommand(NewServeCommand())
	cmd.AddCommand(NewProvidersCommand())
	cmd.AddCommand(NewVersionCommand(cliExecutable))

	return cmd
}

// managerFromCommand retrieves the configuration manager stored by the root
// command's PersistentPreRunE.
func managerFromCommand(cmd *cobra.Command) (*config.Manager, error) {
	ctx := cmd.Context()
	if ctx == nil && cmd.Root() != nil {
		ctx = cmd.Root().Context()
	}
	if ctx != nil {
		if manager, ok := ctx.Value(managerKey).(*config.Manager); ok && manager != nil {
			return manager, nil
		}
	}
	return nil, fmt.Errorf("configuration manager missing from command context")
}

// applyConfigOverrides reloads the configuration with per-run values forced
// over every other source. Used for flags whose names do not map onto config
// keys directly.
func applyConfigOverrides(cmd *cobra.Command, manager *config.Manager, values map[string]any) error {
	configFile, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	sources := config.DefaultSources(configFile, cmd.Flags(), debug)
	sources = append(sources, config.OverrideSource(values))
	return manager.LoadWithSources(sources)
}
