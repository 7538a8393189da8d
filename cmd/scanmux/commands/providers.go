package commands

import (
	"github.com/spf13/cobra"

	"github.com/scanmux/scanmux/pkg/server/deps"
)

// NewProvidersCommand constructs the 'providers' command, listing every
// analysis adapter with its enabled and configured state.
func NewProvidersCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "providers",
		Short:   "List analysis providers and their configuration state",
		GroupID: "core",
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := managerFromCommand(cmd)
			if err != nil {
				return err
			}
			cfg := manager.Get()
			out := setupOutputPipeline(cmd, cfg.Output, cfg.Output.Format)

			headers := []string{"Provider", "Enabled", "Configured", "Endpoint"}
			var rows [][]string
			for _, status := range deps.ProviderStatuses(cfg) {
				endpoint := status.Endpoint
				if endpoint == "" {
					endpoint = "-"
				}
				rows = append(rows, []string{
					status.Name,
					yesNo(status.Enabled),
					yesNo(status.Configured),
					endpoint,
				})
			}
			out.Table(headers, rows)
			return nil
		},
	}
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
