package commands

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/scanmux/scanmux/pkg/config"
	"github.com/scanmux/scanmux/pkg/output"
	"github.com/scanmux/scanmux/pkg/output/subscribers"
)

// resolveOutputFormat prefers an explicit --output flag over the configured
// default, falling back to text when neither is set.
func resolveOutputFormat(cmd *cobra.Command, cfg config.OutputConfig) string {
	if cmd.Flags().Changed("output") {
		format, _ := cmd.Flags().GetString("output")
		return strings.ToLower(strings.TrimSpace(format))
	}
	if cfg.Format != "" {
		return cfg.Format
	}
	return "text"
}

// setupOutputPipeline builds the output event stream for one command run: a
// renderer matching the resolved format plus the diagnostic subscriber for
// -v/-vv/-vvv chatter.
//
// Structured formats (json, yaml) render the result document on stdout
// themselves, so their event renderer goes to stderr as JSON Lines to keep
// stdout parseable.
func setupOutputPipeline(cmd *cobra.Command, cfg config.OutputConfig, format string) output.Output {
	stream := output.NewOutputEventStream()

	switch format {
	case "json", "yaml":
		stream.Subscribe(subscribers.NewJSONFormatter(cmd.ErrOrStderr()))
	default:
		stream.Subscribe(subscribers.NewHumanFormatter(cmd.OutOrStdout(), cmd.ErrOrStderr(), cfg.Color))
	}

	verbosityCount, _ := cmd.Flags().GetCount("verbosity")
	if verbosityCount > 0 {
		stream.Subscribe(subscribers.NewDiagnosticSubscriber(output.OutputLevel(verbosityCount), cmd.ErrOrStderr()))
	}

	return output.NewDefaultOutput(stream)
}
