package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/scanmux/scanmux/cmd/scanmux/internal/bind"
	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/event"
	"github.com/scanmux/scanmux/pkg/output"
	"github.com/scanmux/scanmux/pkg/scanexec"
)

// ScanCmd defines the 'scan' command, running one scan end to end.
var ScanCmd = &cobra.Command{
	Use:   "scan <target>",
	Short: "Run a security scan against a single target",
	Long: `Runs a scan against the given host or URL: probes the target, fans out to
the configured analysis providers and prints the combined findings. Exit code
is zero whenever the scan itself completes, regardless of what it found.`,
	GroupID: "scan",
	Args:    cobra.ExactArgs(1),
	RunE:    runScanCommand,
}

func runScanCommand(cmd *cobra.Command, args []string) error {
	manager, err := managerFromCommand(cmd)
	if err != nil {
		return err
	}
	cfg := manager.Get()

	format := resolveOutputFormat(cmd, cfg.Output)
	switch format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q (expected text, json or yaml)", format)
	}
	out := setupOutputPipeline(cmd, cfg.Output, format)

	logger := log.With().Str("command", "scan").Logger()
	logger.Info().Str("target", args[0]).Msg("Initializing scan command")

	out.Diag(output.LevelVerbose, "Initializing scan command", map[string]any{
		"target": args[0],
		"format": format,
	})

	params, err := bind.BindScanOptions(cmd, args[0])
	if err != nil {
		logger.Error().Err(err).Msg("Failed to bind scan options")
		out.Error(err)
		return err
	}
	if params.Profile == "" {
		params.Profile = cfg.Scan.Profile
	}

	// --ping does not map onto a config key by name, so a changed flag is
	// pushed through the override source before the engine is assembled.
	if cmd.Flags().Changed("ping") {
		ping, _ := cmd.Flags().GetBool("ping")
		if err := applyConfigOverrides(cmd, manager, map[string]any{"probe.ping.enabled": ping}); err != nil {
			return fmt.Errorf("apply --ping override: %w", err)
		}
	}

	svc := scanexec.NewService(manager)

	var bus *event.Manager
	interactive, _ := cmd.Flags().GetBool("progress")
	if interactive {
		bus = event.NewManager()
		subscribeProgress(bus, out)
		svc = svc.WithEventBus(bus)
	}

	if format == "text" {
		verbosityCount, _ := cmd.Flags().GetCount("verbosity")
		if verbosityCount == 0 && !interactive {
			out.Info(fmt.Sprintf("Scanning %s...", params.Target))
		}
	}

	res, runErr := svc.Run(cmd.Context(), params)
	if bus != nil {
		bus.Drain()
	}
	if runErr != nil {
		logger.Error().Err(runErr).Msg("Scan execution failed")
		out.Error(runErr)
		return runErr
	}

	return renderScanResult(cmd, out, format, res)
}

// renderScanResult writes the completed scan in the requested format. The
// structured formats dump the whole result document; text mode goes through
// the output pipeline for styled findings and the summary table.
func renderScanResult(cmd *cobra.Command, out output.Output, format string, res *scanexec.Result) error {
	switch format {
	case "json":
		data, err := json.MarshalIndent(res, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal scan result to JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
	case "yaml":
		data, err := yaml.Marshal(res)
		if err != nil {
			return fmt.Errorf("marshal scan result to YAML: %w", err)
		}
		fmt.Fprint(cmd.OutOrStdout(), string(data))
	default:
		printFindings(out, res)
		printScanSummary(out, res)
	}
	return nil
}

// printFindings lists every finding, most severe first. Ties keep provider
// completion order.
func printFindings(out output.Output, res *scanexec.Result) {
	out.Info(fmt.Sprintf("## Findings for %s", res.Target.Raw))

	findings := make([]engine.Finding, len(res.Findings))
	copy(findings, res.Findings)
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].Severity.Rank() > findings[j].Severity.Rank()
	})

	for _, finding := range findings {
		out.Finding(string(finding.Severity), finding.Title, finding.Remediation, finding.Source)
	}
}

// printScanSummary displays the closing summary table of one scan.
func printScanSummary(out output.Output, res *scanexec.Result) {
	counts := engine.CountBySeverity(res.Findings)

	providersOK := 0
	for _, outcome := range res.Providers {
		if outcome.Status == engine.OutcomeOK {
			providersOK++
		}
	}

	duration := res.CompletedAt.Sub(res.StartedAt)

	headers := []string{"Metric", "Value"}
	rows := [][]string{
		{"Target", res.Target.Raw},
		{"Profile", string(res.Profile)},
		{"Duration", fmt.Sprintf("%.1fs", duration.Seconds())},
		{"Findings", fmt.Sprintf("%d", len(res.Findings))},
		{"Critical/High/Medium/Low", fmt.Sprintf("%d/%d/%d/%d",
			counts[engine.SeverityCritical], counts[engine.SeverityHigh],
			counts[engine.SeverityMedium], counts[engine.SeverityLow])},
	}
	if len(res.Providers) > 0 {
		rows = append(rows, []string{"Providers OK", fmt.Sprintf("%d/%d", providersOK, len(res.Providers))})
	}

	out.Info("")
	out.Table(headers, rows)
}

// subscribeProgress mirrors scan lifecycle events onto the output stream as
// live status lines for --progress runs.
func subscribeProgress(bus *event.Manager, out output.Output) {
	bus.Subscribe(scanexec.EventScanStarted, func(ctx context.Context, data any) {
		started, ok := data.(scanexec.ScanStartedData)
		if !ok {
			return
		}
		out.Info(fmt.Sprintf("%s scan started: %s (%s profile)",
			getStatusIcon("started"), started.Target, started.Profile))
	})

	bus.Subscribe(scanexec.EventProviderFinished, func(ctx context.Context, data any) {
		finished, ok := data.(scanexec.ProviderFinishedData)
		if !ok {
			return
		}
		message := fmt.Sprintf("%s %s: %s", getStatusIcon(finished.Status), finished.Provider, finished.Status)
		if finished.Findings > 0 {
			message += fmt.Sprintf(" (%d findings)", finished.Findings)
		}
		out.Info(message)
	})

	bus.Subscribe(scanexec.EventScanCompleted, func(ctx context.Context, data any) {
		completed, ok := data.(scanexec.ScanCompletedData)
		if !ok {
			return
		}
		out.Info(fmt.Sprintf("%s scan %s: %d findings in %s",
			getStatusIcon(completed.Status), completed.Status, completed.Findings,
			completed.Duration.Round(time.Millisecond)))
	})
}

// getStatusIcon returns an icon based on status
func getStatusIcon(status string) string {
	switch status {
	case "running", "started":
		return "⏳"
	case "completed", "ok":
		return "✓"
	case "failed", "error":
		return "✗"
	case "skipped":
		return "⊘"
	default:
		return "•"
	}
}

func init() {
	ScanCmd.Flags().String("profile", "", "Scan profile: quick (probe + heuristics) or full (all providers)")
	ScanCmd.Flags().StringP("output", "o", "text", "Output format: text, json, yaml")
	ScanCmd.Flags().String("timeout", "", "Overall scan deadline (e.g. '90s', default from config file)")
	ScanCmd.Flags().Bool("progress", false, "Print live progress updates during the scan")
	ScanCmd.Flags().Bool("ping", true, "Run the ICMP liveness check when the probe fails")
}
