package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/event"
	"github.com/scanmux/scanmux/pkg/output"
	"github.com/scanmux/scanmux/pkg/output/subscribers"
	"github.com/scanmux/scanmux/pkg/scanexec"
)

func cannedScanResult() *scanexec.Result {
	started := time.Date(2025, 6, 12, 10, 0, 0, 0, time.UTC)
	return &scanexec.Result{
		ScanID:      "5745a1d9-2b5f-4a12-9c2f-28bb1f4f9d10",
		Target:      engine.Target{Raw: "https://example.com", Scheme: "https", Host: "example.com"},
		Profile:     engine.ProfileFull,
		Status:      scanexec.StatusCompleted,
		StartedAt:   started,
		CompletedAt: started.Add(3200 * time.Millisecond),
		Findings: []engine.Finding{
			{Severity: engine.SeverityLow, Title: "Server header discloses software version", Remediation: "Strip the Server header.", Source: "heuristics"},
			{Severity: engine.SeverityCritical, Title: "TLS certificate expired", Remediation: "Renew the certificate.", Source: "tlsgrade"},
			{Severity: engine.SeverityMedium, Title: "Missing Content-Security-Policy header", Remediation: "Add a restrictive CSP.", Source: "headergrade"},
		},
		Providers: []engine.ProviderOutcome{
			{Provider: "headergrade", Status: engine.OutcomeOK, Findings: 1, Elapsed: 400 * time.Millisecond},
			{Provider: "tlsgrade", Status: engine.OutcomeOK, Findings: 1, Elapsed: 2800 * time.Millisecond},
			{Provider: "exposure", Status: engine.OutcomeSkipped, Reason: engine.FailureNotConfigured},
		},
	}
}

// plainPipeline builds an output pipeline rendering plain text into buffers.
func plainPipeline() (output.Output, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	stream := output.NewOutputEventStream()
	stream.Subscribe(subscribers.NewHumanFormatter(&stdout, &stderr, false))
	return output.NewDefaultOutput(stream), &stdout, &stderr
}

func TestRenderScanResult_JSON(t *testing.T) {
	cmd := &cobra.Command{}
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	out, _, _ := plainPipeline()

	require.NoError(t, renderScanResult(cmd, out, "json", cannedScanResult()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	assert.Equal(t, "5745a1d9-2b5f-4a12-9c2f-28bb1f4f9d10", doc["scan_id"])
	assert.Equal(t, "completed", doc["status"])
	assert.Len(t, doc["findings"], 3)
	assert.Len(t, doc["providers"], 3)
}

func TestRenderScanResult_YAML(t *testing.T) {
	cmd := &cobra.Command{}
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	out, _, _ := plainPipeline()

	require.NoError(t, renderScanResult(cmd, out, "yaml", cannedScanResult()))

	var doc struct {
		ScanID   string `yaml:"scan_id"`
		Status   string `yaml:"status"`
		Findings []struct {
			Severity string `yaml:"severity"`
			Title    string `yaml:"title"`
		} `yaml:"findings"`
	}
	require.NoError(t, yaml.Unmarshal(stdout.Bytes(), &doc))
	assert.Equal(t, "5745a1d9-2b5f-4a12-9c2f-28bb1f4f9d10", doc.ScanID)
	assert.Equal(t, "completed", doc.Status)
	require.Len(t, doc.Findings, 3)
	assert.Equal(t, "low", doc.Findings[0].Severity)
}

func TestRenderScanResult_TextGoesThroughPipeline(t *testing.T) {
	cmd := &cobra.Command{}
	out, stdout, _ := plainPipeline()

	require.NoError(t, renderScanResult(cmd, out, "text", cannedScanResult()))

	text := stdout.String()
	assert.Contains(t, text, "## Findings for https://example.com")
	assert.Contains(t, text, "[CRITICAL]")
	assert.Contains(t, text, "TLS certificate expired")
	assert.Contains(t, text, "Renew the certificate.")
	assert.Contains(t, text, "Providers OK")
}

func TestPrintFindings_OrdersMostSevereFirst(t *testing.T) {
	out, stdout, _ := plainPipeline()

	printFindings(out, cannedScanResult())

	text := stdout.String()
	critical := bytes.Index(stdout.Bytes(), []byte("[CRITICAL]"))
	medium := bytes.Index(stdout.Bytes(), []byte("[MEDIUM]"))
	low := bytes.Index(stdout.Bytes(), []byte("[LOW]"))
	require.GreaterOrEqual(t, critical, 0, "critical finding missing from %q", text)
	require.GreaterOrEqual(t, medium, 0)
	require.GreaterOrEqual(t, low, 0)
	assert.Less(t, critical, medium)
	assert.Less(t, medium, low)
}

func TestPrintScanSummary_CountsAndProviders(t *testing.T) {
	out, stdout, _ := plainPipeline()

	printScanSummary(out, cannedScanResult())

	text := stdout.String()
	assert.Contains(t, text, "https://example.com")
	assert.Contains(t, text, "full")
	assert.Contains(t, text, "3.2s")
	assert.Contains(t, text, "Critical/High/Medium/Low")
	assert.Contains(t, text, "1/0/1/1")
	assert.Contains(t, text, "2/3")
}

func TestSubscribeProgress_RendersLifecycleEvents(t *testing.T) {
	out, stdout, _ := plainPipeline()
	bus := event.NewManager()
	subscribeProgress(bus, out)

	ctx := context.Background()

	// Drain between publishes: the buffer sink is not safe for the bus's
	// concurrent handler goroutines.
	bus.Publish(ctx, scanexec.EventScanStarted, scanexec.ScanStartedData{
		ScanID: "id-1", Target: "example.com", Profile: "full",
	})
	bus.Drain()
	bus.Publish(ctx, scanexec.EventProviderFinished, scanexec.ProviderFinishedData{
		ScanID: "id-1", Provider: "headergrade", Status: engine.OutcomeOK, Findings: 2,
	})
	bus.Drain()
	bus.Publish(ctx, scanexec.EventProviderFinished, scanexec.ProviderFinishedData{
		ScanID: "id-1", Provider: "exposure", Status: engine.OutcomeSkipped,
	})
	bus.Drain()
	bus.Publish(ctx, scanexec.EventScanCompleted, scanexec.ScanCompletedData{
		ScanID: "id-1", Status: scanexec.StatusCompleted, Findings: 4, Duration: 2 * time.Second,
	})
	bus.Drain()

	text := stdout.String()
	assert.Contains(t, text, "scan started: example.com (full profile)")
	assert.Contains(t, text, "headergrade: ok (2 findings)")
	assert.Contains(t, text, "exposure: skipped")
	assert.NotContains(t, text, "skipped (0 findings)")
	assert.Contains(t, text, "scan completed: 4 findings in 2s")
}

func TestSubscribeProgress_IgnoresForeignPayloads(t *testing.T) {
	out, stdout, _ := plainPipeline()
	bus := event.NewManager()
	subscribeProgress(bus, out)

	bus.Publish(context.Background(), scanexec.EventScanStarted, "not a struct")
	bus.Drain()

	assert.Empty(t, stdout.String())
}

func TestGetStatusIcon(t *testing.T) {
	assert.Equal(t, "⏳", getStatusIcon("started"))
	assert.Equal(t, "✓", getStatusIcon("ok"))
	assert.Equal(t, "✓", getStatusIcon("completed"))
	assert.Equal(t, "✗", getStatusIcon("failed"))
	assert.Equal(t, "⊘", getStatusIcon("skipped"))
	assert.Equal(t, "•", getStatusIcon("anything else"))
}

func TestScanCommand_RejectsUnknownOutputFormat(t *testing.T) {
	_, _, err := executeCommand(t, "scan", "example.com", "-o", "xml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown output format "xml"`)
}

func TestScanCommand_RejectsEmptyTarget(t *testing.T) {
	_, _, err := executeCommand(t, "scan", "", "-o", "text")

	require.Error(t, err)
	require.ErrorIs(t, err, engine.ErrInvalidInput)
}

func TestScanCommand_RejectsUnknownProfile(t *testing.T) {
	_, _, err := executeCommand(t, "scan", "example.com", "-o", "text", "--profile", "paranoid")

	require.Error(t, err)
	require.ErrorIs(t, err, engine.ErrInvalidInput)
	assert.Contains(t, err.Error(), `unknown profile "paranoid"`)
}

func TestScanCommand_RejectsMalformedTimeout(t *testing.T) {
	_, _, err := executeCommand(t, "scan", "example.com", "-o", "text", "--profile", "quick", "--timeout", "soon")

	require.Error(t, err)
	require.ErrorIs(t, err, engine.ErrInvalidInput)
	assert.Contains(t, err.Error(), `invalid timeout "soon"`)
}

func TestScanCommand_RequiresExactlyOneTarget(t *testing.T) {
	_, _, err := executeCommand(t, "scan")
	require.Error(t, err)

	_, _, err = executeCommand(t, "scan", "a.example.com", "b.example.com")
	require.Error(t, err)
}
