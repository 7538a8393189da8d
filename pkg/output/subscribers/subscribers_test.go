// Copyright 2025 Scanmux Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package subscribers

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanmux/scanmux/pkg/output"
)

func findingEvent(severity, title, remediation, source string) output.OutputEvent {
	return output.OutputEvent{
		Type: output.EventFinding,
		Data: map[string]any{
			"severity":    severity,
			"title":       title,
			"remediation": remediation,
			"source":      source,
		},
		Timestamp: time.Now(),
	}
}

func TestHumanFormatter_ShouldHandle(t *testing.T) {
	f := NewHumanFormatter(&bytes.Buffer{}, &bytes.Buffer{}, false)

	assert.Equal(t, "human-formatter", f.Name())
	assert.True(t, f.ShouldHandle(output.OutputEvent{Type: output.EventInfo}))
	assert.True(t, f.ShouldHandle(output.OutputEvent{Type: output.EventFinding}))
	assert.False(t, f.ShouldHandle(output.OutputEvent{Type: output.EventDiag}))
}

func TestHumanFormatter_PlainMessages(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := NewHumanFormatter(&stdout, &stderr, false)

	f.Handle(output.OutputEvent{Type: output.EventInfo, Message: "Scanning example.com"})
	f.Handle(output.OutputEvent{Type: output.EventWarning, Message: "provider skipped"})
	f.Handle(output.OutputEvent{Type: output.EventError, Message: "scan failed"})

	assert.Equal(t, "Scanning example.com\nWarning: provider skipped\n", stdout.String())
	assert.Equal(t, "Error: scan failed\n", stderr.String())
}

func TestHumanFormatter_PlainFinding(t *testing.T) {
	var stdout bytes.Buffer
	f := NewHumanFormatter(&stdout, &bytes.Buffer{}, false)

	f.Handle(findingEvent("high", "Exposed admin panel", "Restrict access.", "aianalyst"))

	assert.Equal(t,
		"[HIGH]     Exposed admin panel (aianalyst)\n           Restrict access.\n",
		stdout.String())
}

func TestHumanFormatter_PlainFindingWithoutRemediation(t *testing.T) {
	var stdout bytes.Buffer
	f := NewHumanFormatter(&stdout, &bytes.Buffer{}, false)

	f.Handle(findingEvent("low", "Verbose server banner", "", "heuristics"))

	assert.Equal(t, "[LOW]      Verbose server banner (heuristics)\n", stdout.String())
}

func TestHumanFormatter_FindingWithWrongDataShapeIsDropped(t *testing.T) {
	var stdout bytes.Buffer
	f := NewHumanFormatter(&stdout, &bytes.Buffer{}, false)

	f.Handle(output.OutputEvent{Type: output.EventFinding, Data: "not a map"})

	assert.Empty(t, stdout.String())
}

func TestHumanFormatter_PlainTable(t *testing.T) {
	var stdout bytes.Buffer
	f := NewHumanFormatter(&stdout, &bytes.Buffer{}, false)

	f.Handle(output.OutputEvent{
		Type: output.EventTable,
		Data: map[string]any{
			"headers": []string{"Provider", "Enabled"},
			"rows": [][]string{
				{"headergrade", "yes"},
				{"exposure", "no"},
			},
		},
	})

	lines := strings.Split(strings.TrimRight(stdout.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Provider")
	assert.Contains(t, lines[0], "Enabled")
	assert.Contains(t, lines[1], "headergrade")
	assert.Contains(t, lines[2], "exposure")
}

func TestHumanFormatter_Progress(t *testing.T) {
	var stdout bytes.Buffer
	f := NewHumanFormatter(&stdout, &bytes.Buffer{}, false)

	f.Handle(output.OutputEvent{
		Type:    output.EventProgress,
		Message: "probing",
		Data:    map[string]any{"current": 1, "total": 4},
	})
	assert.Equal(t, "\r[ 25%] probing", stdout.String())

	stdout.Reset()
	f.Handle(output.OutputEvent{
		Type:    output.EventProgress,
		Message: "done",
		Data:    map[string]any{"current": 4, "total": 4},
	})
	assert.Equal(t, "\r[100%] done\n", stdout.String(), "completion adds the newline")

	stdout.Reset()
	f.Handle(output.OutputEvent{
		Type: output.EventProgress,
		Data: map[string]any{"current": 1, "total": 0},
	})
	assert.Empty(t, stdout.String(), "progress without a total renders nothing")
}

func TestHumanFormatter_ColoredOutputKeepsContent(t *testing.T) {
	var stdout, stderr bytes.Buffer
	f := NewHumanFormatter(&stdout, &stderr, true)

	f.Handle(output.OutputEvent{Type: output.EventInfo, Message: "## Findings for example.com"})
	f.Handle(findingEvent("critical", "Credential leak", "Rotate the key.", "exposure"))
	f.Handle(output.OutputEvent{Type: output.EventError, Message: "boom"})

	assert.Contains(t, stdout.String(), "## Findings for example.com")
	assert.Contains(t, stdout.String(), "[CRITICAL]")
	assert.Contains(t, stdout.String(), "Credential leak")
	assert.Contains(t, stdout.String(), "Rotate the key.")
	assert.Contains(t, stderr.String(), "Error: boom")
}

func TestJSONFormatter_EmitsOneLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(&buf)

	assert.Equal(t, "json-formatter", f.Name())
	assert.False(t, f.ShouldHandle(output.OutputEvent{Type: output.EventDiag}))
	assert.True(t, f.ShouldHandle(output.OutputEvent{Type: output.EventInfo}))

	ts := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	f.Handle(output.OutputEvent{Type: output.EventInfo, Message: "starting", Timestamp: ts})
	f.Handle(findingEvent("high", "Exposed admin panel", "Restrict access.", "aianalyst"))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "info", first["type"])
	assert.Equal(t, "starting", first["message"])
	assert.Equal(t, "2026-03-01T12:30:00Z", first["timestamp"])
	assert.NotContains(t, first, "data", "empty fields stay out of the wire shape")
	assert.NotContains(t, first, "metadata")

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "finding", second["type"])
	data, ok := second["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Exposed admin panel", data["title"])
	assert.Equal(t, "high", data["severity"])
}

func TestJSONFormatter_CarriesMetadata(t *testing.T) {
	var buf bytes.Buffer
	f := NewJSONFormatter(&buf)

	f.Handle(output.OutputEvent{
		Type:      output.EventInfo,
		Message:   "scan settled",
		Metadata:  map[string]any{"findings": 3},
		Timestamp: time.Now(),
	})

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	metadata, ok := decoded["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(3), metadata["findings"])
}

func TestDiagnosticSubscriber_ShouldHandle(t *testing.T) {
	s := NewDiagnosticSubscriber(output.LevelDebug, &bytes.Buffer{})

	assert.Equal(t, "diagnostic-subscriber", s.Name())
	assert.True(t, s.ShouldHandle(output.OutputEvent{Type: output.EventDiag, Level: output.LevelVerbose}))
	assert.True(t, s.ShouldHandle(output.OutputEvent{Type: output.EventDiag, Level: output.LevelDebug}))
	assert.False(t, s.ShouldHandle(output.OutputEvent{Type: output.EventDiag, Level: output.LevelTrace}),
		"events above the verbosity budget stay hidden")
	assert.False(t, s.ShouldHandle(output.OutputEvent{Type: output.EventInfo}))
}

func TestDiagnosticSubscriber_RendersSortedMetadata(t *testing.T) {
	var buf bytes.Buffer
	s := NewDiagnosticSubscriber(output.LevelTrace, &buf)

	s.Handle(output.OutputEvent{
		Type:      output.EventDiag,
		Level:     output.LevelDebug,
		Message:   "provider settled",
		Metadata:  map[string]any{"provider": "tlsgrade", "elapsed": "1.2s"},
		Timestamp: time.Date(2026, 3, 1, 9, 15, 30, 0, time.UTC),
	})

	assert.Equal(t, "[DEBUG] 09:15:30 provider settled elapsed:1.2s provider:tlsgrade\n", buf.String())
}

func TestDiagnosticSubscriber_LevelLabels(t *testing.T) {
	cases := []struct {
		level output.OutputLevel
		want  string
	}{
		{output.LevelVerbose, "[VERBOSE]"},
		{output.LevelDebug, "[DEBUG]"},
		{output.LevelTrace, "[TRACE]"},
		{output.LevelNormal, "[INFO]"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		s := NewDiagnosticSubscriber(output.LevelTrace, &buf)
		s.Handle(output.OutputEvent{Type: output.EventDiag, Level: tc.level, Message: "x"})
		assert.True(t, strings.HasPrefix(buf.String(), tc.want), "level %d", tc.level)
	}
}
