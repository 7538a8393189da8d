package scanexec

import (
	"time"

	"github.com/scanmux/scanmux/pkg/engine"
)

// Params defines the input required to initiate a scan run. Target is the
// only mandatory field; Profile defaults to quick and Timeout falls back to
// the configured scan timeout when empty.
type Params struct {
	Target  string
	Profile string
	Timeout string

	// ScanID pins the run identifier so callers that track the run under
	// their own ID (the server's job registry) can correlate lifecycle
	// events. A fresh UUID is generated when empty.
	ScanID string
}

// Scan lifecycle states, shared with the job registry in the server.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Result is the structured outcome of one scan run.
type Result struct {
	ScanID      string                   `json:"scan_id" yaml:"scan_id"`
	Target      engine.Target            `json:"target" yaml:"target"`
	Profile     engine.Profile           `json:"profile" yaml:"profile"`
	Status      string                   `json:"status" yaml:"status"`
	StartedAt   time.Time                `json:"started_at" yaml:"started_at"`
	CompletedAt time.Time                `json:"completed_at" yaml:"completed_at"`
	Findings    []engine.Finding         `json:"findings" yaml:"findings"`
	Providers   []engine.ProviderOutcome `json:"providers,omitempty" yaml:"providers,omitempty"`
	Snapshot    *engine.Snapshot         `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}
