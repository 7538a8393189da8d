package api

import (
	"sync/atomic"

	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/server/jobs"
)

// Deps holds dependencies for API handlers.
// This pattern enables dependency injection and easier testing.
type Deps struct {
	// Jobs tracks background scan runs.
	Jobs *jobs.Manager

	// Providers lists the assessment providers this instance exposes,
	// with their configuration state.
	Providers []ProviderStatus

	// Config holds API-level configuration (request limits etc.)
	Config Config

	// Ready flag for readiness check
	Ready *atomic.Bool
}

// Config bounds what the API accepts from clients.
type Config struct {
	// MaxTargetLen caps the target string in scan submissions.
	MaxTargetLen int

	// MaxBodyBytes caps the request body size for JSON endpoints.
	MaxBodyBytes int64
}

// DefaultConfig returns the request limits used when none are supplied.
func DefaultConfig() Config {
	return Config{
		MaxTargetLen: 2048,
		MaxBodyBytes: 64 << 10,
	}
}

// ProviderStatus describes one assessment provider as reported by the API.
// Configured means required credentials are present, not that the remote
// service is reachable.
type ProviderStatus struct {
	Name       string `json:"name"`
	Enabled    bool   `json:"enabled"`
	Configured bool   `json:"configured"`
	Endpoint   string `json:"endpoint,omitempty"`
}

// ScanAccepted acknowledges an accepted scan submission.
type ScanAccepted struct {
	ScanID string `json:"scan_id"`
	Status string `json:"status"`
}

// ScanSummary is the list-item view of a scan job.
type ScanSummary struct {
	ScanID    string `json:"scan_id"`
	Target    string `json:"target"`
	Profile   string `json:"profile"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	Findings  int    `json:"findings"`
}

// ScanDetail is the full view of a scan job. Findings and provider outcomes
// fill in once the run settles; until then Findings is an empty array.
type ScanDetail struct {
	ScanID      string            `json:"scan_id"`
	Target      string            `json:"target"`
	Profile     string            `json:"profile"`
	Status      string            `json:"status"`
	CreatedAt   string            `json:"created_at"`
	StartedAt   string            `json:"started_at,omitempty"`
	CompletedAt string            `json:"completed_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Findings    []engine.Finding  `json:"findings"`
	Providers   []ProviderOutcome `json:"providers,omitempty"`
}

// ProviderOutcome is the API view of one provider's part in a scan.
type ProviderOutcome struct {
	Provider  string `json:"provider"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Findings  int    `json:"findings"`
	ElapsedMs int64  `json:"elapsed_ms"`
}
