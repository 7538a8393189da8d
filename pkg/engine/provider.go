package engine

import (
	"context"
	"fmt"
	"time"
)

// Profile selects the breadth of a scan.
type Profile string

const (
	// ProfileQuick runs only the snapshot probe and the heuristic rules.
	ProfileQuick Profile = "quick"

	// ProfileFull additionally fans out to every configured provider.
	ProfileFull Profile = "full"
)

// ParseProfile validates a raw profile string from a caller. Unknown values
// are an input error, rejected before any work starts.
func ParseProfile(raw string) (Profile, error) {
	switch Profile(raw) {
	case ProfileQuick:
		return ProfileQuick, nil
	case ProfileFull:
		return ProfileFull, nil
	case "":
		return ProfileQuick, nil
	default:
		return "", fmt.Errorf("%w: unknown profile %q", ErrInvalidInput, raw)
	}
}

// FailureReason classifies why a provider contributed nothing to a scan.
type FailureReason string

const (
	// FailureNotConfigured marks providers missing an optional credential.
	// These are filtered out silently, never surfaced as findings.
	FailureNotConfigured FailureReason = "not_configured"

	// FailureTimeout marks a provider that exceeded its own deadline.
	FailureTimeout FailureReason = "timeout"

	// FailureRemoteError marks provider-side errors (HTTP error status,
	// auth rejection, unsupported target class).
	FailureRemoteError FailureReason = "remote_error"

	// FailureMalformedResponse marks undecodable provider payloads.
	FailureMalformedResponse FailureReason = "malformed_response"

	// FailurePollExhausted marks an async provider that stayed pending past
	// the polling attempt budget.
	FailurePollExhausted FailureReason = "poll_exhausted"

	// FailureInternal marks recovered panics and other adapter-side bugs.
	FailureInternal FailureReason = "internal_error"
)

// ProviderFailure explains a provider's failed contribution.
type ProviderFailure struct {
	Reason FailureReason `json:"reason"`
	Cause  string        `json:"cause,omitempty"`
}

// Error makes ProviderFailure usable in error positions inside adapters.
func (f *ProviderFailure) Error() string {
	if f == nil {
		return ""
	}
	if f.Cause == "" {
		return string(f.Reason)
	}
	return fmt.Sprintf("%s: %s", f.Reason, f.Cause)
}

// Payload is the provider-native result of a successful assessment. Each
// adapter decodes its provider's wire format into its own typed payload at
// the adapter boundary; the orchestrator treats payloads as opaque and only
// the finding normalizer interprets them, by type switch.
type Payload interface {
	// Provider returns the name of the adapter family that produced the
	// payload, making the union self-describing in logs.
	Provider() string
}

// ProviderResult is the settled outcome of one provider assessment: either a
// typed payload or a classified failure, never both.
type ProviderResult struct {
	Provider string
	Payload  Payload
	Failure  *ProviderFailure
	Elapsed  time.Duration
}

// Success builds the success variant.
func Success(provider string, payload Payload) ProviderResult {
	return ProviderResult{Provider: provider, Payload: payload}
}

// Failed builds the failure variant.
func Failed(provider string, reason FailureReason, cause string) ProviderResult {
	return ProviderResult{
		Provider: provider,
		Failure:  &ProviderFailure{Reason: reason, Cause: cause},
	}
}

// OK reports whether the provider produced a payload.
func (r ProviderResult) OK() bool {
	return r.Failure == nil && r.Payload != nil
}

// NotConfigured reports the silent-skip failure class.
func (r ProviderResult) NotConfigured() bool {
	return r.Failure != nil && r.Failure.Reason == FailureNotConfigured
}

// Provider is one external information source plus the code translating its
// protocol. Assess never returns a Go error and never panics through the
// boundary: every provider-side failure mode becomes a Failure result.
type Provider interface {
	// Name identifies the provider in results, logs, and outcome summaries.
	Name() string

	// Assess runs the provider against the target. Implementations honor
	// ctx cancellation and their own configured timeouts.
	Assess(ctx context.Context, target Target) ProviderResult
}

// FindingMapper normalizes provider-native payloads into unified findings.
// Implemented outside the engine so the payload union stays open to new
// providers without touching the orchestrator.
type FindingMapper interface {
	Findings(result ProviderResult) []Finding
}

// ContextKey is the engine's context value key type.
type ContextKey string

// SnapshotSourceKey carries a SnapshotSource to providers that analyze the
// probe snapshot. The orchestrator installs it before fan-out.
const SnapshotSourceKey ContextKey = "snapshot_source"

// SnapshotSource yields the probe snapshot once the prober has settled,
// blocking until then or until ctx is done (in which case it returns nil).
// Providers launched concurrently with the prober use this to consume its
// output without serializing the fan-out.
type SnapshotSource func(ctx context.Context) *Snapshot

// SnapshotSourceFromContext extracts the snapshot source installed by the
// orchestrator, when present.
func SnapshotSourceFromContext(ctx context.Context) (SnapshotSource, bool) {
	src, ok := ctx.Value(SnapshotSourceKey).(SnapshotSource)
	return src, ok && src != nil
}

// Isolate invokes a provider with a uniform failure boundary: panics become
// internal_error failures, the provider name and elapsed time are always
// stamped on the result. The orchestrator applies it to every assessment so
// no provider-specific error handling leaks upward.
func Isolate(ctx context.Context, p Provider, target Target) (result ProviderResult) {
	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			result = Failed(p.Name(), FailureInternal, fmt.Sprintf("panic: %v", rec))
		}
		if result.Provider == "" {
			result = ProviderResult{Provider: p.Name(), Payload: result.Payload, Failure: result.Failure}
		}
		result.Elapsed = time.Since(start)
	}()
	return p.Assess(ctx, target)
}
