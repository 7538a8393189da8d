// pkg/engine/orchestrator.go
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prober produces the direct probe snapshot of a target. Implemented by
// pkg/probe; kept as an interface here so tests can swap it.
type Prober interface {
	Snapshot(ctx context.Context, target Target) *Snapshot
}

// OrchestratorConfig wires the orchestrator's collaborators. Providers is the
// full configured adapter set; the profile decides per scan which of them
// actually run. Mapper may be nil only when Providers is empty.
type OrchestratorConfig struct {
	Prober     Prober
	Providers  []Provider
	Mapper     FindingMapper
	Heuristics HeuristicsFunc
	Logger     *zerolog.Logger
}

// Orchestrator coordinates a scan: target normalization, concurrent fan-out
// to the prober and the profile-selected providers with isolated failure
// boundaries, finding normalization, and the deterministic fallback chain.
//
// An Orchestrator is immutable after construction and safe for concurrent
// scans; all per-scan state lives on the Scan call's stack.
type Orchestrator struct {
	prober     Prober
	providers  []Provider
	mapper     FindingMapper
	heuristics HeuristicsFunc
	logger     zerolog.Logger
}

// NewOrchestrator validates the configuration and builds an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Prober == nil {
		return nil, errors.New("orchestrator requires a prober")
	}
	if len(cfg.Providers) > 0 && cfg.Mapper == nil {
		return nil, errors.New("orchestrator requires a finding mapper when providers are configured")
	}
	heuristics := cfg.Heuristics
	if heuristics == nil {
		heuristics = EvaluateHeuristics
	}
	logger := log.With().Str("component", "Orchestrator").Logger()
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}
	return &Orchestrator{
		prober:     cfg.Prober,
		providers:  cfg.Providers,
		mapper:     cfg.Mapper,
		heuristics: heuristics,
		logger:     logger,
	}, nil
}

// ProviderOutcome records how one fan-out participant settled, for reporting.
type ProviderOutcome struct {
	Provider string        `json:"provider" yaml:"provider"`
	Status   string        `json:"status" yaml:"status"` // "ok" | "failed" | "skipped"
	Reason   FailureReason `json:"reason,omitempty" yaml:"reason,omitempty"`
	Detail   string        `json:"detail,omitempty" yaml:"detail,omitempty"`
	Findings int           `json:"findings" yaml:"findings"`
	Elapsed  time.Duration `json:"elapsed" yaml:"elapsed"`
}

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeSkipped = "skipped"
)

// ScanResult is the settled outcome of one scan. Findings is never empty.
type ScanResult struct {
	Target    Target            `json:"target" yaml:"target"`
	Profile   Profile           `json:"profile" yaml:"profile"`
	StartedAt time.Time         `json:"started_at" yaml:"started_at"`
	Duration  time.Duration     `json:"duration" yaml:"duration"`
	Findings  []Finding         `json:"findings" yaml:"findings"`
	Providers []ProviderOutcome `json:"providers,omitempty" yaml:"providers,omitempty"`
	Snapshot  *Snapshot         `json:"snapshot,omitempty" yaml:"snapshot,omitempty"`
}

// OrchestratorSource tags findings synthesized by the orchestrator itself
// (currently only the unreachable finding).
const OrchestratorSource = "orchestrator"

// Scan runs one scan end to end. The only error it ever returns is
// ErrInvalidInput (empty target); every other failure mode inside the fan-out
// is absorbed into skipped contributions or synthetic findings, and the
// returned finding sequence is guaranteed non-empty.
//
// Concurrency model: the prober and every selected provider run in their own
// goroutines; the call joins on all of them settling (success or failure),
// so one slow or failing provider never blocks or aborts the others. Results
// are merged in completion order. Cancelling ctx abandons in-flight provider
// results and degrades to the heuristic fallback over whatever the probe
// produced.
func (o *Orchestrator) Scan(ctx context.Context, rawTarget string, profile Profile) (*ScanResult, error) {
	target, err := NormalizeTarget(rawTarget)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	scanLogger := o.logger.With().Str("target", target.Host).Str("profile", string(profile)).Logger()
	scanLogger.Info().Str("raw", rawTarget).Msg("Starting scan")

	// The prober runs concurrently with the providers. Its snapshot is
	// shared through a one-shot channel so snapshot-consuming providers can
	// wait for it without serializing the fan-out.
	var snap *Snapshot
	snapReady := make(chan struct{})
	go func() {
		defer close(snapReady)
		defer func() {
			if r := recover(); r != nil {
				snap = FailedSnapshot(ErrorKindUnreachable, fmt.Sprintf("prober panicked: %v", r))
			}
		}()
		snap = o.prober.Snapshot(ctx, target)
		if snap == nil {
			snap = FailedSnapshot(ErrorKindUnreachable, "prober produced no snapshot")
		}
	}()

	source := SnapshotSource(func(waitCtx context.Context) *Snapshot {
		select {
		case <-snapReady:
			return snap
		case <-waitCtx.Done():
			return nil
		}
	})
	providerCtx := context.WithValue(ctx, SnapshotSourceKey, source)

	selected := o.selectProviders(profile)
	results := make(chan ProviderResult, len(selected))
	var wg sync.WaitGroup
	for _, provider := range selected {
		wg.Add(1)
		go func(p Provider) {
			defer wg.Done()
			results <- Isolate(providerCtx, p, target)
		}(provider)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	// Collect in completion order. Every participant settles before the
	// merge is decided; not_configured providers drop out silently.
	var merged []Finding
	outcomes := make([]ProviderOutcome, 0, len(selected)+1)
	for result := range results {
		outcome := ProviderOutcome{Provider: result.Provider, Elapsed: result.Elapsed}
		switch {
		case result.OK():
			found := o.mapFindings(result)
			merged = append(merged, found...)
			outcome.Status = OutcomeOK
			outcome.Findings = len(found)
			scanLogger.Debug().Str("provider", result.Provider).Int("findings", len(found)).
				Dur("elapsed", result.Elapsed).Msg("Provider settled")
		case result.NotConfigured():
			outcome.Status = OutcomeSkipped
			outcome.Reason = FailureNotConfigured
			scanLogger.Debug().Str("provider", result.Provider).Msg("Provider not configured, skipping")
		default:
			outcome.Status = OutcomeFailed
			if result.Failure != nil {
				outcome.Reason = result.Failure.Reason
				outcome.Detail = result.Failure.Cause
			}
			scanLogger.Warn().Str("provider", result.Provider).Str("reason", string(outcome.Reason)).
				Str("cause", outcome.Detail).Msg("Provider failed, result skipped")
		}
		outcomes = append(outcomes, outcome)
	}

	<-snapReady
	probeOutcome := ProviderOutcome{Provider: "probe", Status: OutcomeOK}
	if !snap.OK() {
		probeOutcome.Status = OutcomeFailed
		probeOutcome.Detail = snap.Failure.String()
	}
	outcomes = append(outcomes, probeOutcome)

	// Fallback chain: empty merge degrades to heuristics over the snapshot;
	// a failed probe degrades further to the single unreachable finding.
	// Heuristics never run against an absent snapshot.
	if len(merged) == 0 {
		if snap.OK() {
			merged = o.heuristics(target, snap)
		} else {
			merged = []Finding{unreachableFinding(snap.Failure)}
		}
	}
	merged = DedupeFindings(merged)

	result := &ScanResult{
		Target:    target,
		Profile:   profile,
		StartedAt: started,
		Duration:  time.Since(started),
		Findings:  merged,
		Providers: outcomes,
		Snapshot:  snap,
	}
	scanLogger.Info().Int("findings", len(merged)).Dur("duration", result.Duration).Msg("Scan complete")
	return result, nil
}

// selectProviders applies the profile: quick scans skip the provider fan-out
// entirely and rely on the probe + heuristics path.
func (o *Orchestrator) selectProviders(profile Profile) []Provider {
	if profile == ProfileQuick {
		return nil
	}
	return o.providers
}

// mapFindings normalizes one provider payload, treating a panicking mapper
// like a failed provider rather than letting it kill the scan.
func (o *Orchestrator) mapFindings(result ProviderResult) (findings []Finding) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error().Str("provider", result.Provider).
				Interface("panic", r).Msg("Finding mapper panicked, dropping provider contribution")
			findings = nil
		}
	}()
	return o.mapper.Findings(result)
}

func unreachableFinding(failure *ProbeFailure) Finding {
	kind := ErrorKindUnreachable
	remediation := "Verify the host is online, the name resolves, and a service listens on the probed port."
	if failure != nil {
		kind = failure.Kind
		if failure.Cause != "" {
			remediation = TruncateRemediation(fmt.Sprintf("Probe detail: %s. Verify the host is online and a service listens on the probed port.", failure.Cause))
		}
	}
	return Finding{
		Severity:    SeverityHigh,
		Title:       truncateTitle(fmt.Sprintf("Target unreachable: %s", kind.Text())),
		Remediation: remediation,
		Source:      OrchestratorSource,
	}
}
