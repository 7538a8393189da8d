package scanexec

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scanmux/scanmux/pkg/config"
	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/event"
	"github.com/scanmux/scanmux/pkg/normalize"
	"github.com/scanmux/scanmux/pkg/probe"
	"github.com/scanmux/scanmux/pkg/providers/aianalyst"
	"github.com/scanmux/scanmux/pkg/providers/exposure"
	"github.com/scanmux/scanmux/pkg/providers/headergrade"
	"github.com/scanmux/scanmux/pkg/providers/tlsgrade"
)

// scanRunner is the engine surface the service drives. Satisfied by
// *engine.Orchestrator; kept as an interface so tests can swap it.
type scanRunner interface {
	Scan(ctx context.Context, rawTarget string, profile engine.Profile) (*engine.ScanResult, error)
}

// Event names published on the bus around a scan run.
const (
	EventScanStarted      = "scan.started"
	EventProviderFinished = "provider.finished"
	EventScanCompleted    = "scan.completed"
)

// ScanStartedData is the payload published with EventScanStarted.
type ScanStartedData struct {
	ScanID  string
	Target  string
	Profile string
}

// ProviderFinishedData is published once per fan-out participant.
type ProviderFinishedData struct {
	ScanID   string
	Provider string
	Status   string
	Findings int
}

// ScanCompletedData is the payload published with EventScanCompleted.
type ScanCompletedData struct {
	ScanID   string
	Status   string
	Findings int
	Duration time.Duration
}

// Service runs scans end to end: it assembles the engine from configuration,
// executes it with the scan deadline, and publishes lifecycle events.
type Service struct {
	manager       *config.Manager
	bus           *event.Manager
	runnerFactory func() (scanRunner, error)
	logger        zerolog.Logger
}

// NewService builds a Service with the default engine wiring.
func NewService(manager *config.Manager) *Service {
	return &Service{
		manager: manager,
		runnerFactory: func() (scanRunner, error) {
			return buildRunner(manager)
		},
		logger: log.With().Str("component", "scanexec").Logger(),
	}
}

// WithEventBus attaches a bus to receive scan lifecycle events.
func (s *Service) WithEventBus(bus *event.Manager) *Service {
	s.bus = bus
	return s
}

// WithRunnerFactory overrides engine construction for testing.
func (s *Service) WithRunnerFactory(factory func() (scanRunner, error)) *Service {
	s.runnerFactory = factory
	return s
}

// Run executes one scan. Caller input problems (unknown profile, malformed
// timeout, empty target) surface as engine.ErrInvalidInput; any other error
// means the engine could not be assembled. A non-nil Result always carries at
// least one finding.
func (s *Service) Run(ctx context.Context, params Params) (*Result, error) {
	profile, err := engine.ParseProfile(params.Profile)
	if err != nil {
		return nil, err
	}
	timeout, err := s.scanTimeout(params)
	if err != nil {
		return nil, err
	}

	runner, err := s.runnerFactory()
	if err != nil {
		return nil, fmt.Errorf("init scan engine: %w", err)
	}

	scanID := params.ScanID
	if scanID == "" {
		scanID = uuid.New().String()
	}
	started := time.Now()
	s.publish(ctx, EventScanStarted, ScanStartedData{
		ScanID:  scanID,
		Target:  params.Target,
		Profile: string(profile),
	})
	s.logger.Info().Str("scan_id", scanID).Str("target", params.Target).
		Str("profile", string(profile)).Dur("timeout", timeout).Msg("Scan run starting")

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	scanResult, runErr := runner.Scan(runCtx, params.Target, profile)
	if runErr != nil {
		s.publish(ctx, EventScanCompleted, ScanCompletedData{
			ScanID:   scanID,
			Status:   StatusFailed,
			Duration: time.Since(started),
		})
		return nil, runErr
	}

	for _, outcome := range scanResult.Providers {
		s.publish(ctx, EventProviderFinished, ProviderFinishedData{
			ScanID:   scanID,
			Provider: outcome.Provider,
			Status:   outcome.Status,
			Findings: outcome.Findings,
		})
	}
	s.publish(ctx, EventScanCompleted, ScanCompletedData{
		ScanID:   scanID,
		Status:   StatusCompleted,
		Findings: len(scanResult.Findings),
		Duration: scanResult.Duration,
	})

	result := &Result{
		ScanID:      scanID,
		Target:      scanResult.Target,
		Profile:     scanResult.Profile,
		Status:      StatusCompleted,
		StartedAt:   scanResult.StartedAt,
		CompletedAt: scanResult.StartedAt.Add(scanResult.Duration),
		Findings:    scanResult.Findings,
		Providers:   scanResult.Providers,
		Snapshot:    scanResult.Snapshot,
	}
	s.logger.Info().Str("scan_id", scanID).Int("findings", len(result.Findings)).
		Msg("Scan run finished")
	return result, nil
}

// scanTimeout resolves the scan deadline: an explicit per-run value wins over
// the configured default. A malformed explicit value is a caller error.
func (s *Service) scanTimeout(params Params) (time.Duration, error) {
	if params.Timeout != "" {
		dur, err := time.ParseDuration(params.Timeout)
		if err != nil || dur <= 0 {
			return 0, fmt.Errorf("%w: invalid timeout %q", engine.ErrInvalidInput, params.Timeout)
		}
		return dur, nil
	}
	if dur, err := time.ParseDuration(s.manager.Get().Scan.Timeout); err == nil && dur > 0 {
		return dur, nil
	}
	return 5 * time.Minute, nil
}

func (s *Service) publish(ctx context.Context, name string, data any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(ctx, name, data)
}

// buildRunner assembles the production engine from the loaded configuration:
// the snapshot prober plus every enabled provider adapter, each initialized
// from its own config section.
func buildRunner(manager *config.Manager) (scanRunner, error) {
	cfg := manager.Get()

	prober := probe.New()
	if err := prober.Init(manager.Section("probe")); err != nil {
		return nil, fmt.Errorf("init prober: %w", err)
	}

	var providers []engine.Provider
	if cfg.Providers.HeaderGrade.Enabled {
		adapter := headergrade.New()
		if err := adapter.Init(manager.Section("providers.headergrade")); err != nil {
			return nil, fmt.Errorf("init headergrade provider: %w", err)
		}
		providers = append(providers, adapter)
	}
	if cfg.Providers.TLSGrade.Enabled {
		adapter := tlsgrade.New()
		if err := adapter.Init(manager.Section("providers.tlsgrade")); err != nil {
			return nil, fmt.Errorf("init tlsgrade provider: %w", err)
		}
		providers = append(providers, adapter)
	}
	if cfg.Providers.Exposure.Enabled {
		adapter := exposure.New()
		if err := adapter.Init(manager.Section("providers.exposure")); err != nil {
			return nil, fmt.Errorf("init exposure provider: %w", err)
		}
		providers = append(providers, adapter)
	}
	if cfg.Providers.AIAnalyst.Enabled {
		adapter := aianalyst.New()
		if err := adapter.Init(manager.Section("providers.aianalyst")); err != nil {
			return nil, fmt.Errorf("init aianalyst provider: %w", err)
		}
		providers = append(providers, adapter)
	}

	return engine.NewOrchestrator(engine.OrchestratorConfig{
		Prober:    prober,
		Providers: providers,
		Mapper:    normalize.New(),
	})
}
