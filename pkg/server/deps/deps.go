// pkg/server/deps/deps.go
package deps

import (
	"context"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/scanmux/scanmux/pkg/config"
	"github.com/scanmux/scanmux/pkg/event"
	"github.com/scanmux/scanmux/pkg/providers/exposure"
	"github.com/scanmux/scanmux/pkg/providers/headergrade"
	"github.com/scanmux/scanmux/pkg/providers/tlsgrade"
	"github.com/scanmux/scanmux/pkg/scanexec"
	"github.com/scanmux/scanmux/pkg/server/api"
	"github.com/scanmux/scanmux/pkg/server/jobs"
)

// Deps wires the server's long-lived components: the scan service, the job
// registry, and the readiness flag the HTTP layer gates on.
type Deps struct {
	Manager *config.Manager
	Scans   *scanexec.Service
	Jobs    *jobs.Manager
	Logger  *zerolog.Logger
	Ready   *atomic.Bool
}

// New assembles the server dependencies from loaded configuration. Scans run
// through the same service the CLI uses; the job registry tracks them under
// IDs that double as scan IDs, so bus events correlate with jobs directly.
func New(manager *config.Manager, logger *zerolog.Logger) *Deps {
	cfg := manager.Get()

	bus := event.NewManager()
	service := scanexec.NewService(manager).WithEventBus(bus)
	jobsMgr := jobs.NewManager(service.Run, cfg.Server.Jobs)

	subscribeEventLog(bus, logger)

	return &Deps{
		Manager: manager,
		Scans:   service,
		Jobs:    jobsMgr,
		Logger:  logger,
		Ready:   &atomic.Bool{},
	}
}

// SetReady marks the server ready to receive traffic.
func (d *Deps) SetReady() {
	d.Ready.Store(true)
}

// SetNotReady marks the server as draining.
func (d *Deps) SetNotReady() {
	d.Ready.Store(false)
}

// IsReady reports the readiness flag.
func (d *Deps) IsReady() bool {
	return d.Ready.Load()
}

// API projects the server dependencies into what the HTTP handlers need.
func (d *Deps) API() *api.Deps {
	return &api.Deps{
		Jobs:      d.Jobs,
		Providers: ProviderStatuses(d.Manager.Get()),
		Config:    api.DefaultConfig(),
		Ready:     d.Ready,
	}
}

// ProviderStatuses derives the provider inventory from configuration.
// Configured tracks credential presence only: the grading providers need no
// credentials, the intelligence and analyst ones need API keys.
func ProviderStatuses(cfg config.Config) []api.ProviderStatus {
	p := cfg.Providers
	return []api.ProviderStatus{
		{
			Name:       "headergrade",
			Enabled:    p.HeaderGrade.Enabled,
			Configured: true,
			Endpoint:   endpointOr(p.HeaderGrade.Endpoint, headergrade.DefaultEndpoint),
		},
		{
			Name:       "tlsgrade",
			Enabled:    p.TLSGrade.Enabled,
			Configured: true,
			Endpoint:   endpointOr(p.TLSGrade.Endpoint, tlsgrade.DefaultEndpoint),
		},
		{
			Name:       "exposure",
			Enabled:    p.Exposure.Enabled,
			Configured: p.Exposure.APIKey != "",
			Endpoint:   endpointOr(p.Exposure.Endpoint, exposure.DefaultEndpoint),
		},
		{
			Name:       "aianalyst",
			Enabled:    p.AIAnalyst.Enabled,
			Configured: p.AIAnalyst.APIKey != "",
		},
	}
}

func endpointOr(endpoint, fallback string) string {
	if endpoint != "" {
		return endpoint
	}
	return fallback
}

// subscribeEventLog attaches a structured-log observer to scan lifecycle
// events, giving server operators per-provider settlement lines without
// polling the job registry.
func subscribeEventLog(bus *event.Manager, logger *zerolog.Logger) {
	bus.Subscribe(scanexec.EventScanStarted, func(ctx context.Context, data any) {
		if d, ok := data.(scanexec.ScanStartedData); ok {
			logger.Info().
				Str("component", "events").
				Str("scan_id", d.ScanID).
				Str("target", d.Target).
				Str("profile", d.Profile).
				Msg("Scan started")
		}
	})
	bus.Subscribe(scanexec.EventProviderFinished, func(ctx context.Context, data any) {
		if d, ok := data.(scanexec.ProviderFinishedData); ok {
			logger.Debug().
				Str("component", "events").
				Str("scan_id", d.ScanID).
				Str("provider", d.Provider).
				Str("status", d.Status).
				Int("findings", d.Findings).
				Msg("Provider finished")
		}
	})
	bus.Subscribe(scanexec.EventScanCompleted, func(ctx context.Context, data any) {
		if d, ok := data.(scanexec.ScanCompletedData); ok {
			logger.Info().
				Str("component", "events").
				Str("scan_id", d.ScanID).
				Str("status", d.Status).
				Int("findings", d.Findings).
				Dur("duration", d.Duration).
				Msg("Scan completed")
		}
	})
}
