package probe

import (
	"context"
	"time"

	"github.com/go-ping/ping"
)

// Pinger is the slice of the ping library the liveness check needs, kept as
// an interface so tests can fake echo results.
type Pinger interface {
	Run() error
	Stop()
	Statistics() *ping.Statistics
	SetCount(int)
	SetTimeout(time.Duration)
	SetPrivileged(bool)
}

type pingerFactoryFunc func(host string) (Pinger, error)

// realPingerAdapter wraps *ping.Pinger behind the Pinger interface.
type realPingerAdapter struct {
	pinger *ping.Pinger
}

func (a *realPingerAdapter) Run() error                   { return a.pinger.Run() }
func (a *realPingerAdapter) Stop()                        { a.pinger.Stop() }
func (a *realPingerAdapter) Statistics() *ping.Statistics { return a.pinger.Statistics() }
func (a *realPingerAdapter) SetCount(count int)           { a.pinger.Count = count }
func (a *realPingerAdapter) SetTimeout(d time.Duration)   { a.pinger.Timeout = d }
func (a *realPingerAdapter) SetPrivileged(priv bool)      { a.pinger.SetPrivileged(priv) }

func defaultPingerFactory(host string) (Pinger, error) {
	pinger, err := ping.NewPinger(host)
	if err != nil {
		return nil, err
	}
	return &realPingerAdapter{pinger: pinger}, nil
}

// livenessCheck sends a few unprivileged ICMP echo requests at the host.
// The second return reports whether the check ran at all; a false there
// means the verdict is unknown, not that the host is down.
func (p *Prober) livenessCheck(ctx context.Context, host string) (alive, checked bool) {
	pinger, err := p.pingerFactory(host)
	if err != nil {
		p.logger.Debug().Err(err).Str("host", host).Msg("Liveness pinger unavailable")
		return false, false
	}
	pinger.SetCount(p.config.PingCount)
	pinger.SetTimeout(2 * time.Second)
	pinger.SetPrivileged(false)

	done := make(chan error, 1)
	go func() { done <- pinger.Run() }()
	select {
	case err := <-done:
		if err != nil {
			p.logger.Debug().Err(err).Str("host", host).Msg("Liveness check failed to run")
			return false, false
		}
	case <-ctx.Done():
		pinger.Stop()
		return false, false
	}

	stats := pinger.Statistics()
	return stats != nil && stats.PacketsRecv > 0, true
}
