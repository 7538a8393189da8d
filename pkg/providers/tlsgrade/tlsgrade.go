// Package tlsgrade adapts the asynchronous TLS grading service. The service
// runs its assessment server-side, so the adapter submits the host and then
// drives the shared poll state machine until the assessment is READY, fails,
// or the attempt budget runs out. Previously computed results are requested
// from the provider's cache and accepted immediately when the first poll
// already reports READY.
package tlsgrade

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/pollwait"
)

// ProviderName identifies this adapter in results and logs.
const ProviderName = "tlsgrade"

// DefaultEndpoint is the public analyze endpoint of the grading service.
const DefaultEndpoint = "https://api.ssllabs.com/api/v3/analyze"

// Remote status enum. Anything outside READY/ERROR keeps the poll pending.
const (
	statusReady      = "READY"
	statusError      = "ERROR"
	statusInProgress = "IN_PROGRESS"
	statusDNS        = "DNS"
)

// Config holds the adapter's tunables. Interval and MaxAttempts bound the
// poll loop; with the defaults the adapter gives up after roughly three
// minutes of server-side work.
type Config struct {
	Endpoint     string
	Interval     time.Duration
	MaxAttempts  int
	HTTPTimeout  time.Duration
	AcceptCached bool
}

// Report is the decoded provider payload.
type Report struct {
	Host         string
	Grade        string
	IPAddress    string
	CertNotAfter time.Time
	FromCache    bool
}

// Provider implements engine.Payload.
func (Report) Provider() string { return ProviderName }

// analyzeResponse mirrors the provider's wire format. Certificate expiry
// arrives as epoch milliseconds.
type analyzeResponse struct {
	Host          string `json:"host"`
	Status        string `json:"status"`
	StatusMessage string `json:"statusMessage"`
	Endpoints     []struct {
		IPAddress string `json:"ipAddress"`
		Grade     string `json:"grade"`
	} `json:"endpoints"`
	Certs []struct {
		NotAfter int64 `json:"notAfter"`
	} `json:"certs"`
}

// Adapter drives the TLS grading protocol.
type Adapter struct {
	config Config
	client *http.Client
	clock  pollwait.Clock
	logger zerolog.Logger
}

// New builds an Adapter with default settings.
func New() *Adapter {
	a := &Adapter{
		config: Config{
			Endpoint:     DefaultEndpoint,
			Interval:     pollwait.DefaultInterval,
			MaxAttempts:  pollwait.DefaultMaxAttempts,
			HTTPTimeout:  10 * time.Second,
			AcceptCached: true,
		},
		clock:  pollwait.SystemClock,
		logger: log.With().Str("component", "TLSGradeAdapter").Logger(),
	}
	a.client = &http.Client{Timeout: a.config.HTTPTimeout}
	return a
}

// Init applies loosely-typed settings over the defaults.
func (a *Adapter) Init(settings map[string]any) error {
	cfg := a.config
	if endpointVal, ok := settings["endpoint"]; ok {
		if endpoint := cast.ToString(endpointVal); endpoint != "" {
			cfg.Endpoint = endpoint
		}
	}
	if intervalStr, ok := settings["interval"].(string); ok {
		if dur, err := time.ParseDuration(intervalStr); err == nil {
			cfg.Interval = dur
		} else {
			a.logger.Warn().Msgf("Invalid 'interval' format in config: '%s'. Using default: %s", intervalStr, cfg.Interval)
		}
	} else if intervalVal, ok := settings["interval"]; ok {
		if dur := cast.ToDuration(intervalVal); dur > 0 {
			cfg.Interval = dur
		}
	}
	if attemptsVal, ok := settings["attempts"]; ok {
		if attempts := cast.ToInt(attemptsVal); attempts > 0 {
			cfg.MaxAttempts = attempts
		}
	}
	if timeoutStr, ok := settings["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.HTTPTimeout = dur
		} else {
			a.logger.Warn().Msgf("Invalid 'timeout' format in config: '%s'. Using default: %s", timeoutStr, cfg.HTTPTimeout)
		}
	} else if timeoutVal, ok := settings["timeout"]; ok {
		if dur := cast.ToDuration(timeoutVal); dur > 0 {
			cfg.HTTPTimeout = dur
		}
	}
	if cachedVal, ok := settings["cached"]; ok {
		cfg.AcceptCached = cast.ToBool(cachedVal)
	}
	a.config = cfg
	a.client = &http.Client{Timeout: cfg.HTTPTimeout}
	return nil
}

// WithClock overrides the poll clock, for tests.
func (a *Adapter) WithClock(clock pollwait.Clock) *Adapter {
	a.clock = clock
	return a
}

// Name implements engine.Provider.
func (a *Adapter) Name() string { return ProviderName }

// Assess submits the host and polls to a terminal state. The poll loop only
// blocks this adapter's goroutine; sibling providers keep running.
func (a *Adapter) Assess(ctx context.Context, target engine.Target) engine.ProviderResult {
	host := target.Host

	outcome := pollwait.Run(ctx, pollwait.Config{
		Interval:    a.config.Interval,
		MaxAttempts: a.config.MaxAttempts,
		Clock:       a.clock,
	}, func(pollCtx context.Context, attempt int) (pollwait.Verdict, any, error) {
		resp, err := a.poll(pollCtx, host, attempt)
		if err != nil {
			// Transport failure during a poll is terminal, not retried.
			return pollwait.VerdictErrored, nil, err
		}
		switch resp.Status {
		case statusReady:
			return pollwait.VerdictReady, resp, nil
		case statusError:
			return pollwait.VerdictErrored, nil, fmt.Errorf("assessment failed: %s", orUnknown(resp.StatusMessage))
		default:
			// DNS, IN_PROGRESS and friends: the assessment is still running.
			a.logger.Debug().Str("host", host).Str("status", resp.Status).Int("attempt", attempt).
				Msg("TLS assessment still pending")
			return pollwait.VerdictPending, nil, nil
		}
	})

	switch outcome.State {
	case pollwait.StateReady:
		resp, ok := outcome.Payload.(*analyzeResponse)
		if !ok || resp == nil {
			return engine.Failed(ProviderName, engine.FailureInternal, "poll payload had unexpected shape")
		}
		return engine.Success(ProviderName, buildReport(resp, outcome.Attempts == 1))
	case pollwait.StateTimedOut:
		return engine.Failed(ProviderName, engine.FailurePollExhausted,
			fmt.Sprintf("still pending after %d attempts", outcome.Attempts))
	default:
		cause := "assessment errored"
		if outcome.Err != nil {
			cause = outcome.Err.Error()
		}
		return engine.Failed(ProviderName, engine.FailureRemoteError, cause)
	}
}

// poll issues one analyze call. The first attempt starts (or, with cache
// acceptance on, reuses) the server-side assessment; later attempts only
// check progress.
func (a *Adapter) poll(ctx context.Context, host string, attempt int) (*analyzeResponse, error) {
	query := url.Values{}
	query.Set("host", host)
	query.Set("all", "done")
	if attempt == 1 {
		if a.config.AcceptCached {
			query.Set("fromCache", "on")
		} else {
			query.Set("startNew", "on")
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.Endpoint+"?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("grading service returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	var decoded analyzeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("malformed analyze response: %w", err)
	}
	return &decoded, nil
}

func buildReport(resp *analyzeResponse, firstPoll bool) Report {
	report := Report{
		Host:      resp.Host,
		FromCache: firstPoll,
	}
	if len(resp.Endpoints) > 0 {
		report.Grade = resp.Endpoints[0].Grade
		report.IPAddress = resp.Endpoints[0].IPAddress
	}
	if len(resp.Certs) > 0 && resp.Certs[0].NotAfter > 0 {
		report.CertNotAfter = time.UnixMilli(resp.Certs[0].NotAfter)
	}
	return report
}

func orUnknown(message string) string {
	if message == "" {
		return "unknown"
	}
	return message
}
