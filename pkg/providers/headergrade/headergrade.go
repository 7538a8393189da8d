// Package headergrade adapts the external security-header grading service:
// one synchronous HTTP call that returns an overall letter grade plus the
// lists of missing and present-but-weak response headers for a target URL.
package headergrade

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
)

// ProviderName identifies this adapter in results and logs.
const ProviderName = "headergrade"

// DefaultEndpoint is the grading service's scan endpoint.
const DefaultEndpoint = "https://api.securityheaders.io/v1/scan"

// Config holds the adapter's tunables.
type Config struct {
	Endpoint        string
	Timeout         time.Duration
	FollowRedirects bool
}

// Report is the decoded provider payload. Decoding happens entirely at this
// boundary; the rest of the engine sees only the typed struct.
type Report struct {
	Grade          string   `json:"grade"`
	MissingHeaders []string `json:"missingHeaders"`
	WeakHeaders    []string `json:"weakHeaders"`
	ScannedURL     string   `json:"url,omitempty"`
}

// Provider implements engine.Payload.
func (Report) Provider() string { return ProviderName }

// Adapter calls the header grading service.
type Adapter struct {
	config Config
	client *http.Client
	logger zerolog.Logger
}

// New builds an Adapter with default settings.
func New() *Adapter {
	a := &Adapter{
		config: Config{
			Endpoint:        DefaultEndpoint,
			Timeout:         10 * time.Second,
			FollowRedirects: true,
		},
		logger: log.With().Str("component", "HeaderGradeAdapter").Logger(),
	}
	a.client = &http.Client{Timeout: a.config.Timeout}
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
	if timeoutStr, ok := settings["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = dur
		} else {
			a.logger.Warn().Msgf("Invalid 'timeout' format in config: '%s'. Using default: %s", timeoutStr, cfg.Timeout)
		}
	} else if timeoutVal, ok := settings["timeout"]; ok {
		if dur := cast.ToDuration(timeoutVal); dur > 0 {
			cfg.Timeout = dur
		}
	}
	if followVal, ok := settings["follow"]; ok {
		cfg.FollowRedirects = cast.ToBool(followVal)
	}
	a.config = cfg
	a.client = &http.Client{Timeout: cfg.Timeout}
	return nil
}

// Name implements engine.Provider.
func (a *Adapter) Name() string { return ProviderName }

// Assess submits the target URL for grading. Every failure mode comes back
// as a classified ProviderResult failure.
func (a *Adapter) Assess(ctx context.Context, target engine.Target) engine.ProviderResult {
	query := url.Values{}
	query.Set("q", target.URL())
	if a.config.FollowRedirects {
		query.Set("followRedirects", "on")
	}
	requestURL := a.config.Endpoint + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return engine.Failed(ProviderName, engine.FailureInternal, err.Error())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return engine.Failed(ProviderName, engine.FailureTimeout, ctx.Err().Error())
		}
		return engine.Failed(ProviderName, engine.FailureRemoteError, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return engine.Failed(ProviderName, engine.FailureRemoteError,
			fmt.Sprintf("grading service returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return engine.Failed(ProviderName, engine.FailureRemoteError, err.Error())
	}

	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return engine.Failed(ProviderName, engine.FailureMalformedResponse, err.Error())
	}
	if report.Grade == "" && len(report.MissingHeaders) == 0 && len(report.WeakHeaders) == 0 {
		return engine.Failed(ProviderName, engine.FailureMalformedResponse, "response carried no grade or header lists")
	}

	a.logger.Debug().Str("target", target.Host).Str("grade", report.Grade).
		Int("missing", len(report.MissingHeaders)).Int("weak", len(report.WeakHeaders)).
		Msg("Header grading complete")
	return engine.Success(ProviderName, report)
}
