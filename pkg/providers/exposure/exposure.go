// Package exposure adapts the exposure-intelligence service: a keyed host
// lookup returning the open ports and known vulnerabilities the internet
// already sees for a target. The credential is optional system-wide; without
// one the adapter reports not_configured and never touches the network.
package exposure

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/scanmux/scanmux/pkg/engine"
)

// ProviderName identifies this adapter in results and logs.
const ProviderName = "exposure"

// DefaultEndpoint is the intelligence service's API root.
const DefaultEndpoint = "https://api.shodan.io"

// Config holds the adapter's tunables. APIKey empty means not configured.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Report is the decoded provider payload.
type Report struct {
	IP    string   `json:"ip_str"`
	Ports []int    `json:"ports"`
	Vulns []string `json:"vulns"`
}

// Provider implements engine.Payload.
func (Report) Provider() string { return ProviderName }

// Adapter calls the exposure-intelligence service.
type Adapter struct {
	config   Config
	client   *http.Client
	resolver *net.Resolver
	logger   zerolog.Logger
}

// New builds an Adapter with default settings and no credential.
func New() *Adapter {
	a := &Adapter{
		config: Config{
			Endpoint: DefaultEndpoint,
			Timeout:  10 * time.Second,
		},
		resolver: net.DefaultResolver,
		logger:   log.With().Str("component", "ExposureAdapter").Logger(),
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
	if keyVal, ok := settings["apikey"]; ok {
		cfg.APIKey = cast.ToString(keyVal)
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
	a.config = cfg
	a.client = &http.Client{Timeout: cfg.Timeout}
	return nil
}

// Name implements engine.Provider.
func (a *Adapter) Name() string { return ProviderName }

// Assess looks the target up in the exposure index. Hostname targets are
// resolved to their first address first; the index is keyed by IP.
func (a *Adapter) Assess(ctx context.Context, target engine.Target) engine.ProviderResult {
	if a.config.APIKey == "" {
		return engine.Failed(ProviderName, engine.FailureNotConfigured, "no API key configured")
	}

	ip := target.Host
	if !target.IsIP {
		resolved, err := a.resolveFirst(ctx, target.Host)
		if err != nil {
			return engine.Failed(ProviderName, engine.FailureRemoteError,
				fmt.Sprintf("could not resolve %s for exposure lookup: %v", target.Host, err))
		}
		ip = resolved
	}

	query := url.Values{}
	query.Set("key", a.config.APIKey)
	lookupURL := fmt.Sprintf("%s/shodan/host/%s?%s", a.config.Endpoint, url.PathEscape(ip), query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, lookupURL, nil)
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

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return engine.Failed(ProviderName, engine.FailureRemoteError, "exposure service rejected the API key")
	case resp.StatusCode == http.StatusNotFound:
		// The index has nothing on this host. An empty report is still a
		// success; the normalizer just emits nothing for it.
		return engine.Success(ProviderName, Report{IP: ip})
	case resp.StatusCode != http.StatusOK:
		return engine.Failed(ProviderName, engine.FailureRemoteError,
			fmt.Sprintf("exposure service returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return engine.Failed(ProviderName, engine.FailureRemoteError, err.Error())
	}

	var report Report
	if err := json.Unmarshal(body, &report); err != nil {
		return engine.Failed(ProviderName, engine.FailureMalformedResponse, err.Error())
	}
	if report.IP == "" {
		report.IP = ip
	}

	a.logger.Debug().Str("ip", report.IP).Int("ports", len(report.Ports)).
		Int("vulns", len(report.Vulns)).Msg("Exposure lookup complete")
	return engine.Success(ProviderName, report)
}

func (a *Adapter) resolveFirst(ctx context.Context, host string) (string, error) {
	addrs, err := a.resolver.LookupIP(ctx, "ip", host)
	if err != nil {
		return "", err
	}
	if len(addrs) == 0 {
		return "", fmt.Errorf("no addresses for %s", host)
	}
	return addrs[0].String(), nil
}
