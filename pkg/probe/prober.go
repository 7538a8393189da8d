// Package probe performs the direct network inspection of a target: a
// HEAD-equivalent HTTP request with a short bounded timeout that yields a
// header/status snapshot, plus an ICMP liveness check used to enrich
// unreachable verdicts. All transport failures are classified in-band; the
// prober never returns a Go error across its boundary.
package probe

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/scanmux/scanmux/pkg/engine"
)

// Config holds the prober's tunables.
type Config struct {
	// Timeout bounds the whole probe request. This is the floor latency of
	// the heuristic fallback chain, so it stays in the 5-6s range.
	Timeout time.Duration `json:"timeout"`

	// MaxRedirects caps redirect following. The probe keeps the last
	// response rather than erroring when the cap is hit.
	MaxRedirects int `json:"max_redirects"`

	// UserAgent identifies the scanner to the target.
	UserAgent string `json:"user_agent"`

	// PingOnFailure enables the ICMP liveness check when the HTTP probe
	// fails, to tell "host down" apart from "service down".
	PingOnFailure bool `json:"ping_on_failure"`

	// PingCount is the number of echo requests per liveness check.
	PingCount int `json:"ping_count"`
}

// Prober produces target snapshots. Create with New, optionally tune with
// Init, then call Snapshot per target.
type Prober struct {
	config        Config
	client        *http.Client
	pingerFactory pingerFactoryFunc
	logger        zerolog.Logger
}

// New builds a Prober with default settings.
func New() *Prober {
	p := &Prober{
		config: Config{
			Timeout:       6 * time.Second,
			MaxRedirects:  3,
			UserAgent:     "scanmux-probe/1.0",
			PingOnFailure: true,
			PingCount:     3,
		},
		pingerFactory: defaultPingerFactory,
		logger:        log.With().Str("component", "Prober").Logger(),
	}
	p.rebuildClient()
	return p
}

// Init applies loosely-typed settings (from the config manager's probe
// section) over the defaults, warning and keeping the default on anything it
// cannot coerce.
func (p *Prober) Init(settings map[string]any) error {
	cfg := p.config

	if timeoutStr, ok := settings["timeout"].(string); ok {
		if dur, err := time.ParseDuration(timeoutStr); err == nil {
			cfg.Timeout = dur
		} else {
			p.logger.Warn().Msgf("Invalid 'timeout' format in config: '%s'. Using default: %s", timeoutStr, cfg.Timeout)
		}
	} else if timeoutVal, ok := settings["timeout"]; ok {
		if dur := cast.ToDuration(timeoutVal); dur > 0 {
			cfg.Timeout = dur
		}
	}
	if redirectsVal, ok := settings["redirects"]; ok {
		cfg.MaxRedirects = cast.ToInt(redirectsVal)
	}
	if uaVal, ok := settings["useragent"]; ok {
		if ua := cast.ToString(uaVal); ua != "" {
			cfg.UserAgent = ua
		}
	}
	if pingSection, ok := settings["ping"].(map[string]any); ok {
		if enabledVal, ok := pingSection["enabled"]; ok {
			cfg.PingOnFailure = cast.ToBool(enabledVal)
		}
		if countVal, ok := pingSection["count"]; ok {
			cfg.PingCount = cast.ToInt(countVal)
		}
	}

	// Clamp unreasonable values rather than failing init.
	if cfg.Timeout < 500*time.Millisecond {
		p.logger.Warn().Dur("timeout", cfg.Timeout).Msg("Probe timeout too low, clamping to 500ms")
		cfg.Timeout = 500 * time.Millisecond
	}
	if cfg.MaxRedirects < 0 {
		cfg.MaxRedirects = 0
	}
	if cfg.PingCount < 1 {
		cfg.PingCount = 1
	}

	p.config = cfg
	p.rebuildClient()
	return nil
}

func (p *Prober) rebuildClient() {
	maxRedirects := p.config.MaxRedirects
	p.client = &http.Client{
		Timeout: p.config.Timeout,
		Transport: &http.Transport{
			// An assessment tool has to inspect misconfigured targets, so
			// invalid and self-signed certificates must not end the probe.
			TLSClientConfig:   &tls.Config{InsecureSkipVerify: true},
			DisableKeepAlives: true,
			Proxy:             http.ProxyFromEnvironment,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

// Snapshot probes the target once and returns either a header/status capture
// or a classified failure, never an error. A HEAD request goes first;
// targets that reject HEAD get one GET retry.
func (p *Prober) Snapshot(ctx context.Context, target engine.Target) *engine.Snapshot {
	probeURL := target.URL()

	resp, err := p.do(ctx, http.MethodHead, probeURL)
	if err == nil && rejectedHead(resp.StatusCode) {
		drainAndClose(resp)
		resp, err = p.do(ctx, http.MethodGet, probeURL)
	}
	if err != nil {
		kind, cause := classifyProbeError(err)
		cause = p.enrichUnreachableCause(ctx, target, cause)
		p.logger.Debug().Str("target", target.Host).Str("kind", string(kind)).Str("cause", cause).
			Msg("Probe failed")
		return engine.FailedSnapshot(kind, cause)
	}
	defer drainAndClose(resp)

	snap := engine.NewSnapshot(resp.StatusCode, resp.Header)
	snap.FinalURL = resp.Request.URL.String()
	if resp.TLS != nil {
		snap.TLS = extractTLSDetails(*resp.TLS)
	}
	p.logger.Debug().Str("target", target.Host).Int("status", snap.StatusCode).
		Int("headers", len(snap.Headers)).Msg("Probe snapshot captured")
	return snap
}

func (p *Prober) do(ctx context.Context, method, probeURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, probeURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", p.config.UserAgent)
	req.Header.Set("Accept", "*/*")
	return p.client.Do(req)
}

// rejectedHead covers servers that refuse HEAD outright; those get one GET.
func rejectedHead(status int) bool {
	return status == http.StatusMethodNotAllowed || status == http.StatusNotImplemented
}

func drainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// enrichUnreachableCause appends the ICMP liveness verdict to the failure
// cause so the unreachable finding can say whether the host itself is up.
func (p *Prober) enrichUnreachableCause(ctx context.Context, target engine.Target, cause string) string {
	if !p.config.PingOnFailure || target.IsCIDR {
		return cause
	}
	if alive, checked := p.livenessCheck(ctx, target.Host); checked {
		if alive {
			return cause + " (host answers ICMP echo; the service appears down)"
		}
		return cause + " (no ICMP echo reply; the host may be offline)"
	}
	return cause
}

// classifyProbeError folds a transport error into the snapshot failure
// taxonomy plus a short cause string.
func classifyProbeError(err error) (engine.ErrorKind, string) {
	cause := rootCauseText(err)

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return engine.ErrorKindDNS, cause
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return engine.ErrorKindTimeout, cause
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return engine.ErrorKindTimeout, cause
	}

	var recordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var unknownAuthErr x509.UnknownAuthorityError
	if errors.As(err, &recordErr) || errors.As(err, &certErr) || errors.As(err, &unknownAuthErr) {
		return engine.ErrorKindTLS, cause
	}
	if strings.Contains(cause, "tls:") || strings.Contains(cause, "handshake failure") {
		return engine.ErrorKindTLS, cause
	}

	if strings.Contains(cause, "connection refused") {
		return engine.ErrorKindConnRefused, cause
	}

	return engine.ErrorKindUnreachable, cause
}

// rootCauseText strips the url.Error envelope so causes stay short enough
// for remediation text.
func rootCauseText(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	// "Head \"https://x\": dial tcp ...: connect: connection refused" keeps
	// only the part after the quoted URL.
	if idx := strings.LastIndex(msg, "\": "); idx != -1 {
		msg = msg[idx+3:]
	}
	if len(msg) > 120 {
		msg = msg[:120]
	}
	return msg
}

// extractTLSDetails captures the handshake observation for reporting and the
// AI analyzer context.
func extractTLSDetails(state tls.ConnectionState) *engine.TLSDetails {
	if !state.HandshakeComplete {
		return nil
	}

	details := &engine.TLSDetails{
		Version:     tlsVersionString(state.Version),
		CipherSuite: tls.CipherSuiteName(state.CipherSuite),
	}

	if len(state.PeerCertificates) > 0 {
		cert := state.PeerCertificates[0]
		details.Subject = cert.Subject.CommonName
		details.Issuer = cert.Issuer.String()
		if len(cert.DNSNames) > 0 {
			details.DNSNames = append([]string(nil), cert.DNSNames...)
		}
		details.NotBefore = cert.NotBefore
		details.NotAfter = cert.NotAfter
		details.Expired = time.Now().After(cert.NotAfter)
		details.SelfSigned = cert.Subject.String() == cert.Issuer.String()
	}

	return details
}

func tlsVersionString(version uint16) string {
	switch version {
	case tls.VersionTLS10:
		return "TLS 1.0"
	case tls.VersionTLS11:
		return "TLS 1.1"
	case tls.VersionTLS12:
		return "TLS 1.2"
	case tls.VersionTLS13:
		return "TLS 1.3"
	default:
		return fmt.Sprintf("unknown (0x%04x)", version)
	}
}
