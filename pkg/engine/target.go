package engine

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/scanmux/scanmux/pkg/netutil"
)

// ErrInvalidInput is the only error a scan surfaces to its caller. It marks
// input rejected before any network activity (empty or unusable target
// strings, unknown profiles). Wrap it with fmt.Errorf("...: %w", ...) so
// callers can match it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// Target is the canonical form of a raw scan subject. It is derived once by
// NormalizeTarget and never mutated afterwards; everything downstream (the
// prober, the adapters, the heuristic rules) works off this value.
type Target struct {
	// Raw is the original input string, preserved for reporting.
	Raw string `json:"raw" yaml:"raw"`

	// Scheme is "http" or "https". Inputs without a scheme default to "https".
	Scheme string `json:"scheme" yaml:"scheme"`

	// Host is the hostname or IP literal extracted from the input. When the
	// input cannot be parsed as a URL at all, Host falls back to the trimmed
	// raw string.
	Host string `json:"host" yaml:"host"`

	// Port is the explicit port from the input, 0 when absent.
	Port int `json:"port,omitempty" yaml:"port,omitempty"`

	// IsIP reports whether Host is a literal IP address.
	IsIP bool `json:"is_ip" yaml:"is_ip"`

	// IsCIDR reports whether the raw input carries a CIDR-style /prefix
	// suffix on its first token.
	IsCIDR bool `json:"is_cidr" yaml:"is_cidr"`
}

// NormalizeTarget parses a raw target string into its canonical Target form.
// The function is pure: the same input always yields the same Target.
//
// Inputs beginning with http:// or https:// (case-insensitive) are parsed as
// URLs directly; anything else gets https:// prepended first. A host that
// cannot be extracted falls back to the trimmed raw string so the caller
// still gets a probe-able value. Only empty input is rejected.
func NormalizeTarget(raw string) (Target, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Target{}, fmt.Errorf("%w: empty target", ErrInvalidInput)
	}

	candidate := trimmed
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		candidate = "https://" + trimmed
	}

	target := Target{
		Raw:    raw,
		Scheme: "https",
	}

	if u, err := url.Parse(candidate); err == nil {
		if s := strings.ToLower(u.Scheme); s == "http" || s == "https" {
			target.Scheme = s
		}
		target.Host = u.Hostname()
		if p := u.Port(); p != "" {
			if port, perr := strconv.Atoi(p); perr == nil {
				target.Port = port
			}
		}
	}

	if target.Host == "" {
		target.Host = trimmed
	}

	target.IsIP = netutil.HostIsIP(target.Host)
	target.IsCIDR = netutil.LooksLikeCIDR(netutil.FirstToken(raw))

	return target, nil
}

// EffectivePort returns the explicit port when one was given, otherwise the
// scheme default (443 for https, 80 for http).
func (t Target) EffectivePort() int {
	if t.Port != 0 {
		return t.Port
	}
	if t.Scheme == "http" {
		return 80
	}
	return 443
}

// URL renders the probe-able URL form of the target: scheme://host[:port].
// IPv6 literal hosts are bracketed.
func (t Target) URL() string {
	host := t.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	if t.Port != 0 {
		return fmt.Sprintf("%s://%s:%d", t.Scheme, host, t.Port)
	}
	return fmt.Sprintf("%s://%s", t.Scheme, host)
}

// String implements fmt.Stringer for log-friendly rendering.
func (t Target) String() string {
	return t.URL()
}
