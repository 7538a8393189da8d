package engine

import (
	"net/http"
	"strings"
	"time"
)

// ErrorKind classifies the transport-level failure of a probe. The snapshot
// prober never returns a Go error across its boundary; it folds whatever went
// wrong into one of these kinds plus a human-readable cause.
type ErrorKind string

const (
	// ErrorKindDNS marks hostname resolution failures.
	ErrorKindDNS ErrorKind = "dns_failure"

	// ErrorKindConnRefused marks actively refused connections.
	ErrorKindConnRefused ErrorKind = "connection_refused"

	// ErrorKindTimeout marks deadline and timeout expiry.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindTLS marks TLS handshake failures.
	ErrorKindTLS ErrorKind = "tls_failure"

	// ErrorKindUnreachable is the catch-all for every other transport failure.
	ErrorKindUnreachable ErrorKind = "unreachable"
)

// Text returns a short human-readable rendering of the kind, used in finding
// titles ("Target unreachable: connection refused").
func (k ErrorKind) Text() string {
	switch k {
	case ErrorKindDNS:
		return "DNS resolution failed"
	case ErrorKindConnRefused:
		return "connection refused"
	case ErrorKindTimeout:
		return "connection timed out"
	case ErrorKindTLS:
		return "TLS handshake failed"
	default:
		return "host unreachable"
	}
}

// ProbeFailure carries the classified transport failure of a probe attempt.
type ProbeFailure struct {
	Kind  ErrorKind `json:"kind" yaml:"kind"`
	Cause string    `json:"cause,omitempty" yaml:"cause,omitempty"`
}

func (f *ProbeFailure) String() string {
	if f == nil {
		return ""
	}
	if f.Cause == "" {
		return string(f.Kind)
	}
	return string(f.Kind) + ": " + f.Cause
}

// TLSDetails captures what the prober observed during the TLS handshake with
// the target. It feeds the AI analyzer context and reporting; the grading of
// TLS posture itself is the TLS grading provider's job.
type TLSDetails struct {
	Version     string    `json:"version,omitempty" yaml:"version,omitempty"`
	CipherSuite string    `json:"cipher_suite,omitempty" yaml:"cipher_suite,omitempty"`
	Issuer      string    `json:"issuer,omitempty" yaml:"issuer,omitempty"`
	Subject     string    `json:"subject,omitempty" yaml:"subject,omitempty"`
	DNSNames    []string  `json:"dns_names,omitempty" yaml:"dns_names,omitempty"`
	NotBefore   time.Time `json:"not_before,omitempty" yaml:"not_before,omitempty"`
	NotAfter    time.Time `json:"not_after,omitempty" yaml:"not_after,omitempty"`
	SelfSigned  bool      `json:"self_signed,omitempty" yaml:"self_signed,omitempty"`
	Expired     bool      `json:"expired,omitempty" yaml:"expired,omitempty"`
}

// Snapshot is the result of one direct probe against a target: either a
// status/header capture or a classified failure, never both.
//
// Header keys are lowercased at construction time. Every downstream consumer
// relies on that invariant and looks up with lowercase names only.
type Snapshot struct {
	StatusCode int               `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	Headers    map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	TLS        *TLSDetails       `json:"tls,omitempty" yaml:"tls,omitempty"`
	FinalURL   string            `json:"final_url,omitempty" yaml:"final_url,omitempty"`
	FetchedAt  time.Time         `json:"fetched_at,omitempty" yaml:"fetched_at,omitempty"`
	Failure    *ProbeFailure     `json:"failure,omitempty" yaml:"failure,omitempty"`
}

// NewSnapshot builds a successful snapshot from an HTTP response status and
// header set, lowercasing every header name. Multi-valued headers keep their
// first value; the heuristic rules and providers only care about presence and
// the primary value.
func NewSnapshot(statusCode int, headers http.Header) *Snapshot {
	snap := &Snapshot{
		StatusCode: statusCode,
		Headers:    make(map[string]string, len(headers)),
		FetchedAt:  time.Now(),
	}
	for name, values := range headers {
		if len(values) == 0 {
			continue
		}
		snap.Headers[strings.ToLower(name)] = values[0]
	}
	return snap
}

// FailedSnapshot builds the failure variant of a snapshot.
func FailedSnapshot(kind ErrorKind, cause string) *Snapshot {
	return &Snapshot{
		FetchedAt: time.Now(),
		Failure:   &ProbeFailure{Kind: kind, Cause: cause},
	}
}

// OK reports whether the probe reached the target.
func (s *Snapshot) OK() bool {
	return s != nil && s.Failure == nil
}

// Header looks up a header by name, lowercasing the name first so callers
// can pass any casing.
func (s *Snapshot) Header(name string) (string, bool) {
	if s == nil || s.Headers == nil {
		return "", false
	}
	v, ok := s.Headers[strings.ToLower(name)]
	return v, ok
}

// HasHeader reports header presence without exposing the value.
func (s *Snapshot) HasHeader(name string) bool {
	_, ok := s.Header(name)
	return ok
}
