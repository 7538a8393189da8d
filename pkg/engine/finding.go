package engine

import "strings"

// Severity is the unified severity scale every provider vocabulary is mapped
// onto. The scale is totally ordered: critical > high > medium > low.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the position of the severity in the total order, higher is
// more severe. Unknown severities rank below low so malformed values can
// never outrank real ones.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// Valid reports whether s is one of the four recognized severities.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// ParseSeverity maps a free-form severity string onto the unified scale,
// tolerating case and surrounding whitespace. The ok result is false for
// anything outside the four-level scale.
func ParseSeverity(raw string) (Severity, bool) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", false
	}
	return s, true
}

// Title and remediation length ceilings, in runes. Titles beyond the ceiling
// indicate a malformed provider entry; remediations are merely truncated.
const (
	MaxTitleLen       = 90
	MaxRemediationLen = 140
)

// Finding is the unified output unit of a scan. Findings are immutable once
// created; a scan result is an ordered sequence of them (provider completion
// order).
type Finding struct {
	Severity    Severity `json:"severity" yaml:"severity"`
	Title       string   `json:"title" yaml:"title"`
	Remediation string   `json:"remediation" yaml:"remediation"`

	// Source names the component that produced the finding (a provider
	// adapter, the heuristic engine, or the orchestrator itself).
	Source string `json:"source,omitempty" yaml:"source,omitempty"`
}

// TruncateRemediation enforces the remediation length ceiling, cutting at a
// rune boundary. Short strings pass through untouched.
func TruncateRemediation(remediation string) string {
	runes := []rune(remediation)
	if len(runes) <= MaxRemediationLen {
		return remediation
	}
	return string(runes[:MaxRemediationLen])
}

// DedupeFindings removes duplicate findings, keyed on (severity, title).
// The first occurrence wins, preserving provider completion order.
func DedupeFindings(findings []Finding) []Finding {
	if len(findings) < 2 {
		return findings
	}
	seen := make(map[string]struct{}, len(findings))
	out := make([]Finding, 0, len(findings))
	for _, f := range findings {
		key := string(f.Severity) + "\x00" + f.Title
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

// CountBySeverity tallies findings per severity level for summary output.
func CountBySeverity(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
