package engine

import "fmt"

// HeuristicSource is the Source tag on findings from the local rule engine.
const HeuristicSource = "heuristics"

// HeuristicsFunc is the signature of a snapshot rule engine, injectable for
// tests.
type HeuristicsFunc func(target Target, snap *Snapshot) []Finding

// EvaluateHeuristics applies the fixed local rule table to a target and its
// probe snapshot. It is pure and stateless; rules are evaluated in table
// order so the output is deterministic for a given input, and several rules
// may fire for the same target.
//
// The function is only meaningful for a successful snapshot. Header rules are
// skipped when the snapshot is absent or failed (the orchestrator turns that
// case into a single unreachable finding instead); the target-shape rules
// still apply. It never returns an empty slice: when nothing fires, a single
// low "no issues" finding stands in.
func EvaluateHeuristics(target Target, snap *Snapshot) []Finding {
	findings := make([]Finding, 0, 4)
	add := func(severity Severity, title, remediation string) {
		findings = append(findings, Finding{
			Severity:    severity,
			Title:       title,
			Remediation: TruncateRemediation(remediation),
			Source:      HeuristicSource,
		})
	}

	if target.Scheme == "http" {
		add(SeverityHigh,
			"Target served over unencrypted HTTP",
			"Serve the site over HTTPS and redirect all HTTP traffic to it.")
	}

	if target.IsIP {
		add(SeverityMedium,
			"Target is a raw IP address",
			"Scan the canonical hostname instead; name-based virtual hosts and certificates are invisible on a bare IP.")
	}

	// Scheme-gated: an https target on an implicit port never triggers this.
	if target.Scheme == "http" && target.EffectivePort() == 80 {
		add(SeverityLow,
			"Default port 80 detected",
			"Move the service to 443 with TLS, or restrict port 80 to a redirect-only listener.")
	}

	if target.IsCIDR {
		add(SeverityLow,
			"CIDR range provided: scan scope is large",
			"Point the scan at a single host; range scanning dilutes per-host assessment depth.")
	}

	if snap.OK() {
		if !snap.HasHeader("strict-transport-security") {
			add(SeverityMedium,
				"Missing Strict-Transport-Security header",
				"Send Strict-Transport-Security with a max-age of at least 15552000 to pin browsers to HTTPS.")
		}
		if !snap.HasHeader("content-security-policy") {
			add(SeverityMedium,
				"Missing Content-Security-Policy header",
				"Define a Content-Security-Policy restricting script and frame sources to trusted origins.")
		}
		if !snap.HasHeader("x-frame-options") {
			add(SeverityLow,
				"Missing X-Frame-Options header",
				"Send X-Frame-Options: DENY (or a frame-ancestors CSP directive) to block clickjacking.")
		}
		if banner, ok := snap.Header("server"); ok && banner != "" {
			add(SeverityLow,
				truncateTitle(fmt.Sprintf("Server banner disclosed: %s", banner)),
				"Strip or genericize the Server header so attackers cannot fingerprint the stack version.")
		}
	}

	if len(findings) == 0 {
		add(SeverityLow,
			"No issues detected by heuristic rules",
			"Keep monitoring; heuristic coverage is intentionally shallow compared to the full provider set.")
	}

	return findings
}

func truncateTitle(title string) string {
	runes := []rune(title)
	if len(runes) <= MaxTitleLen {
		return title
	}
	return string(runes[:MaxTitleLen])
}
