// pkg/normalize/normalize.go

// Package normalize folds every provider's native vocabulary into the shared
// finding shape. Letter grades, header lists, exposed ports and raw AI output
// all leave this package as {severity, title, remediation} findings on the
// four-step severity scale.
package normalize

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/scanmux/scanmux/pkg/engine"
	"github.com/scanmux/scanmux/pkg/providers/aianalyst"
	"github.com/scanmux/scanmux/pkg/providers/exposure"
	"github.com/scanmux/scanmux/pkg/providers/headergrade"
	"github.com/scanmux/scanmux/pkg/providers/tlsgrade"
)

// CertExpiryWindow is how close to expiry a certificate has to be before the
// normalizer raises a finding for it.
const CertExpiryWindow = 30 * 24 * time.Hour

// highRiskPorts warrant a high severity on sight; any other exposed port is
// reported as medium.
var highRiskPorts = map[int]bool{
	22:   true,
	3389: true,
}

// portNames labels well-known ports in finding titles.
var portNames = map[int]string{
	21:    "FTP",
	22:    "SSH",
	23:    "Telnet",
	25:    "SMTP",
	80:    "HTTP",
	443:   "HTTPS",
	3306:  "MySQL",
	3389:  "RDP",
	5432:  "PostgreSQL",
	5900:  "VNC",
	6379:  "Redis",
	27017: "MongoDB",
}

// GradeSeverity maps a provider letter grade onto the shared severity scale.
// A+ and A are low, B and C are medium, everything else including an absent
// grade is high.
func GradeSeverity(grade string) engine.Severity {
	switch strings.ToUpper(strings.TrimSpace(grade)) {
	case "A+", "A":
		return engine.SeverityLow
	case "B", "C":
		return engine.SeverityMedium
	default:
		return engine.SeverityHigh
	}
}

// Normalizer implements engine.FindingMapper over the provider payload union.
type Normalizer struct {
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{
		logger: log.With().Str("component", "Normalizer").Logger(),
		now:    time.Now,
	}
}

// Findings maps a settled provider result into zero or more findings. Failed
// results and unknown payload types map to nothing.
func (n *Normalizer) Findings(result engine.ProviderResult) []engine.Finding {
	if !result.OK() {
		return nil
	}
	switch report := result.Payload.(type) {
	case headergrade.Report:
		return n.headerFindings(report)
	case tlsgrade.Report:
		return n.tlsFindings(report)
	case exposure.Report:
		return n.exposureFindings(report)
	case aianalyst.Report:
		return n.aiFindings(report)
	default:
		n.logger.Warn().Str("provider", result.Provider).
			Msg("No normalization rule for provider payload, dropping")
		return nil
	}
}

func (n *Normalizer) headerFindings(report headergrade.Report) []engine.Finding {
	findings := []engine.Finding{{
		Severity:    GradeSeverity(report.Grade),
		Title:       fmt.Sprintf("Security header grade: %s", orAbsent(report.Grade)),
		Remediation: "Review the response header policy and add the protections the grader flagged.",
		Source:      headergrade.ProviderName,
	}}
	for _, name := range report.MissingHeaders {
		findings = append(findings, engine.Finding{
			Severity:    engine.SeverityMedium,
			Title:       clampTitle(fmt.Sprintf("Missing security header: %s", name)),
			Remediation: fmt.Sprintf("Add the %s header to all responses.", name),
			Source:      headergrade.ProviderName,
		})
	}
	for _, name := range report.WeakHeaders {
		findings = append(findings, engine.Finding{
			Severity:    engine.SeverityLow,
			Title:       clampTitle(fmt.Sprintf("Weak security header: %s", name)),
			Remediation: fmt.Sprintf("Tighten the %s header to a stricter policy.", name),
			Source:      headergrade.ProviderName,
		})
	}
	return findings
}

func (n *Normalizer) tlsFindings(report tlsgrade.Report) []engine.Finding {
	findings := []engine.Finding{{
		Severity:    GradeSeverity(report.Grade),
		Title:       fmt.Sprintf("TLS configuration grade: %s", orAbsent(report.Grade)),
		Remediation: "Align protocol versions, cipher suites and the certificate chain with current TLS guidance.",
		Source:      tlsgrade.ProviderName,
	}}
	if !report.CertNotAfter.IsZero() {
		remaining := report.CertNotAfter.Sub(n.now())
		if remaining < CertExpiryWindow {
			days := int(remaining.Hours() / 24)
			if days < 0 {
				days = 0
			}
			findings = append(findings, engine.Finding{
				Severity:    engine.SeverityMedium,
				Title:       fmt.Sprintf("Certificate expires in %d days", days),
				Remediation: "Renew the certificate before it lapses.",
				Source:      tlsgrade.ProviderName,
			})
		}
	}
	return findings
}

func (n *Normalizer) exposureFindings(report exposure.Report) []engine.Finding {
	var findings []engine.Finding
	for _, port := range report.Ports {
		severity := engine.SeverityMedium
		if highRiskPorts[port] {
			severity = engine.SeverityHigh
		}
		findings = append(findings, engine.Finding{
			Severity:    severity,
			Title:       portTitle(port),
			Remediation: "Close the port or restrict it to trusted networks if the service is not meant to be public.",
			Source:      exposure.ProviderName,
		})
	}
	for _, vuln := range report.Vulns {
		findings = append(findings, engine.Finding{
			Severity:    engine.SeverityMedium,
			Title:       clampTitle(fmt.Sprintf("Known vulnerability reported: %s", vuln)),
			Remediation: "Patch the affected service and confirm the advisory no longer applies.",
			Source:      exposure.ProviderName,
		})
	}
	return findings
}

// aiFindings validates each raw entry individually. A bad severity or title
// drops that entry only; an overlong remediation is truncated and kept.
func (n *Normalizer) aiFindings(report aianalyst.Report) []engine.Finding {
	var findings []engine.Finding
	for _, raw := range report.Raw {
		severity, ok := engine.ParseSeverity(raw.Severity)
		if !ok {
			n.logger.Debug().Str("severity", raw.Severity).Str("title", raw.Title).
				Msg("Dropping AI finding with unknown severity")
			continue
		}
		title := strings.TrimSpace(raw.Title)
		if title == "" || utf8.RuneCountInString(title) > engine.MaxTitleLen {
			n.logger.Debug().Str("title", raw.Title).
				Msg("Dropping AI finding with unusable title")
			continue
		}
		findings = append(findings, engine.Finding{
			Severity:    severity,
			Title:       title,
			Remediation: engine.TruncateRemediation(strings.TrimSpace(raw.Remediation)),
			Source:      aianalyst.ProviderName,
		})
	}
	return findings
}

func portTitle(port int) string {
	if name, ok := portNames[port]; ok {
		return fmt.Sprintf("Exposed service on port %d (%s)", port, name)
	}
	return fmt.Sprintf("Exposed service on port %d", port)
}

func orAbsent(grade string) string {
	if strings.TrimSpace(grade) == "" {
		return "absent"
	}
	return grade
}

func clampTitle(title string) string {
	if utf8.RuneCountInString(title) <= engine.MaxTitleLen {
		return title
	}
	runes := []rune(title)
	return string(runes[:engine.MaxTitleLen])
}
