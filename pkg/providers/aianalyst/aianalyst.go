// Package aianalyst adapts an LLM backend into a scan provider. It feeds the
// target and the probe snapshot digest to the model and asks for candidate
// findings as strict JSON. The model's output is untrusted: it is decoded
// here but validated field by field during normalization.
package aianalyst

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"github.com/scanmux/scanmux/pkg/engine"
)

// ProviderName identifies this adapter in results and logs.
const ProviderName = "aianalyst"

// Config holds the adapter's tunables. APIKey empty means not configured.
type Config struct {
	Backend     string
	Model       string
	APIKey      string
	Timeout     time.Duration
	MaxFindings int
}

// RawFinding is one unvalidated finding as the model emitted it.
type RawFinding struct {
	Severity    string `json:"severity"`
	Title       string `json:"title"`
	Remediation string `json:"remediation"`
}

// Report is the decoded provider payload.
type Report struct {
	Backend string
	Model   string
	Raw     []RawFinding
}

// Provider implements engine.Payload.
func (Report) Provider() string { return ProviderName }

// backend is the minimal LLM surface the adapter needs: one prompt in, one
// text completion out.
type backend interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Adapter drives an LLM backend as a scan provider.
type Adapter struct {
	config  Config
	backend backend
	logger  zerolog.Logger
}

// New builds an Adapter with default settings and no credential.
func New() *Adapter {
	return &Adapter{
		config: Config{
			Backend:     "openai",
			Timeout:     20 * time.Second,
			MaxFindings: 5,
		},
		logger: log.With().Str("component", "AIAnalystAdapter").Logger(),
	}
}

// Init applies loosely-typed settings over the defaults.
func (a *Adapter) Init(settings map[string]any) error {
	cfg := a.config
	if backendVal, ok := settings["backend"]; ok {
		if b := strings.ToLower(cast.ToString(backendVal)); b != "" {
			cfg.Backend = b
		}
	}
	if modelVal, ok := settings["model"]; ok {
		cfg.Model = cast.ToString(modelVal)
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
	if maxVal, ok := settings["limit"]; ok {
		if n := cast.ToInt(maxVal); n > 0 {
			cfg.MaxFindings = n
		}
	}
	a.config = cfg
	a.backend = nil
	return nil
}

// Name implements engine.Provider.
func (a *Adapter) Name() string { return ProviderName }

// Assess asks the configured model to analyze the target. The probe snapshot
// is awaited through the context so the prompt can describe what the target
// actually served.
func (a *Adapter) Assess(ctx context.Context, target engine.Target) engine.ProviderResult {
	if a.config.APIKey == "" {
		return engine.Failed(ProviderName, engine.FailureNotConfigured, "no API key configured")
	}

	llm := a.backend
	if llm == nil {
		built, err := newBackend(a.config)
		if err != nil {
			return engine.Failed(ProviderName, engine.FailureInternal, err.Error())
		}
		llm = built
	}

	var snap *engine.Snapshot
	if source, ok := engine.SnapshotSourceFromContext(ctx); ok {
		snap = source(ctx)
	}

	prompt := buildPrompt(target, snap, a.config.MaxFindings)

	callCtx, cancel := context.WithTimeout(ctx, a.config.Timeout)
	defer cancel()

	text, err := llm.Complete(callCtx, prompt)
	if err != nil {
		if callCtx.Err() != nil {
			return engine.Failed(ProviderName, engine.FailureTimeout, callCtx.Err().Error())
		}
		return engine.Failed(ProviderName, engine.FailureRemoteError, err.Error())
	}

	raw, err := decodeFindings(text)
	if err != nil {
		return engine.Failed(ProviderName, engine.FailureMalformedResponse, err.Error())
	}
	if len(raw) > a.config.MaxFindings {
		raw = raw[:a.config.MaxFindings]
	}

	a.logger.Debug().Str("backend", a.config.Backend).Int("findings", len(raw)).
		Msg("AI analysis complete")
	return engine.Success(ProviderName, Report{
		Backend: a.config.Backend,
		Model:   a.config.Model,
		Raw:     raw,
	})
}

// newBackend selects the LLM client for the configured backend name.
func newBackend(cfg Config) (backend, error) {
	switch cfg.Backend {
	case "openai":
		return newOpenAIBackend(cfg.APIKey, cfg.Model), nil
	case "gemini":
		return newGeminiBackend(cfg.APIKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown AI backend: %s", cfg.Backend)
	}
}

func buildPrompt(target engine.Target, snap *engine.Snapshot, maxFindings int) string {
	var b strings.Builder
	b.WriteString("You are a web security analyst. Assess the following scan target and report potential issues.\n\n")
	fmt.Fprintf(&b, "Target: %s\n", target.URL())
	fmt.Fprintf(&b, "Host: %s (scheme %s, port %d)\n", target.Host, target.Scheme, target.EffectivePort())
	b.WriteString("\nProbe observations:\n")
	writeSnapshotDigest(&b, snap)
	b.WriteString("\nRespond with a single JSON object and nothing else, using exactly this shape:\n")
	b.WriteString(`{"findings":[{"severity":"low|medium|high|critical","title":"...","remediation":"..."}]}` + "\n")
	fmt.Fprintf(&b, "Report at most %d findings. Titles must be short statements of fact. ", maxFindings)
	b.WriteString("Only report issues supported by the observations above. If nothing stands out, return an empty findings array.\n")
	return b.String()
}

func writeSnapshotDigest(b *strings.Builder, snap *engine.Snapshot) {
	if snap == nil {
		b.WriteString("- no probe data available\n")
		return
	}
	if !snap.OK() {
		fmt.Fprintf(b, "- probe failed: %s\n", snap.Failure)
		return
	}
	fmt.Fprintf(b, "- HTTP status: %d\n", snap.StatusCode)
	if snap.FinalURL != "" {
		fmt.Fprintf(b, "- final URL after redirects: %s\n", snap.FinalURL)
	}
	names := make([]string, 0, len(snap.Headers))
	for name := range snap.Headers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(b, "- header %s: %s\n", name, snap.Headers[name])
	}
	if snap.TLS != nil {
		fmt.Fprintf(b, "- TLS: %s, %s, issued by %s, expires %s\n",
			snap.TLS.Version, snap.TLS.CipherSuite, snap.TLS.Issuer,
			snap.TLS.NotAfter.Format(time.RFC3339))
		if snap.TLS.SelfSigned {
			b.WriteString("- TLS certificate is self-signed\n")
		}
		if snap.TLS.Expired {
			b.WriteString("- TLS certificate is expired\n")
		}
	} else {
		b.WriteString("- no TLS in use\n")
	}
}

// decodeFindings parses the model output as the strict findings object.
// Models habitually wrap JSON in markdown fences, so those are stripped
// before decoding; anything else malformed is an error.
func decodeFindings(text string) ([]RawFinding, error) {
	payload := extractJSON(text)
	if payload == "" {
		return nil, fmt.Errorf("response contained no JSON object")
	}
	var wire struct {
		Findings []RawFinding `json:"findings"`
	}
	if err := json.Unmarshal([]byte(payload), &wire); err != nil {
		return nil, fmt.Errorf("response was not valid findings JSON: %w", err)
	}
	return wire.Findings, nil
}

func extractJSON(text string) string {
	trimmed := strings.TrimSpace(text)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```json")
		trimmed = strings.TrimPrefix(trimmed, "```")
		if idx := strings.LastIndex(trimmed, "```"); idx >= 0 {
			trimmed = trimmed[:idx]
		}
		trimmed = strings.TrimSpace(trimmed)
	}
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start < 0 || end <= start {
		return ""
	}
	return trimmed[start : end+1]
}
