// pkg/config/config.go
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Global Koanf instance, initialized once at startup.
var (
	k    *koanf.Koanf
	once sync.Once
)

// InitGlobalConfig initializes the global Koanf instance. It should be called
// early in the application lifecycle, before Load.
func InitGlobalConfig() {
	once.Do(func() {
		k = koanf.New(".")
	})
}

// Manager handles loading and accessing application configuration.
type Manager struct {
	koanfInstance *koanf.Koanf
	currentConfig Config
	mu            sync.RWMutex // To protect currentConfig during runtime updates
}

// NewManager creates a Manager backed by the global Koanf instance,
// initializing it if not already done.
func NewManager() *Manager {
	InitGlobalConfig()
	return &Manager{
		koanfInstance: k,
	}
}

// DefaultConfig returns a Config populated with the baseline values used when
// no other source overrides them.
func DefaultConfig() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			File:   "",
		},
		Scan: ScanConfig{
			Profile: "quick",
			Timeout: "5m",
		},
		Probe: ProbeConfig{
			Timeout:   "6s",
			Redirects: 3,
			UserAgent: "scanmux-probe/1.0",
			Ping: ProbePingConfig{
				Enabled: true,
				Count:   3,
			},
		},
		Providers: ProvidersConfig{
			HeaderGrade: HeaderGradeConfig{Enabled: true, Timeout: "10s", Follow: true},
			TLSGrade:    TLSGradeConfig{Enabled: true, Interval: "15s", Attempts: 10, Timeout: "10s", Cached: true},
			Exposure:    ExposureConfig{Enabled: true, Timeout: "10s"},
			AIAnalyst:   AIAnalystConfig{Enabled: true, Backend: "openai", Timeout: "20s", Limit: 5},
		},
		Server: DefaultServerConfig(),
		Output: OutputConfig{
			Format: "text",
			Color:  true,
		},
	}
}

// Load loads configuration from the standard sources in precedence order and
// populates the manager's currentConfig.
//
// Configuration precedence (highest to lowest):
//  1. Command-line flags (--log.level=debug)
//  2. Environment variables (SCANMUX_LOG_LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
//
// Environment variables use the SCANMUX_ prefix and underscore-to-dot mapping:
//
//	SCANMUX_LOG_LEVEL    -> log.level
//	SCANMUX_SERVER_PORT  -> server.port
//
// For custom source ordering, use LoadWithSources() instead.
func (m *Manager) Load(flags *pflag.FlagSet, customConfigFilePath string) error {
	debug := false
	if flags != nil {
		debugFlag := flags.Lookup("debug")
		if debugFlag != nil && debugFlag.Value.String() == "true" {
			debug = true
		}
	}

	sources := DefaultSources(customConfigFilePath, flags, debug)
	return m.LoadWithSources(sources)
}

// LoadWithSources loads configuration from the provided sources in priority
// order. Sources with lower priority values are loaded first, higher priority
// sources override lower priority values.
//
// This method allows custom source ordering and additional sources (e.g., a
// secrets manager) to be inserted into the loading chain.
func (m *Manager) LoadWithSources(sources []ConfigSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	sort.Slice(sources, func(i, j int) bool {
		return sources[i].Priority() < sources[j].Priority()
	})

	for _, src := range sources {
		if err := src.Load(m.koanfInstance); err != nil {
			return fmt.Errorf("error loading config from %s: %w", src.Name(), err)
		}
	}

	var newCfg Config
	if err := m.koanfInstance.UnmarshalWithConf("", &newCfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("error unmarshaling final config: %w", err)
	}
	if err := newCfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	m.currentConfig = newCfg

	return nil
}

// Validate checks the enumerated settings. Durations and numeric tunables are
// left to their consumers, which fall back to defaults on bad values; enums
// have no sensible fallback and fail the load instead.
func (c Config) Validate() error {
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("unknown log.level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log.format %q (expected text or json)", c.Log.Format)
	}
	switch c.Scan.Profile {
	case "quick", "full":
	default:
		return fmt.Errorf("unknown scan.profile %q (expected quick or full)", c.Scan.Profile)
	}
	switch c.Output.Format {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output.format %q (expected text, json or yaml)", c.Output.Format)
	}
	switch c.Providers.AIAnalyst.Backend {
	case "openai", "gemini":
	default:
		return fmt.Errorf("unknown providers.aianalyst.backend %q (expected openai or gemini)", c.Providers.AIAnalyst.Backend)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cfgCopy := m.currentConfig
	return cfgCopy
}

// GetValue retrieves a configuration value by key path. Branch keys return
// the nested map. Returns nil if the key doesn't exist.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.koanfInstance.Get(key)
}

// Section returns the nested settings map under a key, or an empty map when
// the key is absent or not a branch. Provider sections are handed to adapter
// Init this way: Section("providers.headergrade").
func (m *Manager) Section(key string) map[string]any {
	if section, ok := m.GetValue(key).(map[string]any); ok {
		return section
	}
	return map[string]any{}
}

// DefaultConfigAsMap converts DefaultConfig to the flat map consumed by
// Koanf's confmap provider, so Koanf knows every key up front.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		// Log configuration
		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,
		"log.file":   def.Log.File,

		// Scan configuration
		"scan.profile": def.Scan.Profile,
		"scan.timeout": def.Scan.Timeout,

		// Probe configuration
		"probe.timeout":      def.Probe.Timeout,
		"probe.redirects":    def.Probe.Redirects,
		"probe.useragent":    def.Probe.UserAgent,
		"probe.ping.enabled": def.Probe.Ping.Enabled,
		"probe.ping.count":   def.Probe.Ping.Count,

		// Provider configuration
		"providers.headergrade.enabled":  def.Providers.HeaderGrade.Enabled,
		"providers.headergrade.endpoint": def.Providers.HeaderGrade.Endpoint,
		"providers.headergrade.timeout":  def.Providers.HeaderGrade.Timeout,
		"providers.headergrade.follow":   def.Providers.HeaderGrade.Follow,
		"providers.tlsgrade.enabled":     def.Providers.TLSGrade.Enabled,
		"providers.tlsgrade.endpoint":    def.Providers.TLSGrade.Endpoint,
		"providers.tlsgrade.interval":    def.Providers.TLSGrade.Interval,
		"providers.tlsgrade.attempts":    def.Providers.TLSGrade.Attempts,
		"providers.tlsgrade.timeout":     def.Providers.TLSGrade.Timeout,
		"providers.tlsgrade.cached":      def.Providers.TLSGrade.Cached,
		"providers.exposure.enabled":     def.Providers.Exposure.Enabled,
		"providers.exposure.endpoint":    def.Providers.Exposure.Endpoint,
		"providers.exposure.apikey":      def.Providers.Exposure.APIKey,
		"providers.exposure.timeout":     def.Providers.Exposure.Timeout,
		"providers.aianalyst.enabled":    def.Providers.AIAnalyst.Enabled,
		"providers.aianalyst.backend":    def.Providers.AIAnalyst.Backend,
		"providers.aianalyst.model":      def.Providers.AIAnalyst.Model,
		"providers.aianalyst.apikey":     def.Providers.AIAnalyst.APIKey,
		"providers.aianalyst.timeout":    def.Providers.AIAnalyst.Timeout,
		"providers.aianalyst.limit":      def.Providers.AIAnalyst.Limit,

		// Server configuration
		"server.addr":           def.Server.Addr,
		"server.port":           def.Server.Port,
		"server.jobs":           def.Server.Jobs,
		"server.cors":           def.Server.Cors,
		"server.timeouts.read":  def.Server.Timeouts.Read,
		"server.timeouts.write": def.Server.Timeouts.Write,

		// Output configuration
		"output.format": def.Output.Format,
		"output.color":  def.Output.Color,
	}
}

// BindFlags defines command-line flags corresponding to configuration
// settings. These flags allow overriding config file and environment
// variable settings, and should be bound when setting up Cobra commands.
// Dotted flag names address config keys directly.
func BindFlags(flags *pflag.FlagSet) {
	var flagvar bool
	flags.BoolVar(&flagvar, "debug", false, "Enable debug logging")

	defaults := DefaultConfig()
	flags.String("log.level", defaults.Log.Level, "Log level (debug, info, warn, error)")

	// The main --config / -c flag for specifying the config file path is
	// defined on the root Cobra command's persistent flags.
}
