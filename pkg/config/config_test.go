package config

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Helper to reset global variables for testing
func resetGlobalConfig() {
	k = nil
	once = sync.Once{}
}

func TestInitGlobalConfig_InitializesKoanfOnce(t *testing.T) {
	resetGlobalConfig()
	InitGlobalConfig()
	assert.NotNil(t, k, "Global koanf instance should be initialized")
}

func TestInitGlobalConfig_IsIdempotent(t *testing.T) {
	resetGlobalConfig()
	InitGlobalConfig()
	firstInstance := k
	InitGlobalConfig()
	secondInstance := k
	assert.Equal(t, firstInstance, secondInstance, "Koanf instance should not change on repeated InitGlobalConfig calls")
}

func TestInitGlobalConfig_KoanfUsesDotDelimiter(t *testing.T) {
	resetGlobalConfig()
	InitGlobalConfig()
	assert.Equal(t, ".", k.Delim(), "Koanf delimiter should be '.'")
}

func TestNewManager_InitializesManagerWithGlobalKoanf(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	assert.NotNil(t, manager, "Manager should not be nil")
	assert.NotNil(t, manager.koanfInstance, "Manager's koanfInstance should not be nil")
	assert.Equal(t, k, manager.koanfInstance, "Manager's koanfInstance should use the global Koanf instance")
}

func TestNewManager_MultipleManagersShareGlobalKoanf(t *testing.T) {
	resetGlobalConfig()
	manager1 := NewManager()
	manager2 := NewManager()
	assert.Equal(t, manager1.koanfInstance, manager2.koanfInstance, "All managers should share the same global Koanf instance")
}

func TestDefaultConfig_ReturnsExpectedDefaults(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "info", cfg.Log.Level, "Default log level should be 'info'")
	assert.Equal(t, "text", cfg.Log.Format, "Default log format should be 'text'")
	assert.Equal(t, "", cfg.Log.File, "Default log file should be empty")
	assert.Equal(t, "quick", cfg.Scan.Profile, "Default scan profile should be 'quick'")
	assert.Equal(t, 10, cfg.Providers.TLSGrade.Attempts, "Default TLS grading attempt budget should be 10")
	assert.Equal(t, "15s", cfg.Providers.TLSGrade.Interval, "Default TLS grading poll interval should be 15s")
	assert.True(t, cfg.Providers.HeaderGrade.Enabled, "Header grading should be enabled by default")
	assert.Empty(t, cfg.Providers.Exposure.APIKey, "Exposure API key should be empty by default")
	assert.Equal(t, []string{"*"}, cfg.Server.Cors, "Default CORS origins should be permissive")
	assert.True(t, cfg.Output.Color, "Colored output should be on by default")
}

func TestConfigValidate_AcceptsDefaults(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())
}

func TestConfigValidate_RejectsUnknownEnums(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "shouty" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"scan profile", func(c *Config) { c.Scan.Profile = "paranoid" }},
		{"output format", func(c *Config) { c.Output.Format = "csv" }},
		{"ai backend", func(c *Config) { c.Providers.AIAnalyst.Backend = "skynet" }},
		{"server port", func(c *Config) { c.Server.Port = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestManager_Load_RejectsInvalidEnumFromEnv(t *testing.T) {
	resetGlobalConfig()

	t.Setenv("SCANMUX_LOG_FORMAT", "xml")

	manager := NewManager()
	err := manager.Load(nil, "")
	assert.Error(t, err, "An invalid enum from any source should fail the load")
	assert.Contains(t, err.Error(), "log.format")
}

func TestManager_Load_LoadsDefaultsWhenNoFlags(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	err := manager.Load(nil, "")
	assert.NoError(t, err, "Load should not return error when loading defaults")
	cfg := manager.Get()
	assert.Equal(t, "info", cfg.Log.Level, "Default log level should be 'info'")
	assert.Equal(t, "text", cfg.Log.Format, "Default log format should be 'text'")
	assert.Equal(t, 8090, cfg.Server.Port, "Default server port should be 8090")
}

func TestManager_Load_OverridesWithFlags(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	flags := newTestFlagSet()
	_ = flags.Set("log.level", "error")
	_ = flags.Set("log.format", "json")
	_ = flags.Set("log.file", "/tmp/test.log")
	err := manager.Load(flags, "")
	assert.NoError(t, err, "Load should not return error when loading with flags")
	cfg := manager.Get()
	assert.Equal(t, "error", cfg.Log.Level, "Flag should override log level")
	assert.Equal(t, "json", cfg.Log.Format, "Flag should override log format")
	assert.Equal(t, "/tmp/test.log", cfg.Log.File, "Flag should override log file")
}

func TestManager_Load_DebugFlagSetsLogLevelToDebug(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	flags := newTestFlagSet()
	_ = flags.Set("debug", "true")
	err := manager.Load(flags, "")
	assert.NoError(t, err, "Load should not return error when loading with debug flag")
	cfg := manager.Get()
	assert.Equal(t, "debug", cfg.Log.Level, "Debug flag should set log level to debug")
}

func TestManager_Load_ConfigFileOverridesDefaults(t *testing.T) {
	resetGlobalConfig()

	dir := t.TempDir()
	path := filepath.Join(dir, "scanmux.yaml")
	content := []byte("log:\n  level: warn\nproviders:\n  tlsgrade:\n    attempts: 4\n")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	manager := NewManager()
	err := manager.Load(nil, path)
	assert.NoError(t, err, "Load should not return error with a valid config file")

	cfg := manager.Get()
	assert.Equal(t, "warn", cfg.Log.Level, "Config file should override log level")
	assert.Equal(t, 4, cfg.Providers.TLSGrade.Attempts, "Config file should override TLS grading attempts")
	assert.Equal(t, "text", cfg.Log.Format, "Untouched keys should keep defaults")
}

func TestManager_Load_MissingConfigFileErrors(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	err := manager.Load(nil, "/nonexistent/scanmux.yaml")
	assert.Error(t, err, "An explicitly given but unreadable config file should error")
}

func TestManager_Load_EnvVarsOverrideDefaults(t *testing.T) {
	resetGlobalConfig()

	t.Setenv("SCANMUX_LOG_LEVEL", "warn")
	t.Setenv("SCANMUX_LOG_FORMAT", "json")
	t.Setenv("SCANMUX_SERVER_PORT", "9999")

	manager := NewManager()
	err := manager.Load(nil, "")
	assert.NoError(t, err, "Load should not return error when loading with env vars")

	cfg := manager.Get()
	assert.Equal(t, "warn", cfg.Log.Level, "ENV var should override log level")
	assert.Equal(t, "json", cfg.Log.Format, "ENV var should override log format")
	assert.Equal(t, 9999, cfg.Server.Port, "ENV var should override server port")
}

func TestManager_Load_FlagsOverrideEnvVars(t *testing.T) {
	resetGlobalConfig()

	t.Setenv("SCANMUX_LOG_LEVEL", "warn")

	manager := NewManager()
	flags := newTestFlagSet()
	_ = flags.Set("log.level", "error") // Flag should win over env var

	err := manager.Load(flags, "")
	assert.NoError(t, err, "Load should not return error")

	cfg := manager.Get()
	assert.Equal(t, "error", cfg.Log.Level, "CLI flag should override ENV var")
}

func TestManager_Load_EnvVarNamingConvention(t *testing.T) {
	resetGlobalConfig()

	// Nested key mapping: SCANMUX_PROVIDERS_EXPOSURE_APIKEY -> providers.exposure.apikey
	t.Setenv("SCANMUX_PROVIDERS_EXPOSURE_APIKEY", "test-key")
	t.Setenv("SCANMUX_SERVER_ADDR", "0.0.0.0")

	manager := NewManager()
	err := manager.Load(nil, "")
	assert.NoError(t, err, "Load should not return error")

	cfg := manager.Get()
	assert.Equal(t, "test-key", cfg.Providers.Exposure.APIKey, "ENV var should map to nested config key")
	assert.Equal(t, "0.0.0.0", cfg.Server.Addr, "ENV var should map to nested config key")
}

func TestManager_Section_ReturnsProviderSettings(t *testing.T) {
	resetGlobalConfig()

	t.Setenv("SCANMUX_PROVIDERS_HEADERGRADE_TIMEOUT", "3s")

	manager := NewManager()
	require.NoError(t, manager.Load(nil, ""))

	section := manager.Section("providers.headergrade")
	assert.Equal(t, "3s", section["timeout"], "Section should expose the merged provider settings")
	assert.Equal(t, true, section["enabled"], "Section should include default keys")
}

func TestManager_Section_UnknownKeyReturnsEmptyMap(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	require.NoError(t, manager.Load(nil, ""))

	section := manager.Section("providers.nope")
	assert.NotNil(t, section, "Unknown section should be an empty map, not nil")
	assert.Empty(t, section, "Unknown section should have no keys")
}

func TestDefaultSources_OrderedByPriority(t *testing.T) {
	flags := newTestFlagSet()
	sources := DefaultSources("", flags, true)

	require.Len(t, sources, 5, "Defaults, file, env, flags and debug sources expected")
	assert.Equal(t, PriorityDefaults, sources[0].Priority())
	assert.Equal(t, PriorityDebug, sources[len(sources)-1].Priority())
}

func TestBindFlags_AddsDebugFlag(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	debugFlag := flags.Lookup("debug")
	assert.NotNil(t, debugFlag, "BindFlags should add a 'debug' flag")
	assert.Equal(t, "Enable debug logging", debugFlag.Usage, "Debug flag should have correct usage")
	assert.Equal(t, "false", debugFlag.DefValue, "Debug flag should default to false")
}

func TestBindFlags_DebugFlagCanBeSet(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	err := flags.Set("debug", "true")
	assert.NoError(t, err, "Should be able to set 'debug' flag")
	val, err := flags.GetBool("debug")
	assert.NoError(t, err, "Should be able to get 'debug' flag value after setting")
	assert.True(t, val, "Value of 'debug' flag should be true after setting")
}

func TestManager_Load_NonDottedFlagsStayOutOfConfig(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	flags := newTestFlagSet()
	flags.StringP("output", "o", "text", "")
	_ = flags.Set("output", "json")
	err := manager.Load(flags, "")
	assert.NoError(t, err, "plain CLI flags must not break the load")
	cfg := manager.Get()
	assert.Equal(t, "text", cfg.Output.Format, "plain CLI flags must not shadow config sections")
}

func TestManager_Load_OverrideSourceWinsOverFlags(t *testing.T) {
	resetGlobalConfig()
	manager := NewManager()
	flags := newTestFlagSet()
	_ = flags.Set("log.level", "warn")

	sources := DefaultSources("", flags, false)
	sources = append(sources, OverrideSource(map[string]any{
		"log.level":          "error",
		"probe.ping.enabled": false,
	}))
	err := manager.LoadWithSources(sources)
	require.NoError(t, err)

	cfg := manager.Get()
	assert.Equal(t, "error", cfg.Log.Level, "override source should beat flag values")
	assert.False(t, cfg.Probe.Ping.Enabled)
}

func newTestFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log.level", "info", "")
	flags.String("log.format", "text", "")
	flags.String("log.file", "", "")
	flags.Bool("debug", false, "")
	return flags
}
