// pkg/config/types.go
package config

// Config is the full application configuration tree. Durations are kept as
// strings here and parsed where they are consumed, so every value can come
// from YAML, environment variables or flags alike.
type Config struct {
	Log       LogConfig       `koanf:"log"`
	Scan      ScanConfig      `koanf:"scan"`
	Probe     ProbeConfig     `koanf:"probe"`
	Providers ProvidersConfig `koanf:"providers"`
	Server    ServerConfig    `koanf:"server"`
	Output    OutputConfig    `koanf:"output"`
}

// LogConfig controls the zerolog setup.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	File   string `koanf:"file"`
}

// ScanConfig carries scan-wide defaults.
type ScanConfig struct {
	Profile string `koanf:"profile"`
	Timeout string `koanf:"timeout"`
}

// ProbeConfig tunes the snapshot prober.
type ProbeConfig struct {
	Timeout   string          `koanf:"timeout"`
	Redirects int             `koanf:"redirects"`
	UserAgent string          `koanf:"useragent"`
	Ping      ProbePingConfig `koanf:"ping"`
}

// ProbePingConfig tunes the ICMP liveness diagnostic run after probe failures.
type ProbePingConfig struct {
	Enabled bool `koanf:"enabled"`
	Count   int  `koanf:"count"`
}

// ProvidersConfig groups the per-adapter settings.
type ProvidersConfig struct {
	HeaderGrade HeaderGradeConfig `koanf:"headergrade"`
	TLSGrade    TLSGradeConfig    `koanf:"tlsgrade"`
	Exposure    ExposureConfig    `koanf:"exposure"`
	AIAnalyst   AIAnalystConfig   `koanf:"aianalyst"`
}

// HeaderGradeConfig configures the header-grading adapter.
type HeaderGradeConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Timeout  string `koanf:"timeout"`
	Follow   bool   `koanf:"follow"`
}

// TLSGradeConfig configures the TLS-grading adapter and its poll loop.
type TLSGradeConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	Interval string `koanf:"interval"`
	Attempts int    `koanf:"attempts"`
	Timeout  string `koanf:"timeout"`
	Cached   bool   `koanf:"cached"`
}

// ExposureConfig configures the exposure-intelligence adapter. An empty
// APIKey leaves the adapter reporting not_configured.
type ExposureConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Endpoint string `koanf:"endpoint"`
	APIKey   string `koanf:"apikey"`
	Timeout  string `koanf:"timeout"`
}

// AIAnalystConfig configures the LLM-backed analyzer.
type AIAnalystConfig struct {
	Enabled bool   `koanf:"enabled"`
	Backend string `koanf:"backend"`
	Model   string `koanf:"model"`
	APIKey  string `koanf:"apikey"`
	Timeout string `koanf:"timeout"`
	Limit   int    `koanf:"limit"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Addr     string               `koanf:"addr"`
	Port     int                  `koanf:"port"`
	Jobs     int                  `koanf:"jobs"`
	Cors     []string             `koanf:"cors"`
	Timeouts ServerTimeoutsConfig `koanf:"timeouts"`
}

// ServerTimeoutsConfig holds the HTTP server deadlines.
type ServerTimeoutsConfig struct {
	Read  string `koanf:"read"`
	Write string `koanf:"write"`
}

// OutputConfig selects the default result rendering.
type OutputConfig struct {
	Format string `koanf:"format"`
	Color  bool   `koanf:"color"`
}

// DefaultServerConfig returns the server defaults used when no other source
// overrides them.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr: "127.0.0.1",
		Port: 8090,
		Jobs: 128,
		Cors: []string{"*"},
		Timeouts: ServerTimeoutsConfig{
			Read:  "15s",
			Write: "30s",
		},
	}
}
