// pkg/config/sources.go
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is stripped from environment variables before mapping them onto
// config keys.
const EnvPrefix = "SCANMUX_"

// Source priorities. Lower values load first, higher values override.
const (
	PriorityDefaults = 0
	PriorityFile     = 10
	PriorityEnv      = 20
	PriorityFlags    = 30
	PriorityDebug    = 40
	PriorityOverride = 50
)

// ConfigSource is one layer in the configuration loading chain.
type ConfigSource interface {
	// Name identifies the source in error messages.
	Name() string
	// Priority orders loading across sources.
	Priority() int
	// Load merges the source's values into the Koanf instance.
	Load(k *koanf.Koanf) error
}

// DefaultSources returns the standard loading chain: hardcoded defaults, an
// optional YAML file, SCANMUX_ environment variables, command-line flags and
// the --debug override.
func DefaultSources(configFilePath string, flags *pflag.FlagSet, debug bool) []ConfigSource {
	sources := []ConfigSource{
		defaultsSource{},
		fileSource{path: configFilePath},
		envSource{},
	}
	if flags != nil {
		sources = append(sources, flagSource{flags: flags})
	}
	if debug {
		sources = append(sources, debugSource{})
	}
	return sources
}

type defaultsSource struct{}

func (defaultsSource) Name() string  { return "defaults" }
func (defaultsSource) Priority() int { return PriorityDefaults }

func (defaultsSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil)
}

// fileSource loads an optional YAML config file. A missing file is an error
// only because the path was given explicitly; an empty path is skipped.
type fileSource struct {
	path string
}

func (s fileSource) Name() string  { return fmt.Sprintf("file (%s)", s.path) }
func (s fileSource) Priority() int { return PriorityFile }

func (s fileSource) Load(k *koanf.Koanf) error {
	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); err != nil {
		return fmt.Errorf("config file not readable: %w", err)
	}
	return k.Load(file.Provider(s.path), yaml.Parser())
}

// envSource maps SCANMUX_ environment variables onto config keys, lowercased
// with underscores becoming the key delimiter: SCANMUX_SERVER_PORT is
// server.port.
type envSource struct{}

func (envSource) Name() string  { return "environment" }
func (envSource) Priority() int { return PriorityEnv }

func (envSource) Load(k *koanf.Koanf) error {
	return k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_", ".")
	}), nil)
}

// flagSource merges pflag values. Only flags with dotted names address config
// keys (--log.level onto log.level); ordinary CLI flags like --output stay
// out of the tree so they cannot shadow config sections. Dotted flags left at
// their default do not override values an earlier source already set.
type flagSource struct {
	flags *pflag.FlagSet
}

func (flagSource) Name() string  { return "flags" }
func (flagSource) Priority() int { return PriorityFlags }

func (s flagSource) Load(k *koanf.Koanf) error {
	provider := posflag.ProviderWithFlag(s.flags, ".", k, func(f *pflag.Flag) (string, any) {
		if !strings.Contains(f.Name, ".") {
			return "", nil
		}
		return f.Name, posflag.FlagVal(s.flags, f)
	})
	return k.Load(provider, nil)
}

// OverrideSource forces the given keys over every other layer. The CLI uses
// it for per-run flag overrides whose flag names do not match config keys
// (--ping onto probe.ping.enabled, --port onto server.port).
func OverrideSource(values map[string]any) ConfigSource {
	return overrideSource{values: values}
}

type overrideSource struct {
	values map[string]any
}

func (overrideSource) Name() string  { return "overrides" }
func (overrideSource) Priority() int { return PriorityOverride }

func (s overrideSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(s.values, "."), nil)
}

// debugSource forces verbose logging when --debug is set, winning over every
// other source.
type debugSource struct{}

func (debugSource) Name() string  { return "debug flag" }
func (debugSource) Priority() int { return PriorityDebug }

func (debugSource) Load(k *koanf.Koanf) error {
	return k.Load(confmap.Provider(map[string]any{"log.level": "debug"}, "."), nil)
}
