package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanmux/scanmux/pkg/config"
)

// executeCommand runs the full CLI with the given arguments, capturing output.
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	root := NewCommand()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)

	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	root := NewCommand()

	var names []string
	for _, sub := range root.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "scan")
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "providers")
	assert.Contains(t, names, "version")
}

func TestRootCommand_RejectsMissingConfigFile(t *testing.T) {
	_, _, err := executeCommand(t, "--config", "/nonexistent/scanmux.yaml", "providers")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestProvidersCommand_ListsAllAdapters(t *testing.T) {
	stdout, _, err := executeCommand(t, "providers")
	require.NoError(t, err)

	for _, name := range []string{"headergrade", "tlsgrade", "exposure", "aianalyst"} {
		assert.Contains(t, stdout, name)
	}
	// The grading providers need no credentials; the key-bearing ones start
	// unconfigured in a clean environment.
	assert.Contains(t, stdout, "yes")
	assert.Contains(t, stdout, "no")
	assert.Contains(t, stdout, "api.ssllabs.com")
}

func TestVersionCommand_PrintsBuildMetadata(t *testing.T) {
	stdout, _, err := executeCommand(t, "version")
	require.NoError(t, err)

	assert.Contains(t, stdout, "scanmux")
	assert.Contains(t, stdout, version)
}

func TestManagerFromCommand_MissingManager(t *testing.T) {
	cmd := &cobra.Command{}

	_, err := managerFromCommand(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration manager missing")
}

func TestServeCommand_DeclaresOverrideFlags(t *testing.T) {
	cmd := NewServeCommand()

	assert.NotNil(t, cmd.Flags().Lookup("host"))
	assert.NotNil(t, cmd.Flags().Lookup("port"))
}

func TestConfigureServerLogging_AppliesConfiguredLevel(t *testing.T) {
	restoreLogging(t)
	cmd := newLoggingTestCommand(0, false)

	require.NoError(t, configureServerLogging(cmd, config.LogConfig{Level: "warn", Format: "json"}))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
}

func TestConfigureServerLogging_VerbosityFlagWins(t *testing.T) {
	restoreLogging(t)
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	cmd := newLoggingTestCommand(1, false)

	require.NoError(t, configureServerLogging(cmd, config.LogConfig{Level: "error", Format: "json"}))
	assert.Equal(t, zerolog.InfoLevel, zerolog.GlobalLevel(), "configured level must not override -v")
}

func TestConfigureServerLogging_RejectsUnknownLevel(t *testing.T) {
	restoreLogging(t)
	cmd := newLoggingTestCommand(0, false)

	err := configureServerLogging(cmd, config.LogConfig{Level: "loud", Format: "json"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown log level "loud"`)
}

func TestConfigureServerLogging_WritesToFile(t *testing.T) {
	restoreLogging(t)
	logFile := filepath.Join(t.TempDir(), "server.log")
	cmd := newLoggingTestCommand(0, false)

	require.NoError(t, configureServerLogging(cmd, config.LogConfig{Level: "info", Format: "json", File: logFile}))
	log.Info().Msg("listener ready")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "listener ready")
}

func newLoggingTestCommand(verbosity int, verbose bool) *cobra.Command {
	cmd := &cobra.Command{}
	cmd.Flags().CountP("verbosity", "v", "")
	cmd.Flags().Bool("verbose", false, "")
	for range verbosity {
		_ = cmd.Flags().Set("verbosity", "+1")
	}
	if verbose {
		_ = cmd.Flags().Set("verbose", "true")
	}
	return cmd
}

func restoreLogging(t *testing.T) {
	t.Helper()
	prevLevel := zerolog.GlobalLevel()
	prevLogger := log.Logger
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(prevLevel)
		log.Logger = prevLogger
	})
}
