//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"verify", "batch", "sources", "cache", "serve", "migrate"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "broker-verify", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCommandFlags(t *testing.T) {
	for _, tc := range []struct {
		cmd   *cobra.Command
		flags []string
	}{
		{verifyCmd, []string{"file", "name", "min-deposit", "regulators", "format", "fields", "skip-regulatory"}},
		{batchCmd, []string{"file", "limit", "concurrency", "output", "quiet", "max-sources", "no-save"}},
		{serveCmd, []string{"port"}},
		{sourcesRecommendedCmd, []string{"purpose"}},
		{sourcesListCmd, []string{"category"}},
		{sourcesHistoryCmd, []string{"limit"}},
	} {
		for _, name := range tc.flags {
			assert.NotNil(t, tc.cmd.Flags().Lookup(name), "%s should have --%s", tc.cmd.Name(), name)
		}
	}
	assert.Equal(t, "brokers.json", batchCmd.Flags().Lookup("file").DefValue)
	assert.Equal(t, "0", serveCmd.Flags().Lookup("port").DefValue)
}

func TestRootCmd_PersistentPreRunE_WithValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
store:
  driver: postgres
log:
  level: info
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(configContent), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestRootCmd_PersistentPreRunE_NoConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestRootCmd_PersistentPreRunE_BadLogLevel(t *testing.T) {
	tmpDir := t.TempDir()
	configContent := `
log:
  level: NOT_A_LEVEL
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(configContent), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init logger")
}

func TestRootCmd_PersistentPostRun_DoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		rootCmd.PersistentPostRun(rootCmd, nil)
	})
}

func TestRootCmd_PersistentPreRunE_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte("invalid: [yaml: bad"), 0o644))

	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(tmpDir))
	defer os.Chdir(origDir)

	oldCfg := cfg
	cfg = nil
	defer func() { cfg = oldCfg }()

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}
