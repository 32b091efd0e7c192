// Package config tests configuration loading, merging hierarchy, and environment variable overrides.
// Related: internal/config/config.go
// Tags: config, loading, merging, env-vars, json, precedence
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies defaults apply when no config files exist.
// Requires HOME isolation to avoid loading a real global config. NO
// t.Parallel() due to environment changes.
func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "cursor-agent", cfg.AgentCmd)
	assert.Equal(t, []string{"-p", "--output-format", "text"}, cfg.AgentArgs)
	assert.Equal(t, 1000, cfg.FreshnessWindowMs)
	assert.Equal(t, 600, cfg.Timeout)
	assert.True(t, cfg.GeneratePerspectives)
	assert.False(t, cfg.UseIsolation)
	assert.Equal(t, "HEAD", cfg.IsolationRef)
	assert.False(t, cfg.AutoAccept)
}

func TestLoad_HomePathsExpanded(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tmpDir, ".testpilot", "worktrees"), cfg.IsolationBaseDir)
	assert.Equal(t, filepath.Join(tmpDir, ".testpilot", "storage"), cfg.StorageDir)
	assert.Equal(t, "./.testpilot/reports", cfg.ReportsDir)
}

func TestLoad_GlobalConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	globalDir := filepath.Join(tmpDir, ".testpilot")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	globalContent := `{"test_command": "npm test", "timeout": 120}`
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalContent), 0644))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "npm test", cfg.TestCommand)
	assert.Equal(t, 120, cfg.Timeout)
}

func TestLoad_LocalOverridesGlobal(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	globalDir := filepath.Join(tmpDir, ".testpilot")
	require.NoError(t, os.MkdirAll(globalDir, 0755))
	globalContent := `{"test_command": "npm test", "use_isolation": true}`
	require.NoError(t, os.WriteFile(filepath.Join(globalDir, "config.json"), []byte(globalContent), 0644))

	localPath := filepath.Join(tmpDir, "local.json")
	localContent := `{"test_command": "go test ./..."}`
	require.NoError(t, os.WriteFile(localPath, []byte(localContent), 0644))

	cfg, err := Load(localPath)
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", cfg.TestCommand)
	// Global values not overridden locally still apply.
	assert.True(t, cfg.UseIsolation)
}

func TestLoad_EnvOverride(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("TESTPILOT_TEST_COMMAND", "pnpm test")
	t.Setenv("TESTPILOT_FRESHNESS_WINDOW_MS", "2500")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "pnpm test", cfg.TestCommand)
	assert.Equal(t, 2500, cfg.FreshnessWindowMs)
}

func TestLoad_YesEnvEnablesAutoAccept(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("TESTPILOT_YES", "1")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.True(t, cfg.AutoAccept)
}

func TestLoad_ValidationError_TimeoutOutOfRange(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	localPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(localPath, []byte(`{"timeout": 999999999}`), 0644))

	_, err := Load(localPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_ValidationError_FreshnessWindowOutOfRange(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	localPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(localPath, []byte(`{"freshness_window_ms": 100000}`), 0644))

	_, err := Load(localPath)
	require.Error(t, err)
}

func TestLoad_CustomAgentCmdRequiresPlaceholder(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	localPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(localPath, []byte(`{"custom_agent_cmd": "my-agent --prompt"}`), 0644))

	_, err := Load(localPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "{{PROMPT}}")
}

func TestLoad_CustomAgentCmdWithPlaceholder(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	localPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(localPath, []byte(`{"custom_agent_cmd": "my-agent --prompt {{PROMPT}}"}`), 0644))

	cfg, err := Load(localPath)
	require.NoError(t, err)
	assert.Equal(t, "my-agent --prompt {{PROMPT}}", cfg.CustomAgentCmd)
}

func TestLoad_MalformedLocalConfig(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	localPath := filepath.Join(tmpDir, "config.json")
	require.NoError(t, os.WriteFile(localPath, []byte(`{not json`), 0644))

	_, err := Load(localPath)
	require.Error(t, err)
}

func TestLoad_MissingLocalConfigIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)

	cfg, err := Load(filepath.Join(tmpDir, "does-not-exist.json"))
	require.NoError(t, err)
	assert.Equal(t, "cursor-agent", cfg.AgentCmd)
}

func TestGetDefaults_Stable(t *testing.T) {
	t.Parallel()

	a := GetDefaults()
	b := GetDefaults()
	assert.Equal(t, a, b)
	assert.Contains(t, a, "agent_cmd")
	assert.Contains(t, a, "freshness_window_ms")
}
