// Package config loads the testpilot configuration from global, local, and
// environment sources with validated defaults.
// Related: internal/session/session.go, cmd/testpilot
// Tags: config, koanf, validation
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Configuration represents the testpilot CLI tool configuration.
type Configuration struct {
	// Agent backend invocation.
	AgentCmd       string   `koanf:"agent_cmd" json:"agent_cmd" validate:"required"`
	AgentArgs      []string `koanf:"agent_args" json:"agent_args"`
	AgentWriteArgs []string `koanf:"agent_write_args" json:"agent_write_args"`
	CustomAgentCmd string   `koanf:"custom_agent_cmd" json:"custom_agent_cmd"`

	// Test execution.
	TestCommand       string `koanf:"test_command" json:"test_command"`
	PreferAgentRunner bool   `koanf:"prefer_agent_runner" json:"prefer_agent_runner"`
	FreshnessWindowMs int    `koanf:"freshness_window_ms" json:"freshness_window_ms" validate:"omitempty,min=0,max=60000"`

	// Isolation.
	UseIsolation     bool   `koanf:"use_isolation" json:"use_isolation"`
	IsolationBaseDir string `koanf:"isolation_base_dir" json:"isolation_base_dir" validate:"required"`
	IsolationRef     string `koanf:"isolation_ref" json:"isolation_ref"`

	// Perspectives.
	GeneratePerspectives bool `koanf:"generate_perspectives" json:"generate_perspectives"`

	// Output locations.
	ReportsDir string `koanf:"reports_dir" json:"reports_dir" validate:"required"`
	StorageDir string `koanf:"storage_dir" json:"storage_dir" validate:"required"`

	// Timeout in seconds for each agent invocation (0 = no timeout).
	Timeout int `koanf:"timeout" json:"timeout" validate:"omitempty,min=1,max=604800"`

	ShowProgress bool `koanf:"show_progress" json:"show_progress"`
	// AutoAccept runs the default choice of any offered prompt without
	// asking (also settable via TESTPILOT_YES).
	AutoAccept bool `koanf:"auto_accept" json:"auto_accept"`
}

// Load loads configuration from global, local, and environment sources.
// Priority: environment variables > local config > global config > defaults.
func Load(localConfigPath string) (*Configuration, error) {
	k := koanf.New(".")

	for key, value := range GetDefaults() {
		k.Set(key, value)
	}

	homeDir, err := os.UserHomeDir()
	if err == nil {
		globalPath := filepath.Join(homeDir, ".testpilot", "config.json")
		if _, err := os.Stat(globalPath); err == nil {
			if err := k.Load(file.Provider(globalPath), json.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load global config: %w", err)
			}
		}
	}

	if localConfigPath != "" {
		if _, err := os.Stat(localConfigPath); err == nil {
			if err := k.Load(file.Provider(localConfigPath), json.Parser()); err != nil {
				return nil, fmt.Errorf("failed to load local config: %w", err)
			}
		}
	}

	k.Load(env.Provider("TESTPILOT_", ".", envTransform), nil)

	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	if cfg.CustomAgentCmd != "" && !strings.Contains(cfg.CustomAgentCmd, "{{PROMPT}}") {
		return nil, fmt.Errorf("custom_agent_cmd must contain {{PROMPT}} placeholder")
	}

	cfg.ReportsDir = expandHomePath(cfg.ReportsDir)
	cfg.StorageDir = expandHomePath(cfg.StorageDir)
	cfg.IsolationBaseDir = expandHomePath(cfg.IsolationBaseDir)

	if os.Getenv("TESTPILOT_YES") != "" {
		cfg.AutoAccept = true
	}

	return &cfg, nil
}

// envTransform converts environment variable names to config keys.
// Example: TESTPILOT_TEST_COMMAND -> test_command.
func envTransform(s string) string {
	return strings.ToLower(strings.TrimPrefix(s, "TESTPILOT_"))
}

// expandHomePath expands ~ to the user's home directory.
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
