package config

// GetDefaults returns the default configuration values.
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"agent_cmd":             "cursor-agent",
		"agent_args":            []string{"-p", "--output-format", "text"},
		"agent_write_args":      []string{"--force"},
		"custom_agent_cmd":      "",
		"test_command":          "",
		"prefer_agent_runner":   false,
		"freshness_window_ms":   1000,
		"use_isolation":         false,
		"isolation_base_dir":    "~/.testpilot/worktrees",
		"isolation_ref":         "HEAD",
		"generate_perspectives": true,
		"reports_dir":           "./.testpilot/reports",
		"storage_dir":           "~/.testpilot/storage",
		"timeout":               600,
		"show_progress":         true,
		"auto_accept":           false,
	}
}
