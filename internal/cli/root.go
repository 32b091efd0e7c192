// Package cli provides Cobra-based CLI commands for the testpilot tool.
// It defines the user-facing commands: the test generation session (run),
// configuration inspection (config show), and version information.
package cli

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "testpilot",
	Short: "testpilot test generation automation",
	Long: `testpilot test generation automation

Generates tests for a code change through an external agent, optionally in a
disposable git worktree, runs them, and writes Markdown reports.`,
	Example: `  # Generate and run tests for a change
  testpilot run "Add retry to the fetch helper"

  # Generate in an isolated worktree and merge the tests back
  testpilot run --isolate "Refactor the session cache"

  # Skip the perspective table phase
  testpilot run --no-perspectives "Fix null handling in the parser"

  # Show the effective configuration
  testpilot config show`,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", ".testpilot/config.json", "Path to config file")
	rootCmd.PersistentFlags().BoolP("yes", "y", false, "Auto-accept prompts")
}
