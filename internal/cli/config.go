package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"testpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage testpilot configuration",
	Long: `Manage testpilot configuration settings.

Configuration is loaded with the following priority (highest to lowest):
  1. Environment variables (TESTPILOT_*)
  2. Project config (.testpilot/config.json)
  3. User config (~/.testpilot/config.json)
  4. Built-in defaults`,
	Example: `  # Show current configuration
  testpilot config show`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current effective configuration",
	Long: `Display the current effective configuration values.

Shows the merged result of defaults, user config, project config, and
environment variables as JSON.`,
	RunE: runConfigShow,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return nil
}
