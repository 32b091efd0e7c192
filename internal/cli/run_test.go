package cli

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testpilot/internal/config"
)

func newFlagCmd(t *testing.T) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "run"}
	cmd.Flags().Bool("isolate", false, "")
	cmd.Flags().Bool("no-perspectives", false, "")
	cmd.Flags().String("test-command", "", "")
	cmd.Flags().Bool("agent-runner", false, "")
	return cmd
}

func TestApplyRunFlags_Defaults(t *testing.T) {
	t.Parallel()

	cmd := newFlagCmd(t)
	cfg := &config.Configuration{
		TestCommand:          "npm test",
		GeneratePerspectives: true,
	}

	applyRunFlags(cmd, cfg)

	assert.False(t, cfg.UseIsolation)
	assert.True(t, cfg.GeneratePerspectives)
	assert.Equal(t, "npm test", cfg.TestCommand)
	assert.False(t, cfg.PreferAgentRunner)
}

func TestApplyRunFlags_Overrides(t *testing.T) {
	t.Parallel()

	cmd := newFlagCmd(t)
	require.NoError(t, cmd.Flags().Set("isolate", "true"))
	require.NoError(t, cmd.Flags().Set("no-perspectives", "true"))
	require.NoError(t, cmd.Flags().Set("test-command", "go test ./..."))
	require.NoError(t, cmd.Flags().Set("agent-runner", "true"))

	cfg := &config.Configuration{
		TestCommand:          "npm test",
		GeneratePerspectives: true,
	}

	applyRunFlags(cmd, cfg)

	assert.True(t, cfg.UseIsolation)
	assert.False(t, cfg.GeneratePerspectives)
	assert.Equal(t, "go test ./...", cfg.TestCommand)
	assert.True(t, cfg.PreferAgentRunner)
}

func TestRunCmd_RequiresChangeDescription(t *testing.T) {
	t.Parallel()

	err := runCmd.Args(runCmd, []string{})
	assert.Error(t, err)

	err = runCmd.Args(runCmd, []string{"add retry"})
	assert.NoError(t, err)
}
