package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"testpilot/internal/agent"
	"testpilot/internal/build"
	"testpilot/internal/config"
	"testpilot/internal/logging"
	"testpilot/internal/notify"
	"testpilot/internal/progress"
	"testpilot/internal/registry"
	"testpilot/internal/session"
)

var runCmd = &cobra.Command{
	Use:   "run [change-description]",
	Short: "Generate tests for a code change and run them",
	Long: `Generate tests for a code change and run them.

The session drives the configured agent through up to four phases:
  preparing     -> optional isolated worktree checkout
  perspectives  -> structured test case table extraction
  generating    -> test code generation
  running-tests -> test command execution and result correlation

Reports are written under the configured reports directory. In isolation
mode, generated test files are merged back into the workspace via patch;
when the patch cannot be applied automatically, merge instructions are
persisted instead.`,
	Example: `  # Local mode
  testpilot run "Add retry to the fetch helper"

  # Isolated worktree mode
  testpilot run --isolate "Refactor the session cache"

  # Override the test command for this run
  testpilot run --test-command "go test ./..." "Fix flaky timeout"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSession,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().Bool("isolate", false, "Generate in an isolated git worktree and merge tests back")
	runCmd.Flags().Bool("no-perspectives", false, "Skip the perspective table phase")
	runCmd.Flags().String("test-command", "", "Test command to run (overrides config)")
	runCmd.Flags().Bool("agent-runner", false, "Delegate test execution to the agent")
	runCmd.Flags().Bool("no-progress", false, "Disable the progress spinner")
}

func runSession(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	applyRunFlags(cmd, cfg)

	localRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("resolving working directory: %w", err)
	}

	changeDescription := strings.Join(args, " ")

	provider := &agent.CLIProvider{
		Cmd:       cfg.AgentCmd,
		Args:      cfg.AgentArgs,
		WriteArgs: cfg.AgentWriteArgs,
		CustomCmd: cfg.CustomAgentCmd,
	}

	autoAccept, _ := cmd.Flags().GetBool("yes")
	notifier := notify.NewConsoleNotifier(notify.WithAutoAccept(cfg.AutoAccept || autoAccept))
	log := logging.New(logging.Options{Console: os.Stderr})

	settings := session.Settings{
		ChangeDescription:    changeDescription,
		LocalRoot:            localRoot,
		TestCommand:          cfg.TestCommand,
		PreferAgentRunner:    cfg.PreferAgentRunner,
		FreshnessWindow:      time.Duration(cfg.FreshnessWindowMs) * time.Millisecond,
		UseIsolation:         cfg.UseIsolation,
		IsolationBaseDir:     cfg.IsolationBaseDir,
		IsolationRef:         cfg.IsolationRef,
		GeneratePerspectives: cfg.GeneratePerspectives,
		ReportsDir:           cfg.ReportsDir,
		StorageDir:           cfg.StorageDir,
		Timeout:              time.Duration(cfg.Timeout) * time.Second,
		ToolVersion:          build.Version,
	}

	reg := registry.New()
	s := session.New(settings, provider, reg, log, notify.NewDispatcher(notifier))

	if noProgress, _ := cmd.Flags().GetBool("no-progress"); cfg.ShowProgress && !noProgress {
		s.WithDisplay(progress.NewDisplay(progress.DetectTerminalCapabilities()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := s.Run(ctx)
	printSummary(summary)

	if summary.Aborted {
		return fmt.Errorf("session aborted during preparation")
	}
	return nil
}

// applyRunFlags maps run command flags onto the loaded configuration.
func applyRunFlags(cmd *cobra.Command, cfg *config.Configuration) {
	if isolate, _ := cmd.Flags().GetBool("isolate"); isolate {
		cfg.UseIsolation = true
	}
	if noPerspectives, _ := cmd.Flags().GetBool("no-perspectives"); noPerspectives {
		cfg.GeneratePerspectives = false
	}
	if testCommand, _ := cmd.Flags().GetString("test-command"); testCommand != "" {
		cfg.TestCommand = testCommand
	}
	if agentRunner, _ := cmd.Flags().GetBool("agent-runner"); agentRunner {
		cfg.PreferAgentRunner = true
	}
}

func printSummary(summary session.Summary) {
	fmt.Println()
	if summary.Cancelled {
		fmt.Println("Session cancelled.")
		return
	}
	if summary.Aborted {
		fmt.Println("Session aborted during preparation.")
		return
	}

	fmt.Println("Session complete.")
	if summary.PerspectiveReportPath != "" {
		fmt.Printf("Perspectives: %s\n", summary.PerspectiveReportPath)
	}
	if summary.ExecutionReportPath != "" {
		fmt.Printf("Execution report: %s\n", summary.ExecutionReportPath)
	}
	if summary.MergeBack != nil && !summary.MergeBack.Applied {
		fmt.Printf("Merge-back deferred: %s\n", summary.MergeBack.Reason)
	}

	exec := summary.Execution
	switch {
	case exec.Skipped:
		fmt.Printf("Tests skipped: %s\n", exec.SkipReason)
	case exec.Succeeded():
		fmt.Println("Tests passed.")
	case exec.ExitCode != nil:
		fmt.Printf("Tests failed (exit %d).\n", *exec.ExitCode)
	default:
		fmt.Println("Tests finished without an exit status.")
	}
	if exec.ResultFile != nil {
		fmt.Printf("Results: %d passed, %d failed, %d pending\n",
			exec.ResultFile.Passes, exec.ResultFile.Failures, exec.ResultFile.Pending)
	}
}
