package session

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"testpilot/internal/generate"
	"testpilot/internal/mergeback"
	"testpilot/internal/perspective"
	"testpilot/internal/progress"
	"testpilot/internal/registry"
	"testpilot/internal/report"
	"testpilot/internal/runner"
)

// Run executes the full pipeline. It always returns a Summary and never an
// error: setup failures abort with a notification, later failures degrade
// and the session runs to completion. Cleanup runs exactly once in a defer
// regardless of which phase was reached.
func (s *Session) Run(ctx context.Context) Summary {
	summary := Summary{TaskID: s.TaskID}

	s.Registry.Register(registry.ManagedTask{TaskID: s.TaskID, Label: s.Label()})
	defer s.cleanup()

	// PREPARING
	s.enterPhase(&summary, PhasePreparing)
	if !s.prepare(ctx) {
		summary.Aborted = true
		s.emitTerminal(nil)
		s.failPhase(fmt.Errorf("preparation failed"))
		return summary
	}
	s.completePhase()

	// PERSPECTIVES (optional)
	var table *perspective.Extraction
	if s.Settings.GeneratePerspectives {
		if s.cancelled(ctx) {
			return s.finishCancelled(&summary)
		}
		s.enterPhase(&summary, PhasePerspectives)
		table = s.runPerspectives(ctx, &summary)
		s.completePhase()
	}

	// GENERATING
	if s.cancelled(ctx) {
		return s.finishCancelled(&summary)
	}
	s.enterPhase(&summary, PhaseGenerating)
	genExit := s.runGeneration(ctx, table)
	merge := mergeback.ApplyResult{Applied: true}
	if s.isolatedDir != "" {
		merge = s.merger.Reconcile(ctx, s.TaskID, s.isolatedDir, s.Settings.LocalRoot, genExit)
		summary.MergeBack = &merge
		if !merge.Applied {
			s.log().Warn("merge-back did not apply changes locally", zap.String("reason", merge.Reason))
		}
	}
	s.completePhase()

	// RUNNING TESTS
	if s.cancelled(ctx) {
		return s.finishCancelled(&summary)
	}
	s.enterPhase(&summary, PhaseRunningTests)
	result := s.runTests(ctx, merge)
	summary.Execution = result
	s.writeExecutionReport(&summary, result)
	s.completePhase()

	s.emitTerminal(result.ExitCode)
	return summary
}

// prepare switches the run root to an isolated copy when isolation is
// requested. Returns false on a fatal but non-throwing abort.
func (s *Session) prepare(ctx context.Context) bool {
	if !s.Settings.UseIsolation {
		return true
	}

	if s.Settings.LocalRoot == "" {
		s.log().Error("isolation requested without a workspace root")
		s.Notify.Error("Cannot create an isolated copy: no workspace is open.")
		return false
	}

	dir, err := s.isolator.Create(ctx, s.Settings.LocalRoot, s.Settings.IsolationBaseDir, s.TaskID, s.Settings.IsolationRef)
	if err != nil {
		s.log().Error("isolated copy creation failed", zap.Error(err))
		s.Notify.Error(fmt.Sprintf("Failed to create an isolated working copy: %v", err))
		return false
	}

	s.isolatedDir = dir
	s.runRoot = dir
	s.log().Info("created isolated working copy", zap.String("dir", dir))
	return true
}

func (s *Session) runPerspectives(ctx context.Context, summary *Summary) *perspective.Extraction {
	extraction, err := s.perspectives.Generate(ctx, perspective.Request{
		ChangeDescription: s.Settings.ChangeDescription,
		Dir:               s.runRoot,
		Timeout:           s.Settings.Timeout,
	})
	if err != nil {
		s.log().Warn("perspective generation failed", zap.Error(err))
		s.Notify.Warning("Perspective extraction failed; continuing without a case table.")
		return nil
	}

	summary.Extraction = &extraction

	meta := []report.Metadata{
		{Key: "Task", Value: s.TaskID},
		{Key: "Change", Value: s.Settings.ChangeDescription},
		{Key: "Extracted", Value: strconv.FormatBool(extraction.Extracted)},
		{Key: "Strategy", Value: extraction.Strategy},
	}
	if path, err := s.reports.WritePerspectives(meta, extraction.TableMarkdown); err != nil {
		s.log().Warn("failed to save perspective report", zap.Error(err))
	} else {
		summary.PerspectiveReportPath = path
		s.log().Info("saved perspective report", zap.String("path", path))
	}

	if !extraction.Extracted {
		s.Notify.Warning("Perspective extraction produced a diagnostic table; test generation proceeds without it.")
	}
	return &extraction
}

// runGeneration drives the agent to write tests in the run root and then
// removes stray perspective artifacts from the primary workspace. Returns
// the generation exit code, nil when no exit status was observed.
func (s *Session) runGeneration(ctx context.Context, table *perspective.Extraction) *int {
	result, err := s.generator.Generate(ctx, generate.Request{
		ChangeDescription: s.Settings.ChangeDescription,
		Dir:               s.runRoot,
		Table:             table,
		Timeout:           s.Settings.Timeout,
	})
	if err != nil {
		s.log().Error("test generation failed", zap.Error(err))
		s.Notify.Error(fmt.Sprintf("Test generation failed: %v", err))
		return nil
	}

	generate.CleanupStrayFiles(s.Settings.LocalRoot, s.Log)

	if !result.Succeeded() {
		s.log().Warn("test generation exited abnormally", zap.Any("exitCode", result.ExitCode))
	}
	return result.ExitCode
}

func (s *Session) runTests(ctx context.Context, merge mergeback.ApplyResult) runner.Result {
	result := s.executor.Execute(ctx, runner.Options{
		Command:       s.Settings.TestCommand,
		Dir:           s.runRoot,
		IsolationMode: s.isolatedDir != "",
		MergeApplied:  merge.Applied,
		PreferAgent:   s.Settings.PreferAgentRunner,
	})
	result.ToolVersion = s.Settings.ToolVersion
	return result.WithSessionLog(s.log().Captured())
}

func (s *Session) writeExecutionReport(summary *Summary, result runner.Result) {
	meta := []report.Metadata{
		{Key: "Task", Value: s.TaskID},
		{Key: "Command", Value: result.Command},
		{Key: "Runner", Value: string(result.Runner)},
		{Key: "Exit code", Value: formatExitCode(result.ExitCode)},
		{Key: "Duration", Value: fmt.Sprintf("%dms", result.DurationMs)},
	}
	if result.Skipped {
		meta = append(meta, report.Metadata{Key: "Skipped", Value: result.SkipReason})
	}
	if s.Settings.ToolVersion != "" {
		meta = append(meta, report.Metadata{Key: "Version", Value: s.Settings.ToolVersion})
	}

	body := buildExecutionBody(result)

	blocks := []report.Block{}
	if result.Stdout != "" {
		blocks = append(blocks, report.Block{Title: "Stdout", Text: result.Stdout})
	}
	if result.Stderr != "" {
		blocks = append(blocks, report.Block{Title: "Stderr", Text: result.Stderr})
	}
	if result.SessionLog != "" {
		blocks = append(blocks, report.Block{Title: "Session log", Text: result.SessionLog})
	}

	path, err := s.reports.WriteExecution(meta, body, blocks)
	if err != nil {
		s.log().Warn("failed to save execution report", zap.Error(err))
		return
	}
	summary.ExecutionReportPath = path
	s.log().Info("saved execution report", zap.String("path", path))
}

// cancelled reports whether the session should stop at this phase boundary.
// The context carries correctness; the registry is consulted so an external
// Cancel observed between phases also stops the pipeline.
func (s *Session) cancelled(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	return s.Registry.IsCancelled(s.TaskID)
}

func (s *Session) finishCancelled(summary *Summary) Summary {
	summary.Cancelled = true
	s.log().Info("session cancelled", zap.String("phase", s.phase))
	s.emitTerminal(nil)
	return *summary
}

// cleanup tears the session down: isolation removal (at most once), registry
// unregistration, progress stop. Each step tolerates its own failure so a
// panic in one never skips the others.
func (s *Session) cleanup() {
	s.safely("isolation removal", func() {
		if s.isolatedDir != "" && !s.isolationRemoved {
			s.isolationRemoved = true
			s.isolator.Remove(context.Background(), s.Settings.LocalRoot, s.isolatedDir)
		}
	})
	s.safely("registry unregister", func() {
		s.Registry.Unregister(s.TaskID)
	})
	s.safely("progress stop", func() {
		if s.display != nil {
			s.display.StopSpinner()
		}
	})
}

func (s *Session) safely(step string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log().Error("cleanup step panicked", zap.String("step", step), zap.Any("panic", r))
		}
	}()
	fn()
}

func (s *Session) enterPhase(summary *Summary, phase string) {
	s.phase = phase
	summary.Phase = phase
	s.Registry.SetPhase(s.TaskID, phase, s.Label())
	s.log().Info("entering phase", zap.String("phase", phase))

	if s.OnProgress != nil {
		s.OnProgress(ProgressEvent{TaskID: s.TaskID, Phase: phase})
	}
	if s.display != nil {
		number, total := s.phasePosition(phase)
		s.display.StartPhase(progress.PhaseInfo{
			Name:        phase,
			Number:      number,
			TotalPhases: total,
			Status:      progress.PhaseInProgress,
		})
	}
}

func (s *Session) completePhase() {
	if s.display != nil {
		number, total := s.phasePosition(s.phase)
		s.display.CompletePhase(progress.PhaseInfo{
			Name:        s.phase,
			Number:      number,
			TotalPhases: total,
			Status:      progress.PhaseCompleted,
		})
	}
}

func (s *Session) failPhase(err error) {
	if s.display != nil {
		number, total := s.phasePosition(s.phase)
		s.display.FailPhase(progress.PhaseInfo{
			Name:        s.phase,
			Number:      number,
			TotalPhases: total,
			Status:      progress.PhaseFailed,
		}, err)
	}
}

// emitTerminal emits the terminal completed progress event. A nil exit code
// marks a cancelled or aborted session, distinct from both 0 and non-zero.
func (s *Session) emitTerminal(exitCode *int) {
	if s.OnProgress != nil {
		s.OnProgress(ProgressEvent{TaskID: s.TaskID, Phase: s.phase, Completed: true, ExitCode: exitCode})
	}
}

func (s *Session) phasePosition(phase string) (int, int) {
	order := []string{PhasePreparing, PhaseGenerating, PhaseRunningTests}
	if s.Settings.GeneratePerspectives {
		order = []string{PhasePreparing, PhasePerspectives, PhaseGenerating, PhaseRunningTests}
	}
	for i, name := range order {
		if name == phase {
			return i + 1, len(order)
		}
	}
	return 1, len(order)
}

func formatExitCode(code *int) string {
	if code == nil {
		return "null"
	}
	return strconv.Itoa(*code)
}
