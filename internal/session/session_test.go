// Package session_test tests the pipeline sequencing: phase order, cleanup
// guarantees, cancellation at phase boundaries, and abort behavior.
// Related: internal/session/run.go
// Tags: session, orchestration, cleanup, cancellation, phases
package session_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testpilot/internal/agent"
	"testpilot/internal/generate"
	"testpilot/internal/logging"
	"testpilot/internal/mergeback"
	"testpilot/internal/notify"
	"testpilot/internal/perspective"
	"testpilot/internal/registry"
	"testpilot/internal/runner"
	"testpilot/internal/session"
)

type fakePerspectives struct {
	extraction perspective.Extraction
	err        error
	calls      int
}

func (f *fakePerspectives) Generate(ctx context.Context, req perspective.Request) (perspective.Extraction, error) {
	f.calls++
	return f.extraction, f.err
}

type fakeGenerator struct {
	result   agent.RunResult
	err      error
	calls    int
	gotTable *perspective.Extraction
	gotDir   string
}

func (f *fakeGenerator) Generate(ctx context.Context, req generate.Request) (agent.RunResult, error) {
	f.calls++
	f.gotTable = req.Table
	f.gotDir = req.Dir
	return f.result, f.err
}

type fakeIsolator struct {
	dir         string
	createErr   error
	createCalls int
	removeCalls int
}

func (f *fakeIsolator) Create(ctx context.Context, sourceRoot, baseDir, taskID, ref string) (string, error) {
	f.createCalls++
	return f.dir, f.createErr
}

func (f *fakeIsolator) Remove(ctx context.Context, sourceRoot, isolatedDir string) {
	f.removeCalls++
}

type fakeMerger struct {
	result  mergeback.ApplyResult
	calls   int
	gotExit *int
}

func (f *fakeMerger) Reconcile(ctx context.Context, taskID, isolatedDir, localRoot string, generationExit *int) mergeback.ApplyResult {
	f.calls++
	f.gotExit = generationExit
	return f.result
}

type fakeExecutor struct {
	result  runner.Result
	calls   int
	gotOpts runner.Options
}

func (f *fakeExecutor) Execute(ctx context.Context, opts runner.Options) runner.Result {
	f.calls++
	f.gotOpts = opts
	if f.result.Command == "" {
		f.result.Command = opts.Command
	}
	return f.result
}

type capturingNotifier struct {
	notifications []notify.Notification
}

func (c *capturingNotifier) Notify(n notify.Notification) {
	c.notifications = append(c.notifications, n)
}

func (c *capturingNotifier) Offer(message string, choices ...notify.Choice) {}

func intPtr(v int) *int { return &v }

func newTestSession(t *testing.T, settings session.Settings, collab session.Collaborators) (*session.Session, *registry.Registry, *capturingNotifier) {
	t.Helper()

	if settings.ReportsDir == "" {
		settings.ReportsDir = t.TempDir()
	}
	reg := registry.New()
	notifier := &capturingNotifier{}
	s := session.NewWithCollaborators(settings, nil, reg, logging.NewNop(), notify.NewDispatcher(notifier), collab)
	return s, reg, notifier
}

// TestRun_LocalMode_HappyPath covers the local mode pipeline: no
// perspective table, generation exits zero, test command runs, exactly one
// generating and one running-tests phase event.
func TestRun_LocalMode_HappyPath(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{result: agent.RunResult{ExitCode: intPtr(0)}}
	exec := &fakeExecutor{result: runner.Result{
		Command:  "echo ok",
		ExitCode: intPtr(0),
		Runner:   runner.KindExtension,
	}}

	s, reg, _ := newTestSession(t, session.Settings{
		ChangeDescription:    "add retry to the fetch helper",
		LocalRoot:            t.TempDir(),
		TestCommand:          "echo ok",
		GeneratePerspectives: false,
	}, session.Collaborators{Generator: gen, Executor: exec})

	var events []session.ProgressEvent
	s.OnProgress = func(e session.ProgressEvent) { events = append(events, e) }

	summary := s.Run(context.Background())

	assert.False(t, summary.Aborted)
	assert.False(t, summary.Cancelled)
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 1, exec.calls)
	require.NotNil(t, summary.Execution.ExitCode)
	assert.Equal(t, 0, *summary.Execution.ExitCode)
	assert.False(t, summary.Execution.Skipped)

	phaseCount := map[string]int{}
	for _, e := range events {
		if !e.Completed {
			phaseCount[e.Phase]++
		}
	}
	assert.Equal(t, 1, phaseCount[session.PhaseGenerating])
	assert.Equal(t, 1, phaseCount[session.PhaseRunningTests])
	assert.Equal(t, 0, phaseCount[session.PhasePerspectives])

	terminal := events[len(events)-1]
	assert.True(t, terminal.Completed)
	require.NotNil(t, terminal.ExitCode)
	assert.Equal(t, 0, *terminal.ExitCode)

	// No merge-back outcome in local mode.
	assert.Nil(t, summary.MergeBack)

	// Registry no longer contains the task after Run resolves.
	assert.False(t, reg.Contains(s.TaskID))
	assert.Empty(t, reg.List())
}

// TestRun_RegistryEmptyAfterRun holds across modes and failure points.
func TestRun_RegistryEmptyAfterRun(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		settings session.Settings
		collab   session.Collaborators
	}{
		"isolation create failure": {
			settings: session.Settings{LocalRoot: "/tmp/repo", UseIsolation: true},
			collab: session.Collaborators{
				Isolator: &fakeIsolator{createErr: errors.New("worktree add failed")},
			},
		},
		"generation provider failure": {
			settings: session.Settings{LocalRoot: "/tmp/repo"},
			collab: session.Collaborators{
				Generator: &fakeGenerator{err: errors.New("spawn failed")},
				Executor:  &fakeExecutor{},
			},
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, reg, _ := newTestSession(t, tc.settings, tc.collab)
			s.Run(context.Background())
			assert.Empty(t, reg.List())
		})
	}
}

// TestRun_IsolationRemovedExactlyOnce verifies removal happens once even
// when a later phase fails.
func TestRun_IsolationRemovedExactlyOnce(t *testing.T) {
	t.Parallel()

	iso := &fakeIsolator{dir: "/tmp/worktrees/task"}
	gen := &fakeGenerator{err: errors.New("agent unavailable")}
	merger := &fakeMerger{result: mergeback.ApplyResult{Applied: false, Reason: "generation failed"}}
	exec := &fakeExecutor{result: runner.Skip("npm test", runner.SkipReasonNotApplied)}

	s, _, _ := newTestSession(t, session.Settings{
		LocalRoot:    t.TempDir(),
		UseIsolation: true,
		TestCommand:  "npm test",
	}, session.Collaborators{Isolator: iso, Generator: gen, Merger: merger, Executor: exec})

	s.Run(context.Background())

	assert.Equal(t, 1, iso.createCalls)
	assert.Equal(t, 1, iso.removeCalls)
}

// TestRun_IsolationWithoutRoot_Aborts covers the fatal but non-throwing
// preparation abort: user notified, nil terminal exit, no pipeline phases.
func TestRun_IsolationWithoutRoot_Aborts(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	s, reg, notifier := newTestSession(t, session.Settings{
		UseIsolation: true,
	}, session.Collaborators{Generator: gen})

	var events []session.ProgressEvent
	s.OnProgress = func(e session.ProgressEvent) { events = append(events, e) }

	summary := s.Run(context.Background())

	assert.True(t, summary.Aborted)
	assert.Equal(t, 0, gen.calls)
	assert.Empty(t, reg.List())

	require.NotEmpty(t, notifier.notifications)
	assert.Equal(t, notify.LevelError, notifier.notifications[0].Level)

	terminal := events[len(events)-1]
	assert.True(t, terminal.Completed)
	assert.Nil(t, terminal.ExitCode)
}

// TestRun_IsolationCreateFailure_Aborts covers the same abort when the
// worktree cannot be created. No removal is attempted for a copy that was
// never created.
func TestRun_IsolationCreateFailure_Aborts(t *testing.T) {
	t.Parallel()

	iso := &fakeIsolator{createErr: errors.New("not a git repository")}
	gen := &fakeGenerator{}
	s, _, notifier := newTestSession(t, session.Settings{
		LocalRoot:    "/tmp/repo",
		UseIsolation: true,
	}, session.Collaborators{Isolator: iso, Generator: gen})

	summary := s.Run(context.Background())

	assert.True(t, summary.Aborted)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, iso.removeCalls)
	require.NotEmpty(t, notifier.notifications)
}

// TestRun_IsolationMode_MergeNotApplied verifies the executor sees
// isolation mode with MergeApplied false, so its skip policy applies.
func TestRun_IsolationMode_MergeNotApplied(t *testing.T) {
	t.Parallel()

	iso := &fakeIsolator{dir: "/tmp/worktrees/task"}
	gen := &fakeGenerator{result: agent.RunResult{ExitCode: intPtr(1)}}
	merger := &fakeMerger{result: mergeback.ApplyResult{Applied: false, Reason: "apply check failed"}}
	exec := &fakeExecutor{result: runner.Skip("npm test", runner.SkipReasonNotApplied)}

	s, _, _ := newTestSession(t, session.Settings{
		LocalRoot:    t.TempDir(),
		UseIsolation: true,
		TestCommand:  "npm test",
	}, session.Collaborators{Isolator: iso, Generator: gen, Merger: merger, Executor: exec})

	summary := s.Run(context.Background())

	assert.True(t, exec.gotOpts.IsolationMode)
	assert.False(t, exec.gotOpts.MergeApplied)
	require.NotNil(t, summary.MergeBack)
	assert.False(t, summary.MergeBack.Applied)
	assert.True(t, summary.Execution.Skipped)
	assert.Equal(t, runner.KindUnknown, summary.Execution.Runner)
}

// TestRun_MergerReceivesGenerationExit verifies the generation exit code
// flows into merge-back, gating auto-apply.
func TestRun_MergerReceivesGenerationExit(t *testing.T) {
	t.Parallel()

	iso := &fakeIsolator{dir: "/tmp/worktrees/task"}
	gen := &fakeGenerator{result: agent.RunResult{ExitCode: intPtr(0)}}
	merger := &fakeMerger{result: mergeback.ApplyResult{Applied: true}}
	exec := &fakeExecutor{result: runner.Result{Command: "npm test", ExitCode: intPtr(0), Runner: runner.KindExtension}}

	s, _, _ := newTestSession(t, session.Settings{
		LocalRoot:    t.TempDir(),
		UseIsolation: true,
		TestCommand:  "npm test",
	}, session.Collaborators{Isolator: iso, Generator: gen, Merger: merger, Executor: exec})

	s.Run(context.Background())

	assert.Equal(t, 1, merger.calls)
	require.NotNil(t, merger.gotExit)
	assert.Equal(t, 0, *merger.gotExit)
}

// TestRun_CancelledBeforeGenerating stops at the phase boundary with a nil
// terminal exit code; generation never runs and cleanup still executes.
func TestRun_CancelledBeforeGenerating(t *testing.T) {
	t.Parallel()

	gen := &fakeGenerator{}
	exec := &fakeExecutor{}
	s, reg, _ := newTestSession(t, session.Settings{
		LocalRoot: t.TempDir(),
	}, session.Collaborators{Generator: gen, Executor: exec})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var events []session.ProgressEvent
	s.OnProgress = func(e session.ProgressEvent) { events = append(events, e) }

	summary := s.Run(ctx)

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, exec.calls)
	assert.Empty(t, reg.List())

	terminal := events[len(events)-1]
	assert.True(t, terminal.Completed)
	assert.Nil(t, terminal.ExitCode)
}

// TestRun_RegistryCancelStopsPipeline verifies a registry Cancel observed
// at a phase boundary stops the pipeline even with a live context.
func TestRun_RegistryCancelStopsPipeline(t *testing.T) {
	t.Parallel()

	exec := &fakeExecutor{}
	persp := &fakePerspectives{}

	var s *session.Session
	var reg *registry.Registry
	gen := &fakeGenerator{}
	persp.extraction = perspective.Extraction{Extracted: false, TableMarkdown: "x"}

	s, reg, _ = newTestSession(t, session.Settings{
		LocalRoot:            t.TempDir(),
		GeneratePerspectives: true,
		TestCommand:          "echo ok",
	}, session.Collaborators{Perspectives: &cancellingPerspectives{inner: persp, cancelTask: func() { reg.Cancel(s.TaskID) }}, Generator: gen, Executor: exec})

	summary := s.Run(context.Background())

	assert.True(t, summary.Cancelled)
	assert.Equal(t, 1, persp.calls)
	assert.Equal(t, 0, gen.calls)
	assert.Equal(t, 0, exec.calls)
}

// cancellingPerspectives cancels the task mid-phase so the next boundary
// check observes it.
type cancellingPerspectives struct {
	inner      *fakePerspectives
	cancelTask func()
}

func (c *cancellingPerspectives) Generate(ctx context.Context, req perspective.Request) (perspective.Extraction, error) {
	out, err := c.inner.Generate(ctx, req)
	c.cancelTask()
	return out, err
}

// TestRun_GenuineTableInjectedIntoGeneration verifies only an extracted
// table reaches the generation request.
func TestRun_GenuineTableInjectedIntoGeneration(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		extraction perspective.Extraction
		wantTable  bool
	}{
		"genuine table": {
			extraction: perspective.Extraction{Extracted: true, TableMarkdown: "| a |"},
			wantTable:  true,
		},
		"diagnostic table": {
			extraction: perspective.Extraction{Extracted: false, TableMarkdown: "| d |"},
			wantTable:  true, // passed through; the prompt builder ignores non-extracted tables
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			persp := &fakePerspectives{extraction: tc.extraction}
			gen := &fakeGenerator{result: agent.RunResult{ExitCode: intPtr(0)}}
			exec := &fakeExecutor{result: runner.Result{Command: "echo ok", ExitCode: intPtr(0), Runner: runner.KindExtension}}

			s, _, _ := newTestSession(t, session.Settings{
				LocalRoot:            t.TempDir(),
				GeneratePerspectives: true,
				TestCommand:          "echo ok",
			}, session.Collaborators{Perspectives: persp, Generator: gen, Executor: exec})

			s.Run(context.Background())

			require.Equal(t, 1, gen.calls)
			if tc.wantTable {
				require.NotNil(t, gen.gotTable)
				assert.Equal(t, tc.extraction.Extracted, gen.gotTable.Extracted)
			}
		})
	}
}

// TestRun_WritesReports verifies both artifacts land in the reports dir.
func TestRun_WritesReports(t *testing.T) {
	t.Parallel()

	persp := &fakePerspectives{extraction: perspective.Extraction{
		Extracted:     true,
		TableMarkdown: "| Case ID | Input / Precondition | Perspective | Expected Result | Notes |",
		Strategy:      "json-v1",
	}}
	gen := &fakeGenerator{result: agent.RunResult{ExitCode: intPtr(0)}}
	exec := &fakeExecutor{result: runner.Result{Command: "echo ok", ExitCode: intPtr(0), Runner: runner.KindExtension, Stdout: "ok\n"}}

	s, _, _ := newTestSession(t, session.Settings{
		LocalRoot:            t.TempDir(),
		GeneratePerspectives: true,
		TestCommand:          "echo ok",
	}, session.Collaborators{Perspectives: persp, Generator: gen, Executor: exec})

	summary := s.Run(context.Background())

	assert.FileExists(t, summary.PerspectiveReportPath)
	assert.FileExists(t, summary.ExecutionReportPath)
}

// TestRun_RunRootSwitchesToIsolation verifies generation happens inside the
// isolated copy.
func TestRun_RunRootSwitchesToIsolation(t *testing.T) {
	t.Parallel()

	iso := &fakeIsolator{dir: "/tmp/worktrees/task-abc"}
	gen := &fakeGenerator{result: agent.RunResult{ExitCode: intPtr(0)}}
	merger := &fakeMerger{result: mergeback.ApplyResult{Applied: true}}
	exec := &fakeExecutor{result: runner.Result{Command: "echo ok", ExitCode: intPtr(0), Runner: runner.KindExtension}}

	s, _, _ := newTestSession(t, session.Settings{
		LocalRoot:    t.TempDir(),
		UseIsolation: true,
		TestCommand:  "echo ok",
	}, session.Collaborators{Isolator: iso, Generator: gen, Merger: merger, Executor: exec})

	s.Run(context.Background())

	assert.Equal(t, "/tmp/worktrees/task-abc", gen.gotDir)
	assert.Equal(t, "/tmp/worktrees/task-abc", exec.gotOpts.Dir)
}

func TestLabel_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		description string
		want        string
	}{
		"empty falls back": {
			description: "   ",
			want:        "test generation",
		},
		"short kept verbatim": {
			description: "add nil guard to parser",
			want:        "add nil guard to parser",
		},
		"long ascii cut at sixty bytes": {
			description: strings.Repeat("a", 80),
			want:        strings.Repeat("a", 60),
		},
		"multibyte never split": {
			// The leading ascii byte puts the 60-byte cap mid-rune.
			description: "a" + strings.Repeat("テ", 30),
			want:        "a" + strings.Repeat("テ", 19),
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			s, _, _ := newTestSession(t, session.Settings{
				ChangeDescription: tc.description,
				LocalRoot:         t.TempDir(),
			}, session.Collaborators{})

			got := s.Label()
			assert.Equal(t, tc.want, got)
			assert.True(t, utf8.ValidString(got))
		})
	}
}
