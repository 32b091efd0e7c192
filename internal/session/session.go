// Package session sequences the test generation pipeline: prepare an
// optional isolated working copy, extract test perspectives, generate test
// code, merge changes back, execute tests, and write reports. The session
// owns cleanup and guarantees it runs exactly once. It contains only
// coordination and delegation logic; all execution is delegated to the
// injected collaborator interfaces.
// Related: internal/runner/executor.go, internal/mergeback/engine.go
// Tags: session, orchestration, phases, cleanup, cancellation
package session

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"testpilot/internal/agent"
	"testpilot/internal/generate"
	"testpilot/internal/isolate"
	"testpilot/internal/logging"
	"testpilot/internal/mergeback"
	"testpilot/internal/notify"
	"testpilot/internal/perspective"
	"testpilot/internal/progress"
	"testpilot/internal/registry"
	"testpilot/internal/report"
	"testpilot/internal/runner"
)

// Phase names in pipeline order. The sequence is monotonic; perspectives is
// optional per settings.
const (
	PhasePreparing    = "preparing"
	PhasePerspectives = "perspectives"
	PhaseGenerating   = "generating"
	PhaseRunningTests = "running-tests"
)

// maxLabelLen bounds the registry label derived from the change description.
const maxLabelLen = 60

// Settings is the immutable configuration snapshot one session runs with.
type Settings struct {
	// ChangeDescription is the user's description of the change under test.
	ChangeDescription string
	// LocalRoot is the primary workspace root. Required for isolation mode.
	LocalRoot string

	TestCommand       string
	PreferAgentRunner bool
	FreshnessWindow   time.Duration

	UseIsolation     bool
	IsolationBaseDir string
	IsolationRef     string

	GeneratePerspectives bool

	ReportsDir string
	StorageDir string

	// Timeout bounds each agent invocation. Zero means no timeout.
	Timeout time.Duration

	// ToolVersion is recorded on execution reports.
	ToolVersion string
}

// ProgressEvent is a session-level progress notification. A terminal event
// has Completed true; its ExitCode is nil when the session was cancelled or
// aborted before an execution outcome existed.
type ProgressEvent struct {
	TaskID    string
	Phase     string
	Completed bool
	ExitCode  *int
}

// Summary is the value Run always returns. Run never returns an error; all
// failures are converted to notifications and log records.
type Summary struct {
	TaskID string
	// Phase is the last phase the session entered.
	Phase string
	// Aborted is true when preparation failed and the pipeline never ran.
	Aborted bool
	// Cancelled is true when the session stopped at a phase boundary.
	Cancelled bool

	Extraction *perspective.Extraction
	MergeBack  *mergeback.ApplyResult
	Execution  runner.Result

	PerspectiveReportPath string
	ExecutionReportPath   string
}

// PerspectiveGenerator extracts a structured case table from the agent.
type PerspectiveGenerator interface {
	Generate(ctx context.Context, req perspective.Request) (perspective.Extraction, error)
}

// TestGenerator drives the agent to write test files.
type TestGenerator interface {
	Generate(ctx context.Context, req generate.Request) (agent.RunResult, error)
}

// Isolator creates and removes disposable working copies.
type Isolator interface {
	Create(ctx context.Context, sourceRoot, baseDir, taskID, ref string) (string, error)
	Remove(ctx context.Context, sourceRoot, isolatedDir string)
}

// Merger reconciles isolated test changes with the primary workspace.
type Merger interface {
	Reconcile(ctx context.Context, taskID, isolatedDir, localRoot string, generationExit *int) mergeback.ApplyResult
}

// TestExecutor runs the configured test command.
type TestExecutor interface {
	Execute(ctx context.Context, opts runner.Options) runner.Result
}

// ReportWriter persists the Markdown artifacts.
type ReportWriter interface {
	PerspectivePath() string
	ExecutionPath() string
	WritePerspectives(meta []report.Metadata, tableMarkdown string) (string, error)
	WriteExecution(meta []report.Metadata, body string, blocks []report.Block) (string, error)
}

// Collaborators holds optional overrides for dependency injection. Nil
// fields use the default implementations created by New.
type Collaborators struct {
	Perspectives PerspectiveGenerator
	Generator    TestGenerator
	Isolator     Isolator
	Merger       Merger
	Executor     TestExecutor
	Reports      ReportWriter
	Display      *progress.Display
}

// Session is one run of the pipeline. Owned exclusively by its creator for
// its lifetime; not safe for concurrent use.
type Session struct {
	TaskID   string
	Settings Settings

	Registry *registry.Registry
	Log      *logging.SessionLogger
	Notify   *notify.Dispatcher

	// OnProgress, when set, receives phase and terminal progress events.
	OnProgress func(ProgressEvent)

	perspectives PerspectiveGenerator
	generator    TestGenerator
	isolator     Isolator
	merger       Merger
	executor     TestExecutor
	reports      ReportWriter
	display      *progress.Display

	phase            string
	runRoot          string
	isolatedDir      string
	isolationRemoved bool
}

// New creates a session wired with the default collaborators: the CLI agent
// provider drives perspective extraction and generation, git worktrees back
// isolation, and the dual-runner executor runs tests.
func New(settings Settings, provider agent.Provider, reg *registry.Registry, log *logging.SessionLogger, dispatcher *notify.Dispatcher) *Session {
	s := &Session{
		TaskID:   uuid.NewString(),
		Settings: settings,
		Registry: reg,
		Log:      log,
		Notify:   dispatcher,
		runRoot:  settings.LocalRoot,
	}

	s.perspectives = &perspective.Generator{
		Provider:     provider,
		Log:          log,
		Strategies:   perspective.DefaultStrategies(),
		OnInvocation: s.trackInvocation,
	}
	s.generator = &generate.Generator{
		Provider:     provider,
		Log:          log,
		OnInvocation: s.trackInvocation,
	}
	s.isolator = isolate.NewManager(isolate.WithLogger(log))
	s.merger = mergeback.NewEngine(settings.StorageDir, log, dispatcher)

	agentRunner := &runner.AgentRunner{Provider: provider, Timeout: settings.Timeout, OnInvocation: s.trackInvocation}
	executor := runner.NewExecutor(agentRunner, log)
	executor.FreshnessWindow = settings.FreshnessWindow
	s.executor = executor

	s.reports = report.NewWriter(settings.ReportsDir, time.Now())

	return s
}

// NewWithCollaborators creates a session with injected collaborators,
// keeping defaults for nil fields. Intended for tests and composition.
func NewWithCollaborators(settings Settings, provider agent.Provider, reg *registry.Registry, log *logging.SessionLogger, dispatcher *notify.Dispatcher, collab Collaborators) *Session {
	s := New(settings, provider, reg, log, dispatcher)
	if collab.Perspectives != nil {
		s.perspectives = collab.Perspectives
	}
	if collab.Generator != nil {
		s.generator = collab.Generator
	}
	if collab.Isolator != nil {
		s.isolator = collab.Isolator
	}
	if collab.Merger != nil {
		s.merger = collab.Merger
	}
	if collab.Executor != nil {
		s.executor = collab.Executor
	}
	if collab.Reports != nil {
		s.reports = collab.Reports
	}
	if collab.Display != nil {
		s.display = collab.Display
	}
	return s
}

// WithDisplay attaches a progress display for phase spinner output.
func (s *Session) WithDisplay(d *progress.Display) *Session {
	s.display = d
	return s
}

// Label is the human-readable task label derived from the change
// description.
func (s *Session) Label() string {
	label := strings.TrimSpace(s.Settings.ChangeDescription)
	if len(label) > maxLabelLen {
		// Back up to a rune boundary so multibyte descriptions stay valid.
		cut := maxLabelLen
		for cut > 0 && !utf8.RuneStart(label[cut]) {
			cut--
		}
		label = label[:cut]
	}
	if label == "" {
		label = "test generation"
	}
	return label
}

// trackInvocation registers a running agent invocation's disposable handle
// so a registry Cancel reaches the in-flight process.
func (s *Session) trackInvocation(inv *agent.Invocation) {
	if inv != nil {
		s.Registry.SetDisposer(s.TaskID, inv)
	}
}

func (s *Session) log() *logging.SessionLogger {
	if s.Log != nil {
		return s.Log
	}
	return logging.NewNop()
}
