package runner

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"testpilot/internal/logging"
	"testpilot/internal/resultfile"
)

// SubprocessRunner runs a command directly; implemented by ExtensionRunner
// and mockable in tests.
type SubprocessRunner interface {
	Run(ctx context.Context, command, dir string) Result
}

// DelegatedRunner runs a command through the agent; implemented by
// AgentRunner.
type DelegatedRunner interface {
	Run(ctx context.Context, command, dir string) Result
}

// Options configures one execution.
type Options struct {
	Command string
	Dir     string
	// IsolationMode marks a session running against an isolated copy.
	IsolationMode bool
	// MergeApplied reports whether merge-back landed the generated changes
	// locally. Only consulted in isolation mode.
	MergeApplied bool
	// PreferAgent selects the agent-delegated runner when available.
	PreferAgent bool
}

// Executor applies the skip policy, picks a runner, falls back on
// rejection, and correlates the side-channel result file.
type Executor struct {
	Extension SubprocessRunner
	Agent     DelegatedRunner
	// FreshnessWindow for result file correlation; zero means the default.
	FreshnessWindow time.Duration
	Log             *logging.SessionLogger
}

// NewExecutor creates an Executor with the direct subprocess runner and an
// optional delegated runner.
func NewExecutor(agentRunner DelegatedRunner, log *logging.SessionLogger) *Executor {
	return &Executor{
		Extension: ExtensionRunner{},
		Agent:     agentRunner,
		Log:       log,
	}
}

// Execute runs the test command per policy and returns the final result.
func (e *Executor) Execute(ctx context.Context, opts Options) Result {
	log := e.log()

	if strings.TrimSpace(opts.Command) == "" {
		log.Info("test execution skipped", zap.String("reason", SkipReasonNoCommand))
		return Skip(opts.Command, SkipReasonNoCommand)
	}
	if opts.IsolationMode && !opts.MergeApplied {
		log.Info("test execution skipped", zap.String("reason", SkipReasonNotApplied))
		return Skip(opts.Command, SkipReasonNotApplied)
	}

	WarnIfSelfLaunch(opts.Command, opts.Dir, log)

	start := time.Now()
	result := e.runWithFallback(ctx, opts)

	if file, path := resultfile.Correlate(opts.Dir, start, e.FreshnessWindow); file != nil {
		result = result.WithCorrelation(file, path)
		log.Info("correlated test result file",
			zap.Int("passes", file.Passes), zap.Int("failures", file.Failures))
	}

	return result
}

func (e *Executor) runWithFallback(ctx context.Context, opts Options) Result {
	log := e.log()

	if opts.PreferAgent && e.Agent != nil {
		result := e.Agent.Run(ctx, opts.Command, opts.Dir)
		if !IsRejection(result) {
			return result
		}
		log.Warn("agent rejected the test command, falling back to direct execution",
			zap.String("stderr", firstLine(result.Stderr)))
	}

	return e.Extension.Run(ctx, opts.Command, opts.Dir)
}

func (e *Executor) log() *logging.SessionLogger {
	if e.Log != nil {
		return e.Log
	}
	return logging.NewNop()
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
