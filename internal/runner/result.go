// Package runner executes the configured test command through one of two
// interchangeable strategies: a direct subprocess ("extension" runner) or an
// agent-delegated run ("cursorAgent" runner). Agent results that look like a
// refusal are reclassified and automatically retried through the direct
// runner. Results are immutable once created; enrichment returns a copy.
// Related: internal/resultfile/resultfile.go, internal/session/session.go
// Tags: runner, execution, fallback, rejection
package runner

import "testpilot/internal/resultfile"

// Kind identifies which strategy produced a result.
type Kind string

const (
	// KindExtension is the direct-subprocess runner.
	KindExtension Kind = "extension"
	// KindAgent is the agent-delegated runner.
	KindAgent Kind = "cursorAgent"
	// KindUnknown marks results that were never executed (skip policy).
	KindUnknown Kind = "unknown"
)

// Skip reasons recorded on skipped results.
const (
	SkipReasonNoCommand  = "test command is not configured"
	SkipReasonNotApplied = "generated changes were not applied to the local workspace"
)

// Result is one execution attempt. Created once per attempt and never
// mutated; correlation data is attached via WithCorrelation, which copies.
type Result struct {
	Command string
	Dir     string
	// ExitCode is nil when no exit status was observed (timeout, dispose,
	// signal kill, or skip): deliberately distinct from both 0 and non-zero.
	ExitCode *int
	// Signal is the terminating signal name, when the process was signaled.
	Signal     *string
	DurationMs int64
	Stdout     string
	Stderr     string
	// ErrorMessage describes a spawn or protocol failure, when any.
	ErrorMessage string

	Skipped    bool
	SkipReason string

	// Runner names the strategy that produced this result.
	Runner Kind

	// ResultFile is the correlated side-channel artifact, when fresh.
	ResultFile     *resultfile.TestResultFile
	ResultFilePath string

	// ToolVersion records the pipeline version that produced the report.
	ToolVersion string
	// SessionLog is the captured session log text attached for reporting.
	SessionLog string
}

// Skip builds a skipped result: never executed, zero duration, unknown
// runner.
func Skip(command, reason string) Result {
	return Result{
		Command:    command,
		Skipped:    true,
		SkipReason: reason,
		Runner:     KindUnknown,
		DurationMs: 0,
	}
}

// WithCorrelation returns a copy of r carrying the correlated result file.
func (r Result) WithCorrelation(file *resultfile.TestResultFile, path string) Result {
	out := r
	out.ResultFile = file
	out.ResultFilePath = path
	return out
}

// WithSessionLog returns a copy of r carrying the captured session log.
func (r Result) WithSessionLog(log string) Result {
	out := r
	out.SessionLog = log
	return out
}

// Succeeded reports whether the run exited with status zero.
func (r Result) Succeeded() bool {
	return !r.Skipped && r.ExitCode != nil && *r.ExitCode == 0
}
