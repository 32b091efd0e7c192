// Package agent defines the contract for the external code-generation
// backend and a subprocess-based implementation of it. The backend is
// treated as a black box: the pipeline hands it a prompt and consumes a
// typed, append-only event stream until the completed event arrives.
// Related: internal/perspective/generator.go, internal/generate/generator.go,
// internal/runner/agent_runner.go
// Tags: agent, backend, events, subprocess
package agent

import (
	"context"
	"time"
)

// EventKind tags a backend event variant.
type EventKind string

const (
	// EventStarted signals the invocation began.
	EventStarted EventKind = "started"
	// EventLog carries one line of backend output.
	EventLog EventKind = "log"
	// EventFileWrite reports a file the backend wrote.
	EventFileWrite EventKind = "fileWrite"
	// EventPhase reports a backend-side phase change.
	EventPhase EventKind = "phase"
	// EventCompleted is terminal. ExitCode is nil when the invocation was
	// disposed or timed out rather than exiting on its own.
	EventCompleted EventKind = "completed"
)

// Event is one entry of the backend event stream.
type Event struct {
	Kind EventKind
	// Text is the log line for EventLog, or the phase name for EventPhase.
	Text string
	// Path is the written file path for EventFileWrite.
	Path string
	// ExitCode is set for EventCompleted. Nil means no exit status was
	// observed (timeout or dispose), distinct from both 0 and non-zero.
	ExitCode *int
}

// Options configures one backend invocation.
type Options struct {
	// Prompt is the full prompt text handed to the backend.
	Prompt string
	// Dir is the working directory for the invocation.
	Dir string
	// AllowWrites grants the backend permission to modify files.
	AllowWrites bool
	// Timeout, when positive, bounds the invocation wall-clock time. On
	// expiry the handle is disposed and the completed event carries a nil
	// exit code.
	Timeout time.Duration
}

// Invocation is a running backend call: a task id, an event stream that is
// closed after the completed event, and a disposable handle.
type Invocation struct {
	// TaskID identifies the invocation for registry bookkeeping.
	TaskID string
	// Events delivers the ordered event stream. Always terminated by one
	// EventCompleted, then closed.
	Events <-chan Event

	dispose func()
}

// Dispose releases the invocation's resources and stops waiting for further
// events. The backend process may keep running to completion independently.
// Safe to call multiple times.
func (inv *Invocation) Dispose() {
	if inv.dispose != nil {
		inv.dispose()
	}
}

// Provider runs prompts against a generation backend.
type Provider interface {
	Run(ctx context.Context, opts Options) (*Invocation, error)
}

// RunResult is the drained form of an invocation's event stream.
type RunResult struct {
	// ExitCode is nil when the invocation ended without an exit status.
	ExitCode *int
	// Log is the concatenated log output, newline separated.
	Log string
	// FilesWritten lists paths from fileWrite events, in order.
	FilesWritten []string
}

// Succeeded reports whether the invocation exited with status zero.
func (r RunResult) Succeeded() bool {
	return r.ExitCode != nil && *r.ExitCode == 0
}
