package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// CLIProvider runs prompts by spawning the configured agent CLI as a
// subprocess. Combined stdout/stderr is streamed as log events; the process
// exit status becomes the completed event. The provider never reports
// fileWrite events itself: file writes are observed by the pipeline through
// the filesystem, not the CLI transcript.
type CLIProvider struct {
	// Cmd is the agent binary (e.g. "cursor-agent").
	Cmd string
	// Args are passed before the prompt in simple mode.
	Args []string
	// WriteArgs are appended in simple mode when Options.AllowWrites is set.
	WriteArgs []string
	// CustomCmd, when non-empty, is a shell template with a {{PROMPT}}
	// placeholder, executed via `sh -c`. Used for piped or env-prefixed
	// invocations.
	CustomCmd string
}

// Run starts the agent subprocess and returns its invocation handle.
func (p *CLIProvider) Run(ctx context.Context, opts Options) (*Invocation, error) {
	runCtx, cancel := context.WithCancel(ctx)

	var cmd *exec.Cmd
	if p.CustomCmd != "" {
		cmd = exec.CommandContext(runCtx, "sh", "-c", p.expandTemplate(opts.Prompt))
	} else {
		args := append([]string{}, p.Args...)
		if opts.AllowWrites {
			args = append(args, p.WriteArgs...)
		}
		args = append(args, opts.Prompt)
		cmd = exec.CommandContext(runCtx, p.Cmd, args...)
	}
	cmd.Dir = opts.Dir
	cmd.Env = os.Environ()

	pr, pw := io.Pipe()
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		cancel()
		pr.Close()
		pw.Close()
		return nil, fmt.Errorf("starting agent command: %w", err)
	}

	events := make(chan Event, 64)
	disposed := make(chan struct{})
	var disposeOnce sync.Once
	dispose := func() {
		disposeOnce.Do(func() {
			close(disposed)
			cancel()
			// Unblock the exec output copier if nobody is reading.
			pr.CloseWithError(context.Canceled)
		})
	}

	var timedOut atomic.Bool
	var timer *time.Timer
	if opts.Timeout > 0 {
		timer = time.AfterFunc(opts.Timeout, func() {
			timedOut.Store(true)
			dispose()
		})
	}

	// emit prefers the channel buffer so the terminal log/completed events
	// still reach a draining consumer after dispose; it only gives up when
	// the buffer is full and the invocation was disposed.
	emit := func(ev Event) {
		select {
		case events <- ev:
			return
		default:
		}
		select {
		case events <- ev:
		case <-disposed:
		}
	}

	emit(Event{Kind: EventStarted})

	scanDone := make(chan struct{})
	go func() {
		defer close(scanDone)
		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			emit(Event{Kind: EventLog, Text: scanner.Text()})
		}
	}()

	go func() {
		defer close(events)
		defer cancel()

		waitErr := cmd.Wait()
		pw.Close()
		<-scanDone
		if timer != nil {
			timer.Stop()
		}

		var exitCode *int
		switch {
		case timedOut.Load():
			emit(Event{Kind: EventLog, Text: fmt.Sprintf("error: agent invocation timed out after %s", opts.Timeout)})
		case isDisposed(disposed):
			// Disposed by the caller: no authoritative exit status.
		case waitErr == nil:
			zero := 0
			exitCode = &zero
		default:
			if ee, ok := waitErr.(*exec.ExitError); ok && ee.ExitCode() >= 0 {
				code := ee.ExitCode()
				exitCode = &code
			}
		}

		emit(Event{Kind: EventCompleted, ExitCode: exitCode})
	}()

	return &Invocation{
		TaskID:  uuid.NewString(),
		Events:  events,
		dispose: dispose,
	}, nil
}

func isDisposed(disposed <-chan struct{}) bool {
	select {
	case <-disposed:
		return true
	default:
		return false
	}
}

// expandTemplate replaces {{PROMPT}} with the shell-quoted prompt.
func (p *CLIProvider) expandTemplate(prompt string) string {
	return strings.ReplaceAll(p.CustomCmd, "{{PROMPT}}", shellQuote(prompt))
}

// shellQuote wraps s in single quotes, escaping embedded single quotes.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\\''") + "'"
}

// ValidateTemplate checks that a custom command template carries the
// {{PROMPT}} placeholder. An empty template is valid (simple mode).
func ValidateTemplate(template string) error {
	if template == "" {
		return nil
	}
	if !strings.Contains(template, "{{PROMPT}}") {
		return fmt.Errorf("agent command template must contain {{PROMPT}} placeholder")
	}
	return nil
}
