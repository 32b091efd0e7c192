package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"syscall"
	"time"

	"testpilot/internal/resultfile"
)

// ExtensionRunner spawns the test command directly as a subprocess. The
// result file path is exported to the child via an environment variable so
// an instrumented test run can emit structured results.
type ExtensionRunner struct{}

// Run executes command via the shell in dir and captures its outcome.
func (ExtensionRunner) Run(ctx context.Context, command, dir string) Result {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), resultfile.EnvVar+"="+resultfile.Path(dir))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start).Milliseconds()

	result := Result{
		Command:    command,
		Dir:        dir,
		DurationMs: duration,
		Stdout:     stdout.String(),
		Stderr:     stderr.String(),
		Runner:     KindExtension,
	}

	switch e := err.(type) {
	case nil:
		zero := 0
		result.ExitCode = &zero
	case *exec.ExitError:
		if ws, ok := e.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			sig := ws.Signal().String()
			result.Signal = &sig
		} else {
			code := e.ExitCode()
			result.ExitCode = &code
		}
	default:
		// Spawn failure: no exit status at all.
		result.ErrorMessage = err.Error()
	}

	return result
}
