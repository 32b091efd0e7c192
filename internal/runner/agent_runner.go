package runner

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"testpilot/internal/agent"
)

// Markers wrapping the agent-delegated execution payloads.
const (
	BeginExecJSONMarker = "<!-- BEGIN TEST EXECUTION JSON -->"
	EndExecJSONMarker   = "<!-- END TEST EXECUTION JSON -->"

	BeginExecLegacyMarker = "<!-- BEGIN TEST EXECUTION RESULT -->"
	EndExecLegacyMarker   = "<!-- END TEST EXECUTION RESULT -->"

	beginStdoutMarker = "<!-- BEGIN STDOUT -->"
	endStdoutMarker   = "<!-- END STDOUT -->"
	beginStderrMarker = "<!-- BEGIN STDERR -->"
	endStderrMarker   = "<!-- END STDERR -->"
)

// execSchemaVersion is the execution JSON payload version.
const execSchemaVersion = 1

// AgentRunner delegates execution to the backend through a constrained
// prompt: a single execution, no debugging or watch sessions, structured
// result between markers.
type AgentRunner struct {
	Provider agent.Provider
	// Timeout bounds the agent invocation. Zero means no timeout.
	Timeout time.Duration

	// OnInvocation, when set, receives the running invocation so the caller
	// can register its disposable handle for cancellation.
	OnInvocation func(*agent.Invocation)
}

// BuildExecutionPrompt returns the constrained prompt for one execution.
func BuildExecutionPrompt(command string) string {
	var b strings.Builder
	b.WriteString("Run this exact command once and report the result. ")
	b.WriteString("Do not start debugging sessions, watch modes, or additional commands.\n\n")
	fmt.Fprintf(&b, "Command: %s\n\n", command)
	b.WriteString("After the run, emit ONLY a JSON payload between the two literal marker lines below:\n")
	fmt.Fprintf(&b, "Schema: {\"version\":%d,\"exitCode\":number|null,\"signal\":string|null,\"durationMs\":number,\"stdout\":string,\"stderr\":string}\n\n", execSchemaVersion)
	b.WriteString(BeginExecJSONMarker)
	b.WriteString("\n{...}\n")
	b.WriteString(EndExecJSONMarker)
	b.WriteString("\n")
	return b.String()
}

// Run delegates the command to the agent and parses the reported result.
func (r *AgentRunner) Run(ctx context.Context, command, dir string) Result {
	result := Result{Command: command, Dir: dir, Runner: KindAgent}

	inv, err := r.Provider.Run(ctx, agent.Options{
		Prompt:  BuildExecutionPrompt(command),
		Dir:     dir,
		Timeout: r.Timeout,
	})
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("starting execution agent: %v", err)
		return result
	}
	if r.OnInvocation != nil {
		r.OnInvocation(inv)
	}

	runResult := agent.CollectResult(inv)

	parsed, err := ParseExecutionOutput(runResult.Log)
	if err != nil {
		result.ErrorMessage = fmt.Sprintf("parsing agent execution output: %v", err)
		result.Stderr = runResult.Log
		return result
	}

	result.ExitCode = parsed.ExitCode
	result.Signal = parsed.Signal
	result.DurationMs = parsed.DurationMs
	result.Stdout = parsed.Stdout
	result.Stderr = parsed.Stderr
	return result
}

// ExecutionReport is the agent-reported outcome of a delegated run.
type ExecutionReport struct {
	ExitCode   *int
	Signal     *string
	DurationMs int64
	Stdout     string
	Stderr     string
}

// ParseExecutionOutput extracts the execution report from agent output:
// JSON v1 first, legacy text block as fallback.
func ParseExecutionOutput(log string) (*ExecutionReport, error) {
	if report, err := parseExecutionJSON(log); err == nil {
		return report, nil
	}
	return parseExecutionLegacy(log)
}

type execPayload struct {
	Version    int     `json:"version"`
	ExitCode   *int    `json:"exitCode"`
	Signal     *string `json:"signal"`
	DurationMs int64   `json:"durationMs"`
	Stdout     string  `json:"stdout"`
	Stderr     string  `json:"stderr"`
}

func parseExecutionJSON(log string) (*ExecutionReport, error) {
	block, ok := agent.ExtractLastBlock(log, BeginExecJSONMarker, EndExecJSONMarker)
	if !ok {
		return nil, fmt.Errorf("no complete execution JSON marker pair")
	}

	var payload execPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &payload); err != nil {
		return nil, fmt.Errorf("parsing execution JSON: %w", err)
	}
	if payload.Version != execSchemaVersion {
		return nil, fmt.Errorf("unsupported execution payload version %d", payload.Version)
	}
	return &ExecutionReport{
		ExitCode:   payload.ExitCode,
		Signal:     payload.Signal,
		DurationMs: payload.DurationMs,
		Stdout:     payload.Stdout,
		Stderr:     payload.Stderr,
	}, nil
}

// parseExecutionLegacy reads the older text block format: exitCode:/signal:/
// durationMs: lines plus nested stdout/stderr sub-blocks.
func parseExecutionLegacy(log string) (*ExecutionReport, error) {
	block, ok := agent.ExtractLastBlock(log, BeginExecLegacyMarker, EndExecLegacyMarker)
	if !ok {
		return nil, fmt.Errorf("no complete execution result block")
	}

	report := &ExecutionReport{}
	sawExitCode := false

	for _, line := range strings.Split(block, "\n") {
		trimmed := strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(trimmed, "exitCode:"):
			value := strings.TrimSpace(strings.TrimPrefix(trimmed, "exitCode:"))
			sawExitCode = true
			if value != "null" && value != "" {
				code, err := strconv.Atoi(value)
				if err != nil {
					return nil, fmt.Errorf("invalid exitCode line %q", trimmed)
				}
				report.ExitCode = &code
			}
		case strings.HasPrefix(trimmed, "signal:"):
			value := strings.TrimSpace(strings.TrimPrefix(trimmed, "signal:"))
			if value != "null" && value != "" {
				sig := value
				report.Signal = &sig
			}
		case strings.HasPrefix(trimmed, "durationMs:"):
			value := strings.TrimSpace(strings.TrimPrefix(trimmed, "durationMs:"))
			ms, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid durationMs line %q", trimmed)
			}
			report.DurationMs = ms
		}
	}

	if !sawExitCode {
		return nil, fmt.Errorf("execution result block has no exitCode line")
	}

	if stdout, ok := agent.ExtractLastBlock(block, beginStdoutMarker, endStdoutMarker); ok {
		report.Stdout = strings.Trim(stdout, "\n")
	}
	if stderr, ok := agent.ExtractLastBlock(block, beginStderrMarker, endStderrMarker); ok {
		report.Stderr = strings.Trim(stderr, "\n")
	}
	return report, nil
}
