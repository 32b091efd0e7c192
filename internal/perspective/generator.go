package perspective

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"testpilot/internal/agent"
	"testpilot/internal/logging"
)

// Request describes the code change to enumerate perspectives for.
type Request struct {
	// ChangeDescription is the user's description of the change under test.
	ChangeDescription string
	// Dir is the workspace the agent should inspect.
	Dir string
	// Timeout bounds the agent invocation. Zero means no timeout.
	Timeout time.Duration
}

// Generator drives the agent to produce a perspective table and runs the
// extraction chain over its output.
type Generator struct {
	Provider   agent.Provider
	Log        *logging.SessionLogger
	Strategies []Strategy

	// OnInvocation, when set, receives the running invocation so the caller
	// can register its disposable handle for cancellation.
	OnInvocation func(*agent.Invocation)
}

// BuildPrompt returns the prompt instructing the agent to emit only the v1
// JSON payload between the literal markers.
func BuildPrompt(changeDescription string) string {
	var b strings.Builder
	b.WriteString("Enumerate test perspectives for the following code change. ")
	b.WriteString("Analyze the change and list the cases a reviewer would want covered.\n\n")
	b.WriteString("Change under test:\n")
	b.WriteString(changeDescription)
	b.WriteString("\n\n")
	b.WriteString("Output requirements:\n")
	b.WriteString("- Emit ONLY a JSON payload between the two literal marker lines below. No prose before, between, or after.\n")
	fmt.Fprintf(&b, "- Schema: {\"version\":%d,\"cases\":[{\"caseId\":string,\"inputPrecondition\":string,\"perspective\":string,\"expectedResult\":string,\"notes\":string}]}\n", SchemaVersion)
	b.WriteString("- caseId format: TC-01, TC-02, ...\n\n")
	b.WriteString(BeginJSONMarker)
	b.WriteString("\n{...}\n")
	b.WriteString(EndJSONMarker)
	b.WriteString("\n")
	return b.String()
}

// Generate runs the agent and extracts the perspective table. The returned
// Extraction is always usable; a failed extraction carries the synthesized
// diagnostic table. The error is non-nil only when the agent could not be
// started at all.
func (g *Generator) Generate(ctx context.Context, req Request) (Extraction, error) {
	log := g.log()
	prompt := BuildPrompt(req.ChangeDescription)

	inv, err := g.Provider.Run(ctx, agent.Options{
		Prompt:  prompt,
		Dir:     req.Dir,
		Timeout: req.Timeout,
	})
	if err != nil {
		return Extraction{}, fmt.Errorf("starting perspective agent: %w", err)
	}
	if g.OnInvocation != nil {
		g.OnInvocation(inv)
	}

	result := agent.CollectResult(inv)
	if result.ExitCode == nil {
		log.Warn("perspective agent ended without exit status")
	}

	extraction := Extract(result.Log, g.Strategies)
	if extraction.Extracted {
		log.Info("perspective table extracted",
			zap.String("strategy", extraction.Strategy),
			zap.Int("cases", len(extraction.Cases)))
	} else {
		log.Warn("perspective extraction failed, synthesized diagnostic table",
			zap.String("reason", extraction.FailureReason))
	}
	return extraction, nil
}

func (g *Generator) log() *logging.SessionLogger {
	if g.Log != nil {
		return g.Log
	}
	return logging.NewNop()
}
