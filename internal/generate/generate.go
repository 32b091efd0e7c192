// Package generate drives the agent to write test code for a change, then
// removes stray perspective artifacts the agent may have leaked
// into the workspace root. Only files carrying the pipeline's own internal
// markers are ever deleted; nothing else in the user's workspace is touched.
// Related: internal/perspective/generator.go, internal/agent/agent.go
// Tags: generation, test-code, cleanup
package generate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"testpilot/internal/agent"
	"testpilot/internal/logging"
	"testpilot/internal/perspective"
)

// Request describes one test-generation run.
type Request struct {
	// ChangeDescription is the user's description of the change under test.
	ChangeDescription string
	// Dir is the workspace the agent writes tests into (the run root).
	Dir string
	// Table is the perspective extraction from the previous phase. Only a
	// genuine (Extracted) table is injected into the prompt.
	Table *perspective.Extraction
	// Timeout bounds the agent invocation. Zero means no timeout.
	Timeout time.Duration
}

// Generator drives the agent with write permission to produce test files.
type Generator struct {
	Provider agent.Provider
	Log      *logging.SessionLogger

	// OnInvocation, when set, receives the running invocation so the caller
	// can register its disposable handle for cancellation.
	OnInvocation func(*agent.Invocation)
}

// BuildPrompt assembles the generation prompt, appending the perspective
// table with coverage instructions when a genuine table exists.
func BuildPrompt(changeDescription string, table *perspective.Extraction) string {
	var b strings.Builder
	b.WriteString("Write automated tests for the following code change. ")
	b.WriteString("Place test files next to the code they verify, following the project's existing test conventions.\n\n")
	b.WriteString("Change under test:\n")
	b.WriteString(changeDescription)
	b.WriteString("\n")

	if table != nil && table.Extracted {
		b.WriteString("\nCover every case listed in this perspective table. ")
		b.WriteString("Tag each generated test with its case id in a comment.\n\n")
		b.WriteString(table.TableMarkdown)
	}
	return b.String()
}

// Generate runs the agent and returns its drained result. The error is
// non-nil only when the agent could not be started.
func (g *Generator) Generate(ctx context.Context, req Request) (agent.RunResult, error) {
	inv, err := g.Provider.Run(ctx, agent.Options{
		Prompt:      BuildPrompt(req.ChangeDescription, req.Table),
		Dir:         req.Dir,
		AllowWrites: true,
		Timeout:     req.Timeout,
	})
	if err != nil {
		return agent.RunResult{}, fmt.Errorf("starting generation agent: %w", err)
	}
	if g.OnInvocation != nil {
		g.OnInvocation(inv)
	}

	result := agent.CollectResult(inv)
	log := g.log()
	if result.Succeeded() {
		log.Info("test generation completed", zap.Int("filesReported", len(result.FilesWritten)))
	} else {
		log.Warn("test generation ended without clean exit")
	}
	return result, nil
}

func (g *Generator) log() *logging.SessionLogger {
	if g.Log != nil {
		return g.Log
	}
	return logging.NewNop()
}

// strayNamePatterns match artifact-like filenames the agent sometimes drops
// in the workspace root instead of answering inline.
var strayNamePatterns = []string{
	"test-perspectives*.md",
	"test_perspectives*.md",
	"perspectives*.md",
}

// internalMarkers identify content as this pipeline's own artifact. A file
// without one of these is never deleted, whatever its name.
var internalMarkers = []string{
	perspective.BeginJSONMarker,
	perspective.BeginLegacyMarker,
}

// CleanupStrayFiles scans root (non-recursive) for perspective-like files
// and deletes only those carrying an internal marker. Returns the deleted
// paths. Failures are logged and skipped, never fatal.
func CleanupStrayFiles(root string, log *logging.SessionLogger) []string {
	if log == nil {
		log = logging.NewNop()
	}

	var deleted []string
	for _, pattern := range strayNamePatterns {
		matches, err := filepath.Glob(filepath.Join(root, pattern))
		if err != nil {
			continue
		}
		for _, path := range matches {
			data, err := os.ReadFile(path)
			if err != nil {
				log.Warn("stray-file scan: read failed", zap.String("path", path), zap.Error(err))
				continue
			}
			if !containsInternalMarker(string(data)) {
				continue
			}
			if err := os.Remove(path); err != nil {
				log.Warn("stray-file scan: delete failed", zap.String("path", path), zap.Error(err))
				continue
			}
			log.Info("deleted stray perspective artifact", zap.String("path", path))
			deleted = append(deleted, path)
		}
	}
	return deleted
}

func containsInternalMarker(content string) bool {
	for _, marker := range internalMarkers {
		if strings.Contains(content, marker) {
			return true
		}
	}
	return false
}
