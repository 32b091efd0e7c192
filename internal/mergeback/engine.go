package mergeback

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"testpilot/internal/logging"
	"testpilot/internal/notify"
)

// ApplyResult reports the outcome of one merge-back attempt.
type ApplyResult struct {
	// Applied is true when the test-scoped diff landed in the primary
	// workspace (or there was nothing to merge).
	Applied bool
	// Reason explains a non-applied outcome.
	Reason string
}

// Engine computes the test-scoped diff inside the isolation and reconciles
// it with the primary workspace.
type Engine struct {
	Git        GitOps
	Classifier PathClassifier
	// StorageDir is the root for persisted patches, snapshots, and merge
	// instructions.
	StorageDir string
	Notify     *notify.Dispatcher
	Log        *logging.SessionLogger
}

// NewEngine creates an Engine with the default git backend and classifier.
func NewEngine(storageDir string, log *logging.SessionLogger, dispatcher *notify.Dispatcher) *Engine {
	return &Engine{
		Git:        ExecGitOps{},
		Classifier: DefaultClassifier{},
		StorageDir: storageDir,
		Notify:     dispatcher,
		Log:        log,
	}
}

// Reconcile merges test-file changes from isolatedDir into localRoot.
// Auto-apply is attempted only when the generation step exited zero; on any
// failure the patch, snapshots, and instructions are persisted instead.
// Reconcile never returns an error: every internal failure is caught,
// logged, and folded into the ApplyResult.
func (e *Engine) Reconcile(ctx context.Context, taskID, isolatedDir, localRoot string, generationExit *int) ApplyResult {
	log := e.log()

	paths, err := e.collectTestPaths(ctx, isolatedDir)
	if err != nil {
		log.Warn("merge-back: collecting changed paths failed", zap.Error(err))
		return ApplyResult{Applied: false, Reason: fmt.Sprintf("collecting changed paths: %v", err)}
	}
	if len(paths) == 0 {
		log.Info("merge-back: no test-file changes in isolated copy")
		return ApplyResult{Applied: true, Reason: "no test changes"}
	}

	patch, err := e.Git.Diff(ctx, isolatedDir, paths)
	if err != nil {
		log.Warn("merge-back: diff generation failed", zap.Error(err))
		return e.persistFallback(ctx, taskID, isolatedDir, paths, "", fmt.Sprintf("generating diff: %v", err))
	}
	if strings.TrimSpace(patch) == "" {
		log.Info("merge-back: empty diff, nothing to apply")
		return ApplyResult{Applied: true, Reason: "empty diff"}
	}
	// Patch-apply tooling requires a trailing newline.
	if !strings.HasSuffix(patch, "\n") {
		patch += "\n"
	}

	if generationExit == nil || *generationExit != 0 {
		reason := "generation step did not exit cleanly"
		log.Warn("merge-back: skipping auto-apply", zap.String("reason", reason))
		return e.persistFallback(ctx, taskID, isolatedDir, paths, patch, reason)
	}

	if err := e.Git.Apply(ctx, localRoot, patch, true); err != nil {
		log.Warn("merge-back: patch check failed", zap.Error(err))
		return e.persistFallback(ctx, taskID, isolatedDir, paths, patch, fmt.Sprintf("patch check failed: %v", err))
	}
	if err := e.Git.Apply(ctx, localRoot, patch, false); err != nil {
		log.Warn("merge-back: patch apply failed", zap.Error(err))
		return e.persistFallback(ctx, taskID, isolatedDir, paths, patch, fmt.Sprintf("patch apply failed: %v", err))
	}

	log.Info("merge-back: applied test changes locally", zap.Int("files", len(paths)))
	return ApplyResult{Applied: true}
}

// collectTestPaths returns the union of tracked-modified and untracked-new
// paths in the isolation, filtered to test paths, with untracked files
// marked intent-to-add so they appear in the diff.
func (e *Engine) collectTestPaths(ctx context.Context, isolatedDir string) ([]string, error) {
	entries, err := e.Git.Status(ctx, isolatedDir)
	if err != nil {
		return nil, err
	}

	var paths, untracked []string
	for _, entry := range entries {
		if !e.Classifier.IsTestPath(entry.Path) {
			continue
		}
		paths = append(paths, entry.Path)
		if entry.Untracked {
			untracked = append(untracked, entry.Path)
		}
	}

	if err := e.Git.IntentToAdd(ctx, isolatedDir, untracked); err != nil {
		return nil, err
	}
	return paths, nil
}

// persistFallback writes the durable manual-merge artifacts and notifies the
// user. Failures here are logged and reflected in the reason only.
func (e *Engine) persistFallback(ctx context.Context, taskID, isolatedDir string, paths []string, patch, reason string) ApplyResult {
	log := e.log()
	id := sanitizeArtifactID(taskID)

	var patchPath string
	if patch != "" {
		patchPath = filepath.Join(e.StorageDir, "patches", id+".patch")
		if err := writeFile(patchPath, []byte(patch)); err != nil {
			log.Warn("merge-back: persisting patch failed", zap.Error(err))
			patchPath = ""
		}
	}

	snapshotDir := filepath.Join(e.StorageDir, "snapshots", id)
	for _, rel := range paths {
		src := filepath.Join(isolatedDir, rel)
		data, err := os.ReadFile(src)
		if err != nil {
			log.Warn("merge-back: snapshot read failed", zap.String("path", rel), zap.Error(err))
			continue
		}
		if err := writeFile(filepath.Join(snapshotDir, rel), data); err != nil {
			log.Warn("merge-back: snapshot write failed", zap.String("path", rel), zap.Error(err))
		}
	}

	instructionsPath := filepath.Join(e.StorageDir, "merge-instructions", id+".md")
	doc := BuildInstructions(taskID, reason, patch, patchPath, snapshotDir, paths)
	if err := writeFile(instructionsPath, []byte(doc)); err != nil {
		log.Warn("merge-back: writing instructions failed", zap.Error(err))
		instructionsPath = ""
	}

	e.offerInstructions(instructionsPath, taskID, reason)

	return ApplyResult{Applied: false, Reason: reason}
}

// offerInstructions is fire-and-forget: it never blocks session completion.
func (e *Engine) offerInstructions(instructionsPath, taskID, reason string) {
	if e.Notify == nil {
		return
	}
	message := fmt.Sprintf("Generated tests could not be merged automatically (%s).", reason)
	var choices []notify.Choice
	if instructionsPath != "" {
		choices = append(choices, notify.Choice{
			Label: "Open merge instructions: " + instructionsPath,
		})
	}
	choices = append(choices, notify.Choice{Label: "Copy remediation prompt"})
	e.Notify.Offer(message, choices...)
}

func (e *Engine) log() *logging.SessionLogger {
	if e.Log != nil {
		return e.Log
	}
	return logging.NewNop()
}

func sanitizeArtifactID(taskID string) string {
	var b strings.Builder
	for _, r := range taskID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "task"
	}
	return b.String()
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
