// Package isolate creates and removes the disposable working copies used to
// sandbox agent-driven file writes. A copy is a detached git worktree under
// a base directory, named after the sanitized task id. Removal is
// best-effort and never returns an error: a session must always be able to
// finish its cleanup.
// Related: internal/session/session.go, internal/mergeback/engine.go
// Tags: isolation, worktree, git
package isolate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"testpilot/internal/logging"
)

// FallbackTaskID substitutes a blank or whitespace-only task id.
const FallbackTaskID = "task"

// maxTaskIDLen bounds the sanitized id used as a path segment.
const maxTaskIDLen = 120

// GitOps abstracts the git worktree primitives so tests can mock them.
type GitOps interface {
	WorktreeAdd(ctx context.Context, repoRoot, worktreePath, ref string) error
	WorktreeRemove(ctx context.Context, repoRoot, worktreePath string) error
}

// Manager creates and removes isolated copies.
type Manager struct {
	git GitOps
	log *logging.SessionLogger
}

// Option configures a Manager.
type Option func(*Manager)

// WithGitOps sets custom git operations (for testing).
func WithGitOps(ops GitOps) Option {
	return func(m *Manager) { m.git = ops }
}

// WithLogger sets the session logger.
func WithLogger(log *logging.SessionLogger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a Manager backed by the real git binary.
func NewManager(opts ...Option) *Manager {
	m := &Manager{git: execGitOps{}, log: logging.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SanitizeTaskID strips characters unsafe for filesystem paths, substitutes
// FallbackTaskID for blank input, and truncates to 120 characters.
func SanitizeTaskID(taskID string) string {
	var b strings.Builder
	for _, r := range taskID {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	s := b.String()
	if strings.Trim(s, ".") == "" {
		return FallbackTaskID
	}
	if len(s) > maxTaskIDLen {
		s = s[:maxTaskIDLen]
	}
	return s
}

// Create checks out a detached worktree of sourceRoot at ref (HEAD when
// blank) under baseDir, named after the sanitized task id. Returns the
// isolated directory path.
func (m *Manager) Create(ctx context.Context, sourceRoot, baseDir, taskID, ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		ref = "HEAD"
	}
	dir := filepath.Join(baseDir, SanitizeTaskID(taskID))

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return "", fmt.Errorf("creating isolation base directory: %w", err)
	}
	if err := m.git.WorktreeAdd(ctx, sourceRoot, dir, ref); err != nil {
		return "", fmt.Errorf("creating isolated copy: %w", err)
	}

	m.log.Info("isolated copy created", zap.String("dir", dir), zap.String("ref", ref))
	return dir, nil
}

// Remove tears down the isolated copy. Failures in the git removal are
// swallowed; as a final fallback the directory is forcibly deleted, and
// that step is failure-tolerant too. Remove never returns an error.
func (m *Manager) Remove(ctx context.Context, sourceRoot, isolatedDir string) {
	if isolatedDir == "" {
		return
	}

	if err := m.git.WorktreeRemove(ctx, sourceRoot, isolatedDir); err != nil {
		m.log.Warn("git worktree removal failed, falling back to force delete",
			zap.String("dir", isolatedDir), zap.Error(err))
	}

	if _, err := os.Stat(isolatedDir); err == nil {
		if err := os.RemoveAll(isolatedDir); err != nil {
			m.log.Warn("force delete of isolated copy failed", zap.String("dir", isolatedDir), zap.Error(err))
		}
	}
}

// execGitOps implements GitOps by shelling out to git.
type execGitOps struct{}

func (execGitOps) WorktreeAdd(ctx context.Context, repoRoot, worktreePath, ref string) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "add", "--detach", worktreePath, ref)
	cmd.Dir = repoRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree add: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (execGitOps) WorktreeRemove(ctx context.Context, repoRoot, worktreePath string) error {
	cmd := exec.CommandContext(ctx, "git", "worktree", "remove", "--force", worktreePath)
	cmd.Dir = repoRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree remove: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
