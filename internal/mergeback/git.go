package mergeback

import (
	"bufio"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// StatusEntry is one line of `git status --porcelain`.
type StatusEntry struct {
	// Path is the repository-relative path (the new path for renames).
	Path string
	// Untracked is true for `??` entries.
	Untracked bool
}

// GitOps abstracts the git operations the engine needs, for mocking.
type GitOps interface {
	Status(ctx context.Context, dir string) ([]StatusEntry, error)
	IntentToAdd(ctx context.Context, dir string, paths []string) error
	Diff(ctx context.Context, dir string, paths []string) (string, error)
	// Apply applies the patch text to dir. With check set it only verifies
	// the patch would apply cleanly.
	Apply(ctx context.Context, dir, patch string, check bool) error
}

// ExecGitOps implements GitOps by shelling out to git.
type ExecGitOps struct{}

func (ExecGitOps) Status(ctx context.Context, dir string) ([]StatusEntry, error) {
	cmd := exec.CommandContext(ctx, "git", "status", "--porcelain")
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git status: %w", err)
	}
	return parseStatus(output)
}

func parseStatus(output []byte) ([]StatusEntry, error) {
	var entries []StatusEntry
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) < 4 {
			continue
		}
		code := line[:2]
		path := line[3:]
		// Renames report "old -> new"; the new path is the one that exists.
		if idx := strings.Index(path, " -> "); idx >= 0 {
			path = path[idx+4:]
		}
		path = strings.Trim(path, `"`)
		entries = append(entries, StatusEntry{Path: path, Untracked: code == "??"})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("parsing git status output: %w", err)
	}
	return entries, nil
}

func (ExecGitOps) IntentToAdd(ctx context.Context, dir string, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	args := append([]string{"add", "--intent-to-add", "--"}, paths...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git add --intent-to-add: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}

func (ExecGitOps) Diff(ctx context.Context, dir string, paths []string) (string, error) {
	args := append([]string{"diff", "--binary", "--"}, paths...)
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git diff: %w", err)
	}
	return string(output), nil
}

func (ExecGitOps) Apply(ctx context.Context, dir, patch string, check bool) error {
	args := []string{"apply", "--whitespace=nowarn"}
	if check {
		args = append(args, "--check")
	}
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	cmd.Stdin = strings.NewReader(patch)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git apply: %w: %s", err, strings.TrimSpace(string(output)))
	}
	return nil
}
