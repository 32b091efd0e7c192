package mergeback

import (
	"fmt"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

// BuildInstructions renders the manual-merge instruction document: what
// happened, where the artifacts live, per-file change stats, and a
// copy-pasteable remediation prompt.
func BuildInstructions(taskID, reason, patch, patchPath, snapshotDir string, paths []string) string {
	var b strings.Builder

	b.WriteString("# Manual merge required\n\n")
	fmt.Fprintf(&b, "Task `%s` generated test changes in an isolated working copy, but they\n", taskID)
	fmt.Fprintf(&b, "could not be applied to your workspace automatically.\n\n")
	fmt.Fprintf(&b, "- **Reason**: %s\n", reason)
	if patchPath != "" {
		fmt.Fprintf(&b, "- **Patch**: `%s`\n", patchPath)
	}
	fmt.Fprintf(&b, "- **Snapshots**: `%s`\n", snapshotDir)
	b.WriteString("\n## Affected test files\n\n")

	stats := patchStats(patch)
	for _, rel := range paths {
		if stat, ok := stats[rel]; ok {
			fmt.Fprintf(&b, "- `%s` (+%d/-%d, %d changed)\n", rel, stat.Added, stat.Deleted, stat.Changed)
		} else {
			fmt.Fprintf(&b, "- `%s`\n", rel)
		}
	}

	b.WriteString("\n## How to merge\n\n")
	if patchPath != "" {
		fmt.Fprintf(&b, "1. Try the patch first: `git apply %q`\n", patchPath)
		b.WriteString("2. If the patch conflicts, copy the snapshot files over your workspace\n")
	} else {
		b.WriteString("1. Copy the snapshot files over your workspace\n")
	}
	b.WriteString("   and review the diff before committing.\n")

	b.WriteString("\n## Remediation prompt\n\n")
	b.WriteString("Paste this into your agent to finish the merge:\n\n")
	b.WriteString("```\n")
	fmt.Fprintf(&b, "The test files for task %s are snapshotted under %s.\n", taskID, snapshotDir)
	b.WriteString("Merge each snapshot into the matching path in this workspace, preserving\n")
	b.WriteString("any local changes, then run the test suite and report the results.\n")
	b.WriteString("```\n")

	return b.String()
}

// patchStats maps new-file paths to their diff stats. An unparseable patch
// yields an empty map; the document degrades to a bare file list.
func patchStats(patch string) map[string]diff.Stat {
	stats := make(map[string]diff.Stat)
	if patch == "" {
		return stats
	}

	fileDiffs, err := diff.ParseMultiFileDiff([]byte(patch))
	if err != nil {
		return stats
	}
	for _, fd := range fileDiffs {
		name := strings.TrimPrefix(fd.NewName, "b/")
		stats[name] = fd.Stat()
	}
	return stats
}
