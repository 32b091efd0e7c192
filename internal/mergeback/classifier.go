// Package mergeback reconciles test-file changes made in an isolated copy
// back into the primary workspace. A test-scoped unified diff is generated
// inside the isolation and auto-applied locally when safe; otherwise the
// engine persists a patch, full-content snapshots, and a human-readable
// instruction document, and offers the user a manual-merge escape hatch.
// Nothing in this package ever propagates an exception to the session.
// Related: internal/isolate/isolate.go, internal/session/session.go
// Tags: merge-back, patch, diff, snapshots
package mergeback

import "strings"

// PathClassifier decides which repository-relative paths belong to the
// test-scoped diff.
type PathClassifier interface {
	IsTestPath(rel string) bool
}

// DefaultClassifier recognizes common test locations and naming patterns.
type DefaultClassifier struct{}

var testDirPrefixes = []string{"test/", "tests/", "spec/", "__tests__/"}

var testNameMarkers = []string{"_test.", ".test.", ".spec.", "_spec."}

// IsTestPath reports whether rel looks like a test file.
func (DefaultClassifier) IsTestPath(rel string) bool {
	rel = strings.ReplaceAll(rel, "\\", "/")

	for _, prefix := range testDirPrefixes {
		if strings.HasPrefix(rel, prefix) || strings.Contains(rel, "/"+prefix) {
			return true
		}
	}

	base := rel
	if idx := strings.LastIndex(rel, "/"); idx >= 0 {
		base = rel[idx+1:]
	}
	for _, marker := range testNameMarkers {
		if strings.Contains(base, marker) {
			return true
		}
	}
	return false
}
