// Package resultfile reads the side-channel test-result file an instrumented
// test run may emit, and decides whether it belongs to the execution that
// just finished. The file is produced by a process outside this pipeline's
// control and is consumed read-only; a stale or unreadable file degrades to
// "no correlated result", never to an error.
// Related: internal/runner/executor.go
// Tags: result-file, correlation, freshness
package resultfile

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// RelativePath is the result file location under the run workspace root.
var RelativePath = filepath.Join(".vscode-test", "test-result.json")

// EnvVar communicates the expected result file path to the test process.
const EnvVar = "TESTPILOT_RESULT_FILE"

// DefaultFreshnessWindow is the default tolerance when deciding whether the
// file corresponds to the just-completed run. Tunable, not a correctness
// guarantee: clock skew across process boundaries is not accounted for.
const DefaultFreshnessWindow = 1000 * time.Millisecond

// TestEntry is one test in the optional per-test list.
type TestEntry struct {
	Title    string `json:"title"`
	FullName string `json:"fullName,omitempty"`
	State    string `json:"state,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// FailedTest carries failure details for one failing test.
type FailedTest struct {
	Title   string `json:"title"`
	Message string `json:"message,omitempty"`
	Stack   string `json:"stack,omitempty"`
}

// TestResultFile is the parsed side-channel artifact.
type TestResultFile struct {
	// Timestamp is the producer's self-reported creation time, Unix millis.
	Timestamp int64 `json:"timestamp"`
	Passes    int   `json:"passes"`
	Failures  int   `json:"failures"`
	Pending   int   `json:"pending"`
	Total     int   `json:"total"`

	Tests       []TestEntry  `json:"tests,omitempty"`
	FailedTests []FailedTest `json:"failedTests,omitempty"`
}

// Path returns the expected result file path for a run root.
func Path(runRoot string) string {
	return filepath.Join(runRoot, RelativePath)
}

// Correlate reads the result file under runRoot and accepts it when it is
// fresh relative to the execution start: either the file's mtime or its
// embedded timestamp must be at or after start minus the window. Any stat,
// read, or parse failure yields (nil, "").
func Correlate(runRoot string, start time.Time, window time.Duration) (*TestResultFile, string) {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	path := Path(runRoot)

	info, err := os.Stat(path)
	if err != nil {
		return nil, ""
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ""
	}

	var result TestResultFile
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, ""
	}

	cutoff := start.Add(-window)
	mtimeFresh := !info.ModTime().Before(cutoff)
	embeddedFresh := result.Timestamp > 0 && result.Timestamp >= cutoff.UnixMilli()
	if !mtimeFresh && !embeddedFresh {
		return nil, ""
	}

	return &result, path
}
