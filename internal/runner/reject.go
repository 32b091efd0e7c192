package runner

import "strings"

// Rejection detection for agent-delegated runs. The backend has no
// structured refusal code, so classification is a keyword heuristic kept in
// one pure predicate so the lists can be tuned without touching control
// flow.

// rejectionTerms suggest the backend declined something.
var rejectionTerms = []string{
	"reject",
	"declin",
	"denied",
	"not allowed",
	"refus",
	"拒否",
}

// executionTerms anchor a rejection term to command execution rather than,
// say, test output that happens to mention rejected requests.
var executionTerms = []string{
	"command",
	"execution",
	"execute",
	"tool",
	"run",
	"shell",
	"コマンド",
	"実行",
}

// rejectionPhrases are literal refusals seen in the wild, including
// localized phrasing. Matched case-insensitively anywhere in stderr.
var rejectionPhrases = []string{
	"tool execution rejected",
	"the user doesn't want to proceed",
	"the user rejected",
	"permission to run this command was denied",
	"コマンドの実行が拒否されました",
	"実行が拒否されました",
}

// IsRejection reports whether an agent-delegated result looks like the
// backend refused to run the command rather than a genuine test outcome.
// Only meaningful for results from the cursorAgent runner.
func IsRejection(r Result) bool {
	if r.Runner != KindAgent || r.Skipped {
		return false
	}

	stderr := strings.ToLower(r.Stderr)

	for _, phrase := range rejectionPhrases {
		if strings.Contains(stderr, phrase) {
			return true
		}
	}

	if containsAny(stderr, rejectionTerms) && containsAny(stderr, executionTerms) {
		return true
	}

	return isSuspiciouslyEmpty(r)
}

// isSuspiciouslyEmpty flags results with no signal of any execution having
// happened: no exit code, zero duration, no output, no error.
func isSuspiciouslyEmpty(r Result) bool {
	return r.ExitCode == nil &&
		r.DurationMs == 0 &&
		r.Signal == nil &&
		r.Stdout == "" &&
		r.Stderr == "" &&
		r.ErrorMessage == ""
}

func containsAny(s string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}
