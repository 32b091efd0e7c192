package session

import (
	"fmt"
	"strings"

	"testpilot/internal/runner"
)

// buildExecutionBody renders the execution report body. When a correlated
// result file exists it carries the aggregate counts, the per-test list,
// and failed-test details; otherwise the body is a one-line status.
func buildExecutionBody(result runner.Result) string {
	var b strings.Builder

	switch {
	case result.Skipped:
		fmt.Fprintf(&b, "Test execution was skipped: %s.\n", result.SkipReason)
	case result.ErrorMessage != "":
		fmt.Fprintf(&b, "Test execution failed to start: %s\n", result.ErrorMessage)
	case result.Succeeded():
		b.WriteString("Tests passed.\n")
	default:
		b.WriteString("Tests did not pass.\n")
	}

	file := result.ResultFile
	if file == nil {
		return b.String()
	}

	b.WriteString("\n")
	fmt.Fprintf(&b, "Result file: `%s`\n\n", result.ResultFilePath)
	fmt.Fprintf(&b, "| Passes | Failures | Pending | Total |\n")
	fmt.Fprintf(&b, "| --- | --- | --- | --- |\n")
	fmt.Fprintf(&b, "| %d | %d | %d | %d |\n", file.Passes, file.Failures, file.Pending, file.Total)

	if len(file.Tests) > 0 {
		b.WriteString("\n### Tests\n\n")
		for _, test := range file.Tests {
			mark := "✗"
			if test.State == "passed" {
				mark = "✓"
			}
			fmt.Fprintf(&b, "- %s %s (%dms)\n", mark, escapeInline(test.Title), test.Duration)
		}
	}

	if len(file.FailedTests) > 0 {
		b.WriteString("\n### Failed tests\n\n")
		for _, failed := range file.FailedTests {
			fmt.Fprintf(&b, "- %s\n", escapeInline(failed.Title))
			if failed.Message != "" {
				fmt.Fprintf(&b, "  - %s\n", escapeInline(failed.Message))
			}
		}
	}

	return b.String()
}

// escapeInline keeps test titles from breaking the list markup.
func escapeInline(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.ReplaceAll(s, "|", "\\|")
}
