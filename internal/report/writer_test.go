package report

import (
	"os"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWriter(t *testing.T) *Writer {
	t.Helper()
	stamp := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return NewWriter(t.TempDir(), stamp)
}

func TestWriter_FilenamesAreSessionStamped(t *testing.T) {
	t.Parallel()

	w := testWriter(t)

	assert.True(t, strings.HasSuffix(w.PerspectivePath(), "test-perspectives_20260314-092653.md"))
	assert.True(t, strings.HasSuffix(w.ExecutionPath(), "test-execution_20260314-092653.md"))
}

func TestWritePerspectives_SectionOrder(t *testing.T) {
	t.Parallel()

	w := testWriter(t)
	path, err := w.WritePerspectives(
		[]Metadata{{Key: "Task", Value: "t1"}, {Key: "Extracted", Value: "true"}},
		"| Case ID | Input / Precondition | Perspective | Expected Result | Notes |\n|---|---|---|---|---|\n| TC-01 | a | b | c | d |\n",
	)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	metaIdx := strings.Index(content, "- **Task**: t1")
	tableIdx := strings.Index(content, "| TC-01 |")
	require.GreaterOrEqual(t, metaIdx, 0)
	require.GreaterOrEqual(t, tableIdx, 0)
	assert.Less(t, metaIdx, tableIdx)
}

func TestWriteExecution_BlocksAreFencedAndOrdered(t *testing.T) {
	t.Parallel()

	w := testWriter(t)
	path, err := w.WriteExecution(
		[]Metadata{{Key: "Command", Value: "go test ./..."}},
		"All 12 tests passed.",
		[]Block{
			{Title: "Stdout", Text: "ok  \tpkg\t0.2s"},
			{Title: "Stderr", Text: ""},
			{Title: "Session Log", Text: "INFO phase=running-tests"},
		},
	)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)

	stdoutIdx := strings.Index(content, "## Stdout")
	stderrIdx := strings.Index(content, "## Stderr")
	logIdx := strings.Index(content, "## Session Log")
	assert.Less(t, stdoutIdx, stderrIdx)
	assert.Less(t, stderrIdx, logIdx)
	assert.Contains(t, content, "```\nok  \tpkg\t0.2s\n```")
}

func TestSanitize_StripsANSI(t *testing.T) {
	t.Parallel()

	colored := "\x1b[32mPASS\x1b[0m all tests"
	assert.Equal(t, "PASS all tests", Sanitize(colored))
}

func TestSanitize_TruncatesLongText(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", MaxBlockChars+500)
	out := Sanitize(long)

	assert.True(t, strings.HasSuffix(out, "... (truncated)"))
	assert.LessOrEqual(t, len(out), MaxBlockChars+len("\n... (truncated)"))
}

func TestSanitize_TruncatesOnRuneBoundary(t *testing.T) {
	t.Parallel()

	// Place a multibyte rune straddling the cut point.
	long := strings.Repeat("x", MaxBlockChars-1) + strings.Repeat("テスト失敗", 200)
	out := Sanitize(long)

	assert.True(t, utf8.ValidString(out))
	assert.True(t, strings.HasSuffix(out, "... (truncated)"))
}

func TestWriter_DistinctStampsNeverCollide(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	w1 := NewWriter(dir, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	w2 := NewWriter(dir, time.Date(2026, 3, 14, 9, 0, 1, 0, time.UTC))

	assert.NotEqual(t, w1.ExecutionPath(), w2.ExecutionPath())
}
