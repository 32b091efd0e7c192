// Package report persists the pipeline's Markdown artifacts: the perspective
// table and the execution report. Filenames are keyed by a session-scoped
// timestamp so concurrent sessions never overwrite each other's files.
// Sections are emitted in a fixed order: metadata list, table or body, then
// fenced stdout/stderr/log blocks with ANSI escapes stripped and long text
// truncated.
// Related: internal/perspective/perspective.go, internal/runner/result.go
// Tags: report, markdown, artifacts
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxBlockChars caps the length of each fenced block.
const MaxBlockChars = 10000

// timestampLayout keys artifact filenames to the owning session.
const timestampLayout = "20060102-150405"

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Writer persists Markdown reports under a configured directory.
type Writer struct {
	// Dir is the output directory, created on demand.
	Dir string
	// Stamp is the session timestamp baked into filenames.
	Stamp time.Time
}

// NewWriter creates a Writer stamping files with the given session time.
func NewWriter(dir string, stamp time.Time) *Writer {
	return &Writer{Dir: dir, Stamp: stamp}
}

// PerspectivePath returns the perspective report path for this session.
func (w *Writer) PerspectivePath() string {
	return filepath.Join(w.Dir, fmt.Sprintf("test-perspectives_%s.md", w.Stamp.Format(timestampLayout)))
}

// ExecutionPath returns the execution report path for this session.
func (w *Writer) ExecutionPath() string {
	return filepath.Join(w.Dir, fmt.Sprintf("test-execution_%s.md", w.Stamp.Format(timestampLayout)))
}

// Metadata is one key/value line of a report's metadata list.
type Metadata struct {
	Key   string
	Value string
}

// Block is one fenced text section appended after the report body.
type Block struct {
	Title string
	Text  string
}

// WritePerspectives persists the perspective table report and returns its
// path.
func (w *Writer) WritePerspectives(meta []Metadata, tableMarkdown string) (string, error) {
	var b strings.Builder
	b.WriteString("# Test Perspectives\n\n")
	writeMetadata(&b, meta)
	b.WriteString(tableMarkdown)
	if !strings.HasSuffix(tableMarkdown, "\n") {
		b.WriteString("\n")
	}
	return w.save(w.PerspectivePath(), b.String())
}

// WriteExecution persists the execution report: metadata, body, then fenced
// blocks in the order given.
func (w *Writer) WriteExecution(meta []Metadata, body string, blocks []Block) (string, error) {
	var b strings.Builder
	b.WriteString("# Test Execution\n\n")
	writeMetadata(&b, meta)
	if body != "" {
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	for _, block := range blocks {
		fmt.Fprintf(&b, "## %s\n\n```\n%s\n```\n\n", block.Title, Sanitize(block.Text))
	}
	return w.save(w.ExecutionPath(), strings.TrimRight(b.String(), "\n")+"\n")
}

func writeMetadata(b *strings.Builder, meta []Metadata) {
	for _, m := range meta {
		fmt.Fprintf(b, "- **%s**: %s\n", m.Key, m.Value)
	}
	if len(meta) > 0 {
		b.WriteString("\n")
	}
}

func (w *Writer) save(path, content string) (string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("creating report directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing report: %w", err)
	}
	return path, nil
}

// Sanitize strips ANSI escape sequences and truncates long text. The cut
// lands on a rune boundary so multibyte output never yields invalid UTF-8.
func Sanitize(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	s = strings.TrimRight(s, "\n")
	if len(s) > MaxBlockChars {
		cut := MaxBlockChars
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut] + "\n... (truncated)"
	}
	return s
}
