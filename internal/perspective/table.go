package perspective

import (
	"fmt"
	"strings"
)

// FixedHeader is the canonical English table header.
const FixedHeader = "| Case ID | Input / Precondition | Perspective | Expected Result | Notes |"

// headerKeywords, per column, accepted in English or Japanese when the
// header row does not match FixedHeader exactly.
var headerKeywords = [5][]string{
	{"case", "id", "ケース"},
	{"precondition", "input", "前提", "入力"},
	{"perspective", "viewpoint", "観点"},
	{"expected", "result", "期待"},
	{"notes", "note", "remarks", "備考"},
}

// RenderTable renders cases as a five-column Markdown table. Cell content is
// escaped so embedded pipes and newlines cannot break row structure.
func RenderTable(cases []Case) string {
	var b strings.Builder
	b.WriteString(FixedHeader)
	b.WriteString("\n|---|---|---|---|---|\n")
	for _, c := range cases {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			escapeCell(c.CaseID),
			escapeCell(c.InputPrecondition),
			escapeCell(c.Perspective),
			escapeCell(c.ExpectedResult),
			escapeCell(c.Notes),
		)
	}
	return b.String()
}

// ParseTable parses a legacy five-column Markdown table: a header row (fixed
// English or keyword-matched), a separator row of dashes with optional
// alignment colons, then body rows
// until the first non-table line. Any row with a cell-count mismatch
// invalidates the whole table.
func ParseTable(text string) ([]Case, error) {
	lines := strings.Split(text, "\n")

	headerIdx := -1
	for i, line := range lines {
		if isHeaderRow(line) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fmt.Errorf("no five-column header row found")
	}
	if headerIdx+1 >= len(lines) || !isSeparatorRow(lines[headerIdx+1]) {
		return nil, fmt.Errorf("header row is not followed by a separator row")
	}

	var cases []Case
	for _, line := range lines[headerIdx+2:] {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "|") {
			break
		}
		cells, ok := splitRow(trimmed)
		if !ok {
			return nil, fmt.Errorf("table row does not have exactly 5 cells: %q", trimmed)
		}
		cases = append(cases, Case{
			CaseID:            cells[0],
			InputPrecondition: cells[1],
			Perspective:       cells[2],
			ExpectedResult:    cells[3],
			Notes:             cells[4],
		})
	}

	if len(cases) == 0 {
		return nil, fmt.Errorf("table has no body rows")
	}
	return cases, nil
}

func isHeaderRow(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == FixedHeader {
		return true
	}
	cells, ok := splitRow(trimmed)
	if !ok {
		return false
	}
	for i, cell := range cells {
		lower := strings.ToLower(cell)
		matched := false
		for _, kw := range headerKeywords[i] {
			if strings.Contains(lower, kw) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// isSeparatorRow matches the header separator. Alignment colons (`:---`,
// `---:`) are accepted: agents frequently emit aligned tables, and rejecting
// the whole table over alignment markers would force the diagnostic path.
func isSeparatorRow(line string) bool {
	cells, ok := splitRow(strings.TrimSpace(line))
	if !ok {
		return false
	}
	for _, cell := range cells {
		if cell == "" {
			return false
		}
		for _, r := range cell {
			if r != '-' && r != ':' {
				return false
			}
		}
	}
	return true
}

// splitRow splits a `| a | b | ... |` line into trimmed cells, treating
// `\|` as an escaped, non-delimiting pipe. Returns ok=false unless the row
// has exactly 5 cells.
func splitRow(line string) ([5]string, bool) {
	var cells [5]string
	if !strings.HasPrefix(line, "|") || !strings.HasSuffix(line, "|") || len(line) < 2 {
		return cells, false
	}
	inner := line[1 : len(line)-1]

	var parts []string
	var cur strings.Builder
	escaped := false
	for _, r := range inner {
		switch {
		case escaped:
			if r != '|' {
				cur.WriteRune('\\')
			}
			cur.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == '|':
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if escaped {
		cur.WriteRune('\\')
	}
	parts = append(parts, cur.String())

	if len(parts) != 5 {
		return cells, false
	}
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells, true
}

func escapeCell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	s = strings.ReplaceAll(s, "\r\n", "<br>")
	s = strings.ReplaceAll(s, "\n", "<br>")
	return s
}
