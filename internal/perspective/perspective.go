// Package perspective builds test-perspective tables from agent output.
// The agent is asked to emit a versioned JSON payload between literal
// markers; parsing falls back to a legacy Markdown table and, as a last
// resort, synthesizes a diagnostic table so a well-formed artifact is always
// produced. Parsers are ordered strategies, first success wins.
// Related: internal/agent/extract.go, internal/report/writer.go
// Tags: perspectives, extraction, parsing, fallback
package perspective

// Markers wrapping the structured payloads in agent output.
const (
	BeginJSONMarker = "<!-- BEGIN TEST PERSPECTIVES JSON -->"
	EndJSONMarker   = "<!-- END TEST PERSPECTIVES JSON -->"

	BeginLegacyMarker = "<!-- BEGIN TEST PERSPECTIVES -->"
	EndLegacyMarker   = "<!-- END TEST PERSPECTIVES -->"
)

// SchemaVersion is the perspective JSON payload version this pipeline emits
// and accepts.
const SchemaVersion = 1

// DiagnosticCaseID is the fixed case id of the synthesized row produced when
// every extraction strategy fails.
const DiagnosticCaseID = "TC-E-EXTRACT-01"

// Case is one row of the five-column perspective table.
type Case struct {
	CaseID            string `json:"caseId"`
	InputPrecondition string `json:"inputPrecondition"`
	Perspective       string `json:"perspective"`
	ExpectedResult    string `json:"expectedResult"`
	Notes             string `json:"notes"`
}

// Extraction is the outcome of running the parser chain over agent output.
type Extraction struct {
	// TableMarkdown is the rendered table, always well formed. For a failed
	// extraction it is the diagnostic table with the raw agent log attached.
	TableMarkdown string
	// Cases are the parsed rows. For a failed extraction this holds the
	// single diagnostic row.
	Cases []Case
	// Extracted distinguishes genuine agent-produced content from the
	// synthesized diagnostic; only genuine content feeds the generation
	// prompt.
	Extracted bool
	// Strategy names the parser that succeeded, empty on failure.
	Strategy string
	// FailureReason describes why extraction failed, empty on success.
	FailureReason string
}
