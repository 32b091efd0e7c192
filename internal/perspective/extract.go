package perspective

import (
	"encoding/json"
	"fmt"
	"strings"

	"testpilot/internal/agent"
)

// Strategy is one parser in the ordered extraction chain. Parse returns the
// cases on success or a reason describing why this strategy does not apply.
type Strategy interface {
	Name() string
	Parse(log string) ([]Case, error)
}

// DefaultStrategies returns the production parser chain: JSON v1 first,
// legacy Markdown table second.
func DefaultStrategies() []Strategy {
	return []Strategy{jsonStrategy{}, legacyTableStrategy{}}
}

// Extract runs the strategy chain over raw agent output, short-circuiting on
// the first success. When every strategy fails it synthesizes a diagnostic
// table so the caller always receives a well-formed artifact.
func Extract(rawLog string, strategies []Strategy) Extraction {
	if len(strategies) == 0 {
		strategies = DefaultStrategies()
	}

	var reasons []string
	for _, s := range strategies {
		cases, err := s.Parse(rawLog)
		if err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", s.Name(), err))
			continue
		}
		return Extraction{
			TableMarkdown: RenderTable(cases),
			Cases:         cases,
			Extracted:     true,
			Strategy:      s.Name(),
		}
	}

	reason := strings.Join(reasons, "; ")
	return synthesizeDiagnostic(reason, rawLog)
}

// jsonStrategy parses the v1 JSON payload between the JSON markers.
type jsonStrategy struct{}

func (jsonStrategy) Name() string { return "json-v1" }

type casesPayload struct {
	Version int    `json:"version"`
	Cases   []Case `json:"cases"`
}

func (jsonStrategy) Parse(log string) ([]Case, error) {
	block, ok := agent.ExtractLastBlock(log, BeginJSONMarker, EndJSONMarker)
	if !ok {
		return nil, fmt.Errorf("no complete JSON marker pair in output")
	}

	var payload casesPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(block)), &payload); err != nil {
		return nil, fmt.Errorf("parsing JSON payload: %w", err)
	}
	if payload.Version != SchemaVersion {
		return nil, fmt.Errorf("unsupported payload version %d", payload.Version)
	}
	if len(payload.Cases) == 0 {
		return nil, fmt.Errorf("payload contains no cases")
	}
	return payload.Cases, nil
}

// legacyTableStrategy parses a Markdown table between the legacy markers.
type legacyTableStrategy struct{}

func (legacyTableStrategy) Name() string { return "legacy-table" }

func (legacyTableStrategy) Parse(log string) ([]Case, error) {
	block, ok := agent.ExtractLastBlock(log, BeginLegacyMarker, EndLegacyMarker)
	if !ok {
		return nil, fmt.Errorf("no complete legacy marker pair in output")
	}
	return ParseTable(block)
}

// synthesizeDiagnostic builds the single-row failure table carrying the
// reason plus the raw agent log as a collapsible attachment.
func synthesizeDiagnostic(reason, rawLog string) Extraction {
	if reason == "" {
		reason = "no structured perspectives found in agent output"
	}
	diag := Case{
		CaseID:            DiagnosticCaseID,
		InputPrecondition: "-",
		Perspective:       "Perspective extraction failed",
		ExpectedResult:    "-",
		Notes:             reason,
	}

	var b strings.Builder
	b.WriteString(RenderTable([]Case{diag}))
	b.WriteString("\n<details>\n<summary>Raw agent log</summary>\n\n```\n")
	b.WriteString(strings.TrimRight(rawLog, "\n"))
	b.WriteString("\n```\n\n</details>\n")

	return Extraction{
		TableMarkdown: b.String(),
		Cases:         []Case{diag},
		Extracted:     false,
		FailureReason: reason,
	}
}
