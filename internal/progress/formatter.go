package progress

import (
	"fmt"
	"strings"
)

// formatPhaseCounter returns the [N/Total] phase counter string
func formatPhaseCounter(number, total int) string {
	return fmt.Sprintf("[%d/%d]", number, total)
}

// buildPhaseMessage constructs the complete phase message
func buildPhaseMessage(phase PhaseInfo, action string) string {
	counter := formatPhaseCounter(phase.Number, phase.TotalPhases)
	return fmt.Sprintf("%s %s %s phase", counter, action, capitalize(phase.Name))
}

// capitalize returns the string with the first letter capitalized
func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// checkmark returns the appropriate checkmark symbol
func checkmark(symbols Symbols, supportsColor bool) string {
	mark := symbols.Checkmark
	if supportsColor && symbols.Checkmark == "✓" {
		mark = "\033[32m" + mark + "\033[0m" // Green
	}
	return mark
}

// failureMark returns the appropriate failure symbol
func failureMark(symbols Symbols, supportsColor bool) string {
	mark := symbols.Failure
	if supportsColor && symbols.Failure == "✗" {
		mark = "\033[31m" + mark + "\033[0m" // Red
	}
	return mark
}
