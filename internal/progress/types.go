// Package progress provides phase progress display for test generation sessions.
// It defines phase status tracking and terminal display helpers including
// spinners and formatted output.
package progress

import "fmt"

// PhaseStatus represents the execution state of a session phase
type PhaseStatus int

const (
	// PhasePending indicates the phase has not started yet
	PhasePending PhaseStatus = iota
	// PhaseInProgress indicates the phase is currently running
	PhaseInProgress
	// PhaseCompleted indicates the phase finished successfully
	PhaseCompleted
	// PhaseFailed indicates the phase failed with an error
	PhaseFailed
)

// String returns the string representation of PhaseStatus
func (s PhaseStatus) String() string {
	switch s {
	case PhasePending:
		return "pending"
	case PhaseInProgress:
		return "in_progress"
	case PhaseCompleted:
		return "completed"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PhaseInfo represents metadata about a session phase for progress display
type PhaseInfo struct {
	// Name is the human-readable phase name (e.g., "preparing", "generating")
	Name string
	// Number is the current phase number (1-based index)
	Number int
	// TotalPhases is the total number of phases in the session
	TotalPhases int
	// Status is the current execution status
	Status PhaseStatus
}

// Validate checks that all PhaseInfo fields meet validation requirements
func (p PhaseInfo) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("phase name cannot be empty")
	}
	if p.Number <= 0 {
		return fmt.Errorf("phase number must be > 0")
	}
	if p.TotalPhases <= 0 {
		return fmt.Errorf("total phases must be > 0")
	}
	if p.Number > p.TotalPhases {
		return fmt.Errorf("phase number cannot exceed total phases")
	}
	return nil
}

// TerminalCapabilities encapsulates detected terminal features
type TerminalCapabilities struct {
	// IsTTY indicates whether stdout is a terminal (vs pipe/redirect)
	IsTTY bool
	// SupportsColor indicates whether terminal supports ANSI color codes
	SupportsColor bool
	// SupportsUnicode indicates whether terminal supports Unicode characters
	SupportsUnicode bool
	// Width is the terminal width in columns (0 if unknown/pipe)
	Width int
}

// Symbols defines the character set for visual indicators
type Symbols struct {
	// Checkmark is the success indicator ("✓" or "[OK]")
	Checkmark string
	// Failure is the failure indicator ("✗" or "[FAIL]")
	Failure string
	// SpinnerSet is the index into spinner.CharSets
	SpinnerSet int
}
