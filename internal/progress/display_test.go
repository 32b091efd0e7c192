// Package progress_test tests phase display rendering, phase counters, checkmarks, and spinner lifecycle.
// Related: internal/progress/display.go
// Tags: progress, display, rendering, phases, spinner, tty
package progress_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"testpilot/internal/progress"
)

// TestDisplay_StartPhase tests phase counter rendering in non-TTY mode
func TestDisplay_StartPhase(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		phase        progress.PhaseInfo
		wantContains []string
		wantErr      bool
	}{
		"first phase": {
			phase: progress.PhaseInfo{
				Name:        "preparing",
				Number:      1,
				TotalPhases: 4,
				Status:      progress.PhaseInProgress,
			},
			wantContains: []string{"[1/4]", "Preparing"},
		},
		"middle phase": {
			phase: progress.PhaseInfo{
				Name:        "generating",
				Number:      3,
				TotalPhases: 4,
				Status:      progress.PhaseInProgress,
			},
			wantContains: []string{"[3/4]", "Generating"},
		},
		"empty name rejected": {
			phase: progress.PhaseInfo{
				Number:      1,
				TotalPhases: 4,
			},
			wantErr: true,
		},
		"number exceeds total rejected": {
			phase: progress.PhaseInfo{
				Name:        "running tests",
				Number:      5,
				TotalPhases: 4,
			},
			wantErr: true,
		},
	}

	for name, tc := range tests {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			d := progress.NewDisplay(progress.TerminalCapabilities{}, progress.WithWriter(&buf))

			err := d.StartPhase(tc.phase)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, want := range tc.wantContains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("output %q missing %q", buf.String(), want)
				}
			}
		})
	}
}

// TestDisplay_CompletePhase tests completion message rendering
func TestDisplay_CompletePhase(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	caps := progress.TerminalCapabilities{SupportsUnicode: false}
	d := progress.NewDisplay(caps, progress.WithWriter(&buf))

	phase := progress.PhaseInfo{Name: "running tests", Number: 4, TotalPhases: 4}
	if err := d.CompletePhase(phase); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"[OK]", "[4/4]", "Running tests", "complete"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

// TestDisplay_FailPhase tests failure message rendering with the error text
func TestDisplay_FailPhase(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	d := progress.NewDisplay(progress.TerminalCapabilities{}, progress.WithWriter(&buf))

	phase := progress.PhaseInfo{Name: "preparing", Number: 1, TotalPhases: 4}
	if err := d.FailPhase(phase, errors.New("worktree creation failed")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"[FAIL]", "[1/4]", "Preparing", "worktree creation failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output %q missing %q", out, want)
		}
	}
}

// TestDisplay_StopSpinner_NoSpinner verifies StopSpinner is safe when nothing runs
func TestDisplay_StopSpinner_NoSpinner(t *testing.T) {
	t.Parallel()

	d := progress.NewDisplay(progress.TerminalCapabilities{})
	d.StopSpinner()
	d.StopSpinner()
}

func TestSelectSymbols(t *testing.T) {
	t.Parallel()

	unicode := progress.SelectSymbols(progress.TerminalCapabilities{SupportsUnicode: true})
	if unicode.Checkmark != "✓" || unicode.Failure != "✗" {
		t.Errorf("unexpected unicode symbols: %+v", unicode)
	}

	ascii := progress.SelectSymbols(progress.TerminalCapabilities{SupportsUnicode: false})
	if ascii.Checkmark != "[OK]" || ascii.Failure != "[FAIL]" {
		t.Errorf("unexpected ascii symbols: %+v", ascii)
	}
}

func TestPhaseStatus_String(t *testing.T) {
	t.Parallel()

	tests := map[progress.PhaseStatus]string{
		progress.PhasePending:    "pending",
		progress.PhaseInProgress: "in_progress",
		progress.PhaseCompleted:  "completed",
		progress.PhaseFailed:     "failed",
		progress.PhaseStatus(99): "unknown",
	}
	for status, want := range tests {
		if got := status.String(); got != want {
			t.Errorf("PhaseStatus(%d).String() = %q, want %q", status, got, want)
		}
	}
}
