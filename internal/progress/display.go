package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
)

// Display orchestrates the rendering of phase progress indicators
type Display struct {
	capabilities TerminalCapabilities
	currentPhase *PhaseInfo
	spinner      *spinner.Spinner
	symbols      Symbols
	out          io.Writer
}

// Option configures a Display
type Option func(*Display)

// WithWriter overrides the output writer for non-spinner messages
func WithWriter(w io.Writer) Option {
	return func(d *Display) {
		d.out = w
	}
}

// NewDisplay creates a new progress display with the given terminal capabilities
func NewDisplay(caps TerminalCapabilities, opts ...Option) *Display {
	d := &Display{
		capabilities: caps,
		symbols:      SelectSymbols(caps),
		out:          os.Stdout,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// StartPhase begins displaying progress for a phase
func (d *Display) StartPhase(phase PhaseInfo) error {
	if err := phase.Validate(); err != nil {
		return err
	}

	d.StopSpinner()
	d.currentPhase = &phase

	msg := buildPhaseMessage(phase, "Running")

	if d.capabilities.IsTTY {
		d.spinner = spinner.New(
			spinner.CharSets[d.symbols.SpinnerSet],
			100*time.Millisecond,
		)
		d.spinner.Writer = os.Stderr // keep stdout clean for agent output
		d.spinner.Suffix = " " + msg
		d.spinner.Start()
	} else {
		fmt.Fprintln(d.out, msg)
	}

	return nil
}

// CompletePhase stops the spinner and displays completion status
func (d *Display) CompletePhase(phase PhaseInfo) error {
	d.StopSpinner()

	mark := checkmark(d.symbols, d.capabilities.SupportsColor)
	counter := formatPhaseCounter(phase.Number, phase.TotalPhases)
	fmt.Fprintf(d.out, "%s %s %s phase complete\n", mark, counter, capitalize(phase.Name))

	d.currentPhase = nil
	return nil
}

// FailPhase stops the spinner and displays failure status
func (d *Display) FailPhase(phase PhaseInfo, err error) error {
	d.StopSpinner()

	mark := failureMark(d.symbols, d.capabilities.SupportsColor)
	counter := formatPhaseCounter(phase.Number, phase.TotalPhases)
	fmt.Fprintf(d.out, "%s %s %s phase failed: %v\n", mark, counter, capitalize(phase.Name), err)

	d.currentPhase = nil
	return nil
}

// StopSpinner stops the spinner without showing completion/failure.
// Useful when pausing progress display during interactive output.
func (d *Display) StopSpinner() {
	if d.spinner != nil {
		d.spinner.Stop()
		d.spinner = nil
	}
}
