package notify

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
)

// ConsoleNotifier prints notifications to a writer, colored by level.
// Choice prompts are printed as numbered hints; the first choice is treated
// as the default action and run immediately when AutoAccept is set, which is
// how non-interactive runs consume the merge-instructions offer.
type ConsoleNotifier struct {
	out        io.Writer
	autoAccept bool

	infoPrefix  func(a ...interface{}) string
	warnPrefix  func(a ...interface{}) string
	errorPrefix func(a ...interface{}) string
}

// ConsoleOption configures a ConsoleNotifier.
type ConsoleOption func(*ConsoleNotifier)

// WithWriter sets the output writer (default os.Stderr).
func WithWriter(w io.Writer) ConsoleOption {
	return func(c *ConsoleNotifier) { c.out = w }
}

// WithAutoAccept makes Offer run the first choice instead of printing hints.
func WithAutoAccept(enabled bool) ConsoleOption {
	return func(c *ConsoleNotifier) { c.autoAccept = enabled }
}

// NewConsoleNotifier creates a console-backed notifier.
func NewConsoleNotifier(opts ...ConsoleOption) *ConsoleNotifier {
	c := &ConsoleNotifier{
		out:         os.Stderr,
		infoPrefix:  color.New(color.FgCyan).SprintFunc(),
		warnPrefix:  color.New(color.FgYellow).SprintFunc(),
		errorPrefix: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Notify prints the notification with a colored level prefix.
func (c *ConsoleNotifier) Notify(n Notification) {
	var prefix string
	switch n.Level {
	case LevelWarning:
		prefix = c.warnPrefix("warning:")
	case LevelError:
		prefix = c.errorPrefix("error:")
	default:
		prefix = c.infoPrefix("info:")
	}
	fmt.Fprintf(c.out, "%s %s\n", prefix, n.Message)
}

// Offer prints the message and either runs the first choice (auto-accept)
// or lists the choices as hints without waiting for input.
func (c *ConsoleNotifier) Offer(message string, choices ...Choice) {
	fmt.Fprintf(c.out, "%s %s\n", c.infoPrefix("info:"), message)

	if c.autoAccept && len(choices) > 0 && choices[0].Run != nil {
		choices[0].Run()
		return
	}

	for i, choice := range choices {
		fmt.Fprintf(c.out, "  [%d] %s\n", i+1, choice.Label)
	}
}
