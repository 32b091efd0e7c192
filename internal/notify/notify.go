// Package notify delivers transient user-facing notifications for the
// pipeline: error/warning/info toasts plus fire-and-forget choice prompts
// (e.g. offering to open merge instructions). Durable logging is the
// session logger's job; this package is only the ephemeral surface.
// Related: internal/session/session.go, internal/mergeback/engine.go
// Tags: notify, notifications, user-surface
package notify

// Level represents the severity of a notification.
type Level string

const (
	// LevelInfo indicates an informational notification.
	LevelInfo Level = "info"
	// LevelWarning indicates a recoverable problem.
	LevelWarning Level = "warning"
	// LevelError indicates a failure the user should look at.
	LevelError Level = "error"
)

// Notification represents a single notification event to dispatch.
type Notification struct {
	// Level is the severity of the event.
	Level Level
	// Message is the notification body text.
	Message string
}

// Choice is one selectable action offered alongside a notification.
type Choice struct {
	// Label is the button text shown to the user.
	Label string
	// Run executes the action when the user picks this choice.
	Run func()
}

// Notifier is the surface the pipeline talks to. Implementations must never
// block the caller: choice prompts are fire-and-forget and a session never
// waits for the user's answer.
type Notifier interface {
	Notify(n Notification)
	// Offer presents a message with selectable choices. Implementations may
	// drop the choices entirely (e.g. non-interactive environments).
	Offer(message string, choices ...Choice)
}

// Dispatcher fans a notification out to an optional Notifier, tolerating a
// nil target so callers never need nil checks.
type Dispatcher struct {
	target Notifier
}

// NewDispatcher creates a dispatcher wrapping the given notifier (nil is
// allowed and yields a no-op dispatcher).
func NewDispatcher(target Notifier) *Dispatcher {
	return &Dispatcher{target: target}
}

// Info dispatches an informational notification.
func (d *Dispatcher) Info(message string) {
	d.send(Notification{Level: LevelInfo, Message: message})
}

// Warning dispatches a warning notification.
func (d *Dispatcher) Warning(message string) {
	d.send(Notification{Level: LevelWarning, Message: message})
}

// Error dispatches an error notification.
func (d *Dispatcher) Error(message string) {
	d.send(Notification{Level: LevelError, Message: message})
}

// Offer forwards a choice prompt. Never blocks, never fails.
func (d *Dispatcher) Offer(message string, choices ...Choice) {
	if d == nil || d.target == nil {
		return
	}
	d.target.Offer(message, choices...)
}

func (d *Dispatcher) send(n Notification) {
	if d == nil || d.target == nil {
		return
	}
	d.target.Notify(n)
}
