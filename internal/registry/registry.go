// Package registry tracks active generation sessions and their cancellation
// state. The registry is a constructor-injected service instance, never a
// package-level singleton, so tests and embedders can run isolated copies.
// Cancellation correctness is carried by context.Context through the session;
// the registry exists for observability and for cooperative cancel requests
// arriving from outside the session (e.g. a CLI signal handler).
// Related: internal/session/session.go
// Tags: registry, tasks, cancellation
package registry

import "sync"

// Disposer releases resources held by a running backend invocation.
type Disposer interface {
	Dispose()
}

// ManagedTask is one registered session.
type ManagedTask struct {
	// TaskID uniquely identifies the session.
	TaskID string
	// Label is a human-readable description shown in listings.
	Label string
	// Disposer, when set, is invoked on Cancel to release the running
	// backend handle. The underlying process may still run to completion.
	Disposer Disposer
	// Phase is the session's current phase name.
	Phase string
	// PhaseLabel is a human-readable description of the phase.
	PhaseLabel string

	cancelled bool
}

// Registry is a thread-safe map of active tasks. At most one entry exists
// per taskId; Register replaces an existing entry with the same id.
type Registry struct {
	mu    sync.Mutex
	tasks map[string]*ManagedTask
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{tasks: make(map[string]*ManagedTask)}
}

// Register adds a task. An entry with the same TaskID is replaced.
func (r *Registry) Register(task ManagedTask) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := task
	r.tasks[task.TaskID] = &t
}

// Unregister removes the task. Removing an absent id is a no-op.
func (r *Registry) Unregister(taskID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tasks, taskID)
}

// Cancel flags the task as cancelled and disposes its handle if present.
// Cancelling an absent id is a no-op.
func (r *Registry) Cancel(taskID string) {
	r.mu.Lock()
	var disposer Disposer
	if task, ok := r.tasks[taskID]; ok {
		task.cancelled = true
		disposer = task.Disposer
	}
	r.mu.Unlock()

	// Dispose outside the lock: disposers may take arbitrary time.
	if disposer != nil {
		disposer.Dispose()
	}
}

// IsCancelled reports whether the task was cancelled. An absent taskId is
// treated as already-terminated and reports true.
func (r *Registry) IsCancelled(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	task, ok := r.tasks[taskID]
	if !ok {
		return true
	}
	return task.cancelled
}

// SetPhase records the task's current phase for observability.
// Setting the phase of an absent id is a no-op.
func (r *Registry) SetPhase(taskID, phase, label string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[taskID]; ok {
		task.Phase = phase
		task.PhaseLabel = label
	}
}

// SetDisposer attaches the disposable handle of the currently running
// backend invocation, replacing any previous handle.
func (r *Registry) SetDisposer(taskID string, d Disposer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if task, ok := r.tasks[taskID]; ok {
		task.Disposer = d
	}
}

// Contains reports whether the task is currently registered.
func (r *Registry) Contains(taskID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[taskID]
	return ok
}

// List returns a snapshot of all registered tasks.
func (r *Registry) List() []ManagedTask {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ManagedTask, 0, len(r.tasks))
	for _, task := range r.tasks {
		out = append(out, *task)
	}
	return out
}
