package elastiq

import (
	"context"
	"fmt"
	"sync"
)

// Mux routes tasks to handlers by task type.
type Mux struct {
	entries map[string]muxEntry
	mu      sync.RWMutex
}

type muxEntry struct {
	h    Handler
	name string
}

func NewMux() *Mux {
	return &Mux{
		entries: make(map[string]muxEntry),
	}
}

// Handle registers a handler for the given task type. A later
// registration for the same type replaces the earlier one.
func (m *Mux) Handle(taskType string, h Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[taskType] = muxEntry{
		h:    h,
		name: taskType,
	}
}

// match finds a handler in entries given a task type. Only exact
// matches are supported.
func (m *Mux) match(taskType string) (h Handler) {
	v, ok := m.entries[taskType]
	if ok {
		return v.h
	}

	return nil
}

// ProcessTask dispatches the task to the handler registered for
// its type.
func (m *Mux) ProcessTask(ctx context.Context, task *Task) error {
	h := m.Handler(task)
	return h.ProcessTask(ctx, task)
}

// Handler returns the handler to use for the given task. It always
// returns a non-nil handler: if no registered handler applies, a
// 'not found' handler which returns an error is used.
func (m *Mux) Handler(t *Task) (h Handler) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h = m.match(t.Type)
	if h == nil {
		h = NotFoundHandler()
	}

	return h
}

// NotFound returns an error indicating that no handler is registered for
// the given task's type.
func NotFound(ctx context.Context, task *Task) error {
	return fmt.Errorf("handler not found for task %q", task.Type)
}

// NotFoundHandler returns a simple task handler that returns a "not found" error.
func NotFoundHandler() Handler { return HandlerFunc(NotFound) }
