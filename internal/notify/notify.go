// Package notify announces plan generation outcomes to chat platforms.
// Delivery is best effort: a failed notification never fails the request
// that triggered it.
package notify

import (
	"context"
	"fmt"
	"sync"
)

// Severity classifies an event for display (sidebar color, emoji).
const (
	SeveritySuccess = "success"
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// Event is one plan outcome to announce.
type Event struct {
	ProjectID    string
	ProjectTitle string
	JoinCode     string
	Status       string // ready or failed
	Severity     string
	ErrorCode    string
	BundleCount  int
	TaskCount    int
	TraceID      string
}

// Headline renders the one-line summary used by every platform.
func (e Event) Headline() string {
	if e.Status == "ready" {
		return fmt.Sprintf("Plan ready for %q: %d bundles, %d tasks", e.ProjectTitle, e.BundleCount, e.TaskCount)
	}
	return fmt.Sprintf("Plan failed for %q: %s", e.ProjectTitle, e.ErrorCode)
}

// Adapter delivers events to a single platform.
type Adapter interface {
	Send(ctx context.Context, ev Event) error
	Close() error
}

// Multi fans an event out to every configured adapter. Errors are collected,
// not short-circuited, so one broken platform does not silence the others.
type Multi struct {
	adapters []Adapter
}

// NewMulti builds a fan-out notifier. Nil adapters are skipped.
func NewMulti(adapters ...Adapter) *Multi {
	m := &Multi{}
	for _, a := range adapters {
		if a != nil {
			m.adapters = append(m.adapters, a)
		}
	}
	return m
}

// Send delivers ev to all adapters.
func (m *Multi) Send(ctx context.Context, ev Event) error {
	var firstErr error
	for _, a := range m.adapters {
		if err := a.Send(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close shuts down all adapters.
func (m *Multi) Close() error {
	var firstErr error
	for _, a := range m.adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Mock records events for tests.
type Mock struct {
	mu     sync.Mutex
	Events []Event
}

// Send appends ev to the recorded list.
func (m *Mock) Send(ctx context.Context, ev Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, ev)
	return nil
}

// Close is a no-op.
func (m *Mock) Close() error { return nil }

// Sent returns a copy of the recorded events.
func (m *Mock) Sent() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Event, len(m.Events))
	copy(out, m.Events)
	return out
}
