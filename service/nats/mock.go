package nats

import (
	"context"
	"sync"

	"github.com/brojonat/whalealert/service/db"
)

// MockPublisher records whale events by subject without a NATS server.
type MockPublisher struct {
	mu      sync.Mutex
	events  []published
	batches int
	err     error
	closed  bool
}

type published struct {
	subject string
	event   *WhaleEvent
}

// NewMockPublisher creates an empty MockPublisher.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishWhale records event on its blockchain subject.
func (m *MockPublisher) PublishWhale(ctx context.Context, event *WhaleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, published{subject: Subject(event.Blockchain), event: event})
	return nil
}

// PublishWhaleBatch records events as one batch. A failing batch records nothing.
func (m *MockPublisher) PublishWhaleBatch(ctx context.Context, events []*WhaleEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	for _, e := range events {
		m.events = append(m.events, published{subject: Subject(e.Blockchain), event: e})
	}
	m.batches++
	return nil
}

// Close marks the publisher closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// FailWith makes every later publish return err. Nil clears it.
func (m *MockPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Count returns the number of recorded events.
func (m *MockPublisher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// Batches returns the number of successful batch publishes.
func (m *MockPublisher) Batches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.batches
}

// On returns the events a subscriber to subject would receive. It accepts
// an exact subject or the stream wildcard.
func (m *MockPublisher) On(subject string) []*WhaleEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []*WhaleEvent{}
	for _, p := range m.events {
		if subject == StreamSubjects || subject == p.subject {
			out = append(out, p.event)
		}
	}
	return out
}

// Rows returns the published events as stored rows, in publish order.
func (m *MockPublisher) Rows() []db.Row {
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := make([]db.Row, 0, len(m.events))
	for _, p := range m.events {
		rows = append(rows, p.event.Row())
	}
	return rows
}

// IsClosed reports whether Close was called.
func (m *MockPublisher) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
