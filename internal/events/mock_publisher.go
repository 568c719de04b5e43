package events

import (
	"context"
	"log/slog"
	"sync"
)

// MockEventPublisher records events in memory for tests.
type MockEventPublisher struct {
	mu     sync.RWMutex
	events []*Event
	logger *slog.Logger
	err    error
}

func NewMockEventPublisher(logger *slog.Logger) *MockEventPublisher {
	return &MockEventPublisher{logger: logger}
}

func (m *MockEventPublisher) Publish(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	if m.logger != nil {
		m.logger.Debug("Mock event published", "type", event.Type, "id", event.ID)
	}
	return nil
}

func (m *MockEventPublisher) Close() error { return nil }

// FailWith makes subsequent Publish calls return err.
func (m *MockEventPublisher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *MockEventPublisher) GetPublishedEvents() []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*Event, len(m.events))
	copy(out, m.events)
	return out
}

// EventsOfType filters recorded events by type.
func (m *MockEventPublisher) EventsOfType(eventType EventType) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Event
	for _, e := range m.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *MockEventPublisher) ClearEvents() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = nil
}
