package testutil

import (
	"context"
	"sync"

	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// MockEventSink implements outbound.EventSink for testing.
type MockEventSink struct {
	mu         sync.Mutex
	PublishErr error
	Events     []outbound.Event
}

var _ outbound.EventSink = (*MockEventSink)(nil)

func (m *MockEventSink) Publish(_ context.Context, event outbound.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.PublishErr
}

func (m *MockEventSink) Close() error {
	return nil
}

// Published returns a copy of the received events.
func (m *MockEventSink) Published() []outbound.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]outbound.Event(nil), m.Events...)
}
