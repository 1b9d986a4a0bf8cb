// eventsink.go provides an in-memory implementation of EventSink.
//
// Published events are kept for inspection. Used for local development
// and tests.
package memory

import (
	"context"
	"sync"

	"github.com/archon-research/vote-aggregator/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink is an in-memory implementation of the EventSink port.
type EventSink struct {
	mu     sync.RWMutex
	events []outbound.Event
	closed bool

	// Callback for test assertions
	onPublish func(outbound.Event)
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{
		events: make([]outbound.Event, 0),
	}
}

// Publish stores the event in memory. Events published after Close are dropped.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.events = append(s.events, event)

	if s.onPublish != nil {
		s.onPublish(event)
	}

	return nil
}

// Close marks the sink as closed.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// GetEvents returns all published events.
func (s *EventSink) GetEvents() []outbound.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.Event, len(s.events))
	copy(result, s.events)
	return result
}

// GetFinalizedEvents returns the ProposalFinalized events.
func (s *EventSink) GetFinalizedEvents() []outbound.ProposalFinalizedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.ProposalFinalizedEvent, 0)
	for _, e := range s.events {
		if fe, ok := e.(outbound.ProposalFinalizedEvent); ok {
			result = append(result, fe)
		}
	}
	return result
}

// GetEventsForProposal returns every event for proposal id.
func (s *EventSink) GetEventsForProposal(id string) []outbound.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]outbound.Event, 0)
	for _, e := range s.events {
		if e.GetProposalID() == id {
			result = append(result, e)
		}
	}
	return result
}

// OnPublish sets a callback to be called when an event is published.
func (s *EventSink) OnPublish(fn func(outbound.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onPublish = fn
}
