package memory

import (
	"context"
	"sync"

	"github.com/archon-research/item-exchange/internal/ports/outbound"
)

// Compile-time check that EventSink implements outbound.EventSink.
var _ outbound.EventSink = (*EventSink)(nil)

// EventSink is an in-memory implementation of the EventSink port for
// testing. It stores all published events for later inspection.
type EventSink struct {
	mu     sync.RWMutex
	events []outbound.Event
	closed bool
}

// NewEventSink creates a new in-memory event sink.
func NewEventSink() *EventSink {
	return &EventSink{events: make([]outbound.Event, 0)}
}

// Publish stores the event in memory.
func (s *EventSink) Publish(ctx context.Context, event outbound.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.events = append(s.events, event)
	return nil
}

// Close marks the sink as closed; further events are dropped.
func (s *EventSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Events returns all published events.
func (s *EventSink) Events() []outbound.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]outbound.Event(nil), s.events...)
}

// EventsByType returns all published events of the given type.
func (s *EventSink) EventsByType(eventType outbound.EventType) []outbound.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []outbound.Event
	for _, e := range s.events {
		if e.EventType() == eventType {
			out = append(out, e)
		}
	}
	return out
}
