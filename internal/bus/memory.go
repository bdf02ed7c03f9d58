package bus

import (
	"context"
	"fmt"
	"sync"
)

// maxRetained bounds the number of events kept per topic.
const maxRetained = 1000

// MemoryBus is an in-process bus that retains published events. Useful for
// single-instance deployments and tests.
type MemoryBus struct {
	mu     sync.RWMutex
	events map[string][]Event
	closed bool
}

// NewMemoryBus creates a new in-memory bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		events: make(map[string][]Event),
	}
}

// Publish records an event under the topic. Older events are dropped once
// the per-topic retention limit is reached.
func (b *MemoryBus) Publish(_ context.Context, topic string, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("bus is closed")
	}

	events := append(b.events[topic], event)
	if len(events) > maxRetained {
		events = events[len(events)-maxRetained:]
	}
	b.events[topic] = events

	return nil
}

// Events returns a copy of the retained events for a topic.
func (b *MemoryBus) Events(topic string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]Event(nil), b.events[topic]...)
}

// Close marks the bus closed and drops retained events.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.events = nil
	return nil
}
