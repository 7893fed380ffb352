package observability

import (
	"context"
	"sync"
)

// CaptureObserver records every event it receives. Intended for tests that
// assert on emitted event streams.
type CaptureObserver struct {
	mu     sync.Mutex
	events []Event
}

// NewCaptureObserver creates an empty CaptureObserver.
func NewCaptureObserver() *CaptureObserver {
	return &CaptureObserver{}
}

func (c *CaptureObserver) OnEvent(ctx context.Context, event Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
}

// Events returns a copy of all captured events in arrival order.
func (c *CaptureObserver) Events() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	copied := make([]Event, len(c.events))
	copy(copied, c.events)
	return copied
}

// EventsOfType returns captured events matching the given type.
func (c *CaptureObserver) EventsOfType(t EventType) []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var matched []Event
	for _, e := range c.events {
		if e.Type == t {
			matched = append(matched, e)
		}
	}
	return matched
}
