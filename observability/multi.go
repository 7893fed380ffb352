package observability

import "context"

// MultiObserver forwards every event to a set of sinks, letting the console
// log to slog and capture for tests at the same time.
type MultiObserver struct {
	sinks []Observer
}

// NewMultiObserver creates a MultiObserver over the given sinks. Nil sinks
// are allowed and skipped.
func NewMultiObserver(sinks ...Observer) *MultiObserver {
	m := &MultiObserver{}
	for _, s := range sinks {
		m.Attach(s)
	}
	return m
}

// Attach adds another sink. Not safe to call concurrently with OnEvent.
func (m *MultiObserver) Attach(sink Observer) {
	if sink != nil {
		m.sinks = append(m.sinks, sink)
	}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, s := range m.sinks {
		s.OnEvent(ctx, event)
	}
}
