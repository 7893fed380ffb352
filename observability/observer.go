// Package observability delivers structured events from the console
// subsystems to pluggable sinks. Level values align with OpenTelemetry
// SeverityNumbers so events forward to OTel collectors without translation.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

// Severity anchors: each is the lowest number of its OTel range.
const (
	LevelVerbose Level = 5  // DEBUG range (5-8)
	LevelInfo    Level = 9  // INFO range (9-12)
	LevelWarning Level = 13 // WARN range (13-16)
	LevelError   Level = 17 // ERROR range (17-20)
)

// severities maps OTel ranges to their text and the nearest slog level,
// ordered by ascending upper bound.
var severities = []struct {
	max  Level
	text string
	slog slog.Level
}{
	{4, "TRACE", slog.LevelDebug},
	{8, "DEBUG", slog.LevelDebug},
	{12, "INFO", slog.LevelInfo},
	{16, "WARN", slog.LevelWarn},
	{20, "ERROR", slog.LevelError},
}

// String returns the OTel severity text for the level.
func (l Level) String() string {
	for _, s := range severities {
		if l <= s.max {
			return s.text
		}
	}
	return "FATAL"
}

// SlogLevel maps this level to the corresponding slog.Level for log emission.
func (l Level) SlogLevel() slog.Level {
	for _, s := range severities {
		if l <= s.max {
			return s.slog
		}
	}
	return slog.LevelError
}

// EventType identifies the kind of event. Each subsystem defines its own
// constants using this type (e.g., "session.changed", "channel.state").
type EventType string

// Event is an observability event emitted by console subsystems. Fields map
// to OTel LogRecord fields: Type→EventName, Level→SeverityNumber,
// Timestamp→Timestamp, Source→InstrumentationScope, Data→Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events from subsystems for logging, tracing, or metrics.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// NoOpObserver discards all events. Subsystems default to it when no
// observer is configured.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}
