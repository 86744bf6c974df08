// Package session holds the kill events recorded during one capture session.
package session

import (
	"fmt"
	"slices"
	"time"
)

// KillEvent is one accepted kill detection. Events are immutable once created.
type KillEvent struct {
	WallClock     time.Time     // wall-clock time of the detection
	CaptureOffset time.Duration // offset from the start of the recording
	Type          string        // matched target keyword
}

// EventLog is an append-only, capture-ordered sequence of KillEvent.
//
// The log is owned by the capture goroutine for the lifetime of a session and is
// not safe for concurrent use. Snapshot hands an independent copy to the consumer.
type EventLog struct {
	events []KillEvent
}

// NewEventLog returns an empty log with room for capacityHint events.
func NewEventLog(capacityHint int) *EventLog {
	return &EventLog{events: make([]KillEvent, 0, max(capacityHint, 0))}
}

// Append adds an event. Capture offsets must never decrease; a violation means the
// caller broke the frame ordering and Append panics.
func (l *EventLog) Append(e KillEvent) {
	if n := len(l.events); n > 0 && e.CaptureOffset < l.events[n-1].CaptureOffset {
		panic(fmt.Sprintf("session: event at %s appended after %s", e.CaptureOffset, l.events[n-1].CaptureOffset))
	}
	l.events = append(l.events, e)
}

// Snapshot returns an ordered copy of the events.
func (l *EventLog) Snapshot() []KillEvent {
	return slices.Clone(l.events)
}

// IsEmpty reports whether no events were recorded.
func (l *EventLog) IsEmpty() bool {
	return len(l.events) == 0
}

// Len returns the number of recorded events.
func (l *EventLog) Len() int {
	return len(l.events)
}

// Last returns the most recent event.
func (l *EventLog) Last() (KillEvent, bool) {
	if len(l.events) == 0 {
		return KillEvent{}, false
	}
	return l.events[len(l.events)-1], true
}
