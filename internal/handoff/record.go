// Package handoff passes a finished capture session from the producer process to
// the clip-processing consumer.
//
// The producer publishes one Record per session into a shared Store. The consumer
// polls the store, compares the record's publish timestamp against its own
// watermark and processes each publication at most once. The watermark is advisory:
// a consumer that crashes between Consuming and Cleared leaves that publication
// un-retried.
package handoff

import (
	"fmt"
	"math"
	"time"

	"github.com/tphakala/killclip/internal/errors"
	"github.com/tphakala/killclip/internal/session"
)

// Keys of the shared handoff record.
const (
	KeySessionURL       = "pending_session_url"
	KeyWallClock        = "pending_kill_wallclock_timestamps"
	KeyCaptureClock     = "pending_kill_capture_clock_seconds"
	KeyEventTypes       = "pending_kill_event_types"
	KeyUpdatedAt        = "session_updated_at"
	KeySessionStartedAt = "pending_session_started_at"
	KeyWatermark        = "last_processed_session_updated_at"
)

// Record is the pending-session handoff. The three event lists are index aligned:
// index i of each list describes the same kill event.
type Record struct {
	SessionURL   string    `json:"pending_session_url"`
	WallClock    []float64 `json:"pending_kill_wallclock_timestamps"`
	CaptureClock []float64 `json:"pending_kill_capture_clock_seconds"`
	EventTypes   []string  `json:"pending_kill_event_types"`
	UpdatedAt    float64   `json:"session_updated_at"`
	StartedAt    float64   `json:"pending_session_started_at,omitempty"`
}

// NewRecord builds a record for the session recorded at url.
func NewRecord(url string, startedAt time.Time, events []session.KillEvent, publishedAt time.Time) Record {
	rec := Record{
		SessionURL:   url,
		WallClock:    make([]float64, 0, len(events)),
		CaptureClock: make([]float64, 0, len(events)),
		EventTypes:   make([]string, 0, len(events)),
		UpdatedAt:    ToEpoch(publishedAt),
	}
	if !startedAt.IsZero() {
		rec.StartedAt = ToEpoch(startedAt)
	}
	for _, e := range events {
		rec.WallClock = append(rec.WallClock, ToEpoch(e.WallClock))
		rec.CaptureClock = append(rec.CaptureClock, e.CaptureOffset.Seconds())
		rec.EventTypes = append(rec.EventTypes, e.Type)
	}
	return rec
}

// Validate reports a handoff-corruption error when the record cannot be trusted.
func (r Record) Validate() error {
	var problem string
	switch {
	case r.SessionURL == "":
		problem = "session url is empty"
	case len(r.WallClock) != len(r.CaptureClock) || len(r.WallClock) != len(r.EventTypes):
		problem = fmt.Sprintf("event lists are misaligned: %d wall-clock, %d capture-clock, %d types",
			len(r.WallClock), len(r.CaptureClock), len(r.EventTypes))
	case !finite(r.UpdatedAt) || r.UpdatedAt <= 0:
		problem = "publish timestamp is not a positive number"
	case !finite(r.StartedAt) || r.StartedAt < 0:
		problem = "session start is not a valid timestamp"
	default:
		for i := range r.WallClock {
			if !finite(r.WallClock[i]) || !finite(r.CaptureClock[i]) || r.CaptureClock[i] < 0 {
				problem = fmt.Sprintf("event %d has an invalid timestamp", i)
				break
			}
		}
	}
	if problem == "" {
		return nil
	}
	return errors.Newf("corrupt handoff record: %s", problem).
		Component("handoff").
		Category(errors.CategoryHandoffCorruption).
		Build()
}

// Events reconstructs the kill events in stored order.
func (r Record) Events() []session.KillEvent {
	events := make([]session.KillEvent, len(r.WallClock))
	for i := range r.WallClock {
		events[i] = session.KillEvent{
			WallClock:     FromEpoch(r.WallClock[i]),
			CaptureOffset: time.Duration(r.CaptureClock[i] * float64(time.Second)),
			Type:          r.EventTypes[i],
		}
	}
	return events
}

// Len returns the number of events.
func (r Record) Len() int {
	return len(r.EventTypes)
}

// PublishedAt returns the publish timestamp as a time.
func (r Record) PublishedAt() time.Time {
	return FromEpoch(r.UpdatedAt)
}

// SessionStart returns the session start, or the zero time when it was not recorded.
func (r Record) SessionStart() time.Time {
	if r.StartedAt == 0 {
		return time.Time{}
	}
	return FromEpoch(r.StartedAt)
}

// ShouldProcess reports whether a publication must be processed given the last
// processed publish timestamp. Only a strictly newer publication qualifies.
func ShouldProcess(watermark, publishedAt float64) bool {
	return publishedAt > watermark
}

// ToEpoch converts t to floating-point seconds since the Unix epoch.
func ToEpoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// FromEpoch converts floating-point seconds since the Unix epoch to a time.
func FromEpoch(sec float64) time.Time {
	whole, frac := math.Modf(sec)
	return time.Unix(int64(whole), int64(math.Round(frac*float64(time.Second))))
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func corrupt(err error, key string) error {
	return errors.New(err).
		Component("handoff").
		Category(errors.CategoryHandoffCorruption).
		Context("key", key).
		Build()
}
