package handoff

import (
	"fmt"
	"sync"

	"github.com/tphakala/killclip/internal/errors"
)

// State is the lifecycle state of one publication.
type State int

const (
	// StateIdle - no pending session.
	StateIdle State = iota
	// StatePublished - the producer wrote a record newer than the watermark.
	StatePublished
	// StateConsuming - a consumer advanced the watermark and is producing clips.
	StateConsuming
	// StateCleared - every group was attempted and the record was deleted.
	StateCleared
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StatePublished:
		return "PUBLISHED"
	case StateConsuming:
		return "CONSUMING"
	case StateCleared:
		return "CLEARED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true for CLEARED.
func (s State) IsTerminal() bool {
	return s == StateCleared
}

// CanTransitionTo reports whether next directly follows s.
//
//	IDLE → PUBLISHED → CONSUMING → CLEARED
//	           │                      ▲
//	           └──── discarded ───────┘
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateIdle:
		return next == StatePublished
	case StatePublished:
		return next == StateConsuming || next == StateCleared
	case StateConsuming:
		return next == StateCleared
	default:
		return false
	}
}

// ErrInvalidTransition is returned for a transition the lifecycle does not allow.
var ErrInvalidTransition = errors.New(errors.NewStd("invalid handoff state transition")).
	Component("handoff").
	Category(errors.CategoryState).
	Build()

// Lifecycle tracks the state of a single publication. Transitions are one-directional.
// Thread-safe for concurrent access.
type Lifecycle struct {
	mu          sync.RWMutex
	publishedAt float64
	state       State
}

// NewLifecycle returns a lifecycle in IDLE state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateIdle}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// PublishedAt returns the publish timestamp of the tracked publication.
func (l *Lifecycle) PublishedAt() float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.publishedAt
}

// Transition moves to next. The publish timestamp is recorded when entering PUBLISHED.
func (l *Lifecycle) Transition(next State, publishedAt float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, l.state, next)
	}
	if next == StatePublished {
		l.publishedAt = publishedAt
	}
	l.state = next
	return nil
}

// Reset starts tracking a new publication. A lifecycle in CONSUMING refuses.
func (l *Lifecycle) Reset() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateConsuming {
		return fmt.Errorf("%w: %s to %s", ErrInvalidTransition, l.state, StateIdle)
	}
	l.state = StateIdle
	l.publishedAt = 0
	return nil
}
