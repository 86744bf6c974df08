package processor

import (
	"fmt"
	"time"
)

// Outcome labels for processed sessions.
const (
	OutcomeComplete = "complete" // every group produced a clip
	OutcomePartial  = "partial"  // some groups failed
	OutcomeFailed   = "failed"   // no group produced a clip
	OutcomeEmpty    = "empty"    // the session had no kills
)

// GroupResult is the outcome of one kill group.
type GroupResult struct {
	Index      int           `json:"index"`
	Label      string        `json:"label"`
	Kills      int           `json:"kills"`
	FirstKill  time.Time     `json:"firstKill"`
	Start      time.Duration `json:"start"`
	End        time.Duration `json:"end"`
	File       string        `json:"file,omitempty"`
	Error      string        `json:"error,omitempty"`
	ErrorClass string        `json:"errorClass,omitempty"`
	Uploaded   bool          `json:"uploadQueued"`
}

// OK reports whether the group produced a clip.
func (g GroupResult) OK() bool {
	return g.Error == ""
}

// Report summarizes one processed session.
type Report struct {
	ID           string        `json:"id"`
	SessionURL   string        `json:"sessionUrl"`
	PublishedAt  float64       `json:"publishedAt"`
	SessionStart time.Time     `json:"sessionStart,omitzero"`
	StartedAt    time.Time     `json:"startedAt"`
	FinishedAt   time.Time     `json:"finishedAt"`
	Kills        int           `json:"kills"`
	Duration     time.Duration `json:"sessionDuration"`
	Groups       []GroupResult `json:"groups"`
}

// Total returns the number of planned groups.
func (r *Report) Total() int {
	return len(r.Groups)
}

// Created returns the number of clips created.
func (r *Report) Created() int {
	n := 0
	for i := range r.Groups {
		if r.Groups[i].OK() {
			n++
		}
	}
	return n
}

// Failed returns the number of groups without a clip.
func (r *Report) Failed() int {
	return r.Total() - r.Created()
}

// Outcome classifies the report.
func (r *Report) Outcome() string {
	switch {
	case r.Total() == 0:
		return OutcomeEmpty
	case r.Failed() == 0:
		return OutcomeComplete
	case r.Created() == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

// Summary returns the aggregate line shown to users.
func (r *Report) Summary() string {
	return fmt.Sprintf("%d of %d clips created", r.Created(), r.Total())
}

// Elapsed returns the processing time.
func (r *Report) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
