package highlight

import (
	"fmt"
	"time"

	"github.com/tphakala/killclip/internal/errors"
)

// ErrDurationUnknown is returned when the session length is not available. A group
// that hits it is reported as a failed plan rather than planned with zero length.
var ErrDurationUnknown = errors.New(errors.NewStd("session duration unknown")).
	Component("highlight").
	Category(errors.CategoryDurationUnknown).
	Build()

// outputTimeLayout renders yyyy-MM-dd_HH-mm-ss.
const outputTimeLayout = "2006-01-02_15-04-05"

// ClipPlan is the trim range and output name for one group.
// Start and End satisfy 0 <= Start <= End <= session duration.
type ClipPlan struct {
	Index      int // 1-based position in session order
	Start      time.Duration
	End        time.Duration
	Size       int
	Label      string
	OutputName string
	FirstKill  time.Time
}

// Length returns the clip length.
func (p ClipPlan) Length() time.Duration {
	return p.End - p.Start
}

// Planner converts groups into clamped, padded clip plans.
type Planner struct {
	preRoll  time.Duration
	postRoll time.Duration
	loc      *time.Location
}

// NewPlanner returns a planner using the given padding and naming time zone.
func NewPlanner(preRoll, postRoll time.Duration, loc *time.Location) *Planner {
	if loc == nil {
		loc = time.Local
	}
	return &Planner{
		preRoll:  max(preRoll, 0),
		postRoll: max(postRoll, 0),
		loc:      loc,
	}
}

// Plan computes the clip for group g, the index-th group of a session whose recording
// lasts sessionDuration. Offsets come from the events' capture clock.
func (p *Planner) Plan(index int, g Group, sessionDuration time.Duration) (ClipPlan, error) {
	if g.Size() == 0 {
		return ClipPlan{}, errors.Newf("group %d is empty", index).
			Component("highlight").
			Category(errors.CategoryValidation).
			Build()
	}
	if sessionDuration <= 0 {
		return ClipPlan{}, errors.New(fmt.Errorf("plan group %d: %w", index, ErrDurationUnknown)).
			Component("highlight").
			Category(errors.CategoryDurationUnknown).
			Context("group_index", index).
			Build()
	}

	first, last := captureBounds(g)
	start := clamp(first-p.preRoll, 0, sessionDuration)
	end := clamp(last+p.postRoll, start, sessionDuration)

	return ClipPlan{
		Index:      index,
		Start:      start,
		End:        end,
		Size:       g.Size(),
		Label:      g.Label(),
		OutputName: OutputName(index, g.First().WallClock.In(p.loc), g.Size()),
		FirstKill:  g.First().WallClock,
	}, nil
}

// captureBounds returns the smallest and largest capture offsets in the group.
// Groups are wall-clock ordered, so the capture offsets are scanned instead of
// assuming the first and last events carry the extremes.
func captureBounds(g Group) (lo, hi time.Duration) {
	lo, hi = g.Events[0].CaptureOffset, g.Events[0].CaptureOffset
	for _, e := range g.Events[1:] {
		lo = min(lo, e.CaptureOffset)
		hi = max(hi, e.CaptureOffset)
	}
	return lo, hi
}

func clamp(v, lo, hi time.Duration) time.Duration {
	return max(lo, min(v, hi))
}

// OutputName builds killGroup_<index>_<yyyy-MM-dd_HH-mm-ss>[_multi_<size>].mp4.
// The multi suffix is present only for groups of two or more kills.
func OutputName(index int, firstKill time.Time, size int) string {
	name := fmt.Sprintf("killGroup_%d_%s", index, firstKill.Format(outputTimeLayout))
	if size >= 2 {
		name += fmt.Sprintf("_multi_%d", size)
	}
	return name + ".mp4"
}
