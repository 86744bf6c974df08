// Package highlight clusters kill events into highlight windows and plans the clips cut from them.
package highlight

import (
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/killclip/internal/session"
)

// Group is a non-empty, wall-clock ordered run of kills whose adjacent gaps are
// all within the grouping threshold.
type Group struct {
	Events []session.KillEvent
}

// Size returns the number of kills in the group.
func (g Group) Size() int {
	return len(g.Events)
}

// First returns the earliest event of the group.
func (g Group) First() session.KillEvent {
	return g.Events[0]
}

// Last returns the latest event of the group.
func (g Group) Last() session.KillEvent {
	return g.Events[len(g.Events)-1]
}

// Label returns the display label for the group.
func (g Group) Label() string {
	return Label(g.Size())
}

// Span returns the wall-clock time between the first and last kill.
func (g Group) Span() time.Duration {
	return g.Last().WallClock.Sub(g.First().WallClock)
}

// GroupEvents partitions events into groups. Events are stably sorted by wall clock,
// then split wherever the gap to the immediately preceding event exceeds gap.
// Empty input yields no groups.
func GroupEvents(events []session.KillEvent, gap time.Duration) []Group {
	if len(events) == 0 {
		return nil
	}

	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b session.KillEvent) int {
		return a.WallClock.Compare(b.WallClock)
	})

	var groups []Group
	start := 0
	for i := 1; i < len(sorted); i++ {
		if sorted[i].WallClock.Sub(sorted[i-1].WallClock) > gap {
			groups = append(groups, Group{Events: sorted[start:i:i]})
			start = i
		}
	}
	groups = append(groups, Group{Events: sorted[start:]})

	return groups
}

// Label maps a group size to its display label.
func Label(size int) string {
	switch size {
	case 1:
		return "Kill"
	case 2:
		return "Double Kill"
	case 3:
		return "Triple Kill"
	case 4:
		return "Quad Kill"
	case 5:
		return "Penta Kill"
	default:
		if size < 1 {
			return ""
		}
		return fmt.Sprintf("Multi Kill x%d", size)
	}
}
