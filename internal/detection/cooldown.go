package detection

import "time"

// CooldownGate suppresses detections that arrive within the cooldown window of the
// last accepted one. It is the only deduplication stage: one on-screen kill banner
// usually spans several sampled frames.
//
// CooldownGate is not safe for concurrent use; it belongs to the capture goroutine.
type CooldownGate struct {
	cooldown time.Duration
	last     time.Duration
	hasLast  bool
}

// NewCooldownGate returns a gate with no prior acceptance.
func NewCooldownGate(cooldown time.Duration) *CooldownGate {
	if cooldown < 0 {
		cooldown = 0
	}
	return &CooldownGate{cooldown: cooldown}
}

// Accept reports whether a candidate at the given capture offset is a new event.
// It accepts when nothing was accepted yet or offset - last > cooldown, and only then
// records offset as the last accepted time.
func (g *CooldownGate) Accept(offset time.Duration) bool {
	if g.hasLast && offset-g.last <= g.cooldown {
		return false
	}
	g.last = offset
	g.hasLast = true
	return true
}

// LastAccepted returns the capture offset of the last accepted event.
func (g *CooldownGate) LastAccepted() (time.Duration, bool) {
	return g.last, g.hasLast
}

// Reset forgets the last acceptance, used when a new session starts.
func (g *CooldownGate) Reset() {
	g.last = 0
	g.hasLast = false
}
