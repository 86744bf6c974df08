// Package detection turns recognized on-screen text into kill events.
//
// The three stages run in order on the capture goroutine: Sampler decides which
// frames reach the recognizer, Detector classifies one frame's samples, and
// CooldownGate collapses the consecutive frames that show the same kill.
package detection

// Sampler selects every Nth frame for recognition.
type Sampler struct {
	interval uint64
	frame    uint64
}

// NewSampler returns a sampler for the given frame-skip interval.
// Intervals below one are validated away by DetectionConfig.Validate; here they select every frame.
func NewSampler(interval int) *Sampler {
	if interval < 1 {
		interval = 1
	}
	return &Sampler{interval: uint64(interval)}
}

// Interval returns the frame-skip interval.
func (s *Sampler) Interval() int {
	return int(s.interval)
}

// ShouldSample reports whether the 1-based frame number is selected: frames N, 2N, 3N, ...
func (s *Sampler) ShouldSample(frame uint64) bool {
	return frame > 0 && frame%s.interval == 0
}

// Next advances the internal frame counter and reports whether that frame is selected.
func (s *Sampler) Next() bool {
	s.frame++
	return s.ShouldSample(s.frame)
}

// Frame returns the number of frames seen by Next.
func (s *Sampler) Frame() uint64 {
	return s.frame
}
