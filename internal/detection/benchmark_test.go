package detection

import (
	"testing"
	"time"

	"github.com/tphakala/killclip/internal/conf"
)

// BenchmarkDetector_Detect measures one frame with a typical recognizer output:
// HUD noise, an avoided banner and a kill banner last.
func BenchmarkDetector_Detect(b *testing.B) {
	dc, err := conf.Preset(conf.PresetBalanced)
	if err != nil {
		b.Fatal(err)
	}
	d := NewDetector(dc)

	box := &conf.Region{X: 0.45, Y: 0.6, Width: 0.1, Height: 0.05}
	samples := []RawSample{
		{Text: "AMMO 30/90", Confidence: 0.95},
		{Text: "Squad 3 remaining", Confidence: 0.4},
		{Text: "You were eliminated by Rival", Confidence: 0.9, Box: box},
		{Text: "Eliminated  Rival", Confidence: 0.88, Box: box, CaptureOffset: 12 * time.Second},
	}

	b.ReportAllocs()
	for b.Loop() {
		if m := d.Detect(samples); !m.OK {
			b.Fatal("expected a kill")
		}
	}
}

// BenchmarkCooldownGate_Accept measures the gate over a 60 fps stream.
func BenchmarkCooldownGate_Accept(b *testing.B) {
	g := NewCooldownGate(2500 * time.Millisecond)
	const frame = time.Second / 60

	var offset time.Duration
	for b.Loop() {
		offset += frame
		g.Accept(offset)
	}
}
