package detection

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/killclip/internal/conf"
)

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func testConfig() conf.DetectionConfig {
	return conf.DetectionConfig{
		FrameSkipInterval:   1,
		CooldownSeconds:     2.5,
		ConfidenceThreshold: 0.6,
		RegionOfInterest:    conf.Region{X: 0.25, Y: 0.5, Width: 0.5, Height: 0.3},
		TargetKeywords:      []string{"ELIMINATED", "KNOCKED DOWN"},
		AvoidKeywords:       []string{"ELIMINATED BY"},
		PreRollSeconds:      5,
		PostRollSeconds:     3,
	}
}

func TestSampler_SelectsEveryNthFrame(t *testing.T) {
	t.Parallel()

	tests := []struct {
		interval int
		frames   uint64
		want     []uint64
	}{
		{interval: 1, frames: 5, want: []uint64{1, 2, 3, 4, 5}},
		{interval: 3, frames: 10, want: []uint64{3, 6, 9}},
		{interval: 4, frames: 3, want: nil},
		{interval: 0, frames: 3, want: []uint64{1, 2, 3}},
	}

	for _, tt := range tests {
		s := NewSampler(tt.interval)
		var got []uint64
		for f := uint64(1); f <= tt.frames; f++ {
			if s.ShouldSample(f) {
				got = append(got, f)
			}
		}
		assert.Equal(t, tt.want, got, "interval %d", tt.interval)
	}
}

func TestSampler_NextMatchesShouldSample(t *testing.T) {
	t.Parallel()

	s := NewSampler(3)
	assert.False(t, s.ShouldSample(0), "frame counter is 1-based")

	var selected []uint64
	for range 9 {
		if s.Next() {
			selected = append(selected, s.Frame())
		}
	}
	assert.Equal(t, []uint64{3, 6, 9}, selected)
}

func TestDetector_AvoidVetoesTarget(t *testing.T) {
	t.Parallel()

	d := NewDetector(testConfig())
	m := d.Detect([]RawSample{{Text: "ELIMINATED BY", Confidence: 0.99}})
	assert.Equal(t, NoMatch, m)

	_, reason := d.Classify(RawSample{Text: "ELIMINATED BY Sniper", Confidence: 0.99})
	assert.Equal(t, RejectedAvoid, reason)
}

func TestDetector_Pipeline(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      func(*conf.DetectionConfig)
		samples  []RawSample
		wantType string
	}{
		{
			name:     "target matches",
			samples:  []RawSample{{Text: "ELIMINATED Player1", Confidence: 0.9}},
			wantType: "ELIMINATED",
		},
		{
			name:    "below threshold",
			samples: []RawSample{{Text: "ELIMINATED", Confidence: 0.59}},
		},
		{
			name:     "threshold is inclusive",
			samples:  []RawSample{{Text: "ELIMINATED", Confidence: 0.6}},
			wantType: "ELIMINATED",
		},
		{
			name:    "NaN confidence",
			samples: []RawSample{{Text: "ELIMINATED", Confidence: math.NaN()}},
		},
		{
			name:    "confidence above one",
			samples: []RawSample{{Text: "ELIMINATED", Confidence: math.Inf(1)}},
		},
		{
			name:     "case folded by default",
			samples:  []RawSample{{Text: "knocked down enemy", Confidence: 0.8}},
			wantType: "KNOCKED DOWN",
		},
		{
			name:    "case sensitive",
			cfg:     func(c *conf.DetectionConfig) { c.CaseSensitive = true },
			samples: []RawSample{{Text: "eliminated", Confidence: 0.8}},
		},
		{
			name:     "first qualifying sample wins",
			samples:  []RawSample{{Text: "noise", Confidence: 0.9}, {Text: "KNOCKED DOWN", Confidence: 0.7}, {Text: "ELIMINATED", Confidence: 0.9}},
			wantType: "KNOCKED DOWN",
		},
		{
			name:     "first target in configured order wins within a sample",
			samples:  []RawSample{{Text: "KNOCKED DOWN and ELIMINATED", Confidence: 0.9}},
			wantType: "ELIMINATED",
		},
		{
			name:     "vetoed sample does not hide a later one",
			samples:  []RawSample{{Text: "ELIMINATED BY x", Confidence: 0.9}, {Text: "ELIMINATED y", Confidence: 0.9}},
			wantType: "ELIMINATED",
		},
		{
			name:    "box outside region",
			samples: []RawSample{{Text: "ELIMINATED", Confidence: 0.9, Box: &conf.Region{X: 0, Y: 0, Width: 0.1, Height: 0.1}}},
		},
		{
			name:     "box inside region",
			samples:  []RawSample{{Text: "ELIMINATED", Confidence: 0.9, Box: &conf.Region{X: 0.4, Y: 0.6, Width: 0.2, Height: 0.05}}},
			wantType: "ELIMINATED",
		},
		{
			name:    "empty frame",
			samples: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig()
			if tt.cfg != nil {
				tt.cfg(&cfg)
			}
			m := NewDetector(cfg).Detect(tt.samples)
			if tt.wantType == "" {
				assert.False(t, m.OK)
				assert.Equal(t, NoMatch, m)
				return
			}
			require.True(t, m.OK)
			assert.Equal(t, tt.wantType, m.Type)
		})
	}
}

func TestDetector_Deterministic(t *testing.T) {
	t.Parallel()

	d := NewDetector(testConfig())
	frames := [][]RawSample{
		{{Text: "ELIMINATED", Confidence: 0.9, CaptureOffset: seconds(1)}},
		{{Text: "nothing", Confidence: 0.9}},
		{{Text: "ELIMINATED BY", Confidence: 0.9}},
	}

	first := make([]Match, len(frames))
	for i, f := range frames {
		first[i] = d.Detect(f)
	}
	// reverse order must not change any result
	for i := len(frames) - 1; i >= 0; i-- {
		assert.Equal(t, first[i], d.Detect(frames[i]))
	}
	assert.Equal(t, seconds(1), first[0].CaptureOffset)
}

func TestCooldownGate_Sequence(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(seconds(2.5))
	var accepted, rejected []float64
	for _, ts := range []float64{0, 1, 3, 6} {
		if g.Accept(seconds(ts)) {
			accepted = append(accepted, ts)
		} else {
			rejected = append(rejected, ts)
		}
	}
	assert.Equal(t, []float64{0, 3, 6}, accepted)
	assert.Equal(t, []float64{1}, rejected)
}

func TestCooldownGate_BoundaryIsRejected(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(seconds(2))
	require.True(t, g.Accept(seconds(10)))
	assert.False(t, g.Accept(seconds(12)), "delta equal to cooldown is a duplicate")
	last, ok := g.LastAccepted()
	require.True(t, ok)
	assert.Equal(t, seconds(10), last, "rejection leaves state unchanged")
	assert.True(t, g.Accept(seconds(12)+time.Millisecond))
}

func TestCooldownGate_FirstAlwaysAccepted(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(time.Hour)
	_, ok := g.LastAccepted()
	assert.False(t, ok)
	assert.True(t, g.Accept(0))

	g.Reset()
	assert.True(t, g.Accept(seconds(1)))
}

func TestCooldownGate_ZeroCooldownStillDropsSameTimestamp(t *testing.T) {
	t.Parallel()

	g := NewCooldownGate(0)
	assert.True(t, g.Accept(seconds(1)))
	assert.False(t, g.Accept(seconds(1)))
	assert.True(t, g.Accept(seconds(1)+time.Nanosecond))
}
