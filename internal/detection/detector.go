package detection

import (
	"strings"
	"time"

	"golang.org/x/text/cases"

	"github.com/tphakala/killclip/internal/conf"
)

// RawSample is one recognized-text observation from a single frame.
type RawSample struct {
	Text          string        `json:"text"`
	Confidence    float64       `json:"confidence"`
	CaptureOffset time.Duration `json:"-"`
	// Box is the normalized bounding box reported by the recognizer, if any.
	Box *conf.Region `json:"box,omitempty"`
}

// Match is the result of classifying one frame.
type Match struct {
	Type          string        // the configured target keyword that matched
	CaptureOffset time.Duration // capture-clock offset of the matching sample
	Confidence    float64
	OK            bool
}

// NoMatch is returned when no sample of a frame qualifies.
var NoMatch = Match{}

// RejectReason explains why a sample did not produce a match.
type RejectReason int

const (
	Accepted RejectReason = iota
	RejectedConfidence
	RejectedRegion
	RejectedAvoid
	RejectedNoTarget
)

func (r RejectReason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case RejectedConfidence:
		return "low_confidence"
	case RejectedRegion:
		return "outside_region"
	case RejectedAvoid:
		return "avoid_keyword"
	case RejectedNoTarget:
		return "no_target"
	default:
		return "unknown"
	}
}

// Detector classifies frames against an immutable DetectionConfig.
type Detector struct {
	threshold float64
	region    conf.Region
	fold      bool
	targets   []keyword
	avoid     []string
}

type keyword struct {
	original   string
	normalized string
}

// NewDetector builds a detector. Keywords are normalized once here.
func NewDetector(cfg conf.DetectionConfig) *Detector {
	d := &Detector{
		threshold: cfg.ConfidenceThreshold,
		region:    cfg.RegionOfInterest,
		fold:      !cfg.CaseSensitive,
	}
	for _, kw := range cfg.TargetKeywords {
		d.targets = append(d.targets, keyword{original: kw, normalized: d.normalize(kw)})
	}
	for _, kw := range cfg.AvoidKeywords {
		d.avoid = append(d.avoid, d.normalize(kw))
	}
	return d
}

// normalize applies Unicode case folding when matching is case-insensitive.
// A cases.Caser is stateful, so a fresh one is created per call.
func (d *Detector) normalize(s string) string {
	if !d.fold {
		return s
	}
	return cases.Fold().String(s)
}

// Detect returns the first qualifying match among samples, or NoMatch.
// At most one event is produced per frame.
func (d *Detector) Detect(samples []RawSample) Match {
	for i := range samples {
		if m, reason := d.Classify(samples[i]); reason == Accepted {
			return m
		}
	}
	return NoMatch
}

// Classify runs the predicate pipeline on one sample:
// confidence, region, normalize, avoid veto, then the first target in configured order.
func (d *Detector) Classify(s RawSample) (Match, RejectReason) {
	// NaN fails both comparisons
	if !(s.Confidence >= d.threshold && s.Confidence <= 1) {
		return NoMatch, RejectedConfidence
	}
	if !d.inRegion(s.Box) {
		return NoMatch, RejectedRegion
	}

	text := d.normalize(s.Text)
	for _, avoid := range d.avoid {
		if strings.Contains(text, avoid) {
			return NoMatch, RejectedAvoid
		}
	}
	for _, target := range d.targets {
		if strings.Contains(text, target.normalized) {
			return Match{
				Type:          target.original,
				CaptureOffset: s.CaptureOffset,
				Confidence:    s.Confidence,
				OK:            true,
			}, Accepted
		}
	}
	return NoMatch, RejectedNoTarget
}

// inRegion accepts samples without a box; boxed samples must be centered inside the region.
func (d *Detector) inRegion(box *conf.Region) bool {
	if box == nil {
		return true
	}
	return d.region.Contains(box.Center())
}
