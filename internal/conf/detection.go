package conf

import (
	"fmt"
	"math"
	"slices"
	"strings"
	"time"
)

// Region is a normalized rectangle; all components are fractions of the frame size.
// The zero value is not a valid region of interest; the whole frame is {0, 0, 1, 1}.
type Region struct {
	X      float64 `yaml:"x" toml:"x" json:"x"`
	Y      float64 `yaml:"y" toml:"y" json:"y"`
	Width  float64 `yaml:"width" toml:"width" json:"width"`
	Height float64 `yaml:"height" toml:"height" json:"height"`
}

// Contains reports whether the normalized point (x, y) lies inside the region.
func (r Region) Contains(x, y float64) bool {
	return x >= r.X && x <= r.X+r.Width && y >= r.Y && y <= r.Y+r.Height
}

// Center returns the center point of the region.
func (r Region) Center() (x, y float64) {
	return r.X + r.Width/2, r.Y + r.Height/2
}


func (r Region) validate() []string {
	var errs []string
	for _, c := range []struct {
		name  string
		value float64
	}{{"x", r.X}, {"y", r.Y}, {"width", r.Width}, {"height", r.Height}} {
		if !isFinite(c.value) || c.value < 0 || c.value > 1 {
			errs = append(errs, fmt.Sprintf("region of interest %s must be within [0, 1], got %v", c.name, c.value))
		}
	}
	if len(errs) > 0 {
		return errs
	}
	if r.Width == 0 || r.Height == 0 {
		errs = append(errs, "region of interest must have a non-zero width and height")
	}
	// small epsilon for presets written as decimal fractions
	const epsilon = 1e-9
	if r.X+r.Width > 1+epsilon {
		errs = append(errs, fmt.Sprintf("region of interest exceeds the frame horizontally (x+width=%v)", r.X+r.Width))
	}
	if r.Y+r.Height > 1+epsilon {
		errs = append(errs, fmt.Sprintf("region of interest exceeds the frame vertically (y+height=%v)", r.Y+r.Height))
	}
	return errs
}

// DetectionConfig is the immutable tuning used for one capture session.
// It is constructed once, validated, and passed by value into the components that need it.
type DetectionConfig struct {
	FrameSkipInterval   int      `yaml:"frameskipinterval" toml:"frameskipinterval" json:"frameskipinterval"`
	CooldownSeconds     float64  `yaml:"cooldownseconds" toml:"cooldownseconds" json:"cooldownseconds"`
	ConfidenceThreshold float64  `yaml:"confidencethreshold" toml:"confidencethreshold" json:"confidencethreshold"`
	RegionOfInterest    Region   `yaml:"regionofinterest" toml:"regionofinterest" json:"regionofinterest"`
	TargetKeywords      []string `yaml:"targetkeywords" toml:"targetkeywords" json:"targetkeywords"`
	AvoidKeywords       []string `yaml:"avoidkeywords" toml:"avoidkeywords" json:"avoidkeywords"`
	CaseSensitive       bool     `yaml:"casesensitive" toml:"casesensitive" json:"casesensitive"`
	PreRollSeconds      float64  `yaml:"prerollseconds" toml:"prerollseconds" json:"prerollseconds"`
	PostRollSeconds     float64  `yaml:"postrollseconds" toml:"postrollseconds" json:"postrollseconds"`
}

// Cooldown returns the cooldown window as a duration.
func (dc DetectionConfig) Cooldown() time.Duration {
	return secondsToDuration(dc.CooldownSeconds)
}

// PreRoll returns the padding added before the first kill of a clip.
func (dc DetectionConfig) PreRoll() time.Duration {
	return secondsToDuration(dc.PreRollSeconds)
}

// PostRoll returns the padding added after the last kill of a clip.
func (dc DetectionConfig) PostRoll() time.Duration {
	return secondsToDuration(dc.PostRollSeconds)
}

// Clone returns a deep copy so callers cannot share keyword slices.
func (dc DetectionConfig) Clone() DetectionConfig {
	dc.TargetKeywords = slices.Clone(dc.TargetKeywords)
	dc.AvoidKeywords = slices.Clone(dc.AvoidKeywords)
	return dc
}

// Validate checks every field and returns a ValidationError listing all violations.
func (dc DetectionConfig) Validate() error {
	var ve ValidationError

	if dc.FrameSkipInterval < 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("frame skip interval must be at least 1, got %d", dc.FrameSkipInterval))
	}
	if !isFinite(dc.CooldownSeconds) || dc.CooldownSeconds < 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("cooldown seconds must be a non-negative number, got %v", dc.CooldownSeconds))
	}
	if !isFinite(dc.ConfidenceThreshold) || dc.ConfidenceThreshold < 0 || dc.ConfidenceThreshold > 1 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("confidence threshold must be within [0, 1], got %v", dc.ConfidenceThreshold))
	}
	ve.Errors = append(ve.Errors, dc.RegionOfInterest.validate()...)

	if len(dc.TargetKeywords) == 0 {
		ve.Errors = append(ve.Errors, "at least one target keyword is required")
	}
	for i, kw := range dc.TargetKeywords {
		if strings.TrimSpace(kw) == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("target keyword %d is blank", i))
		}
	}
	for i, kw := range dc.AvoidKeywords {
		if strings.TrimSpace(kw) == "" {
			ve.Errors = append(ve.Errors, fmt.Sprintf("avoid keyword %d is blank", i))
		}
	}

	if !isFinite(dc.PreRollSeconds) || dc.PreRollSeconds < 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("pre-roll seconds must be a non-negative number, got %v", dc.PreRollSeconds))
	}
	if !isFinite(dc.PostRollSeconds) || dc.PostRollSeconds < 0 {
		ve.Errors = append(ve.Errors, fmt.Sprintf("post-roll seconds must be a non-negative number, got %v", dc.PostRollSeconds))
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func secondsToDuration(s float64) time.Duration {
	if !isFinite(s) || s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
