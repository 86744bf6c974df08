package conf

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/killclip/internal/errors"
)

// Built-in detection preset names.
const (
	PresetBalanced     = "balanced"
	PresetSensitive    = "sensitive"
	PresetConservative = "conservative"
)

// presets holds the built-in tunings. Sensitive lowers the threshold, shortens the
// cooldown and widens the region; Conservative does the opposite.
var presets = map[string]DetectionConfig{
	PresetBalanced: {
		FrameSkipInterval:   3,
		CooldownSeconds:     2.5,
		ConfidenceThreshold: 0.6,
		RegionOfInterest:    Region{X: 0.25, Y: 0.55, Width: 0.5, Height: 0.25},
		TargetKeywords:      []string{"ELIMINATED", "KNOCKED DOWN", "KILL"},
		AvoidKeywords:       []string{"ELIMINATED BY", "KNOCKED DOWN BY", "YOU WERE"},
		CaseSensitive:       false,
		PreRollSeconds:      5,
		PostRollSeconds:     3,
	},
	PresetSensitive: {
		FrameSkipInterval:   2,
		CooldownSeconds:     1.5,
		ConfidenceThreshold: 0.45,
		RegionOfInterest:    Region{X: 0.15, Y: 0.45, Width: 0.7, Height: 0.4},
		TargetKeywords:      []string{"ELIMINATED", "KNOCKED DOWN", "KILL"},
		AvoidKeywords:       []string{"ELIMINATED BY", "KNOCKED DOWN BY", "YOU WERE"},
		CaseSensitive:       false,
		PreRollSeconds:      5,
		PostRollSeconds:     3,
	},
	PresetConservative: {
		FrameSkipInterval:   4,
		CooldownSeconds:     4,
		ConfidenceThreshold: 0.75,
		RegionOfInterest:    Region{X: 0.3, Y: 0.6, Width: 0.4, Height: 0.15},
		TargetKeywords:      []string{"ELIMINATED", "KNOCKED DOWN", "KILL"},
		AvoidKeywords:       []string{"ELIMINATED BY", "KNOCKED DOWN BY", "YOU WERE"},
		CaseSensitive:       false,
		PreRollSeconds:      5,
		PostRollSeconds:     3,
	},
}

// PresetNames returns the built-in preset names in a stable order.
func PresetNames() []string {
	return []string{PresetBalanced, PresetSensitive, PresetConservative}
}

// Preset returns a copy of the named built-in preset. Names are case-insensitive;
// an empty name selects Balanced.
func Preset(name string) (DetectionConfig, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		key = PresetBalanced
	}

	dc, ok := presets[key]
	if !ok {
		return DetectionConfig{}, errors.Newf("unknown detection preset %q, valid presets: %s",
			name, strings.Join(PresetNames(), ", ")).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("preset", name).
			Build()
	}
	return dc.Clone(), nil
}

// LoadDetectionFile reads a detection config from a YAML (.yaml, .yml) or TOML (.toml) file
// and validates it.
func LoadDetectionFile(path string) (DetectionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DetectionConfig{}, errors.New(err).
			Component("conf").
			Category(errors.CategoryFileIO).
			FileContext(path).
			Build()
	}

	dc, err := ParseDetectionConfig(data, filepath.Ext(path))
	if err != nil {
		return DetectionConfig{}, errors.New(fmt.Errorf("detection config %s: %w", filepath.Base(path), err)).
			Component("conf").
			Category(errors.CategoryConfiguration).
			FileContext(path).
			Build()
	}
	return dc, nil
}

// ParseDetectionConfig decodes and validates a detection config. ext selects the format
// (".toml" for TOML, anything else is treated as YAML). Unknown fields are rejected.
func ParseDetectionConfig(data []byte, ext string) (DetectionConfig, error) {
	var dc DetectionConfig

	switch strings.ToLower(ext) {
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&dc); err != nil {
			return DetectionConfig{}, fmt.Errorf("invalid TOML: %w", err)
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&dc); err != nil {
			return DetectionConfig{}, fmt.Errorf("invalid YAML: %w", err)
		}
	}

	if err := dc.Validate(); err != nil {
		return DetectionConfig{}, err
	}
	return dc, nil
}

// MarshalDetectionYAML renders a detection config, used to export presets as a starting point.
func MarshalDetectionYAML(dc DetectionConfig) ([]byte, error) {
	return yaml.Marshal(dc)
}

// presetExists reports whether name is a built-in preset.
func presetExists(name string) bool {
	return name == "" || slices.Contains(PresetNames(), strings.ToLower(strings.TrimSpace(name)))
}
