// Package threat maps layer-native threat encodings onto the canonical
// ordinal scale.
package threat

import (
	"math"
	"strings"

	"github.com/sells-group/bioscope/internal/model"
)

// labels maps lower-cased IUCN categories and canonical names to codes.
// Point layers that already store a canonical name pass through unchanged.
var labels = map[string]model.ThreatCode{
	"critically endangered": model.ThreatHigh,
	"endangered":            model.ThreatHigh,
	"extinct":               model.ThreatHigh,
	"extinct in the wild":   model.ThreatHigh,
	"vulnerable":            model.ThreatModerate,
	"near threatened":       model.ThreatModerate,
	"least concern":         model.ThreatLow,
	"data deficient":        model.ThreatLow,
	"unknown":               model.ThreatLow,

	"high":     model.ThreatHigh,
	"moderate": model.ThreatModerate,
	"medium":   model.ThreatModerate,
	"low":      model.ThreatLow,
}

// NormalizeLabel converts a categorical label to a ThreatCode. It is total:
// anything unrecognized, including the empty string, maps to low.
func NormalizeLabel(raw string) model.ThreatCode {
	key := strings.Join(strings.Fields(strings.ToLower(raw)), " ")
	if code, ok := labels[key]; ok {
		return code
	}
	return model.ThreatLow
}

// Thresholds are the cut points for one raster layer. A score at or above
// High is high, at or above Moderate is moderate, otherwise low. Scale
// divides the raw score into the [0,1] normalized value. Missing is used in
// place of an absent score.
type Thresholds struct {
	High     float64 `yaml:"high" mapstructure:"high"`
	Moderate float64 `yaml:"moderate" mapstructure:"moderate"`
	Scale    float64 `yaml:"scale" mapstructure:"scale"`
	Missing  float64 `yaml:"missing" mapstructure:"missing"`
}

// DefaultThresholds returns the cut points used by the published layers.
func DefaultThresholds() map[model.LayerKind]Thresholds {
	hci := Thresholds{High: 2.0, Moderate: 1.5, Scale: 3.0, Missing: 1.0}
	return map[model.LayerKind]Thresholds{
		model.FreshwaterHCI:  hci,
		model.TerrestrialHCI: hci,
		model.MarineHCI:      {High: 0.75, Moderate: 0.40, Scale: 1.0, Missing: 0},
	}
}

// Normalizer applies per-layer thresholds to raster scores.
type Normalizer struct {
	thresholds map[model.LayerKind]Thresholds
}

// NewNormalizer builds a Normalizer. Layers absent from overrides keep their
// default thresholds.
func NewNormalizer(overrides map[model.LayerKind]Thresholds) *Normalizer {
	th := DefaultThresholds()
	for k, v := range overrides {
		th[k] = v
	}
	return &Normalizer{thresholds: th}
}

var defaultNormalizer = NewNormalizer(nil)

// NormalizeScore converts a raster score with the default thresholds.
func NormalizeScore(score float64, kind model.LayerKind) (model.ThreatCode, float64) {
	return defaultNormalizer.NormalizeScore(score, kind)
}

// NormalizeScore returns the ThreatCode for score and the score rescaled to
// [0,1]. Non-raster layers yield (unknown, 0). NaN is treated as missing.
func (n *Normalizer) NormalizeScore(score float64, kind model.LayerKind) (model.ThreatCode, float64) {
	th, ok := n.thresholds[kind]
	if !ok || !kind.IsRaster() {
		return model.ThreatUnknown, 0
	}
	if math.IsNaN(score) {
		score = th.Missing
	}

	code := model.ThreatLow
	switch {
	case score >= th.High:
		code = model.ThreatHigh
	case score >= th.Moderate:
		code = model.ThreatModerate
	}

	scale := th.Scale
	if scale <= 0 {
		scale = 1
	}
	return code, clamp(score/scale, 0, 1)
}

// NormalizeOptional is NormalizeScore for a possibly absent score.
func (n *Normalizer) NormalizeOptional(score *float64, kind model.LayerKind) (model.ThreatCode, float64, float64) {
	raw := math.NaN()
	if score != nil {
		raw = *score
	}
	if th, ok := n.thresholds[kind]; ok && math.IsNaN(raw) {
		raw = th.Missing
	}
	code, norm := n.NormalizeScore(raw, kind)
	return code, norm, raw
}

// Thresholds returns the thresholds in effect for kind.
func (n *Normalizer) Thresholds(kind model.LayerKind) (Thresholds, bool) {
	th, ok := n.thresholds[kind]
	return th, ok
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Severity is the report score for a threat label: high 8, moderate 6,
// medium 4, low 2, anything else 1.
func Severity(label string) int {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "high":
		return 8
	case "moderate":
		return 6
	case "medium":
		return 4
	case "low":
		return 2
	default:
		return 1
	}
}
