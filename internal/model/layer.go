package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// LayerKind identifies one of the spatial risk datasets.
type LayerKind int

const (
	InvasiveSpecies LayerKind = iota
	IUCNAssessment
	FreshwaterHCI
	MarineHCI
	TerrestrialHCI
)

var layerNames = [...]string{
	InvasiveSpecies: "invasive_species",
	IUCNAssessment:  "iucn_assessment",
	FreshwaterHCI:   "freshwater_hci",
	MarineHCI:       "marine_hci",
	TerrestrialHCI:  "terrestrial_hci",
}

// riskTypes are the labels the mitigation corpus is keyed by.
var riskTypes = [...]string{
	InvasiveSpecies: "Invasive Species",
	IUCNAssessment:  "IUCN",
	FreshwaterHCI:   "Freshwater Risk",
	MarineHCI:       "Marine Risk",
	TerrestrialHCI:  "Terrestrial Risk",
}

// AllLayers returns every layer in aggregation order.
func AllLayers() []LayerKind {
	return []LayerKind{InvasiveSpecies, IUCNAssessment, FreshwaterHCI, MarineHCI, TerrestrialHCI}
}

func (k LayerKind) valid() bool {
	return k >= InvasiveSpecies && k <= TerrestrialHCI
}

func (k LayerKind) String() string {
	if !k.valid() {
		return "unknown"
	}
	return layerNames[k]
}

// RiskType returns the corpus risk-type label for the layer.
func (k LayerKind) RiskType() string {
	if !k.valid() {
		return ""
	}
	return riskTypes[k]
}

// IsPoint reports whether the layer stores discrete labelled observations.
func (k LayerKind) IsPoint() bool {
	return k == InvasiveSpecies || k == IUCNAssessment
}

// IsRaster reports whether the layer stores gridded continuous scores.
func (k LayerKind) IsRaster() bool {
	return k == FreshwaterHCI || k == MarineHCI || k == TerrestrialHCI
}

// MarshalText implements encoding.TextMarshaler.
func (k LayerKind) MarshalText() ([]byte, error) {
	if !k.valid() {
		return nil, eris.Errorf("model: invalid layer kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *LayerKind) UnmarshalText(b []byte) error {
	parsed, err := ParseLayerKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseLayerKind accepts either the layer name or its risk-type label.
func ParseLayerKind(s string) (LayerKind, error) {
	s = strings.TrimSpace(s)
	for _, k := range AllLayers() {
		if strings.EqualFold(s, layerNames[k]) || strings.EqualFold(s, riskTypes[k]) {
			return k, nil
		}
	}
	return 0, eris.Errorf("model: unknown layer %q", s)
}
