package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// ThreatCode is the canonical ordinal severity shared by all layers.
type ThreatCode string

const (
	ThreatLow      ThreatCode = "low"
	ThreatModerate ThreatCode = "moderate"
	ThreatHigh     ThreatCode = "high"
	// ThreatUnknown is reserved. It is incomparable with the other codes.
	ThreatUnknown ThreatCode = "unknown"
)

func (c ThreatCode) rank() (int, bool) {
	switch c {
	case ThreatLow:
		return 0, true
	case ThreatModerate:
		return 1, true
	case ThreatHigh:
		return 2, true
	default:
		return 0, false
	}
}

// Compare orders two codes low < moderate < high. ok is false when either
// side is unknown or not a canonical code.
func Compare(a, b ThreatCode) (cmp int, ok bool) {
	ra, okA := a.rank()
	rb, okB := b.rank()
	if !okA || !okB {
		return 0, false
	}
	switch {
	case ra < rb:
		return -1, true
	case ra > rb:
		return 1, true
	}
	return 0, true
}

// Valid reports whether c is one of the four canonical codes.
func (c ThreatCode) Valid() bool {
	_, ok := c.rank()
	return ok || c == ThreatUnknown
}

// ParseThreatCode parses a canonical code name, case-insensitively.
func ParseThreatCode(s string) (ThreatCode, error) {
	c := ThreatCode(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", eris.Errorf("model: unknown threat code %q", s)
	}
	return c, nil
}
