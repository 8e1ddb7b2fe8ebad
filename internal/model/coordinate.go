package model

import (
	"math"

	"github.com/rotisserie/eris"
)

// Coordinate is a WGS84 point in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Validate reports whether c is a usable query center. The returned error
// wraps ErrInvalidQuery.
func (c Coordinate) Validate() error {
	if !finite(c.Latitude) || !finite(c.Longitude) {
		return eris.Wrapf(ErrInvalidQuery, "coordinate (%v, %v) is not finite", c.Latitude, c.Longitude)
	}
	if c.Latitude < -90 || c.Latitude > 90 {
		return eris.Wrapf(ErrInvalidQuery, "latitude %v out of range [-90, 90]", c.Latitude)
	}
	if c.Longitude < -180 || c.Longitude > 180 {
		return eris.Wrapf(ErrInvalidQuery, "longitude %v out of range [-180, 180]", c.Longitude)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// RangeQuery is an axis-aligned box around a center with optional
// pagination. A zero Limit means unpaginated.
type RangeQuery struct {
	Center       Coordinate
	LatTolerance float64
	LonTolerance float64
	Limit        int
	Offset       int
}

// Contains reports whether p lies inside the inclusive box.
func (q RangeQuery) Contains(p Coordinate) bool {
	return math.Abs(p.Latitude-q.Center.Latitude) <= q.LatTolerance+BoundaryEpsilon &&
		math.Abs(p.Longitude-q.Center.Longitude) <= q.LonTolerance+BoundaryEpsilon
}

// BoundaryEpsilon pads range boxes so that points sitting exactly on an edge
// survive float rounding of center±tolerance.
const BoundaryEpsilon = 1e-9
