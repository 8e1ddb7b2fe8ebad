package model

import (
	"fmt"

	"github.com/rotisserie/eris"
)

var (
	// ErrInvalidQuery marks a request that was rejected before any layer was queried.
	ErrInvalidQuery = eris.New("invalid query")
	// ErrOutsideRegion marks a valid coordinate outside the served region.
	// It wraps ErrInvalidQuery.
	ErrOutsideRegion = eris.Wrap(ErrInvalidQuery, "location outside supported region")
	// ErrLayerUnavailable marks a single layer that could not be read.
	ErrLayerUnavailable = eris.New("layer unavailable")
)

// LayerError records why one layer produced no rows.
type LayerError struct {
	Layer LayerKind
	Cause error
}

func (e *LayerError) Error() string {
	return fmt.Sprintf("layer %s unavailable: %v", e.Layer, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause to errors.Is.
func (e *LayerError) Unwrap() []error {
	return []error{ErrLayerUnavailable, e.Cause}
}
