package geospatial

import (
	"github.com/twpayne/go-geom"

	"github.com/sells-group/bioscope/internal/model"
)

// Policy is the per-layer query shape: how far to look from the center
// and whether results are paged.
type Policy struct {
	Kind         model.LayerKind
	LatTolerance float64
	LonTolerance float64
	// PageSize > 0 pages the layer with LIMIT/OFFSET.
	PageSize int
}

// Paginated reports whether the layer is paged.
func (p Policy) Paginated() bool { return p.PageSize > 0 }

// Query builds the range query for center. Offset is ignored for
// unpaginated layers and clamped at zero otherwise.
func (p Policy) Query(center model.Coordinate, offset int) model.RangeQuery {
	q := model.RangeQuery{
		Center:       center,
		LatTolerance: p.LatTolerance,
		LonTolerance: p.LonTolerance,
	}
	if p.Paginated() {
		q.Limit = p.PageSize
		if offset > 0 {
			q.Offset = offset
		}
	}
	return q
}

// Policies maps every layer to its query policy.
type Policies map[model.LayerKind]Policy

// DefaultPolicies mirrors the published layers: point layers use a square
// 0.1° box, raster layers a 0.5° lat by 0.1° lon box, and only IUCN is paged
// at 50 rows.
func DefaultPolicies() Policies {
	return PoliciesFrom(50, 0.1, 0.5, 0.1)
}

// PoliciesFrom builds the policy table from configured tolerances.
func PoliciesFrom(iucnPageSize int, pointTol, rasterLatTol, rasterLonTol float64) Policies {
	p := make(Policies, len(model.AllLayers()))
	for _, kind := range model.AllLayers() {
		pol := Policy{Kind: kind, LatTolerance: pointTol, LonTolerance: pointTol}
		if kind.IsRaster() {
			pol.LatTolerance = rasterLatTol
			pol.LonTolerance = rasterLonTol
		}
		if kind == model.IUCNAssessment {
			pol.PageSize = iucnPageSize
		}
		p[kind] = pol
	}
	return p
}

// Bounds returns the query box as an XY (lon, lat) envelope padded by
// model.BoundaryEpsilon so edge points survive float rounding.
func Bounds(q model.RangeQuery) *geom.Bounds {
	latTol := q.LatTolerance + model.BoundaryEpsilon
	lonTol := q.LonTolerance + model.BoundaryEpsilon
	return geom.NewBounds(geom.XY).Set(
		q.Center.Longitude-lonTol, q.Center.Latitude-latTol,
		q.Center.Longitude+lonTol, q.Center.Latitude+latTol,
	)
}
