// Package aggregate collects every layer's findings for one location into
// a flat list of risk records.
package aggregate

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/geospatial"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/threat"
)

var tracer = otel.Tracer("github.com/sells-group/bioscope/internal/aggregate")

// Fetcher reads one layer around a center. *geospatial.Adapter satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, kind model.LayerKind, center model.Coordinate, offset int) geospatial.Result
}

// Options tunes one aggregation.
type Options struct {
	// Offset pages paginated layers (IUCN).
	Offset int
}

// Result is the merged output of all layers.
type Result struct {
	Records      []model.RiskRecord
	FailedLayers []model.LayerKind
	Errors       []*model.LayerError
}

// Aggregator fans a location out to every layer in a fixed order.
type Aggregator struct {
	fetcher    Fetcher
	normalizer *threat.Normalizer
	layers     []model.LayerKind
}

// Option configures an Aggregator.
type Option func(*Aggregator)

// WithNormalizer overrides the default raster thresholds.
func WithNormalizer(n *threat.Normalizer) Option {
	return func(a *Aggregator) { a.normalizer = n }
}

// WithLayers restricts aggregation to the given layers, in order.
func WithLayers(layers ...model.LayerKind) Option {
	return func(a *Aggregator) { a.layers = layers }
}

// New creates an Aggregator over f.
func New(f Fetcher, opts ...Option) *Aggregator {
	a := &Aggregator{
		fetcher:    f,
		normalizer: threat.NewNormalizer(nil),
		layers:     model.AllLayers(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Aggregate queries every layer around center. An invalid center returns an
// error wrapping model.ErrInvalidQuery before any layer is read. Layer
// failures never fail the call; they are listed in FailedLayers. Records
// keep layer order and, within a layer, store order.
func (a *Aggregator) Aggregate(ctx context.Context, center model.Coordinate, opts Options) (*Result, error) {
	if err := center.Validate(); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "aggregate", trace.WithAttributes(
		attribute.Float64("latitude", center.Latitude),
		attribute.Float64("longitude", center.Longitude),
	))
	defer span.End()

	res := &Result{Records: []model.RiskRecord{}}
	for _, kind := range a.layers {
		if err := ctx.Err(); err != nil {
			res.fail(&model.LayerError{Layer: kind, Cause: err})
			continue
		}

		lr := a.fetcher.Fetch(ctx, kind, center, opts.Offset)
		if lr.Err != nil {
			res.fail(lr.Err)
			continue
		}
		for _, row := range lr.Rows {
			res.Records = append(res.Records, a.record(kind, row))
		}
	}

	span.SetAttributes(
		attribute.Int("records", len(res.Records)),
		attribute.Int("failed_layers", len(res.FailedLayers)),
	)
	if len(res.FailedLayers) > 0 {
		zap.L().Debug("aggregate: partial result",
			zap.Int("records", len(res.Records)),
			zap.Any("failed_layers", res.FailedLayers),
		)
	}
	return res, nil
}

func (r *Result) fail(err *model.LayerError) {
	r.FailedLayers = append(r.FailedLayers, err.Layer)
	r.Errors = append(r.Errors, err)
}

// record converts one row into a RiskRecord for kind.
func (a *Aggregator) record(kind model.LayerKind, row geospatial.Row) model.RiskRecord {
	rec := model.RiskRecord{
		Coordinate: row.Coordinate,
		Layer:      kind,
		RiskType:   kind.RiskType(),
	}

	if kind.IsPoint() {
		rec.ThreatCode = threat.NormalizeLabel(row.Label)
		rec.Description = row.Name
		if rec.Description == "" {
			rec.Description = kind.RiskType()
		}
	} else {
		code, norm, raw := a.normalizer.NormalizeOptional(row.Score, kind)
		rec.ThreatCode = code
		rec.Normalized = &norm
		rec.Description = describeScore(kind, raw)
	}

	rec.Severity = threat.Severity(string(rec.ThreatCode))
	return rec
}

func describeScore(kind model.LayerKind, raw float64) string {
	switch kind {
	case model.FreshwaterHCI:
		return fmt.Sprintf("Freshwater risk level: %v", raw)
	case model.MarineHCI:
		return fmt.Sprintf("Marine HCI Score: %v", raw)
	case model.TerrestrialHCI:
		return fmt.Sprintf("Terrestrial Risk Level: %.2f", raw)
	default:
		return fmt.Sprintf("%s: %v", kind.RiskType(), raw)
	}
}
