// Package lookup is the entry point used by the CLI and the HTTP API: it
// aggregates every layer around a location and attaches mitigations.
package lookup

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/aggregate"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
)

var tracer = otel.Tracer("github.com/sells-group/bioscope/internal/lookup")

// ErrNoAggregator is returned by AggregateAndEnrich on a service built
// without spatial layers.
var ErrNoAggregator = eris.New("lookup: service has no layer aggregator")

// Operation names reported to monitoring.
const (
	OpSearch   = "search"
	OpMitigate = "mitigate"
)

// Aggregator is satisfied by *aggregate.Aggregator.
type Aggregator interface {
	Aggregate(ctx context.Context, center model.Coordinate, opts aggregate.Options) (*aggregate.Result, error)
}

// Enricher is satisfied by *enrich.Orchestrator.
type Enricher interface {
	Enrich(ctx context.Context, records []model.RiskRecord) []model.RiskRecord
}

// Resolver is satisfied by *mitigation.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult
}

// Region is an inclusive bounding box of served locations.
type Region struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Contains reports whether c lies inside the box.
func (r Region) Contains(c model.Coordinate) bool {
	return c.Latitude >= r.MinLat && c.Latitude <= r.MaxLat &&
		c.Longitude >= r.MinLon && c.Longitude <= r.MaxLon
}

// Options tunes one search.
type Options struct {
	Offset int
}

// Response is the result of AggregateAndEnrich.
type Response struct {
	Center       model.Coordinate   `json:"center"`
	Records      []model.RiskRecord `json:"records"`
	FailedLayers []model.LayerKind  `json:"failed_layers"`
	Summary      Summary            `json:"summary"`
}

// Summary counts records by threat code and by mitigation tier.
type Summary struct {
	Total    int                      `json:"total"`
	ByThreat map[model.ThreatCode]int `json:"by_threat"`
	ByTier   map[model.Tier]int       `json:"by_tier"`
}

func summarize(records []model.RiskRecord) Summary {
	s := Summary{
		Total:    len(records),
		ByThreat: make(map[model.ThreatCode]int),
		ByTier:   make(map[model.Tier]int),
	}
	for _, r := range records {
		s.ByThreat[r.ThreatCode]++
		if r.Mitigation != nil {
			s.ByTier[r.Mitigation.Tier]++
		}
	}
	return s
}

// Service wires the aggregator, orchestrator, and resolver together.
type Service struct {
	aggregator Aggregator
	enricher   Enricher
	resolver   Resolver
	region     *Region
	timeout    time.Duration
	metrics    *monitoring.Metrics
}

// Option configures a Service.
type Option func(*Service)

// WithRegion rejects centers outside r.
func WithRegion(r Region) Option {
	return func(s *Service) { s.region = &r }
}

// WithRequestTimeout bounds each call. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithMetrics records request latency.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// NewService creates a Service.
func NewService(a Aggregator, e Enricher, r Resolver, opts ...Option) *Service {
	s := &Service{aggregator: a, enricher: e, resolver: r, timeout: 15 * time.Second}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// AggregateAndEnrich returns every risk around center with a mitigation
// attached. It fails only for an invalid or out-of-region center; layer
// failures are listed in FailedLayers.
func (s *Service) AggregateAndEnrich(ctx context.Context, center model.Coordinate, opts Options) (*Response, error) {
	start := time.Now()
	defer func() { s.metrics.ObserveRequest(OpSearch, time.Since(start)) }()

	ctx, span := tracer.Start(ctx, "lookup.aggregate_and_enrich")
	defer span.End()

	if err := s.check(center); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if opts.Offset < 0 {
		return nil, eris.Wrapf(model.ErrInvalidQuery, "offset %d is negative", opts.Offset)
	}
	if s.aggregator == nil || s.enricher == nil {
		span.SetStatus(codes.Error, ErrNoAggregator.Error())
		return nil, eris.Wrap(ErrNoAggregator, "aggregate and enrich")
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	agg, err := s.aggregator.Aggregate(ctx, center, aggregate.Options{Offset: opts.Offset})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	records := s.enricher.Enrich(ctx, agg.Records)
	failed := agg.FailedLayers
	if failed == nil {
		failed = []model.LayerKind{}
	}

	span.SetAttributes(
		attribute.Int("records", len(records)),
		attribute.Int("failed_layers", len(failed)),
	)
	zap.L().Debug("lookup: search complete",
		zap.Float64("latitude", center.Latitude),
		zap.Float64("longitude", center.Longitude),
		zap.Int("records", len(records)),
		zap.Int("failed_layers", len(failed)),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Response{
		Center:       center,
		Records:      records,
		FailedLayers: failed,
		Summary:      summarize(records),
	}, nil
}

func (s *Service) check(center model.Coordinate) error {
	if err := center.Validate(); err != nil {
		return err
	}
	if s.region != nil && !s.region.Contains(center) {
		return eris.Wrapf(model.ErrOutsideRegion, "(%v, %v)", center.Latitude, center.Longitude)
	}
	return nil
}

// ResolveMitigation resolves a single risk. It never fails and never
// returns an empty action.
func (s *Service) ResolveMitigation(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult {
	start := time.Now()
	defer func() { s.metrics.ObserveRequest(OpMitigate, time.Since(start)) }()

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.resolver.Resolve(ctx, riskType, level, description)
}
