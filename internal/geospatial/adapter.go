package geospatial

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
	"github.com/sells-group/bioscope/internal/resilience"
)

var tracer = otel.Tracer("github.com/sells-group/bioscope/internal/geospatial")

// Result is the outcome of one layer read. Err is set, and Rows is empty,
// when the layer could not be read.
type Result struct {
	Kind  model.LayerKind
	Query model.RangeQuery
	Rows  []Row
	Err   *model.LayerError
}

// Adapter runs policy-shaped range queries against a Store. Each layer has
// its own circuit breaker so a failing table does not slow down the rest.
type Adapter struct {
	store    Store
	policies Policies
	breakers *resilience.Breakers
	retry    resilience.Policy
	metrics  *monitoring.Metrics
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithPolicies replaces the default per-layer policies.
func WithPolicies(p Policies) AdapterOption {
	return func(a *Adapter) { a.policies = p }
}

// WithBreakers sets the breaker registry used per layer.
func WithBreakers(b *resilience.Breakers) AdapterOption {
	return func(a *Adapter) { a.breakers = b }
}

// WithRetry sets the retry policy for transient store errors.
func WithRetry(p resilience.Policy) AdapterOption {
	return func(a *Adapter) { a.retry = p }
}

// WithMetrics records per-layer query counts and latency.
func WithMetrics(m *monitoring.Metrics) AdapterOption {
	return func(a *Adapter) { a.metrics = m }
}

// NewAdapter creates an Adapter over store.
func NewAdapter(store Store, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		store:    store,
		policies: DefaultPolicies(),
		breakers: resilience.NewBreakers(resilience.DefaultBreakerConfig()),
		retry:    resilience.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Policy returns the policy in effect for kind.
func (a *Adapter) Policy(kind model.LayerKind) (Policy, bool) {
	p, ok := a.policies[kind]
	return p, ok
}

// Fetch reads one layer around center. It never returns an error: failures
// are reported in Result.Err so the caller can continue with other layers.
// Rows outside the query box are dropped.
func (a *Adapter) Fetch(ctx context.Context, kind model.LayerKind, center model.Coordinate, offset int) (res Result) {
	res.Kind = kind

	pol, ok := a.policies[kind]
	if !ok {
		res.Err = &model.LayerError{Layer: kind, Cause: eris.Errorf("geo: no policy for layer %s", kind)}
		return res
	}
	q := pol.Query(center, offset)
	res.Query = q

	ctx, span := tracer.Start(ctx, "geospatial.fetch", trace.WithAttributes(
		attribute.String("layer", kind.String()),
		attribute.Int("offset", q.Offset),
	))
	defer span.End()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.Rows = nil
			res.Err = &model.LayerError{Layer: kind, Cause: eris.Errorf("geo: panic reading %s: %v", kind, r)}
		}
		outcome := monitoring.OutcomeOK
		if res.Err != nil {
			outcome = outcomeFor(res.Err.Cause)
			span.RecordError(res.Err)
			span.SetStatus(codes.Error, res.Err.Error())
			zap.L().Warn("geo: layer unavailable",
				zap.String("layer", kind.String()),
				zap.String("outcome", outcome),
				zap.Error(res.Err.Cause),
			)
		}
		span.SetAttributes(attribute.Int("rows", len(res.Rows)))
		a.metrics.ObserveLayer(kind.String(), outcome, len(res.Rows), time.Since(start))
	}()

	breaker := a.breakers.For(kind.String())
	rows, err := resilience.Call(ctx, breaker, func(ctx context.Context) ([]Row, error) {
		return resilience.RetryVal(ctx, a.retry, func(ctx context.Context) ([]Row, error) {
			return a.store.RangeQuery(ctx, kind, q)
		})
	})
	a.metrics.SetBreakerState(kind.String(), int(breaker.State()))
	if err != nil {
		res.Err = &model.LayerError{Layer: kind, Cause: err}
		return res
	}

	res.Rows = make([]Row, 0, len(rows))
	for _, r := range rows {
		if q.Contains(r.Coordinate) {
			res.Rows = append(res.Rows, r)
		}
	}
	return res
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, resilience.ErrOpen):
		return monitoring.OutcomeOpen
	case errors.Is(err, context.DeadlineExceeded):
		return monitoring.OutcomeTimeout
	default:
		return monitoring.OutcomeError
	}
}
