// Package enrich attaches a mitigation to every risk record using a bounded
// pool of resolver calls.
package enrich

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/bioscope/internal/mitigation"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
)

var tracer = otel.Tracer("github.com/sells-group/bioscope/internal/enrich")

// Timeout scopes reported to monitoring.
const (
	ScopeRecord  = "record"
	ScopeRequest = "request"
)

// Resolver resolves one mitigation. *mitigation.Resolver satisfies it.
type Resolver interface {
	Resolve(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult
}

// Config bounds the fan-out.
type Config struct {
	// Workers is the maximum number of concurrent resolutions. Default: 8.
	Workers int
	// RecordTimeout bounds the corpus and embedding tiers for one record. Default: 3s.
	RecordTimeout time.Duration
}

// Orchestrator resolves records concurrently with a fixed worker limit.
type Orchestrator struct {
	resolver Resolver
	cfg      Config
	metrics  *monitoring.Metrics
}

// New creates an Orchestrator.
func New(r Resolver, cfg Config, metrics *monitoring.Metrics) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	if cfg.RecordTimeout <= 0 {
		cfg.RecordTimeout = 3 * time.Second
	}
	return &Orchestrator{resolver: r, cfg: cfg, metrics: metrics}
}

// Enrich returns a new slice holding a copy of every record with its
// mitigation attached, in input order. Records that cannot be resolved
// before their own timeout or the ctx deadline get the synthetic action.
func (o *Orchestrator) Enrich(ctx context.Context, records []model.RiskRecord) []model.RiskRecord {
	out := make([]model.RiskRecord, len(records))
	if len(records) == 0 {
		return out
	}

	ctx, span := tracer.Start(ctx, "enrich")
	defer span.End()
	span.SetAttributes(attribute.Int("records", len(records)))

	var g errgroup.Group
	g.SetLimit(o.cfg.Workers)
	for i := range records {
		rec := records[i]
		if ctx.Err() != nil {
			o.metrics.ObserveTimeout(ScopeRequest)
			out[i] = rec.WithMitigation(synthesize(rec))
			continue
		}
		g.Go(func() error {
			out[i] = rec.WithMitigation(o.resolve(ctx, rec))
			return nil
		})
	}
	_ = g.Wait()

	return out
}

// resolve runs the resolver in its own goroutine so a stuck dependency is
// abandoned once the record or request deadline passes.
func (o *Orchestrator) resolve(ctx context.Context, rec model.RiskRecord) model.MitigationResult {
	if ctx.Err() != nil {
		o.metrics.ObserveTimeout(ScopeRequest)
		return synthesize(rec)
	}

	rctx, cancel := context.WithTimeout(ctx, o.cfg.RecordTimeout)
	defer cancel()

	done := make(chan model.MitigationResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				zap.L().Error("enrich: resolver panicked", zap.Any("panic", p))
				done <- synthesize(rec)
			}
		}()
		done <- o.resolver.Resolve(rctx, rec.RiskType, rec.ThreatCode, rec.Description)
	}()

	select {
	case res := <-done:
		return res
	case <-rctx.Done():
		scope := ScopeRecord
		if ctx.Err() != nil {
			scope = ScopeRequest
		}
		o.metrics.ObserveTimeout(scope)
		zap.L().Debug("enrich: resolution abandoned",
			zap.String("scope", scope),
			zap.String("risk_type", rec.RiskType),
			zap.String("threat_code", string(rec.ThreatCode)),
		)
		return synthesize(rec)
	}
}

func synthesize(rec model.RiskRecord) model.MitigationResult {
	return mitigation.Synthesize(rec.RiskType, rec.ThreatCode, rec.Description)
}
