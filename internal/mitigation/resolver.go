// Package mitigation picks a mitigation action for a risk by trying an
// exact corpus lookup, then a nearest-neighbour search, then a generic
// synthesized recommendation.
package mitigation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/corpus"
	"github.com/sells-group/bioscope/internal/embed"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
	"github.com/sells-group/bioscope/internal/resilience"
)

var tracer = otel.Tracer("github.com/sells-group/bioscope/internal/mitigation")

// Dependency names used for circuit breakers and breaker-state metrics.
const (
	DepCorpus   = "corpus"
	DepEmbedder = "embedder"
)

// errNoMatch means a tier ran cleanly but had nothing to offer.
var errNoMatch = eris.New("mitigation: no match")

// Query is one resolution request. Tags are normalized by newQuery.
type Query struct {
	RiskType    string
	ThreatLevel string
	Description string
}

func newQuery(riskType string, level model.ThreatCode, description string) Query {
	return Query{
		RiskType:    corpus.NormalizeTag(riskType),
		ThreatLevel: corpus.NormalizeTag(string(level)),
		Description: strings.TrimSpace(description),
	}
}

// Resolver resolves mitigations against one corpus and one embedder. It is
// safe for concurrent use and is meant to be built once per process.
type Resolver struct {
	corpus    corpus.Reader
	embedder  embed.Embedder
	neighbors int
	breakers  *resilience.Breakers
	metrics   *monitoring.Metrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNeighbors sets k for the semantic tier. Values below 1 are ignored.
func WithNeighbors(k int) Option {
	return func(r *Resolver) {
		if k > 0 {
			r.neighbors = k
		}
	}
}

// WithBreakers guards the corpus and the embedder with circuit breakers.
func WithBreakers(b *resilience.Breakers) Option {
	return func(r *Resolver) { r.breakers = b }
}

// WithMetrics counts tier outcomes and fall-throughs.
func WithMetrics(m *monitoring.Metrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// NewResolver creates a Resolver. Either dependency may be nil, in which
// case the tiers that need it always fall through.
func NewResolver(c corpus.Reader, e embed.Embedder, opts ...Option) *Resolver {
	r := &Resolver{corpus: c, embedder: e, neighbors: 3}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns a mitigation for the risk. It never fails and never
// returns an empty action.
func (r *Resolver) Resolve(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult {
	q := newQuery(riskType, level, description)

	ctx, span := tracer.Start(ctx, "mitigation.resolve", trace.WithAttributes(
		attribute.String("risk_type", q.RiskType),
		attribute.String("threat_level", q.ThreatLevel),
	))
	defer span.End()

	res := r.chain().orElse(synthesize)(ctx, q)

	span.SetAttributes(attribute.String("tier", string(res.Tier)))
	r.metrics.ObserveResolution(string(res.Tier))
	return res
}

func (r *Resolver) chain() chain {
	return firstOf(
		namedTier{name: model.TierExact, fn: r.exactTier},
		namedTier{name: model.TierSemantic, fn: r.semanticTier},
	).onMiss(func(tier model.Tier, err error) {
		reason := reasonFor(err)
		r.metrics.ObserveFallthrough(string(tier), reason)
		zap.L().Debug("mitigation: tier fell through",
			zap.String("tier", string(tier)),
			zap.String("reason", reason),
			zap.Error(err),
		)
	})
}

func (r *Resolver) exactTier(ctx context.Context, q Query) (model.MitigationResult, error) {
	if r.corpus == nil {
		return model.MitigationResult{}, eris.New("mitigation: no corpus configured")
	}
	doc, err := guard(ctx, r, DepCorpus, func(ctx context.Context) (*model.MitigationDocument, error) {
		return r.corpus.GetExact(ctx, q.RiskType, q.ThreatLevel)
	})
	if errors.Is(err, corpus.ErrNotFound) {
		return model.MitigationResult{}, errNoMatch
	}
	if err != nil {
		return model.MitigationResult{}, err
	}
	return model.MitigationResult{ActionText: strings.TrimSpace(doc.ActionText), Tier: model.TierExact}, nil
}

func (r *Resolver) semanticTier(ctx context.Context, q Query) (model.MitigationResult, error) {
	if r.corpus == nil || r.embedder == nil {
		return model.MitigationResult{}, eris.New("mitigation: semantic search not configured")
	}

	vec, err := guard(ctx, r, DepEmbedder, func(ctx context.Context) ([]float32, error) {
		return r.embedder.Embed(ctx, corpus.EmbeddingText(q.RiskType, q.ThreatLevel))
	})
	if err != nil {
		return model.MitigationResult{}, err
	}

	neighbors, err := guard(ctx, r, DepCorpus, func(ctx context.Context) ([]corpus.Neighbor, error) {
		return r.corpus.Nearest(ctx, vec, r.neighbors)
	})
	if err != nil {
		return model.MitigationResult{}, err
	}

	for _, n := range neighbors {
		if action := strings.TrimSpace(n.Doc.ActionText); action != "" {
			d := n.Distance
			return model.MitigationResult{ActionText: action, Tier: model.TierSemantic, Distance: &d}, nil
		}
	}
	return model.MitigationResult{}, errNoMatch
}

// guard runs fn through the named breaker when breakers are configured.
func guard[T any](ctx context.Context, r *Resolver, dep string, fn func(ctx context.Context) (T, error)) (T, error) {
	if r.breakers == nil {
		return fn(ctx)
	}
	b := r.breakers.For(dep)
	v, err := resilience.Call(ctx, b, fn)
	r.metrics.SetBreakerState(dep, int(b.State()))
	return v, err
}

func reasonFor(err error) string {
	switch {
	case errors.Is(err, errNoMatch):
		return "miss"
	case errors.Is(err, errBlankAction):
		return "blank"
	case errors.Is(err, errTierPanic):
		return "panic"
	case errors.Is(err, resilience.ErrOpen):
		return monitoring.OutcomeOpen
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return monitoring.OutcomeTimeout
	default:
		return monitoring.OutcomeError
	}
}

// Synthesize builds the generic two-step recommendation used when the
// corpus has nothing better. It is deterministic and never empty.
func Synthesize(riskType string, level model.ThreatCode, description string) model.MitigationResult {
	return synthesize(newQuery(riskType, level, description))
}

// describe labels a query that carries no description. Blank parts are
// dropped.
func describe(riskType, level string) string {
	if riskType == "" {
		riskType = "unspecified risk"
	}
	if level == "" {
		return riskType
	}
	return fmt.Sprintf("%s (%s)", riskType, level)
}

func synthesize(q Query) model.MitigationResult {
	desc := q.Description
	if desc == "" {
		desc = describe(q.RiskType, q.ThreatLevel)
	}
	return model.MitigationResult{
		ActionText: titleCase(desc) + " —\n" +
			"1. Monitor the area periodically for potential risks.\n" +
			"2. Record observations and reassess priority if severity increases.",
		Tier: model.TierSynthetic,
	}
}
