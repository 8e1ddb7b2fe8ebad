package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "bioscope"

// Layer query outcomes.
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeOpen    = "circuit_open"
	OutcomeTimeout = "timeout"
)

// Metrics holds the Prometheus collectors for lookups and mitigation
// resolution. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LayerQueries       *prometheus.CounterVec
	LayerQueryDuration *prometheus.HistogramVec
	LayerRows          *prometheus.CounterVec
	Resolutions        *prometheus.CounterVec
	TierFallthroughs   *prometheus.CounterVec
	Timeouts           *prometheus.CounterVec
	RequestDuration    *prometheus.HistogramVec
	EmbeddingCache     *prometheus.CounterVec
	BreakerState       *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LayerQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_queries_total",
			Help:      "Range queries issued per layer by outcome.",
		}, []string{"layer", "outcome"}),
		LayerQueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "layer_query_duration_seconds",
			Help:      "Range query latency per layer.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"layer"}),
		LayerRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "layer_rows_total",
			Help:      "Rows returned per layer.",
		}, []string{"layer"}),
		Resolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mitigation_resolutions_total",
			Help:      "Mitigation resolutions by winning tier.",
		}, []string{"tier"}),
		TierFallthroughs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mitigation_fallthroughs_total",
			Help:      "Tier attempts that fell through to the next tier.",
		}, []string{"tier", "reason"}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "timeouts_total",
			Help:      "Deadlines that forced a synthesized mitigation.",
		}, []string{"scope"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end lookup latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		EmbeddingCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
		BreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per dependency (0 closed, 1 open, 2 half-open).",
		}, []string{"dependency"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.LayerQueries,
			m.LayerQueryDuration,
			m.LayerRows,
			m.Resolutions,
			m.TierFallthroughs,
			m.Timeouts,
			m.RequestDuration,
			m.EmbeddingCache,
			m.BreakerState,
		)
	}
	return m
}

// ObserveLayer records one range query.
func (m *Metrics) ObserveLayer(layer, outcome string, rows int, d time.Duration) {
	if m == nil {
		return
	}
	m.LayerQueries.WithLabelValues(layer, outcome).Inc()
	m.LayerQueryDuration.WithLabelValues(layer).Observe(d.Seconds())
	if rows > 0 {
		m.LayerRows.WithLabelValues(layer).Add(float64(rows))
	}
}

// ObserveResolution records the tier that produced a mitigation.
func (m *Metrics) ObserveResolution(tier string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(tier).Inc()
}

// ObserveFallthrough records a tier that did not produce a result.
func (m *Metrics) ObserveFallthrough(tier, reason string) {
	if m == nil {
		return
	}
	m.TierFallthroughs.WithLabelValues(tier, reason).Inc()
}

// ObserveTimeout records a deadline hit at the given scope ("record" or "request").
func (m *Metrics) ObserveTimeout(scope string) {
	if m == nil {
		return
	}
	m.Timeouts.WithLabelValues(scope).Inc()
}

// ObserveRequest records end-to-end latency for an operation.
func (m *Metrics) ObserveRequest(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveCache records an embedding cache hit, miss, or error.
func (m *Metrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.EmbeddingCache.WithLabelValues(result).Inc()
}

// SetBreakerState exports a breaker state as a gauge value.
func (m *Metrics) SetBreakerState(dependency string, state int) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(dependency).Set(float64(state))
}
