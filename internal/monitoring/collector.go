package monitoring

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/rotisserie/eris"
)

// Snapshot holds counter totals read from the metrics registry.
type Snapshot struct {
	LayerQueries  map[string]float64 `json:"layer_queries"`
	LayerFailures map[string]float64 `json:"layer_failures"`
	Resolutions   map[string]float64 `json:"resolutions"`
	Timeouts      float64            `json:"timeouts"`
	CollectedAt   time.Time          `json:"collected_at"`
}

func newSnapshot() *Snapshot {
	return &Snapshot{
		LayerQueries:  make(map[string]float64),
		LayerFailures: make(map[string]float64),
		Resolutions:   make(map[string]float64),
	}
}

// LayerFailureRate returns failures/queries for a layer, or 0 with no queries.
func (s *Snapshot) LayerFailureRate(layer string) float64 {
	total := s.LayerQueries[layer]
	if total == 0 {
		return 0
	}
	return s.LayerFailures[layer] / total
}

// TotalResolutions sums resolutions across tiers.
func (s *Snapshot) TotalResolutions() float64 {
	var n float64
	for _, v := range s.Resolutions {
		n += v
	}
	return n
}

// SyntheticRate returns the share of resolutions served by the synthetic tier.
func (s *Snapshot) SyntheticRate() float64 {
	total := s.TotalResolutions()
	if total == 0 {
		return 0
	}
	return s.Resolutions["synthetic"] / total
}

// Delta returns the counter increase from prev to s. Counters that went
// backwards (process restart) are taken as-is.
func (s *Snapshot) Delta(prev *Snapshot) *Snapshot {
	if prev == nil {
		return s
	}
	out := newSnapshot()
	out.CollectedAt = s.CollectedAt
	sub := func(dst, cur, old map[string]float64) {
		for k, v := range cur {
			d := v - old[k]
			if d < 0 {
				d = v
			}
			dst[k] = d
		}
	}
	sub(out.LayerQueries, s.LayerQueries, prev.LayerQueries)
	sub(out.LayerFailures, s.LayerFailures, prev.LayerFailures)
	sub(out.Resolutions, s.Resolutions, prev.Resolutions)
	out.Timeouts = s.Timeouts - prev.Timeouts
	if out.Timeouts < 0 {
		out.Timeouts = s.Timeouts
	}
	return out
}

// Collector reads lookup counters from a Prometheus gatherer.
type Collector struct {
	gatherer prometheus.Gatherer
	clock    clockwork.Clock
}

// NewCollector creates a Collector over g.
func NewCollector(g prometheus.Gatherer, clock clockwork.Clock) *Collector {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Collector{gatherer: g, clock: clock}
}

// Collect gathers the current counter totals.
func (c *Collector) Collect(_ context.Context) (*Snapshot, error) {
	families, err := c.gatherer.Gather()
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: gather metrics")
	}

	snap := newSnapshot()
	snap.CollectedAt = c.clock.Now().UTC()

	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_layer_queries_total":
			for _, m := range mf.GetMetric() {
				layer := label(m, "layer")
				v := m.GetCounter().GetValue()
				snap.LayerQueries[layer] += v
				if label(m, "outcome") != OutcomeOK {
					snap.LayerFailures[layer] += v
				}
			}
		case namespace + "_mitigation_resolutions_total":
			for _, m := range mf.GetMetric() {
				snap.Resolutions[label(m, "tier")] += m.GetCounter().GetValue()
			}
		case namespace + "_timeouts_total":
			for _, m := range mf.GetMetric() {
				snap.Timeouts += m.GetCounter().GetValue()
			}
		}
	}
	return snap, nil
}

func label(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
