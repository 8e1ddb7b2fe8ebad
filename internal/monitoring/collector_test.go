package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return NewMetrics(reg), reg
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.ObserveLayer("marine_hci", OutcomeOK, 3, time.Millisecond)
	m.ObserveResolution("exact")
	m.ObserveFallthrough("semantic", "miss")
	m.ObserveTimeout("record")
	m.ObserveRequest("search", time.Second)
	m.ObserveCache("hit")
	m.SetBreakerState("store", 1)
}

func TestMetrics_Observe(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.ObserveLayer("marine_hci", OutcomeOK, 4, 10*time.Millisecond)
	m.ObserveLayer("marine_hci", OutcomeError, 0, 10*time.Millisecond)
	m.ObserveResolution("exact")
	m.ObserveResolution("exact")
	m.ObserveFallthrough("semantic", "miss")
	m.SetBreakerState("iucn_assessment", 1)

	assert.InDelta(t, 1, testutil.ToFloat64(m.LayerQueries.WithLabelValues("marine_hci", OutcomeOK)), 1e-9)
	assert.InDelta(t, 4, testutil.ToFloat64(m.LayerRows.WithLabelValues("marine_hci")), 1e-9)
	assert.InDelta(t, 2, testutil.ToFloat64(m.Resolutions.WithLabelValues("exact")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.TierFallthroughs.WithLabelValues("semantic", "miss")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(m.BreakerState.WithLabelValues("iucn_assessment")), 1e-9)
}

func TestCollector_Collect(t *testing.T) {
	m, reg := newTestMetrics(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))

	for i := 0; i < 8; i++ {
		m.ObserveLayer("freshwater_hci", OutcomeOK, 1, time.Millisecond)
	}
	m.ObserveLayer("freshwater_hci", OutcomeError, 0, time.Millisecond)
	m.ObserveLayer("freshwater_hci", OutcomeOpen, 0, time.Millisecond)
	m.ObserveResolution("exact")
	m.ObserveResolution("synthetic")
	m.ObserveResolution("synthetic")
	m.ObserveTimeout("record")

	snap, err := NewCollector(reg, clock).Collect(context.Background())
	require.NoError(t, err)

	assert.InDelta(t, 10, snap.LayerQueries["freshwater_hci"], 1e-9)
	assert.InDelta(t, 2, snap.LayerFailures["freshwater_hci"], 1e-9)
	assert.InDelta(t, 0.2, snap.LayerFailureRate("freshwater_hci"), 1e-9)
	assert.InDelta(t, 3, snap.TotalResolutions(), 1e-9)
	assert.InDelta(t, 2.0/3.0, snap.SyntheticRate(), 1e-9)
	assert.InDelta(t, 1, snap.Timeouts, 1e-9)
	assert.Equal(t, clock.Now().UTC(), snap.CollectedAt)
}

func TestSnapshot_EmptyRates(t *testing.T) {
	s := newSnapshot()
	assert.Zero(t, s.LayerFailureRate("marine_hci"))
	assert.Zero(t, s.SyntheticRate())
}

func TestSnapshot_Delta(t *testing.T) {
	prev := newSnapshot()
	prev.LayerQueries["marine_hci"] = 10
	prev.LayerFailures["marine_hci"] = 1
	prev.Resolutions["exact"] = 5

	cur := newSnapshot()
	cur.LayerQueries["marine_hci"] = 25
	cur.LayerFailures["marine_hci"] = 6
	cur.Resolutions["exact"] = 7
	cur.Resolutions["synthetic"] = 3

	d := cur.Delta(prev)
	assert.InDelta(t, 15, d.LayerQueries["marine_hci"], 1e-9)
	assert.InDelta(t, 5, d.LayerFailures["marine_hci"], 1e-9)
	assert.InDelta(t, 2, d.Resolutions["exact"], 1e-9)
	assert.InDelta(t, 3, d.Resolutions["synthetic"], 1e-9)

	assert.Same(t, cur, cur.Delta(nil))

	// A counter reset after restart is taken as the new total.
	reset := newSnapshot()
	reset.LayerQueries["marine_hci"] = 4
	assert.InDelta(t, 4, reset.Delta(cur).LayerQueries["marine_hci"], 1e-9)
}
