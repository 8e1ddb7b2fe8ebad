package lookup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioscope/internal/aggregate"
	"github.com/sells-group/bioscope/internal/corpus"
	"github.com/sells-group/bioscope/internal/embed"
	"github.com/sells-group/bioscope/internal/enrich"
	"github.com/sells-group/bioscope/internal/geospatial"
	"github.com/sells-group/bioscope/internal/mitigation"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
	"github.com/sells-group/bioscope/internal/resilience"
)

type memStore struct {
	rows  map[model.LayerKind][]geospatial.Row
	fails map[model.LayerKind]error
	calls int
}

func (s *memStore) RangeQuery(_ context.Context, kind model.LayerKind, _ model.RangeQuery) ([]geospatial.Row, error) {
	s.calls++
	if err := s.fails[kind]; err != nil {
		return nil, err
	}
	return s.rows[kind], nil
}

func score(f float64) *float64 { return &f }

var trenton = model.Coordinate{Latitude: 40.22, Longitude: -74.76}

func newStore() *memStore {
	return &memStore{
		rows: map[model.LayerKind][]geospatial.Row{
			model.InvasiveSpecies: {{Coordinate: model.Coordinate{Latitude: 40.23, Longitude: -74.75}, Name: "Japanese Knotweed", Label: "high"}},
			model.FreshwaterHCI:   {{Coordinate: model.Coordinate{Latitude: 40.5, Longitude: -74.76}, Score: score(2.2)}},
			model.MarineHCI:       {{Coordinate: model.Coordinate{Latitude: 40.3, Longitude: -74.7}, Score: score(0.1)}},
		},
		fails: map[model.LayerKind]error{},
	}
}

func newService(t *testing.T, st geospatial.Store, opts ...Option) (*Service, *monitoring.Metrics) {
	t.Helper()
	ctx := context.Background()
	e := embed.NewHashEmbedder(128)
	c := corpus.NewMemoryCorpus()
	_, err := corpus.Ingest(ctx, c, e, []model.MitigationDocument{
		{RiskType: "Invasive Species", ThreatLevel: "high", ActionText: "Remove invasive plants and monitor regrowth"},
		{RiskType: "Freshwater Risk", ThreatLevel: "high", ActionText: "Restore riparian buffers"},
	}, corpus.IngestOptions{})
	require.NoError(t, err)

	m := monitoring.NewMetrics(prometheus.NewRegistry())
	resolver := mitigation.NewResolver(c, e, mitigation.WithMetrics(m))
	agg := aggregate.New(geospatial.NewAdapter(st, geospatial.WithRetry(resilience.Policy{Attempts: 1}), geospatial.WithMetrics(m)))
	orch := enrich.New(resolver, enrich.Config{Workers: 4, RecordTimeout: time.Second}, m)
	return NewService(agg, orch, resolver, append([]Option{WithMetrics(m)}, opts...)...), m
}

func TestAggregateAndEnrich(t *testing.T) {
	svc, m := newService(t, newStore())

	resp, err := svc.AggregateAndEnrich(context.Background(), trenton, Options{})
	require.NoError(t, err)
	assert.Equal(t, trenton, resp.Center)
	assert.Empty(t, resp.FailedLayers)
	require.Len(t, resp.Records, 3)

	for _, r := range resp.Records {
		require.NotNil(t, r.Mitigation, r.RiskType)
		assert.NotEmpty(t, r.Mitigation.ActionText)
	}
	assert.Equal(t, "Remove invasive plants and monitor regrowth", resp.Records[0].Mitigation.ActionText)
	assert.Equal(t, model.TierExact, resp.Records[0].Mitigation.Tier)
	assert.Equal(t, "Restore riparian buffers", resp.Records[1].Mitigation.ActionText)

	assert.Equal(t, 3, resp.Summary.Total)
	assert.Equal(t, 2, resp.Summary.ByThreat[model.ThreatHigh])
	assert.Equal(t, 1, resp.Summary.ByThreat[model.ThreatLow])
	assert.Equal(t, 1, testutil.CollectAndCount(m.RequestDuration))
}

func TestAggregateAndEnrich_PartialFailure(t *testing.T) {
	st := newStore()
	st.fails[model.MarineHCI] = errors.New("relation marine_hci does not exist")
	svc, _ := newService(t, st)

	resp, err := svc.AggregateAndEnrich(context.Background(), trenton, Options{})
	require.NoError(t, err)
	assert.Equal(t, []model.LayerKind{model.MarineHCI}, resp.FailedLayers)
	for _, r := range resp.Records {
		assert.NotEqual(t, model.MarineHCI, r.Layer)
	}
}

func TestAggregateAndEnrich_InvalidCenter(t *testing.T) {
	st := newStore()
	svc, _ := newService(t, st)

	_, err := svc.AggregateAndEnrich(context.Background(), model.Coordinate{Latitude: 120, Longitude: 0}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrInvalidQuery))

	_, err = svc.AggregateAndEnrich(context.Background(), trenton, Options{Offset: -1})
	assert.True(t, errors.Is(err, model.ErrInvalidQuery))
	assert.Zero(t, st.calls)
}

func TestAggregateAndEnrich_Region(t *testing.T) {
	st := newStore()
	svc, _ := newService(t, st, WithRegion(Region{MinLat: 38.92, MaxLat: 41.36, MinLon: -75.58, MaxLon: -73.90}))

	_, err := svc.AggregateAndEnrich(context.Background(), trenton, Options{})
	require.NoError(t, err)

	_, err = svc.AggregateAndEnrich(context.Background(), model.Coordinate{Latitude: 34.05, Longitude: -118.24}, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrOutsideRegion))
	assert.True(t, errors.Is(err, model.ErrInvalidQuery))
}

func TestAggregateAndEnrich_EmptyArea(t *testing.T) {
	svc, _ := newService(t, &memStore{})

	resp, err := svc.AggregateAndEnrich(context.Background(), trenton, Options{})
	require.NoError(t, err)
	assert.NotNil(t, resp.Records)
	assert.Empty(t, resp.Records)
	assert.NotNil(t, resp.FailedLayers)
}

func TestAggregateAndEnrich_WithoutAggregator(t *testing.T) {
	full, _ := newService(t, newStore())
	svc := NewService(nil, nil, full.resolver)

	resp, err := svc.AggregateAndEnrich(context.Background(), trenton, Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoAggregator))
	assert.Nil(t, resp)

	res := svc.ResolveMitigation(context.Background(), "Freshwater Risk", model.ThreatHigh, "")
	assert.Equal(t, model.TierExact, res.Tier)
}

func TestResolveMitigation(t *testing.T) {
	svc, _ := newService(t, newStore())

	res := svc.ResolveMitigation(context.Background(), "Freshwater Risk", model.ThreatHigh, "")
	assert.Equal(t, model.TierExact, res.Tier)

	res = svc.ResolveMitigation(context.Background(), "Unknown Risk", model.ThreatLow, "flooding near creek")
	assert.NotEmpty(t, res.ActionText)
}

func TestRegionContains(t *testing.T) {
	r := Region{MinLat: 0, MaxLat: 1, MinLon: 0, MaxLon: 1}
	assert.True(t, r.Contains(model.Coordinate{Latitude: 1, Longitude: 0}))
	assert.False(t, r.Contains(model.Coordinate{Latitude: 1.01, Longitude: 0.5}))
}
