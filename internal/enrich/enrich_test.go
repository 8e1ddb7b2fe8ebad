package enrich

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
)

type resolverFunc func(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult

func (f resolverFunc) Resolve(ctx context.Context, riskType string, level model.ThreatCode, description string) model.MitigationResult {
	return f(ctx, riskType, level, description)
}

func exact(_ context.Context, riskType string, level model.ThreatCode, _ string) model.MitigationResult {
	return model.MitigationResult{ActionText: fmt.Sprintf("act:%s:%s", riskType, level), Tier: model.TierExact}
}

// blocking returns a resolver that hangs until the test ends.
func blocking(t *testing.T) resolverFunc {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	return func(context.Context, string, model.ThreatCode, string) model.MitigationResult {
		<-release
		return model.MitigationResult{ActionText: "too late", Tier: model.TierExact}
	}
}

func records(n int) []model.RiskRecord {
	out := make([]model.RiskRecord, n)
	for i := range out {
		out[i] = model.RiskRecord{
			Layer:       model.InvasiveSpecies,
			RiskType:    fmt.Sprintf("risk-%d", i),
			ThreatCode:  model.ThreatHigh,
			Description: fmt.Sprintf("site %d", i),
		}
	}
	return out
}

func TestEnrich_OrderAndCopy(t *testing.T) {
	in := records(20)
	out := New(resolverFunc(exact), Config{Workers: 4}, nil).Enrich(context.Background(), in)

	require.Len(t, out, len(in))
	for i := range in {
		assert.Nil(t, in[i].Mitigation, "input must not be modified")
		require.NotNil(t, out[i].Mitigation)
		assert.Equal(t, in[i].RiskType, out[i].RiskType)
		assert.Equal(t, fmt.Sprintf("act:risk-%d:high", i), out[i].Mitigation.ActionText)
	}
}

func TestEnrich_Empty(t *testing.T) {
	out := New(resolverFunc(exact), Config{}, nil).Enrich(context.Background(), nil)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestEnrich_BoundedConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := resolverFunc(func(ctx context.Context, riskType string, level model.ThreatCode, d string) model.MitigationResult {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return exact(ctx, riskType, level, d)
	})

	out := New(r, Config{Workers: 3}, nil).Enrich(context.Background(), records(15))
	assert.Len(t, out, 15)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.GreaterOrEqual(t, peak.Load(), int32(1))
}

func TestEnrich_RecordTimeoutSynthesizes(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	o := New(blocking(t), Config{Workers: 2, RecordTimeout: 20 * time.Millisecond}, m)

	start := time.Now()
	out := o.Enrich(context.Background(), records(2))
	assert.Less(t, time.Since(start), 2*time.Second)

	for i, rec := range out {
		require.NotNil(t, rec.Mitigation)
		assert.Equal(t, model.TierSynthetic, rec.Mitigation.Tier)
		assert.Contains(t, rec.Mitigation.ActionText, fmt.Sprintf("Site %d", i))
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Timeouts.WithLabelValues(ScopeRecord)))
}

func TestEnrich_RequestDeadlineSynthesizesEverything(t *testing.T) {
	m := monitoring.NewMetrics(prometheus.NewRegistry())
	o := New(blocking(t), Config{Workers: 1, RecordTimeout: time.Minute}, m)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	out := o.Enrich(ctx, records(5))
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, out, 5)
	for _, rec := range out {
		require.NotNil(t, rec.Mitigation)
		assert.Equal(t, model.TierSynthetic, rec.Mitigation.Tier)
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(m.Timeouts.WithLabelValues(ScopeRequest)))
}

func TestEnrich_MixedOutcomes(t *testing.T) {
	hang := blocking(t)
	r := resolverFunc(func(ctx context.Context, riskType string, level model.ThreatCode, d string) model.MitigationResult {
		if riskType == "risk-1" {
			return hang(ctx, riskType, level, d)
		}
		return exact(ctx, riskType, level, d)
	})

	out := New(r, Config{Workers: 4, RecordTimeout: 20 * time.Millisecond}, nil).Enrich(context.Background(), records(3))
	assert.Equal(t, model.TierExact, out[0].Mitigation.Tier)
	assert.Equal(t, model.TierSynthetic, out[1].Mitigation.Tier)
	assert.Equal(t, model.TierExact, out[2].Mitigation.Tier)
}

func TestEnrich_ResolverPanic(t *testing.T) {
	r := resolverFunc(func(context.Context, string, model.ThreatCode, string) model.MitigationResult {
		panic("boom")
	})
	out := New(r, Config{}, nil).Enrich(context.Background(), records(1))
	require.NotNil(t, out[0].Mitigation)
	assert.Equal(t, model.TierSynthetic, out[0].Mitigation.Tier)
}
