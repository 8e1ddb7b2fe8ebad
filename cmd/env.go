package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioscope/internal/aggregate"
	"github.com/sells-group/bioscope/internal/config"
	"github.com/sells-group/bioscope/internal/corpus"
	"github.com/sells-group/bioscope/internal/db"
	"github.com/sells-group/bioscope/internal/embed"
	"github.com/sells-group/bioscope/internal/enrich"
	"github.com/sells-group/bioscope/internal/geospatial"
	"github.com/sells-group/bioscope/internal/lookup"
	"github.com/sells-group/bioscope/internal/mitigation"
	"github.com/sells-group/bioscope/internal/model"
	"github.com/sells-group/bioscope/internal/monitoring"
	"github.com/sells-group/bioscope/internal/resilience"
	"github.com/sells-group/bioscope/internal/threat"
)

// layerStore is implemented by both spatial store drivers.
type layerStore interface {
	geospatial.Store
	geospatial.Loader
}

// appEnv holds every initialized dependency needed by the commands.
type appEnv struct {
	Registry *prometheus.Registry
	Metrics  *monitoring.Metrics
	Breakers *resilience.Breakers
	Retry    resilience.Policy

	Store    layerStore      // nil unless requested
	Corpus   corpus.Corpus   // nil unless requested
	Embedder embed.Embedder  // nil unless requested
	Resolver *mitigation.Resolver
	Service  *lookup.Service

	pool    *pgxpool.Pool
	closers []func()
}

// envParts selects which dependencies initEnv builds.
type envParts struct {
	store   bool
	corpus  bool
	service bool
}

// Close releases resources in reverse order of acquisition.
func (e *appEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
	e.closers = nil
}

// initEnv validates cfg for mode and builds the requested parts. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string, parts envParts) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	env := &appEnv{
		Registry: reg,
		Metrics:  monitoring.NewMetrics(reg),
		Breakers: resilience.NewBreakers(resilience.BreakerFrom(cfg.Circuit.FailureThreshold, cfg.Circuit.ResetTimeoutSecs)),
		Retry:    resilience.PolicyFrom(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs, cfg.Retry.MaxBackoffMs),
	}

	if err := env.build(ctx, parts); err != nil {
		env.Close()
		return nil, err
	}
	return env, nil
}

func (e *appEnv) build(ctx context.Context, parts envParts) error {
	if parts.store || parts.service {
		st, err := e.initStore(ctx)
		if err != nil {
			return err
		}
		e.Store = st
	}

	if parts.corpus || parts.service {
		emb, err := e.initEmbedder(ctx)
		if err != nil {
			return err
		}
		e.Embedder = emb

		c, err := e.initCorpus(ctx)
		if err != nil {
			return err
		}
		e.Corpus = c

		e.Resolver = mitigation.NewResolver(c, emb,
			mitigation.WithNeighbors(cfg.Corpus.Neighbors),
			mitigation.WithBreakers(e.Breakers),
			mitigation.WithMetrics(e.Metrics),
		)
	}

	if e.Resolver != nil {
		e.Service = e.initService()
	}
	return nil
}

// postgres connects once and shares the pool between the store and corpus.
func (e *appEnv) postgres(ctx context.Context) (*pgxpool.Pool, error) {
	if e.pool != nil {
		return e.pool, nil
	}
	pool, err := db.Connect(ctx, cfg.Store.DatabaseURL, db.PoolConfig{MaxConns: cfg.Store.MaxConns})
	if err != nil {
		return nil, eris.Wrap(err, "connect postgres")
	}
	e.pool = pool
	e.closers = append(e.closers, pool.Close)
	return pool, nil
}

func (e *appEnv) initStore(ctx context.Context) (layerStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		st, err := geospatial.NewSQLiteStore(cfg.Store.SQLitePath)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() { _ = st.Close() })
		if err := st.Migrate(ctx); err != nil {
			return nil, eris.Wrap(err, "migrate sqlite store")
		}
		return st, nil
	default:
		pool, err := e.postgres(ctx)
		if err != nil {
			return nil, err
		}
		st := geospatial.NewPostgresStore(pool)
		if err := st.Migrate(ctx); err != nil {
			return nil, eris.Wrap(err, "migrate postgres store")
		}
		return st, nil
	}
}

func (e *appEnv) initEmbedder(ctx context.Context) (embed.Embedder, error) {
	var emb embed.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		emb = embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			Dimensions:        cfg.Embedding.Dimensions,
			RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
			Retry:             e.Retry,
		})
	default:
		emb = embed.NewHashEmbedder(cfg.Embedding.Dimensions)
	}

	client, err := embed.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		zap.L().Warn("embedding cache unavailable, continuing without it", zap.Error(err))
		return emb, nil
	}
	if client == nil {
		return emb, nil
	}
	e.closers = append(e.closers, func() { _ = client.Close() })

	namespace := fmt.Sprintf("%s:%s:%d", cfg.Embedding.Provider, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	ttl := time.Duration(cfg.Embedding.CacheTTLHours) * time.Hour
	return embed.NewCachedEmbedder(emb, embed.NewRedisCache(client), namespace, ttl, e.Metrics), nil
}

func (e *appEnv) initCorpus(ctx context.Context) (corpus.Corpus, error) {
	switch cfg.Corpus.Backend {
	case "weaviate":
		wc, err := corpus.NewWeaviateCorpus(corpus.WeaviateConfig{
			URL:       cfg.Weaviate.URL,
			ClassName: cfg.Weaviate.ClassName,
			APIKey:    cfg.Weaviate.APIKey,
		})
		if err != nil {
			return nil, err
		}
		if err := wc.EnsureSchema(ctx); err != nil {
			return nil, eris.Wrap(err, "ensure weaviate schema")
		}
		return wc, nil
	case "memory":
		mc := corpus.NewMemoryCorpus()
		if cfg.Corpus.SeedFile == "" {
			return mc, nil
		}
		docs, err := corpus.LoadSeed(ctx, cfg.Corpus.SeedFile)
		if err != nil {
			return nil, err
		}
		n, err := corpus.Ingest(ctx, mc, e.Embedder, docs, corpus.IngestOptions{})
		if err != nil {
			return nil, eris.Wrap(err, "seed memory corpus")
		}
		zap.L().Info("memory corpus seeded", zap.String("file", cfg.Corpus.SeedFile), zap.Int64("documents", n))
		return mc, nil
	default:
		pool, err := e.postgres(ctx)
		if err != nil {
			return nil, err
		}
		pc := corpus.NewPostgresCorpus(pool, cfg.Corpus.Table)
		if err := pc.Migrate(ctx); err != nil {
			return nil, eris.Wrap(err, "migrate corpus")
		}
		return pc, nil
	}
}

// initService wires the lookup service. Without a store only
// ResolveMitigation is usable.
func (e *appEnv) initService() *lookup.Service {
	opts := []lookup.Option{
		lookup.WithRequestTimeout(time.Duration(cfg.Resolver.RequestTimeoutMs) * time.Millisecond),
		lookup.WithMetrics(e.Metrics),
	}
	if cfg.Region.Enforce {
		opts = append(opts, lookup.WithRegion(lookup.Region{
			MinLat: cfg.Region.MinLat, MaxLat: cfg.Region.MaxLat,
			MinLon: cfg.Region.MinLon, MaxLon: cfg.Region.MaxLon,
		}))
	}
	if e.Store == nil {
		return lookup.NewService(nil, nil, e.Resolver, opts...)
	}

	adapter := geospatial.NewAdapter(e.Store,
		geospatial.WithPolicies(geospatial.PoliciesFrom(
			cfg.Layers.IUCNPageSize,
			cfg.Layers.PointTolerance,
			cfg.Layers.RasterLatTolerance,
			cfg.Layers.RasterLonTolerance,
		)),
		geospatial.WithBreakers(e.Breakers),
		geospatial.WithRetry(e.Retry),
		geospatial.WithMetrics(e.Metrics),
	)
	agg := aggregate.New(adapter, aggregate.WithNormalizer(normalizerFrom(cfg.Thresholds)))

	orch := enrich.New(e.Resolver, enrich.Config{
		Workers:       cfg.Resolver.Workers,
		RecordTimeout: time.Duration(cfg.Resolver.RecordTimeoutMs) * time.Millisecond,
	}, e.Metrics)

	return lookup.NewService(agg, orch, e.Resolver, opts...)
}

// normalizerFrom overrides the raster cut points with configured values.
// Scales and missing-score defaults keep the published layer values.
func normalizerFrom(t config.ThresholdsConfig) *threat.Normalizer {
	def := threat.DefaultThresholds()

	marine := def[model.MarineHCI]
	marine.High, marine.Moderate = t.MarineHigh, t.MarineModerate

	hci := def[model.FreshwaterHCI]
	hci.High, hci.Moderate = t.HCIHigh, t.HCIModerate

	return threat.NewNormalizer(map[model.LayerKind]threat.Thresholds{
		model.MarineHCI:      marine,
		model.FreshwaterHCI:  hci,
		model.TerrestrialHCI: hci,
	})
}
