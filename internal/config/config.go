package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Corpus     CorpusConfig     `yaml:"corpus" mapstructure:"corpus"`
	Weaviate   WeaviateConfig   `yaml:"weaviate" mapstructure:"weaviate"`
	Embedding  EmbeddingConfig  `yaml:"embedding" mapstructure:"embedding"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Resolver   ResolverConfig   `yaml:"resolver" mapstructure:"resolver"`
	Layers     LayersConfig     `yaml:"layers" mapstructure:"layers"`
	Thresholds ThresholdsConfig `yaml:"thresholds" mapstructure:"thresholds"`
	Retry      RetryConfig      `yaml:"retry" mapstructure:"retry"`
	Circuit    CircuitConfig    `yaml:"circuit" mapstructure:"circuit"`
	Region     RegionConfig     `yaml:"region" mapstructure:"region"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the spatial data store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // postgres | sqlite
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// CorpusConfig selects the mitigation corpus backend.
type CorpusConfig struct {
	Backend   string `yaml:"backend" mapstructure:"backend"` // postgres | weaviate | memory
	Table     string `yaml:"table" mapstructure:"table"`
	SeedFile  string `yaml:"seed_file" mapstructure:"seed_file"`
	Neighbors int    `yaml:"neighbors" mapstructure:"neighbors"`
}

// WeaviateConfig holds vector index connection settings.
type WeaviateConfig struct {
	URL       string `yaml:"url" mapstructure:"url"`
	ClassName string `yaml:"class_name" mapstructure:"class_name"`
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
}

// EmbeddingConfig selects and tunes the embedding function.
type EmbeddingConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // hash | openai
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	Dimensions        int     `yaml:"dimensions" mapstructure:"dimensions"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	CacheTTLHours     int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
}

// RedisConfig configures the optional embedding cache.
type RedisConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// ResolverConfig bounds mitigation resolution.
type ResolverConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	RecordTimeoutMs  int `yaml:"record_timeout_ms" mapstructure:"record_timeout_ms"`
	RequestTimeoutMs int `yaml:"request_timeout_ms" mapstructure:"request_timeout_ms"`
}

// LayersConfig holds per-layer query tolerances in degrees.
type LayersConfig struct {
	IUCNPageSize       int     `yaml:"iucn_page_size" mapstructure:"iucn_page_size"`
	PointTolerance     float64 `yaml:"point_tolerance" mapstructure:"point_tolerance"`
	RasterLatTolerance float64 `yaml:"raster_lat_tolerance" mapstructure:"raster_lat_tolerance"`
	RasterLonTolerance float64 `yaml:"raster_lon_tolerance" mapstructure:"raster_lon_tolerance"`
}

// ThresholdsConfig holds the raster cut points.
type ThresholdsConfig struct {
	MarineHigh     float64 `yaml:"marine_high" mapstructure:"marine_high"`
	MarineModerate float64 `yaml:"marine_moderate" mapstructure:"marine_moderate"`
	HCIHigh        float64 `yaml:"hci_high" mapstructure:"hci_high"`
	HCIModerate    float64 `yaml:"hci_moderate" mapstructure:"hci_moderate"`
}

// RetryConfig controls retries against stores and remote services.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// CircuitConfig controls per-dependency circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// RegionConfig restricts queries to a bounding box when Enforce is set.
type RegionConfig struct {
	Enforce bool    `yaml:"enforce" mapstructure:"enforce"`
	MinLat  float64 `yaml:"min_lat" mapstructure:"min_lat"`
	MaxLat  float64 `yaml:"max_lat" mapstructure:"max_lat"`
	MinLon  float64 `yaml:"min_lon" mapstructure:"min_lon"`
	MaxLon  float64 `yaml:"max_lon" mapstructure:"max_lon"`
}

// MonitoringConfig configures background health alerts.
type MonitoringConfig struct {
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LayerFailureThreshold  float64 `yaml:"layer_failure_threshold" mapstructure:"layer_failure_threshold"`
	SyntheticRateThreshold float64 `yaml:"synthetic_rate_threshold" mapstructure:"synthetic_rate_threshold"`
	MinSamples             int     `yaml:"min_samples" mapstructure:"min_samples"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BIOSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "bioscope.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("corpus.backend", "postgres")
	v.SetDefault("corpus.table", "mitigation_actions")
	v.SetDefault("corpus.seed_file", "")
	v.SetDefault("corpus.neighbors", 3)
	v.SetDefault("weaviate.url", "http://localhost:8080")
	v.SetDefault("weaviate.class_name", "MitigationAction")
	v.SetDefault("weaviate.api_key", "")
	v.SetDefault("embedding.provider", "hash")
	v.SetDefault("embedding.base_url", "https://api.openai.com/v1")
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.requests_per_second", 10.0)
	v.SetDefault("embedding.cache_ttl_hours", 24)
	v.SetDefault("redis.url", "")
	v.SetDefault("resolver.workers", 8)
	v.SetDefault("resolver.record_timeout_ms", 3000)
	v.SetDefault("resolver.request_timeout_ms", 15000)
	v.SetDefault("layers.iucn_page_size", 50)
	v.SetDefault("layers.point_tolerance", 0.1)
	v.SetDefault("layers.raster_lat_tolerance", 0.5)
	v.SetDefault("layers.raster_lon_tolerance", 0.1)
	v.SetDefault("thresholds.marine_high", 0.75)
	v.SetDefault("thresholds.marine_moderate", 0.40)
	v.SetDefault("thresholds.hci_high", 2.0)
	v.SetDefault("thresholds.hci_moderate", 1.5)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 200)
	v.SetDefault("retry.max_backoff_ms", 2000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("region.enforce", false)
	v.SetDefault("region.min_lat", 38.92)
	v.SetDefault("region.max_lat", 41.36)
	v.SetDefault("region.min_lon", -75.58)
	v.SetDefault("region.max_lon", -73.90)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.layer_failure_threshold", 0.25)
	v.SetDefault("monitoring.synthetic_rate_threshold", 0.5)
	v.SetDefault("monitoring.min_samples", 20)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode needs: "serve", "search",
// "mitigate", or "ingest". All problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "serve", "search", "mitigate", "ingest":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	needsStore := mode == "serve" || mode == "search"
	switch c.Store.Driver {
	case "postgres":
		if needsStore && c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	case "sqlite":
		if needsStore && c.Store.SQLitePath == "" {
			add("store.sqlite_path is required for the sqlite driver")
		}
	default:
		add("store.driver %q must be postgres or sqlite", c.Store.Driver)
	}

	switch c.Corpus.Backend {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres corpus")
		}
	case "weaviate":
		if c.Weaviate.URL == "" {
			add("weaviate.url is required for the weaviate corpus")
		}
	case "memory":
		if mode != "ingest" && c.Corpus.SeedFile == "" {
			add("corpus.seed_file is required for the memory corpus")
		}
	default:
		add("corpus.backend %q must be postgres, weaviate, or memory", c.Corpus.Backend)
	}

	switch c.Embedding.Provider {
	case "hash":
	case "openai":
		if c.Embedding.APIKey == "" {
			add("embedding.api_key is required for the openai provider")
		}
	default:
		add("embedding.provider %q must be hash or openai", c.Embedding.Provider)
	}
	if c.Embedding.Dimensions <= 0 {
		add("embedding.dimensions must be > 0")
	}

	if c.Resolver.Workers < 1 || c.Resolver.Workers > 64 {
		add("resolver.workers must be between 1 and 64")
	}
	if c.Resolver.RecordTimeoutMs <= 0 || c.Resolver.RequestTimeoutMs <= 0 {
		add("resolver timeouts must be > 0")
	}
	if c.Thresholds.MarineModerate > c.Thresholds.MarineHigh || c.Thresholds.HCIModerate > c.Thresholds.HCIHigh {
		add("thresholds: moderate must not exceed high")
	}
	if c.Region.Enforce && (c.Region.MinLat >= c.Region.MaxLat || c.Region.MinLon >= c.Region.MaxLon) {
		add("region bounds are empty")
	}
	if mode == "serve" && c.Server.Port <= 0 {
		add("server.port must be > 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
