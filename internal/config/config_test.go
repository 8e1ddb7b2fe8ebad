package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres", cfg.Corpus.Backend)
	assert.Equal(t, 3, cfg.Corpus.Neighbors)
	assert.Equal(t, "MitigationAction", cfg.Weaviate.ClassName)
	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 384, cfg.Embedding.Dimensions)
	assert.Equal(t, 8, cfg.Resolver.Workers)
	assert.Equal(t, 3000, cfg.Resolver.RecordTimeoutMs)
	assert.Equal(t, 15000, cfg.Resolver.RequestTimeoutMs)
	assert.Equal(t, 50, cfg.Layers.IUCNPageSize)
	assert.InDelta(t, 0.1, cfg.Layers.PointTolerance, 1e-9)
	assert.InDelta(t, 0.5, cfg.Layers.RasterLatTolerance, 1e-9)
	assert.InDelta(t, 0.1, cfg.Layers.RasterLonTolerance, 1e-9)
	assert.InDelta(t, 0.75, cfg.Thresholds.MarineHigh, 1e-9)
	assert.InDelta(t, 1.5, cfg.Thresholds.HCIModerate, 1e-9)
	assert.False(t, cfg.Region.Enforce)
	assert.InDelta(t, 38.92, cfg.Region.MinLat, 1e-9)
	assert.InDelta(t, -73.90, cfg.Region.MaxLon, 1e-9)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  sqlite_path: /data/layers.db
corpus:
  backend: weaviate
resolver:
  workers: 4
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/data/layers.db", cfg.Store.SQLitePath)
	assert.Equal(t, "weaviate", cfg.Corpus.Backend)
	assert.Equal(t, 4, cfg.Resolver.Workers)
	assert.Equal(t, "console", cfg.Log.Format)
	// Defaults still apply for unset values
	assert.Equal(t, 50, cfg.Layers.IUCNPageSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BIOSCOPE_STORE_DRIVER", "postgres")
	t.Setenv("BIOSCOPE_LOG_LEVEL", "warn")
	t.Setenv("BIOSCOPE_REGION_ENFORCE", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.True(t, cfg.Region.Enforce)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestInitLogger(t *testing.T) {
	require.NoError(t, InitLogger(LogConfig{Level: "debug", Format: "console"}))
	assert.NotNil(t, zap.L())
	require.NoError(t, InitLogger(LogConfig{Level: "info", Format: "json"}))
	assert.Error(t, InitLogger(LogConfig{Level: "invalid", Format: "json"}))
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/bioscope"
	cfg.Corpus.Backend = "postgres"
	cfg.Embedding.Provider = "hash"
	cfg.Embedding.Dimensions = 384
	cfg.Resolver.Workers = 8
	cfg.Resolver.RecordTimeoutMs = 3000
	cfg.Resolver.RequestTimeoutMs = 15000
	cfg.Thresholds = ThresholdsConfig{MarineHigh: 0.75, MarineModerate: 0.4, HCIHigh: 2, HCIModerate: 1.5}
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate_Defaults(t *testing.T) {
	for _, mode := range []string{"serve", "search", "mitigate", "ingest"} {
		assert.NoError(t, validDefaults().Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("export")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_MissingDatabaseURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for the postgres driver")
	assert.Contains(t, err.Error(), "store.database_url is required for the postgres corpus")
}

func TestValidate_SQLiteWithMemoryCorpus(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.SQLitePath = "layers.db"
	cfg.Store.DatabaseURL = ""
	cfg.Corpus.Backend = "memory"

	err := cfg.Validate("search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corpus.seed_file is required")

	cfg.Corpus.SeedFile = "seed.yaml"
	assert.NoError(t, cfg.Validate("search"))
}

func TestValidate_OpenAIRequiresKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Embedding.Provider = "openai"

	err := cfg.Validate("mitigate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding.api_key")

	cfg.Embedding.APIKey = "sk-test"
	assert.NoError(t, cfg.Validate("mitigate"))
}

func TestValidate_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Resolver.Workers = 0
	cfg.Thresholds.MarineModerate = 0.9
	cfg.Server.Port = 0
	cfg.Region = RegionConfig{Enforce: true, MinLat: 41, MaxLat: 39}

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolver.workers must be between 1 and 64")
	assert.Contains(t, err.Error(), "moderate must not exceed high")
	assert.Contains(t, err.Error(), "server.port must be > 0")
	assert.Contains(t, err.Error(), "region bounds are empty")
}

func TestValidate_UnknownBackends(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Corpus.Backend = "chroma"
	cfg.Embedding.Provider = "bert"

	err := cfg.Validate("search")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql"`)
	assert.Contains(t, err.Error(), `corpus.backend "chroma"`)
	assert.Contains(t, err.Error(), `embedding.provider "bert"`)
}
