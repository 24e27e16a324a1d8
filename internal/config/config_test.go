package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"scqc/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "adaptive", cfg.QC.SelectedPolicy)
	assert.Equal(t, "louvain", cfg.Cluster.SelectedMethod)
	assert.Equal(t, 1e5, cfg.Manual.MinSum)
	assert.Equal(t, 3.0, cfg.Adaptive.NMADs)
	assert.Equal(t, 10, cfg.Graph.KNeighbors)
	assert.Equal(t, "rank", cfg.Graph.WeightScheme)
	assert.Equal(t, 50, cfg.KMeans.KMax)
	assert.Equal(t, int64(42), *cfg.KMeans.Seed)
	assert.Equal(t, "ward", cfg.HClust.Linkage)
	assert.Equal(t, 0.01, cfg.Gene.MinFractionCells)
}

func TestParseOverlaysDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
manual:
  min_sum: 500
kmeans:
  seed: 7
  k_max: 12
graph:
  weight_scheme: jaccard
cluster:
  selected_method: walktrap
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 500.0, cfg.Manual.MinSum)
	assert.Equal(t, 5e3, cfg.Manual.MinDetected)
	assert.Equal(t, int64(7), *cfg.KMeans.Seed)
	assert.Equal(t, 12, cfg.KMeans.KMax)
	assert.Equal(t, "jaccard", cfg.Graph.WeightScheme)
	assert.Equal(t, "walktrap", cfg.Cluster.SelectedMethod)
	assert.Equal(t, 20, cfg.KMeans.References)
}

func TestParseRejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("graph:\n  neighbours: 5\n"))
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestParseEmpty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"k_max", func(c *Config) { c.KMeans.KMax = 0 }},
		{"scheme", func(c *Config) { c.Graph.WeightScheme = "cosine" }},
		{"method", func(c *Config) { c.Cluster.SelectedMethod = "dbscan" }},
		{"policy", func(c *Config) { c.QC.SelectedPolicy = "strict" }},
		{"linkage", func(c *Config) { c.HClust.Linkage = "average" }},
		{"deep split", func(c *Config) { c.HClust.DeepSplit = 5 }},
		{"louvain seed", func(c *Config) { c.Louvain.Seed = nil }},
		{"kmeans seed", func(c *Config) { c.KMeans.Seed = nil }},
		{"k neighbours", func(c *Config) { c.Graph.KNeighbors = 0 }},
		{"fraction", func(c *Config) { c.Gene.MinFractionCells = 1.5 }},
		{"negative threshold", func(c *Config) { c.Manual.MinSum = -1 }},
		{"workers", func(c *Config) { c.Runtime.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration), "%v", err)
		})
	}
}

func TestLoadFileWithEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scqc.yaml")
	require.NoError(t, os.WriteFile(path, []byte("manual:\n  min_sum: 500\n"), 0o644))

	t.Setenv("QC_MANUAL_MIN_SUM", "123")
	t.Setenv("QC_LOUVAIN_SEED", "9")
	t.Setenv("QC_CLUSTER_SELECTED_METHOD", "hclust")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 123.0, cfg.Manual.MinSum)
	assert.Equal(t, int64(9), *cfg.Louvain.Seed)
	assert.Equal(t, "hclust", cfg.Cluster.SelectedMethod)
}

func TestLoadBadEnv(t *testing.T) {
	t.Setenv("QC_KMEANS_K_MAX", "many")
	_, err := Load()
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))

	t.Setenv("QC_KMEANS_K_MAX", "0")
	_, err = Load()
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfiguration))
}

func TestPolicyConfig(t *testing.T) {
	cfg := Default()
	cfg.Runtime.Workers = 3
	cfg.Gene.MinMean = 0.5
	p := cfg.PolicyConfig()
	assert.Equal(t, 3, p.Outlier.Workers)
	assert.Equal(t, 0.5, p.LowAbundance.MinMean)
	assert.Equal(t, cfg.Manual, p.Manual)
}

func TestHashIgnoresRuntime(t *testing.T) {
	a, b := Default(), Default()
	b.Runtime.Workers = a.Runtime.Workers + 3
	b.Database.URL = "postgres://elsewhere"
	ha, err := a.Hash()
	require.NoError(t, err)
	hb, err := b.Hash()
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Graph.KNeighbors++
	hc, err := b.Hash()
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)
}
