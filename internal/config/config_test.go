package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 768, cfg.Embeddings.Dimensions)
	assert.Equal(t, 60, cfg.Search.RRFConstant)
}

func TestValidateMissingSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{
			name:   "missing qdrant host",
			mutate: func(c *Config) { c.Vector.Host = "" },
			want:   "vector.host",
		},
		{
			name:   "missing collection",
			mutate: func(c *Config) { c.Vector.Collection = "" },
			want:   "vector.collection",
		},
		{
			name:   "bad backend",
			mutate: func(c *Config) { c.Vector.Backend = "pinecone" },
			want:   "vector.backend",
		},
		{
			name:   "missing graph path",
			mutate: func(c *Config) { c.Graph.Path = "" },
			want:   "graph.path",
		},
		{
			name: "ollama without model",
			mutate: func(c *Config) {
				c.Embeddings.Provider = "ollama"
				c.Embeddings.Model = ""
			},
			want: "embeddings.model",
		},
		{
			name:   "negative dimensions",
			mutate: func(c *Config) { c.Embeddings.Dimensions = -1 },
			want:   "embeddings.dimensions",
		},
		{
			name:   "weight out of range",
			mutate: func(c *Config) { c.Search.GraphWeight = 1.5 },
			want:   "graph_weight",
		},
		{
			name:   "inverted chunk bounds",
			mutate: func(c *Config) { c.Ingest.ChunkMaxBytes = 10 },
			want:   "chunk bounds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestProjectConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	yaml := `
search:
  semantic_weight: 0.7
  keyword_weight: 0.2
  graph_weight: 0.1
vector:
  backend: embedded
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".pingmem.yaml"), []byte(yaml), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "embedded", cfg.Vector.Backend)
	assert.InDelta(t, 0.7, cfg.Search.SemanticWeight, 1e-9)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PINGMEM_VECTOR_BACKEND", "embedded")
	t.Setenv("PINGMEM_SEMANTIC_WEIGHT", "0.9")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "embedded", cfg.Vector.Backend)
	assert.InDelta(t, 0.9, cfg.Search.SemanticWeight, 1e-9)
}

func TestNormalizeWeights(t *testing.T) {
	s := SearchConfig{SemanticWeight: 0.5, KeywordWeight: 0.3, GraphWeight: 0.2}
	sem, kw, g := s.NormalizeWeights()
	assert.InDelta(t, 1.0, sem+kw+g, 1e-9)
	assert.InDelta(t, 0.5, sem, 1e-9)

	zero := SearchConfig{}
	sem, kw, g = zero.NormalizeWeights()
	assert.Zero(t, sem+kw+g)
}

func TestManifestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("/p", ".ping-mem", "manifest.json"), ManifestPath("/p"))
}
