// Package config loads PingMem configuration from YAML and the environment.
//
// Precedence, lowest to highest: built-in defaults, user config
// (~/.config/pingmem/config.yaml), project config (.pingmem.yaml),
// environment variables (PINGMEM_*).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete PingMem configuration.
type Config struct {
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Graph      GraphConfig      `yaml:"graph" json:"graph"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Sessions   SessionsConfig   `yaml:"sessions" json:"sessions"`
}

// VectorConfig configures the vector store backend.
type VectorConfig struct {
	// Backend selects the vector backend: "qdrant" or "embedded".
	// With "qdrant", an unreachable server at startup falls back to the
	// embedded store and stats report using_fallback=true.
	Backend string `yaml:"backend" json:"backend"`

	// Host and Port locate the Qdrant gRPC endpoint.
	Host string `yaml:"host" json:"host"`
	Port int    `yaml:"port" json:"port"`

	// APIKey authenticates against a managed Qdrant instance (optional).
	APIKey string `yaml:"api_key" json:"api_key"`

	// Collection is the Qdrant collection name.
	Collection string `yaml:"collection" json:"collection"`

	// Threshold is the default minimum similarity for results.
	Threshold float64 `yaml:"threshold" json:"threshold"`
}

// GraphConfig configures the graph store backend.
type GraphConfig struct {
	// Path is the SQLite database file. Empty means in-memory (tests).
	Path string `yaml:"path" json:"path"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects "deterministic" (default, no ML) or "ollama".
	Provider string `yaml:"provider" json:"provider"`

	// Dimensions is the embedding dimension. All stores share it.
	Dimensions int `yaml:"dimensions" json:"dimensions"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// Model is the Ollama embedding model name.
	Model string `yaml:"model" json:"model"`

	// APIKey authenticates the provider, when required.
	APIKey string `yaml:"api_key" json:"api_key"`

	// CacheSize bounds the embedding cache entry count.
	CacheSize int `yaml:"cache_size" json:"cache_size"`

	// CacheTTL expires cache entries on read after this duration.
	CacheTTL time.Duration `yaml:"cache_ttl" json:"cache_ttl"`
}

// SearchConfig configures the hybrid search engine.
type SearchConfig struct {
	// SemanticWeight, KeywordWeight and GraphWeight are the default
	// per-mode fusion weights. They are normalized per query.
	SemanticWeight float64 `yaml:"semantic_weight" json:"semantic_weight"`
	KeywordWeight  float64 `yaml:"keyword_weight" json:"keyword_weight"`
	GraphWeight    float64 `yaml:"graph_weight" json:"graph_weight"`

	// RRFConstant is the RRF smoothing parameter k (default 60).
	RRFConstant int `yaml:"rrf_constant" json:"rrf_constant"`

	// MaxResults caps the result limit a caller may request.
	MaxResults int `yaml:"max_results" json:"max_results"`

	// Timeout bounds a single search end-to-end.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

// IngestConfig configures project scanning and chunking.
type IngestConfig struct {
	// MaxFileSize skips files larger than this many bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`

	// ChunkMinBytes and ChunkMaxBytes bound chunk sizes.
	ChunkMinBytes int `yaml:"chunk_min_bytes" json:"chunk_min_bytes"`
	ChunkMaxBytes int `yaml:"chunk_max_bytes" json:"chunk_max_bytes"`

	// Workers is the per-file ingestion parallelism.
	Workers int `yaml:"workers" json:"workers"`

	// WatchDebounce is the quiet period before watch-mode re-ingestion.
	WatchDebounce time.Duration `yaml:"watch_debounce" json:"watch_debounce"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	LogLevel string `yaml:"log_level" json:"log_level"`
	LogFile  string `yaml:"log_file" json:"log_file"`
}

// SessionsConfig configures the session event log.
type SessionsConfig struct {
	// StoragePath is where session logs live. Defaults to ~/.ping-mem/sessions.
	StoragePath string `yaml:"storage_path" json:"storage_path"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		Vector: VectorConfig{
			Backend:    "qdrant",
			Host:       "localhost",
			Port:       6334,
			Collection: "pingmem",
			Threshold:  0.0,
		},
		Graph: GraphConfig{
			Path: defaultStatePath("graph.db"),
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "deterministic",
			Dimensions: 768,
			OllamaHost: "http://localhost:11434",
			Model:      "nomic-embed-text",
			CacheSize:  1000,
			CacheTTL:   time.Hour,
		},
		Search: SearchConfig{
			SemanticWeight: 0.5,
			KeywordWeight:  0.3,
			GraphWeight:    0.2,
			RRFConstant:    60,
			MaxResults:     100,
			Timeout:        30 * time.Second,
		},
		Ingest: IngestConfig{
			MaxFileSize:   1 << 20,
			ChunkMinBytes: 512,
			ChunkMaxBytes: 4096,
			Workers:       4,
			WatchDebounce: 2 * time.Second,
		},
		Server: ServerConfig{
			LogLevel: "info",
		},
		Sessions: SessionsConfig{
			StoragePath: defaultStatePath("sessions"),
		},
	}
}

func defaultStatePath(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return name
	}
	return filepath.Join(home, ".ping-mem", name)
}

// Load builds the effective configuration: defaults, then the user config
// file, then the project config file, then environment overrides.
func Load(projectDir string) (*Config, error) {
	cfg := Default()

	if home, err := os.UserHomeDir(); err == nil {
		userPath := filepath.Join(home, ".config", "pingmem", "config.yaml")
		if err := mergeFile(cfg, userPath); err != nil {
			return nil, err
		}
	}

	if projectDir != "" {
		if err := mergeFile(cfg, filepath.Join(projectDir, ".pingmem.yaml")); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// applyEnv overrides settings from PINGMEM_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("PINGMEM_VECTOR_BACKEND"); v != "" {
		cfg.Vector.Backend = v
	}
	if v := os.Getenv("PINGMEM_QDRANT_HOST"); v != "" {
		cfg.Vector.Host = v
	}
	if v := os.Getenv("PINGMEM_QDRANT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Vector.Port = port
		}
	}
	if v := os.Getenv("PINGMEM_QDRANT_API_KEY"); v != "" {
		cfg.Vector.APIKey = v
	}
	if v := os.Getenv("PINGMEM_GRAPH_PATH"); v != "" {
		cfg.Graph.Path = v
	}
	if v := os.Getenv("PINGMEM_EMBED_PROVIDER"); v != "" {
		cfg.Embeddings.Provider = v
	}
	if v := os.Getenv("PINGMEM_EMBED_API_KEY"); v != "" {
		cfg.Embeddings.APIKey = v
	}
	if v := os.Getenv("PINGMEM_OLLAMA_HOST"); v != "" {
		cfg.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("PINGMEM_LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = v
	}
	if v := os.Getenv("PINGMEM_SEMANTIC_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.SemanticWeight = f
		}
	}
	if v := os.Getenv("PINGMEM_KEYWORD_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.KeywordWeight = f
		}
	}
	if v := os.Getenv("PINGMEM_GRAPH_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Search.GraphWeight = f
		}
	}
}

// Validate checks required settings, naming the missing item precisely.
func (c *Config) Validate() error {
	switch c.Vector.Backend {
	case "qdrant":
		if c.Vector.Host == "" {
			return fmt.Errorf("missing required setting: vector.host (PINGMEM_QDRANT_HOST)")
		}
		if c.Vector.Port <= 0 || c.Vector.Port > 65535 {
			return fmt.Errorf("invalid setting: vector.port must be in 1..65535, got %d", c.Vector.Port)
		}
		if c.Vector.Collection == "" {
			return fmt.Errorf("missing required setting: vector.collection")
		}
	case "embedded":
		// No connection settings required.
	default:
		return fmt.Errorf("invalid setting: vector.backend must be %q or %q, got %q",
			"qdrant", "embedded", c.Vector.Backend)
	}

	if c.Graph.Path == "" {
		return fmt.Errorf("missing required setting: graph.path (PINGMEM_GRAPH_PATH)")
	}

	switch c.Embeddings.Provider {
	case "deterministic":
	case "ollama":
		if c.Embeddings.OllamaHost == "" {
			return fmt.Errorf("missing required setting: embeddings.ollama_host (PINGMEM_OLLAMA_HOST)")
		}
		if c.Embeddings.Model == "" {
			return fmt.Errorf("missing required setting: embeddings.model")
		}
	default:
		return fmt.Errorf("invalid setting: embeddings.provider must be %q or %q, got %q",
			"deterministic", "ollama", c.Embeddings.Provider)
	}

	if c.Embeddings.Dimensions <= 0 {
		return fmt.Errorf("invalid setting: embeddings.dimensions must be positive, got %d", c.Embeddings.Dimensions)
	}

	for name, w := range map[string]float64{
		"search.semantic_weight": c.Search.SemanticWeight,
		"search.keyword_weight":  c.Search.KeywordWeight,
		"search.graph_weight":    c.Search.GraphWeight,
	} {
		if w < 0 || w > 1 {
			return fmt.Errorf("invalid setting: %s must be in [0,1], got %v", name, w)
		}
	}

	if c.Ingest.ChunkMinBytes <= 0 || c.Ingest.ChunkMaxBytes < c.Ingest.ChunkMinBytes {
		return fmt.Errorf("invalid setting: ingest chunk bounds %d..%d",
			c.Ingest.ChunkMinBytes, c.Ingest.ChunkMaxBytes)
	}

	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// StateDir returns the per-project state directory name.
const StateDir = ".ping-mem"

// ManifestName is the manifest file name inside StateDir.
const ManifestName = "manifest.json"

// ManifestPath returns the manifest location for a project directory.
func ManifestPath(projectDir string) string {
	return filepath.Join(projectDir, StateDir, ManifestName)
}

// NormalizeWeights scales the three mode weights so they sum to 1.
// All-zero weights are returned unchanged.
func (s SearchConfig) NormalizeWeights() (semantic, keyword, graph float64) {
	total := s.SemanticWeight + s.KeywordWeight + s.GraphWeight
	if total == 0 {
		return 0, 0, 0
	}
	return s.SemanticWeight / total, s.KeywordWeight / total, s.GraphWeight / total
}

// String renders a redacted summary for logs.
func (c *Config) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "vector=%s", c.Vector.Backend)
	if c.Vector.Backend == "qdrant" {
		fmt.Fprintf(&b, "(%s:%d/%s)", c.Vector.Host, c.Vector.Port, c.Vector.Collection)
	}
	fmt.Fprintf(&b, " graph=%s embed=%s dims=%d",
		c.Graph.Path, c.Embeddings.Provider, c.Embeddings.Dimensions)
	return b.String()
}
