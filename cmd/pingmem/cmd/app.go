package cmd

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/ingest"
	"github.com/ping-mem/pingmem/internal/search"
	"github.com/ping-mem/pingmem/internal/session"
	"github.com/ping-mem/pingmem/internal/store"
)

// app wires the full engine stack for one CLI invocation.
type app struct {
	cfg      *config.Config
	graph    *graph.Store
	vectors  store.VectorStore
	bm25     *store.BM25Index
	embedder *embed.CachedEmbedder
	engine   *search.Engine
	pipeline *ingest.Pipeline
	sessions *session.Manager
	logger   *slog.Logger
}

// newApp loads configuration for projectDir and opens all backends.
func newApp(ctx context.Context, projectDir string) (*app, error) {
	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}
	logger := slog.Default()
	logger.Info("configuration loaded", slog.String("config", cfg.String()))

	var inner embed.Embedder
	switch cfg.Embeddings.Provider {
	case "ollama":
		inner = embed.NewOllamaEmbedder(cfg.Embeddings.OllamaHost, cfg.Embeddings.Model, cfg.Embeddings.Dimensions)
	default:
		inner = embed.NewDeterministicEmbedder(cfg.Embeddings.Dimensions)
	}
	embedder := embed.NewCachedEmbedder(inner, cfg.Embeddings.CacheSize, cfg.Embeddings.CacheTTL)

	vectors := store.NewVectorStore(ctx, cfg)

	if cfg.Graph.Path != ":memory:" && cfg.Graph.Path != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Graph.Path), 0o755); err != nil {
			return nil, err
		}
	}
	g, err := graph.Open(cfg.Graph.Path)
	if err != nil {
		_ = vectors.Close()
		return nil, err
	}

	bm25 := store.NewBM25Index()
	engine := search.NewEngine(bm25, vectors, g, embedder, cfg.Search)
	pipeline := ingest.New(embedder, vectors, g, cfg.Ingest, logger)

	sessions, err := session.NewManager(cfg.Sessions.StoragePath)
	if err != nil {
		_ = g.Close()
		_ = vectors.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		graph:    g,
		vectors:  vectors,
		bm25:     bm25,
		embedder: embedder,
		engine:   engine,
		pipeline: pipeline,
		sessions: sessions,
		logger:   logger,
	}
	a.rehydrateKeywordIndex(ctx)
	return a, nil
}

// rehydrateKeywordIndex reloads saved memories into the in-memory BM25
// index so keyword mode covers earlier sessions. Code chunks stay out;
// they are served by codebase_search.
func (a *app) rehydrateKeywordIndex(ctx context.Context) {
	recs, err := a.vectors.List(ctx, "", 10000)
	if err != nil {
		a.logger.Warn("keyword index rehydration skipped", slog.String("error", err.Error()))
		return
	}
	n := 0
	for _, rec := range recs {
		if rec.ChunkID != "" || rec.Content == "" {
			continue
		}
		a.bm25.Add(rec.MemoryID, rec.SessionID, rec.Content, rec.IndexedAt, rec.Metadata)
		n++
	}
	if n > 0 {
		a.logger.Info("keyword index rehydrated", slog.Int("memories", n))
	}
}

// Close releases all backends.
func (a *app) Close() {
	_ = a.engine.Close()
	_ = a.graph.Close()
	_ = a.vectors.Close()
	_ = a.embedder.Close()
}
