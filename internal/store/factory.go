package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/ping-mem/pingmem/internal/config"
)

// connectTimeout bounds the startup reachability probe.
const connectTimeout = 5 * time.Second

// NewVectorStore builds the configured vector store.
//
// With the "qdrant" backend, an unreachable server is not fatal: the
// embedded store takes over transparently and stats report
// using_fallback=true so callers can tell.
func NewVectorStore(ctx context.Context, cfg *config.Config) VectorStore {
	dims := cfg.Embeddings.Dimensions

	if cfg.Vector.Backend == "qdrant" {
		probeCtx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()

		qs, err := NewQdrantVectorStore(probeCtx, QdrantConfig{
			Host:       cfg.Vector.Host,
			Port:       cfg.Vector.Port,
			APIKey:     cfg.Vector.APIKey,
			Collection: cfg.Vector.Collection,
			Dimensions: dims,
			Threshold:  cfg.Vector.Threshold,
		})
		if err == nil {
			slog.Info("vector store connected",
				slog.String("backend", "qdrant"),
				slog.String("host", cfg.Vector.Host),
				slog.String("collection", cfg.Vector.Collection))
			return qs
		}

		slog.Warn("qdrant unreachable, using embedded fallback",
			slog.String("host", cfg.Vector.Host),
			slog.Int("port", cfg.Vector.Port),
			slog.String("error", err.Error()))

		fallback := NewEmbeddedVectorStore(dims, cfg.Vector.Threshold)
		fallback.markFallback()
		return fallback
	}

	slog.Info("vector store created", slog.String("backend", "embedded"))
	return NewEmbeddedVectorStore(dims, cfg.Vector.Threshold)
}
