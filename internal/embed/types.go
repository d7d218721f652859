// Package embed provides text embedding for PingMem: a deterministic
// feature-hashing vectorizer (no ML, reproducible across machines), an
// optional Ollama provider, and a content-addressed cache in front of both.
package embed

import (
	"context"
	"math"
	"time"
)

// DefaultDimensions is the store-global embedding dimension.
const DefaultDimensions = 768

// Default cache bounds.
const (
	DefaultCacheSize = 1000
	DefaultCacheTTL  = time.Hour
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier.
	ModelName() string

	// Available checks if the embedder is ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// normalizeVector normalizes a vector to unit length under L2.
// The zero vector passes through unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}
