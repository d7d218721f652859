// Package store provides the retrieval stores: a vector store (Qdrant with
// an embedded HNSW fallback) and an in-memory BM25 index.
package store

import (
	"context"
	"time"
)

// VectorRecord is one stored point, keyed by memory ID.
// Code-chunk points additionally carry the chunk payload fields.
type VectorRecord struct {
	MemoryID  string         `json:"memory_id"`
	SessionID string         `json:"session_id"`
	Content   string         `json:"content"`
	Category  string         `json:"category,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Vector    []float32      `json:"vector"`
	IndexedAt time.Time      `json:"indexed_at"`

	// Code chunk payload (empty for plain memories).
	ProjectID string `json:"projectId,omitempty"`
	FilePath  string `json:"filePath,omitempty"`
	ChunkID   string `json:"chunkId,omitempty"`
	SHA256    string `json:"sha256,omitempty"`
	ChunkType string `json:"type,omitempty"`
	Start     int    `json:"start,omitempty"`
	End       int    `json:"end,omitempty"`
	LineStart int    `json:"lineStart,omitempty"`
	LineEnd   int    `json:"lineEnd,omitempty"`
}

// VectorHit is a scored search result.
type VectorHit struct {
	Record     *VectorRecord
	Similarity float64
}

// VectorSearchOptions filter and bound a similarity search.
type VectorSearchOptions struct {
	Limit     int
	Threshold float64
	SessionID string
	Category  string
	ProjectID string
	FilePath  string
	ChunkType string
}

// VectorStats describes the vector store state.
type VectorStats struct {
	Count         int     `json:"count"`
	Dims          int     `json:"dims"`
	Threshold     float64 `json:"threshold"`
	UsingFallback bool    `json:"using_fallback"`
}

// VectorStore stores unit-norm vectors and answers cosine top-k queries.
// Both the Qdrant backend and the embedded fallback implement it; callers
// treat them identically.
type VectorStore interface {
	// Store upserts a record by memory ID. A vector whose length differs
	// from the store dimension is rejected before any mutation.
	Store(ctx context.Context, rec *VectorRecord) error

	// StoreBatch upserts records as one round trip where the backend
	// supports it.
	StoreBatch(ctx context.Context, recs []*VectorRecord) error

	// Search returns hits with similarity >= opts.Threshold, sorted
	// descending, at most opts.Limit.
	Search(ctx context.Context, query []float32, opts VectorSearchOptions) ([]*VectorHit, error)

	// Delete removes a record. Returns true if it existed.
	Delete(ctx context.Context, memoryID string) (bool, error)

	// DeleteByProject removes all code-chunk points for a project.
	// Returns the number of points removed, where the backend reports it.
	DeleteByProject(ctx context.Context, projectID string) (int, error)

	// List returns up to limit records for a session. An empty session
	// id lists across all sessions.
	List(ctx context.Context, sessionID string, limit int) ([]*VectorRecord, error)

	// Stats returns store statistics.
	Stats(ctx context.Context) (*VectorStats, error)

	// Close releases backend resources.
	Close() error
}

// clampSimilarity keeps cosine similarity in [0,1]; unit vectors cannot
// exceed it but float error can dip slightly outside.
func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// matchesFilters applies the option filters to a record.
func matchesFilters(rec *VectorRecord, opts VectorSearchOptions) bool {
	if opts.SessionID != "" && rec.SessionID != opts.SessionID {
		return false
	}
	if opts.Category != "" && rec.Category != opts.Category {
		return false
	}
	if opts.ProjectID != "" && rec.ProjectID != opts.ProjectID {
		return false
	}
	if opts.FilePath != "" && rec.FilePath != opts.FilePath {
		return false
	}
	if opts.ChunkType != "" && rec.ChunkType != opts.ChunkType {
		return false
	}
	return true
}
