package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
)

// EmbeddedVectorStore is the in-process fallback vector store, built on a
// pure Go HNSW graph. It is used when the external backend is unreachable
// at startup, and directly in tests.
type EmbeddedVectorStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dims   int
	thresh float64

	records map[string]*VectorRecord // memory ID -> record
	idMap   map[string]uint64        // memory ID -> graph key
	keyMap  map[uint64]string        // graph key -> memory ID
	nextKey uint64

	fallback bool
	closed   bool
}

// NewEmbeddedVectorStore creates an embedded store for the given dimension.
func NewEmbeddedVectorStore(dims int, threshold float64) *EmbeddedVectorStore {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = 16
	graph.EfSearch = 64
	graph.Ml = 0.25

	return &EmbeddedVectorStore{
		graph:   graph,
		dims:    dims,
		thresh:  threshold,
		records: make(map[string]*VectorRecord),
		idMap:   make(map[string]uint64),
		keyMap:  make(map[uint64]string),
	}
}

// markFallback flags this store as a fallback for an unreachable backend.
func (s *EmbeddedVectorStore) markFallback() { s.fallback = true }

// Store upserts a record by memory ID.
func (s *EmbeddedVectorStore) Store(ctx context.Context, rec *VectorRecord) error {
	return s.StoreBatch(ctx, []*VectorRecord{rec})
}

// StoreBatch upserts records. Dimension validation happens for the whole
// batch before any mutation.
func (s *EmbeddedVectorStore) StoreBatch(ctx context.Context, recs []*VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("vector store is closed")
	}
	for _, rec := range recs {
		if len(rec.Vector) != s.dims {
			return pingerr.DimensionMismatch(s.dims, len(rec.Vector))
		}
	}

	for _, rec := range recs {
		// Lazy deletion on replace: orphan the old graph key rather than
		// removing the node, which the graph does not handle for the
		// last node.
		if oldKey, exists := s.idMap[rec.MemoryID]; exists {
			delete(s.keyMap, oldKey)
		}

		key := s.nextKey
		s.nextKey++

		s.graph.Add(hnsw.MakeNode(key, rec.Vector))
		s.idMap[rec.MemoryID] = key
		s.keyMap[key] = rec.MemoryID
		s.records[rec.MemoryID] = rec
	}
	return nil
}

// Search returns cosine top-k hits above the threshold.
func (s *EmbeddedVectorStore) Search(ctx context.Context, query []float32, opts VectorSearchOptions) ([]*VectorHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if len(query) != s.dims {
		return nil, pingerr.DimensionMismatch(s.dims, len(query))
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if len(s.records) == 0 {
		return []*VectorHit{}, nil
	}

	// Over-fetch so filters and lazy-deleted orphans cannot starve the
	// result set; with filters present, rank the full candidate set.
	k := opts.Limit * 2
	if opts.SessionID != "" || opts.Category != "" || opts.ProjectID != "" ||
		opts.FilePath != "" || opts.ChunkType != "" {
		k = s.graph.Len()
	}
	if k > s.graph.Len() {
		k = s.graph.Len()
	}

	nodes := s.graph.Search(query, k)

	hits := make([]*VectorHit, 0, opts.Limit)
	for _, node := range nodes {
		id, live := s.keyMap[node.Key]
		if !live {
			continue
		}
		rec := s.records[id]
		if !matchesFilters(rec, opts) {
			continue
		}

		distance := float64(s.graph.Distance(query, node.Value))
		similarity := clampSimilarity(1 - distance)
		if similarity < opts.Threshold {
			continue
		}
		hits = append(hits, &VectorHit{Record: rec, Similarity: similarity})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Record.MemoryID < hits[j].Record.MemoryID
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits, nil
}

// Delete removes a record by memory ID.
func (s *EmbeddedVectorStore) Delete(ctx context.Context, memoryID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false, fmt.Errorf("vector store is closed")
	}
	key, exists := s.idMap[memoryID]
	if !exists {
		return false, nil
	}
	delete(s.keyMap, key)
	delete(s.idMap, memoryID)
	delete(s.records, memoryID)
	return true, nil
}

// DeleteByProject removes all points carrying the given project ID.
func (s *EmbeddedVectorStore) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, fmt.Errorf("vector store is closed")
	}

	removed := 0
	for id, rec := range s.records {
		if rec.ProjectID != projectID {
			continue
		}
		if key, exists := s.idMap[id]; exists {
			delete(s.keyMap, key)
			delete(s.idMap, id)
		}
		delete(s.records, id)
		removed++
	}
	return removed, nil
}

// List returns up to limit records for a session, newest first. An
// empty session id lists across all sessions.
func (s *EmbeddedVectorStore) List(ctx context.Context, sessionID string, limit int) ([]*VectorRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("vector store is closed")
	}
	if limit <= 0 {
		limit = 100
	}

	recs := make([]*VectorRecord, 0, limit)
	for _, rec := range s.records {
		if sessionID == "" || rec.SessionID == sessionID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].IndexedAt.Equal(recs[j].IndexedAt) {
			return recs[i].IndexedAt.After(recs[j].IndexedAt)
		}
		return recs[i].MemoryID < recs[j].MemoryID
	})
	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Stats returns store statistics.
func (s *EmbeddedVectorStore) Stats(ctx context.Context) (*VectorStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &VectorStats{
		Count:         len(s.records),
		Dims:          s.dims,
		Threshold:     s.thresh,
		UsingFallback: s.fallback,
	}, nil
}

// Close releases the store.
func (s *EmbeddedVectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

var _ VectorStore = (*EmbeddedVectorStore)(nil)
