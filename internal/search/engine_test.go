package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/store"
)

func searchConfig() config.SearchConfig {
	return config.SearchConfig{
		SemanticWeight: 0.5,
		KeywordWeight:  0.3,
		GraphWeight:    0.2,
		RRFConstant:    60,
		MaxResults:     100,
	}
}

func newTestEngine(t *testing.T, g *graph.Store) *Engine {
	t.Helper()
	vectors := store.NewEmbeddedVectorStore(embed.DefaultDimensions, 0)
	t.Cleanup(func() { _ = vectors.Close() })
	embedder := embed.NewDeterministicEmbedder(embed.DefaultDimensions)
	return NewEngine(store.NewBM25Index(), vectors, g, embedder, searchConfig())
}

func TestIndexAndSearch(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "machine learning models", now, "", nil))
	require.NoError(t, e.IndexDocument(ctx, "m2", "s1", "cooking pasta recipes", now, "", nil))

	results, err := e.Search(ctx, "machine learning", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "m1", results[0].MemoryID)
	assert.Equal(t, "machine learning models", results[0].Content)
	assert.Equal(t, "s1", results[0].SessionID)
	assert.Contains(t, results[0].SearchModes, ModeKeyword)
	assert.Contains(t, results[0].SearchModes, ModeSemantic)
	assert.NotEmpty(t, results[0].ModeScores)
}

func TestRemoveDocumentNeverReturned(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "ephemeral content", time.Now(), "", nil))
	ok, err := e.RemoveDocument(ctx, "m1")
	require.NoError(t, err)
	assert.True(t, ok)

	results, err := e.Search(ctx, "ephemeral content", Options{Limit: 5})
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, "m1", r.MemoryID)
	}

	ok, err = e.RemoveDocument(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReindexLeavesSingleDocument(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "duplicate check", now, "", nil))
	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "duplicate check", now, "", nil))

	results, err := e.Search(ctx, "duplicate check", Options{Limit: 10})
	require.NoError(t, err)
	count := 0
	for _, r := range results {
		if r.MemoryID == "m1" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestEmptyModesReturnsEmpty(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "content", time.Now(), "", nil))

	results, err := e.Search(ctx, "content", Options{Limit: 5, Modes: []Mode{}})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSessionFilter(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "shared topic words", now, "", nil))
	require.NoError(t, e.IndexDocument(ctx, "m2", "s2", "shared topic words", now, "", nil))

	results, err := e.Search(ctx, "shared topic", Options{Limit: 10, SessionID: "s2"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "m2", r.MemoryID)
	}
}

func TestThresholdFilters(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "some content", time.Now(), "", nil))

	results, err := e.Search(ctx, "some content", Options{Limit: 5, Threshold: 1.1})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestGraphModeContributes(t *testing.T) {
	g, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	e := newTestEngine(t, g)
	ctx := context.Background()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "auth service design", time.Now(), "", nil))
	require.NoError(t, g.CreateEntity(ctx, &graph.Entity{
		ID: "e1", Name: "AuthService", Type: graph.EntityCodeClass,
		Properties: graph.Properties{"memory_ids": []any{"m1"}},
	}))

	results, err := e.Search(ctx, "auth service", Options{
		Limit:         5,
		GraphEntityID: "e1",
	})
	require.NoError(t, err)
	require.NotEmpty(t, results)

	assert.Equal(t, "m1", results[0].MemoryID)
	assert.Contains(t, results[0].SearchModes, ModeGraph)
	require.NotNil(t, results[0].Graph)
	assert.Equal(t, 0, results[0].Graph.HopDistance)
}

func TestGraphModeTraversesNeighbors(t *testing.T) {
	g, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	e := newTestEngine(t, g)
	ctx := context.Background()

	require.NoError(t, e.IndexDocument(ctx, "m-far", "s1", "neighbor memory", time.Now(), "", nil))
	require.NoError(t, g.CreateEntity(ctx, &graph.Entity{
		ID: "seed", Name: "seed", Type: graph.EntityConcept,
	}))
	require.NoError(t, g.CreateEntity(ctx, &graph.Entity{
		ID: "next", Name: "next", Type: graph.EntityConcept,
		Properties: graph.Properties{"memory_ids": []any{"m-far"}},
	}))
	require.NoError(t, g.CreateRelationship(ctx, &graph.Relationship{
		ID: "r1", Type: graph.RelRelatedTo, SourceID: "seed", TargetID: "next", Weight: 1,
	}))

	results, err := e.Search(ctx, "neighbor memory", Options{
		Limit:         5,
		Modes:         []Mode{ModeGraph},
		Weights:       &Weights{Graph: 1},
		GraphEntityID: "seed",
		GraphDepth:    1,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "m-far", results[0].MemoryID)
	require.NotNil(t, results[0].Graph)
	assert.Equal(t, 1, results[0].Graph.HopDistance)
	assert.Contains(t, results[0].Graph.RelatedEntityIDs, "seed")
	assert.Contains(t, results[0].Graph.RelationshipTypes, string(graph.RelRelatedTo))
}

func TestGraphModeWithoutSeedIsSilentNoOp(t *testing.T) {
	g, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })
	e := newTestEngine(t, g)
	ctx := context.Background()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "plain memory", time.Now(), "", nil))

	results, err := e.Search(ctx, "plain memory", Options{Limit: 5})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.NotContains(t, results[0].SearchModes, ModeGraph)
}

// failingVectorStore errors on search to exercise mode attribution.
type failingVectorStore struct {
	store.VectorStore
}

func (f *failingVectorStore) Search(ctx context.Context, q []float32, opts store.VectorSearchOptions) ([]*store.VectorHit, error) {
	return nil, errors.New("backend down")
}

func TestSearchModeFailureFailsWholeQuery(t *testing.T) {
	vectors := store.NewEmbeddedVectorStore(embed.DefaultDimensions, 0)
	t.Cleanup(func() { _ = vectors.Close() })
	e := NewEngine(store.NewBM25Index(), &failingVectorStore{vectors},
		nil, embed.NewDeterministicEmbedder(embed.DefaultDimensions), searchConfig())
	ctx := context.Background()

	require.NoError(t, e.IndexDocument(ctx, "m1", "s1", "content here", time.Now(), "", nil))

	_, err := e.Search(ctx, "content", Options{Limit: 5})
	require.Error(t, err)
	assert.Equal(t, pingerr.ErrCodeSearchMode, pingerr.Code(err))
	assert.Contains(t, err.Error(), "semantic")
}

func TestLimitTruncation(t *testing.T) {
	e := newTestEngine(t, nil)
	ctx := context.Background()
	now := time.Now()

	for _, id := range []string{"m1", "m2", "m3", "m4", "m5"} {
		require.NoError(t, e.IndexDocument(ctx, id, "s1", "repeated searchable words "+id, now, "", nil))
	}

	results, err := e.Search(ctx, "repeated searchable words", Options{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}
