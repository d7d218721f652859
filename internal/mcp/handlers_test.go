package mcp

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/ingest"
	"github.com/ping-mem/pingmem/internal/search"
	"github.com/ping-mem/pingmem/internal/session"
	"github.com/ping-mem/pingmem/internal/store"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()

	g, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	vectors := store.NewEmbeddedVectorStore(embed.DefaultDimensions, 0)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder := embed.NewDeterministicEmbedder(embed.DefaultDimensions)
	bm25 := store.NewBM25Index()

	cfg := config.Default()
	cfg.Vector.Backend = "embedded"
	cfg.Graph.Path = ":memory:"

	engine := search.NewEngine(bm25, vectors, g, embedder, cfg.Search)
	t.Cleanup(func() { _ = engine.Close() })

	pipeline := ingest.New(embedder, vectors, g, config.IngestConfig{
		MaxFileSize:   1 << 20,
		ChunkMinBytes: 16,
		ChunkMaxBytes: 256,
		Workers:       2,
	}, slog.Default())

	sessions, err := session.NewManager(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)

	s, err := NewServer(Deps{
		Engine:   engine,
		Vectors:  vectors,
		Graph:    g,
		Embedder: embedder,
		Pipeline: pipeline,
		Sessions: sessions,
		Config:   cfg,
	})
	require.NoError(t, err)
	return s
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestContextSaveValidation(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, _, err := s.handleContextSave(ctx, nil, SaveInput{Value: "v"})
	require.Error(t, err)
	assert.Equal(t, pingerr.ErrCodeInvalidInput, pingerr.Code(err))

	_, _, err = s.handleContextSave(ctx, nil, SaveInput{Key: "k"})
	require.Error(t, err)

	_, _, err = s.handleContextSave(ctx, nil, SaveInput{Key: "k", Value: "v", Category: "bogus"})
	require.Error(t, err)

	_, _, err = s.handleContextSave(ctx, nil, SaveInput{Key: "k", Value: "v", Priority: "urgent"})
	require.Error(t, err)
}

func TestContextSaveAndHybridSearch(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleContextSave(ctx, nil, SaveInput{
		Key:      "auth-design",
		Value:    "AuthService depends on TokenStore for refresh token rotation",
		Category: "decision",
	})
	require.NoError(t, err)
	require.NotEmpty(t, out.MemoryID)
	assert.Empty(t, out.EntityIDs)

	_, res, err := s.handleHybridSearch(ctx, nil, HybridSearchInput{
		Query: "refresh token rotation",
		Limit: 5,
	})
	require.NoError(t, err)
	require.NotZero(t, res.Count)
	assert.Equal(t, out.MemoryID, res.Results[0].MemoryID)
	assert.Contains(t, res.Results[0].Content, "refresh token rotation")
}

func TestContextSaveExtractsEntities(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, out, err := s.handleContextSave(ctx, nil, SaveInput{
		Key:             "auth-design",
		Value:           "AuthService depends on TokenStore",
		ExtractEntities: true,
	})
	require.NoError(t, err)
	require.Len(t, out.EntityIDs, 2)

	// Each merged entity records the memory id for graph search.
	for _, id := range out.EntityIDs {
		ent, err := s.graph.GetEntity(ctx, id)
		require.NoError(t, err)
		assert.Contains(t, entityMemoryIDs(ent), out.MemoryID)
	}

	// The inferred dependency edge lands in the graph.
	rels, err := s.graph.FindByEntity(ctx, out.EntityIDs[0])
	require.NoError(t, err)
	require.NotEmpty(t, rels)
	assert.Equal(t, graph.RelDependsOn, rels[0].Type)

	// Saving again merges onto the same entities and keeps both memories.
	_, again, err := s.handleContextSave(ctx, nil, SaveInput{
		Key:             "auth-design-2",
		Value:           "AuthService depends on TokenStore",
		ExtractEntities: true,
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, out.EntityIDs, again.EntityIDs)
	ent, err := s.graph.GetEntity(ctx, out.EntityIDs[0])
	require.NoError(t, err)
	assert.Len(t, entityMemoryIDs(ent), 2)
}

func TestContextSearchFilters(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	_, a, err := s.handleContextSave(ctx, nil, SaveInput{
		Key: "deploy", Value: "release checklist for payments", Channel: "ops",
	})
	require.NoError(t, err)
	_, _, err = s.handleContextSave(ctx, nil, SaveInput{
		Key: "deploy", Value: "release checklist for payments", Channel: "dev",
	})
	require.NoError(t, err)

	_, res, err := s.handleContextSearch(ctx, nil, SearchInput{
		Query:   "release checklist payments",
		Channel: "ops",
		Limit:   10,
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Count)
	assert.Equal(t, a.MemoryID, res.Results[0].MemoryID)

	_, _, err = s.handleContextSearch(ctx, nil, SearchInput{})
	require.Error(t, err)
}

func TestQueryRelationshipsPaths(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, e := range []*graph.Entity{
		{ID: "a", Name: "api", Type: graph.EntityConcept},
		{ID: "b", Name: "service", Type: graph.EntityConcept},
		{ID: "c", Name: "database", Type: graph.EntityConcept},
	} {
		require.NoError(t, s.graph.CreateEntity(ctx, e))
	}
	require.NoError(t, s.graph.CreateRelationship(ctx, &graph.Relationship{
		ID: "r1", Type: graph.RelDependsOn, SourceID: "a", TargetID: "b", Weight: 1,
	}))
	require.NoError(t, s.graph.CreateRelationship(ctx, &graph.Relationship{
		ID: "r2", Type: graph.RelDependsOn, SourceID: "b", TargetID: "c", Weight: 1,
	}))

	_, out, err := s.handleQueryRelationships(ctx, nil, RelationshipsInput{
		EntityID: "a",
		Depth:    2,
	})
	require.NoError(t, err)
	assert.Len(t, out.Entities, 3)
	assert.Len(t, out.Relationships, 2)
	require.Len(t, out.Paths, 2)

	// The two-hop path runs a -> b -> c with the edge types recorded.
	var long []PathStepOutput
	for _, p := range out.Paths {
		if len(p) == 3 {
			long = p
		}
	}
	require.NotNil(t, long)
	assert.Equal(t, "a", long[0].EntityID)
	assert.Equal(t, "b", long[1].EntityID)
	assert.Equal(t, "c", long[2].EntityID)
	assert.Equal(t, string(graph.RelDependsOn), long[2].Via)

	// Outgoing-only from c sees nothing.
	_, out, err = s.handleQueryRelationships(ctx, nil, RelationshipsInput{
		EntityID:  "c",
		Direction: "outgoing",
	})
	require.NoError(t, err)
	assert.Len(t, out.Entities, 1)
	assert.Empty(t, out.Relationships)

	_, _, err = s.handleQueryRelationships(ctx, nil, RelationshipsInput{EntityID: "missing"})
	require.Error(t, err)
	assert.True(t, pingerr.IsNotFound(err))
}

func TestGetLineage(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()

	for _, e := range []*graph.Entity{
		{ID: "src", Name: "source", Type: graph.EntityConcept},
		{ID: "mid", Name: "middle", Type: graph.EntityConcept},
		{ID: "dst", Name: "target", Type: graph.EntityConcept},
	} {
		require.NoError(t, s.graph.CreateEntity(ctx, e))
	}
	require.NoError(t, s.graph.CreateRelationship(ctx, &graph.Relationship{
		ID: "r1", Type: graph.RelDerivedFrom, SourceID: "src", TargetID: "mid", Weight: 1,
	}))
	require.NoError(t, s.graph.CreateRelationship(ctx, &graph.Relationship{
		ID: "r2", Type: graph.RelDerivedFrom, SourceID: "mid", TargetID: "dst", Weight: 1,
	}))

	_, out, err := s.handleGetLineage(ctx, nil, LineageInput{EntityID: "mid"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Counts.Upstream)
	assert.Equal(t, 1, out.Counts.Downstream)
	assert.Equal(t, "src", out.Upstream[0].ID)
	assert.Equal(t, "dst", out.Downstream[0].ID)

	_, out, err = s.handleGetLineage(ctx, nil, LineageInput{EntityID: "mid", Direction: "upstream"})
	require.NoError(t, err)
	assert.Equal(t, 1, out.Counts.Upstream)
	assert.Zero(t, out.Counts.Downstream)

	_, _, err = s.handleGetLineage(ctx, nil, LineageInput{EntityID: "mid", Direction: "sideways"})
	require.Error(t, err)
}

func TestQueryEvolution(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	temporal := graph.NewTemporalStore(s.graph, true)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, temporal.StoreEntity(ctx, &graph.Entity{
		ID: "svc", Name: "payments", Type: graph.EntityConcept,
	}, base))
	name := "payments-v2"
	_, err := temporal.UpdateEntity(ctx, "svc", graph.EntityPatch{Name: &name}, base.Add(time.Hour))
	require.NoError(t, err)

	_, out, err := s.handleQueryEvolution(ctx, nil, EvolutionInput{EntityID: "svc"})
	require.NoError(t, err)
	assert.Equal(t, "svc", out.EntityID)
	assert.Equal(t, 2, out.TotalChanges)
	assert.Equal(t, "created", out.Changes[0].Type)
	assert.Equal(t, "updated", out.Changes[1].Type)

	// Window restricted to the update only.
	_, out, err = s.handleQueryEvolution(ctx, nil, EvolutionInput{
		EntityID:  "svc",
		StartTime: base.Add(30 * time.Minute).Format(time.RFC3339),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.TotalChanges)

	_, _, err = s.handleQueryEvolution(ctx, nil, EvolutionInput{EntityID: "svc", StartTime: "yesterday"})
	require.Error(t, err)
	assert.Equal(t, pingerr.ErrCodeInvalidInput, pingerr.Code(err))

	_, _, err = s.handleQueryEvolution(ctx, nil, EvolutionInput{EntityID: "ghost"})
	require.Error(t, err)
	assert.True(t, pingerr.IsNotFound(err))
}

func TestCodebaseLifecycle(t *testing.T) {
	s := newTestServer(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\n\nfunc main() {\n\tprintln(\"hello pingmem\")\n}\n")
	writeFile(t, dir, "util.go", "package main\n\nfunc add(a, b int) int {\n\treturn a + b\n}\n")

	_, ing, err := s.handleCodebaseIngest(ctx, nil, IngestInput{ProjectDir: dir})
	require.NoError(t, err)
	assert.True(t, ing.HadChanges)
	assert.Equal(t, 2, ing.FilesIndexed)
	assert.Positive(t, ing.ChunksIndexed)
	require.NotEmpty(t, ing.ProjectID)

	// Unchanged tree reports no changes.
	_, again, err := s.handleCodebaseIngest(ctx, nil, IngestInput{ProjectDir: dir})
	require.NoError(t, err)
	assert.False(t, again.HadChanges)
	assert.Empty(t, again.ProjectID)

	_, ver, err := s.handleCodebaseVerify(ctx, nil, VerifyInput{ProjectDir: dir})
	require.NoError(t, err)
	assert.True(t, ver.Valid)
	assert.Equal(t, ing.TreeHash, ver.CurrentTreeHash)

	_, cs, err := s.handleCodebaseSearch(ctx, nil, CodeSearchInput{
		Query:     "hello pingmem",
		ProjectID: ing.ProjectID,
		Limit:     5,
	})
	require.NoError(t, err)
	require.NotZero(t, cs.ResultCount)
	assert.NotEmpty(t, cs.Results[0].ChunkID)
	assert.NotEmpty(t, cs.Results[0].Content)

	_, tl, err := s.handleCodebaseTimeline(ctx, nil, TimelineInput{ProjectID: ing.ProjectID})
	require.NoError(t, err)
	assert.NotZero(t, tl.EventCount)

	_, del, err := s.handleProjectDelete(ctx, nil, ProjectDeleteInput{ProjectDir: dir})
	require.NoError(t, err)
	assert.True(t, del.Success)
	assert.Equal(t, ing.ProjectID, del.ProjectID)
	// The ingest session log referenced the project, so it is removed.
	assert.Equal(t, 1, del.SessionsDeleted)

	_, cs, err = s.handleCodebaseSearch(ctx, nil, CodeSearchInput{
		Query:     "hello pingmem",
		ProjectID: ing.ProjectID,
	})
	require.NoError(t, err)
	assert.Zero(t, cs.ResultCount)
}

func TestNewServerRequiresDeps(t *testing.T) {
	_, err := NewServer(Deps{})
	require.Error(t, err)
}
