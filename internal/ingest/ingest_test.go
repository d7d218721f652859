package ingest

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/scanner"
	"github.com/ping-mem/pingmem/internal/store"
)

func newPipeline(t *testing.T) (*Pipeline, store.VectorStore, *graph.Store) {
	t.Helper()

	g, err := graph.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = g.Close() })

	vectors := store.NewEmbeddedVectorStore(embed.DefaultDimensions, 0)
	t.Cleanup(func() { _ = vectors.Close() })

	embedder := embed.NewDeterministicEmbedder(embed.DefaultDimensions)
	cfg := config.IngestConfig{
		MaxFileSize:   1 << 20,
		ChunkMinBytes: 16,
		ChunkMaxBytes: 256,
		Workers:       2,
	}
	return New(embedder, vectors, g, cfg, slog.Default()), vectors, g
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestIngestIdempotency(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")
	writeFile(t, dir, "b.txt", "world")

	first, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 2, first.FilesIndexed)
	assert.Positive(t, first.ChunksIndexed)

	// Unchanged tree is a no-op.
	second, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)
	assert.Nil(t, second)

	// A content change triggers re-ingest with a new tree hash.
	writeFile(t, dir, "a.txt", "hello!")
	third, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)
	require.NotNil(t, third)
	assert.NotEqual(t, first.TreeHash, third.TreeHash)
	assert.Equal(t, 1, third.FilesIndexed)
}

func TestIngestForceReingestsUnchangedTree(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	_, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)

	forced, err := p.Ingest(ctx, dir, true)
	require.NoError(t, err)
	require.NotNil(t, forced)
	assert.Equal(t, 1, forced.FilesIndexed)
}

func TestIngestBuildsGraphAndVectors(t *testing.T) {
	p, vectors, g := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "main.go", "package main\nfunc main() {}\n")

	res, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)
	require.NotNil(t, res)

	// Project entity exists and contains the file entity.
	project, err := g.GetEntity(ctx, res.ProjectID)
	require.NoError(t, err)
	assert.Equal(t, graph.EntityProject, project.Type)

	files, err := g.FindByProject(ctx, res.ProjectID, graph.EntityCodeFile, 10)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "main.go", files[0].Name)

	triples, err := g.Neighborhood(ctx, files[0].ID)
	require.NoError(t, err)
	assert.NotEmpty(t, triples)

	stats, err := vectors.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, res.ChunksIndexed, stats.Count)
}

func TestIngestChunkUpsertIsIdempotent(t *testing.T) {
	p, vectors, _ := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "stable content")

	res1, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)
	res2, err := p.Ingest(ctx, dir, true)
	require.NoError(t, err)
	assert.Equal(t, res1.ChunksIndexed, res2.ChunksIndexed)

	stats, err := vectors.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, res1.ChunksIndexed, stats.Count)
}

func TestVerify(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	// Before any ingest there is no manifest.
	v, err := p.Verify(ctx, dir)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.Empty(t, v.ManifestTreeHash)

	_, err = p.Ingest(ctx, dir, false)
	require.NoError(t, err)

	v, err = p.Verify(ctx, dir)
	require.NoError(t, err)
	assert.True(t, v.Valid)
	assert.Equal(t, v.ManifestTreeHash, v.CurrentTreeHash)

	writeFile(t, dir, "a.txt", "changed")
	v, err = p.Verify(ctx, dir)
	require.NoError(t, err)
	assert.False(t, v.Valid)
	assert.NotEqual(t, v.ManifestTreeHash, v.CurrentTreeHash)
}

func TestDeleteCascades(t *testing.T) {
	p, vectors, g := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello world content")

	res, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)
	require.NotNil(t, res)

	del, err := p.Delete(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, res.ProjectID, del.ProjectID)
	assert.Positive(t, del.VectorsDeleted)
	assert.Positive(t, del.EntitiesDeleted)

	stats, err := vectors.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Count)

	gstats, err := g.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, gstats.Entities)

	// Manifest is gone, so the next ingest is a full one.
	m, err := scanner.LoadManifest(config.ManifestPath(dir))
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestTimelineListsFileEvents(t *testing.T) {
	p, _, _ := newPipeline(t)
	ctx := context.Background()
	dir := t.TempDir()
	writeFile(t, dir, "a.go", "package a\n")
	writeFile(t, dir, "b.go", "package b\n")

	res, err := p.Ingest(ctx, dir, false)
	require.NoError(t, err)

	events, err := p.Timeline(ctx, res.ProjectID, "", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "file", e.Kind)
	}

	events, err = p.Timeline(ctx, res.ProjectID, "a.go", 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "a.go", events[0].Name)
}

func TestIngestNonGitDirectoryHasZeroCommits(t *testing.T) {
	p, _, _ := newPipeline(t)
	dir := t.TempDir()
	writeFile(t, dir, "a.txt", "hello")

	res, err := p.Ingest(context.Background(), dir, false)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Zero(t, res.CommitsIndexed)
}
