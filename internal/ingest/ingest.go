// Package ingest drives the codebase pipeline: scan a project tree,
// chunk changed files, embed and upsert chunk vectors, mirror files and
// chunks into the knowledge graph, and record commit history. All ids
// are content addressed, so re-running any step is safe.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sync/errgroup"

	"github.com/ping-mem/pingmem/internal/chunk"
	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/scanner"
	"github.com/ping-mem/pingmem/internal/store"
)

// Result summarizes one ingestion run.
type Result struct {
	ProjectID      string    `json:"projectId"`
	TreeHash       string    `json:"treeHash"`
	FilesIndexed   int       `json:"filesIndexed"`
	ChunksIndexed  int       `json:"chunksIndexed"`
	CommitsIndexed int       `json:"commitsIndexed"`
	IngestedAt     time.Time `json:"ingestedAt"`
}

// VerifyResult reports manifest freshness.
type VerifyResult struct {
	ProjectID        string `json:"projectId"`
	Valid            bool   `json:"valid"`
	ManifestTreeHash string `json:"manifestTreeHash"`
	CurrentTreeHash  string `json:"currentTreeHash"`
	Message          string `json:"message"`
}

// DeleteResult reports a project cascade delete.
type DeleteResult struct {
	ProjectID            string `json:"projectId"`
	VectorsDeleted       int    `json:"vectorsDeleted"`
	EntitiesDeleted      int    `json:"entitiesDeleted"`
	RelationshipsDeleted int    `json:"relationshipsDeleted"`
}

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	scanner  *scanner.Scanner
	embedder embed.Embedder
	vectors  store.VectorStore
	graph    *graph.Store
	cfg      config.IngestConfig
	logger   *slog.Logger
}

// New builds a pipeline.
func New(embedder embed.Embedder, vectors store.VectorStore, g *graph.Store, cfg config.IngestConfig, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		scanner:  scanner.New(),
		embedder: embedder,
		vectors:  vectors,
		graph:    g,
		cfg:      cfg,
		logger:   logger,
	}
}

// deterministic ids keep every upsert idempotent.

func fileEntityID(projectID, path string) string {
	sum := sha256.Sum256([]byte(projectID + "|" + path))
	return "file-" + hex.EncodeToString(sum[:])[:16]
}

func chunkEntityID(chunkID string) string { return "chunk-" + chunkID[:16] }

func relID(kind, a, b string) string {
	sum := sha256.Sum256([]byte(kind + "|" + a + "|" + b))
	return "rel-" + hex.EncodeToString(sum[:])[:16]
}

// Ingest scans projectDir and indexes its content. A run whose tree
// hash matches the stored manifest returns (nil, nil) unless force is
// set. Concurrent runs against the same project are serialized by a
// file lock.
func (p *Pipeline) Ingest(ctx context.Context, projectDir string, force bool) (*Result, error) {
	absRoot, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, pingerr.InvalidInput(fmt.Sprintf("bad project dir: %v", err))
	}

	stateDir := filepath.Join(absRoot, config.StateDir)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	lock := flock.New(filepath.Join(stateDir, "ingest.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire ingest lock: %w", err)
	}
	if !locked {
		return nil, pingerr.New(pingerr.ErrCodeIngestLocked,
			"another ingestion is running for "+absRoot, nil)
	}
	defer func() { _ = lock.Unlock() }()

	manifest, err := p.scanner.Scan(ctx, absRoot, scanner.Options{
		MaxFileSize: p.cfg.MaxFileSize,
		Workers:     p.cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	manifestPath := config.ManifestPath(absRoot)
	prev, err := scanner.LoadManifest(manifestPath)
	if err != nil {
		p.logger.Warn("ignoring unreadable manifest", slog.String("error", err.Error()))
	}
	if !force && !manifest.HasChanges(prev) {
		p.logger.Info("project unchanged, skipping ingest",
			slog.String("project_id", manifest.ProjectID))
		return nil, nil
	}

	if err := p.ensureProjectEntity(ctx, manifest); err != nil {
		return nil, err
	}

	changed := changedFiles(manifest, prev, force)
	policy := chunk.Policy{MinBytes: p.cfg.ChunkMinBytes, MaxBytes: p.cfg.ChunkMaxBytes}

	var chunksIndexed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	workers := p.cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)
	for _, file := range changed {
		g.Go(func() error {
			n, err := p.ingestFile(gctx, manifest, file, policy)
			if err != nil {
				return err
			}
			chunksIndexed.Add(int64(n))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	commits, err := p.ingestCommits(ctx, absRoot, manifest.ProjectID)
	if err != nil {
		return nil, err
	}

	if err := manifest.Save(manifestPath); err != nil {
		return nil, err
	}

	res := &Result{
		ProjectID:      manifest.ProjectID,
		TreeHash:       manifest.TreeHash,
		FilesIndexed:   len(changed),
		ChunksIndexed:  int(chunksIndexed.Load()),
		CommitsIndexed: commits,
		IngestedAt:     time.Now().UTC(),
	}
	p.logger.Info("ingest complete",
		slog.String("project_id", res.ProjectID),
		slog.Int("files", res.FilesIndexed),
		slog.Int("chunks", res.ChunksIndexed),
		slog.Int("commits", res.CommitsIndexed))
	return res, nil
}

// changedFiles returns files to (re)index: everything on force or first
// ingest, otherwise files whose hash is new or differs.
func changedFiles(manifest, prev *scanner.Manifest, force bool) []scanner.ManifestFile {
	if force || prev == nil {
		return manifest.Files
	}
	prevSha := make(map[string]string, len(prev.Files))
	for _, f := range prev.Files {
		prevSha[f.Path] = f.SHA256
	}
	var out []scanner.ManifestFile
	for _, f := range manifest.Files {
		if prevSha[f.Path] != f.SHA256 {
			out = append(out, f)
		}
	}
	return out
}

func (p *Pipeline) ensureProjectEntity(ctx context.Context, m *scanner.Manifest) error {
	_, err := p.graph.GetEntity(ctx, m.ProjectID)
	if err == nil {
		return nil
	}
	if !pingerr.IsNotFound(err) {
		return err
	}
	return p.graph.CreateEntity(ctx, &graph.Entity{
		ID:        m.ProjectID,
		Type:      graph.EntityProject,
		Name:      filepath.Base(m.Root),
		ProjectID: m.ProjectID,
		Properties: graph.Properties{
			"root": m.Root,
		},
	})
}

// ingestFile chunks one file and upserts its graph nodes and vectors.
// Chunk content lives in the graph; vector payloads carry locations
// only.
func (p *Pipeline) ingestFile(ctx context.Context, m *scanner.Manifest, file scanner.ManifestFile, policy chunk.Policy) (int, error) {
	data, err := os.ReadFile(filepath.Join(m.Root, filepath.FromSlash(file.Path)))
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", file.Path, err)
	}

	chunks := chunk.File(file.Path, data, policy)
	if len(chunks) == 0 {
		return 0, nil
	}

	fileID := fileEntityID(m.ProjectID, file.Path)
	if err := p.upsertFileEntity(ctx, m, file, fileID, len(chunks)); err != nil {
		return 0, err
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, pingerr.Wrap(pingerr.ErrCodeIndexing, err)
	}

	now := time.Now().UTC()
	records := make([]*store.VectorRecord, len(chunks))
	for i, c := range chunks {
		if err := p.upsertChunkEntity(ctx, m.ProjectID, fileID, file.Path, c); err != nil {
			return 0, err
		}
		records[i] = &store.VectorRecord{
			MemoryID:  chunkEntityID(c.ID),
			Content:   c.Content,
			Vector:    vectors[i],
			IndexedAt: now,
			ProjectID: m.ProjectID,
			FilePath:  file.Path,
			ChunkID:   c.ID,
			SHA256:    file.SHA256,
			ChunkType: string(c.Type),
			Start:     c.StartByte,
			End:       c.EndByte,
			LineStart: c.StartLine,
			LineEnd:   c.EndLine,
		}
	}
	if err := p.vectors.StoreBatch(ctx, records); err != nil {
		return 0, pingerr.Wrap(pingerr.ErrCodeIndexing, err)
	}
	return len(chunks), nil
}

func (p *Pipeline) upsertFileEntity(ctx context.Context, m *scanner.Manifest, file scanner.ManifestFile, fileID string, chunkCount int) error {
	props := graph.Properties{
		"path":   file.Path,
		"sha256": file.SHA256,
		"size":   file.Size,
		"chunks": chunkCount,
	}

	_, err := p.graph.GetEntity(ctx, fileID)
	if pingerr.IsNotFound(err) {
		if err := p.graph.CreateEntity(ctx, &graph.Entity{
			ID:         fileID,
			Type:       graph.EntityCodeFile,
			Name:       file.Path,
			ProjectID:  m.ProjectID,
			Properties: props,
		}); err != nil {
			return err
		}
		return p.ensureRelationship(ctx, &graph.Relationship{
			ID:        relID("contains", m.ProjectID, fileID),
			Type:      graph.RelContains,
			SourceID:  m.ProjectID,
			TargetID:  fileID,
			Weight:    1,
			ProjectID: m.ProjectID,
		})
	}
	if err != nil {
		return err
	}
	_, err = p.graph.UpdateEntityInPlace(ctx, fileID, graph.EntityPatch{Properties: props})
	return err
}

func (p *Pipeline) upsertChunkEntity(ctx context.Context, projectID, fileID, filePath string, c *chunk.Chunk) error {
	id := chunkEntityID(c.ID)
	if _, err := p.graph.GetEntity(ctx, id); err == nil {
		return nil
	} else if !pingerr.IsNotFound(err) {
		return err
	}

	err := p.graph.CreateEntity(ctx, &graph.Entity{
		ID:        id,
		Type:      graph.EntityCodeFunction,
		Name:      fmt.Sprintf("%s:%d-%d", filePath, c.StartLine, c.EndLine),
		ProjectID: projectID,
		Properties: graph.Properties{
			"content":   c.Content,
			"chunkId":   c.ID,
			"type":      string(c.Type),
			"filePath":  filePath,
			"start":     c.StartByte,
			"end":       c.EndByte,
			"lineStart": c.StartLine,
			"lineEnd":   c.EndLine,
			"language":  c.Language,
		},
	})
	if err != nil {
		return err
	}
	return p.ensureRelationship(ctx, &graph.Relationship{
		ID:        relID("contains", fileID, id),
		Type:      graph.RelContains,
		SourceID:  fileID,
		TargetID:  id,
		Weight:    1,
		ProjectID: projectID,
	})
}

func (p *Pipeline) ensureRelationship(ctx context.Context, r *graph.Relationship) error {
	if _, err := p.graph.GetRelationship(ctx, r.ID); err == nil {
		return nil
	} else if !pingerr.IsNotFound(err) {
		return err
	}
	return p.graph.CreateRelationship(ctx, r)
}

// Verify recomputes the tree hash and compares it to the stored
// manifest.
func (p *Pipeline) Verify(ctx context.Context, projectDir string) (*VerifyResult, error) {
	absRoot, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, pingerr.InvalidInput(fmt.Sprintf("bad project dir: %v", err))
	}

	current, err := p.scanner.Scan(ctx, absRoot, scanner.Options{
		MaxFileSize: p.cfg.MaxFileSize,
		Workers:     p.cfg.Workers,
	})
	if err != nil {
		return nil, err
	}

	res := &VerifyResult{
		ProjectID:       current.ProjectID,
		CurrentTreeHash: current.TreeHash,
	}
	stored, err := scanner.LoadManifest(config.ManifestPath(absRoot))
	if err != nil {
		return nil, err
	}
	if stored == nil {
		res.Message = "no manifest found; project has not been ingested"
		return res, nil
	}
	res.ManifestTreeHash = stored.TreeHash
	if stored.TreeHash == current.TreeHash {
		res.Valid = true
		res.Message = "index is up to date"
	} else {
		res.Message = "project content changed since last ingest"
	}
	return res, nil
}

// Delete cascades: chunk vectors, graph entities, and relationships
// tagged with the project id, plus the stored manifest.
func (p *Pipeline) Delete(ctx context.Context, projectDir string) (*DeleteResult, error) {
	absRoot, err := filepath.Abs(projectDir)
	if err != nil {
		return nil, pingerr.InvalidInput(fmt.Sprintf("bad project dir: %v", err))
	}
	projectID := scanner.ProjectID(absRoot)

	vecs, err := p.vectors.DeleteByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	ents, rels, err := p.graph.DeleteProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(config.ManifestPath(absRoot)); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("failed to remove manifest", slog.String("error", err.Error()))
	}

	return &DeleteResult{
		ProjectID:            projectID,
		VectorsDeleted:       vecs,
		EntitiesDeleted:      ents,
		RelationshipsDeleted: rels,
	}, nil
}

// TimelineEvent is one entry in a project timeline.
type TimelineEvent struct {
	Kind      string    `json:"kind"` // commit or file
	Name      string    `json:"name"`
	EntityID  string    `json:"entityId"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail,omitempty"`
}

// Timeline lists commit and file events for a project, newest first,
// optionally restricted to one file path.
func (p *Pipeline) Timeline(ctx context.Context, projectID, filePath string, limit int) ([]*TimelineEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	var events []*TimelineEvent
	if filePath == "" {
		commits, err := p.graph.FindByProject(ctx, projectID, graph.EntityCommit, limit)
		if err != nil {
			return nil, err
		}
		for _, c := range commits {
			detail, _ := c.Properties["message"].(string)
			events = append(events, &TimelineEvent{
				Kind:      "commit",
				Name:      c.Name,
				EntityID:  c.ID,
				Timestamp: c.EventTime,
				Detail:    detail,
			})
		}
	}

	files, err := p.graph.FindByProject(ctx, projectID, graph.EntityCodeFile, limit)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		if filePath != "" && f.Name != filePath {
			continue
		}
		events = append(events, &TimelineEvent{
			Kind:      "file",
			Name:      f.Name,
			EntityID:  f.ID,
			Timestamp: f.UpdatedAt,
		})
	}

	sort.Slice(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}
