package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
)

// pointNamespace maps memory IDs to stable Qdrant point UUIDs.
// Qdrant point IDs must be UUIDs or integers; memory IDs are opaque
// strings, so each is hashed into a deterministic UUIDv5.
var pointNamespace = uuid.MustParse("9a54e0bc-4c27-4ba8-9cc1-8d8f0e1f3a42")

// QdrantConfig locates the external vector backend.
type QdrantConfig struct {
	Host       string
	Port       int
	APIKey     string
	UseTLS     bool
	Collection string
	Dimensions int
	Threshold  float64
}

// QdrantVectorStore implements VectorStore against a Qdrant server.
type QdrantVectorStore struct {
	client *qdrant.Client
	cfg    QdrantConfig
}

// NewQdrantVectorStore connects to Qdrant and ensures the collection
// exists. Reachability is verified here so the factory can fall back.
func NewQdrantVectorStore(ctx context.Context, cfg QdrantConfig) (*QdrantVectorStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, pingerr.BackendUnavailable("qdrant", err)
	}

	s := &QdrantVectorStore{client: client, cfg: cfg}
	if err := s.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return s, nil
}

func (s *QdrantVectorStore) ensureCollection(ctx context.Context) error {
	exists, err := s.client.CollectionExists(ctx, s.cfg.Collection)
	if err != nil {
		return pingerr.BackendUnavailable("qdrant", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: s.cfg.Collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(s.cfg.Dimensions),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return pingerr.BackendUnavailable("qdrant", err)
	}
	return nil
}

// pointID derives the stable point UUID for a memory ID.
func pointID(memoryID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(memoryID)).String()
}

// Store upserts a single record.
func (s *QdrantVectorStore) Store(ctx context.Context, rec *VectorRecord) error {
	return s.StoreBatch(ctx, []*VectorRecord{rec})
}

// StoreBatch upserts records in one request.
func (s *QdrantVectorStore) StoreBatch(ctx context.Context, recs []*VectorRecord) error {
	if len(recs) == 0 {
		return nil
	}
	for _, rec := range recs {
		if len(rec.Vector) != s.cfg.Dimensions {
			return pingerr.DimensionMismatch(s.cfg.Dimensions, len(rec.Vector))
		}
	}

	points := make([]*qdrant.PointStruct, 0, len(recs))
	for _, rec := range recs {
		payload, err := s.buildPayload(rec)
		if err != nil {
			return err
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID(rec.MemoryID)),
			Vectors: qdrant.NewVectors(rec.Vector...),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.cfg.Collection,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("failed to upsert points: %w", err)
	}
	return nil
}

// buildPayload converts a record into Qdrant payload values.
// Chunk points omit content: chunk text lives in the graph store and is
// joined back on chunkId at retrieval time, keeping payloads bounded.
func (s *QdrantVectorStore) buildPayload(rec *VectorRecord) (map[string]*qdrant.Value, error) {
	fields := map[string]any{
		"memory_id":  rec.MemoryID,
		"session_id": rec.SessionID,
		"indexed_at": rec.IndexedAt.UTC().Format(time.RFC3339Nano),
	}
	if rec.ChunkID == "" {
		fields["content"] = rec.Content
	}
	if rec.Category != "" {
		fields["category"] = rec.Category
	}
	if rec.Metadata != nil {
		blob, err := json.Marshal(rec.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal metadata: %w", err)
		}
		fields["metadata"] = string(blob)
	}
	if rec.ChunkID != "" {
		fields["projectId"] = rec.ProjectID
		fields["filePath"] = rec.FilePath
		fields["chunkId"] = rec.ChunkID
		fields["sha256"] = rec.SHA256
		fields["type"] = rec.ChunkType
		fields["start"] = int64(rec.Start)
		fields["end"] = int64(rec.End)
		fields["lineStart"] = int64(rec.LineStart)
		fields["lineEnd"] = int64(rec.LineEnd)
	}

	payload := make(map[string]*qdrant.Value, len(fields))
	for key, value := range fields {
		val, err := qdrant.NewValue(value)
		if err != nil {
			return nil, fmt.Errorf("failed to convert payload value %s: %w", key, err)
		}
		payload[key] = val
	}
	return payload, nil
}

// buildFilter translates search option filters into a Qdrant filter.
func buildFilter(opts VectorSearchOptions) *qdrant.Filter {
	var must []*qdrant.Condition
	if opts.SessionID != "" {
		must = append(must, qdrant.NewMatch("session_id", opts.SessionID))
	}
	if opts.Category != "" {
		must = append(must, qdrant.NewMatch("category", opts.Category))
	}
	if opts.ProjectID != "" {
		must = append(must, qdrant.NewMatch("projectId", opts.ProjectID))
	}
	if opts.FilePath != "" {
		must = append(must, qdrant.NewMatch("filePath", opts.FilePath))
	}
	if opts.ChunkType != "" {
		must = append(must, qdrant.NewMatch("type", opts.ChunkType))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Search runs cosine top-k with optional payload filters.
func (s *QdrantVectorStore) Search(ctx context.Context, query []float32, opts VectorSearchOptions) ([]*VectorHit, error) {
	if len(query) != s.cfg.Dimensions {
		return nil, pingerr.DimensionMismatch(s.cfg.Dimensions, len(query))
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	req := &qdrant.SearchPoints{
		CollectionName: s.cfg.Collection,
		Vector:         query,
		Limit:          uint64(opts.Limit),
		Filter:         buildFilter(opts),
		WithPayload:    qdrant.NewWithPayload(true),
	}

	res, err := s.client.GetPointsClient().Search(ctx, req)
	if err != nil {
		return nil, pingerr.BackendUnavailable("qdrant", err)
	}

	hits := make([]*VectorHit, 0, len(res.Result))
	for _, point := range res.Result {
		rec := recordFromPayload(point.Payload)
		similarity := clampSimilarity(float64(point.Score))
		if similarity < opts.Threshold {
			continue
		}
		hits = append(hits, &VectorHit{Record: rec, Similarity: similarity})
	}
	return hits, nil
}

// recordFromPayload rebuilds a VectorRecord from Qdrant payload values.
func recordFromPayload(payload map[string]*qdrant.Value) *VectorRecord {
	rec := &VectorRecord{}
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			if sv, ok := v.Kind.(*qdrant.Value_StringValue); ok {
				return sv.StringValue
			}
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := payload[key]; ok {
			if iv, ok := v.Kind.(*qdrant.Value_IntegerValue); ok {
				return int(iv.IntegerValue)
			}
		}
		return 0
	}

	rec.MemoryID = str("memory_id")
	rec.SessionID = str("session_id")
	rec.Content = str("content")
	rec.Category = str("category")
	rec.ProjectID = str("projectId")
	rec.FilePath = str("filePath")
	rec.ChunkID = str("chunkId")
	rec.SHA256 = str("sha256")
	rec.ChunkType = str("type")
	rec.Start = num("start")
	rec.End = num("end")
	rec.LineStart = num("lineStart")
	rec.LineEnd = num("lineEnd")

	if ts := str("indexed_at"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			rec.IndexedAt = parsed
		}
	}
	if blob := str("metadata"); blob != "" {
		var meta map[string]any
		if err := json.Unmarshal([]byte(blob), &meta); err == nil {
			rec.Metadata = meta
		}
	}
	return rec
}

// Delete removes a point by memory ID.
func (s *QdrantVectorStore) Delete(ctx context.Context, memoryID string) (bool, error) {
	id := pointID(memoryID)

	existing, err := s.client.Get(ctx, &qdrant.GetPoints{
		CollectionName: s.cfg.Collection,
		Ids:            []*qdrant.PointId{qdrant.NewID(id)},
	})
	if err != nil {
		return false, pingerr.BackendUnavailable("qdrant", err)
	}
	if len(existing) == 0 {
		return false, nil
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Points{
				Points: &qdrant.PointsIdsList{
					Ids: []*qdrant.PointId{qdrant.NewID(id)},
				},
			},
		},
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete point %s: %w", memoryID, err)
	}
	return true, nil
}

// DeleteByProject removes all points whose payload carries projectId.
func (s *QdrantVectorStore) DeleteByProject(ctx context.Context, projectID string) (int, error) {
	filter := &qdrant.Filter{
		Must: []*qdrant.Condition{qdrant.NewMatch("projectId", projectID)},
	}

	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
		Filter:         filter,
	})
	if err != nil {
		return 0, pingerr.BackendUnavailable("qdrant", err)
	}

	_, err = s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.cfg.Collection,
		Points: &qdrant.PointsSelector{
			PointsSelectorOneOf: &qdrant.PointsSelector_Filter{Filter: filter},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete project points: %w", err)
	}
	return int(count), nil
}

// List scrolls records for a session.
func (s *QdrantVectorStore) List(ctx context.Context, sessionID string, limit int) ([]*VectorRecord, error) {
	if limit <= 0 {
		limit = 100
	}

	scroll := &qdrant.ScrollPoints{
		CollectionName: s.cfg.Collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if sessionID != "" {
		scroll.Filter = &qdrant.Filter{
			Must: []*qdrant.Condition{qdrant.NewMatch("session_id", sessionID)},
		}
	}
	points, err := s.client.Scroll(ctx, scroll)
	if err != nil {
		return nil, pingerr.BackendUnavailable("qdrant", err)
	}

	recs := make([]*VectorRecord, 0, len(points))
	for _, p := range points {
		recs = append(recs, recordFromPayload(p.Payload))
	}
	return recs, nil
}

// Stats returns collection statistics.
func (s *QdrantVectorStore) Stats(ctx context.Context) (*VectorStats, error) {
	count, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: s.cfg.Collection,
	})
	if err != nil {
		return nil, pingerr.BackendUnavailable("qdrant", err)
	}
	return &VectorStats{
		Count:         int(count),
		Dims:          s.cfg.Dimensions,
		Threshold:     s.cfg.Threshold,
		UsingFallback: false,
	}, nil
}

// Close closes the Qdrant client.
func (s *QdrantVectorStore) Close() error {
	return s.client.Close()
}

var _ VectorStore = (*QdrantVectorStore)(nil)
