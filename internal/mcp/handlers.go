package mcp

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/evolution"
	"github.com/ping-mem/pingmem/internal/extract"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/search"
	"github.com/ping-mem/pingmem/internal/session"
	"github.com/ping-mem/pingmem/internal/store"
)

var validCategories = map[string]bool{
	"task": true, "decision": true, "progress": true, "note": true,
	"error": true, "warning": true, "fact": true, "observation": true,
}

var validPriorities = map[string]bool{
	"high": true, "normal": true, "low": true,
}

func (s *Server) handleContextSave(ctx context.Context, _ *mcp.CallToolRequest, in SaveInput) (*mcp.CallToolResult, SaveOutput, error) {
	if in.Key == "" {
		return nil, SaveOutput{}, pingerr.InvalidInput("key is required")
	}
	if in.Value == "" {
		return nil, SaveOutput{}, pingerr.InvalidInput("value is required")
	}
	if in.Category != "" && !validCategories[in.Category] {
		return nil, SaveOutput{}, pingerr.InvalidInput("unknown category: " + in.Category)
	}
	if in.Priority != "" && !validPriorities[in.Priority] {
		return nil, SaveOutput{}, pingerr.InvalidInput("unknown priority: " + in.Priority)
	}

	memoryID := uuid.NewString()
	sessionID := s.sessions.Current()
	now := time.Now().UTC()

	metadata := map[string]any{"key": in.Key}
	for k, v := range in.Metadata {
		metadata[k] = v
	}
	if in.Priority != "" {
		metadata["priority"] = in.Priority
	}
	if in.Channel != "" {
		metadata["channel"] = in.Channel
	}

	content := in.Key + ": " + in.Value
	if err := s.engine.IndexDocument(ctx, memoryID, sessionID, content, now, in.Category, metadata); err != nil {
		return nil, SaveOutput{}, err
	}

	out := SaveOutput{MemoryID: memoryID}
	if in.ExtractEntities {
		entityIDs, err := s.extractToGraph(ctx, in, memoryID)
		if err != nil {
			return nil, SaveOutput{}, err
		}
		out.EntityIDs = entityIDs
	}

	_ = s.sessions.Append(session.Event{
		Type:      session.EventMemorySaved,
		SessionID: sessionID,
		MemoryID:  memoryID,
		Detail:    map[string]any{"key": in.Key, "category": in.Category},
	})

	s.logger.Info("memory saved",
		slog.String("memory_id", memoryID),
		slog.String("session_id", sessionID),
		slog.Int("entities", len(out.EntityIDs)))
	return nil, out, nil
}

// extractToGraph mines entities and relationships out of a saved memory
// and merges them into the knowledge graph. Each merged entity records
// the memory id so graph search can resolve it back to the memory.
func (s *Server) extractToGraph(ctx context.Context, in SaveInput, memoryID string) ([]string, error) {
	res := s.extractor.ExtractFromContext(extract.ExtractInput{
		Key:      in.Key,
		Value:    in.Value,
		Category: in.Category,
	})

	var (
		merged    []*graph.Entity
		entityIDs []string
	)
	for _, cand := range res.Entities {
		ent, err := s.graph.MergeEntity(ctx, cand.Entity)
		if err != nil {
			return nil, err
		}
		props := ent.Properties
		if props == nil {
			props = graph.Properties{}
		}
		props["memory_ids"] = appendUnique(entityMemoryIDs(ent), memoryID)
		ent, err = s.graph.UpdateEntityInPlace(ctx, ent.ID, graph.EntityPatch{Properties: props})
		if err != nil {
			return nil, err
		}
		merged = append(merged, ent)
		entityIDs = append(entityIDs, ent.ID)
	}

	inferred := s.inferencer.Infer(merged, in.Value, extract.InferOptions{})
	for _, ir := range inferred.Relationships {
		exists, err := s.edgeExists(ctx, ir.Relationship)
		if err != nil {
			return nil, err
		}
		if exists {
			continue
		}
		if err := s.graph.CreateRelationship(ctx, ir.Relationship); err != nil {
			s.logger.Warn("relationship insert skipped",
				slog.String("relationship_id", ir.Relationship.ID),
				slog.String("error", err.Error()))
		}
	}
	return entityIDs, nil
}

// edgeExists reports whether a current edge with the same type and
// endpoints is already in the graph. Inferred ids are synthetic, so
// identity is (type, source, target).
func (s *Server) edgeExists(ctx context.Context, r *graph.Relationship) (bool, error) {
	rels, err := s.graph.FindByEntity(ctx, r.SourceID)
	if err != nil {
		return false, err
	}
	for _, existing := range rels {
		if existing.Type == r.Type &&
			existing.SourceID == r.SourceID &&
			existing.TargetID == r.TargetID {
			return true, nil
		}
	}
	return false, nil
}

func entityMemoryIDs(e *graph.Entity) []string {
	raw, ok := e.Properties["memory_ids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if id, ok := item.(string); ok {
				out = append(out, id)
			}
		}
		return out
	}
	return nil
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func (s *Server) handleContextSearch(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if in.Query == "" {
		return nil, SearchOutput{}, pingerr.InvalidInput("query is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	vector, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, SearchOutput{}, pingerr.Embedding(err)
	}
	// Over-fetch to survive the channel post-filter.
	fetch := limit
	if in.Channel != "" {
		fetch = 2 * limit
	}
	hits, err := s.vectors.Search(ctx, vector, store.VectorSearchOptions{
		Limit:     fetch,
		Threshold: in.MinSimilarity,
		Category:  in.Category,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}

	out := SearchOutput{Results: []MemoryResult{}}
	for _, h := range hits {
		if in.Channel != "" {
			if ch, _ := h.Record.Metadata["channel"].(string); ch != in.Channel {
				continue
			}
		}
		out.Results = append(out.Results, MemoryResult{
			MemoryID:   h.Record.MemoryID,
			Content:    h.Record.Content,
			Similarity: h.Similarity,
			Category:   h.Record.Category,
			Metadata:   h.Record.Metadata,
		})
		if len(out.Results) == limit {
			break
		}
	}
	out.Count = len(out.Results)

	_ = s.sessions.Append(session.Event{
		Type:   session.EventSearch,
		Detail: map[string]any{"query": in.Query, "count": out.Count},
	})
	return nil, out, nil
}

func (s *Server) handleHybridSearch(ctx context.Context, _ *mcp.CallToolRequest, in HybridSearchInput) (*mcp.CallToolResult, HybridSearchOutput, error) {
	if in.Query == "" {
		return nil, HybridSearchOutput{}, pingerr.InvalidInput("query is required")
	}

	opts := search.Options{
		Limit:     in.Limit,
		SessionID: in.SessionID,
	}
	if in.Weights != nil {
		opts.Weights = &search.Weights{
			Semantic: in.Weights.Semantic,
			Keyword:  in.Weights.Keyword,
			Graph:    in.Weights.Graph,
		}
	}

	results, err := s.engine.Search(ctx, in.Query, opts)
	if err != nil {
		return nil, HybridSearchOutput{}, err
	}

	out := HybridSearchOutput{Query: in.Query, Count: len(results), Results: []HybridResultOutput{}}
	for _, r := range results {
		ro := HybridResultOutput{
			MemoryID:    r.MemoryID,
			Content:     r.Content,
			HybridScore: r.HybridScore,
			SearchModes: modeNames(r.SearchModes),
		}
		if len(r.ModeScores) > 0 {
			ro.ModeScores = make(map[string]float64, len(r.ModeScores))
			for m, score := range r.ModeScores {
				ro.ModeScores[string(m)] = score
			}
		}
		if r.Graph != nil {
			ro.Graph = &GraphContextOutput{
				RelatedEntityIDs:  r.Graph.RelatedEntityIDs,
				RelationshipTypes: r.Graph.RelationshipTypes,
				HopDistance:       r.Graph.HopDistance,
			}
		}
		out.Results = append(out.Results, ro)
	}

	_ = s.sessions.Append(session.Event{
		Type:   session.EventSearch,
		Detail: map[string]any{"query": in.Query, "count": out.Count, "hybrid": true},
	})
	return nil, out, nil
}

func modeNames(modes []search.Mode) []string {
	out := make([]string, len(modes))
	for i, m := range modes {
		out[i] = string(m)
	}
	return out
}

func (s *Server) handleQueryRelationships(ctx context.Context, _ *mcp.CallToolRequest, in RelationshipsInput) (*mcp.CallToolResult, RelationshipsOutput, error) {
	if in.EntityID == "" {
		return nil, RelationshipsOutput{}, pingerr.InvalidInput("entityId is required")
	}
	depth := in.Depth
	if depth <= 0 {
		depth = 2
	}
	direction := in.Direction
	switch direction {
	case "", "both":
		direction = "both"
	case "incoming", "outgoing":
	default:
		return nil, RelationshipsOutput{}, pingerr.InvalidInput("direction must be incoming, outgoing or both")
	}
	typeFilter := make(map[string]bool, len(in.RelationshipTypes))
	for _, t := range in.RelationshipTypes {
		typeFilter[t] = true
	}

	seed, err := s.graph.GetEntity(ctx, in.EntityID)
	if err != nil {
		return nil, RelationshipsOutput{}, err
	}

	out := RelationshipsOutput{
		Entities:      []EntitySummary{summarizeEntity(seed)},
		Relationships: []RelationshipSummary{},
		Paths:         [][]PathStepOutput{},
	}

	type parentLink struct {
		parent string
		via    graph.RelationshipType
	}
	parents := map[string]parentLink{}
	names := map[string]string{seed.ID: seed.Name}
	visited := map[string]bool{seed.ID: true}
	seenRel := map[string]bool{}

	type visit struct {
		id   string
		hops int
	}
	queue := []visit{{id: seed.ID, hops: 0}}
	var discovered []string

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= depth {
			continue
		}
		rels, err := s.graph.FindByEntity(ctx, cur.id)
		if err != nil {
			return nil, RelationshipsOutput{}, err
		}
		for _, r := range rels {
			if len(typeFilter) > 0 && !typeFilter[string(r.Type)] {
				continue
			}
			outgoing := r.SourceID == cur.id
			if direction == "outgoing" && !outgoing {
				continue
			}
			if direction == "incoming" && outgoing {
				continue
			}
			if !seenRel[r.ID] {
				seenRel[r.ID] = true
				out.Relationships = append(out.Relationships, RelationshipSummary{
					ID:       r.ID,
					Type:     string(r.Type),
					SourceID: r.SourceID,
					TargetID: r.TargetID,
					Weight:   r.Weight,
				})
			}
			neighbor := r.TargetID
			if !outgoing {
				neighbor = r.SourceID
			}
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			ent, err := s.graph.GetEntity(ctx, neighbor)
			if err != nil {
				if pingerr.IsNotFound(err) {
					continue
				}
				return nil, RelationshipsOutput{}, err
			}
			parents[neighbor] = parentLink{parent: cur.id, via: r.Type}
			names[neighbor] = ent.Name
			out.Entities = append(out.Entities, summarizeEntity(ent))
			discovered = append(discovered, neighbor)
			queue = append(queue, visit{id: neighbor, hops: cur.hops + 1})
		}
	}

	// One path per discovered entity, seed first.
	for _, id := range discovered {
		var rev []PathStepOutput
		for cur := id; cur != seed.ID; {
			link := parents[cur]
			rev = append(rev, PathStepOutput{
				EntityID:   cur,
				EntityName: names[cur],
				Via:        string(link.via),
			})
			cur = link.parent
		}
		path := make([]PathStepOutput, 0, len(rev)+1)
		path = append(path, PathStepOutput{EntityID: seed.ID, EntityName: seed.Name})
		for i := len(rev) - 1; i >= 0; i-- {
			path = append(path, rev[i])
		}
		out.Paths = append(out.Paths, path)
	}
	return nil, out, nil
}

func summarizeEntity(e *graph.Entity) EntitySummary {
	return EntitySummary{
		ID:         e.ID,
		Type:       string(e.Type),
		Name:       e.Name,
		Properties: e.Properties,
	}
}

func (s *Server) handleGetLineage(ctx context.Context, _ *mcp.CallToolRequest, in LineageInput) (*mcp.CallToolResult, LineageOutput, error) {
	if in.EntityID == "" {
		return nil, LineageOutput{}, pingerr.InvalidInput("entityId is required")
	}

	direction := in.Direction
	if direction == "" {
		direction = "both"
	}
	if direction != "upstream" && direction != "downstream" && direction != "both" {
		return nil, LineageOutput{}, pingerr.InvalidInput("direction must be upstream, downstream or both")
	}

	out := LineageOutput{Upstream: []EntitySummary{}, Downstream: []EntitySummary{}}

	if direction == "upstream" || direction == "both" {
		up, err := s.lineage.Ancestors(ctx, in.EntityID, in.MaxDepth)
		if err != nil {
			return nil, LineageOutput{}, err
		}
		for _, e := range up {
			out.Upstream = append(out.Upstream, summarizeEntity(e))
		}
	}
	if direction == "downstream" || direction == "both" {
		down, err := s.lineage.Descendants(ctx, in.EntityID, in.MaxDepth)
		if err != nil {
			return nil, LineageOutput{}, err
		}
		for _, e := range down {
			out.Downstream = append(out.Downstream, summarizeEntity(e))
		}
	}
	out.Counts = LineageCounts{Upstream: len(out.Upstream), Downstream: len(out.Downstream)}
	return nil, out, nil
}

func parseISOTime(value, field string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, pingerr.InvalidInput(field + " is not a valid ISO-8601 timestamp: " + value)
	}
	return &t, nil
}

func (s *Server) handleQueryEvolution(ctx context.Context, _ *mcp.CallToolRequest, in EvolutionInput) (*mcp.CallToolResult, EvolutionOutput, error) {
	if in.EntityID == "" {
		return nil, EvolutionOutput{}, pingerr.InvalidInput("entityId is required")
	}
	start, err := parseISOTime(in.StartTime, "startTime")
	if err != nil {
		return nil, EvolutionOutput{}, err
	}
	end, err := parseISOTime(in.EndTime, "endTime")
	if err != nil {
		return nil, EvolutionOutput{}, err
	}

	timeline, err := s.evolution.GetEvolution(ctx, in.EntityID, evolution.Options{
		StartTime: start,
		EndTime:   end,
	})
	if err != nil {
		return nil, EvolutionOutput{}, err
	}

	out := EvolutionOutput{
		EntityID:     timeline.EntityID,
		EntityName:   timeline.EntityName,
		StartTime:    timeline.StartTime.Format(time.RFC3339),
		EndTime:      timeline.EndTime.Format(time.RFC3339),
		TotalChanges: timeline.TotalChanges,
		Changes:      []ChangeOutput{},
	}
	for _, c := range timeline.Changes {
		co := ChangeOutput{
			Timestamp: c.Timestamp.Format(time.RFC3339),
			Type:      string(c.Type),
			Version:   c.Version,
		}
		if c.CurrentState != nil {
			co.Name = c.CurrentState.Name
		} else if c.PreviousState != nil {
			co.Name = c.PreviousState.Name
		}
		out.Changes = append(out.Changes, co)
	}
	return nil, out, nil
}

func (s *Server) handleCodebaseIngest(ctx context.Context, _ *mcp.CallToolRequest, in IngestInput) (*mcp.CallToolResult, IngestOutput, error) {
	if in.ProjectDir == "" {
		return nil, IngestOutput{}, pingerr.InvalidInput("projectDir is required")
	}

	res, err := s.pipeline.Ingest(ctx, in.ProjectDir, in.ForceReingest)
	if err != nil {
		return nil, IngestOutput{}, err
	}
	if res == nil {
		return nil, IngestOutput{HadChanges: false}, nil
	}

	_ = s.sessions.Append(session.Event{
		Type:   session.EventIngest,
		Detail: map[string]any{"projectId": res.ProjectID, "files": res.FilesIndexed},
	})

	return nil, IngestOutput{
		HadChanges:     true,
		ProjectID:      res.ProjectID,
		TreeHash:       res.TreeHash,
		FilesIndexed:   res.FilesIndexed,
		ChunksIndexed:  res.ChunksIndexed,
		CommitsIndexed: res.CommitsIndexed,
		IngestedAt:     res.IngestedAt.Format(time.RFC3339),
	}, nil
}

func (s *Server) handleCodebaseVerify(ctx context.Context, _ *mcp.CallToolRequest, in VerifyInput) (*mcp.CallToolResult, VerifyOutput, error) {
	if in.ProjectDir == "" {
		return nil, VerifyOutput{}, pingerr.InvalidInput("projectDir is required")
	}
	res, err := s.pipeline.Verify(ctx, in.ProjectDir)
	if err != nil {
		return nil, VerifyOutput{}, err
	}
	return nil, VerifyOutput{
		ProjectID:        res.ProjectID,
		Valid:            res.Valid,
		ManifestTreeHash: res.ManifestTreeHash,
		CurrentTreeHash:  res.CurrentTreeHash,
		Message:          res.Message,
	}, nil
}

func (s *Server) handleCodebaseSearch(ctx context.Context, _ *mcp.CallToolRequest, in CodeSearchInput) (*mcp.CallToolResult, CodeSearchOutput, error) {
	if in.Query == "" {
		return nil, CodeSearchOutput{}, pingerr.InvalidInput("query is required")
	}
	switch in.Type {
	case "", "code", "comment", "docstring":
	default:
		return nil, CodeSearchOutput{}, pingerr.InvalidInput("type must be code, comment or docstring")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}

	vector, err := s.embedder.Embed(ctx, in.Query)
	if err != nil {
		return nil, CodeSearchOutput{}, pingerr.Embedding(err)
	}
	hits, err := s.vectors.Search(ctx, vector, store.VectorSearchOptions{
		Limit:     limit,
		ProjectID: in.ProjectID,
		FilePath:  in.FilePath,
		ChunkType: in.Type,
	})
	if err != nil {
		return nil, CodeSearchOutput{}, err
	}

	out := CodeSearchOutput{Query: in.Query, Results: []CodeChunkResult{}}
	for _, h := range hits {
		if h.Record.ChunkID == "" {
			continue
		}
		r := CodeChunkResult{
			FilePath:   h.Record.FilePath,
			ChunkID:    h.Record.ChunkID,
			Type:       h.Record.ChunkType,
			LineStart:  h.Record.LineStart,
			LineEnd:    h.Record.LineEnd,
			Similarity: h.Similarity,
		}
		// Chunk text lives in the graph store; the vector payload only
		// carries the chunk identity.
		if ent, err := s.graph.GetEntity(ctx, h.Record.MemoryID); err == nil {
			if content, ok := ent.Properties["content"].(string); ok {
				r.Content = content
			}
		}
		out.Results = append(out.Results, r)
	}
	out.ResultCount = len(out.Results)
	return nil, out, nil
}

func (s *Server) handleCodebaseTimeline(ctx context.Context, _ *mcp.CallToolRequest, in TimelineInput) (*mcp.CallToolResult, TimelineOutput, error) {
	if in.ProjectID == "" {
		return nil, TimelineOutput{}, pingerr.InvalidInput("projectId is required")
	}
	events, err := s.pipeline.Timeline(ctx, in.ProjectID, in.FilePath, in.Limit)
	if err != nil {
		return nil, TimelineOutput{}, err
	}

	out := TimelineOutput{
		ProjectID:  in.ProjectID,
		FilePath:   in.FilePath,
		EventCount: len(events),
		Events:     []TimelineEventOutput{},
	}
	for _, e := range events {
		out.Events = append(out.Events, TimelineEventOutput{
			Kind:      e.Kind,
			Name:      e.Name,
			EntityID:  e.EntityID,
			Timestamp: e.Timestamp.Format(time.RFC3339),
			Detail:    e.Detail,
		})
	}
	return nil, out, nil
}

func (s *Server) handleProjectDelete(ctx context.Context, _ *mcp.CallToolRequest, in ProjectDeleteInput) (*mcp.CallToolResult, ProjectDeleteOutput, error) {
	if in.ProjectDir == "" {
		return nil, ProjectDeleteOutput{}, pingerr.InvalidInput("projectDir is required")
	}

	res, err := s.pipeline.Delete(ctx, in.ProjectDir)
	if err != nil {
		return nil, ProjectDeleteOutput{}, err
	}

	sessionsDeleted := s.deleteProjectSessions(res.ProjectID)

	s.logger.Info("project deleted",
		slog.String("project_id", res.ProjectID),
		slog.Int("vectors", res.VectorsDeleted),
		slog.Int("entities", res.EntitiesDeleted),
		slog.Int("sessions", sessionsDeleted))

	return nil, ProjectDeleteOutput{
		Success:         true,
		ProjectID:       res.ProjectID,
		ProjectDir:      in.ProjectDir,
		SessionsDeleted: sessionsDeleted,
	}, nil
}

// deleteProjectSessions removes session logs whose events reference the
// project. Log read failures skip the session rather than failing the
// delete.
func (s *Server) deleteProjectSessions(projectID string) int {
	ids, err := s.sessions.List()
	if err != nil {
		return 0
	}
	deleted := 0
	for _, id := range ids {
		events, err := s.sessions.Events(id)
		if err != nil {
			continue
		}
		for _, ev := range events {
			if pid, _ := ev.Detail["projectId"].(string); pid == projectID {
				if ok, _ := s.sessions.Delete(id); ok {
					deleted++
				}
				break
			}
		}
	}
	return deleted
}
