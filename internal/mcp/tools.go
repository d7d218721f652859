package mcp

// SaveInput is the context_save tool input.
type SaveInput struct {
	Key             string         `json:"key" jsonschema:"short label for the memory"`
	Value           string         `json:"value" jsonschema:"the memory content to persist"`
	Category        string         `json:"category,omitempty" jsonschema:"one of task, decision, progress, note, error, warning, fact, observation"`
	Priority        string         `json:"priority,omitempty" jsonschema:"one of high, normal, low"`
	Channel         string         `json:"channel,omitempty" jsonschema:"logical channel grouping related memories"`
	Metadata        map[string]any `json:"metadata,omitempty" jsonschema:"arbitrary key-value metadata"`
	ExtractEntities bool           `json:"extractEntities,omitempty" jsonschema:"extract entities and relationships into the knowledge graph"`
}

// SaveOutput is the context_save tool output.
type SaveOutput struct {
	MemoryID  string   `json:"memoryId"`
	EntityIDs []string `json:"entityIds,omitempty"`
}

// SearchInput is the context_search tool input.
type SearchInput struct {
	Query         string  `json:"query" jsonschema:"the semantic search query"`
	MinSimilarity float64 `json:"minSimilarity,omitempty" jsonschema:"minimum cosine similarity in [0,1]"`
	Category      string  `json:"category,omitempty" jsonschema:"restrict to one memory category"`
	Channel       string  `json:"channel,omitempty" jsonschema:"restrict to one channel"`
	Limit         int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// MemoryResult is one semantic search hit.
type MemoryResult struct {
	MemoryID   string         `json:"memoryId"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	Category   string         `json:"category,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SearchOutput is the context_search tool output.
type SearchOutput struct {
	Count   int            `json:"count"`
	Results []MemoryResult `json:"results"`
}

// WeightsInput overrides the per-mode fusion weights for one query.
type WeightsInput struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Graph    float64 `json:"graph"`
}

// HybridSearchInput is the context_hybrid_search tool input.
type HybridSearchInput struct {
	Query     string        `json:"query" jsonschema:"the hybrid search query"`
	Limit     int           `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Weights   *WeightsInput `json:"weights,omitempty" jsonschema:"per-mode fusion weight overrides"`
	SessionID string        `json:"sessionId,omitempty" jsonschema:"restrict to one session"`
}

// GraphContextOutput explains a graph-mode contribution.
type GraphContextOutput struct {
	RelatedEntityIDs  []string `json:"relatedEntityIds,omitempty"`
	RelationshipTypes []string `json:"relationshipTypes,omitempty"`
	HopDistance       int      `json:"hopDistance"`
}

// HybridResultOutput is one fused search hit.
type HybridResultOutput struct {
	MemoryID    string              `json:"memoryId"`
	Content     string              `json:"content"`
	HybridScore float64             `json:"hybridScore"`
	SearchModes []string            `json:"searchModes"`
	ModeScores  map[string]float64  `json:"modeScores,omitempty"`
	Graph       *GraphContextOutput `json:"graphContext,omitempty"`
}

// HybridSearchOutput is the context_hybrid_search tool output.
type HybridSearchOutput struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []HybridResultOutput `json:"results"`
}

// RelationshipsInput is the context_query_relationships tool input.
type RelationshipsInput struct {
	EntityID          string   `json:"entityId" jsonschema:"the entity to explore from"`
	Depth             int      `json:"depth,omitempty" jsonschema:"maximum hop distance, default 2"`
	RelationshipTypes []string `json:"relationshipTypes,omitempty" jsonschema:"restrict to these relationship types"`
	Direction         string   `json:"direction,omitempty" jsonschema:"one of incoming, outgoing, both (default)"`
}

// EntitySummary is a compact entity view for tool outputs.
type EntitySummary struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
}

// RelationshipSummary is a compact relationship view.
type RelationshipSummary struct {
	ID       string  `json:"id"`
	Type     string  `json:"type"`
	SourceID string  `json:"sourceId"`
	TargetID string  `json:"targetId"`
	Weight   float64 `json:"weight"`
}

// PathStepOutput is one hop on a traversal path.
type PathStepOutput struct {
	EntityID   string `json:"entityId"`
	EntityName string `json:"entityName"`
	Via        string `json:"via,omitempty"`
}

// RelationshipsOutput is the context_query_relationships tool output.
type RelationshipsOutput struct {
	Entities      []EntitySummary       `json:"entities"`
	Relationships []RelationshipSummary `json:"relationships"`
	Paths         [][]PathStepOutput    `json:"paths"`
}

// LineageInput is the context_get_lineage tool input.
type LineageInput struct {
	EntityID  string `json:"entityId" jsonschema:"the entity to trace lineage for"`
	Direction string `json:"direction,omitempty" jsonschema:"one of upstream, downstream, both (default)"`
	MaxDepth  int    `json:"maxDepth,omitempty" jsonschema:"maximum hop distance, default 50"`
}

// LineageCounts summarizes a lineage result.
type LineageCounts struct {
	Upstream   int `json:"upstream"`
	Downstream int `json:"downstream"`
}

// LineageOutput is the context_get_lineage tool output.
type LineageOutput struct {
	Upstream   []EntitySummary `json:"upstream"`
	Downstream []EntitySummary `json:"downstream"`
	Counts     LineageCounts   `json:"counts"`
}

// EvolutionInput is the context_query_evolution tool input.
type EvolutionInput struct {
	EntityID  string `json:"entityId" jsonschema:"the entity to query"`
	StartTime string `json:"startTime,omitempty" jsonschema:"ISO-8601 lower bound"`
	EndTime   string `json:"endTime,omitempty" jsonschema:"ISO-8601 upper bound"`
}

// ChangeOutput is one timeline entry.
type ChangeOutput struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Name      string `json:"name,omitempty"`
}

// EvolutionOutput is the context_query_evolution tool output.
type EvolutionOutput struct {
	EntityID     string         `json:"entityId"`
	EntityName   string         `json:"entityName"`
	StartTime    string         `json:"startTime"`
	EndTime      string         `json:"endTime"`
	TotalChanges int            `json:"totalChanges"`
	Changes      []ChangeOutput `json:"changes"`
}

// IngestInput is the codebase_ingest tool input.
type IngestInput struct {
	ProjectDir    string `json:"projectDir" jsonschema:"absolute path of the project to ingest"`
	ForceReingest bool   `json:"forceReingest,omitempty" jsonschema:"re-ingest even when the tree hash is unchanged"`
}

// IngestOutput is the codebase_ingest tool output.
type IngestOutput struct {
	HadChanges     bool   `json:"hadChanges"`
	ProjectID      string `json:"projectId,omitempty"`
	TreeHash       string `json:"treeHash,omitempty"`
	FilesIndexed   int    `json:"filesIndexed,omitempty"`
	ChunksIndexed  int    `json:"chunksIndexed,omitempty"`
	CommitsIndexed int    `json:"commitsIndexed,omitempty"`
	IngestedAt     string `json:"ingestedAt,omitempty"`
}

// VerifyInput is the codebase_verify tool input.
type VerifyInput struct {
	ProjectDir string `json:"projectDir" jsonschema:"absolute path of the project to verify"`
}

// VerifyOutput is the codebase_verify tool output.
type VerifyOutput struct {
	ProjectID        string `json:"projectId"`
	Valid            bool   `json:"valid"`
	ManifestTreeHash string `json:"manifestTreeHash"`
	CurrentTreeHash  string `json:"currentTreeHash"`
	Message          string `json:"message"`
}

// CodeSearchInput is the codebase_search tool input.
type CodeSearchInput struct {
	Query     string `json:"query" jsonschema:"the code search query"`
	ProjectID string `json:"projectId,omitempty" jsonschema:"restrict to one ingested project"`
	FilePath  string `json:"filePath,omitempty" jsonschema:"restrict to one file path"`
	Type      string `json:"type,omitempty" jsonschema:"one of code, comment, docstring"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// CodeChunkResult is one code search hit.
type CodeChunkResult struct {
	FilePath   string  `json:"filePath"`
	ChunkID    string  `json:"chunkId"`
	Type       string  `json:"type"`
	LineStart  int     `json:"lineStart"`
	LineEnd    int     `json:"lineEnd"`
	Similarity float64 `json:"similarity"`
	Content    string  `json:"content,omitempty"`
}

// CodeSearchOutput is the codebase_search tool output.
type CodeSearchOutput struct {
	Query       string            `json:"query"`
	ResultCount int               `json:"resultCount"`
	Results     []CodeChunkResult `json:"results"`
}

// TimelineInput is the codebase_timeline tool input.
type TimelineInput struct {
	ProjectID string `json:"projectId" jsonschema:"the project to list events for"`
	FilePath  string `json:"filePath,omitempty" jsonschema:"restrict to one file path"`
	Limit     int    `json:"limit,omitempty" jsonschema:"maximum number of events, default 50"`
}

// TimelineEventOutput is one project timeline entry.
type TimelineEventOutput struct {
	Kind      string `json:"kind"`
	Name      string `json:"name"`
	EntityID  string `json:"entityId"`
	Timestamp string `json:"timestamp"`
	Detail    string `json:"detail,omitempty"`
}

// TimelineOutput is the codebase_timeline tool output.
type TimelineOutput struct {
	ProjectID  string                `json:"projectId"`
	FilePath   string                `json:"filePath,omitempty"`
	EventCount int                   `json:"eventCount"`
	Events     []TimelineEventOutput `json:"events"`
}

// ProjectDeleteInput is the project_delete tool input.
type ProjectDeleteInput struct {
	ProjectDir string `json:"projectDir" jsonschema:"absolute path of the project to delete"`
}

// ProjectDeleteOutput is the project_delete tool output.
type ProjectDeleteOutput struct {
	Success         bool   `json:"success"`
	ProjectID       string `json:"projectId"`
	ProjectDir      string `json:"projectDir"`
	SessionsDeleted int    `json:"sessionsDeleted"`
}
