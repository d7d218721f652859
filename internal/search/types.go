// Package search implements the hybrid retrieval engine: semantic,
// keyword, and graph modes run concurrently and their rankings are
// fused with weighted Reciprocal Rank Fusion.
package search

// Mode is one retrieval strategy.
type Mode string

const (
	ModeSemantic Mode = "semantic"
	ModeKeyword  Mode = "keyword"
	ModeGraph    Mode = "graph"
)

// Weights are per-mode fusion weights in [0,1]. They are normalized
// over the modes enabled for a query.
type Weights struct {
	Semantic float64 `json:"semantic"`
	Keyword  float64 `json:"keyword"`
	Graph    float64 `json:"graph"`
}

// DefaultWeights is the standard blend.
var DefaultWeights = Weights{Semantic: 0.5, Keyword: 0.3, Graph: 0.2}

func (w Weights) forMode(m Mode) float64 {
	switch m {
	case ModeSemantic:
		return w.Semantic
	case ModeKeyword:
		return w.Keyword
	case ModeGraph:
		return w.Graph
	}
	return 0
}

// Options configure one hybrid query.
type Options struct {
	Limit         int
	Threshold     float64
	SessionID     string
	Category      string
	Modes         []Mode // nil = all available
	Weights       *Weights
	GraphEntityID string
	GraphDepth    int
}

// GraphContext explains a graph-mode contribution.
type GraphContext struct {
	RelatedEntityIDs  []string `json:"relatedEntityIds"`
	RelationshipTypes []string `json:"relationshipTypes"`
	HopDistance       int      `json:"hopDistance"`
}

// HybridResult is one fused search result.
type HybridResult struct {
	MemoryID    string             `json:"memoryId"`
	SessionID   string             `json:"sessionId,omitempty"`
	Content     string             `json:"content"`
	HybridScore float64            `json:"hybridScore"`
	SearchModes []Mode             `json:"searchModes"`
	ModeScores  map[Mode]float64   `json:"modeScores,omitempty"`
	Metadata    map[string]any     `json:"metadata,omitempty"`
	Graph       *GraphContext      `json:"graphContext,omitempty"`
}
