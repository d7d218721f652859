// Package lineage traverses directional relationships to answer
// upstream/downstream queries over the knowledge graph.
package lineage

import (
	"context"

	"github.com/ping-mem/pingmem/internal/graph"
)

// DefaultMaxDepth caps unbounded traversals; cycles are handled by the
// visited set, the cap bounds pathological fan-out.
const DefaultMaxDepth = 50

// Engine walks the graph breadth-first.
type Engine struct {
	store *graph.Store
}

// NewEngine builds a lineage engine over a graph store.
func NewEngine(store *graph.Store) *Engine {
	return &Engine{store: store}
}

// Result holds both traversal directions for one seed.
type Result struct {
	EntityID   string          `json:"entityId"`
	Upstream   []*graph.Entity `json:"upstream"`
	Downstream []*graph.Entity `json:"downstream"`
}

// Ancestors returns entities reachable over incoming edges, in BFS
// discovery order, excluding the seed.
func (e *Engine) Ancestors(ctx context.Context, seedID string, maxDepth int) ([]*graph.Entity, error) {
	return e.traverse(ctx, seedID, maxDepth, true)
}

// Descendants returns entities reachable over outgoing edges, in BFS
// discovery order, excluding the seed.
func (e *Engine) Descendants(ctx context.Context, seedID string, maxDepth int) ([]*graph.Entity, error) {
	return e.traverse(ctx, seedID, maxDepth, false)
}

// Lineage runs both directions.
func (e *Engine) Lineage(ctx context.Context, seedID string, maxDepth int) (*Result, error) {
	up, err := e.Ancestors(ctx, seedID, maxDepth)
	if err != nil {
		return nil, err
	}
	down, err := e.Descendants(ctx, seedID, maxDepth)
	if err != nil {
		return nil, err
	}
	return &Result{EntityID: seedID, Upstream: up, Downstream: down}, nil
}

func (e *Engine) traverse(ctx context.Context, seedID string, maxDepth int, incoming bool) ([]*graph.Entity, error) {
	if maxDepth <= 0 || maxDepth > DefaultMaxDepth {
		maxDepth = DefaultMaxDepth
	}
	if _, err := e.store.GetEntity(ctx, seedID); err != nil {
		return nil, err
	}

	visited := map[string]bool{seedID: true}
	frontier := []string{seedID}
	var out []*graph.Entity

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			rels, err := e.store.FindByEntity(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				var neighbor string
				if incoming {
					if r.TargetID != id {
						continue
					}
					neighbor = r.SourceID
				} else {
					if r.SourceID != id {
						continue
					}
					neighbor = r.TargetID
				}
				if visited[neighbor] {
					continue
				}
				visited[neighbor] = true

				ent, err := e.store.GetEntity(ctx, neighbor)
				if err != nil {
					// A dangling edge endpoint is skipped, not fatal.
					continue
				}
				out = append(out, ent)
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return out, nil
}
