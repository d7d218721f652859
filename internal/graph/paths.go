package graph

import (
	"context"
)

type hop struct {
	parent string
	via    RelationshipType
}

// PathStep is one hop on a path between two entities.
type PathStep struct {
	EntityID   string           `json:"entityId"`
	EntityName string           `json:"entityName"`
	Via        RelationshipType `json:"via,omitempty"`
}

// FindPath runs a breadth-first search from one entity to another over
// current edges in either direction and returns the first shortest path
// found, or nil when none exists within maxDepth hops.
func (s *Store) FindPath(ctx context.Context, fromID, toID string, maxDepth int) ([]*PathStep, error) {
	if maxDepth <= 0 {
		maxDepth = 6
	}

	start, err := s.GetEntity(ctx, fromID)
	if err != nil {
		return nil, err
	}
	if fromID == toID {
		return []*PathStep{{EntityID: start.ID, EntityName: start.Name}}, nil
	}
	if _, err := s.GetEntity(ctx, toID); err != nil {
		return nil, err
	}

	parents := map[string]hop{fromID: {}}
	frontier := []string{fromID}

	for depth := 0; depth < maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			rels, err := s.FindByEntity(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, r := range rels {
				neighbor := r.TargetID
				if neighbor == id {
					neighbor = r.SourceID
				}
				if _, seen := parents[neighbor]; seen {
					continue
				}
				parents[neighbor] = hop{parent: id, via: r.Type}
				if neighbor == toID {
					return s.buildPath(ctx, parents, fromID, toID)
				}
				next = append(next, neighbor)
			}
		}
		frontier = next
	}
	return nil, nil
}

func (s *Store) buildPath(ctx context.Context, parents map[string]hop, fromID, toID string) ([]*PathStep, error) {
	var reversed []*PathStep
	for id := toID; ; {
		e, err := s.GetEntity(ctx, id)
		if err != nil {
			return nil, err
		}
		h := parents[id]
		reversed = append(reversed, &PathStep{EntityID: e.ID, EntityName: e.Name, Via: h.via})
		if id == fromID {
			break
		}
		id = h.parent
	}

	path := make([]*PathStep, len(reversed))
	for i, step := range reversed {
		path[len(reversed)-1-i] = step
	}
	// The origin has no incoming hop.
	path[0].Via = ""
	return path, nil
}
