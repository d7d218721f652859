// Package evolution builds temporal timelines from entity version
// chains and correlates change activity between entities.
package evolution

import (
	"context"
	"sort"
	"time"

	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/graph"
)

// CorrelationWindow bounds how far apart two changes may be and still
// count as related: one hour in milliseconds.
const CorrelationWindow = 3_600_000

// ChangeType classifies one timeline entry.
type ChangeType string

const (
	ChangeCreated ChangeType = "created"
	ChangeUpdated ChangeType = "updated"
	ChangeDeleted ChangeType = "deleted"
)

// RelatedChange is a neighbor version near a change in time.
type RelatedChange struct {
	EntityID   string    `json:"entityId"`
	EntityName string    `json:"entityName"`
	Version    int       `json:"version"`
	Timestamp  time.Time `json:"timestamp"`
}

// Change is one entry in an entity timeline.
type Change struct {
	Timestamp     time.Time        `json:"timestamp"`
	Type          ChangeType       `json:"type"`
	Version       int              `json:"version"`
	PreviousState *graph.Entity    `json:"previousState,omitempty"`
	CurrentState  *graph.Entity    `json:"currentState,omitempty"`
	Related       []*RelatedChange `json:"related,omitempty"`
}

// Timeline is the evolution of one entity.
type Timeline struct {
	EntityID     string    `json:"entityId"`
	EntityName   string    `json:"entityName"`
	StartTime    time.Time `json:"startTime"`
	EndTime      time.Time `json:"endTime"`
	TotalChanges int       `json:"totalChanges"`
	Changes      []*Change `json:"changes"`
}

// Options filter a timeline.
type Options struct {
	StartTime        *time.Time
	EndTime          *time.Time
	ChangeTypes      []ChangeType
	MaxTimelineDepth int
	IncludeRelated   bool
	MaxDepth         int
}

// CorrelatedPair is two changes close in time, one from each entity.
type CorrelatedPair struct {
	First   *Change `json:"first"`
	Second  *Change `json:"second"`
	DeltaMs int64   `json:"deltaMs"`
}

// Comparison is the result of correlating two timelines.
type Comparison struct {
	Timeline1       *Timeline         `json:"timeline1"`
	Timeline2       *Timeline         `json:"timeline2"`
	CorrelatedPairs []*CorrelatedPair `json:"correlatedPairs"`
	CommonRelated   []string          `json:"commonRelated"`
}

// Engine derives timelines from the temporal store.
type Engine struct {
	temporal *graph.TemporalStore
}

// NewEngine builds an evolution engine.
func NewEngine(temporal *graph.TemporalStore) *Engine {
	return &Engine{temporal: temporal}
}

// GetEvolution builds the timeline of one entity.
//
// Version rows map to changes chronologically: the first version is
// "created", later versions are "updated", and a final version closed
// without a successor adds a trailing "deleted" entry.
func (e *Engine) GetEvolution(ctx context.Context, entityID string, opts Options) (*Timeline, error) {
	history, err := e.temporal.GetEntityHistory(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if len(history) == 0 {
		return nil, pingerr.NotFound("entity evolution", entityID)
	}

	// History arrives newest first; walk oldest first.
	versions := make([]*graph.Entity, len(history))
	for i, v := range history {
		versions[len(history)-1-i] = v
	}

	// Change timestamps follow event time, so backdated updates land
	// where the fact occurred, not where it was recorded.
	var changes []*Change
	for i, v := range versions {
		change := &Change{
			Timestamp:    v.EventTime,
			Type:         ChangeUpdated,
			Version:      v.Version,
			CurrentState: v,
		}
		if i == 0 {
			change.Type = ChangeCreated
		} else {
			change.PreviousState = versions[i-1]
		}
		changes = append(changes, change)
	}

	last := versions[len(versions)-1]
	if last.ValidTo != nil {
		changes = append(changes, &Change{
			Timestamp:     *last.ValidTo,
			Type:          ChangeDeleted,
			Version:       last.Version,
			PreviousState: last,
		})
	}

	changes = filterChanges(changes, opts)

	if opts.IncludeRelated {
		if err := e.attachRelated(ctx, entityID, changes, opts); err != nil {
			return nil, err
		}
	}

	tl := &Timeline{
		EntityID:     entityID,
		EntityName:   versions[len(versions)-1].Name,
		TotalChanges: len(changes),
		Changes:      changes,
	}
	if len(changes) > 0 {
		tl.StartTime = changes[0].Timestamp
		tl.EndTime = changes[len(changes)-1].Timestamp
	} else {
		now := time.Now().UTC()
		tl.StartTime, tl.EndTime = now, now
	}
	return tl, nil
}

func filterChanges(changes []*Change, opts Options) []*Change {
	filtered := changes[:0:0]
	for _, c := range changes {
		if opts.StartTime != nil && c.Timestamp.Before(*opts.StartTime) {
			continue
		}
		if opts.EndTime != nil && c.Timestamp.After(*opts.EndTime) {
			continue
		}
		if len(opts.ChangeTypes) > 0 && !containsType(opts.ChangeTypes, c.Type) {
			continue
		}
		filtered = append(filtered, c)
	}
	if opts.MaxTimelineDepth > 0 && len(filtered) > opts.MaxTimelineDepth {
		filtered = filtered[:opts.MaxTimelineDepth]
	}
	return filtered
}

func containsType(types []ChangeType, t ChangeType) bool {
	for _, ct := range types {
		if ct == t {
			return true
		}
	}
	return false
}

// attachRelated annotates each change with neighbor versions that
// occurred within the correlation window of the change.
func (e *Engine) attachRelated(ctx context.Context, entityID string, changes []*Change, opts Options) error {
	rels, err := e.temporal.Store().FindByEntity(ctx, entityID)
	if err != nil {
		return err
	}

	neighborIDs := make([]string, 0, len(rels))
	seen := map[string]bool{entityID: true}
	for _, r := range rels {
		for _, id := range []string{r.SourceID, r.TargetID} {
			if !seen[id] {
				seen[id] = true
				neighborIDs = append(neighborIDs, id)
			}
		}
	}
	sort.Strings(neighborIDs)

	perChange := opts.MaxDepth * 10
	if perChange <= 0 {
		perChange = 30
	}

	for _, change := range changes {
		ts := change.Timestamp.UnixMilli()
		for _, nid := range neighborIDs {
			if len(change.Related) >= perChange {
				break
			}
			history, err := e.temporal.GetEntityHistory(ctx, nid)
			if err != nil {
				return err
			}
			for _, v := range history {
				if len(change.Related) >= perChange {
					break
				}
				delta := v.EventTime.UnixMilli() - ts
				if delta < 0 {
					delta = -delta
				}
				if delta <= CorrelationWindow {
					change.Related = append(change.Related, &RelatedChange{
						EntityID:   v.ID,
						EntityName: v.Name,
						Version:    v.Version,
						Timestamp:  v.EventTime,
					})
				}
			}
		}
	}
	return nil
}

// CompareEvolution correlates the timelines of two entities. Pairs
// within the correlation window are sorted by ascending time delta;
// common related ids are the intersection of both related sets.
func (e *Engine) CompareEvolution(ctx context.Context, id1, id2 string, opts Options) (*Comparison, error) {
	opts.IncludeRelated = true

	t1, err := e.GetEvolution(ctx, id1, opts)
	if err != nil {
		return nil, err
	}
	t2, err := e.GetEvolution(ctx, id2, opts)
	if err != nil {
		return nil, err
	}

	var pairs []*CorrelatedPair
	for _, c1 := range t1.Changes {
		for _, c2 := range t2.Changes {
			delta := c1.Timestamp.UnixMilli() - c2.Timestamp.UnixMilli()
			if delta < 0 {
				delta = -delta
			}
			if delta <= CorrelationWindow {
				pairs = append(pairs, &CorrelatedPair{First: c1, Second: c2, DeltaMs: delta})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].DeltaMs < pairs[j].DeltaMs
	})

	return &Comparison{
		Timeline1:       t1,
		Timeline2:       t2,
		CorrelatedPairs: pairs,
		CommonRelated:   commonRelated(t1, t2),
	}, nil
}

func commonRelated(t1, t2 *Timeline) []string {
	ids1 := make(map[string]bool)
	for _, c := range t1.Changes {
		for _, r := range c.Related {
			ids1[r.EntityID] = true
		}
	}

	seen := make(map[string]bool)
	var common []string
	for _, c := range t2.Changes {
		for _, r := range c.Related {
			if ids1[r.EntityID] && !seen[r.EntityID] {
				seen[r.EntityID] = true
				common = append(common, r.EntityID)
			}
		}
	}
	sort.Strings(common)
	return common
}
