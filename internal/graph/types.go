// Package graph provides the bi-temporal knowledge graph store.
//
// Entities and relationships carry both event time (when the fact
// occurred) and ingestion time (when it was recorded), plus a validity
// interval [valid_from, valid_to). Version chains enable point-in-time
// reads and evolution queries.
package graph

import (
	"time"
)

// EntityType is the closed set of entity types.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityConcept      EntityType = "concept"
	EntityTask         EntityType = "task"
	EntityDecision     EntityType = "decision"
	EntityEvent        EntityType = "event"
	EntityFact         EntityType = "fact"
	EntityError        EntityType = "error"
	EntityCodeFile     EntityType = "code-file"
	EntityCodeFunction EntityType = "code-function"
	EntityCodeClass    EntityType = "code-class"
	EntityCommit       EntityType = "commit"
	EntityProject      EntityType = "project"
)

// ValidEntityType reports membership in the closed set.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityPerson, EntityOrganization, EntityConcept, EntityTask,
		EntityDecision, EntityEvent, EntityFact, EntityError,
		EntityCodeFile, EntityCodeFunction, EntityCodeClass,
		EntityCommit, EntityProject:
		return true
	}
	return false
}

// RelationshipType is the closed set of relationship types.
type RelationshipType string

const (
	RelDependsOn   RelationshipType = "depends-on"
	RelImplements  RelationshipType = "implements"
	RelUses        RelationshipType = "uses"
	RelReferences  RelationshipType = "references"
	RelCauses      RelationshipType = "causes"
	RelBlocks      RelationshipType = "blocks"
	RelRelatedTo   RelationshipType = "related-to"
	RelContains    RelationshipType = "contains"
	RelFollows     RelationshipType = "follows"
	RelDerivedFrom RelationshipType = "derived-from"
)

// ValidRelationshipType reports membership in the closed set.
func ValidRelationshipType(t RelationshipType) bool {
	switch t {
	case RelDependsOn, RelImplements, RelUses, RelReferences, RelCauses,
		RelBlocks, RelRelatedTo, RelContains, RelFollows, RelDerivedFrom:
		return true
	}
	return false
}

// Properties is an untyped property bag, persisted as a JSON blob.
type Properties map[string]any

// Entity is one version of a graph entity.
type Entity struct {
	ID         string     `json:"id"`
	Type       EntityType `json:"type"`
	Name       string     `json:"name"`
	Properties Properties `json:"properties,omitempty"`

	// Bi-temporal fields.
	EventTime     time.Time  `json:"eventTime"`
	IngestionTime time.Time  `json:"ingestionTime"`
	ValidFrom     time.Time  `json:"validFrom"`
	ValidTo       *time.Time `json:"validTo,omitempty"` // nil = current
	Version       int        `json:"version"`

	// Project scoping for cascade deletes; empty for non-code entities.
	ProjectID string `json:"projectId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Current reports whether this version is the open one.
func (e *Entity) Current() bool { return e.ValidTo == nil }

// Relationship is one version of a graph edge.
type Relationship struct {
	ID         string           `json:"id"`
	Type       RelationshipType `json:"type"`
	SourceID   string           `json:"sourceId"`
	TargetID   string           `json:"targetId"`
	Properties Properties       `json:"properties,omitempty"`
	Weight     float64          `json:"weight"`

	EventTime     time.Time  `json:"eventTime"`
	IngestionTime time.Time  `json:"ingestionTime"`
	ValidFrom     time.Time  `json:"validFrom"`
	ValidTo       *time.Time `json:"validTo,omitempty"`
	Version       int        `json:"version"`

	ProjectID string `json:"projectId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Triple is one (source, type, target) edge in a neighborhood.
type Triple struct {
	SourceID   string           `json:"sourceId"`
	SourceName string           `json:"sourceName"`
	Type       RelationshipType `json:"type"`
	TargetID   string           `json:"targetId"`
	TargetName string           `json:"targetName"`
	Weight     float64          `json:"weight"`
}

// EntityPatch updates selected fields of an entity; nil fields are kept.
type EntityPatch struct {
	Name       *string
	Type       *EntityType
	Properties Properties
}

// Stats describes the graph store state.
type Stats struct {
	Entities      int `json:"entities"`
	Relationships int `json:"relationships"`
}
