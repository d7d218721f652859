// Package extract derives graph entities and relationships from free
// text. Extraction is pattern driven: both the entity patterns and the
// inference rules are data tables, so the engines stay pure functions
// of their inputs.
package extract

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/ping-mem/pingmem/internal/graph"
)

// ExtractInput is one context record to mine for entities.
type ExtractInput struct {
	Key      string
	Value    string
	Category string
}

// ExtractedEntity is an entity candidate with its source span.
type ExtractedEntity struct {
	Entity   *graph.Entity
	Start    int
	End      int
	Priority string
}

// ExtractResult bundles candidates with an overall confidence.
type ExtractResult struct {
	Entities   []*ExtractedEntity
	Confidence float64
}

// entityPattern maps a regex to an entity type. The first capture group
// is the entity name; a group-less pattern uses the whole match.
type entityPattern struct {
	entityType graph.EntityType
	re         *regexp.Regexp
}

// Default patterns, one cluster per entity type. Order matters: earlier
// patterns claim overlapping spans first.
var defaultEntityPatterns = []entityPattern{
	{graph.EntityCodeFile, regexp.MustCompile(`\b([\w./-]+\.(?:go|ts|tsx|js|py|rs|java|rb|c|cc|cpp|h|hpp|md|json|yaml|yml|toml|sql))\b`)},
	{graph.EntityCodeFunction, regexp.MustCompile(`\b(?:func(?:tion)?|def|fn)\s+([A-Za-z_]\w*)`)},
	{graph.EntityCodeFunction, regexp.MustCompile(`\b([a-z_]\w*)\(\)`)},
	{graph.EntityCodeClass, regexp.MustCompile(`\b(?:class|struct|interface|type)\s+([A-Z]\w*)`)},
	{graph.EntityCodeClass, regexp.MustCompile(`\b([A-Z]\w*(?:Service|Client|Manager|Controller|Handler|Repository|Store|Engine|Provider|Factory))\b`)},
	{graph.EntityError, regexp.MustCompile(`\b(\w+(?:Error|Exception)|ERR_\d{3})\b`)},
	{graph.EntityTask, regexp.MustCompile(`(?i)\b(?:TODO|FIXME|task)[:\s]+([^\n.!?]{3,80})`)},
	{graph.EntityDecision, regexp.MustCompile(`(?i)\b(?:decided(?:\s+to)?|decision)[:\s]+([^\n.!?]{3,80})`)},
	{graph.EntityEvent, regexp.MustCompile(`(?i)\b(?:released|deployed|launched|migrated|merged)\s+([^\n.!?]{3,60})`)},
	{graph.EntityPerson, regexp.MustCompile(`@([a-z][\w-]{1,30})\b`)},
	{graph.EntityOrganization, regexp.MustCompile(`\b([A-Z]\w+(?:\s+[A-Z]\w+)*\s+(?:Inc|Corp|LLC|Ltd|GmbH))\b`)},
	{graph.EntityConcept, regexp.MustCompile(`"([^"\n]{3,60})"`)},
}

// categoryPriority maps a context category to extraction priority.
func categoryPriority(category string) string {
	switch strings.ToLower(category) {
	case "error", "incident":
		return "critical"
	case "task", "decision":
		return "high"
	case "", "note", "fact":
		return "normal"
	default:
		return "normal"
	}
}

// Extractor mines entities from context records.
type Extractor struct {
	patterns []entityPattern
}

// NewExtractor builds an extractor with the default pattern table.
func NewExtractor() *Extractor {
	return &Extractor{patterns: defaultEntityPatterns}
}

// ExtractFromContext scans the value for entity mentions. Spans claimed
// by an earlier pattern are not re-claimed, and duplicate (name, type)
// candidates collapse onto the first occurrence.
func (x *Extractor) ExtractFromContext(in ExtractInput) *ExtractResult {
	priority := categoryPriority(in.Category)
	claimed := make([]bool, len(in.Value))
	seen := make(map[string]bool)

	var out []*ExtractedEntity
	for _, p := range x.patterns {
		for _, loc := range p.re.FindAllStringSubmatchIndex(in.Value, -1) {
			start, end := loc[0], loc[1]
			if len(loc) >= 4 && loc[2] >= 0 {
				start, end = loc[2], loc[3]
			}
			if spanClaimed(claimed, start, end) {
				continue
			}

			name := strings.TrimSpace(in.Value[start:end])
			if name == "" {
				continue
			}
			key := strings.ToLower(name) + "\x00" + string(p.entityType)
			if seen[key] {
				continue
			}
			seen[key] = true
			claimSpan(claimed, start, end)

			out = append(out, &ExtractedEntity{
				Entity: &graph.Entity{
					ID:   "ent-" + uuid.NewString(),
					Type: p.entityType,
					Name: name,
					Properties: graph.Properties{
						"sourceKey": in.Key,
						"start":     start,
						"end":       end,
						"priority":  priority,
					},
				},
				Start:    start,
				End:      end,
				Priority: priority,
			})
		}
	}

	return &ExtractResult{Entities: out, Confidence: extractionConfidence(out)}
}

// extractionConfidence grows with the number of distinct candidates and
// saturates below certainty.
func extractionConfidence(entities []*ExtractedEntity) float64 {
	if len(entities) == 0 {
		return 0
	}
	conf := 0.5 + 0.1*float64(len(entities))
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}

func spanClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end && i < len(claimed); i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func claimSpan(claimed []bool, start, end int) {
	for i := start; i < end && i < len(claimed); i++ {
		claimed[i] = true
	}
}
