package extract

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/ping-mem/pingmem/internal/graph"
)

// InferOptions bound the inference output.
type InferOptions struct {
	MaxPerPair    int     // default 3
	MinConfidence float64 // default 0.5
}

// InferredRelationship is one inferred edge between extracted entities.
type InferredRelationship struct {
	Relationship *graph.Relationship
	RuleIndex    int
}

// InferResult bundles inferred edges with an overall confidence.
type InferResult struct {
	Relationships []*InferredRelationship
	Confidence    float64
}

// inferenceRule matches ordered entity pairs against textual evidence.
// Empty type lists match any type.
type inferenceRule struct {
	relType     graph.RelationshipType
	sourceTypes []graph.EntityType
	targetTypes []graph.EntityType
	patterns    []*regexp.Regexp
	weight      float64
}

func res(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

var codeTypes = []graph.EntityType{
	graph.EntityCodeFile, graph.EntityCodeFunction, graph.EntityCodeClass,
	graph.EntityConcept, graph.EntityTask,
}

// Declaration order is the tie-break on equal weight.
var defaultInferenceRules = []inferenceRule{
	{graph.RelDependsOn, codeTypes, codeTypes,
		res(`depends\s+on`, `requires`, `relies\s+on`), 0.9},
	{graph.RelImplements, codeTypes, codeTypes,
		res(`implements`, `realizes`, `satisfies`), 0.85},
	{graph.RelUses, nil, nil,
		res(`uses`, `calls`, `invokes`, `consumes`), 0.8},
	{graph.RelCauses, nil, nil,
		res(`causes`, `leads\s+to`, `results\s+in`, `triggers`), 0.85},
	{graph.RelBlocks, nil, nil,
		res(`blocks`, `prevents`, `is\s+blocking`), 0.8},
	{graph.RelContains, nil, nil,
		res(`contains`, `includes`, `consists\s+of`), 0.7},
	{graph.RelDerivedFrom, nil, nil,
		res(`derived\s+from`, `based\s+on`, `forked\s+from`), 0.75},
	{graph.RelFollows, nil, nil,
		res(`follows`, `comes\s+after`, `succeeds`), 0.6},
	{graph.RelReferences, nil, nil,
		res(`references`, `mentions`, `points\s+to`), 0.6},
	{graph.RelRelatedTo, nil, nil,
		res(`related\s+to`, `associated\s+with`, `linked\s+to`), 0.5},
}

const proximityBonus = 0.2

// Inferencer derives relationships between entities from context text.
type Inferencer struct {
	rules []inferenceRule
}

// NewInferencer builds an inferencer with the default rule table.
func NewInferencer() *Inferencer {
	return &Inferencer{rules: defaultInferenceRules}
}

func typeAllowed(types []graph.EntityType, t graph.EntityType) bool {
	if len(types) == 0 {
		return true
	}
	for _, allowed := range types {
		if allowed == t {
			return true
		}
	}
	return false
}

type pairCandidate struct {
	rel       *graph.Relationship
	ruleIndex int
}

// Infer evaluates every ordered entity pair against the rule table.
// Direction follows the text: when both names appear, the source must
// precede the target, so "A depends on B" never also yields B -> A.
func (inf *Inferencer) Infer(entities []*graph.Entity, context string, opts InferOptions) *InferResult {
	if opts.MaxPerPair <= 0 {
		opts.MaxPerPair = 3
	}
	if opts.MinConfidence <= 0 {
		opts.MinConfidence = 0.5
	}

	lower := strings.ToLower(context)

	// pair key -> relType -> best candidate
	best := make(map[string]map[graph.RelationshipType]*pairCandidate)

	for _, src := range entities {
		for _, tgt := range entities {
			if src.ID == tgt.ID {
				continue
			}
			srcIdx := strings.Index(lower, strings.ToLower(src.Name))
			tgtIdx := strings.Index(lower, strings.ToLower(tgt.Name))
			if srcIdx < 0 && tgtIdx < 0 {
				continue
			}
			bothPresent := srcIdx >= 0 && tgtIdx >= 0
			if bothPresent && srcIdx > tgtIdx {
				continue
			}

			pairKey := src.ID + "\x00" + tgt.ID
			for ri, rule := range inf.rules {
				if !typeAllowed(rule.sourceTypes, src.Type) || !typeAllowed(rule.targetTypes, tgt.Type) {
					continue
				}

				matches := 0
				for _, re := range rule.patterns {
					matches += len(re.FindAllStringIndex(context, -1))
				}
				bonus := 0.0
				if bothPresent {
					bonus = proximityBonus
				}
				matchScore := float64(matches)/float64(len(rule.patterns)) + bonus
				if matchScore > 1 {
					matchScore = 1
				}
				if matchScore == 0 {
					continue
				}

				weight := 0.6*matchScore + 0.4*rule.weight
				if weight > 1 {
					weight = 1
				}
				if weight < 0.3 {
					weight = 0.3
				}

				byType := best[pairKey]
				if byType == nil {
					byType = make(map[graph.RelationshipType]*pairCandidate)
					best[pairKey] = byType
				}
				prev := byType[rule.relType]
				if prev == nil || weight > prev.rel.Weight ||
					(weight == prev.rel.Weight && ri < prev.ruleIndex) {
					byType[rule.relType] = &pairCandidate{
						rel: &graph.Relationship{
							ID:       "rel-" + uuid.NewString(),
							Type:     rule.relType,
							SourceID: src.ID,
							TargetID: tgt.ID,
							Weight:   weight,
						},
						ruleIndex: ri,
					}
				}
			}
		}
	}

	var all []*InferredRelationship
	for _, byType := range best {
		perPair := make([]*pairCandidate, 0, len(byType))
		for _, c := range byType {
			perPair = append(perPair, c)
		}
		sort.Slice(perPair, func(i, j int) bool {
			if perPair[i].rel.Weight != perPair[j].rel.Weight {
				return perPair[i].rel.Weight > perPair[j].rel.Weight
			}
			return perPair[i].ruleIndex < perPair[j].ruleIndex
		})
		if len(perPair) > opts.MaxPerPair {
			perPair = perPair[:opts.MaxPerPair]
		}
		for _, c := range perPair {
			if c.rel.Weight >= opts.MinConfidence {
				all = append(all, &InferredRelationship{Relationship: c.rel, RuleIndex: c.ruleIndex})
			}
		}
	}

	// Stable output order: weight desc, then rule declaration order.
	sort.Slice(all, func(i, j int) bool {
		if all[i].Relationship.Weight != all[j].Relationship.Weight {
			return all[i].Relationship.Weight > all[j].Relationship.Weight
		}
		if all[i].RuleIndex != all[j].RuleIndex {
			return all[i].RuleIndex < all[j].RuleIndex
		}
		if all[i].Relationship.SourceID != all[j].Relationship.SourceID {
			return all[i].Relationship.SourceID < all[j].Relationship.SourceID
		}
		return all[i].Relationship.TargetID < all[j].Relationship.TargetID
	})

	return &InferResult{
		Relationships: all,
		Confidence:    inferenceConfidence(all, len(entities)),
	}
}

// inferenceConfidence blends edge quantity against the pair space with
// mean edge weight, capped below certainty.
func inferenceConfidence(rels []*InferredRelationship, n int) float64 {
	if len(rels) == 0 || n < 2 {
		return 0
	}
	pairSpace := 0.25 * float64(n*(n-1)) / 2
	quantity := float64(len(rels)) / pairSpace
	if quantity > 1 {
		quantity = 1
	}
	var sum float64
	for _, r := range rels {
		sum += r.Relationship.Weight
	}
	quality := sum / float64(len(rels))

	conf := 0.4*quantity + 0.6*quality
	if conf > 0.95 {
		conf = 0.95
	}
	return conf
}
