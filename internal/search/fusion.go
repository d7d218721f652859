package search

import (
	"sort"
)

// DefaultRRFConstant is the standard RRF smoothing parameter; 60 is
// the widely used value.
const DefaultRRFConstant = 60

// candidate is one entry of a per-mode ranking.
type candidate struct {
	memoryID string
	score    float64 // mode-native score at this rank
}

// modeRanking is the ordered output of one search mode.
type modeRanking struct {
	mode       Mode
	candidates []candidate
}

type fused struct {
	memoryID    string
	hybridScore float64
	modes       []Mode
	modeScores  map[Mode]float64
}

// fuse combines per-mode rankings with weighted RRF.
//
// For each memory id: rrf = Σ weight[mode]/(K + rank), totalW = Σ
// weight[mode] over contributing modes, and the final score is
// min(1, (rrf/totalW)·K). Ranks are 1-indexed. Ids with no contributor
// never appear.
func fuse(rankings []modeRanking, weights Weights, k int) []fused {
	if k <= 0 {
		k = DefaultRRFConstant
	}

	type acc struct {
		rrf    float64
		totalW float64
		modes  []Mode
		scores map[Mode]float64
	}
	byID := make(map[string]*acc)

	for _, ranking := range rankings {
		w := weights.forMode(ranking.mode)
		if w <= 0 {
			continue
		}
		for i, c := range ranking.candidates {
			a := byID[c.memoryID]
			if a == nil {
				a = &acc{scores: make(map[Mode]float64)}
				byID[c.memoryID] = a
			}
			a.rrf += w / float64(k+i+1)
			a.totalW += w
			a.modes = append(a.modes, ranking.mode)
			a.scores[ranking.mode] = c.score
		}
	}

	out := make([]fused, 0, len(byID))
	for id, a := range byID {
		if a.totalW == 0 {
			continue
		}
		score := a.rrf / a.totalW * float64(k)
		if score > 1 {
			score = 1
		}
		out = append(out, fused{
			memoryID:    id,
			hybridScore: score,
			modes:       a.modes,
			modeScores:  a.scores,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].hybridScore != out[j].hybridScore {
			return out[i].hybridScore > out[j].hybridScore
		}
		return out[i].memoryID < out[j].memoryID
	})
	return out
}
