package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ranking(mode Mode, ids ...string) modeRanking {
	cands := make([]candidate, len(ids))
	for i, id := range ids {
		cands[i] = candidate{memoryID: id, score: 1.0 / float64(i+1)}
	}
	return modeRanking{mode: mode, candidates: cands}
}

func TestFusionHybridOrdering(t *testing.T) {
	// Semantic ranks [A,B,C,D], keyword ranks [B,A,D,C]. With weights
	// 0.5/0.3, A's sum 0.5/61+0.3/62 beats B's 0.5/62+0.3/61.
	rankings := []modeRanking{
		ranking(ModeSemantic, "mem-001", "mem-002", "mem-003", "mem-004"),
		ranking(ModeKeyword, "mem-002", "mem-001", "mem-004", "mem-003"),
	}
	out := fuse(rankings, Weights{Semantic: 0.5, Keyword: 0.3}, 60)
	require.Len(t, out, 4)
	assert.Equal(t, "mem-001", out[0].memoryID)
	assert.Equal(t, "mem-002", out[1].memoryID)
}

func TestFusionScoreNormalization(t *testing.T) {
	out := fuse([]modeRanking{
		ranking(ModeSemantic, "m1"),
	}, Weights{Semantic: 1}, 60)
	require.Len(t, out, 1)

	// Single contributor at rank 1: (w/(K+1))/w * K = K/(K+1).
	assert.InDelta(t, 60.0/61.0, out[0].hybridScore, 1e-9)
	assert.LessOrEqual(t, out[0].hybridScore, 1.0)
}

func TestFusionZeroContributorsYieldsNothing(t *testing.T) {
	out := fuse([]modeRanking{
		ranking(ModeGraph, "m1"),
	}, Weights{Semantic: 1, Keyword: 1, Graph: 0}, 60)
	assert.Empty(t, out)
}

func TestFusionRecordsContributingModes(t *testing.T) {
	rankings := []modeRanking{
		ranking(ModeSemantic, "m1", "m2"),
		ranking(ModeKeyword, "m1"),
	}
	out := fuse(rankings, Weights{Semantic: 0.5, Keyword: 0.5}, 60)
	require.Len(t, out, 2)

	assert.Equal(t, "m1", out[0].memoryID)
	assert.ElementsMatch(t, []Mode{ModeSemantic, ModeKeyword}, out[0].modes)
	assert.Len(t, out[0].modeScores, 2)
	assert.ElementsMatch(t, []Mode{ModeSemantic}, out[1].modes)
}

func TestFusionSingleModePreservesOrder(t *testing.T) {
	out := fuse([]modeRanking{
		ranking(ModeKeyword, "a", "b", "c"),
	}, Weights{Keyword: 1}, 60)
	require.Len(t, out, 3)
	assert.Equal(t, "a", out[0].memoryID)
	assert.Equal(t, "b", out[1].memoryID)
	assert.Equal(t, "c", out[2].memoryID)
}

func TestFusionDeterministicTieBreak(t *testing.T) {
	// Same rank in symmetric modes: equal score, id ascending.
	rankings := []modeRanking{
		ranking(ModeSemantic, "b", "a"),
		ranking(ModeKeyword, "a", "b"),
	}
	out := fuse(rankings, Weights{Semantic: 0.5, Keyword: 0.5}, 60)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].memoryID)
	assert.Equal(t, "b", out[1].memoryID)
	assert.Equal(t, out[0].hybridScore, out[1].hybridScore)
}

func TestFusionEmptyRankings(t *testing.T) {
	assert.Empty(t, fuse(nil, DefaultWeights, 60))
}
