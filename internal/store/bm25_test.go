package store

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBM25AddAndSearch(t *testing.T) {
	idx := NewBM25Index()
	now := time.Now()

	idx.Add("m1", "s1", "machine learning models", now, nil)
	idx.Add("m2", "s1", "deep learning networks", now, nil)
	idx.Add("m3", "s2", "cooking pasta recipes", now, nil)

	hits := idx.Search("machine learning", BM25SearchOptions{Limit: 10})
	require.NotEmpty(t, hits)
	assert.Equal(t, "m1", hits[0].Doc.MemoryID)

	// m3 shares no query terms.
	for _, h := range hits {
		assert.NotEqual(t, "m3", h.Doc.MemoryID)
	}
}

func TestBM25SessionFilterRestrictsCandidates(t *testing.T) {
	idx := NewBM25Index()
	now := time.Now()

	idx.Add("m1", "s1", "graph traversal", now, nil)
	idx.Add("m2", "s2", "graph traversal", now, nil)

	hits := idx.Search("graph", BM25SearchOptions{Limit: 10, SessionID: "s2"})
	require.Len(t, hits, 1)
	assert.Equal(t, "m2", hits[0].Doc.MemoryID)
}

func TestBM25EmptyQueryReturnsEmpty(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("m1", "s1", "content here", time.Now(), nil)

	assert.Empty(t, idx.Search("", BM25SearchOptions{Limit: 10}))
	assert.Empty(t, idx.Search("a ! ?", BM25SearchOptions{Limit: 10}))
}

func TestBM25AddRemoveRestoresState(t *testing.T) {
	idx := NewBM25Index()
	now := time.Now()

	idx.Add("m1", "s1", "stable baseline document", now, nil)
	before := idx.Stats()

	idx.Add("m2", "s1", "transient document words", now, nil)
	require.True(t, idx.Remove("m2"))

	after := idx.Stats()
	assert.Equal(t, before.Docs, after.Docs)
	assert.Equal(t, before.Terms, after.Terms)
	assert.InDelta(t, before.AvgLen, after.AvgLen, 1e-12)

	assert.False(t, idx.Remove("m2"))
}

func TestBM25ReAddIsIdempotent(t *testing.T) {
	idx := NewBM25Index()
	now := time.Now()

	idx.Add("m1", "s1", "repeated content words", now, nil)
	idx.Add("m1", "s1", "repeated content words", now, nil)

	stats := idx.Stats()
	assert.Equal(t, 1, stats.Docs)

	hits := idx.Search("repeated", BM25SearchOptions{Limit: 10})
	require.Len(t, hits, 1)
}

func TestBM25ScoreFormula(t *testing.T) {
	idx := NewBM25Index()
	now := time.Now()

	// Single doc, single query term appearing once: the closed form is
	// idf * (k1+1) / (1 + k1) with |d| == avgLen, which reduces to idf.
	idx.Add("m1", "s1", "unique words here", now, nil)

	hits := idx.Search("unique", BM25SearchOptions{Limit: 1})
	require.Len(t, hits, 1)

	idf := math.Log((1.0-1.0+0.5)/(1.0+0.5) + 1)
	assert.InDelta(t, idf, hits[0].Score, 1e-9)
}

func TestBM25Tokenizer(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"a bc d", []string{"bc"}},
		{"CamelCase under_score", []string{"camelcase", "under_score"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenizeBM25(tt.in), tt.in)
	}
}

func TestBM25Clear(t *testing.T) {
	idx := NewBM25Index()
	idx.Add("m1", "s1", "something", time.Now(), nil)
	idx.Clear()

	stats := idx.Stats()
	assert.Zero(t, stats.Docs)
	assert.Zero(t, stats.Terms)
	assert.Zero(t, stats.AvgLen)
}
