package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedIsStable(t *testing.T) {
	e := NewDeterministicEmbedder(768)
	defer e.Close()

	a, err := e.Embed(context.Background(), "The quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "The quick brown fox")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Len(t, a, 768)
}

func TestDeterministicEmbedIsUnitNorm(t *testing.T) {
	e := NewDeterministicEmbedder(768)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "machine learning retrieval pipeline")
	require.NoError(t, err)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-6)
}

func TestDeterministicEmbedEmptyIsZeroVector(t *testing.T) {
	e := NewDeterministicEmbedder(16)
	defer e.Close()

	for _, text := range []string{"", "   ", "!!! ???"} {
		vec, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		for _, v := range vec {
			assert.Zero(t, v, "text %q", text)
		}
	}
}

func TestDeterministicBucketAssignment(t *testing.T) {
	// Reproduce the bucket math for a single token and verify the vector
	// has exactly one non-zero component at that index.
	const dims = 32
	e := NewDeterministicEmbedder(dims)
	defer e.Close()

	sum := sha256.Sum256([]byte("hello"))
	h := int32(binary.BigEndian.Uint32(sum[:4]))
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	want := abs % dims

	vec, err := e.Embed(context.Background(), "hello")
	require.NoError(t, err)

	for i, v := range vec {
		if int64(i) == want {
			assert.NotZero(t, v)
			if h >= 0 {
				assert.Positive(t, v)
			} else {
				assert.Negative(t, v)
			}
		} else {
			assert.Zero(t, v, "index %d", i)
		}
	}
}

func TestTokenizeWords(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Hello, World!", []string{"hello", "world"}},
		{"foo_bar baz-qux", []string{"foo_bar", "baz", "qux"}},
		{"  a  b  ", []string{"a", "b"}},
		{"", nil},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tokenizeWords(tt.in), tt.in)
	}
}

func TestNgramsInfluenceVector(t *testing.T) {
	e := NewDeterministicEmbedder(768)
	defer e.Close()

	// Same multiset of tokens in a different order must differ, because
	// bigrams and trigrams encode order.
	a, err := e.Embed(context.Background(), "alpha beta gamma")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "gamma beta alpha")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestEmbedBatch(t *testing.T) {
	e := NewDeterministicEmbedder(64)
	defer e.Close()

	vecs, err := e.EmbedBatch(context.Background(), []string{"one", "two"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	single, err := e.Embed(context.Background(), "one")
	require.NoError(t, err)
	assert.Equal(t, single, vecs[0])

	empty, err := e.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestClosedEmbedderRejects(t *testing.T) {
	e := NewDeterministicEmbedder(16)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "x")
	assert.Error(t, err)
	assert.False(t, e.Available(context.Background()))
}
