package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"unicode"
)

// maxNgram is the largest n-gram order hashed into the vector.
const maxNgram = 3

// DeterministicEmbedder generates embeddings by feature hashing over
// 1..3-grams. It is a pure function of its input: the same text produces
// byte-identical vectors on every machine regardless of endianness, because
// the hash is read in big-endian order from SHA-256 output.
type DeterministicEmbedder struct {
	dims int

	mu     sync.RWMutex
	closed bool
}

// NewDeterministicEmbedder creates a deterministic embedder.
// dims <= 0 selects DefaultDimensions.
func NewDeterministicEmbedder(dims int) *DeterministicEmbedder {
	if dims <= 0 {
		dims = DefaultDimensions
	}
	return &DeterministicEmbedder{dims: dims}
}

// Embed generates the embedding for a single text.
func (e *DeterministicEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return e.vectorize(text), nil
}

// vectorize computes the feature-hashed vector.
//
// Each n-gram is hashed with SHA-256; the first four bytes, read as a signed
// big-endian 32-bit integer, choose the bucket (|h| mod dims) and the sign
// of the increment.
func (e *DeterministicEmbedder) vectorize(text string) []float32 {
	vector := make([]float32, e.dims)

	tokens := tokenizeWords(text)
	if len(tokens) == 0 {
		return vector
	}

	for n := 1; n <= maxNgram; n++ {
		for i := 0; i+n <= len(tokens); i++ {
			ngram := strings.Join(tokens[i:i+n], "_")
			sum := sha256.Sum256([]byte(ngram))
			h := int32(binary.BigEndian.Uint32(sum[:4]))

			// int64 widening keeps |math.MinInt32| well-defined.
			abs := int64(h)
			if abs < 0 {
				abs = -abs
			}
			idx := abs % int64(e.dims)

			if h >= 0 {
				vector[idx] += 1
			} else {
				vector[idx] -= 1
			}
		}
	}

	return normalizeVector(vector)
}

// tokenizeWords lowercases, replaces non-word runes with spaces, collapses
// whitespace, and splits. Empty tokens are dropped.
func tokenizeWords(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

// EmbedBatch generates embeddings for multiple texts.
func (e *DeterministicEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		emb, err := e.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("failed to embed text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Dimensions returns the embedding dimension.
func (e *DeterministicEmbedder) Dimensions() int { return e.dims }

// ModelName returns the model identifier.
func (e *DeterministicEmbedder) ModelName() string {
	return fmt.Sprintf("deterministic-%d", e.dims)
}

// Available reports readiness (always true unless closed).
func (e *DeterministicEmbedder) Available(_ context.Context) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.closed
}

// Close releases resources.
func (e *DeterministicEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

var _ Embedder = (*DeterministicEmbedder)(nil)
