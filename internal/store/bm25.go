package store

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
)

// BM25 parameters.
const (
	BM25K1 = 1.5
	BM25B  = 0.75
)

// BM25Doc is one indexed document.
type BM25Doc struct {
	MemoryID  string
	SessionID string
	Content   string
	Metadata  map[string]any
	IndexedAt time.Time

	// length is the token count; terms the per-term frequencies.
	length int
	terms  map[string]int
}

// BM25Hit is a scored keyword search result.
type BM25Hit struct {
	Doc   *BM25Doc
	Score float64
}

// BM25SearchOptions filter and bound a keyword search.
type BM25SearchOptions struct {
	Limit     int
	SessionID string
}

// BM25Stats describes the index state.
type BM25Stats struct {
	Docs   int     `json:"docs"`
	Terms  int     `json:"terms"`
	AvgLen float64 `json:"avg_len"`
}

// BM25Index is the process-local sparse keyword index.
//
// Readers run concurrently; writers (Add, Remove, Clear) are exclusive.
// Document frequency and average length are maintained atomically with
// each mutation, so re-adding the same memory ID is idempotent.
type BM25Index struct {
	mu       sync.RWMutex
	docs     map[string]*BM25Doc       // memory ID -> doc
	postings map[string]map[string]int // term -> memory ID -> tf
	totalLen int
}

// NewBM25Index creates an empty index.
func NewBM25Index() *BM25Index {
	return &BM25Index{
		docs:     make(map[string]*BM25Doc),
		postings: make(map[string]map[string]int),
	}
}

// tokenizeBM25 lowercases, maps non-word runes to spaces, splits, and
// drops tokens of length <= 1.
func tokenizeBM25(text string) []string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	fields := strings.Fields(b.String())
	tokens := fields[:0]
	for _, tok := range fields {
		if len(tok) > 1 {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Add indexes a document, replacing any previous document with the same
// memory ID.
func (idx *BM25Index) Add(memoryID, sessionID, content string, indexedAt time.Time, metadata map[string]any) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.removeLocked(memoryID)

	tokens := tokenizeBM25(content)
	terms := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		terms[tok]++
	}

	doc := &BM25Doc{
		MemoryID:  memoryID,
		SessionID: sessionID,
		Content:   content,
		Metadata:  metadata,
		IndexedAt: indexedAt,
		length:    len(tokens),
		terms:     terms,
	}
	idx.docs[memoryID] = doc
	idx.totalLen += doc.length

	for term, tf := range terms {
		posting := idx.postings[term]
		if posting == nil {
			posting = make(map[string]int)
			idx.postings[term] = posting
		}
		posting[memoryID] = tf
	}
}

// Remove deletes a document. Returns true if it existed.
func (idx *BM25Index) Remove(memoryID string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.removeLocked(memoryID)
}

func (idx *BM25Index) removeLocked(memoryID string) bool {
	doc, exists := idx.docs[memoryID]
	if !exists {
		return false
	}

	for term := range doc.terms {
		posting := idx.postings[term]
		delete(posting, memoryID)
		if len(posting) == 0 {
			delete(idx.postings, term)
		}
	}
	idx.totalLen -= doc.length
	delete(idx.docs, memoryID)
	return true
}

// Search scores candidates for the query and returns the top hits.
// A session filter restricts candidates before scoring.
func (idx *BM25Index) Search(query string, opts BM25SearchOptions) []*BM25Hit {
	tokens := tokenizeBM25(query)
	if len(tokens) == 0 {
		return []*BM25Hit{}
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return []*BM25Hit{}
	}
	avgLen := float64(idx.totalLen) / float64(n)

	scores := make(map[string]float64)
	for _, term := range tokens {
		posting, exists := idx.postings[term]
		if !exists {
			continue
		}

		df := len(posting)
		idf := math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)

		for memoryID, tf := range posting {
			doc := idx.docs[memoryID]
			if opts.SessionID != "" && doc.SessionID != opts.SessionID {
				continue
			}
			norm := float64(tf) + BM25K1*(1-BM25B+BM25B*float64(doc.length)/avgLen)
			scores[memoryID] += idf * float64(tf) * (BM25K1 + 1) / norm
		}
	}

	hits := make([]*BM25Hit, 0, len(scores))
	for memoryID, score := range scores {
		hits = append(hits, &BM25Hit{Doc: idx.docs[memoryID], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Doc.MemoryID < hits[j].Doc.MemoryID
	})
	if len(hits) > opts.Limit {
		hits = hits[:opts.Limit]
	}
	return hits
}

// Get returns an indexed document by memory ID.
func (idx *BM25Index) Get(memoryID string) (*BM25Doc, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	doc, exists := idx.docs[memoryID]
	return doc, exists
}

// Stats returns document count, distinct term count and average length.
func (idx *BM25Index) Stats() BM25Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	stats := BM25Stats{
		Docs:  len(idx.docs),
		Terms: len(idx.postings),
	}
	if stats.Docs > 0 {
		stats.AvgLen = float64(idx.totalLen) / float64(stats.Docs)
	}
	return stats
}

// Clear empties the index.
func (idx *BM25Index) Clear() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.docs = make(map[string]*BM25Doc)
	idx.postings = make(map[string]map[string]int)
	idx.totalLen = 0
}
