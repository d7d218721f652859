package search

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ping-mem/pingmem/internal/config"
	"github.com/ping-mem/pingmem/internal/embed"
	pingerr "github.com/ping-mem/pingmem/internal/errors"
	"github.com/ping-mem/pingmem/internal/graph"
	"github.com/ping-mem/pingmem/internal/store"
)

// Engine is the hybrid retrieval engine over the BM25 index, the
// vector store, and the knowledge graph.
type Engine struct {
	bm25     *store.BM25Index
	vectors  store.VectorStore
	graph    *graph.Store
	embedder embed.Embedder
	cfg      config.SearchConfig

	mu     sync.RWMutex
	closed bool
}

// NewEngine wires the retrieval stores together. graph may be nil when
// no graph store is configured; graph mode is then unavailable.
func NewEngine(bm25 *store.BM25Index, vectors store.VectorStore, g *graph.Store, embedder embed.Embedder, cfg config.SearchConfig) *Engine {
	return &Engine{
		bm25:     bm25,
		vectors:  vectors,
		graph:    g,
		embedder: embedder,
		cfg:      cfg,
	}
}

// IndexDocument indexes a memory for retrieval. The BM25 write happens
// first and is not rolled back when embedding or the vector upsert
// fails; the memory stays keyword-searchable and the call reports the
// failure so the caller can retry.
func (e *Engine) IndexDocument(ctx context.Context, memoryID, sessionID, content string, indexedAt time.Time, category string, metadata map[string]any) error {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return pingerr.Internal("search engine is closed", nil)
	}
	e.mu.RUnlock()

	e.bm25.Add(memoryID, sessionID, content, indexedAt, metadata)

	vector, err := e.embedder.Embed(ctx, content)
	if err != nil {
		return pingerr.Wrap(pingerr.ErrCodeIndexing, err)
	}
	rec := &store.VectorRecord{
		MemoryID:  memoryID,
		SessionID: sessionID,
		Content:   content,
		Category:  category,
		Metadata:  metadata,
		Vector:    vector,
		IndexedAt: indexedAt,
	}
	if err := e.vectors.Store(ctx, rec); err != nil {
		return pingerr.Wrap(pingerr.ErrCodeIndexing, err)
	}
	return nil
}

// RemoveDocument removes a memory from both stores. Returns true if
// either store held it.
func (e *Engine) RemoveDocument(ctx context.Context, memoryID string) (bool, error) {
	removed := e.bm25.Remove(memoryID)
	ok, err := e.vectors.Delete(ctx, memoryID)
	if err != nil {
		return removed, err
	}
	return removed || ok, nil
}

// availableModes resolves the modes for one query. A nil Modes slice
// means all available; an explicit empty slice disables every mode.
func (e *Engine) availableModes(opts Options) []Mode {
	if opts.Modes != nil {
		return opts.Modes
	}
	modes := []Mode{ModeSemantic, ModeKeyword}
	if e.graph != nil {
		modes = append(modes, ModeGraph)
	}
	return modes
}

// Search runs the enabled modes concurrently and fuses their rankings.
// A failing mode fails the whole query with the mode attribution.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*HybridResult, error) {
	modes := e.availableModes(opts)
	if len(modes) == 0 {
		return []*HybridResult{}, nil
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}
	if e.cfg.MaxResults > 0 && opts.Limit > e.cfg.MaxResults {
		opts.Limit = e.cfg.MaxResults
	}
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.Timeout)
		defer cancel()
	}

	weights := DefaultWeights
	if e.cfg.SemanticWeight > 0 || e.cfg.KeywordWeight > 0 || e.cfg.GraphWeight > 0 {
		weights = Weights{
			Semantic: e.cfg.SemanticWeight,
			Keyword:  e.cfg.KeywordWeight,
			Graph:    e.cfg.GraphWeight,
		}
	}
	if opts.Weights != nil {
		weights = *opts.Weights
	}
	weights = normalizeWeights(weights, modes)

	overFetch := 2 * opts.Limit
	rankings := make([]modeRanking, len(modes))
	graphCtx := make(map[string]*GraphContext)
	var graphMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for i, mode := range modes {
		g.Go(func() error {
			var (
				cands []candidate
				err   error
			)
			switch mode {
			case ModeSemantic:
				cands, err = e.searchSemantic(gctx, query, opts, overFetch)
			case ModeKeyword:
				cands = e.searchKeyword(query, opts, overFetch)
			case ModeGraph:
				// Without a seed entity, graph mode contributes nothing.
				if opts.GraphEntityID == "" || e.graph == nil {
					return nil
				}
				var contexts map[string]*GraphContext
				cands, contexts, err = e.searchGraph(gctx, opts, overFetch)
				if err == nil {
					graphMu.Lock()
					for id, gc := range contexts {
						graphCtx[id] = gc
					}
					graphMu.Unlock()
				}
			}
			if err != nil {
				return pingerr.SearchMode(string(mode), err)
			}
			rankings[i] = modeRanking{mode: mode, candidates: cands}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fusedResults := fuse(rankings, weights, e.cfg.RRFConstant)

	results := make([]*HybridResult, 0, opts.Limit)
	for _, f := range fusedResults {
		if f.hybridScore < opts.Threshold {
			continue
		}
		r := &HybridResult{
			MemoryID:    f.memoryID,
			HybridScore: f.hybridScore,
			SearchModes: f.modes,
			ModeScores:  f.modeScores,
			Graph:       graphCtx[f.memoryID],
		}
		e.attachDocument(r)
		results = append(results, r)
		if len(results) == opts.Limit {
			break
		}
	}
	return results, nil
}

// attachDocument fills content and session from the BM25 index, which
// holds every indexed memory.
func (e *Engine) attachDocument(r *HybridResult) {
	if doc, ok := e.bm25.Get(r.MemoryID); ok {
		r.Content = doc.Content
		r.SessionID = doc.SessionID
		r.Metadata = doc.Metadata
	}
}

func (e *Engine) searchSemantic(ctx context.Context, query string, opts Options, overFetch int) ([]candidate, error) {
	vector, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := e.vectors.Search(ctx, vector, store.VectorSearchOptions{
		Limit:     overFetch,
		Threshold: 0,
		SessionID: opts.SessionID,
		Category:  opts.Category,
	})
	if err != nil {
		return nil, err
	}
	cands := make([]candidate, len(hits))
	for i, h := range hits {
		cands[i] = candidate{memoryID: h.Record.MemoryID, score: h.Similarity}
	}
	return cands, nil
}

func (e *Engine) searchKeyword(query string, opts Options, overFetch int) []candidate {
	hits := e.bm25.Search(query, store.BM25SearchOptions{
		Limit:     overFetch,
		SessionID: opts.SessionID,
	})
	cands := make([]candidate, len(hits))
	for i, h := range hits {
		cands[i] = candidate{memoryID: h.Doc.MemoryID, score: h.Score}
	}
	return cands
}

// searchGraph walks the neighborhood of the seed entity breadth-first
// up to GraphDepth hops and emits the memories referenced by each
// entity in discovery order. Closer hops rank higher.
func (e *Engine) searchGraph(ctx context.Context, opts Options, overFetch int) ([]candidate, map[string]*GraphContext, error) {
	depth := opts.GraphDepth
	if depth <= 0 {
		depth = 1
	}

	type visit struct {
		id   string
		hops int
	}
	visited := map[string]bool{opts.GraphEntityID: true}
	queue := []visit{{id: opts.GraphEntityID, hops: 0}}

	var cands []candidate
	contexts := make(map[string]*GraphContext)
	seenMemory := make(map[string]bool)

	emit := func(entityID string, hops int, relTypes []string, related []string) error {
		ent, err := e.graph.GetEntity(ctx, entityID)
		if err != nil {
			if pingerr.IsNotFound(err) {
				return nil
			}
			return err
		}
		for _, memoryID := range memoryIDs(ent) {
			if seenMemory[memoryID] || len(cands) >= overFetch {
				continue
			}
			seenMemory[memoryID] = true
			// Hop distance dominates; entity weight breaks ties upstream.
			cands = append(cands, candidate{memoryID: memoryID, score: 1.0 / float64(1+hops)})
			contexts[memoryID] = &GraphContext{
				RelatedEntityIDs:  related,
				RelationshipTypes: relTypes,
				HopDistance:       hops,
			}
		}
		return nil
	}

	if err := emit(opts.GraphEntityID, 0, nil, nil); err != nil {
		return nil, nil, err
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= depth {
			continue
		}
		rels, err := e.graph.FindByEntity(ctx, cur.id)
		if err != nil {
			return nil, nil, err
		}
		for _, r := range rels {
			neighbor := r.TargetID
			if neighbor == cur.id {
				neighbor = r.SourceID
			}
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			err := emit(neighbor, cur.hops+1,
				[]string{string(r.Type)},
				[]string{cur.id})
			if err != nil {
				return nil, nil, err
			}
			queue = append(queue, visit{id: neighbor, hops: cur.hops + 1})
		}
	}
	return cands, contexts, nil
}

// memoryIDs reads the memory references off an entity.
func memoryIDs(e *graph.Entity) []string {
	raw, ok := e.Properties["memory_ids"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// normalizeWeights rescales the enabled modes' weights to sum to 1.
// All-zero weights fall back to the defaults.
func normalizeWeights(w Weights, modes []Mode) Weights {
	var sum float64
	for _, m := range modes {
		sum += w.forMode(m)
	}
	if sum <= 0 {
		w = DefaultWeights
		sum = 0
		for _, m := range modes {
			sum += w.forMode(m)
		}
		if sum <= 0 {
			return w
		}
	}
	out := Weights{}
	for _, m := range modes {
		switch m {
		case ModeSemantic:
			out.Semantic = w.Semantic / sum
		case ModeKeyword:
			out.Keyword = w.Keyword / sum
		case ModeGraph:
			out.Graph = w.Graph / sum
		}
	}
	return out
}

// Close marks the engine closed for writes.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
