// Package retrieval answers free-text topics with a ranked bundle of
// chunks and their associated symbols, summaries and edges. Scoring
// is additive across several candidate sources; vector similarity is
// one contributor among many and the engine degrades to lexical-only
// when no embeddings are stored.
package retrieval

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"scribe/internal/embedder"
	"scribe/internal/store"
)

// Additive weights per candidate source.
const (
	weightFTS         = 1.0
	weightVector      = 0.2
	weightPathToken   = 0.4
	weightSymbolName  = 0.3
	weightSummaryFile = 0.5
	weightEdgeHop     = 0.25
	weightKind        = 0.35
)

// Bundle is a deduplicated, score-ranked retrieval result.
type Bundle struct {
	Chunks    []store.ChunkRecord
	Summaries []store.SummaryRecord
	Symbols   []store.SymbolRecord
	Edges     []store.EdgeRecord
}

// Empty reports whether the bundle carries no evidence at all.
func (b *Bundle) Empty() bool {
	return len(b.Chunks) == 0 && len(b.Summaries) == 0 && len(b.Symbols) == 0
}

// Engine retrieves evidence for a topic. The embedder is optional.
type Engine struct {
	store  *store.Store
	emb    embedder.Embedder
	log    *zap.Logger
	radius int
}

// New creates an engine with the default one-hop edge expansion.
func New(st *store.Store, emb embedder.Embedder, log *zap.Logger) *Engine {
	return &Engine{store: st, emb: emb, log: log, radius: 1}
}

// SetRadius overrides the edge neighbor expansion depth.
func (e *Engine) SetRadius(hops int) {
	if hops >= 0 {
		e.radius = hops
	}
}

// kindHints maps topic tokens to the chunk kinds they suggest.
var kindHints = map[string][]string{
	"function": {"function"},
	"method":   {"method"},
	"class":    {"class", "type", "interface"},
}

// Retrieve ranks chunks for the topic and assembles the bundle.
func (e *Engine) Retrieve(topic string, limit int) (*Bundle, error) {
	if limit <= 0 {
		limit = 20
	}
	tokens := strings.Fields(strings.ToLower(topic))

	scores := make(map[int64]float64)
	candidates := make(map[int64]store.ChunkRecord)
	add := func(c store.ChunkRecord, w float64) {
		if _, seen := candidates[c.ID]; !seen {
			candidates[c.ID] = c
		}
		scores[c.ID] += w
	}

	// Lexical full-text hits.
	ftsChunks, err := e.store.SearchChunks(topic, limit)
	if err != nil {
		return nil, err
	}
	for _, c := range ftsChunks {
		add(c, weightFTS)
	}

	// Vector similarity, only when embeddings exist.
	if e.emb != nil {
		if err := e.addVectorHits(topic, limit, add); err != nil {
			e.log.Warn("vector retrieval unavailable", zap.Error(err))
		}
	}

	// Files whose path tokens overlap the topic.
	if err := e.addPathHits(tokens, add); err != nil {
		return nil, err
	}

	// Symbols whose names match the topic, plus edge neighbors.
	symbols, edges, err := e.addSymbolHits(topic, limit, add)
	if err != nil {
		return nil, err
	}

	// Files referenced by matching summaries.
	summaries, err := e.addSummaryHits(topic, limit, add)
	if err != nil {
		return nil, err
	}

	// Kind heuristic over the accumulated candidates.
	for id, c := range candidates {
		for _, tok := range tokens {
			if matchesKind(tok, c.Kind) {
				scores[id] += weightKind
				break
			}
		}
	}

	// Literal token presence.
	for id, c := range candidates {
		text := strings.ToLower(c.Text)
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				scores[id]++
			}
		}
	}

	ranked := make([]store.ChunkRecord, 0, len(candidates))
	for _, c := range candidates {
		ranked = append(ranked, c)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		return ranked[i].ID < ranked[j].ID
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	return &Bundle{
		Chunks:    ranked,
		Summaries: summaries,
		Symbols:   symbols,
		Edges:     edges,
	}, nil
}

func (e *Engine) addVectorHits(topic string, limit int, add func(store.ChunkRecord, float64)) error {
	has, err := e.store.HasChunkEmbeddings()
	if err != nil || !has {
		return err
	}
	vec, err := e.emb.EmbedSingle(topic)
	if err != nil {
		return err
	}
	matches, err := e.store.SearchChunkVectors(vec, halfLimit(limit))
	if err != nil {
		return err
	}
	for _, m := range matches {
		add(m.Chunk, weightVector)
	}
	return nil
}

func (e *Engine) addPathHits(tokens []string, add func(store.ChunkRecord, float64)) error {
	files, err := e.store.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		if !pathMatches(f.Path, tokens) {
			continue
		}
		chunks, err := e.store.ChunksForFile(f.ID)
		if err != nil {
			return err
		}
		for _, c := range chunks {
			add(c, weightPathToken)
		}
	}
	return nil
}

// addSymbolHits scores chunks owned by name-matched symbols, then
// expands up to radius hops across edges, scoring one representative
// chunk per neighbor's file.
func (e *Engine) addSymbolHits(topic string, limit int, add func(store.ChunkRecord, float64)) ([]store.SymbolRecord, []store.EdgeRecord, error) {
	symbols, err := e.store.SymbolsMatching(topic, halfLimit(limit))
	if err != nil {
		return nil, nil, err
	}
	for _, sym := range symbols {
		c, ok, err := e.symbolChunk(sym)
		if err != nil {
			return nil, nil, err
		}
		if ok {
			add(c, weightSymbolName)
		}
	}

	var edges []store.EdgeRecord
	seen := make(map[int64]bool, len(symbols))
	frontier := make([]store.SymbolRecord, len(symbols))
	copy(frontier, symbols)
	for _, s := range symbols {
		seen[s.ID] = true
	}
	for hop := 0; hop < e.radius && len(frontier) > 0; hop++ {
		var next []store.SymbolRecord
		for _, sym := range frontier {
			symEdges, err := e.store.EdgesForSymbol(sym.ID)
			if err != nil {
				return nil, nil, err
			}
			edges = append(edges, symEdges...)
			for _, edge := range symEdges {
				for _, id := range []int64{edge.SrcSymbolID, edge.DstSymbolID} {
					if seen[id] {
						continue
					}
					seen[id] = true
					neighbor, ok, err := e.store.SymbolByID(id)
					if err != nil {
						return nil, nil, err
					}
					if !ok {
						continue
					}
					next = append(next, neighbor)
					c, ok, err := e.symbolChunk(neighbor)
					if err != nil {
						return nil, nil, err
					}
					if ok {
						add(c, weightEdgeHop)
					}
				}
			}
		}
		symbols = append(symbols, next...)
		frontier = next
	}
	return symbols, edges, nil
}

func (e *Engine) addSummaryHits(topic string, limit int, add func(store.ChunkRecord, float64)) ([]store.SummaryRecord, error) {
	summaries, err := e.store.SearchSummaries(topic, halfLimit(limit))
	if err != nil {
		return nil, err
	}
	for _, s := range summaries {
		if s.Level != store.LevelFile {
			continue
		}
		chunks, err := e.store.ChunksForFile(s.TargetID)
		if err != nil {
			return nil, err
		}
		if len(chunks) > 0 {
			add(chunks[0], weightSummaryFile)
		}
	}
	return summaries, nil
}

// symbolChunk picks the chunk attached to the symbol, falling back to
// the first chunk of the symbol's file.
func (e *Engine) symbolChunk(sym store.SymbolRecord) (store.ChunkRecord, bool, error) {
	chunks, err := e.store.ChunksForFile(sym.FileID)
	if err != nil || len(chunks) == 0 {
		return store.ChunkRecord{}, false, err
	}
	for _, c := range chunks {
		if c.SymbolID == sym.ID {
			return c, true, nil
		}
	}
	return chunks[0], true, nil
}

func pathMatches(path string, tokens []string) bool {
	lower := strings.ToLower(path)
	parts := strings.FieldsFunc(lower, func(r rune) bool {
		return r == '/' || r == '.' || r == '_' || r == '-'
	})
	for _, tok := range tokens {
		for _, part := range parts {
			if part == tok {
				return true
			}
		}
	}
	return false
}

func matchesKind(token, kind string) bool {
	for _, k := range kindHints[token] {
		if k == kind {
			return true
		}
	}
	return false
}

func halfLimit(limit int) int {
	h := limit / 2
	if h < 5 {
		h = 5
	}
	return h
}
