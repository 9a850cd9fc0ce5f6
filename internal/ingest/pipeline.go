// Package ingest turns a source tree into file, chunk, symbol and edge
// records. Files flow through concurrent read and parse stages; all
// writes funnel through a single store goroutine.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scribe/internal/embedder"
	"scribe/internal/parser"
	"scribe/internal/store"
	"scribe/internal/walker"
)

const embedBatchSize = 32

// Stats reports ingestion results.
type Stats struct {
	FilesTotal    int
	FilesIngested int
	FilesSkipped  int
	ChunksTotal   int
	SymbolsTotal  int
	EdgesTotal    int
}

// Pipeline ingests a source tree into a store. The embedder is
// optional; without one, chunks are stored without vectors.
type Pipeline struct {
	store   *store.Store
	adapter *parser.Adapter
	emb     embedder.Embedder
	log     *zap.Logger
	workers int
}

// New creates a pipeline. workers <= 0 means one per CPU.
func New(st *store.Store, adapter *parser.Adapter, emb embedder.Embedder, log *zap.Logger, workers int) *Pipeline {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pipeline{store: st, adapter: adapter, emb: emb, log: log, workers: workers}
}

// fileWork is a file that needs to be (re-)ingested.
type fileWork struct {
	info walker.FileInfo
	hash string
	lang string
	src  []byte
}

// parsedFile carries everything extracted from one file.
type parsedFile struct {
	work       fileWork
	parsed     bool
	chunks     []parser.Chunk
	symbols    []parser.Symbol
	edges      []parser.Edge
	vectors    [][]float32
	symVectors [][]float32
}

// Run walks root, ingests every eligible file, then resolves imports
// across files and registers modules.
func (p *Pipeline) Run(ctx context.Context, root string) (*Stats, error) {
	var stats Stats
	var filesTotal atomic.Int64

	fileCh, walkErrCh := walker.Walk(ctx, root)

	// Stage 2: read + hash, skipping binaries and unchanged files.
	workCh := make(chan fileWork, p.workers)
	hashGrp, hashCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		hashGrp.Go(func() error {
			for fi := range fileCh {
				filesTotal.Add(1)
				src, err := os.ReadFile(fi.Path)
				if err != nil {
					p.log.Warn("read failed", zap.String("path", fi.RelPath), zap.Error(err))
					continue
				}
				if walker.IsBinary(src) {
					continue
				}
				h := sha256.Sum256(src)
				hash := hex.EncodeToString(h[:])

				existing, err := p.store.FileHash(fi.RelPath)
				if err == nil && existing == hash {
					continue // unchanged
				}

				select {
				case workCh <- fileWork{info: fi, hash: hash, lang: p.detectLang(fi.Path), src: src}:
				case <-hashCtx.Done():
					return hashCtx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		hashGrp.Wait()
		close(workCh)
	}()

	// Stage 3: parse.
	parsedCh := make(chan parsedFile, p.workers)
	parseGrp, parseCtx := errgroup.WithContext(ctx)
	for i := 0; i < p.workers; i++ {
		parseGrp.Go(func() error {
			for w := range workCh {
				pf, err := p.parseFile(parseCtx, w)
				if err != nil {
					p.log.Warn("parse failed", zap.String("path", w.info.RelPath), zap.Error(err))
					continue
				}
				select {
				case parsedCh <- pf:
				case <-parseCtx.Done():
					return parseCtx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		parseGrp.Wait()
		close(parsedCh)
	}()

	// Stage 4: embed (single worker, sub-batches). After a failure the
	// loop keeps draining parsedCh so the parse workers never block on a
	// full channel; otherwise backpressure would propagate to the walker
	// and the error channel read below would never return.
	embeddedCh := make(chan parsedFile, 4)
	var embedWg sync.WaitGroup
	var embedErr error
	embedWg.Add(1)
	go func() {
		defer embedWg.Done()
		defer close(embeddedCh)
		for pf := range parsedCh {
			if embedErr != nil {
				continue
			}
			if p.emb != nil && len(pf.chunks) > 0 {
				vecs, err := p.embedChunks(pf.chunks)
				if err != nil {
					p.log.Error("embed failed", zap.String("path", pf.work.info.RelPath), zap.Error(err))
					embedErr = err
					continue
				}
				pf.vectors = vecs
			}
			if p.emb != nil && len(pf.symbols) > 0 {
				vecs, err := p.embedSymbols(pf.symbols)
				if err != nil {
					p.log.Error("symbol embed failed", zap.String("path", pf.work.info.RelPath), zap.Error(err))
					embedErr = err
					continue
				}
				pf.symVectors = vecs
			}
			embeddedCh <- pf
		}
	}()

	// Stage 5: store (single writer).
	var storeErr error
	var storeWg sync.WaitGroup
	storeWg.Add(1)
	go func() {
		defer storeWg.Done()
		for pf := range embeddedCh {
			if err := p.storeFile(pf, &stats); err != nil {
				p.log.Error("store failed", zap.String("path", pf.work.info.RelPath), zap.Error(err))
				storeErr = err
				continue
			}
			stats.FilesIngested++
		}
	}()

	storeWg.Wait()
	embedWg.Wait()

	if err := <-walkErrCh; err != nil {
		return nil, err
	}
	if err := hashGrp.Wait(); err != nil {
		return &stats, err
	}
	if err := parseGrp.Wait(); err != nil {
		return &stats, err
	}
	if embedErr != nil {
		return &stats, embedErr
	}
	if storeErr != nil {
		return &stats, storeErr
	}

	resolved, err := p.ResolveImports()
	if err != nil {
		return &stats, err
	}
	stats.EdgesTotal += resolved

	if err := p.RegisterModules(); err != nil {
		return &stats, err
	}

	stats.FilesTotal = int(filesTotal.Load())
	stats.FilesSkipped = stats.FilesTotal - stats.FilesIngested
	return &stats, nil
}

// textExtensions maps non-code extensions to a language label for the
// paragraph chunker.
var textExtensions = map[string]string{
	"md":       "markdown",
	"markdown": "markdown",
	"rst":      "text",
	"txt":      "text",
}

// isProse reports whether a language label came from textExtensions,
// meaning blank lines delimit meaningful paragraphs.
func isProse(lang string) bool {
	for _, v := range textExtensions {
		if v == lang {
			return true
		}
	}
	return false
}

func (p *Pipeline) detectLang(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if lang, ok := p.adapter.Registry().Lookup(path); ok {
		return lang.Name
	}
	if lang, ok := textExtensions[ext]; ok {
		return lang
	}
	if ext == "" {
		return "unknown"
	}
	return ext
}

// parseFile extracts chunks, symbols and edges. Prose files without a
// grammar fall back to paragraph chunking; other unparsed files become
// a single block chunk. Both carry parsed=false.
func (p *Pipeline) parseFile(ctx context.Context, w fileWork) (parsedFile, error) {
	tree, ok, err := p.adapter.Parse(ctx, w.lang, w.src)
	if err != nil {
		return parsedFile{}, err
	}
	if !ok {
		pf := parsedFile{work: w}
		if isProse(w.lang) {
			pf.chunks = chunkText(string(w.src))
		} else {
			pf.chunks = wholeFileChunk(string(w.src))
		}
		return pf, nil
	}
	defer tree.Close()

	pf := parsedFile{
		work:    w,
		parsed:  true,
		chunks:  tree.Chunks(),
		symbols: tree.Symbols(),
	}
	pf.edges = tree.Edges(pf.symbols)
	if len(pf.chunks) == 0 {
		pf.chunks = wholeFileChunk(string(w.src))
	}
	return pf, nil
}

func (p *Pipeline) embedChunks(chunks []parser.Chunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return p.embedBatched(texts)
}

// embedSymbols embeds each symbol's name and signature.
func (p *Pipeline) embedSymbols(symbols []parser.Symbol) ([][]float32, error) {
	texts := make([]string, len(symbols))
	for i, s := range symbols {
		texts[i] = strings.TrimSpace(s.Name + " " + s.Signature)
	}
	return p.embedBatched(texts)
}

func (p *Pipeline) embedBatched(texts []string) ([][]float32, error) {
	all := make([][]float32, 0, len(texts))
	for i := 0; i < len(texts); i += embedBatchSize {
		end := i + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := p.emb.Embed(texts[i:end])
		if err != nil {
			return nil, err
		}
		all = append(all, vecs...)
	}
	return all, nil
}

// storeFile persists one parsed file: the file row, its chunks and
// embeddings, its symbols with parent links, chunk-to-symbol
// attachment by largest line overlap, and same-file edges by name.
func (p *Pipeline) storeFile(pf parsedFile, stats *Stats) error {
	fileID, err := p.store.UpsertFile(store.FileRecord{
		Path:   pf.work.info.RelPath,
		Hash:   pf.work.hash,
		Lang:   pf.work.lang,
		Size:   pf.work.info.Size,
		MTime:  pf.work.info.MTime,
		Parsed: pf.parsed,
	})
	if err != nil {
		return err
	}

	chunkRecords := make([]store.ChunkRecord, len(pf.chunks))
	for i, c := range pf.chunks {
		h := sha256.Sum256([]byte(c.Text))
		chunkRecords[i] = store.ChunkRecord{
			FileID:    fileID,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Kind:      c.Kind,
			Text:      c.Text,
			Hash:      hex.EncodeToString(h[:]),
		}
	}
	chunkIDs, err := p.store.AddChunks(chunkRecords)
	if err != nil {
		return err
	}
	stats.ChunksTotal += len(chunkIDs)

	if len(pf.vectors) == len(chunkIDs) && len(pf.vectors) > 0 {
		if err := p.store.AddChunkEmbeddings(chunkIDs, pf.vectors); err != nil {
			return err
		}
	}

	if len(pf.symbols) == 0 {
		return nil
	}

	symbolRecords := make([]store.SymbolRecord, len(pf.symbols))
	for i, s := range pf.symbols {
		symbolRecords[i] = store.SymbolRecord{
			FileID:    fileID,
			Name:      s.Name,
			Kind:      s.Kind,
			Signature: s.Signature,
			StartLine: s.StartLine,
			EndLine:   s.EndLine,
		}
	}
	symbolIDs, err := p.store.AddSymbols(symbolRecords)
	if err != nil {
		return err
	}
	stats.SymbolsTotal += len(symbolIDs)

	if len(pf.symVectors) == len(symbolIDs) && len(pf.symVectors) > 0 {
		if err := p.store.AddSymbolEmbeddings(symbolIDs, pf.symVectors); err != nil {
			return err
		}
	}

	for i, s := range pf.symbols {
		if s.ParentIndex >= 0 {
			if err := p.store.SetSymbolParent(symbolIDs[i], symbolIDs[s.ParentIndex]); err != nil {
				return err
			}
		}
	}

	// Attach each chunk to the symbol it overlaps most.
	for i, c := range pf.chunks {
		best, bestOverlap := -1, 0
		for j, s := range pf.symbols {
			if s.Kind == "import" {
				continue
			}
			o := overlap(c.StartLine, c.EndLine, s.StartLine, s.EndLine)
			if o > bestOverlap {
				best, bestOverlap = j, o
			}
		}
		if best >= 0 {
			if err := p.store.AttachChunkToSymbol(chunkIDs[i], symbolIDs[best]); err != nil {
				return err
			}
		}
	}

	// Same-file edges: resolve names against this file's symbols.
	byName := make(map[string]int64, len(pf.symbols))
	for i, s := range pf.symbols {
		if s.Kind != "import" {
			byName[s.Name] = symbolIDs[i]
		}
	}
	var edgeRecords []store.EdgeRecord
	for _, e := range pf.edges {
		src, okSrc := byName[e.Src]
		dst, okDst := byName[e.Dst]
		if okSrc && okDst && src != dst {
			edgeRecords = append(edgeRecords, store.EdgeRecord{
				SrcSymbolID: src,
				DstSymbolID: dst,
				EdgeType:    e.Type,
			})
		}
	}
	if len(edgeRecords) > 0 {
		if err := p.store.AddEdges(edgeRecords); err != nil {
			return err
		}
		stats.EdgesTotal += len(edgeRecords)
	}
	return nil
}

func overlap(aStart, aEnd, bStart, bEnd int) int {
	lo, hi := aStart, aEnd
	if bStart > lo {
		lo = bStart
	}
	if bEnd < hi {
		hi = bEnd
	}
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}
