package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"scribe/internal/parser"
	"scribe/internal/parser/languages"
	"scribe/internal/store"
)

func newAdapter() *parser.Adapter {
	r := parser.NewRegistry()
	languages.RegisterGo(r)
	languages.RegisterPython(r)
	languages.RegisterJavaScript(r)
	languages.RegisterTypeScript(r)
	return parser.NewAdapter(r)
}

func newPipeline(t *testing.T) (*Pipeline, *store.Store) {
	t.Helper()
	st, err := store.Open("", store.Options{EmbeddingDim: 8})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st, newAdapter(), nil, zap.NewNop(), 2), st
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestChunkTextParagraphs(t *testing.T) {
	text := "First paragraph line one.\nLine two.\n\nSecond paragraph.\n"
	chunks := chunkText(text)
	require.Len(t, chunks, 2)

	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 2, chunks[0].EndLine)
	assert.Equal(t, "paragraph", chunks[0].Kind)
	assert.Equal(t, "First paragraph line one.\nLine two.", chunks[0].Text)

	assert.Equal(t, 4, chunks[1].StartLine)
	assert.Equal(t, 4, chunks[1].EndLine)
	assert.Equal(t, "Second paragraph.", chunks[1].Text)
}

func TestChunkTextSingleBlock(t *testing.T) {
	chunks := chunkText("one\ntwo\nthree")
	require.Len(t, chunks, 1)
	assert.Equal(t, "block", chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
}

func TestPipelineIngestsTree(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math.go", "package math\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")
	writeFile(t, root, "notes.md", "Overview of the library.\n\nAdd sums two integers.\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, "data.bin"), []byte{0x00, 0x01, 0x02}, 0o644))

	pipe, st := newPipeline(t)
	stats, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	assert.Equal(t, 2, stats.FilesIngested, "binary file must be skipped")
	assert.Equal(t, 3, stats.ChunksTotal)
	assert.Equal(t, 1, stats.SymbolsTotal)

	goFile, ok, err := st.FileByPath("math.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, goFile.Parsed)
	assert.Equal(t, "go", goFile.Lang)

	chunks, err := st.ChunksForFile(goFile.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "function", chunks[0].Kind)
	assert.Equal(t, 3, chunks[0].StartLine)
	assert.Equal(t, 5, chunks[0].EndLine)

	symbols, err := st.SymbolsForFile(goFile.ID)
	require.NoError(t, err)
	require.Len(t, symbols, 1)
	assert.Equal(t, "Add", symbols[0].Name)
	assert.Equal(t, symbols[0].ID, chunks[0].SymbolID, "chunk attaches to its symbol")

	mdFile, ok, err := st.FileByPath("notes.md")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, mdFile.Parsed)
	assert.Equal(t, "markdown", mdFile.Lang)

	mdChunks, err := st.ChunksForFile(mdFile.ID)
	require.NoError(t, err)
	assert.Len(t, mdChunks, 2)
}

func TestPipelineStoresUnparsedConfigAsSingleBlock(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "config.json", "{\n  \"name\": \"demo\",\n\n  \"port\": 8080\n}\n")

	pipe, st := newPipeline(t)
	_, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	file, ok, err := st.FileByPath("config.json")
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, file.Parsed)
	assert.Equal(t, "json", file.Lang)

	// A blank line inside JSON is not a paragraph boundary; the file
	// stays one retrievable unit.
	chunks, err := st.ChunksForFile(file.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "block", chunks[0].Kind)
	assert.Equal(t, 1, chunks[0].StartLine)
}

// seedTree writes enough small files to keep every pipeline stage busy.
func seedTree(t *testing.T, n int) string {
	t.Helper()
	root := t.TempDir()
	for i := 0; i < n; i++ {
		src := fmt.Sprintf("package p\n\nfunc F%d() int {\n\treturn %d\n}\n", i, i)
		writeFile(t, root, fmt.Sprintf("f%03d.go", i), src)
	}
	return root
}

type failingEmbedder struct{}

func (failingEmbedder) Embed(texts []string) ([][]float32, error) {
	return nil, errors.New("embed backend down")
}

func (failingEmbedder) EmbedSingle(text string) ([]float32, error) {
	return nil, errors.New("embed backend down")
}

func TestPipelineShutsDownOnEmbedFailure(t *testing.T) {
	root := seedTree(t, 300)
	st, err := store.Open("", store.Options{EmbeddingDim: 8})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	pipe := New(st, newAdapter(), failingEmbedder{}, zap.NewNop(), 2)

	done := make(chan error, 1)
	go func() {
		_, err := pipe.Run(context.Background(), root)
		done <- err
	}()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "embed backend down")
	case <-time.After(20 * time.Second):
		t.Fatal("pipeline did not shut down after embed failure")
	}
}

func TestPipelineShutsDownOnCancelledContext(t *testing.T) {
	root := seedTree(t, 300)
	pipe, _ := newPipeline(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan error, 1)
	go func() {
		_, err := pipe.Run(ctx, root)
		done <- err
	}()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(20 * time.Second):
		t.Fatal("pipeline did not shut down after cancellation")
	}
}

func TestPipelineSkipsUnchangedOnReingest(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "math.go", "package math\n\nfunc Add(a, b int) int {\n\treturn a + b\n}\n")

	pipe, st := newPipeline(t)
	_, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	before, ok, err := st.FileByPath("math.go")
	require.NoError(t, err)
	require.True(t, ok)

	stats, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.FilesIngested)

	after, ok, err := st.FileByPath("math.go")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before.ID, after.ID, "re-ingesting an unchanged file keeps its row")
	assert.Equal(t, before.Hash, after.Hash)
}

func TestResolveImportsEmitsCrossFileEdges(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "router.js", "class Router {\n  route() {}\n}\n")
	writeFile(t, root, "app.js", "import { Router } from \"./router\";\n\nfunction main() {\n  return new Router();\n}\n")

	pipe, st := newPipeline(t)
	_, err := pipe.Run(context.Background(), root)
	require.NoError(t, err)

	appFile, ok, err := st.FileByPath("app.js")
	require.NoError(t, err)
	require.True(t, ok)
	symbols, err := st.SymbolsForFile(appFile.ID)
	require.NoError(t, err)

	var importSym store.SymbolRecord
	for _, s := range symbols {
		if s.Kind == "import" {
			importSym = s
		}
	}
	require.NotZero(t, importSym.ID, "import symbol for Router expected")
	assert.Equal(t, "Router", importSym.Name)

	edges, err := st.EdgesForSymbol(importSym.ID)
	require.NoError(t, err)
	found := false
	for _, e := range edges {
		if e.EdgeType == store.EdgeImportsResolved {
			found = true
		}
	}
	assert.True(t, found, "expected an imports-resolved edge, got %v", edges)
}

func TestImportBase(t *testing.T) {
	assert.Equal(t, "http", importBase("net/http"))
	assert.Equal(t, "mod", importBase("pkg.sub.mod"))
	assert.Equal(t, "os", importBase("os"))
}
