package parser

import (
	"context"
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Chunk is a candidate chunk sliced verbatim from the source.
type Chunk struct {
	StartLine int
	EndLine   int
	Kind      string
	Text      string
}

// Symbol is a candidate declaration. ParentIndex points into the same
// slice (-1 for top-level); nesting is inferred by smallest enclosing
// span.
type Symbol struct {
	Name        string
	Kind        string
	Signature   string
	StartLine   int
	EndLine     int
	ParentIndex int
}

// Import is a module reference at a source line.
type Import struct {
	Module string
	Line   int
}

// Edge is a directed relation between two names in the same file.
type Edge struct {
	Src  string
	Dst  string
	Type string
}

// Adapter parses source files through the registered grammars.
type Adapter struct {
	registry *Registry
}

// NewAdapter creates an adapter backed by the given registry.
func NewAdapter(r *Registry) *Adapter {
	return &Adapter{registry: r}
}

// Registry returns the adapter's language registry.
func (a *Adapter) Registry() *Registry { return a.registry }

// Tree is a parsed file, ready for chunk/symbol/import/edge extraction.
// Close must be called to release the underlying syntax tree.
type Tree struct {
	lang  *Language
	src   []byte
	lines []string
	tree  *sitter.Tree
}

// Parse parses src as the named language. Unsupported languages return
// (nil, false, nil); the caller owns the whole-file fallback.
func (a *Adapter) Parse(ctx context.Context, langName string, src []byte) (*Tree, bool, error) {
	lang, ok := a.registry.ByName(langName)
	if !ok {
		return nil, false, nil
	}
	p := sitter.NewParser()
	p.SetLanguage(lang.Sitter)
	tree, err := p.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, false, fmt.Errorf("parse %s: %w", langName, err)
	}
	return &Tree{
		lang:  lang,
		src:   src,
		lines: strings.Split(string(src), "\n"),
		tree:  tree,
	}, true, nil
}

// Close releases the syntax tree.
func (t *Tree) Close() {
	t.tree.Close()
}

// Chunks collects every function-like and class-like node and slices its
// line range verbatim from the source.
func (t *Tree) Chunks() []Chunk {
	var chunks []Chunk
	t.walk(t.tree.RootNode(), func(n *sitter.Node) {
		cat := t.lang.Classify(n.Type())
		if cat != CategoryFunction && cat != CategoryClass {
			return
		}
		start, end := span(n)
		chunks = append(chunks, Chunk{
			StartLine: start,
			EndLine:   end,
			Kind:      t.lang.kindOf(n.Type(), cat),
			Text:      t.slice(start, end),
		})
	})
	return chunks
}

// Symbols collects function, class and import declarations and infers
// parent nesting: for each symbol, the smallest span fully containing it
// wins.
func (t *Tree) Symbols() []Symbol {
	var symbols []Symbol
	t.walk(t.tree.RootNode(), func(n *sitter.Node) {
		cat := t.lang.Classify(n.Type())
		switch cat {
		case CategoryFunction, CategoryClass:
			start, end := span(n)
			name := t.identifierUnder(n)
			if name == "" {
				name = strings.TrimSpace(t.line(start))
			}
			symbols = append(symbols, Symbol{
				Name:        name,
				Kind:        t.lang.kindOf(n.Type(), cat),
				Signature:   strings.TrimSpace(t.line(start)),
				StartLine:   start,
				EndLine:     end,
				ParentIndex: -1,
			})
		case CategoryImport:
			start, end := span(n)
			if mod := t.importName(n); mod != "" {
				symbols = append(symbols, Symbol{
					Name:        mod,
					Kind:        "import",
					Signature:   strings.TrimSpace(t.line(start)),
					StartLine:   start,
					EndLine:     end,
					ParentIndex: -1,
				})
			}
		}
	})
	inferParents(symbols)
	return symbols
}

// inferParents assigns each symbol the smallest other span that fully
// contains it, ties broken by span length.
func inferParents(symbols []Symbol) {
	for i := range symbols {
		best, bestLen := -1, 0
		for j := range symbols {
			if i == j {
				continue
			}
			if symbols[j].StartLine <= symbols[i].StartLine && symbols[j].EndLine >= symbols[i].EndLine &&
				!(symbols[j].StartLine == symbols[i].StartLine && symbols[j].EndLine == symbols[i].EndLine) {
				l := symbols[j].EndLine - symbols[j].StartLine
				if best == -1 || l < bestLen {
					best, bestLen = j, l
				}
			}
		}
		symbols[i].ParentIndex = best
	}
}

// Imports collects module references.
func (t *Tree) Imports() []Import {
	var imports []Import
	t.walk(t.tree.RootNode(), func(n *sitter.Node) {
		if t.lang.Classify(n.Type()) != CategoryImport {
			return
		}
		if mod := t.importName(n); mod != "" {
			imports = append(imports, Import{Module: mod, Line: int(n.StartPoint().Row) + 1})
		}
	})
	return imports
}

// edgeContext is the immutable state threaded down the edge walk.
type edgeContext struct {
	symbol int // index into symbols, -1 when outside any declaration
}

var edgeTypes = map[NodeCategory]string{
	CategoryCall:       "calls",
	CategoryInherit:    "inherits",
	CategoryMember:     "member-of",
	CategoryImplements: "implements",
	CategoryExport:     "exports",
}

// Edges walks the tree tracking the current enclosing symbol and, at
// call/inherit/member/implements/export nodes, emits an edge from that
// symbol to the identifier found under the node.
func (t *Tree) Edges(symbols []Symbol) []Edge {
	return t.edgeWalk(t.tree.RootNode(), edgeContext{symbol: -1}, symbols, nil)
}

func (t *Tree) edgeWalk(n *sitter.Node, ctx edgeContext, symbols []Symbol, acc []Edge) []Edge {
	cat := t.lang.Classify(n.Type())
	switch cat {
	case CategoryFunction, CategoryClass:
		start, end := span(n)
		for i, s := range symbols {
			if s.Kind != "import" && s.StartLine == start && s.EndLine == end {
				ctx = edgeContext{symbol: i}
				break
			}
		}
	case CategoryCall, CategoryInherit, CategoryMember, CategoryImplements, CategoryExport:
		if ctx.symbol >= 0 {
			if dst := t.identifierUnder(n); dst != "" {
				acc = append(acc, Edge{Src: symbols[ctx.symbol].Name, Dst: dst, Type: edgeTypes[cat]})
			}
		}
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		acc = t.edgeWalk(n.Child(i), ctx, symbols, acc)
	}
	return acc
}

// --- helpers ---

func (t *Tree) walk(n *sitter.Node, visit func(*sitter.Node)) {
	visit(n)
	for i := 0; i < int(n.ChildCount()); i++ {
		t.walk(n.Child(i), visit)
	}
}

// identifierUnder returns the first identifier-typed descendant in
// pre-order, or "".
func (t *Tree) identifierUnder(n *sitter.Node) string {
	var found string
	var dfs func(*sitter.Node) bool
	dfs = func(cur *sitter.Node) bool {
		if cur != n && t.lang.isIdentifier(cur.Type()) {
			found = cur.Content(t.src)
			return true
		}
		for i := 0; i < int(cur.ChildCount()); i++ {
			if dfs(cur.Child(i)) {
				return true
			}
		}
		return false
	}
	dfs(n)
	return found
}

// importName extracts the imported module name from an import node:
// the first string literal or identifier path beneath it, unquoted.
func (t *Tree) importName(n *sitter.Node) string {
	var found string
	var dfs func(*sitter.Node) bool
	dfs = func(cur *sitter.Node) bool {
		typ := cur.Type()
		if cur != n && (strings.Contains(typ, "string") || typ == "dotted_name" || t.lang.isIdentifier(typ)) {
			found = strings.Trim(cur.Content(t.src), "\"'`")
			return true
		}
		for i := 0; i < int(cur.ChildCount()); i++ {
			if dfs(cur.Child(i)) {
				return true
			}
		}
		return false
	}
	dfs(n)
	return found
}

func (t *Tree) line(lineNo int) string {
	if lineNo < 1 || lineNo > len(t.lines) {
		return ""
	}
	return t.lines[lineNo-1]
}

func (t *Tree) slice(start, end int) string {
	if start < 1 {
		start = 1
	}
	if end > len(t.lines) {
		end = len(t.lines)
	}
	return strings.Join(t.lines[start-1:end], "\n")
}

func span(n *sitter.Node) (int, int) {
	return int(n.StartPoint().Row) + 1, int(n.EndPoint().Row) + 1
}
