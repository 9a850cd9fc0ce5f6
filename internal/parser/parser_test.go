package parser_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/parser"
	"scribe/internal/parser/languages"
)

func newAdapter(t *testing.T) *parser.Adapter {
	t.Helper()
	r := parser.NewRegistry()
	languages.RegisterGo(r)
	languages.RegisterPython(r)
	languages.RegisterJavaScript(r)
	languages.RegisterTypeScript(r)
	return parser.NewAdapter(r)
}

func parse(t *testing.T, a *parser.Adapter, lang, src string) *parser.Tree {
	t.Helper()
	tree, ok, err := a.Parse(context.Background(), lang, []byte(src))
	require.NoError(t, err)
	require.True(t, ok)
	t.Cleanup(tree.Close)
	return tree
}

func TestSingleFunctionFile(t *testing.T) {
	a := newAdapter(t)
	src := `package main

func Add(a, b int) int {
	return a + b
}
`
	tree := parse(t, a, "go", src)

	chunks := tree.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, "function", chunks[0].Kind)
	assert.Equal(t, 3, chunks[0].StartLine)
	assert.Equal(t, 5, chunks[0].EndLine)
	assert.Contains(t, chunks[0].Text, "func Add")

	symbols := tree.Symbols()
	require.Len(t, symbols, 1)
	assert.Equal(t, "Add", symbols[0].Name)
	assert.Equal(t, chunks[0].StartLine, symbols[0].StartLine)
	assert.Equal(t, chunks[0].EndLine, symbols[0].EndLine)
}

func TestUnsupportedLanguage(t *testing.T) {
	a := newAdapter(t)
	_, ok, err := a.Parse(context.Background(), "fortran", []byte("PRINT *, 'hi'"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPythonNestedSymbols(t *testing.T) {
	a := newAdapter(t)
	src := `class Greeter:
    def greet(self):
        return "hi"

def top():
    pass
`
	tree := parse(t, a, "python", src)
	symbols := tree.Symbols()
	require.Len(t, symbols, 3)

	byName := map[string]parser.Symbol{}
	byIndex := map[string]int{}
	for i, s := range symbols {
		byName[s.Name] = s
		byIndex[s.Name] = i
	}

	assert.Equal(t, -1, byName["Greeter"].ParentIndex)
	assert.Equal(t, byIndex["Greeter"], byName["greet"].ParentIndex, "method nests under its class")
	assert.Equal(t, -1, byName["top"].ParentIndex)
}

func TestPythonImports(t *testing.T) {
	a := newAdapter(t)
	src := `import os
from pathlib import Path

def run():
    pass
`
	tree := parse(t, a, "python", src)
	imports := tree.Imports()
	require.Len(t, imports, 2)
	assert.Equal(t, "os", imports[0].Module)
	assert.Equal(t, 1, imports[0].Line)
	assert.Equal(t, "pathlib", imports[1].Module)
}

func TestGoCallEdges(t *testing.T) {
	a := newAdapter(t)
	src := `package main

func helper() int {
	return 1
}

func caller() int {
	return helper()
}
`
	tree := parse(t, a, "go", src)
	symbols := tree.Symbols()
	edges := tree.Edges(symbols)

	found := false
	for _, e := range edges {
		if e.Src == "caller" && e.Dst == "helper" && e.Type == "calls" {
			found = true
		}
	}
	assert.True(t, found, "expected caller -> helper call edge, got %v", edges)
}

func TestJavaScriptClassInheritance(t *testing.T) {
	a := newAdapter(t)
	src := `class Base {
  run() {}
}

class Child extends Base {
  run() {}
}
`
	tree := parse(t, a, "javascript", src)
	symbols := tree.Symbols()
	edges := tree.Edges(symbols)

	found := false
	for _, e := range edges {
		if e.Src == "Child" && e.Dst == "Base" && e.Type == "inherits" {
			found = true
		}
	}
	assert.True(t, found, "expected Child -> Base inherits edge, got %v", edges)
}

func TestTypeScriptInterfaceChunk(t *testing.T) {
	a := newAdapter(t)
	src := `interface Shape {
  area(): number;
}
`
	tree := parse(t, a, "typescript", src)
	chunks := tree.Chunks()
	require.Len(t, chunks, 1)
	assert.Equal(t, "interface", chunks[0].Kind)
}
