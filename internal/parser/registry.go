// Package parser turns raw file text into a concrete syntax tree and
// yields chunk, symbol, import and edge candidates. Languages plug in by
// registering a classifier from their native tree-sitter node types to a
// closed set of universal categories.
package parser

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// NodeCategory is the universal classification of a syntax node. The set
// is closed: adding a language means writing a classifier over these
// cases, not extending the enum.
type NodeCategory int

const (
	CategoryNone NodeCategory = iota
	CategoryFunction
	CategoryClass
	CategoryImport
	CategoryCall
	CategoryInherit
	CategoryMember
	CategoryImplements
	CategoryExport
)

// Language binds a tree-sitter grammar to its universal classification.
type Language struct {
	Name       string
	Extensions []string
	Sitter     *sitter.Language
	// Classify maps a native node type to its universal category.
	Classify func(nodeType string) NodeCategory
	// Identifiers are the node types that name a declaration. The first
	// matching child of a declaration node supplies the symbol name.
	Identifiers []string
	// Kinds optionally refines the stored symbol/chunk kind per native
	// node type (e.g. method_declaration → "method"). Unlisted types
	// fall back to the category name.
	Kinds map[string]string
}

func (l *Language) isIdentifier(nodeType string) bool {
	for _, id := range l.Identifiers {
		if id == nodeType {
			return true
		}
	}
	return false
}

func (l *Language) kindOf(nodeType string, cat NodeCategory) string {
	if k, ok := l.Kinds[nodeType]; ok {
		return k
	}
	switch cat {
	case CategoryFunction:
		return "function"
	case CategoryClass:
		return "class"
	case CategoryImport:
		return "import"
	default:
		return nodeType
	}
}

// Registry maps file extensions and language names to registered
// languages.
type Registry struct {
	mu     sync.RWMutex
	byExt  map[string]*Language
	byName map[string]*Language
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byExt:  make(map[string]*Language),
		byName: make(map[string]*Language),
	}
}

// Register adds a language.
func (r *Registry) Register(l *Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byName[l.Name] = l
	for _, ext := range l.Extensions {
		r.byExt[ext] = l
	}
}

// Lookup returns the language for a file path based on its extension.
func (r *Registry) Lookup(path string) (*Language, bool) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byExt[ext]
	return l, ok
}

// ByName returns a registered language by name.
func (r *Registry) ByName(name string) (*Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.byName[name]
	return l, ok
}

// Supports reports whether a structural parser exists for the language.
func (r *Registry) Supports(name string) bool {
	_, ok := r.ByName(name)
	return ok
}
