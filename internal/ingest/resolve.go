package ingest

import (
	"path"
	"strings"

	"scribe/internal/store"
)

// ResolveImports is the cross-file pass run after all files are
// stored. Each import symbol is matched by name against declarations
// in other files; matches become imports-resolved edges. Returns the
// number of edges added.
func (p *Pipeline) ResolveImports() (int, error) {
	decls, err := p.store.NonImportSymbols()
	if err != nil {
		return 0, err
	}
	byName := make(map[string][]store.SymbolRecord)
	for _, s := range decls {
		byName[s.Name] = append(byName[s.Name], s)
	}

	imports, err := p.store.ImportSymbols()
	if err != nil {
		return 0, err
	}

	var edges []store.EdgeRecord
	for _, imp := range imports {
		base := importBase(imp.Name)
		for _, target := range byName[base] {
			if target.FileID == imp.FileID {
				continue
			}
			edges = append(edges, store.EdgeRecord{
				SrcSymbolID: imp.ID,
				DstSymbolID: target.ID,
				EdgeType:    store.EdgeImportsResolved,
			})
		}
	}
	if len(edges) == 0 {
		return 0, nil
	}
	if err := p.store.AddEdges(edges); err != nil {
		return 0, err
	}
	return len(edges), nil
}

// importBase reduces a module path to its last segment:
// "net/http" -> "http", "pkg.sub.mod" -> "mod".
func importBase(module string) string {
	base := path.Base(module)
	if i := strings.LastIndex(base, "."); i >= 0 {
		base = base[i+1:]
	}
	return base
}

// RegisterModules derives the package and module hierarchy from the
// stored file paths: the top-level directory is the package, each
// directory is a module, and every file links to its directory's
// module.
func (p *Pipeline) RegisterModules() error {
	files, err := p.store.Files()
	if err != nil {
		return err
	}
	for _, f := range files {
		dir := path.Dir(f.Path)
		if dir == "." {
			dir = ""
		}
		pkg := topSegment(f.Path)

		pkgID, err := p.store.AddPackage(pkg, pkg)
		if err != nil {
			return err
		}
		modName := path.Base(dir)
		if dir == "" {
			modName = pkg
		}
		modID, err := p.store.AddModule(dir, modName, pkgID)
		if err != nil {
			return err
		}
		if err := p.store.LinkFileToModule(modID, f.ID); err != nil {
			return err
		}
	}
	return nil
}

// topSegment returns the first path segment, or "root" for files at
// the tree root.
func topSegment(p string) string {
	if i := strings.Index(p, "/"); i >= 0 {
		return p[:i]
	}
	return "root"
}
