// Package walker discovers candidate source files under a root,
// honoring .gitignore patterns and a built-in exclusion list.
package walker

import (
	"context"
	"io/fs"
	"path/filepath"
	"time"

	ignore "github.com/sabhiram/go-gitignore"
)

// FileInfo holds metadata about a discovered file.
type FileInfo struct {
	Path    string
	RelPath string
	Size    int64
	MTime   time.Time
}

// maxFileSize is the largest file considered (1 MB).
const maxFileSize = 1 << 20

// defaultIgnores are excluded regardless of .gitignore contents.
var defaultIgnores = []string{
	".git/",
	".svn/",
	".hg/",
	"node_modules/",
	"vendor/",
	"__pycache__/",
	".idea/",
	".vscode/",
	".scribe/",
	"dist/",
	"build/",
}

// Walk traverses the tree rooted at root and sends discovered files on
// the returned channel. Directories and files matching the exclusion
// rules, symlinks, empty files, and files over maxFileSize are skipped.
// Cancelling ctx stops the walk; both channels always close, so readers
// that stop consuming mid-walk cannot strand the walk goroutine.
func Walk(ctx context.Context, root string) (<-chan FileInfo, <-chan error) {
	files := make(chan FileInfo, 64)
	errs := make(chan error, 1)

	go func() {
		defer close(files)
		defer close(errs)

		absRoot, err := filepath.Abs(root)
		if err != nil {
			errs <- err
			return
		}

		builtin := ignore.CompileIgnoreLines(defaultIgnores...)
		gitignore, _ := ignore.CompileIgnoreFile(filepath.Join(absRoot, ".gitignore"))

		excluded := func(rel string) bool {
			if builtin.MatchesPath(rel) {
				return true
			}
			return gitignore != nil && gitignore.MatchesPath(rel)
		}

		err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}
			if err != nil {
				return nil // skip unreadable entries, keep walking
			}
			if path == absRoot {
				return nil
			}
			rel, relErr := filepath.Rel(absRoot, path)
			if relErr != nil {
				return nil
			}
			rel = filepath.ToSlash(rel)

			if d.IsDir() {
				if excluded(rel + "/") {
					return filepath.SkipDir
				}
				return nil
			}
			if d.Type()&fs.ModeSymlink != 0 {
				return nil
			}
			if excluded(rel) {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				return nil
			}
			if info.Size() == 0 || info.Size() > maxFileSize {
				return nil
			}

			select {
			case files <- FileInfo{
				Path:    path,
				RelPath: rel,
				Size:    info.Size(),
				MTime:   info.ModTime(),
			}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
		if err != nil {
			errs <- err
		}
	}()

	return files, errs
}

// IsBinary sniffs content the way git does: a NUL byte in the first
// 8000 bytes marks the file binary.
func IsBinary(content []byte) bool {
	n := len(content)
	if n > 8000 {
		n = 8000
	}
	for _, b := range content[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}
