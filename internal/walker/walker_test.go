package walker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, root string) map[string]FileInfo {
	t.Helper()
	files, errs := Walk(context.Background(), root)
	out := map[string]FileInfo{}
	for f := range files {
		out[f.RelPath] = f
	}
	require.NoError(t, <-errs)
	return out
}

func TestWalkFilters(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "lib/core.py", "def run(): pass\n")
	writeFile(t, root, "node_modules/dep/index.js", "module.exports = 1\n")
	writeFile(t, root, ".git/config", "[core]\n")
	writeFile(t, root, "empty.txt", "")

	got := collect(t, root)

	assert.Contains(t, got, "main.go")
	assert.Contains(t, got, "lib/core.py")
	assert.NotContains(t, got, "node_modules/dep/index.js")
	assert.NotContains(t, got, ".git/config")
	assert.NotContains(t, got, "empty.txt", "empty files are skipped")
}

func TestWalkHonorsGitignore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "generated/\n*.log\n")
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "generated/out.go", "package generated\n")
	writeFile(t, root, "debug.log", "noise\n")

	got := collect(t, root)

	assert.Contains(t, got, "main.go")
	assert.NotContains(t, got, "generated/out.go")
	assert.NotContains(t, got, "debug.log")
}

func TestWalkSkipsOversizedFiles(t *testing.T) {
	root := t.TempDir()
	big := make([]byte, maxFileSize+1)
	for i := range big {
		big[i] = 'a'
	}
	require.NoError(t, os.WriteFile(filepath.Join(root, "big.txt"), big, 0o644))
	writeFile(t, root, "small.txt", "ok\n")

	got := collect(t, root)
	assert.Contains(t, got, "small.txt")
	assert.NotContains(t, got, "big.txt")
}

func TestWalkStopsOnCancelledContext(t *testing.T) {
	root := t.TempDir()
	for i := 0; i < 100; i++ {
		writeFile(t, root, filepath.Join("pkg", string(rune('a'+i%26))+".go"), "package pkg\n")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Nobody reads the file channel; the walk must still terminate and
	// close the error channel.
	_, errs := Walk(ctx, root)
	require.ErrorIs(t, <-errs, context.Canceled)
}

func TestIsBinary(t *testing.T) {
	assert.True(t, IsBinary([]byte{0x7f, 'E', 'L', 'F', 0x00, 0x01}))
	assert.False(t, IsBinary([]byte("plain text\nwith lines\n")))
}
