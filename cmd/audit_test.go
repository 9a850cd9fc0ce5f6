package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scribe/internal/store"
)

func withFlagDB(t *testing.T, path string) {
	t.Helper()
	old := flagDB
	flagDB = path
	t.Cleanup(func() { flagDB = old })
}

func TestOpenAuditStoreRequiresFlag(t *testing.T) {
	withFlagDB(t, "")
	_, err := openAuditStore()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--db")
}

func TestOpenAuditStoreRejectsMissingPath(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "typo.db")
	withFlagDB(t, missing)

	_, err := openAuditStore()
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	// A mistyped path must not leave an empty store behind.
	_, statErr := os.Stat(missing)
	assert.ErrorIs(t, statErr, os.ErrNotExist)
}

func TestOpenAuditStoreOpensExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scribe.db")
	st, err := store.Open(path, store.Options{Persist: true, EmbeddingDim: 8})
	require.NoError(t, err)
	_, err = st.UpsertFile(store.FileRecord{Path: "a.go", Hash: "h", Lang: "go", MTime: time.Now(), Parsed: true})
	require.NoError(t, err)
	require.NoError(t, st.Close())

	withFlagDB(t, path)
	st, err = openAuditStore()
	require.NoError(t, err)
	defer st.Close()

	files, err := st.Files()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "a.go", files[0].Path)
}
