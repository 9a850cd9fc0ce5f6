package embedder

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func embedServer(t *testing.T, vectors [][]float32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)
		json.NewEncoder(w).Encode(embedResponse{Embeddings: vectors})
	}))
}

func TestEmbedBatch(t *testing.T) {
	srv := embedServer(t, [][]float32{{1, 0, 0, 0}, {0, 1, 0, 0}})
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "embed-model", 4)
	vecs, err := e.Embed([]string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)
	assert.Equal(t, []float32{1, 0, 0, 0}, vecs[0])
}

func TestEmbedEmptyInputSkipsRequest(t *testing.T) {
	e := NewOllamaEmbedder("http://127.0.0.1:1", "embed-model", 4)
	vecs, err := e.Embed(nil)
	require.NoError(t, err)
	assert.Nil(t, vecs)
}

func TestEmbedRejectsCountMismatch(t *testing.T) {
	srv := embedServer(t, [][]float32{{1, 0, 0, 0}})
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "embed-model", 4)
	_, err := e.Embed([]string{"alpha", "beta"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 2 embeddings")
}

func TestEmbedRejectsDimensionMismatch(t *testing.T) {
	srv := embedServer(t, [][]float32{{1, 0}})
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "embed-model", 4)
	_, err := e.Embed([]string{"alpha"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension 2, want 4")
}

func TestEmbedSurfacesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model 'missing' not found"})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "missing", 4)
	_, err := e.Embed([]string{"alpha"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model 'missing' not found")
}
