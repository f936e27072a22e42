package commit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semgraph/retry"
)

func TestHTTPEmbedderReturnsVectorsInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Texts []string `json:"texts"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"alpha", "beta"}, req.Texts)
		fmt.Fprint(w, `{"vectors":[[0.1,0.2],[0.3,0.4]]}`)
	}))
	t.Cleanup(server.Close)

	embedder := NewHTTPEmbedder(server.URL, server.Client())
	vectors, err := embedder.Embed(context.Background(), []string{"alpha", "beta"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0])
	assert.Equal(t, []float32{0.3, 0.4}, vectors[1])
}

func TestHTTPEmbedderVectorCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"vectors":[[0.1]]}`)
	}))
	t.Cleanup(server.Close)

	embedder := NewHTTPEmbedder(server.URL, server.Client())
	_, err := embedder.Embed(context.Background(), []string{"alpha", "beta"})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "1 vectors for 2 texts")
}

func TestHTTPEmbedderServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	embedder := NewHTTPEmbedder(server.URL, server.Client())
	_, err := embedder.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestHTTPEmbedderClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	embedder := NewHTTPEmbedder(server.URL, server.Client())
	_, err := embedder.Embed(context.Background(), []string{"alpha"})
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
}
