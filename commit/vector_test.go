package commit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semgraph/retry"
)

func TestRecordID(t *testing.T) {
	if got := RecordID("doc-1", 3); got != "doc-1-3" {
		t.Errorf("RecordID = %s", got)
	}
}

func TestEnsureIndexSkipsExisting(t *testing.T) {
	var puts int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusOK)
		case http.MethodPut:
			puts++
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(server.Close)

	idx := NewVectorIndex(VectorIndexConfig{Endpoint: server.URL, HTTPClient: server.Client()}, nil)
	require.NoError(t, idx.EnsureIndex(context.Background()))
	assert.Zero(t, puts, "existing index must not be recreated")
}

func TestEnsureIndexCreatesKNNMapping(t *testing.T) {
	var mapping map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodHead:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			assert.Equal(t, "/custom-index", r.URL.Path)
			require.NoError(t, json.NewDecoder(r.Body).Decode(&mapping))
			w.WriteHeader(http.StatusCreated)
		}
	}))
	t.Cleanup(server.Close)

	idx := NewVectorIndex(VectorIndexConfig{
		Endpoint:   server.URL,
		IndexName:  "custom-index",
		Dimensions: 768,
		HTTPClient: server.Client(),
	}, nil)
	require.NoError(t, idx.EnsureIndex(context.Background()))

	embedding := mapping["mappings"].(map[string]any)["properties"].(map[string]any)["embedding"].(map[string]any)
	assert.Equal(t, "knn_vector", embedding["type"])
	assert.Equal(t, float64(768), embedding["dimension"])
	method := embedding["method"].(map[string]any)
	assert.Equal(t, "hnsw", method["name"])
	assert.Equal(t, "cosinesimil", method["space_type"])
}

func TestUpsertWritesStableIDs(t *testing.T) {
	var lines []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/_bulk", r.URL.Path)
		scanner := bufio.NewScanner(r.Body)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				lines = append(lines, line)
			}
		}
		fmt.Fprint(w, `{"errors":false,"items":[]}`)
	}))
	t.Cleanup(server.Close)

	idx := NewVectorIndex(VectorIndexConfig{Endpoint: server.URL, HTTPClient: server.Client()}, nil)
	records := []VectorRecord{
		{ID: RecordID("doc-1", 0), Vector: []float32{0.1, 0.2}, Text: "first"},
		{ID: RecordID("doc-1", 1), Vector: []float32{0.3, 0.4}, Text: "second"},
	}

	result, err := idx.Upsert(context.Background(), "doc-1", records)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Indexed)
	assert.Equal(t, "document-embeddings", result.Index)

	// Alternating action and document lines.
	require.Len(t, lines, 4)
	var action struct {
		Index struct {
			Index string `json:"_index"`
			ID    string `json:"_id"`
		} `json:"index"`
	}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &action))
	assert.Equal(t, "doc-1-0", action.Index.ID)
	assert.Equal(t, "document-embeddings", action.Index.Index)

	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &doc))
	assert.Equal(t, "doc-1", doc["documentId"])
	assert.Equal(t, "first", doc["text"])
}

func TestUpsertItemErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"errors":true,"items":[{"index":{"_id":"doc-1-0","status":429,"error":{"type":"es_rejected","reason":"queue full"}}}]}`)
	}))
	t.Cleanup(server.Close)

	idx := NewVectorIndex(VectorIndexConfig{Endpoint: server.URL, HTTPClient: server.Client()}, nil)
	_, err := idx.Upsert(context.Background(), "doc-1", []VectorRecord{{ID: "doc-1-0"}})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
	assert.Contains(t, err.Error(), "queue full")
}

func TestUpsertServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	idx := NewVectorIndex(VectorIndexConfig{Endpoint: server.URL, HTTPClient: server.Client()}, nil)
	_, err := idx.Upsert(context.Background(), "doc-1", []VectorRecord{{ID: "doc-1-0"}})
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestUpsertRejectsEmptyBatch(t *testing.T) {
	idx := NewVectorIndex(VectorIndexConfig{Endpoint: "http://unused"}, nil)
	_, err := idx.Upsert(context.Background(), "doc-1", nil)
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
}
