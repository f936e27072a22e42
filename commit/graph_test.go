package commit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/retry"
)

// memStager keeps staged payloads in a map.
type memStager struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func newMemStager() *memStager {
	return &memStager{objects: map[string][]byte{}}
}

func (m *memStager) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.objects[key] = data
	return nil
}

func sampleGraph() *graph.FactGraph {
	g := &graph.FactGraph{DocumentID: "doc-1"}
	g.Add("semgraph.document.doc-1", graph.TypeProperty, graph.Entity(graph.ClassDocument))
	g.Add("semgraph.document.doc-1", graph.PropHasID, graph.String("doc-1"))
	return g
}

// loaderServer fakes the bulk loader API: one POST returning a load ID,
// then GETs returning the scripted status sequence.
func loaderServer(t *testing.T, statuses ...string) (*httptest.Server, *atomic.Int64) {
	t.Helper()
	polls := &atomic.Int64{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var req map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "ntriples", req["format"])
			assert.Equal(t, "FALSE", req["failOnError"])
			assert.True(t, strings.HasPrefix(req["source"], "stage://"+BucketStaging+"/"))
			fmt.Fprint(w, `{"payload":{"loadId":"load-42"}}`)
		case http.MethodGet:
			n := polls.Add(1)
			status := statuses[len(statuses)-1]
			if int(n) <= len(statuses) {
				status = statuses[n-1]
			}
			fmt.Fprintf(w, `{"payload":{"loadId":"load-42","overallStatus":{"status":%q,"totalRecords":2}}}`, status)
		}
	}))
	t.Cleanup(server.Close)
	return server, polls
}

func TestGraphCommitSucceeds(t *testing.T) {
	server, polls := loaderServer(t, "LOAD_IN_PROGRESS", LoadCompleted)
	stager := newMemStager()
	store := NewGraphStore(stager, GraphStoreConfig{
		LoaderEndpoint: server.URL,
		PollInterval:   time.Millisecond,
		HTTPClient:     server.Client(),
	}, nil)

	result, err := store.Commit(context.Background(), sampleGraph())
	require.NoError(t, err)
	assert.Equal(t, "load-42", result.LoadID)
	assert.Equal(t, LoadCompleted, result.Status)
	assert.Equal(t, 2, result.TotalRecords)
	assert.GreaterOrEqual(t, polls.Load(), int64(2))

	staged, ok := stager.objects[graph.StagingKey("doc-1")]
	require.True(t, ok, "graph was not staged")
	assert.Contains(t, string(staged), "semgraph.document.doc-1")
}

func TestGraphCommitFailedLoadIsTransient(t *testing.T) {
	server, _ := loaderServer(t, LoadFailed)
	store := NewGraphStore(newMemStager(), GraphStoreConfig{
		LoaderEndpoint: server.URL,
		PollInterval:   time.Millisecond,
		HTTPClient:     server.Client(),
	}, nil)

	result, err := store.Commit(context.Background(), sampleGraph())
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err), "LOAD_FAILED should be retryable")
	require.NotNil(t, result)
	assert.Equal(t, LoadFailed, result.Status)
}

func TestGraphCommitServerErrorIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	store := NewGraphStore(newMemStager(), GraphStoreConfig{
		LoaderEndpoint: server.URL,
		HTTPClient:     server.Client(),
	}, nil)

	_, err := store.Commit(context.Background(), sampleGraph())
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestGraphCommitClientErrorIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	t.Cleanup(server.Close)

	store := NewGraphStore(newMemStager(), GraphStoreConfig{
		LoaderEndpoint: server.URL,
		HTTPClient:     server.Client(),
	}, nil)

	_, err := store.Commit(context.Background(), sampleGraph())
	require.Error(t, err)
	assert.False(t, retry.IsTransient(err))
}

func TestGraphCommitStagingFailureIsTransient(t *testing.T) {
	stager := newMemStager()
	stager.err = errors.New("bucket unreachable")
	store := NewGraphStore(stager, GraphStoreConfig{LoaderEndpoint: "http://unused"}, nil)

	_, err := store.Commit(context.Background(), sampleGraph())
	require.Error(t, err)
	assert.True(t, retry.IsTransient(err))
}

func TestGraphCommitPollingHonorsContext(t *testing.T) {
	server, _ := loaderServer(t, "LOAD_IN_PROGRESS")
	store := NewGraphStore(newMemStager(), GraphStoreConfig{
		LoaderEndpoint: server.URL,
		PollInterval:   50 * time.Millisecond,
		HTTPClient:     server.Client(),
	}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.Commit(ctx, sampleGraph())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
