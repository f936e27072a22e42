package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/c360studio/semgraph/retry"
)

// Embedder is the external collaborator contract for embedding vectors.
// Computing vectors is out of scope; the pipeline only consumes them.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// HTTPEmbedder calls an embedding service over HTTP.
// Request: POST <endpoint> {"texts": [...]}; response: {"vectors": [[...]]}.
type HTTPEmbedder struct {
	endpoint   string
	httpClient *http.Client
}

// NewHTTPEmbedder creates an embedding client. A nil client gets a
// 60-second-timeout default.
func NewHTTPEmbedder(endpoint string, httpClient *http.Client) *HTTPEmbedder {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPEmbedder{endpoint: endpoint, httpClient: httpClient}
}

// Embed returns one vector per input text, in input order.
func (e *HTTPEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]any{"texts": texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("call embedder: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read embed response: %w", err))
	}
	if resp.StatusCode >= 500 {
		return nil, retry.Transient(fmt.Errorf("embedder returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedder returned %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Vectors [][]float32 `json:"vectors"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse embed response: %w", err)
	}
	if len(parsed.Vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(parsed.Vectors), len(texts))
	}
	return parsed.Vectors, nil
}
