package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/c360studio/semgraph/retry"
)

// VectorRecord is one upsert unit for the vector index. ID is stable
// ("<documentId>-<chunkId>") so resubmitting a partially-applied batch
// overwrites instead of duplicating.
type VectorRecord struct {
	ID       string         `json:"id"`
	Vector   []float32      `json:"vector"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RecordID builds the stable vector record identifier for a chunk.
func RecordID(documentID string, chunkID int) string {
	return fmt.Sprintf("%s-%d", documentID, chunkID)
}

// VectorIndex batch-upserts chunk records into the vector search index.
type VectorIndex struct {
	endpoint   string
	indexName  string
	dimensions int
	httpClient *http.Client
	logger     *slog.Logger
}

// VectorIndexConfig configures the vector index adapter.
type VectorIndexConfig struct {
	// Endpoint is the search cluster base URL.
	Endpoint string
	// IndexName defaults to "document-embeddings".
	IndexName string
	// Dimensions is the embedding width (default 1536).
	Dimensions int
	// HTTPClient overrides the default client (tests use httptest).
	HTTPClient *http.Client
}

// NewVectorIndex creates a vector index commit adapter.
func NewVectorIndex(cfg VectorIndexConfig, logger *slog.Logger) *VectorIndex {
	if cfg.IndexName == "" {
		cfg.IndexName = "document-embeddings"
	}
	if cfg.Dimensions <= 0 {
		cfg.Dimensions = 1536
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VectorIndex{
		endpoint:   strings.TrimSuffix(cfg.Endpoint, "/"),
		indexName:  cfg.IndexName,
		dimensions: cfg.Dimensions,
		httpClient: cfg.HTTPClient,
		logger:     logger,
	}
}

// EnsureIndex creates the knn index if it does not exist.
func (v *VectorIndex) EnsureIndex(ctx context.Context) error {
	indexURL := fmt.Sprintf("%s/%s", v.endpoint, v.indexName)

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, indexURL, nil)
	if err != nil {
		return fmt.Errorf("build index check request: %w", err)
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("check index: %w", err))
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"settings": map[string]any{
			"index.knn":          true,
			"number_of_shards":   2,
			"number_of_replicas": 1,
		},
		"mappings": map[string]any{
			"properties": map[string]any{
				"documentId": map[string]any{"type": "keyword"},
				"chunkId":    map[string]any{"type": "integer"},
				"embedding": map[string]any{
					"type":      "knn_vector",
					"dimension": v.dimensions,
					"method": map[string]any{
						"name":       "hnsw",
						"space_type": "cosinesimil",
						"engine":     "nmslib",
					},
				},
				"text":      map[string]any{"type": "text"},
				"metadata":  map[string]any{"type": "object"},
				"timestamp": map[string]any{"type": "date"},
			},
		},
	}

	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("marshal index mapping: %w", err)
	}

	req, err = http.NewRequestWithContext(ctx, http.MethodPut, indexURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build index create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err = v.httpClient.Do(req)
	if err != nil {
		return retry.Transient(fmt.Errorf("create index: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return retry.Transient(fmt.Errorf("create index returned %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("create index returned %d", resp.StatusCode)
	}

	v.logger.Info("Vector index created",
		"index", v.indexName,
		"dimensions", v.dimensions)
	return nil
}

// UpsertResult summarizes one batch upsert.
type UpsertResult struct {
	Indexed int    `json:"indexed"`
	Index   string `json:"index"`
}

// bulkItemResult is one per-item status line from the bulk API.
type bulkItemResult struct {
	Index struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"index"`
}

// Upsert batch-writes records with the bulk API, keyed by record ID so
// retries overwrite rather than duplicate.
func (v *VectorIndex) Upsert(ctx context.Context, documentID string, records []VectorRecord) (*UpsertResult, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records to upsert for document %s", documentID)
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range records {
		action := map[string]any{
			"index": map[string]any{"_index": v.indexName, "_id": rec.ID},
		}
		doc := map[string]any{
			"documentId": documentID,
			"embedding":  rec.Vector,
			"text":       rec.Text,
			"metadata":   rec.Metadata,
			"timestamp":  now,
		}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(doc); err != nil {
			return nil, fmt.Errorf("encode bulk document: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/_bulk", v.endpoint), &body)
	if err != nil {
		return nil, fmt.Errorf("build bulk request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("bulk upsert: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("read bulk response: %w", err))
	}
	if resp.StatusCode >= 500 {
		return nil, retry.Transient(fmt.Errorf("bulk API returned %d: %s", resp.StatusCode, respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bulk API returned %d: %s", resp.StatusCode, respBody)
	}

	var parsed struct {
		Errors bool             `json:"errors"`
		Items  []bulkItemResult `json:"items"`
	}
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("parse bulk response: %w", err)
	}

	if parsed.Errors {
		for _, item := range parsed.Items {
			if item.Index.Error != nil {
				return nil, retry.Transient(fmt.Errorf("bulk item %s failed: %s: %s",
					item.Index.ID, item.Index.Error.Type, item.Index.Error.Reason))
			}
		}
		return nil, retry.Transient(fmt.Errorf("bulk upsert reported errors"))
	}

	v.logger.Debug("Vector batch upserted",
		"document_id", documentID,
		"records", len(records),
		"index", v.indexName)

	return &UpsertResult{Indexed: len(records), Index: v.indexName}, nil
}
