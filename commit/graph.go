package commit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/retry"
)

// Bulk load terminal statuses reported by the graph store loader.
const (
	LoadCompleted = "LOAD_COMPLETED"
	LoadFailed    = "LOAD_FAILED"
	LoadCancelled = "LOAD_CANCELLED"
)

// GraphStager is the staging surface the bulk loader reads from.
// *Stager implements it; tests use in-memory fakes.
type GraphStager interface {
	Put(ctx context.Context, key string, data []byte) error
}

// GraphStore stages serialized fact graphs and drives the graph store's
// bulk loader: stage, submit, poll until terminal.
type GraphStore struct {
	stager         GraphStager
	loaderEndpoint string
	pollInterval   time.Duration
	httpClient     *http.Client
	logger         *slog.Logger
}

// GraphStoreConfig configures the graph store adapter.
type GraphStoreConfig struct {
	// LoaderEndpoint is the bulk loader API base, e.g. https://graph:8182/loader.
	LoaderEndpoint string
	// PollInterval is how often load status is checked (default 5s).
	PollInterval time.Duration
	// HTTPClient overrides the default client (tests use httptest).
	HTTPClient *http.Client
}

// NewGraphStore creates a graph store commit adapter.
func NewGraphStore(stager GraphStager, cfg GraphStoreConfig, logger *slog.Logger) *GraphStore {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GraphStore{
		stager:         stager,
		loaderEndpoint: cfg.LoaderEndpoint,
		pollInterval:   cfg.PollInterval,
		httpClient:     cfg.HTTPClient,
		logger:         logger,
	}
}

// LoadResult is the terminal outcome of one bulk load.
type LoadResult struct {
	LoadID         string `json:"loadId"`
	Status         string `json:"status"`
	TotalRecords   int    `json:"totalRecords"`
	ParsingErrors  int    `json:"parsingErrors"`
	InsertErrors   int    `json:"insertErrors"`
	TotalTimeSpent int    `json:"totalTimeSpent"`
}

// Commit stages the accepted graph and bulk-loads it. A LOAD_FAILED
// status is a transient failure: bulk loaders commonly fail on capacity
// limits, so the retry budget applies.
func (s *GraphStore) Commit(ctx context.Context, g *graph.FactGraph) (*LoadResult, error) {
	key := graph.StagingKey(g.DocumentID)
	data := []byte(graph.SerializeNTriples(g))

	if err := s.stager.Put(ctx, key, data); err != nil {
		return nil, retry.Transient(err)
	}

	loadID, err := s.submitLoad(ctx, key)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Bulk load submitted",
		"document_id", g.DocumentID,
		"load_id", loadID,
		"triples", len(g.Facts))

	result, err := s.pollLoadStatus(ctx, loadID)
	if err != nil {
		return nil, err
	}

	if result.Status != LoadCompleted {
		return result, retry.Transient(fmt.Errorf(
			"bulk load %s ended with status %s (%d parsing errors, %d insert errors)",
			loadID, result.Status, result.ParsingErrors, result.InsertErrors))
	}

	return result, nil
}

// loaderRequest is the bulk loader submission payload.
type loaderRequest struct {
	Source      string `json:"source"`
	Format      string `json:"format"`
	FailOnError string `json:"failOnError"`
	Parallelism string `json:"parallelism"`
}

// loaderResponse wraps loader API responses.
type loaderResponse struct {
	Payload struct {
		LoadID        string `json:"loadId"`
		OverallStatus struct {
			Status         string `json:"status"`
			TotalRecords   int    `json:"totalRecords"`
			ParsingErrors  int    `json:"parsingErrors"`
			InsertErrors   int    `json:"insertErrors"`
			TotalTimeSpent int    `json:"totalTimeSpent"`
		} `json:"overallStatus"`
	} `json:"payload"`
}

func (s *GraphStore) submitLoad(ctx context.Context, stagingKey string) (string, error) {
	payload := loaderRequest{
		Source:      fmt.Sprintf("stage://%s/%s", BucketStaging, stagingKey),
		Format:      "ntriples",
		FailOnError: "FALSE",
		Parallelism: "MEDIUM",
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal loader request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.loaderEndpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build loader request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", retry.Transient(fmt.Errorf("submit bulk load: %w", err))
	}
	defer resp.Body.Close()

	var parsed loaderResponse
	if err := decodeResponse(resp, &parsed); err != nil {
		return "", err
	}
	if parsed.Payload.LoadID == "" {
		return "", fmt.Errorf("loader response carries no loadId")
	}
	return parsed.Payload.LoadID, nil
}

func (s *GraphStore) pollLoadStatus(ctx context.Context, loadID string) (*LoadResult, error) {
	statusURL := fmt.Sprintf("%s/%s", s.loaderEndpoint, loadID)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return nil, fmt.Errorf("build status request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, retry.Transient(fmt.Errorf("poll load status: %w", err))
		}

		var parsed loaderResponse
		err = decodeResponse(resp, &parsed)
		resp.Body.Close()
		if err != nil {
			return nil, err
		}

		status := parsed.Payload.OverallStatus.Status
		s.logger.Debug("Bulk load status", "load_id", loadID, "status", status)

		switch status {
		case LoadCompleted, LoadFailed, LoadCancelled:
			return &LoadResult{
				LoadID:         loadID,
				Status:         status,
				TotalRecords:   parsed.Payload.OverallStatus.TotalRecords,
				ParsingErrors:  parsed.Payload.OverallStatus.ParsingErrors,
				InsertErrors:   parsed.Payload.OverallStatus.InsertErrors,
				TotalTimeSpent: parsed.Payload.OverallStatus.TotalTimeSpent,
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// decodeResponse parses a loader API response, classifying server-side
// failures as transient and client mistakes as permanent.
func decodeResponse(resp *http.Response, out any) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return retry.Transient(fmt.Errorf("read loader response: %w", err))
	}

	if resp.StatusCode >= 500 {
		return retry.Transient(fmt.Errorf("loader API returned %d: %s", resp.StatusCode, body))
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("loader API returned %d: %s", resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse loader response: %w", err)
	}
	return nil
}
