// Package storage archives pipeline executions and dead-letter records
// in NATS KV for diagnosis and replay.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Bucket names for each record type.
const (
	BucketExecutions  = "SEMGRAPH_EXECUTIONS"
	BucketDeadLetters = "SEMGRAPH_DEADLETTERS"
)

// deadLetterTTL bounds dead-letter retention; failures older than this
// are assumed reconciled or abandoned.
const deadLetterTTL = 30 * 24 * time.Hour

// StageChange records one state machine transition.
type StageChange struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// BranchResult is the outcome of one commit branch, kept even when the
// sibling branch failed so dead letters show the full picture.
type BranchResult struct {
	Branch    string          `json:"branch"`
	Succeeded bool            `json:"succeeded"`
	Attempts  int             `json:"attempts"`
	Error     string          `json:"error,omitempty"`
	Detail    json.RawMessage `json:"detail,omitempty"`
}

// ExecutionRecord is the archived terminal state of one pipeline run.
type ExecutionRecord struct {
	CorrelationID string         `json:"correlation_id"`
	DocumentID    string         `json:"document_id"`
	FinalStage    string         `json:"final_stage"`
	Succeeded     bool           `json:"succeeded"`
	Attempts      map[string]int `json:"attempts,omitempty"`
	Warnings      []string       `json:"warnings,omitempty"`
	StageChanges  []StageChange  `json:"stage_changes,omitempty"`
	BranchResults []BranchResult `json:"branch_results,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// ErrorDetail carries the terminal failure classification.
type ErrorDetail struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// DeadLetterRecord is the durable record of a terminally failed
// execution, retained for manual inspection and replay.
type DeadLetterRecord struct {
	DocumentID    string         `json:"documentId"`
	CorrelationID string         `json:"correlationId"`
	FailedStage   string         `json:"failedStage"`
	Error         ErrorDetail    `json:"error"`
	Attempts      map[string]int `json:"attempts,omitempty"`
	BranchResults []BranchResult `json:"branchResults,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Store provides record archival backed by NATS KV.
type Store struct {
	executions  jetstream.KeyValue
	deadLetters jetstream.KeyValue
}

// NewStore creates the archive store, creating buckets as needed.
func NewStore(ctx context.Context, js jetstream.JetStream) (*Store, error) {
	executions, err := getOrCreateBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      BucketExecutions,
		Description: "Semgraph terminal execution records",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("create executions bucket: %w", err)
	}

	deadLetters, err := getOrCreateBucket(ctx, js, jetstream.KeyValueConfig{
		Bucket:      BucketDeadLetters,
		Description: "Semgraph dead-letter records",
		History:     5,
		TTL:         deadLetterTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("create dead-letters bucket: %w", err)
	}

	return &Store{executions: executions, deadLetters: deadLetters}, nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, cfg jetstream.KeyValueConfig) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, cfg.Bucket)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, cfg)
}

// ArchiveExecution stores the terminal execution record, keyed by
// correlation ID. Re-drives overwrite the previous terminal record.
func (s *Store) ArchiveExecution(ctx context.Context, rec *ExecutionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal execution record: %w", err)
	}
	if _, err := s.executions.Put(ctx, rec.CorrelationID, data); err != nil {
		return fmt.Errorf("archive execution %s: %w", rec.CorrelationID, err)
	}
	return nil
}

// GetExecution retrieves an archived execution by correlation ID.
func (s *Store) GetExecution(ctx context.Context, correlationID string) (*ExecutionRecord, error) {
	entry, err := s.executions.Get(ctx, correlationID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get execution %s: %w", correlationID, err)
	}
	var rec ExecutionRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal execution record: %w", err)
	}
	return &rec, nil
}

// ArchiveDeadLetter stores a dead-letter record keyed by document ID so a
// re-drive of the same document finds (and replaces) its failure record.
func (s *Store) ArchiveDeadLetter(ctx context.Context, rec *DeadLetterRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal dead-letter record: %w", err)
	}
	if _, err := s.deadLetters.Put(ctx, rec.DocumentID, data); err != nil {
		return fmt.Errorf("archive dead letter %s: %w", rec.DocumentID, err)
	}
	return nil
}

// GetDeadLetter retrieves the dead-letter record for a document.
func (s *Store) GetDeadLetter(ctx context.Context, documentID string) (*DeadLetterRecord, error) {
	entry, err := s.deadLetters.Get(ctx, documentID)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get dead letter %s: %w", documentID, err)
	}
	var rec DeadLetterRecord
	if err := json.Unmarshal(entry.Value(), &rec); err != nil {
		return nil, fmt.Errorf("unmarshal dead-letter record: %w", err)
	}
	return &rec, nil
}

// ListDeadLetters returns all dead-letter records, for replay tooling.
func (s *Store) ListDeadLetters(ctx context.Context) ([]*DeadLetterRecord, error) {
	keys, err := s.deadLetters.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, nil
		}
		return nil, fmt.Errorf("list dead-letter keys: %w", err)
	}

	records := make([]*DeadLetterRecord, 0, len(keys))
	for _, key := range keys {
		entry, err := s.deadLetters.Get(ctx, key)
		if err != nil {
			continue // Skip entries that fail to load
		}
		var rec DeadLetterRecord
		if err := json.Unmarshal(entry.Value(), &rec); err != nil {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// isNotFound checks if an error indicates a key was not found.
func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key not found")
}
