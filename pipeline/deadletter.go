package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/c360studio/semgraph/storage"
	"github.com/c360studio/semstreams/natsclient"
)

// DefaultDeadLetterSubject is where failed executions are announced for
// downstream re-drive tooling.
const DefaultDeadLetterSubject = "pipeline.deadletter"

// DeadLetterSink receives the single record emitted for each execution
// that reaches the Failed stage.
type DeadLetterSink interface {
	Emit(ctx context.Context, record *storage.DeadLetterRecord) error
}

// NATSDeadLetterSink publishes dead letters to a JetStream subject and
// archives them in the dead-letter bucket. Archiving keys by document ID,
// so a later re-drive of the same document replaces the old entry.
type NATSDeadLetterSink struct {
	client  *natsclient.Client
	store   *storage.Store
	subject string
	logger  *slog.Logger
}

// NewNATSDeadLetterSink creates a sink on the given subject. An empty
// subject selects DefaultDeadLetterSubject.
func NewNATSDeadLetterSink(client *natsclient.Client, store *storage.Store, subject string, logger *slog.Logger) *NATSDeadLetterSink {
	if subject == "" {
		subject = DefaultDeadLetterSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSDeadLetterSink{
		client:  client,
		store:   store,
		subject: subject,
		logger:  logger,
	}
}

// Emit archives the record, then publishes it. The archive is the source
// of truth; a publish failure is logged but does not fail the emit.
func (s *NATSDeadLetterSink) Emit(ctx context.Context, record *storage.DeadLetterRecord) error {
	if err := s.store.ArchiveDeadLetter(ctx, record); err != nil {
		return fmt.Errorf("archive dead letter: %w", err)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}

	if err := s.client.PublishToStream(ctx, s.subject, data); err != nil {
		s.logger.Warn("Failed to publish dead letter",
			"document_id", record.DocumentID,
			"subject", s.subject,
			"error", err)
	}

	return nil
}
