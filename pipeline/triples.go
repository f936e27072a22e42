package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/c360studio/semstreams/natsclient"

	"github.com/c360studio/semgraph/graph"
)

// DefaultTripleSubject is where accepted fact graphs are announced once
// both commit branches have succeeded.
const DefaultTripleSubject = "pipeline.graph.committed"

// TriplePublisher announces a committed fact graph to downstream
// consumers. The announcement is auxiliary; the commits themselves are
// already durable when it fires.
type TriplePublisher interface {
	PublishGraph(ctx context.Context, correlationID string, g *graph.FactGraph) error
}

// NATSTriplePublisher publishes committed graphs as triple batches on a
// JetStream subject.
type NATSTriplePublisher struct {
	client  *natsclient.Client
	subject string
	logger  *slog.Logger
	now     func() time.Time
}

// NewNATSTriplePublisher creates a publisher on the given subject. An
// empty subject selects DefaultTripleSubject.
func NewNATSTriplePublisher(client *natsclient.Client, subject string, logger *slog.Logger) *NATSTriplePublisher {
	if subject == "" {
		subject = DefaultTripleSubject
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSTriplePublisher{
		client:  client,
		subject: subject,
		logger:  logger,
		now:     time.Now,
	}
}

// PublishGraph converts the graph to message triples and publishes one
// batch per document.
func (p *NATSTriplePublisher) PublishGraph(ctx context.Context, correlationID string, g *graph.FactGraph) error {
	payload := struct {
		DocumentID    string           `json:"documentId"`
		CorrelationID string           `json:"correlationId"`
		Triples       []message.Triple `json:"triples"`
	}{
		DocumentID:    g.DocumentID,
		CorrelationID: correlationID,
		Triples:       graph.MessageTriples(g, p.now()),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal triple batch: %w", err)
	}

	if err := p.client.PublishToStream(ctx, p.subject, data); err != nil {
		return fmt.Errorf("publish triple batch: %w", err)
	}

	p.logger.Debug("Committed graph announced",
		"document_id", g.DocumentID,
		"triples", len(payload.Triples),
		"subject", p.subject)
	return nil
}
