package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360studio/semgraph/graph"
	"github.com/c360studio/semgraph/retry"
)

// ArtifactSource fetches the parsed document an execution was triggered
// for. Locations name objects inside the staging object store.
type ArtifactSource interface {
	Fetch(ctx context.Context, sourceLocation string) (*graph.ParsedDocument, error)
}

// ObjectArtifactSource reads parsed documents out of a JetStream object
// store bucket. A missing object is a permanent failure since no retry
// will make the artifact appear.
type ObjectArtifactSource struct {
	bucket jetstream.ObjectStore
}

// NewObjectArtifactSource wraps an existing object store bucket.
func NewObjectArtifactSource(bucket jetstream.ObjectStore) *ObjectArtifactSource {
	return &ObjectArtifactSource{bucket: bucket}
}

// Fetch retrieves and decodes the artifact at sourceLocation.
func (s *ObjectArtifactSource) Fetch(ctx context.Context, sourceLocation string) (*graph.ParsedDocument, error) {
	if sourceLocation == "" {
		return nil, fmt.Errorf("source location is empty")
	}

	data, err := s.bucket.GetBytes(ctx, sourceLocation)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("artifact %s not found: %w", sourceLocation, err)
		}
		return nil, retry.Transient(fmt.Errorf("fetch artifact %s: %w", sourceLocation, err))
	}

	var doc graph.ParsedDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode artifact %s: %w", sourceLocation, err)
	}
	return &doc, nil
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "not found")
}
