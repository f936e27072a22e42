// Package commit holds the two independent commit adapters: the graph
// store bulk loader and the vector index upserter. The adapters never
// communicate; the pipeline joins their results.
package commit

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketStaging is the object store bucket for staged fact graphs.
const BucketStaging = "SEMGRAPH_STAGING"

// Stager writes serialized fact graphs to the content-addressable
// staging area the bulk loader reads from.
type Stager struct {
	store jetstream.ObjectStore
}

// NewStager opens (or creates) the staging bucket.
func NewStager(ctx context.Context, js jetstream.JetStream) (*Stager, error) {
	store, err := js.ObjectStore(ctx, BucketStaging)
	if err != nil {
		store, err = js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
			Bucket:      BucketStaging,
			Description: "Semgraph staged fact graphs for bulk loading",
		})
		if err != nil {
			return nil, fmt.Errorf("create staging bucket: %w", err)
		}
	}
	return &Stager{store: store}, nil
}

// Put stages serialized triples under the given key, overwriting any
// previous attempt for the same document.
func (s *Stager) Put(ctx context.Context, key string, data []byte) error {
	if _, err := s.store.PutBytes(ctx, key, data); err != nil {
		return fmt.Errorf("stage graph %s: %w", key, err)
	}
	return nil
}

// Get fetches a staged serialization. Used by replay tooling and tests.
func (s *Stager) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.GetBytes(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get staged graph %s: %w", key, err)
	}
	return data, nil
}
