package ontology

import (
	"context"
	"fmt"
	"sort"

	"github.com/nats-io/nats.go/jetstream"
	"gopkg.in/yaml.v3"
)

// BucketSchemas is the KV bucket holding ontology schema documents.
const BucketSchemas = "SEMGRAPH_SCHEMAS"

// KVStore fetches schema documents from a NATS KV bucket. Each key holds
// one YAML schema document; documents are merged in key order.
type KVStore struct {
	kv jetstream.KeyValue
}

// NewKVStore opens (or creates) the schema bucket.
func NewKVStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	kv, err := js.KeyValue(ctx, BucketSchemas)
	if err != nil {
		kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
			Bucket:      BucketSchemas,
			Description: "Semgraph ontology schema documents",
			History:     5,
		})
		if err != nil {
			return nil, fmt.Errorf("create schema bucket: %w", err)
		}
	}
	return &KVStore{kv: kv}, nil
}

// Put stores one schema document under the given key. The document is
// parsed first so malformed schemas never reach the bucket.
func (s *KVStore) Put(ctx context.Context, key string, data []byte) error {
	if _, err := ParseModel(data); err != nil {
		return err
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("store schema %s: %w", key, err)
	}
	return nil
}

// Fetch merges all schema documents in the bucket into one validated model.
func (s *KVStore) Fetch(ctx context.Context) (*Model, error) {
	keys, err := s.kv.Keys(ctx)
	if err != nil {
		if err == jetstream.ErrNoKeysFound {
			return nil, fmt.Errorf("schema bucket empty: %w", ErrSchemaUnavailable)
		}
		return nil, fmt.Errorf("list schema keys: %w", err)
	}
	sort.Strings(keys)

	merged := &Model{}
	for _, key := range keys {
		entry, err := s.kv.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("get schema %s: %w", key, err)
		}
		var doc Model
		if err := yaml.Unmarshal(entry.Value(), &doc); err != nil {
			return nil, fmt.Errorf("parse schema %s: %w", key, err)
		}
		merged.Merge(&doc)
	}

	if err := merged.Validate(); err != nil {
		return nil, fmt.Errorf("merged schema invalid: %w", err)
	}
	return merged, nil
}
