package ontology

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultTTL is how long a cached model is served before a refresh from
// the schema store is attempted.
const DefaultTTL = time.Hour

// Cache serves one ontology model to all concurrent executions. It
// refreshes from the backing store when the cached copy is older than the
// TTL; concurrent misses share a single in-flight refresh. A failed
// refresh falls back to the last good model; only when no model has ever
// loaded does Get fail with ErrSchemaUnavailable.
type Cache struct {
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu        sync.RWMutex
	model     *Model
	fetchedAt time.Time
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithTTL overrides the default refresh TTL.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) { c.ttl = ttl }
}

// WithClock overrides the time source. Tests use this to force expiry.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// NewCache creates a model cache over the given schema store.
func NewCache(store Store, logger *slog.Logger, opts ...CacheOption) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:  store,
		ttl:    DefaultTTL,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the current model, refreshing if the cached copy is absent
// or older than the TTL.
func (c *Cache) Get(ctx context.Context) (*Model, error) {
	c.mu.RLock()
	model := c.model
	fresh := model != nil && c.now().Sub(c.fetchedAt) < c.ttl
	c.mu.RUnlock()

	if fresh {
		return model, nil
	}

	refreshed, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return refreshed.(*Model), nil
}

// refresh fetches from the store, falling back to the stale model on error.
func (c *Cache) refresh(ctx context.Context) (*Model, error) {
	model, err := c.store.Fetch(ctx)
	if err != nil {
		c.mu.RLock()
		stale := c.model
		staleAge := c.now().Sub(c.fetchedAt)
		c.mu.RUnlock()

		if stale != nil {
			c.logger.Warn("Ontology refresh failed, serving stale model",
				"error", err,
				"model_version", stale.Version,
				"age", staleAge)
			return stale, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrSchemaUnavailable, err)
	}

	model.LoadedAt = c.now()

	c.mu.Lock()
	c.model = model
	c.fetchedAt = model.LoadedAt
	c.mu.Unlock()

	c.logger.Debug("Ontology model refreshed",
		"version", model.Version,
		"classes", len(model.Classes),
		"restrictions", len(model.Restrictions))

	return model, nil
}

// Invalidate forces the next Get to refresh from the store. The cached
// model is kept as the stale fallback.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.fetchedAt = time.Time{}
	c.mu.Unlock()
}
