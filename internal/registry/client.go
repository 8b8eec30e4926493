package registry

import (
	"context"
	"sync"
)

// Client wraps a Store with a process-lifetime cache.
//
// Successful lookups are cached indefinitely (no TTL): dataset configs are
// read-mostly and externally managed, and acceptable staleness is "until
// process restart". Misses are not cached, so a dataset registered mid-run
// becomes visible on the next event that references it.
//
// The cache map is mutex-guarded because enrichment and the poll loop may
// share one Client across goroutines.
type Client struct {
	store Store

	mu    sync.RWMutex
	cache map[string]*DatasetConfig
}

var _ Store = (*Client)(nil)

// NewClient creates a caching registry client over the given backing store.
func NewClient(store Store) *Client {
	return &Client{
		store: store,
		cache: make(map[string]*DatasetConfig),
	}
}

// GetConfig returns the dataset config for a routing key, consulting the
// cache first. Returns (nil, nil) when the key is not registered.
func (c *Client) GetConfig(ctx context.Context, routingKey string) (*DatasetConfig, error) {
	c.mu.RLock()
	cached, ok := c.cache[routingKey]
	c.mu.RUnlock()

	if ok {
		return cached, nil
	}

	cfg, err := c.store.GetConfig(ctx, routingKey)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		return nil, nil
	}

	c.mu.Lock()
	c.cache[routingKey] = cfg
	c.mu.Unlock()

	return cfg, nil
}

// CacheSize returns the number of cached configs. Exposed for observability.
func (c *Client) CacheSize() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.cache)
}
