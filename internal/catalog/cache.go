package catalog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/watchwell/screener/internal/model"
)

// Cache memoizes the resolved catalog so request handling does not refetch
// external catalog JSON on every call. A stale catalog is served when a
// refresh fails.
type Cache struct {
	loader *Loader
	ttl    time.Duration

	mu      sync.RWMutex
	catalog *model.Catalog
	fetched time.Time
}

// NewCache wraps a loader with a TTL-bounded catalog cache.
func NewCache(loader *Loader, ttl time.Duration) *Cache {
	return &Cache{loader: loader, ttl: ttl}
}

// Catalog returns the cached catalog, refreshing it when the TTL has passed.
func (c *Cache) Catalog(ctx context.Context) (*model.Catalog, error) {
	c.mu.RLock()
	catalog, fetched := c.catalog, c.fetched
	c.mu.RUnlock()
	if catalog != nil && time.Since(fetched) < c.ttl {
		return catalog, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.catalog != nil && time.Since(c.fetched) < c.ttl {
		return c.catalog, nil
	}
	fresh, err := c.loader.FetchCatalog(ctx)
	if err != nil {
		if c.catalog != nil {
			slog.Warn("catalog refresh failed, serving stale", "error", err)
			return c.catalog, nil
		}
		return nil, err
	}
	c.catalog = fresh
	c.fetched = time.Now()
	return fresh, nil
}

// Invalidate drops the cached catalog so the next call refetches.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.catalog = nil
	c.mu.Unlock()
}
