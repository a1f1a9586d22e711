package store

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// listCache memoizes list queries per entity type. Any write to a type
// invalidates its entry, so reads are snapshot-consistent with the store.
type listCache struct {
	cache *cache.Cache
}

func newListCache(defaultExpiration, cleanupInterval time.Duration) *listCache {
	return &listCache{cache: cache.New(defaultExpiration, cleanupInterval)}
}

func (c *listCache) Get(entityType string) (interface{}, bool) {
	return c.cache.Get(entityType)
}

func (c *listCache) Set(entityType string, value interface{}) {
	c.cache.Set(entityType, value, cache.DefaultExpiration)
}

func (c *listCache) Invalidate(entityType string) {
	c.cache.Delete(entityType)
}
