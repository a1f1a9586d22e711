package backend

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"lotusflow/studiosync/internal/logging"
)

const pullCacheTTL = 30 * time.Second

// PullCache shields the record store from full-pull stampedes (every fresh
// device starts with an empty checkpoint). Only cursor-less pulls are cached;
// incremental pulls are cheap and too varied to be worth keys.
type PullCache struct {
	rdb *redis.Client
}

// NewPullCache connects to redis; a nil return means caching is disabled
func NewPullCache(addr string) *PullCache {
	if addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logging.Warn("Redis unreachable, pull cache disabled", "addr", addr, "error", err.Error())
		return nil
	}
	return &PullCache{rdb: rdb}
}

func pullKey(entityType string) string { return "studiosync:pull:full:" + entityType }

// Get returns the cached full-pull body for a type, or nil on miss
func (c *PullCache) Get(ctx context.Context, entityType string) []byte {
	if c == nil {
		return nil
	}
	body, err := c.rdb.Get(ctx, pullKey(entityType)).Bytes()
	if err != nil {
		return nil
	}
	return body
}

// Set stores a full-pull body for a type
func (c *PullCache) Set(ctx context.Context, entityType string, body []byte) {
	if c == nil {
		return
	}
	if err := c.rdb.Set(ctx, pullKey(entityType), body, pullCacheTTL).Err(); err != nil {
		logging.Debug("Pull cache set failed", "entityType", entityType, "error", err.Error())
	}
}

// Invalidate drops the cached full pull after a write to the type
func (c *PullCache) Invalidate(ctx context.Context, entityType string) {
	if c == nil {
		return
	}
	if err := c.rdb.Del(ctx, pullKey(entityType)).Err(); err != nil {
		logging.Debug("Pull cache invalidate failed", "entityType", entityType, "error", err.Error())
	}
}
