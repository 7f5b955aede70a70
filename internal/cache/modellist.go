// Package cache holds the gateway's short-lived response cache and its
// cross-replica invalidation transport — distinct from internal/modelcache,
// which owns the resident model weights themselves.
package cache

import (
	"context"
	"time"

	"github.com/allegro/bigcache/v3"
)

// ModelListCache holds the rendered GET /v1/models body for a short TTL,
// so a burst of listing requests doesn't each pay a round trip through
// the resident cache's own locking. This is a response cache, not a
// prompt/completion cache.
type ModelListCache struct {
	local *bigcache.BigCache
}

// NewModelListCache builds a ModelListCache whose entries expire after ttl.
func NewModelListCache(ctx context.Context, ttl time.Duration) (*ModelListCache, error) {
	cfg := bigcache.Config{
		Shards:             16,
		LifeWindow:         ttl,
		CleanWindow:        ttl,
		MaxEntriesInWindow: 64,
		MaxEntrySize:       4096,
		HardMaxCacheSize:   8, // MB
		Verbose:            false,
	}

	local, err := bigcache.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &ModelListCache{local: local}, nil
}

const modelListKey = "v1/models"

// Get returns the cached listing body, or false on a miss or expiry.
func (c *ModelListCache) Get() ([]byte, bool) {
	data, err := c.local.Get(modelListKey)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Set stores the rendered listing body.
func (c *ModelListCache) Set(body []byte) {
	_ = c.local.Set(modelListKey, body)
}

// Invalidate drops the cached listing, so the next request re-renders it
// from the resident set (called whenever the resident set changes).
func (c *ModelListCache) Invalidate() {
	_ = c.local.Delete(modelListKey)
}
