package metadata

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/aiserve/inference-gateway/internal/gatewayerr"
	"github.com/aiserve/inference-gateway/internal/modelname"
)

type cacheEntry struct {
	label    string
	cachedAt time.Time
}

// Resolver implements §4.1: resolveVersion(name) -> label | nil | error,
// with a TTL cache that a hit never bypasses the TTL for, and for which an
// explicit invalidation is strictly stronger than waiting out the TTL.
type Resolver struct {
	store   Store
	ttl     time.Duration
	breaker *gobreaker.CircuitBreaker

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewResolver wraps store with a cache of the given TTL. Metadata-store
// calls are protected by a circuit breaker so a flaky store degrades to
// fast failures instead of blocking every resolution.
func NewResolver(store Store, ttl time.Duration) *Resolver {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "metadata-store",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.Requests >= 10 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
	})

	return &Resolver{
		store:   store,
		ttl:     ttl,
		breaker: breaker,
		cache:   make(map[string]cacheEntry),
	}
}

// ResolveVersion returns the active version label for name, or ("", nil)
// when name is a base identifier that is never versioned.
func (r *Resolver) ResolveVersion(ctx context.Context, name string) (string, error) {
	if modelname.IsBase(name) {
		return "", nil
	}

	if label, ok := r.cachedLabel(name); ok {
		return label, nil
	}

	result, err := r.breaker.Execute(func() (interface{}, error) {
		return r.store.ActiveVersionLabel(ctx, name)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", gatewayerr.Wrap(gatewayerr.MetadataStoreUnavailable, "metadata store circuit open", err).WithModel(name)
		}
		// Transient or VersionUnresolved errors alike must not populate the cache.
		return "", err
	}

	label := result.(string)
	r.mu.Lock()
	r.cache[name] = cacheEntry{label: label, cachedAt: time.Now()}
	r.mu.Unlock()

	return label, nil
}

func (r *Resolver) cachedLabel(name string) (string, bool) {
	r.mu.RLock()
	entry, ok := r.cache[name]
	r.mu.RUnlock()
	if !ok {
		return "", false
	}
	if time.Since(entry.cachedAt) >= r.ttl {
		return "", false
	}
	return entry.label, true
}

// Invalidate drops one cached entry. Returns true if an entry was removed.
func (r *Resolver) Invalidate(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cache[name]; !ok {
		return false
	}
	delete(r.cache, name)
	return true
}

// ClearAll drops every cached entry and returns how many were removed.
func (r *Resolver) ClearAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.cache)
	r.cache = make(map[string]cacheEntry)
	return n
}

// StatsEntry describes one cached resolution, for the diagnostic endpoint.
type StatsEntry struct {
	Name        string  `json:"name"`
	Label       string  `json:"version"`
	AgeSeconds  float64 `json:"age_seconds"`
}

// Stats reports the current cache contents for /admin/version-cache-stats.
func (r *Resolver) Stats() (entries []StatsEntry, ttlSeconds float64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries = make([]StatsEntry, 0, len(r.cache))
	for name, entry := range r.cache {
		entries = append(entries, StatsEntry{
			Name:       name,
			Label:      entry.label,
			AgeSeconds: time.Since(entry.cachedAt).Seconds(),
		})
	}
	return entries, r.ttl.Seconds()
}
