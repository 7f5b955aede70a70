package modelcache

import (
	"time"

	"github.com/aiserve/inference-gateway/internal/logging"
)

// evictForMemory implements §4.3's eviction algorithm: fine-tuned entries
// first (LRU order), then any other non-base entry (in this two-tier
// model that is the same adapted set, so the two steps collapse into
// one pass here), then base entries in LRU order restricted to
// zero-refcount ones. It stops as soon as enough has been freed or no
// further candidate exists; failing to free enough is logged, not fatal.
func (c *CacheState) evictForMemory(requiredBytes int64, device Device) {
	for {
		available := AvailableBytes(device)
		usable := UsableCeiling(available, c.softLimit)
		if usable >= requiredBytes+c.minFreeBytes {
			return
		}

		victim, isAdapted := c.pickEvictionVictim()
		if victim == "" {
			logging.Warn("eviction: no candidates to free required memory, proceeding", map[string]interface{}{
				"required_bytes": requiredBytes,
				"usable_bytes":   usable,
			})
			return
		}

		c.evictLocked(victim, isAdapted)
		c.loader.ReleaseDeviceCache()
	}
}

// pickEvictionVictim returns the next name to evict and whether it's an
// adapted entry, or ("", false) if nothing can be evicted.
func (c *CacheState) pickEvictionVictim() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if name, ok := oldestAdapted(c.adapted); ok {
		return name, true
	}

	var best string
	var bestTime time.Time
	for name, b := range c.bases {
		if b.refcount() != 0 {
			continue
		}
		t := b.LastAccess()
		if best == "" || t.Before(bestTime) {
			best, bestTime = name, t
		}
	}
	return best, false
}

func oldestAdapted(table map[string]*CachedAdapted) (string, bool) {
	var best string
	var bestTime time.Time
	for name, a := range table {
		t := a.LastAccess()
		if best == "" || t.Before(bestTime) {
			best, bestTime = name, t
		}
	}
	return best, best != ""
}

func (c *CacheState) evictLocked(name string, isAdapted bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if isAdapted {
		a, ok := c.adapted[name]
		if !ok {
			return
		}
		delete(c.adapted, name)
		a.Base.decref()
		a.Adapter.Close()
		return
	}

	b, ok := c.bases[name]
	if !ok || b.refcount() != 0 {
		return
	}
	delete(c.bases, name)
	b.Weights.Close()
}
