package auth

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// newKeyCache builds the process-local TTL cache from §4.5 step 5: at
// most size entries, each evicted after ttl regardless of access.
func newKeyCache(size int, ttl time.Duration) *lru.LRU[string, *KeyRecord] {
	return lru.NewLRU[string, *KeyRecord](size, nil, ttl)
}
