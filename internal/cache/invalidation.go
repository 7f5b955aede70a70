package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aiserve/inference-gateway/internal/config"
	"github.com/aiserve/inference-gateway/internal/logging"
)

const invalidationChannel = "gateway:invalidate"

// ReplicaInvalidator carries cache-invalidation notices between gateway
// replicas over Redis pub/sub. Each replica's own resident-model map and
// version-resolver cache stay the authoritative per-process state; Redis
// only relays "drop your copy of this model" messages.
type ReplicaInvalidator struct {
	client *redis.Client
}

// NewReplicaInvalidator connects to Redis per cfg. Returns (nil, nil)
// when Redis is disabled, so callers can treat a nil *ReplicaInvalidator
// as "single replica, no cross-process invalidation needed".
func NewReplicaInvalidator(cfg config.RedisConfig) (*ReplicaInvalidator, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("unable to connect to redis: %w", err)
	}

	return &ReplicaInvalidator{client: client}, nil
}

// Publish announces that name should be dropped from every replica's
// local caches. Errors are logged, not returned: a missed invalidation
// notice degrades to "a sibling serves a stale version a bit longer", not
// a request failure, so publish failures must never propagate into the
// admin request path.
func (r *ReplicaInvalidator) Publish(name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.client.Publish(ctx, invalidationChannel, name).Err(); err != nil {
		logging.Warn("replica invalidation publish failed", map[string]interface{}{"model": name, "error": err.Error()})
	}
}

// Subscribe runs until ctx is canceled, calling onInvalidate for every
// notice on the channel, including notices this replica published
// itself; the caller's onInvalidate (modelcache.CacheState.InvalidateLocal)
// is idempotent against a redundant drop.
func (r *ReplicaInvalidator) Subscribe(ctx context.Context, onInvalidate func(name string)) {
	sub := r.client.Subscribe(ctx, invalidationChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			onInvalidate(msg.Payload)
		}
	}
}

// Close releases the underlying Redis connection.
func (r *ReplicaInvalidator) Close() error {
	if r == nil {
		return nil
	}
	return r.client.Close()
}
