package cache

import (
	"context"
	"errors"
	"time"

	"github.com/Kosench/go-link-resolver/internal/metrics"
)

var _ Cache = (*TieredCache)(nil)

// TieredCache reads through a process-local L1 into a shared L2.
// The L1 TTL is kept short so other instances' invalidations converge quickly.
type TieredCache struct {
	local  *LocalCache
	remote Cache
}

// NewTieredCache accepts a nil local cache, in which case it behaves like remote.
func NewTieredCache(local *LocalCache, remote Cache) *TieredCache {
	if remote == nil {
		remote = NewNullCache()
	}
	return &TieredCache{local: local, remote: remote}
}

func (t *TieredCache) Set(ctx context.Context, key string, value interface{}) error {
	if t.local != nil {
		localError(t.local.Set(ctx, key, value))
	}
	return t.remote.Set(ctx, key, value)
}

func (t *TieredCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if t.local != nil {
		localTTL := ttl
		if t.local.ttl > 0 && (localTTL <= 0 || t.local.ttl < localTTL) {
			localTTL = t.local.ttl
		}
		localError(t.local.SetWithTTL(ctx, key, value, localTTL))
	}
	return t.remote.SetWithTTL(ctx, key, value, ttl)
}

// Get tries L1 then L2, back-filling L1 on an L2 hit.
// dest must be decodable from JSON, which also lets the L2 payload be copied into L1.
func (t *TieredCache) Get(ctx context.Context, key string, dest interface{}) error {
	if t.local != nil {
		if err := t.local.Get(ctx, key, dest); err == nil {
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return nil
		}
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	}

	err := t.remote.Get(ctx, key, dest)
	switch {
	case err == nil:
		metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
		if t.local != nil {
			localError(t.local.Set(ctx, key, dest))
		}
		return nil
	case errors.Is(err, ErrCacheMiss):
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
	default:
		metrics.CacheOperations.WithLabelValues("l2", "error").Inc()
	}
	return err
}

func (t *TieredCache) Delete(ctx context.Context, keys ...string) error {
	if t.local != nil {
		localError(t.local.Delete(ctx, keys...))
	}
	return t.remote.Delete(ctx, keys...)
}

func (t *TieredCache) HealthCheck(ctx context.Context) error {
	return t.remote.HealthCheck(ctx)
}

func (t *TieredCache) Close() error {
	if t.local != nil {
		localError(t.local.Close())
	}
	return t.remote.Close()
}

// localError counts L1 failures; L1 is best-effort so they never reach the caller.
func localError(err error) {
	if err != nil {
		metrics.CacheOperations.WithLabelValues("l1", "error").Inc()
	}
}
