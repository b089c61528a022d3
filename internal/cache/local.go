package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
)

var _ Cache = (*LocalCache)(nil)

// LocalCache is an in-process L1 cache backed by ristretto.
// Values are stored JSON-encoded so callers never share mutable state.
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache bounds the cache by entry count: every entry costs 1.
func NewLocalCache(maxItems int64, ttl time.Duration) (*LocalCache, error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("local cache size must be positive, got %d", maxItems)
	}

	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters:        maxItems * 10,
		MaxCost:            maxItems,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, NewCacheError("init", "", err)
	}

	return &LocalCache{cache: c, ttl: ttl}, nil
}

func (l *LocalCache) Set(ctx context.Context, key string, value interface{}) error {
	return l.SetWithTTL(ctx, key, value, l.ttl)
}

func (l *LocalCache) SetWithTTL(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if key == "" {
		return NewCacheError("set", key, ErrInvalidCacheKey)
	}

	data, err := json.Marshal(value)
	if err != nil {
		return NewCacheError("set", key, fmt.Errorf("failed to marshal value: %w", err))
	}

	if !l.cache.SetWithTTL(key, data, 1, ttl) {
		return NewCacheError("set", key, ErrCacheRejected)
	}
	// Sets are buffered; make the value visible to the next Get.
	l.cache.Wait()

	return nil
}

func (l *LocalCache) Get(ctx context.Context, key string, dest interface{}) error {
	if key == "" {
		return NewCacheError("get", key, ErrInvalidCacheKey)
	}

	v, ok := l.cache.Get(key)
	if !ok {
		return ErrCacheMiss
	}

	data, ok := v.([]byte)
	if !ok {
		l.cache.Del(key)
		return ErrCacheMiss
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return NewCacheError("get", key, fmt.Errorf("failed to unmarshal value: %w", err))
	}

	return nil
}

func (l *LocalCache) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if key != "" {
			l.cache.Del(key)
		}
	}
	return nil
}

func (l *LocalCache) HealthCheck(ctx context.Context) error {
	return nil
}

func (l *LocalCache) Close() error {
	l.cache.Close()
	return nil
}
