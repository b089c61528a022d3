package cache

import "errors"

var (
	// ErrCacheMiss is returned when the key is absent or expired.
	ErrCacheMiss = errors.New("cache miss")

	ErrCacheConnectionFailed = errors.New("cache connection failed")

	ErrInvalidCacheKey = errors.New("invalid cache key")

	// ErrCacheRejected is returned when the local cache drops a write under contention.
	ErrCacheRejected = errors.New("cache write rejected")
)

// CacheError wraps a failed cache operation.
type CacheError struct {
	Op  string // get, set, delete, ...
	Key string
	Err error
}

func (e *CacheError) Error() string {
	if e.Key != "" {
		return "cache " + e.Op + " '" + e.Key + "': " + e.Err.Error()
	}
	return "cache " + e.Op + ": " + e.Err.Error()
}

func (e *CacheError) Unwrap() error {
	return e.Err
}

func NewCacheError(op, key string, err error) error {
	return &CacheError{
		Op:  op,
		Key: key,
		Err: err,
	}
}
