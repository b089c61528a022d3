package repository

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/Kosench/go-link-resolver/internal/cache"
	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

// cacheEntry is what gets stored under a short code key. Missing marks a
// negative entry so repeated lookups of unknown codes skip the database.
type cacheEntry struct {
	Missing bool        `json:"missing,omitempty"`
	Link    *model.Link `json:"link,omitempty"`
}

type CacheOptions struct {
	TTL         time.Duration
	NegativeTTL time.Duration
	Namespace   string
}

var _ LinkRepository = (*CachedLinkRepository)(nil)

// CachedLinkRepository caches short code lookups in front of another repository.
// Cache failures are logged and never fail the call.
type CachedLinkRepository struct {
	inner       LinkRepository
	cache       cache.Cache
	keys        *cache.KeyBuilder
	ttl         time.Duration
	negativeTTL time.Duration
	logger      *zap.Logger
}

func NewCachedLinkRepository(inner LinkRepository, c cache.Cache, logger *zap.Logger, opts CacheOptions) *CachedLinkRepository {
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.NegativeTTL <= 0 {
		opts.NegativeTTL = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &CachedLinkRepository{
		inner:       inner,
		cache:       c,
		keys:        cache.NewKeyBuilder(opts.Namespace),
		ttl:         opts.TTL,
		negativeTTL: opts.NegativeTTL,
		logger:      logger,
	}
}

func (r *CachedLinkRepository) Insert(ctx context.Context, link *model.Link) error {
	if err := r.inner.Insert(ctx, link); err != nil {
		return err
	}

	// Replaces any negative entry left by an earlier lookup of this code.
	r.store(ctx, link)
	return nil
}

func (r *CachedLinkRepository) FindOne(ctx context.Context, q model.LinkQuery) (*model.Link, error) {
	if q.ShortCode == "" || q.ID != "" {
		return r.inner.FindOne(ctx, q)
	}

	key := r.keys.Link(q.ShortCode)

	var entry cacheEntry
	err := r.cache.Get(ctx, key, &entry)
	switch {
	case err == nil:
		if entry.Missing || entry.Link == nil {
			return nil, notFound(q)
		}
		return filterStatus(entry.Link, q)
	case !errors.Is(err, cache.ErrCacheMiss):
		r.logger.Warn("link cache read failed", zap.String("key", key), zap.Error(err))
	}

	// Load without the status filter so the full record can be cached.
	link, err := r.inner.FindOne(ctx, model.LinkQuery{ShortCode: q.ShortCode})
	if apperrors.IsNotFound(err) {
		if cerr := r.cache.SetWithTTL(ctx, key, cacheEntry{Missing: true}, r.negativeTTL); cerr != nil {
			r.logger.Warn("link cache negative write failed", zap.String("key", key), zap.Error(cerr))
		}
		return nil, notFound(q)
	}
	if err != nil {
		return nil, err
	}

	r.store(ctx, link)
	return filterStatus(link, q)
}

func (r *CachedLinkRepository) Update(ctx context.Context, link *model.Link) error {
	var oldCode string
	if current, err := r.inner.FindOne(ctx, model.LinkQuery{ID: link.ID}); err == nil {
		oldCode = current.ShortCode
	}

	if err := r.inner.Update(ctx, link); err != nil {
		return err
	}

	r.invalidate(ctx, oldCode, link.ShortCode)
	return nil
}

func (r *CachedLinkRepository) Delete(ctx context.Context, id string) (bool, error) {
	var code string
	if current, err := r.inner.FindOne(ctx, model.LinkQuery{ID: id}); err == nil {
		code = current.ShortCode
	}

	deleted, err := r.inner.Delete(ctx, id)
	if err != nil {
		return false, err
	}

	if deleted {
		r.invalidate(ctx, code)
	}
	return deleted, nil
}

func (r *CachedLinkRepository) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error) {
	return r.inner.ListByOwner(ctx, userID, limit, offset)
}

func (r *CachedLinkRepository) ListPopular(ctx context.Context, limit int) ([]*model.Link, error) {
	return r.inner.ListPopular(ctx, limit)
}

func (r *CachedLinkRepository) RecordClicks(ctx context.Context, clicks []model.Click) error {
	return r.inner.RecordClicks(ctx, clicks)
}

func (r *CachedLinkRepository) ListClicks(ctx context.Context, linkID string, limit int) ([]model.Click, error) {
	return r.inner.ListClicks(ctx, linkID, limit)
}

// WarmupCache preloads the most clicked resolvable links.
func (r *CachedLinkRepository) WarmupCache(ctx context.Context, limit int) (int, error) {
	links, err := r.inner.ListPopular(ctx, limit)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, link := range links {
		key := r.keys.Link(link.ShortCode)
		if err := r.cache.SetWithTTL(ctx, key, cacheEntry{Link: link}, r.ttl); err != nil {
			r.logger.Warn("link cache warm-up write failed", zap.String("key", key), zap.Error(err))
			continue
		}
		count++
	}

	r.logger.Info("link cache warmed up", zap.Int("links", count))
	return count, nil
}

func (r *CachedLinkRepository) store(ctx context.Context, link *model.Link) {
	key := r.keys.Link(link.ShortCode)
	if err := r.cache.SetWithTTL(ctx, key, cacheEntry{Link: link}, r.ttl); err != nil {
		r.logger.Warn("link cache write failed", zap.String("key", key), zap.Error(err))
		r.invalidate(ctx, link.ShortCode)
	}
}

func (r *CachedLinkRepository) invalidate(ctx context.Context, codes ...string) {
	keys := make([]string, 0, len(codes))
	for _, code := range codes {
		if code != "" {
			keys = append(keys, r.keys.Link(code))
		}
	}
	if len(keys) == 0 {
		return
	}

	if err := r.cache.Delete(ctx, keys...); err != nil {
		r.logger.Warn("link cache invalidation failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func filterStatus(link *model.Link, q model.LinkQuery) (*model.Link, error) {
	if q.Status != "" && link.Status != q.Status {
		return nil, notFound(q)
	}
	found := *link
	return &found, nil
}
