package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

var _ LinkRepository = (*MemoryLinkRepository)(nil)

// MemoryLinkRepository keeps links in process memory. The byCode index
// enforces short code uniqueness the same way a unique constraint would.
type MemoryLinkRepository struct {
	mu     sync.RWMutex
	links  map[string]*model.Link
	byCode map[string]string
	clicks map[string][]model.Click
	order  map[string]int64 // insertion sequence, breaks CreatedAt ties
	seq    int64
	now    func() time.Time
}

func NewMemoryLinkRepository() *MemoryLinkRepository {
	return &MemoryLinkRepository{
		links:  make(map[string]*model.Link),
		byCode: make(map[string]string),
		clicks: make(map[string][]model.Click),
		order:  make(map[string]int64),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *MemoryLinkRepository) Insert(ctx context.Context, link *model.Link) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreUnavailableError("create link", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byCode[link.ShortCode]; taken {
		return apperrors.NewConflictError(link.ShortCode)
	}

	if link.Status == "" {
		link.Status = model.StatusActive
	}
	now := r.now()
	link.ID = uuid.NewString()
	link.CreatedAt = now
	link.UpdatedAt = now

	stored := cloneLink(link)
	stored.ClickCount = 0
	link.ClickCount = 0
	r.links[stored.ID] = stored
	r.byCode[stored.ShortCode] = stored.ID
	r.seq++
	r.order[stored.ID] = r.seq

	return nil
}

func (r *MemoryLinkRepository) FindOne(ctx context.Context, q model.LinkQuery) (*model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("get link", err)
	}
	if q.ID == "" && q.ShortCode == "" {
		return nil, errEmptyQuery
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id := q.ID
	if q.ShortCode != "" {
		codeID, ok := r.byCode[q.ShortCode]
		if !ok || (id != "" && id != codeID) {
			return nil, notFound(q)
		}
		id = codeID
	}

	link, ok := r.links[id]
	if !ok || (q.Status != "" && link.Status != q.Status) {
		return nil, notFound(q)
	}

	return cloneLink(link), nil
}

func (r *MemoryLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreUnavailableError("update link", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.links[link.ID]
	if !ok {
		return notFound(model.LinkQuery{ID: link.ID})
	}

	if link.ShortCode != current.ShortCode {
		if _, taken := r.byCode[link.ShortCode]; taken {
			return apperrors.NewConflictError(link.ShortCode)
		}
		delete(r.byCode, current.ShortCode)
		r.byCode[link.ShortCode] = link.ID
	}

	current.OriginalURL = link.OriginalURL
	current.ShortCode = link.ShortCode
	current.Title = link.Title
	current.Description = link.Description
	current.Status = link.Status
	current.ExpiresAt = cloneTime(link.ExpiresAt)
	current.PasswordHash = link.PasswordHash
	current.UpdatedAt = r.now()

	link.ClickCount = current.ClickCount
	link.UpdatedAt = current.UpdatedAt
	return nil
}

func (r *MemoryLinkRepository) Delete(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, apperrors.NewStoreUnavailableError("delete link", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	link, ok := r.links[id]
	if !ok {
		return false, nil
	}

	delete(r.byCode, link.ShortCode)
	delete(r.links, id)
	delete(r.clicks, id)
	delete(r.order, id)
	return true, nil
}

func (r *MemoryLinkRepository) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("list links", err)
	}

	r.mu.RLock()
	owned := make([]*model.Link, 0)
	order := make(map[string]int64)
	for _, link := range r.links {
		if link.UserID == userID {
			owned = append(owned, cloneLink(link))
			order[link.ID] = r.order[link.ID]
		}
	}
	r.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return order[owned[i].ID] > order[owned[j].ID]
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})

	return page(owned, clampLimit(limit, model.DefaultPageSize, model.MaxPageSize), offset), nil
}

func (r *MemoryLinkRepository) ListPopular(ctx context.Context, limit int) ([]*model.Link, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("list popular links", err)
	}

	now := r.now()

	r.mu.RLock()
	live := make([]*model.Link, 0)
	for _, link := range r.links {
		if link.Status == model.StatusActive && !link.IsExpiredAt(now) {
			live = append(live, cloneLink(link))
		}
	}
	r.mu.RUnlock()

	sort.Slice(live, func(i, j int) bool {
		if live[i].ClickCount == live[j].ClickCount {
			return live[i].CreatedAt.After(live[j].CreatedAt)
		}
		return live[i].ClickCount > live[j].ClickCount
	})

	return page(live, clampLimit(limit, model.DefaultPopularLimit, model.MaxPopularLimit), 0), nil
}

func (r *MemoryLinkRepository) RecordClicks(ctx context.Context, clicks []model.Click) error {
	if err := ctx.Err(); err != nil {
		return apperrors.NewStoreUnavailableError("record clicks", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range clicks {
		link, ok := r.links[c.LinkID]
		if !ok {
			continue
		}
		r.seq++
		c.ID = r.seq
		if c.ClickedAt.IsZero() {
			c.ClickedAt = r.now()
		}
		r.clicks[c.LinkID] = append(r.clicks[c.LinkID], c)
		link.ClickCount++
	}

	return nil
}

func (r *MemoryLinkRepository) ListClicks(ctx context.Context, linkID string, limit int) ([]model.Click, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.NewStoreUnavailableError("list clicks", err)
	}

	r.mu.RLock()
	stored := r.clicks[linkID]
	clicks := make([]model.Click, len(stored))
	copy(clicks, stored)
	r.mu.RUnlock()

	sort.SliceStable(clicks, func(i, j int) bool {
		if clicks[i].ClickedAt.Equal(clicks[j].ClickedAt) {
			return clicks[i].ID > clicks[j].ID
		}
		return clicks[i].ClickedAt.After(clicks[j].ClickedAt)
	})

	limit = clampLimit(limit, model.DefaultClickLimit, model.MaxClickLimit)
	if len(clicks) > limit {
		clicks = clicks[:limit]
	}
	return clicks, nil
}

func page(links []*model.Link, limit, offset int) []*model.Link {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(links) {
		return []*model.Link{}
	}
	end := offset + limit
	if end > len(links) {
		end = len(links)
	}
	return links[offset:end]
}

// cloneLink copies a record so callers never share the stored ExpiresAt.
func cloneLink(link *model.Link) *model.Link {
	c := *link
	c.ExpiresAt = cloneTime(link.ExpiresAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
