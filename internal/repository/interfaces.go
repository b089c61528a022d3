package repository

import (
	"context"

	"github.com/Kosench/go-link-resolver/internal/model"
)

// LinkStore persists link records. Implementations translate uniqueness
// violations to apperrors.ErrShortCodeExists, misses to apperrors.ErrLinkNotFound
// and connectivity failures to *apperrors.StoreUnavailableError.
type LinkStore interface {
	// Insert assigns ID, CreatedAt and UpdatedAt.
	Insert(ctx context.Context, link *model.Link) error
	FindOne(ctx context.Context, query model.LinkQuery) (*model.Link, error)
	// Update writes the mutable fields of link by ID. ClickCount is never written.
	Update(ctx context.Context, link *model.Link) error
	Delete(ctx context.Context, id string) (bool, error)
	ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error)
	// ListPopular returns the most clicked links that can still be resolved.
	ListPopular(ctx context.Context, limit int) ([]*model.Link, error)
}

// ClickStore persists click events.
type ClickStore interface {
	// RecordClicks stores the batch and bumps click_count of each link.
	// Clicks for links that no longer exist are skipped.
	RecordClicks(ctx context.Context, clicks []model.Click) error
	ListClicks(ctx context.Context, linkID string, limit int) ([]model.Click, error)
}

type LinkRepository interface {
	LinkStore
	ClickStore
}
