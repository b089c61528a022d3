package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

func newLink(userID, code string) *model.Link {
	return &model.Link{
		UserID:      userID,
		OriginalURL: "https://example.com/" + code,
		ShortCode:   code,
		Status:      model.StatusActive,
	}
}

func TestMemoryLinkRepository_InsertAssignsIdentity(t *testing.T) {
	repo := NewMemoryLinkRepository()
	link := newLink("u1", "abc123")
	link.ClickCount = 99

	if err := repo.Insert(context.Background(), link); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	if link.ID == "" {
		t.Error("Insert() did not assign ID")
	}
	if link.CreatedAt.IsZero() || !link.UpdatedAt.Equal(link.CreatedAt) {
		t.Errorf("Insert() timestamps = %v / %v", link.CreatedAt, link.UpdatedAt)
	}
	if link.ClickCount != 0 {
		t.Errorf("Insert() ClickCount = %d, want 0", link.ClickCount)
	}
}

func TestMemoryLinkRepository_InsertDuplicateCode(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	if err := repo.Insert(ctx, newLink("u1", "promo")); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	err := repo.Insert(ctx, newLink("u2", "promo"))
	if !errors.Is(err, apperrors.ErrShortCodeExists) {
		t.Fatalf("Insert() duplicate error = %v, want ErrShortCodeExists", err)
	}
	if c := apperrors.GetConflictError(err); c == nil || c.ShortCode != "promo" {
		t.Errorf("Insert() conflict = %+v", c)
	}
}

func TestMemoryLinkRepository_ConcurrentInsertSameCode(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.Insert(ctx, newLink("u1", "race"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case apperrors.IsConflictError(err):
				conflicts++
			default:
				t.Errorf("Insert() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || conflicts != workers-1 {
		t.Errorf("successes = %d, conflicts = %d, want 1 and %d", successes, conflicts, workers-1)
	}
}

func TestMemoryLinkRepository_FindOne(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	active := newLink("u1", "alive")
	disabled := newLink("u1", "off")
	disabled.Status = model.StatusDisabled
	for _, l := range []*model.Link{active, disabled} {
		if err := repo.Insert(ctx, l); err != nil {
			t.Fatalf("Insert() error = %v", err)
		}
	}

	tests := []struct {
		name    string
		query   model.LinkQuery
		wantID  string
		wantErr error
	}{
		{"by code", model.LinkQuery{ShortCode: "alive"}, active.ID, nil},
		{"by id", model.LinkQuery{ID: disabled.ID}, disabled.ID, nil},
		{"by code and active status", model.LinkQuery{ShortCode: "alive", Status: model.StatusActive}, active.ID, nil},
		{"disabled filtered by status", model.LinkQuery{ShortCode: "off", Status: model.StatusActive}, "", apperrors.ErrLinkNotFound},
		{"id and code mismatch", model.LinkQuery{ID: active.ID, ShortCode: "off"}, "", apperrors.ErrLinkNotFound},
		{"unknown code", model.LinkQuery{ShortCode: "nope"}, "", apperrors.ErrLinkNotFound},
		{"unknown id", model.LinkQuery{ID: "missing"}, "", apperrors.ErrLinkNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.FindOne(ctx, tt.query)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("FindOne() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("FindOne() error = %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("FindOne() ID = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestMemoryLinkRepository_FindOneEmptyQuery(t *testing.T) {
	repo := NewMemoryLinkRepository()
	_, err := repo.FindOne(context.Background(), model.LinkQuery{Status: model.StatusActive})
	if !apperrors.IsValidationError(err) {
		t.Errorf("FindOne() error = %v, want validation error", err)
	}
}

func TestMemoryLinkRepository_UpdateKeepsClickCount(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	link := newLink("u1", "count")
	if err := repo.Insert(ctx, link); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if err := repo.RecordClicks(ctx, []model.Click{{LinkID: link.ID}, {LinkID: link.ID}}); err != nil {
		t.Fatalf("RecordClicks() error = %v", err)
	}

	stale := *link
	stale.ClickCount = 0
	stale.Title = "renamed"
	if err := repo.Update(ctx, &stale); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if stale.ClickCount != 2 {
		t.Errorf("Update() ClickCount = %d, want 2", stale.ClickCount)
	}

	got, _ := repo.FindOne(ctx, model.LinkQuery{ID: link.ID})
	if got.ClickCount != 2 || got.Title != "renamed" {
		t.Errorf("stored link = %+v", got)
	}
}

func TestMemoryLinkRepository_ExpiryNotShared(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	expiresAt := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	link := newLink("u1", "expiry")
	link.ExpiresAt = &expiresAt
	if err := repo.Insert(ctx, link); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	expiresAt = expiresAt.Add(time.Hour)

	inserted, _ := repo.FindOne(ctx, model.LinkQuery{ID: link.ID})
	if !inserted.ExpiresAt.Equal(time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("caller mutation after Insert leaked into store: %v", inserted.ExpiresAt)
	}

	updatedAt := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	update := *link
	update.ExpiresAt = &updatedAt
	if err := repo.Update(ctx, &update); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	updatedAt = updatedAt.Add(time.Hour)

	got, _ := repo.FindOne(ctx, model.LinkQuery{ID: link.ID})
	want := time.Date(2031, 1, 1, 0, 0, 0, 0, time.UTC)
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(want) {
		t.Fatalf("stored ExpiresAt = %v, want %v", got.ExpiresAt, want)
	}

	*got.ExpiresAt = want.Add(24 * time.Hour)
	again, _ := repo.FindOne(ctx, model.LinkQuery{ID: link.ID})
	if !again.ExpiresAt.Equal(want) {
		t.Errorf("mutating a returned record changed the store: %v", again.ExpiresAt)
	}
}

func TestMemoryLinkRepository_UpdateShortCode(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	a := newLink("u1", "first")
	b := newLink("u1", "second")
	repo.Insert(ctx, a)
	repo.Insert(ctx, b)

	a.ShortCode = "second"
	if err := repo.Update(ctx, a); !apperrors.IsConflictError(err) {
		t.Errorf("Update() to taken code error = %v, want conflict", err)
	}

	a.ShortCode = "renamed"
	if err := repo.Update(ctx, a); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if _, err := repo.FindOne(ctx, model.LinkQuery{ShortCode: "first"}); !apperrors.IsNotFound(err) {
		t.Errorf("old code still resolves: %v", err)
	}
	if _, err := repo.FindOne(ctx, model.LinkQuery{ShortCode: "renamed"}); err != nil {
		t.Errorf("new code lookup error = %v", err)
	}

	missing := newLink("u1", "ghost")
	missing.ID = "does-not-exist"
	if err := repo.Update(ctx, missing); !apperrors.IsNotFound(err) {
		t.Errorf("Update() missing error = %v, want not found", err)
	}
}

func TestMemoryLinkRepository_Delete(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	link := newLink("u1", "gone")
	repo.Insert(ctx, link)

	deleted, err := repo.Delete(ctx, link.ID)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v, want true, nil", deleted, err)
	}

	deleted, err = repo.Delete(ctx, link.ID)
	if err != nil || deleted {
		t.Errorf("second Delete() = %v, %v, want false, nil", deleted, err)
	}

	if err := repo.Insert(ctx, newLink("u2", "gone")); err != nil {
		t.Errorf("code not released after delete: %v", err)
	}
}

func TestMemoryLinkRepository_ListByOwner(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	for _, code := range []string{"one", "two", "three"} {
		repo.Insert(ctx, newLink("owner", code))
	}
	repo.Insert(ctx, newLink("other", "four"))

	links, err := repo.ListByOwner(ctx, "owner", 10, 0)
	if err != nil {
		t.Fatalf("ListByOwner() error = %v", err)
	}

	want := []string{"three", "two", "one"}
	if len(links) != len(want) {
		t.Fatalf("ListByOwner() returned %d links, want %d", len(links), len(want))
	}
	for i, code := range want {
		if links[i].ShortCode != code {
			t.Errorf("links[%d] = %s, want %s", i, links[i].ShortCode, code)
		}
	}

	paged, _ := repo.ListByOwner(ctx, "owner", 1, 1)
	if len(paged) != 1 || paged[0].ShortCode != "two" {
		t.Errorf("ListByOwner(limit=1, offset=1) = %v", paged)
	}

	empty, _ := repo.ListByOwner(ctx, "owner", 10, 50)
	if len(empty) != 0 {
		t.Errorf("ListByOwner() past end = %d links", len(empty))
	}
}

func TestMemoryLinkRepository_ListPopular(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	hot := newLink("u1", "hot")
	warm := newLink("u1", "warm")
	off := newLink("u1", "off")
	off.Status = model.StatusDisabled
	past := time.Now().Add(-time.Hour)
	stale := newLink("u1", "stale")
	stale.ExpiresAt = &past

	for _, l := range []*model.Link{hot, warm, off, stale} {
		repo.Insert(ctx, l)
	}
	repo.RecordClicks(ctx, []model.Click{
		{LinkID: hot.ID}, {LinkID: hot.ID}, {LinkID: warm.ID},
		{LinkID: off.ID}, {LinkID: off.ID}, {LinkID: off.ID},
		{LinkID: stale.ID}, {LinkID: stale.ID}, {LinkID: stale.ID},
	})

	links, err := repo.ListPopular(ctx, 10)
	if err != nil {
		t.Fatalf("ListPopular() error = %v", err)
	}
	if len(links) != 2 || links[0].ShortCode != "hot" || links[1].ShortCode != "warm" {
		t.Errorf("ListPopular() = %v", links)
	}
}

func TestMemoryLinkRepository_Clicks(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx := context.Background()

	link := newLink("u1", "clk")
	repo.Insert(ctx, link)

	t0 := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	err := repo.RecordClicks(ctx, []model.Click{
		{LinkID: link.ID, ShortCode: "clk", ClickedAt: t0, ClickMetadata: model.ClickMetadata{Referrer: "a"}},
		{LinkID: link.ID, ShortCode: "clk", ClickedAt: t0.Add(time.Minute), ClickMetadata: model.ClickMetadata{Referrer: "b"}},
		{LinkID: "deleted-link", ShortCode: "zzz", ClickedAt: t0},
	})
	if err != nil {
		t.Fatalf("RecordClicks() error = %v", err)
	}

	clicks, err := repo.ListClicks(ctx, link.ID, 10)
	if err != nil {
		t.Fatalf("ListClicks() error = %v", err)
	}
	if len(clicks) != 2 || clicks[0].Referrer != "b" || clicks[1].Referrer != "a" {
		t.Errorf("ListClicks() = %+v", clicks)
	}

	got, _ := repo.FindOne(ctx, model.LinkQuery{ID: link.ID})
	if got.ClickCount != 2 {
		t.Errorf("ClickCount = %d, want 2", got.ClickCount)
	}
}

func TestMemoryLinkRepository_CanceledContext(t *testing.T) {
	repo := NewMemoryLinkRepository()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := repo.Insert(ctx, newLink("u1", "abc"))
	if !apperrors.IsStoreUnavailable(err) {
		t.Errorf("Insert() error = %v, want store unavailable", err)
	}
}
