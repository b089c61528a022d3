package repository

import (
	"context"
	"errors"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"gorm.io/gorm"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

// linkRow is the gorm mapping of model.Link. short_code uses a binary
// collation so codes differing only by case stay distinct.
type linkRow struct {
	ID           string     `gorm:"type:char(36);primaryKey"`
	UserID       string     `gorm:"type:varchar(128);not null;index:idx_links_user_created,priority:1"`
	OriginalURL  string     `gorm:"type:varchar(2048);not null"`
	ShortCode    string     `gorm:"type:varchar(64) CHARACTER SET utf8mb4 COLLATE utf8mb4_bin;not null;uniqueIndex"`
	Title        string     `gorm:"type:varchar(255);not null;default:''"`
	Description  string     `gorm:"type:text"`
	Status       string     `gorm:"type:varchar(16);not null;default:active;index"`
	ExpiresAt    *time.Time `gorm:"index"`
	PasswordHash string     `gorm:"type:varchar(72);not null;default:''"`
	ClickCount   int64      `gorm:"not null;default:0"`
	CreatedAt    time.Time  `gorm:"index:idx_links_user_created,priority:2"`
	UpdatedAt    time.Time
}

func (linkRow) TableName() string { return "links" }

type clickRow struct {
	ID        int64     `gorm:"primaryKey;autoIncrement"`
	LinkID    string    `gorm:"type:char(36);not null;index:idx_link_clicks_link_time,priority:1"`
	ShortCode string    `gorm:"type:varchar(64);not null"`
	ClickedAt time.Time `gorm:"not null;index:idx_link_clicks_link_time,priority:2"`
	Referrer  string    `gorm:"type:varchar(2048)"`
	UserAgent string    `gorm:"type:varchar(512)"`
	IP        string    `gorm:"column:ip_address;type:varchar(64)"`
	Country   string    `gorm:"type:varchar(64)"`
}

func (clickRow) TableName() string { return "link_clicks" }

var _ LinkRepository = (*GormLinkRepository)(nil)

type GormLinkRepository struct {
	db *gorm.DB
}

func NewGormLinkRepository(db *gorm.DB) *GormLinkRepository {
	return &GormLinkRepository{db: db}
}

func (r *GormLinkRepository) AutoMigrate(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&linkRow{}, &clickRow{}); err != nil {
		return gormStoreError("migrate schema", err)
	}
	return nil
}

func (r *GormLinkRepository) Insert(ctx context.Context, link *model.Link) error {
	if link.Status == "" {
		link.Status = model.StatusActive
	}

	now := time.Now().UTC()
	row := toLinkRow(link)
	row.ID = uuid.NewString()
	row.CreatedAt = now
	row.UpdatedAt = now

	err := r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError(link.ShortCode)
	}
	if err != nil {
		return gormStoreError("create link", err)
	}

	link.ID = row.ID
	link.CreatedAt = row.CreatedAt
	link.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *GormLinkRepository) FindOne(ctx context.Context, q model.LinkQuery) (*model.Link, error) {
	if q.ID == "" && q.ShortCode == "" {
		return nil, errEmptyQuery
	}

	tx := r.db.WithContext(ctx).Model(&linkRow{})
	if q.ID != "" {
		tx = tx.Where("id = ?", q.ID)
	}
	if q.ShortCode != "" {
		tx = tx.Where("short_code = ?", q.ShortCode)
	}
	if q.Status != "" {
		tx = tx.Where("status = ?", string(q.Status))
	}

	var row linkRow
	err := tx.Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(q)
	}
	if err != nil {
		return nil, gormStoreError("get link", err)
	}

	return row.toModel(), nil
}

func (r *GormLinkRepository) Update(ctx context.Context, link *model.Link) error {
	db := r.db.WithContext(ctx)

	err := db.Model(&linkRow{}).Where("id = ?", link.ID).Updates(map[string]any{
		"original_url":  link.OriginalURL,
		"short_code":    link.ShortCode,
		"title":         link.Title,
		"description":   link.Description,
		"status":        string(link.Status),
		"expires_at":    link.ExpiresAt,
		"password_hash": link.PasswordHash,
		"updated_at":    time.Now().UTC(),
	}).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return apperrors.NewConflictError(link.ShortCode)
	}
	if err != nil {
		return gormStoreError("update link", err)
	}

	// MySQL reports zero affected rows for no-op updates, so re-read to detect a missing row.
	var row linkRow
	err = db.Select("click_count", "updated_at").Where("id = ?", link.ID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound(model.LinkQuery{ID: link.ID})
	}
	if err != nil {
		return gormStoreError("update link", err)
	}

	link.ClickCount = row.ClickCount
	link.UpdatedAt = row.UpdatedAt
	return nil
}

func (r *GormLinkRepository) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ?", id).Delete(&linkRow{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		if !deleted {
			return nil
		}
		return tx.Where("link_id = ?", id).Delete(&clickRow{}).Error
	})
	if err != nil {
		return false, gormStoreError("delete link", err)
	}

	return deleted, nil
}

func (r *GormLinkRepository) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error) {
	if offset < 0 {
		offset = 0
	}

	var rows []linkRow
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id").
		Limit(clampLimit(limit, model.DefaultPageSize, model.MaxPageSize)).
		Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, gormStoreError("list links", err)
	}

	return toModels(rows), nil
}

func (r *GormLinkRepository) ListPopular(ctx context.Context, limit int) ([]*model.Link, error) {
	var rows []linkRow
	err := r.db.WithContext(ctx).
		Where("status = ?", string(model.StatusActive)).
		Where("expires_at IS NULL OR expires_at > ?", time.Now().UTC()).
		Order("click_count DESC").Order("created_at DESC").
		Limit(clampLimit(limit, model.DefaultPopularLimit, model.MaxPopularLimit)).
		Find(&rows).Error
	if err != nil {
		return nil, gormStoreError("list popular links", err)
	}

	return toModels(rows), nil
}

func (r *GormLinkRepository) RecordClicks(ctx context.Context, clicks []model.Click) error {
	if len(clicks) == 0 {
		return nil
	}

	ids := make([]string, 0, len(clicks))
	for _, c := range clicks {
		ids = append(ids, c.LinkID)
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing []string
		if err := tx.Model(&linkRow{}).Where("id IN ?", ids).Pluck("id", &existing).Error; err != nil {
			return err
		}
		live := make(map[string]bool, len(existing))
		for _, id := range existing {
			live[id] = true
		}

		rows := make([]clickRow, 0, len(clicks))
		increments := make(map[string]int64)
		for _, c := range clicks {
			if !live[c.LinkID] {
				continue
			}
			clickedAt := c.ClickedAt
			if clickedAt.IsZero() {
				clickedAt = time.Now().UTC()
			}
			rows = append(rows, clickRow{
				LinkID:    c.LinkID,
				ShortCode: c.ShortCode,
				ClickedAt: clickedAt,
				Referrer:  c.Referrer,
				UserAgent: c.UserAgent,
				IP:        c.IP,
				Country:   c.Country,
			})
			increments[c.LinkID]++
		}
		if len(rows) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(rows, 100).Error; err != nil {
			return err
		}
		for id, n := range increments {
			if err := tx.Model(&linkRow{}).Where("id = ?", id).
				UpdateColumn("click_count", gorm.Expr("click_count + ?", n)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return gormStoreError("record clicks", err)
	}

	return nil
}

func (r *GormLinkRepository) ListClicks(ctx context.Context, linkID string, limit int) ([]model.Click, error) {
	var rows []clickRow
	err := r.db.WithContext(ctx).
		Where("link_id = ?", linkID).
		Order("clicked_at DESC").Order("id DESC").
		Limit(clampLimit(limit, model.DefaultClickLimit, model.MaxClickLimit)).
		Find(&rows).Error
	if err != nil {
		return nil, gormStoreError("list clicks", err)
	}

	clicks := make([]model.Click, 0, len(rows))
	for _, row := range rows {
		clicks = append(clicks, model.Click{
			ID:        row.ID,
			LinkID:    row.LinkID,
			ShortCode: row.ShortCode,
			ClickedAt: row.ClickedAt,
			ClickMetadata: model.ClickMetadata{
				Referrer:  row.Referrer,
				UserAgent: row.UserAgent,
				IP:        row.IP,
				Country:   row.Country,
			},
		})
	}

	return clicks, nil
}

func toLinkRow(link *model.Link) linkRow {
	return linkRow{
		ID:           link.ID,
		UserID:       link.UserID,
		OriginalURL:  link.OriginalURL,
		ShortCode:    link.ShortCode,
		Title:        link.Title,
		Description:  link.Description,
		Status:       string(link.Status),
		ExpiresAt:    link.ExpiresAt,
		PasswordHash: link.PasswordHash,
		ClickCount:   link.ClickCount,
		CreatedAt:    link.CreatedAt,
		UpdatedAt:    link.UpdatedAt,
	}
}

func (row linkRow) toModel() *model.Link {
	return &model.Link{
		ID:           row.ID,
		UserID:       row.UserID,
		OriginalURL:  row.OriginalURL,
		ShortCode:    row.ShortCode,
		Title:        row.Title,
		Description:  row.Description,
		Status:       model.Status(row.Status),
		ExpiresAt:    row.ExpiresAt,
		PasswordHash: row.PasswordHash,
		ClickCount:   row.ClickCount,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}
}

func toModels(rows []linkRow) []*model.Link {
	links := make([]*model.Link, 0, len(rows))
	for _, row := range rows {
		links = append(links, row.toModel())
	}
	return links
}

func isMySQLUnavailable(err error) bool {
	return isConnectivityError(err) ||
		errors.Is(err, mysqldriver.ErrInvalidConn) ||
		errors.Is(err, gorm.ErrInvalidDB)
}

func gormStoreError(op string, err error) error {
	return storeError(op, err, isMySQLUnavailable)
}
