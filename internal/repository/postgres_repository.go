package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

const linkColumns = `id::text, user_id, original_url, short_code, title, description,
	status, expires_at, password_hash, click_count, created_at, updated_at`

var _ LinkRepository = (*PostgresLinkRepository)(nil)

type PostgresLinkRepository struct {
	db *sql.DB
}

func NewPostgresLinkRepository(db *sql.DB) *PostgresLinkRepository {
	return &PostgresLinkRepository{db: db}
}

func (r *PostgresLinkRepository) Insert(ctx context.Context, link *model.Link) error {
	query := `
	INSERT INTO links (user_id, original_url, short_code, title, description, status, expires_at, password_hash)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id::text, created_at, updated_at
	`

	if link.Status == "" {
		link.Status = model.StatusActive
	}

	err := r.db.QueryRowContext(
		ctx,
		query,
		link.UserID,
		link.OriginalURL,
		link.ShortCode,
		link.Title,
		link.Description,
		string(link.Status),
		link.ExpiresAt,
		link.PasswordHash,
	).Scan(&link.ID, &link.CreatedAt, &link.UpdatedAt)

	if isUniqueViolation(err) {
		return apperrors.NewConflictError(link.ShortCode)
	}
	if err != nil {
		return pgStoreError("create link", err)
	}

	return nil
}

func (r *PostgresLinkRepository) FindOne(ctx context.Context, q model.LinkQuery) (*model.Link, error) {
	var (
		conds []string
		args  []any
	)

	if q.ID != "" {
		if _, err := uuid.Parse(q.ID); err != nil {
			return nil, notFound(q)
		}
		args = append(args, q.ID)
		conds = append(conds, fmt.Sprintf("id = $%d", len(args)))
	}
	if q.ShortCode != "" {
		args = append(args, q.ShortCode)
		conds = append(conds, fmt.Sprintf("short_code = $%d", len(args)))
	}
	if len(conds) == 0 {
		return nil, errEmptyQuery
	}
	if q.Status != "" {
		args = append(args, string(q.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	query := "SELECT " + linkColumns + " FROM links WHERE " + strings.Join(conds, " AND ")

	link, err := scanLink(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(q)
	}
	if err != nil {
		return nil, pgStoreError("get link", err)
	}

	return link, nil
}

func (r *PostgresLinkRepository) Update(ctx context.Context, link *model.Link) error {
	if _, err := uuid.Parse(link.ID); err != nil {
		return notFound(model.LinkQuery{ID: link.ID})
	}

	query := `
	UPDATE links
	SET original_url = $2, short_code = $3, title = $4, description = $5,
		status = $6, expires_at = $7, password_hash = $8, updated_at = NOW()
	WHERE id = $1
	RETURNING click_count, updated_at
	`

	err := r.db.QueryRowContext(
		ctx,
		query,
		link.ID,
		link.OriginalURL,
		link.ShortCode,
		link.Title,
		link.Description,
		string(link.Status),
		link.ExpiresAt,
		link.PasswordHash,
	).Scan(&link.ClickCount, &link.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return notFound(model.LinkQuery{ID: link.ID})
	}
	if isUniqueViolation(err) {
		return apperrors.NewConflictError(link.ShortCode)
	}
	if err != nil {
		return pgStoreError("update link", err)
	}

	return nil
}

func (r *PostgresLinkRepository) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}

	res, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = $1`, id)
	if err != nil {
		return false, pgStoreError("delete link", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, pgStoreError("delete link", err)
	}

	return n > 0, nil
}

func (r *PostgresLinkRepository) ListByOwner(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error) {
	query := "SELECT " + linkColumns + `
	FROM links
	WHERE user_id = $1
	ORDER BY created_at DESC, id
	LIMIT $2 OFFSET $3`

	if offset < 0 {
		offset = 0
	}

	return r.queryLinks(ctx, "list links", query, userID, clampLimit(limit, model.DefaultPageSize, model.MaxPageSize), offset)
}

func (r *PostgresLinkRepository) ListPopular(ctx context.Context, limit int) ([]*model.Link, error) {
	query := "SELECT " + linkColumns + `
	FROM links
	WHERE status = 'active' AND (expires_at IS NULL OR expires_at > NOW())
	ORDER BY click_count DESC, created_at DESC
	LIMIT $1`

	return r.queryLinks(ctx, "list popular links", query, clampLimit(limit, model.DefaultPopularLimit, model.MaxPopularLimit))
}

func (r *PostgresLinkRepository) queryLinks(ctx context.Context, op, query string, args ...any) ([]*model.Link, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgStoreError(op, err)
	}
	defer rows.Close()

	links := make([]*model.Link, 0)
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, pgStoreError(op, err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, pgStoreError(op, err)
	}

	return links, nil
}

// RecordClicks writes the batch in one transaction. Clicks whose link has
// been deleted are skipped by the EXISTS guard instead of failing the batch.
func (r *PostgresLinkRepository) RecordClicks(ctx context.Context, clicks []model.Click) error {
	if len(clicks) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pgStoreError("begin click batch", err)
	}
	defer tx.Rollback()

	insert, err := tx.PrepareContext(ctx, `
		INSERT INTO link_clicks (link_id, short_code, clicked_at, referrer, user_agent, ip_address, country)
		SELECT $1::uuid, $2::text, $3::timestamptz, $4::text, $5::text, $6::text, $7::text
		WHERE EXISTS (SELECT 1 FROM links WHERE id = $1::uuid)
	`)
	if err != nil {
		return pgStoreError("prepare click insert", err)
	}
	defer insert.Close()

	increments := make(map[string]int64)
	for _, c := range clicks {
		if _, err := uuid.Parse(c.LinkID); err != nil {
			continue
		}
		clickedAt := c.ClickedAt
		if clickedAt.IsZero() {
			clickedAt = time.Now().UTC()
		}
		if _, err := insert.ExecContext(ctx, c.LinkID, c.ShortCode, clickedAt, c.Referrer, c.UserAgent, c.IP, c.Country); err != nil {
			return pgStoreError("insert click", err)
		}
		increments[c.LinkID]++
	}

	for linkID, n := range increments {
		if _, err := tx.ExecContext(ctx, `UPDATE links SET click_count = click_count + $1 WHERE id = $2`, n, linkID); err != nil {
			return pgStoreError("increment click count", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return pgStoreError("commit click batch", err)
	}

	return nil
}

func (r *PostgresLinkRepository) ListClicks(ctx context.Context, linkID string, limit int) ([]model.Click, error) {
	if _, err := uuid.Parse(linkID); err != nil {
		return []model.Click{}, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, link_id::text, short_code, clicked_at, referrer, user_agent, ip_address, country
		FROM link_clicks
		WHERE link_id = $1
		ORDER BY clicked_at DESC, id DESC
		LIMIT $2
	`, linkID, clampLimit(limit, model.DefaultClickLimit, model.MaxClickLimit))
	if err != nil {
		return nil, pgStoreError("list clicks", err)
	}
	defer rows.Close()

	clicks := make([]model.Click, 0)
	for rows.Next() {
		var c model.Click
		if err := rows.Scan(&c.ID, &c.LinkID, &c.ShortCode, &c.ClickedAt, &c.Referrer, &c.UserAgent, &c.IP, &c.Country); err != nil {
			return nil, pgStoreError("list clicks", err)
		}
		clicks = append(clicks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, pgStoreError("list clicks", err)
	}

	return clicks, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (*model.Link, error) {
	var (
		link      model.Link
		status    string
		expiresAt sql.NullTime
	)

	err := row.Scan(
		&link.ID,
		&link.UserID,
		&link.OriginalURL,
		&link.ShortCode,
		&link.Title,
		&link.Description,
		&status,
		&expiresAt,
		&link.PasswordHash,
		&link.ClickCount,
		&link.CreatedAt,
		&link.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	link.Status = model.Status(status)
	if expiresAt.Valid {
		t := expiresAt.Time
		link.ExpiresAt = &t
	}

	return &link, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func isPgUnavailable(err error) bool {
	if isConnectivityError(err) || pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	// Class 08: connection exception. 57P0x: server shutting down.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P0")
	}

	return false
}

func pgStoreError(op string, err error) error {
	return storeError(op, err, isPgUnavailable)
}
