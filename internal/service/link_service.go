package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Kosench/go-link-resolver/internal/clicks"
	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/metrics"
	"github.com/Kosench/go-link-resolver/internal/model"
	"github.com/Kosench/go-link-resolver/internal/repository"
	"github.com/Kosench/go-link-resolver/internal/utils"
)

const (
	DefaultMaxRetries = 5
	DefaultPageSize   = model.DefaultPageSize
	MaxPageSize       = model.MaxPageSize
	DefaultClickLimit = model.DefaultClickLimit
	MaxClickLimit     = model.MaxClickLimit

	minPasswordLength = 4
	maxPasswordLength = 72 // bcrypt ignores bytes past 72
)

type Options struct {
	BaseURL         string
	ShortCodeLength int
	// MaxRetries bounds the insert attempts made with generated codes.
	MaxRetries int
	Logger     *zap.Logger
}

// LinkService creates, resolves and manages short links. It holds no
// mutable state; uniqueness is arbitrated by the store.
type LinkService struct {
	links      repository.LinkStore
	clicks     repository.ClickStore
	recorder   clicks.Recorder
	baseURL    string
	codeLength int
	maxRetries int
	retryDelay time.Duration
	now        func() time.Time
	logger     *zap.Logger
	tracer     trace.Tracer
}

func NewLinkService(repo repository.LinkRepository, recorder clicks.Recorder, opts Options) *LinkService {
	if opts.ShortCodeLength <= 0 {
		opts.ShortCodeLength = utils.DefaultShortCodeLength
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if recorder == nil {
		recorder = clicks.NopRecorder{}
	}

	return &LinkService{
		links:      repo,
		clicks:     repo,
		recorder:   recorder,
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		codeLength: opts.ShortCodeLength,
		maxRetries: opts.MaxRetries,
		retryDelay: 5 * time.Millisecond,
		now:        func() time.Time { return time.Now().UTC() },
		logger:     opts.Logger.Named("links"),
		tracer:     otel.Tracer("github.com/Kosench/go-link-resolver/internal/service"),
	}
}

func (s *LinkService) CreateShortLink(ctx context.Context, userID string, in model.CreateLinkInput) (_ *model.Link, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.CreateShortLink")
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	originalURL := utils.SanitizeInput(in.OriginalURL)
	if err := utils.ValidateURL(originalURL); err != nil {
		return nil, err
	}

	// Aliases are stored verbatim, so they are validated exactly as given.
	alias := in.CustomAlias
	if alias != "" {
		if err := utils.ValidateAlias(alias); err != nil {
			return nil, err
		}
	}

	if err := utils.ValidateExpiry(in.ExpiresAt, s.now()); err != nil {
		return nil, err
	}

	passwordHash, err := hashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	link := &model.Link{
		UserID:       userID,
		OriginalURL:  originalURL,
		Title:        utils.SanitizeInput(in.Title),
		Description:  utils.SanitizeInput(in.Description),
		Status:       model.StatusActive,
		ExpiresAt:    copyTime(in.ExpiresAt),
		PasswordHash: passwordHash,
	}

	source := "generated"
	if alias != "" {
		source = "alias"
		link.ShortCode = alias
		err = s.links.Insert(ctx, link)
	} else {
		err = s.insertWithGeneratedCode(ctx, link)
	}
	if err != nil {
		if apperrors.IsConflictError(err) {
			s.logger.Info("short code conflict", zap.String("short_code", link.ShortCode), zap.String("source", source))
		}
		return nil, fmt.Errorf("failed to create link: %w", err)
	}

	metrics.LinksCreated.WithLabelValues(source).Inc()
	span.SetAttributes(attribute.String("link.short_code", link.ShortCode))
	s.logger.Info("link created",
		zap.String("id", link.ID),
		zap.String("short_code", link.ShortCode),
		zap.String("user_id", userID),
	)

	return link, nil
}

// insertWithGeneratedCode retries with a fresh code while the store reports a
// conflict, up to maxRetries attempts in total.
func (s *LinkService) insertWithGeneratedCode(ctx context.Context, link *model.Link) error {
	backoff := retry.WithMaxRetries(uint64(s.maxRetries-1), retry.NewConstant(s.retryDelay))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		code, err := utils.GenerateShortCodeWithLength(s.codeLength)
		if err != nil {
			return apperrors.NewBusinessError("CODE_GENERATION_FAILED", "failed to generate short code", err)
		}

		link.ShortCode = code
		err = s.links.Insert(ctx, link)
		if apperrors.IsConflictError(err) {
			metrics.CodeCollisions.Inc()
			return retry.RetryableError(err)
		}
		return err
	})

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperrors.NewStoreUnavailableError("create link", err)
	}
	if apperrors.IsConflictError(err) {
		s.logger.Warn("generated short codes exhausted", zap.Int("attempts", s.maxRetries))
	}
	return err
}

// Resolve returns the target of an active, unexpired link. Absent, disabled
// and expired links are indistinguishable to the caller.
func (s *LinkService) Resolve(ctx context.Context, shortCode string, meta model.ClickMetadata) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.Resolve", trace.WithAttributes(attribute.String("link.short_code", shortCode)))
	defer func() { endSpan(span, err) }()

	link, err := s.findResolvable(ctx, shortCode)
	if err != nil {
		metrics.Resolutions.WithLabelValues(resolveOutcome(err)).Inc()
		return "", err
	}

	if link.Protected() {
		metrics.Resolutions.WithLabelValues("locked").Inc()
		return "", apperrors.ErrPasswordRequired
	}

	s.recordClick(link, meta)
	metrics.Resolutions.WithLabelValues("ok").Inc()
	return link.OriginalURL, nil
}

// Unlock resolves a password-protected link. Unprotected links resolve as usual.
func (s *LinkService) Unlock(ctx context.Context, shortCode, password string, meta model.ClickMetadata) (_ string, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.Unlock", trace.WithAttributes(attribute.String("link.short_code", shortCode)))
	defer func() { endSpan(span, err) }()

	link, err := s.findResolvable(ctx, shortCode)
	if err != nil {
		metrics.Resolutions.WithLabelValues(resolveOutcome(err)).Inc()
		return "", err
	}

	if link.Protected() {
		if err := bcrypt.CompareHashAndPassword([]byte(link.PasswordHash), []byte(password)); err != nil {
			metrics.Resolutions.WithLabelValues("locked").Inc()
			return "", apperrors.ErrInvalidPassword
		}
	}

	s.recordClick(link, meta)
	metrics.Resolutions.WithLabelValues("ok").Inc()
	return link.OriginalURL, nil
}

func (s *LinkService) findResolvable(ctx context.Context, shortCode string) (*model.Link, error) {
	if shortCode == "" {
		return nil, apperrors.ErrShortCodeRequired
	}

	link, err := s.links.FindOne(ctx, model.LinkQuery{ShortCode: shortCode, Status: model.StatusActive})
	if err != nil {
		return nil, err
	}

	if link.IsExpiredAt(s.now()) {
		return nil, fmt.Errorf("link with short code '%s': %w", shortCode, apperrors.ErrLinkNotFound)
	}

	return link, nil
}

// recordClick hands the event to the recorder. A misbehaving recorder never
// fails the resolution.
func (s *LinkService) recordClick(link *model.Link, meta model.ClickMetadata) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("click recorder panicked", zap.Any("panic", r), zap.String("short_code", link.ShortCode))
		}
	}()

	s.recorder.Record(model.Click{
		LinkID:        link.ID,
		ShortCode:     link.ShortCode,
		ClickedAt:     s.now(),
		ClickMetadata: meta,
	})
}

func (s *LinkService) UpdateLink(ctx context.Context, userID, id string, patch model.LinkPatch) (_ *model.Link, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.UpdateLink", trace.WithAttributes(attribute.String("link.id", id)))
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	changes, err := s.validatePatch(patch)
	if err != nil {
		return nil, err
	}

	link, err := s.ownedLink(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Empty() {
		return link, nil
	}

	changes.apply(link)

	if err := s.links.Update(ctx, link); err != nil {
		return nil, fmt.Errorf("failed to update link: %w", err)
	}

	s.logger.Info("link updated",
		zap.String("id", link.ID),
		zap.String("short_code", link.ShortCode),
		zap.String("status", string(link.Status)),
	)

	return link, nil
}

// linkChanges is a validated, normalized LinkPatch.
type linkChanges struct {
	patch        model.LinkPatch
	originalURL  string
	alias        string
	passwordHash string
}

func (s *LinkService) validatePatch(patch model.LinkPatch) (*linkChanges, error) {
	changes := &linkChanges{patch: patch}

	if patch.OriginalURL != nil {
		changes.originalURL = utils.SanitizeInput(*patch.OriginalURL)
		if err := utils.ValidateURL(changes.originalURL); err != nil {
			return nil, err
		}
	}

	if patch.CustomAlias != nil {
		changes.alias = *patch.CustomAlias
		if err := utils.ValidateAlias(changes.alias); err != nil {
			return nil, err
		}
	}

	if patch.Status != nil {
		if err := utils.ValidateStatus(*patch.Status); err != nil {
			return nil, err
		}
	}

	if patch.ExpiresAt != nil && patch.ClearExpiresAt {
		return nil, apperrors.NewValidationError("expires_at", "cannot set and clear expiration at the same time")
	}
	if err := utils.ValidateExpiry(patch.ExpiresAt, s.now()); err != nil {
		return nil, err
	}

	if patch.Password != nil && patch.ClearPassword {
		return nil, apperrors.NewValidationError("password", "cannot set and clear password at the same time")
	}
	if patch.Password != nil {
		if *patch.Password == "" {
			return nil, apperrors.NewValidationError("password", "password cannot be empty")
		}
		hash, err := hashPassword(*patch.Password)
		if err != nil {
			return nil, err
		}
		changes.passwordHash = hash
	}

	return changes, nil
}

func (c *linkChanges) apply(link *model.Link) {
	p := c.patch

	if p.OriginalURL != nil {
		link.OriginalURL = c.originalURL
	}
	if p.CustomAlias != nil {
		link.ShortCode = c.alias
	}
	if p.Status != nil {
		link.Status = *p.Status
	}
	if p.ClearExpiresAt {
		link.ExpiresAt = nil
	} else if p.ExpiresAt != nil {
		link.ExpiresAt = copyTime(p.ExpiresAt)
	}
	if p.Title != nil {
		link.Title = utils.SanitizeInput(*p.Title)
	}
	if p.Description != nil {
		link.Description = utils.SanitizeInput(*p.Description)
	}
	if p.ClearPassword {
		link.PasswordHash = ""
	} else if p.Password != nil {
		link.PasswordHash = c.passwordHash
	}
}

func (s *LinkService) DeleteLink(ctx context.Context, userID, id string) (err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.DeleteLink", trace.WithAttributes(attribute.String("link.id", id)))
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return err
	}

	link, err := s.ownedLink(ctx, userID, id)
	if err != nil {
		return err
	}

	deleted, err := s.links.Delete(ctx, link.ID)
	if err != nil {
		return fmt.Errorf("failed to delete link: %w", err)
	}
	if !deleted {
		return linkNotFound(id)
	}

	s.logger.Info("link deleted", zap.String("id", link.ID), zap.String("short_code", link.ShortCode))
	return nil
}

// GetLink returns an owned link regardless of its status.
func (s *LinkService) GetLink(ctx context.Context, userID, id string) (_ *model.Link, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.GetLink", trace.WithAttributes(attribute.String("link.id", id)))
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	return s.ownedLink(ctx, userID, id)
}

// ListLinks returns the owner's links newest first. limit is clamped to 1..100.
func (s *LinkService) ListLinks(ctx context.Context, userID string, limit, offset int) (_ []*model.Link, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.ListLinks")
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	limit = ClampLimit(limit, DefaultPageSize, MaxPageSize)
	if offset < 0 {
		offset = 0
	}

	links, err := s.links.ListByOwner(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	return links, nil
}

// ListClicks returns raw click rows of an owned link, newest first.
func (s *LinkService) ListClicks(ctx context.Context, userID, id string, limit int) (_ []model.Click, err error) {
	ctx, span := s.tracer.Start(ctx, "LinkService.ListClicks", trace.WithAttributes(attribute.String("link.id", id)))
	defer func() { endSpan(span, err) }()

	if err := requireUser(userID); err != nil {
		return nil, err
	}

	link, err := s.ownedLink(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	rows, err := s.clicks.ListClicks(ctx, link.ID, ClampLimit(limit, DefaultClickLimit, MaxClickLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to list clicks: %w", err)
	}

	return rows, nil
}

// ShortURL builds the public URL for a short code.
func (s *LinkService) ShortURL(shortCode string) string {
	return fmt.Sprintf("%s/%s", s.baseURL, shortCode)
}

// ownedLink hides links of other owners behind the same not-found error.
func (s *LinkService) ownedLink(ctx context.Context, userID, id string) (*model.Link, error) {
	if strings.TrimSpace(id) == "" {
		return nil, linkNotFound(id)
	}

	link, err := s.links.FindOne(ctx, model.LinkQuery{ID: id})
	if err != nil {
		return nil, err
	}

	if link.UserID != userID {
		return nil, linkNotFound(id)
	}

	return link, nil
}

func ClampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}

func requireUser(userID string) error {
	if strings.TrimSpace(userID) == "" {
		return apperrors.NewValidationError("user_id", "user id is required")
	}
	return nil
}

func hashPassword(password string) (string, error) {
	if password == "" {
		return "", nil
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return "", apperrors.NewValidationError("password",
			fmt.Sprintf("password must be between %d and %d bytes", minPasswordLength, maxPasswordLength))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", apperrors.NewBusinessError("PASSWORD_HASH_FAILED", "failed to hash password", err)
	}
	return string(hash), nil
}

func linkNotFound(id string) error {
	return fmt.Errorf("link with id '%s': %w", id, apperrors.ErrLinkNotFound)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := t.UTC()
	return &c
}

func resolveOutcome(err error) string {
	switch {
	case apperrors.IsNotFound(err):
		return "not_found"
	case apperrors.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil && !apperrors.IsNotFound(err) && !apperrors.IsValidationError(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
