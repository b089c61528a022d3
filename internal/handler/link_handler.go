package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/middleware"
	"github.com/Kosench/go-link-resolver/internal/model"
	"github.com/Kosench/go-link-resolver/internal/qrcode"
	"github.com/Kosench/go-link-resolver/internal/service"
)

// LinkService is the part of service.LinkService the HTTP layer needs.
type LinkService interface {
	CreateShortLink(ctx context.Context, userID string, in model.CreateLinkInput) (*model.Link, error)
	Resolve(ctx context.Context, shortCode string, meta model.ClickMetadata) (string, error)
	Unlock(ctx context.Context, shortCode, password string, meta model.ClickMetadata) (string, error)
	UpdateLink(ctx context.Context, userID, id string, patch model.LinkPatch) (*model.Link, error)
	DeleteLink(ctx context.Context, userID, id string) error
	GetLink(ctx context.Context, userID, id string) (*model.Link, error)
	ListLinks(ctx context.Context, userID string, limit, offset int) ([]*model.Link, error)
	ListClicks(ctx context.Context, userID, id string, limit int) ([]model.Click, error)
	ShortURL(shortCode string) string
}

type QRRenderer interface {
	PNG(content string, size int) ([]byte, error)
}

type LinkHandler struct {
	links LinkService
	qr    QRRenderer
}

func NewLinkHandler(links LinkService, qr QRRenderer) *LinkHandler {
	RegisterValidators()
	return &LinkHandler{
		links: links,
		qr:    qr,
	}
}

// Register mounts the API routes and the public redirect routes.
func (h *LinkHandler) Register(router gin.IRouter) {
	api := router.Group("/api")
	{
		api.POST("/links", h.CreateLink)
		api.GET("/links", h.ListLinks)
		api.GET("/links/:id", h.GetLink)
		api.PATCH("/links/:id", h.UpdateLink)
		api.DELETE("/links/:id", h.DeleteLink)
		api.GET("/links/:id/clicks", h.ListClicks)
		api.GET("/links/:id/qr", h.QRCode)
		api.GET("/resolve/:shortCode", h.ResolveLink)
	}

	router.POST("/:shortCode/unlock", h.UnlockLink)
	router.GET("/:shortCode", h.RedirectLink)
}

func (h *LinkHandler) CreateLink(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req model.CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	link, err := h.links.CreateShortLink(c.Request.Context(), userID, model.CreateLinkInput{
		OriginalURL: req.URL,
		CustomAlias: req.CustomAlias,
		ExpiresAt:   req.ExpiresAt,
		Title:       req.Title,
		Description: req.Description,
		Password:    req.Password,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, h.toResponse(link))
}

func (h *LinkHandler) ListLinks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return
	}

	links, err := h.links.ListLinks(c.Request.Context(), userID, limit, offset)
	if err != nil {
		h.handleError(c, err)
		return
	}

	response := model.LinkListResponse{
		Links:  make([]model.LinkResponse, 0, len(links)),
		Limit:  service.ClampLimit(limit, service.DefaultPageSize, service.MaxPageSize),
		Offset: max(offset, 0),
	}
	for _, link := range links {
		response.Links = append(response.Links, h.toResponse(link))
	}

	c.JSON(http.StatusOK, response)
}

func (h *LinkHandler) GetLink(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	link, err := h.links.GetLink(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link))
}

func (h *LinkHandler) UpdateLink(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	var req model.UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	link, err := h.links.UpdateLink(c.Request.Context(), userID, c.Param("id"), model.LinkPatch{
		OriginalURL:    req.URL,
		CustomAlias:    req.CustomAlias,
		Status:         req.Status,
		ExpiresAt:      req.ExpiresAt,
		ClearExpiresAt: req.ClearExpiresAt,
		Title:          req.Title,
		Description:    req.Description,
		Password:       req.Password,
		ClearPassword:  req.ClearPassword,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, h.toResponse(link))
}

func (h *LinkHandler) DeleteLink(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	if err := h.links.DeleteLink(c.Request.Context(), userID, c.Param("id")); err != nil {
		h.handleError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *LinkHandler) ListClicks(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}

	clicks, err := h.links.ListClicks(c.Request.Context(), userID, c.Param("id"), limit)
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"clicks": clicks,
		"limit":  service.ClampLimit(limit, service.DefaultClickLimit, service.MaxClickLimit),
	})
}

func (h *LinkHandler) QRCode(c *gin.Context) {
	userID, ok := requireUser(c)
	if !ok {
		return
	}

	size, ok := queryInt(c, "size", 0)
	if !ok {
		return
	}
	if size != 0 && (size < qrcode.MinSize || size > qrcode.MaxSize) {
		h.handleError(c, apperrors.NewValidationError("size", "size must be between 128 and 1024"))
		return
	}

	link, err := h.links.GetLink(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		h.handleError(c, err)
		return
	}

	png, err := h.qr.PNG(h.links.ShortURL(link.ShortCode), size)
	if err != nil {
		h.handleError(c, apperrors.NewBusinessError("QR_GENERATION_FAILED", "failed to generate QR code", err))
		return
	}

	c.Header("Content-Disposition", "inline; filename="+link.ShortCode+".png")
	c.Data(http.StatusOK, "image/png", png)
}

// ResolveLink resolves without redirecting.
func (h *LinkHandler) ResolveLink(c *gin.Context) {
	shortCode := c.Param("shortCode")

	originalURL, err := h.links.Resolve(c.Request.Context(), shortCode, clientMeta(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ResolveResponse{ShortCode: shortCode, OriginalURL: originalURL})
}

func (h *LinkHandler) RedirectLink(c *gin.Context) {
	shortCode := c.Param("shortCode")

	originalURL, err := h.links.Resolve(c.Request.Context(), shortCode, clientMeta(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.Redirect(http.StatusFound, originalURL)
}

func (h *LinkHandler) UnlockLink(c *gin.Context) {
	shortCode := c.Param("shortCode")

	var req model.UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	originalURL, err := h.links.Unlock(c.Request.Context(), shortCode, req.Password, clientMeta(c))
	if err != nil {
		h.handleError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.ResolveResponse{ShortCode: shortCode, OriginalURL: originalURL})
}

// handleError maps service errors to HTTP status codes.
func (h *LinkHandler) handleError(c *gin.Context, err error) {
	_ = c.Error(err)

	if validationErr := apperrors.GetValidationError(err); validationErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": validationErr.Message,
			"field":   validationErr.Field,
		})
		return
	}

	if conflictErr := apperrors.GetConflictError(err); conflictErr != nil {
		c.JSON(http.StatusConflict, gin.H{
			"error":      "conflict",
			"message":    "Short code is already taken",
			"short_code": conflictErr.ShortCode,
		})
		return
	}

	switch {
	case apperrors.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "Link not found",
		})
		return
	case apperrors.IsStoreUnavailable(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "store_unavailable",
			"message": "Service temporarily unavailable, please retry",
		})
		return
	case errors.Is(err, apperrors.ErrPasswordRequired):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "password_required",
			"message": "This link is password protected",
		})
		return
	case errors.Is(err, apperrors.ErrInvalidPassword):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_password",
			"message": "Invalid password",
		})
		return
	}

	if businessErr := apperrors.GetBusinessError(err); businessErr != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "business_error",
			"message": businessErr.Message,
			"code":    businessErr.Code,
		})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "internal_error",
		"message": "An unexpected error occurred",
	})
}

func (h *LinkHandler) toResponse(link *model.Link) model.LinkResponse {
	return model.LinkResponse{
		ID:          link.ID,
		ShortCode:   link.ShortCode,
		OriginalURL: link.OriginalURL,
		ShortURL:    h.links.ShortURL(link.ShortCode),
		Title:       link.Title,
		Description: link.Description,
		Status:      link.Status,
		Protected:   link.Protected(),
		ExpiresAt:   link.ExpiresAt,
		ClickCount:  link.ClickCount,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
	}
}

func requireUser(c *gin.Context) (string, bool) {
	userID := middleware.GetUserID(c)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "unauthorized",
			"message": "X-User-ID header is required",
		})
		return "", false
	}
	return userID, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_error",
			"message": name + " must be an integer",
			"field":   name,
		})
		return 0, false
	}
	return v, true
}

func clientMeta(c *gin.Context) model.ClickMetadata {
	return model.ClickMetadata{
		Referrer:  c.Request.Referer(),
		UserAgent: c.Request.UserAgent(),
		IP:        c.ClientIP(),
		Country:   c.GetHeader("CF-IPCountry"),
	}
}
