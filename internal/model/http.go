package model

import "time"

type CreateLinkRequest struct {
	URL         string     `json:"url" binding:"required,max=2048"`
	CustomAlias string     `json:"custom_alias" binding:"omitempty,alias"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Title       string     `json:"title" binding:"max=255"`
	Description string     `json:"description" binding:"max=1024"`
	Password    string     `json:"password" binding:"omitempty,min=4,max=72"`
}

type UpdateLinkRequest struct {
	URL            *string    `json:"url" binding:"omitempty,max=2048"`
	CustomAlias    *string    `json:"custom_alias" binding:"omitempty,alias"`
	Status         *Status    `json:"status" binding:"omitempty,oneof=active expired disabled"`
	ExpiresAt      *time.Time `json:"expires_at"`
	ClearExpiresAt bool       `json:"clear_expires_at"`
	Title          *string    `json:"title" binding:"omitempty,max=255"`
	Description    *string    `json:"description" binding:"omitempty,max=1024"`
	Password       *string    `json:"password" binding:"omitempty,min=4,max=72"`
	ClearPassword  bool       `json:"clear_password"`
}

type UnlockRequest struct {
	Password string `json:"password" binding:"required"`
}

type LinkResponse struct {
	ID          string     `json:"id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	ShortURL    string     `json:"short_url"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Protected   bool       `json:"protected"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type LinkListResponse struct {
	Links  []LinkResponse `json:"links"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

type ResolveResponse struct {
	ShortCode   string `json:"short_code"`
	OriginalURL string `json:"original_url"`
}
