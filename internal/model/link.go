package model

import "time"

type Status string

const (
	StatusActive   Status = "active"
	StatusExpired  Status = "expired"
	StatusDisabled Status = "disabled"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusExpired, StatusDisabled:
		return true
	}
	return false
}

type Link struct {
	ID           string     `json:"id"`
	UserID       string     `json:"user_id"`
	OriginalURL  string     `json:"original_url"`
	ShortCode    string     `json:"short_code"`
	Title        string     `json:"title,omitempty"`
	Description  string     `json:"description,omitempty"`
	Status       Status     `json:"status"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	PasswordHash string     `json:"password_hash,omitempty"`
	ClickCount   int64      `json:"click_count"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// IsExpiredAt reports whether the link's expiry is at or before t.
func (l *Link) IsExpiredAt(t time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return !l.ExpiresAt.After(t)
}

func (l *Link) Protected() bool {
	return l.PasswordHash != ""
}

// LinkQuery is an equality predicate over indexed fields. Empty fields are ignored.
type LinkQuery struct {
	ID        string
	ShortCode string
	Status    Status
}

type CreateLinkInput struct {
	OriginalURL string
	CustomAlias string
	ExpiresAt   *time.Time
	Title       string
	Description string
	Password    string
}

// LinkPatch holds the fields an owner may change. Nil means "leave as is".
type LinkPatch struct {
	OriginalURL    *string
	CustomAlias    *string
	Status         *Status
	ExpiresAt      *time.Time
	ClearExpiresAt bool
	Title          *string
	Description    *string
	Password       *string
	ClearPassword  bool
}

// Empty reports whether the patch changes nothing; such updates skip the store write.
func (p LinkPatch) Empty() bool {
	return p.OriginalURL == nil && p.CustomAlias == nil && p.Status == nil &&
		p.ExpiresAt == nil && !p.ClearExpiresAt && p.Title == nil &&
		p.Description == nil && p.Password == nil && !p.ClearPassword
}
