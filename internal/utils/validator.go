package utils

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

const (
	MaxURLLength   = 2048
	MinAliasLength = 3
	MaxAliasLength = 64
)

var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Codes that would shadow routes served next to the redirect handler.
var reservedAliases = map[string]struct{}{
	"api":     {},
	"health":  {},
	"info":    {},
	"metrics": {},
	"static":  {},
}

func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return apperrors.NewValidationError("url", "URL cannot be empty")
	}

	if len(rawURL) > MaxURLLength {
		return apperrors.NewValidationError("url", fmt.Sprintf("URL is too long (max %d characters)", MaxURLLength))
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return apperrors.NewValidationError("url", fmt.Sprintf("invalid URL format: %v", err))
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return apperrors.NewValidationError("url", "URL must start with http:// or https://")
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError("url", "URL must contain a valid host")
	}

	return nil
}

// ValidAlias is the format rule shared by the service and the gin binding tag.
func ValidAlias(alias string) bool {
	return len(alias) >= MinAliasLength && len(alias) <= MaxAliasLength && aliasPattern.MatchString(alias)
}

func ValidateAlias(alias string) error {
	if len(alias) < MinAliasLength {
		return apperrors.NewValidationError("custom_alias", fmt.Sprintf("alias must be at least %d characters", MinAliasLength))
	}

	if len(alias) > MaxAliasLength {
		return apperrors.NewValidationError("custom_alias", fmt.Sprintf("alias must be at most %d characters", MaxAliasLength))
	}

	if !aliasPattern.MatchString(alias) {
		return apperrors.NewValidationError("custom_alias", "alias may only contain letters, digits, '-' and '_'")
	}

	if _, reserved := reservedAliases[strings.ToLower(alias)]; reserved {
		return apperrors.NewValidationError("custom_alias", fmt.Sprintf("alias '%s' is reserved", alias))
	}

	return nil
}

func ValidateExpiry(expiresAt *time.Time, now time.Time) error {
	if expiresAt == nil {
		return nil
	}

	if !expiresAt.After(now) {
		return apperrors.NewValidationError("expires_at", "expiration time must be in the future")
	}

	return nil
}

func ValidateStatus(status model.Status) error {
	if !status.Valid() {
		return apperrors.NewValidationError("status", fmt.Sprintf("unknown status '%s'", status))
	}
	return nil
}

func SanitizeInput(input string) string {
	// drop control characters, keep tab/newline/cr for TrimSpace
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != '\t' && r != '\n' && r != '\r' {
			return -1
		}
		return r
	}, input)

	return strings.TrimSpace(result)
}
