package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassification(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name             string
		err              error
		validation       bool
		conflict         bool
		notFound         bool
		storeUnavailable bool
		business         bool
	}{
		{"validation", NewValidationError("url", "bad"), true, false, false, false, false},
		{"wrapped validation", fmt.Errorf("create: %w", NewValidationError("url", "bad")), true, false, false, false, false},
		{"short code required", ErrShortCodeRequired, true, false, false, false, false},
		{"conflict", NewConflictError("promo"), false, true, false, false, false},
		{"wrapped conflict", fmt.Errorf("failed to create link: %w", NewConflictError("promo")), false, true, false, false, false},
		{"not found", fmt.Errorf("link 'x': %w", ErrLinkNotFound), false, false, true, false, false},
		{"store unavailable", NewStoreUnavailableError("find link", cause), false, false, false, true, false},
		{"store unavailable without cause", NewStoreUnavailableError("find link", nil), false, false, false, true, false},
		{"business", NewBusinessError("X", "failed", cause), false, false, false, false, true},
		{"plain", cause, false, false, false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.validation)
			}
			if got := IsConflictError(tt.err); got != tt.conflict {
				t.Errorf("IsConflictError() = %v, want %v", got, tt.conflict)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound() = %v, want %v", got, tt.notFound)
			}
			if got := IsStoreUnavailable(tt.err); got != tt.storeUnavailable {
				t.Errorf("IsStoreUnavailable() = %v, want %v", got, tt.storeUnavailable)
			}
			if got := IsBusinessError(tt.err); got != tt.business {
				t.Errorf("IsBusinessError() = %v, want %v", got, tt.business)
			}
		})
	}
}

func TestStoreUnavailableError_KeepsCause(t *testing.T) {
	cause := errors.New("i/o timeout")
	err := fmt.Errorf("failed to list links: %w", NewStoreUnavailableError("list links", cause))

	if !errors.Is(err, cause) {
		t.Error("errors.Is(err, cause) = false, want true")
	}
	if err.Error() != "failed to list links: store unavailable during list links: i/o timeout" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestGetters(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", NewConflictError("promo"))

	if c := GetConflictError(err); c == nil || c.ShortCode != "promo" {
		t.Errorf("GetConflictError() = %v", c)
	}
	if v := GetValidationError(err); v != nil {
		t.Errorf("GetValidationError() = %v, want nil", v)
	}

	verr := GetValidationError(NewValidationError("custom_alias", "too short"))
	if verr == nil || verr.Field != "custom_alias" {
		t.Errorf("GetValidationError() = %v", verr)
	}
	if verr.Error() != "validation error in field 'custom_alias': too short" {
		t.Errorf("Error() = %q", verr.Error())
	}

	berr := GetBusinessError(NewBusinessError("CODE", "msg", nil))
	if berr == nil || berr.Code != "CODE" || berr.Error() != "msg" {
		t.Errorf("GetBusinessError() = %v", berr)
	}
}
