package errors

import (
	"errors"
	"fmt"
)

var (
	ErrLinkNotFound      = errors.New("link not found")
	ErrShortCodeExists   = errors.New("short code already exists")
	ErrStoreUnavailable  = errors.New("record store unavailable")
	ErrPasswordRequired  = errors.New("link is password protected")
	ErrInvalidPassword   = errors.New("invalid link password")
	ErrShortCodeRequired = NewValidationError("short_code", "short code cannot be empty")
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error in field '%s': %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// ConflictError reports a uniqueness violation on a short code.
type ConflictError struct {
	ShortCode string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("short code '%s' is already taken", e.ShortCode)
}

func (e *ConflictError) Unwrap() error {
	return ErrShortCodeExists
}

func NewConflictError(shortCode string) *ConflictError {
	return &ConflictError{ShortCode: shortCode}
}

// StoreUnavailableError is transient: the caller may retry.
type StoreUnavailableError struct {
	Op    string
	Cause error
}

func (e *StoreUnavailableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("store unavailable during %s: %v", e.Op, e.Cause)
	}
	return fmt.Sprintf("store unavailable during %s", e.Op)
}

func (e *StoreUnavailableError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrStoreUnavailable}
	}
	return []error{ErrStoreUnavailable, e.Cause}
}

func NewStoreUnavailableError(op string, cause error) *StoreUnavailableError {
	return &StoreUnavailableError{
		Op:    op,
		Cause: cause,
	}
}

type BusinessError struct {
	Code    string
	Message string
	Cause   error
}

func (e *BusinessError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Cause
}

func NewBusinessError(code, message string, cause error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func IsValidationError(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrShortCodeExists)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrLinkNotFound)
}

func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}

func IsBusinessError(err error) bool {
	var businessErr *BusinessError
	return errors.As(err, &businessErr)
}

func GetValidationError(err error) *ValidationError {
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return validationErr
	}
	return nil
}

func GetConflictError(err error) *ConflictError {
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return conflictErr
	}
	return nil
}

// GetBusinessError extracts the first BusinessError in the chain.
func GetBusinessError(err error) *BusinessError {
	var businessErr *BusinessError
	if errors.As(err, &businessErr) {
		return businessErr
	}
	return nil
}
