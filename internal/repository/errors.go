package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	apperrors "github.com/Kosench/go-link-resolver/internal/errors"
	"github.com/Kosench/go-link-resolver/internal/model"
)

// isConnectivityError reports driver-agnostic signs that the store could not be reached.
func isConnectivityError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}

func storeError(op string, err error, unavailable func(error) bool) error {
	if unavailable(err) {
		return apperrors.NewStoreUnavailableError(op, err)
	}
	return apperrors.NewBusinessError("DATABASE_ERROR", "failed to "+op, err)
}

func notFound(query model.LinkQuery) error {
	if query.ShortCode != "" {
		return fmt.Errorf("link with short code '%s': %w", query.ShortCode, apperrors.ErrLinkNotFound)
	}
	return fmt.Errorf("link with id '%s': %w", query.ID, apperrors.ErrLinkNotFound)
}

var errEmptyQuery = apperrors.NewValidationError("query", "id or short code is required")

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
