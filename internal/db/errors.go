package db

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"orgauth/backend/internal/platform/apperr"
)

// Classify maps a driver error to the apperr taxonomy. Errors that are already
// classified pass through unchanged; nil stays nil.
//
// Unique violations become CONFLICT. Connection loss, serialization and deadlock
// failures, lock timeouts, admin shutdown, and deadline expiry become the
// retryable STORE_UNAVAILABLE. Everything else is INTERNAL.
func Classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "23505":
			return apperr.Wrap(apperr.CodeConflict, "already exists", err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == "40001", pgErr.Code == "40P01",
			pgErr.Code == "55P03", pgErr.Code == "57P01", pgErr.Code == "57014":
			return apperr.Wrap(apperr.CodeStoreUnavailable, "store unavailable", err)
		}
		return apperr.Wrap(apperr.CodeInternal, "store error", err)
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return apperr.Wrap(apperr.CodeStoreUnavailable, "store timeout", err)
	}
	if errors.Is(err, context.Canceled) {
		return apperr.Wrap(apperr.CodeStoreUnavailable, "operation aborted", err)
	}
	if errors.Is(err, driver.ErrBadConn) {
		return apperr.Wrap(apperr.CodeStoreUnavailable, "store connection lost", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.CodeStoreUnavailable, "store unreachable", err)
	}
	return apperr.Wrap(apperr.CodeInternal, "store error", err)
}
