package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"bookkeeping/internal/core/apperror"
)

// SQLSTATE codes the store reacts to.
const (
	pgLockNotAvailable = "55P03"
	pgDeadlockDetected = "40P01"
	pgQueryCanceled    = "57014"
	pgCheckViolation   = "23514"
	pgUniqueViolation  = "23505"
)

// MapError converts a driver error into an AppError.
// Lock waits cut short by lock_timeout or statement_timeout, and deadlock
// victims, become LOCK_TIMEOUT so the orchestrator may retry the whole
// transaction. AppErrors pass through unchanged.
func MapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperror.IsAppError(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgQueryCanceled:
			return apperror.NewLockTimeout(op, err)
		}
	}
	return apperror.NewDatabase(op, err)
}

// IsCheckViolation reports whether err is a CHECK constraint failure.
func IsCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgCheckViolation
}

// IsUniqueViolation reports whether err is a unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
