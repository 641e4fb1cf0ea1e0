package postgres

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"bookkeeping/internal/core/apperror"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"lock timeout", &pgconn.PgError{Code: "55P03"}, apperror.CodeLockTimeout},
		{"deadlock", fmt.Errorf("lock: %w", &pgconn.PgError{Code: "40P01"}), apperror.CodeLockTimeout},
		{"statement timeout", &pgconn.PgError{Code: "57014"}, apperror.CodeLockTimeout},
		{"check violation", &pgconn.PgError{Code: "23514"}, apperror.CodeDatabase},
		{"plain", errors.New("connection reset"), apperror.CodeDatabase},
		{"app error", apperror.NewNotFound("customer", "c1"), apperror.CodeNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapError("apply movement", tt.err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.NoError(t, MapError("noop", nil))
	assert.True(t, apperror.IsRetryable(MapError("lock", &pgconn.PgError{Code: "40P01"})))
}

func TestConstraintHelpers(t *testing.T) {
	wrapped := fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23514"})

	assert.True(t, IsCheckViolation(wrapped))
	assert.False(t, IsUniqueViolation(wrapped))
	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
}

func TestIsUniqueViolation_ThroughMigrationErrors(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "schema_migrations_pkey"}

	// a failed batch statement and a failed commit, as Migrate sees them
	assert.True(t, IsUniqueViolation(fmt.Errorf("batch query 4 failed: %w", dup)))
	assert.True(t, IsUniqueViolation(MapError("commit transaction", dup)))
	assert.False(t, IsUniqueViolation(MapError("commit transaction", &pgconn.PgError{Code: "40P01"})))
}
