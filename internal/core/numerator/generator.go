package numerator

import (
	"context"

	"bookkeeping/internal/core/entity"
)

// Generator generates sequential document numbers.
// This is the domain contract - the implementation lives in infrastructure/numerator.
type Generator interface {
	// NextNumber returns the next number of the series as "{year}/{n}".
	// Numbers of one (entityType, year) are unique and gapless under
	// concurrent callers.
	NextNumber(ctx context.Context, entityType string, year int) (string, error)
}

// Repository persists sequence rows.
// Mutating methods must run inside a tx.Manager transaction.
type Repository interface {
	// LockSequence returns the row for (entityType, year), creating it with
	// last_number = 0 when absent, and holds an exclusive lock on it until the
	// transaction ends.
	LockSequence(ctx context.Context, entityType string, year int) (entity.Sequence, error)

	// SaveSequence writes last_number of a row locked by LockSequence.
	SaveSequence(ctx context.Context, seq entity.Sequence) error

	// GetSequence reads a row without locking. ok is false when absent.
	GetSequence(ctx context.Context, entityType string, year int) (seq entity.Sequence, ok bool, err error)
}
