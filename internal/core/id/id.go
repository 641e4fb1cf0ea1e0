// Package id provides UUIDv7 identifiers for bookkeeping records and their collaborators.
// UUIDv7 is time-ordered, so ids double as a creation-order tie-breaker.
package id

import (
	"bytes"

	"github.com/google/uuid"
)

// ID is a type alias for UUID, used for movements, ledger entries and
// the external product/branch/customer identities they point to.
type ID = uuid.UUID

// New generates a new UUIDv7 (time-ordered UUID).
// Two ids generated by the same process compare in generation order,
// which keeps equal created_at timestamps deterministically ordered.
func New() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// Fallback to V4 if V7 fails (should never happen)
		return uuid.New()
	}
	return id
}

// Parse converts string to ID with validation.
func Parse(s string) (ID, error) {
	return uuid.Parse(s)
}

// MustParse converts string to ID, panics on error.
// Use only for constants and tests.
func MustParse(s string) ID {
	return uuid.MustParse(s)
}

// Nil returns zero-value UUID.
func Nil() ID {
	return uuid.Nil
}

// IsNil checks if ID is zero-value.
func IsNil(id ID) bool {
	return id == uuid.Nil
}

// Compare orders two ids bytewise. It returns -1, 0 or +1.
// Row locks spanning several keys are acquired in this order.
func Compare(a, b ID) int {
	return bytes.Compare(a[:], b[:])
}
