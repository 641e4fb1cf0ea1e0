// Package ledger provides the accounts ledger: append-only customer debits
// and credits with balances derived from them.
package ledger

import (
	"context"
	"time"

	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/core/types"
)

// Repository defines persistence for ledger entries.
// Entries are only ever inserted.
type Repository interface {
	InsertEntry(ctx context.Context, e entity.LedgerEntry) error

	// GetEntries returns entries of a customer, newest first.
	GetEntries(ctx context.Context, customerID id.ID, filter EntryFilter) ([]entity.LedgerEntry, error)

	// GetCustomerBalance returns Σdebit − Σcredit, zero without entries.
	GetCustomerBalance(ctx context.Context, customerID id.ID) (types.Money, error)

	// GetNonZeroBalances returns every customer whose balance is not zero.
	GetNonZeroBalances(ctx context.Context) ([]entity.CustomerBalance, error)

	// GetTotalBalance returns Σdebit − Σcredit over all customers.
	GetTotalBalance(ctx context.Context) (types.Money, error)
}

// EntryFilter narrows entry queries. Both bounds are inclusive.
type EntryFilter struct {
	From *time.Time
	To   *time.Time
}
