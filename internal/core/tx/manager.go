// Package tx provides transaction management abstractions.
// Bookkeeping services depend on this interface, not on a concrete store.
package tx

import (
	"context"
)

// Manager runs a unit of work atomically.
//
// The active transaction travels in ctx. A nested RunInTransaction joins the
// outer transaction, so an orchestrator can wrap NextNumber, Issue and
// RecordDebit in one call and have them commit or roll back together.
// Row locks taken inside fn are held until the outermost call returns.
type Manager interface {
	// RunInTransaction executes fn within a transaction.
	// If fn returns an error, every write made through ctx is discarded.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
