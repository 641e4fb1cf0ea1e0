// Package stock provides the stock ledger: per-(product, branch) balances
// backed by an append-only movement log.
package stock

import (
	"context"
	"time"

	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
)

// Repository defines operations for the stock ledger.
// Mutating methods must run inside a tx.Manager transaction.
type Repository interface {
	// Locking

	// LockBalance takes an exclusive lock on the (product, branch) balance row
	// and returns it. When the row is absent it is created at zero if create
	// is set; otherwise a zero balance is returned.
	LockBalance(ctx context.Context, productID, branchID id.ID, create bool) (entity.StockBalance, error)

	// ApplyMovement appends m to the log and adds m.Delta() to the cached
	// balance of a row locked by LockBalance. Both writes happen or neither.
	// Returns the new current stock.
	ApplyMovement(ctx context.Context, m entity.InventoryMovement) (int64, error)

	// Reads

	// GetStock returns the balance row, or a zero balance when absent.
	GetStock(ctx context.Context, productID, branchID id.ID) (entity.StockBalance, error)

	// GetBalances lists balance rows matching filter.
	GetBalances(ctx context.Context, filter BalanceFilter) ([]entity.StockBalance, error)

	// GetMovements returns movement history for a product, newest first.
	GetMovements(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.InventoryMovement, error)

	// ReplayStock folds the whole movement log of (product, branch).
	ReplayStock(ctx context.Context, productID, branchID id.ID) (int64, error)
}

// BalanceFilter for filtering balance queries.
type BalanceFilter struct {
	BranchID  *id.ID
	ProductID *id.ID
}

// MovementFilter for filtering movement history.
type MovementFilter struct {
	BranchID *id.ID
	Type     *entity.MovementType
	FromDate *time.Time
	ToDate   *time.Time
	Limit    int
	Offset   int
}
