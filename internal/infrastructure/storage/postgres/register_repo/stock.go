// Package register_repo provides the PostgreSQL implementation of the stock
// ledger: cached balances in product_branch_stock and the append-only
// inventory_movements log.
package register_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"bookkeeping/internal/core/apperror"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/registers/stock"
	"bookkeeping/internal/infrastructure/storage/postgres"
)

const (
	stockBalancesTable  = "product_branch_stock"
	stockMovementsTable = "inventory_movements"
)

var (
	balanceColumns  = postgres.ExtractDBColumns[entity.StockBalance]()
	movementColumns = postgres.ExtractDBColumns[movementRow]()
)

// movementRow is the persisted shape of entity.InventoryMovement.
type movementRow struct {
	ID            id.ID     `db:"id"`
	ProductID     id.ID     `db:"product_id"`
	BranchID      id.ID     `db:"branch_id"`
	MovementType  string    `db:"movement_type"`
	Quantity      int64     `db:"qty_units"`
	Note          string    `db:"note"`
	ReferenceType *string   `db:"reference_type"`
	ReferenceID   *id.ID    `db:"reference_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func toMovementRow(m entity.InventoryMovement) movementRow {
	refType, refID := postgres.ReferenceColumns(m.Reference)
	return movementRow{
		ID:            m.ID,
		ProductID:     m.ProductID,
		BranchID:      m.BranchID,
		MovementType:  string(m.Type),
		Quantity:      m.Quantity,
		Note:          m.Note,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedAt:     m.CreatedAt,
	}
}

func (r movementRow) toEntity() (entity.InventoryMovement, error) {
	ref, err := postgres.ReferenceFromColumns(r.ReferenceType, r.ReferenceID)
	if err != nil {
		return entity.InventoryMovement{}, fmt.Errorf("movement %s: %w", r.ID, err)
	}
	return entity.InventoryMovement{
		ID:        r.ID,
		ProductID: r.ProductID,
		BranchID:  r.BranchID,
		Type:      entity.MovementType(r.MovementType),
		Quantity:  r.Quantity,
		Note:      r.Note,
		Reference: ref,
		CreatedAt: r.CreatedAt,
	}, nil
}

// applyMovementSQL inserts the movement and moves the cached balance in one
// statement. The UPDATE matches nothing when the row is missing, and the
// CHECK on current_stock rejects a negative result.
const applyMovementSQL = `
WITH mv AS (
	INSERT INTO inventory_movements (
		id, product_id, branch_id, movement_type, qty_units, note,
		reference_type, reference_id, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	RETURNING product_id, branch_id, created_at
)
UPDATE product_branch_stock s
SET current_stock = s.current_stock + $10, updated_at = mv.created_at
FROM mv
WHERE s.product_id = mv.product_id AND s.branch_id = mv.branch_id
RETURNING s.current_stock`

// StockRepo implements stock.Repository.
type StockRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ stock.Repository = (*StockRepo)(nil)

// NewStockRepo creates a new stock register repository.
func NewStockRepo(txm *postgres.TxManager) *StockRepo {
	return &StockRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *StockRepo) balanceQuery(productID, branchID id.ID) squirrel.SelectBuilder {
	return r.builder.Select(balanceColumns...).
		From(stockBalancesTable).
		Where(squirrel.Eq{"product_id": productID, "branch_id": branchID})
}

// LockBalance returns the balance with a pessimistic lock, creating the row
// at zero first when create is set.
func (r *StockRepo) LockBalance(ctx context.Context, productID, branchID id.ID, create bool) (entity.StockBalance, error) {
	tx, err := r.txm.RequireTx(ctx, "LockBalance")
	if err != nil {
		return entity.StockBalance{}, err
	}

	if create {
		sql, args, err := r.builder.Insert(stockBalancesTable).
			Columns("product_id", "branch_id", "current_stock", "updated_at").
			Values(productID, branchID, 0, squirrel.Expr("now()")).
			Suffix("ON CONFLICT (product_id, branch_id) DO NOTHING").
			ToSql()
		if err != nil {
			return entity.StockBalance{}, fmt.Errorf("build insert: %w", err)
		}
		if _, err := tx.Exec(ctx, sql, args...); err != nil {
			return entity.StockBalance{}, postgres.MapError("create stock row", err)
		}
	}

	sql, args, err := r.balanceQuery(productID, branchID).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("build query: %w", err)
	}

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, tx, &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{ProductID: productID, BranchID: branchID}, nil
		}
		return entity.StockBalance{}, postgres.MapError("lock stock row", err)
	}
	return balance, nil
}

// ApplyMovement appends m and adds m.Delta() to the locked balance.
func (r *StockRepo) ApplyMovement(ctx context.Context, m entity.InventoryMovement) (int64, error) {
	tx, err := r.txm.RequireTx(ctx, "ApplyMovement")
	if err != nil {
		return 0, err
	}

	row := toMovementRow(m)
	var current int64
	err = tx.QueryRow(ctx, applyMovementSQL,
		row.ID, row.ProductID, row.BranchID, row.MovementType, row.Quantity, row.Note,
		row.ReferenceType, row.ReferenceID, row.CreatedAt,
		m.Delta(),
	).Scan(&current)
	if err != nil {
		if pgxscan.NotFound(err) {
			return 0, apperror.NewDatabase("apply movement",
				fmt.Errorf("no stock row for product %s in branch %s", m.ProductID, m.BranchID))
		}
		if postgres.IsCheckViolation(err) {
			// callers check stock under the row lock, so reaching the CHECK is a bug
			return 0, apperror.NewInternal(fmt.Errorf("stock would become negative: %w", err))
		}
		return 0, postgres.MapError("apply movement", err)
	}
	return current, nil
}

// GetStock returns the balance row or a zero balance.
func (r *StockRepo) GetStock(ctx context.Context, productID, branchID id.ID) (entity.StockBalance, error) {
	sql, args, err := r.balanceQuery(productID, branchID).ToSql()
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("build query: %w", err)
	}

	var balance entity.StockBalance
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{ProductID: productID, BranchID: branchID}, nil
		}
		return entity.StockBalance{}, postgres.MapError("get stock", err)
	}
	return balance, nil
}

func (r *StockRepo) balancesQuery(filter stock.BalanceFilter) squirrel.SelectBuilder {
	q := r.builder.Select(balanceColumns...).From(stockBalancesTable)
	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	return q.OrderBy("branch_id", "product_id")
}

// GetBalances lists balance rows ordered by branch, then product.
func (r *StockRepo) GetBalances(ctx context.Context, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	sql, args, err := r.balancesQuery(filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, postgres.MapError("select balances", err)
	}
	return balances, nil
}

func (r *StockRepo) movementsQuery(productID id.ID, filter stock.MovementFilter) squirrel.SelectBuilder {
	q := r.builder.Select(movementColumns...).
		From(stockMovementsTable).
		Where(squirrel.Eq{"product_id": productID})

	if filter.BranchID != nil {
		q = q.Where(squirrel.Eq{"branch_id": *filter.BranchID})
	}
	if filter.Type != nil {
		q = q.Where(squirrel.Eq{"movement_type": string(*filter.Type)})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.ToDate})
	}

	// UUIDv7 ids break created_at ties in insertion order
	q = q.OrderBy("created_at DESC", "id DESC")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}
	return q
}

// GetMovements returns movements of a product, newest first.
func (r *StockRepo) GetMovements(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.InventoryMovement, error) {
	sql, args, err := r.movementsQuery(productID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []movementRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError("select movements", err)
	}

	movements := make([]entity.InventoryMovement, 0, len(rows))
	for _, row := range rows {
		m, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, nil
}

func (r *StockRepo) replayQuery(productID, branchID id.ID) squirrel.SelectBuilder {
	return r.builder.
		Select("COALESCE(SUM(CASE WHEN movement_type IN ('ISSUE', 'TRANSFER_OUT') THEN -qty_units ELSE qty_units END), 0)::BIGINT").
		From(stockMovementsTable).
		Where(squirrel.Eq{"product_id": productID, "branch_id": branchID})
}

// ReplayStock folds the movement log of (product, branch) in the database.
func (r *StockRepo) ReplayStock(ctx context.Context, productID, branchID id.ID) (int64, error) {
	sql, args, err := r.replayQuery(productID, branchID).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}

	var replayed int64
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &replayed, sql, args...); err != nil {
		return 0, postgres.MapError("replay stock", err)
	}
	return replayed, nil
}
