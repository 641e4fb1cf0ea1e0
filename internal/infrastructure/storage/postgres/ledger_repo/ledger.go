// Package ledger_repo provides the PostgreSQL store of customer ledger entries.
package ledger_repo

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/core/types"
	"bookkeeping/internal/domain/ledger"
	"bookkeeping/internal/infrastructure/storage/postgres"
)

const entriesTable = "ledger_entries"

// signedAmount is the contribution of one entry to a balance.
const signedAmount = "CASE WHEN entry_type = 'DEBIT' THEN amount ELSE -amount END"

var entryColumns = postgres.ExtractDBColumns[entryRow]()

// entryRow is the persisted shape of entity.LedgerEntry.
type entryRow struct {
	ID            id.ID       `db:"id"`
	CustomerID    id.ID       `db:"customer_id"`
	EntryType     string      `db:"entry_type"`
	Amount        types.Money `db:"amount"`
	Description   string      `db:"description"`
	ReferenceType *string     `db:"reference_type"`
	ReferenceID   *id.ID      `db:"reference_id"`
	CreatedAt     time.Time   `db:"created_at"`
}

func toEntryRow(e entity.LedgerEntry) entryRow {
	refType, refID := postgres.ReferenceColumns(e.Reference)
	return entryRow{
		ID:            e.ID,
		CustomerID:    e.CustomerID,
		EntryType:     string(e.Type),
		Amount:        e.Amount,
		Description:   e.Description,
		ReferenceType: refType,
		ReferenceID:   refID,
		CreatedAt:     e.CreatedAt,
	}
}

func (r entryRow) toEntity() (entity.LedgerEntry, error) {
	ref, err := postgres.ReferenceFromColumns(r.ReferenceType, r.ReferenceID)
	if err != nil {
		return entity.LedgerEntry{}, fmt.Errorf("ledger entry %s: %w", r.ID, err)
	}
	return entity.LedgerEntry{
		ID:          r.ID,
		CustomerID:  r.CustomerID,
		Type:        entity.EntryType(r.EntryType),
		Amount:      r.Amount,
		Description: r.Description,
		Reference:   ref,
		CreatedAt:   r.CreatedAt,
	}, nil
}

// LedgerRepo implements ledger.Repository.
type LedgerRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ ledger.Repository = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txm *postgres.TxManager) *LedgerRepo {
	return &LedgerRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

func (r *LedgerRepo) insertQuery(e entity.LedgerEntry) squirrel.InsertBuilder {
	return r.builder.Insert(entriesTable).SetMap(postgres.StructToMap(toEntryRow(e)))
}

// InsertEntry appends an entry, joining the transaction in ctx if any.
func (r *LedgerRepo) InsertEntry(ctx context.Context, e entity.LedgerEntry) error {
	sql, args, err := r.insertQuery(e).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError("insert ledger entry", err)
	}
	return nil
}

func (r *LedgerRepo) entriesQuery(customerID id.ID, filter ledger.EntryFilter) squirrel.SelectBuilder {
	q := r.builder.Select(entryColumns...).
		From(entriesTable).
		Where(squirrel.Eq{"customer_id": customerID})
	if filter.From != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.From})
	}
	if filter.To != nil {
		q = q.Where(squirrel.LtOrEq{"created_at": *filter.To})
	}
	return q.OrderBy("created_at DESC", "id DESC")
}

// GetEntries returns a customer's entries, newest first.
func (r *LedgerRepo) GetEntries(ctx context.Context, customerID id.ID, filter ledger.EntryFilter) ([]entity.LedgerEntry, error) {
	sql, args, err := r.entriesQuery(customerID, filter).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []entryRow
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, postgres.MapError("select ledger entries", err)
	}

	entries := make([]entity.LedgerEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntity()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *LedgerRepo) balanceQuery(customerID id.ID) squirrel.SelectBuilder {
	return r.builder.Select("COALESCE(SUM(" + signedAmount + "), 0)").
		From(entriesTable).
		Where(squirrel.Eq{"customer_id": customerID})
}

// GetCustomerBalance returns Σdebit − Σcredit of a customer.
func (r *LedgerRepo) GetCustomerBalance(ctx context.Context, customerID id.ID) (types.Money, error) {
	sql, args, err := r.balanceQuery(customerID).ToSql()
	if err != nil {
		return types.Zero(), fmt.Errorf("build query: %w", err)
	}

	var balance types.Money
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&balance); err != nil {
		return types.Zero(), postgres.MapError("get customer balance", err)
	}
	return balance, nil
}

func (r *LedgerRepo) nonZeroQuery() squirrel.SelectBuilder {
	return r.builder.Select("customer_id", "SUM("+signedAmount+") AS balance").
		From(entriesTable).
		GroupBy("customer_id").
		Having("SUM(" + signedAmount + ") <> 0").
		OrderBy("customer_id")
}

// GetNonZeroBalances returns customers whose balance is not zero.
func (r *LedgerRepo) GetNonZeroBalances(ctx context.Context) ([]entity.CustomerBalance, error) {
	sql, args, err := r.nonZeroQuery().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.CustomerBalance
	if err := pgxscan.Select(ctx, r.txm.GetQuerier(ctx), &balances, sql, args...); err != nil {
		return nil, postgres.MapError("select balances", err)
	}
	return balances, nil
}

// GetTotalBalance returns the net receivable across all customers.
func (r *LedgerRepo) GetTotalBalance(ctx context.Context) (types.Money, error) {
	sql, args, err := r.builder.Select("COALESCE(SUM(" + signedAmount + "), 0)").From(entriesTable).ToSql()
	if err != nil {
		return types.Zero(), fmt.Errorf("build query: %w", err)
	}

	var total types.Money
	if err := r.txm.GetQuerier(ctx).QueryRow(ctx, sql, args...).Scan(&total); err != nil {
		return types.Zero(), postgres.MapError("get total balance", err)
	}
	return total, nil
}
