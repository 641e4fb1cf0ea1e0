// Package sequence_repo provides the PostgreSQL sequence counter store used by
// the numerator.
package sequence_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"bookkeeping/internal/core/entity"
	corenumerator "bookkeeping/internal/core/numerator"
	"bookkeeping/internal/infrastructure/storage/postgres"
)

const sequencesTable = "sequences"

var sequenceColumns = postgres.ExtractDBColumns[entity.Sequence]()

// SequenceRepo implements numerator.Repository.
type SequenceRepo struct {
	txm     *postgres.TxManager
	builder squirrel.StatementBuilderType
}

var _ corenumerator.Repository = (*SequenceRepo)(nil)

// NewSequenceRepo creates a new sequence repository.
func NewSequenceRepo(txm *postgres.TxManager) *SequenceRepo {
	return &SequenceRepo{
		txm:     txm,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// ensureRowQuery creates the zero row, doing nothing when it exists.
// Concurrent first callers both succeed; exactly one row results.
func (r *SequenceRepo) ensureRowQuery(entityType string, year int) squirrel.InsertBuilder {
	return r.builder.Insert(sequencesTable).
		Columns("entity_type", "year", "last_number", "updated_at").
		Values(entityType, year, 0, squirrel.Expr("now()")).
		Suffix("ON CONFLICT (entity_type, year) DO NOTHING")
}

func (r *SequenceRepo) selectQuery(entityType string, year int) squirrel.SelectBuilder {
	return r.builder.Select(sequenceColumns...).
		From(sequencesTable).
		Where(squirrel.Eq{"entity_type": entityType, "year": year})
}

// LockSequence creates the row if needed and locks it FOR UPDATE.
func (r *SequenceRepo) LockSequence(ctx context.Context, entityType string, year int) (entity.Sequence, error) {
	tx, err := r.txm.RequireTx(ctx, "LockSequence")
	if err != nil {
		return entity.Sequence{}, err
	}

	sql, args, err := r.ensureRowQuery(entityType, year).ToSql()
	if err != nil {
		return entity.Sequence{}, fmt.Errorf("build insert: %w", err)
	}
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return entity.Sequence{}, postgres.MapError("create sequence", err)
	}

	sql, args, err = r.selectQuery(entityType, year).Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return entity.Sequence{}, fmt.Errorf("build query: %w", err)
	}
	var seq entity.Sequence
	if err := pgxscan.Get(ctx, tx, &seq, sql, args...); err != nil {
		return entity.Sequence{}, postgres.MapError("lock sequence", err)
	}
	return seq, nil
}

// SaveSequence writes last_number of a locked row.
func (r *SequenceRepo) SaveSequence(ctx context.Context, seq entity.Sequence) error {
	tx, err := r.txm.RequireTx(ctx, "SaveSequence")
	if err != nil {
		return err
	}

	sql, args, err := r.builder.Update(sequencesTable).
		Set("last_number", seq.LastNumber).
		Set("updated_at", seq.UpdatedAt).
		Where(squirrel.Eq{"entity_type": seq.EntityType, "year": seq.Year}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	tag, err := tx.Exec(ctx, sql, args...)
	if err != nil {
		return postgres.MapError("save sequence", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("save sequence %s/%d: %d rows affected", seq.EntityType, seq.Year, tag.RowsAffected())
	}
	return nil
}

// GetSequence reads a row without locking it.
func (r *SequenceRepo) GetSequence(ctx context.Context, entityType string, year int) (entity.Sequence, bool, error) {
	sql, args, err := r.selectQuery(entityType, year).ToSql()
	if err != nil {
		return entity.Sequence{}, false, fmt.Errorf("build query: %w", err)
	}

	var seq entity.Sequence
	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &seq, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.Sequence{}, false, nil
		}
		return entity.Sequence{}, false, postgres.MapError("get sequence", err)
	}
	return seq, true, nil
}

// EnsureSeries creates zero rows for every entity type in year and returns
// how many were new. Existing rows are left untouched.
func (r *SequenceRepo) EnsureSeries(ctx context.Context, entityTypes []string, year int) (int64, error) {
	queries := make([]postgres.BatchQuery, 0, len(entityTypes))
	for _, et := range entityTypes {
		sql, args, err := r.ensureRowQuery(et, year).ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert: %w", err)
		}
		queries = append(queries, postgres.BatchQuery{SQL: sql, Args: args})
	}

	var created int64
	err := r.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		n, err := postgres.NewBatchExecutor(r.txm).ExecuteBatch(ctx, queries)
		created = n
		return err
	})
	if err != nil {
		return 0, postgres.MapError("ensure series", err)
	}
	return created, nil
}
