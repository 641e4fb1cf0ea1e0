// Package catalog_repo provides PostgreSQL lookups of the products, branches
// and customers the bookkeeping core references.
package catalog_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"bookkeeping/internal/core/apperror"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/infrastructure/storage/postgres"
)

// BaseCatalogRepo provides lookups and upserts for one catalog table.
// T is the row struct; its "db" tags name the columns, "id" included.
type BaseCatalogRepo[T any] struct {
	txm        *postgres.TxManager
	tableName  string
	entityName string
	selectCols []string
}

// NewBaseCatalogRepo creates a new base catalog repository.
func NewBaseCatalogRepo[T any](txm *postgres.TxManager, tableName, entityName string) *BaseCatalogRepo[T] {
	return &BaseCatalogRepo[T]{
		txm:        txm,
		tableName:  tableName,
		entityName: entityName,
		selectCols: postgres.ExtractDBColumns[T](),
	}
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *BaseCatalogRepo[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

func (r *BaseCatalogRepo[T]) byIDQuery(entityID id.ID) squirrel.SelectBuilder {
	return r.Builder().
		Select(r.selectCols...).
		From(r.tableName).
		Where(squirrel.Eq{"id": entityID}).
		Limit(1)
}

// GetByID returns the row or an apperror NOT_FOUND.
func (r *BaseCatalogRepo[T]) GetByID(ctx context.Context, entityID id.ID) (T, error) {
	var entity T

	sql, args, err := r.byIDQuery(entityID).ToSql()
	if err != nil {
		return entity, fmt.Errorf("build query: %w", err)
	}

	if err := pgxscan.Get(ctx, r.txm.GetQuerier(ctx), &entity, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity, apperror.NewNotFound(r.entityName, entityID.String())
		}
		return entity, postgres.MapError("get "+r.entityName, err)
	}
	return entity, nil
}

func (r *BaseCatalogRepo[T]) upsertQuery(entity T) squirrel.InsertBuilder {
	data := postgres.StructToMap(entity)

	var updates []string
	for _, col := range r.selectCols {
		if col != "id" {
			updates = append(updates, col+" = EXCLUDED."+col)
		}
	}

	q := r.Builder().Insert(r.tableName).SetMap(data)
	if len(updates) == 0 {
		return q.Suffix("ON CONFLICT (id) DO NOTHING")
	}
	suffix := "ON CONFLICT (id) DO UPDATE SET " + updates[0]
	for _, u := range updates[1:] {
		suffix += ", " + u
	}
	return q.Suffix(suffix)
}

// Upsert inserts the row or overwrites the existing one with the same id.
// Catalog rows are owned elsewhere; this serves seeding and fixtures.
func (r *BaseCatalogRepo[T]) Upsert(ctx context.Context, entity T) error {
	sql, args, err := r.upsertQuery(entity).ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := r.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return postgres.MapError("upsert "+r.entityName, err)
	}
	return nil
}
