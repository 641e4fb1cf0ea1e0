package postgres

import (
	"context"
	"fmt"

	"github.com/georgysavva/scany/v2/pgxscan"

	"bookkeeping/pkg/logger"
)

// Migration is one versioned schema change. Statements run in order inside a
// single transaction.
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

const createMigrationsTable = `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INT PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// rejectMutation backs the append-only triggers.
const rejectMutation = `
CREATE OR REPLACE FUNCTION reject_mutation() RETURNS trigger
LANGUAGE plpgsql AS $$
BEGIN
	RAISE EXCEPTION '% is append-only', TG_TABLE_NAME;
END
$$`

// Migrations is the schema of the bookkeeping core, oldest first.
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "catalogs",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS products (
				id            UUID PRIMARY KEY,
				name          TEXT NOT NULL,
				reorder_level BIGINT NOT NULL DEFAULT 0 CHECK (reorder_level >= 0)
			)`,
			`CREATE TABLE IF NOT EXISTS branches (
				id   UUID PRIMARY KEY,
				name TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS customers (
				id   UUID PRIMARY KEY,
				name TEXT NOT NULL
			)`,
		},
	},
	{
		Version: 2,
		Name:    "sequences",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS sequences (
				entity_type TEXT NOT NULL,
				year        INT NOT NULL CHECK (year > 0),
				last_number BIGINT NOT NULL DEFAULT 0 CHECK (last_number >= 0),
				updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (entity_type, year)
			)`,
		},
	},
	{
		Version: 3,
		Name:    "stock",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS product_branch_stock (
				product_id    UUID NOT NULL REFERENCES products (id),
				branch_id     UUID NOT NULL REFERENCES branches (id),
				current_stock BIGINT NOT NULL DEFAULT 0,
				updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
				PRIMARY KEY (product_id, branch_id),
				CONSTRAINT product_branch_stock_non_negative CHECK (current_stock >= 0)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_product_branch_stock_branch ON product_branch_stock (branch_id, product_id)`,
			`CREATE TABLE IF NOT EXISTS inventory_movements (
				id             UUID PRIMARY KEY,
				product_id     UUID NOT NULL,
				branch_id      UUID NOT NULL,
				movement_type  TEXT NOT NULL CHECK (movement_type IN ('ISSUE', 'RETURN', 'TRANSFER_OUT', 'TRANSFER_IN')),
				qty_units      BIGINT NOT NULL CHECK (qty_units > 0),
				note           TEXT NOT NULL DEFAULT '',
				reference_type TEXT CHECK (reference_type IN ('issue_voucher', 'payment', 'return', 'discount', 'transfer', 'manual')),
				reference_id   UUID,
				created_at     TIMESTAMPTZ NOT NULL,
				FOREIGN KEY (product_id, branch_id) REFERENCES product_branch_stock (product_id, branch_id),
				CHECK ((reference_type IS NULL) = (reference_id IS NULL))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_inventory_movements_key ON inventory_movements (product_id, branch_id, created_at, id)`,
			`CREATE INDEX IF NOT EXISTS idx_inventory_movements_ref ON inventory_movements (reference_type, reference_id)`,
			rejectMutation,
			`DROP TRIGGER IF EXISTS inventory_movements_append_only ON inventory_movements`,
			`CREATE TRIGGER inventory_movements_append_only
				BEFORE UPDATE OR DELETE ON inventory_movements
				FOR EACH ROW EXECUTE FUNCTION reject_mutation()`,
		},
	},
	{
		Version: 4,
		Name:    "ledger",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS ledger_entries (
				id             UUID PRIMARY KEY,
				customer_id    UUID NOT NULL REFERENCES customers (id),
				entry_type     TEXT NOT NULL CHECK (entry_type IN ('DEBIT', 'CREDIT')),
				amount         NUMERIC(14, 2) NOT NULL CHECK (amount > 0),
				description    TEXT NOT NULL DEFAULT '',
				reference_type TEXT CHECK (reference_type IN ('issue_voucher', 'payment', 'return', 'discount', 'transfer', 'manual')),
				reference_id   UUID,
				created_at     TIMESTAMPTZ NOT NULL,
				CHECK ((reference_type IS NULL) = (reference_id IS NULL))
			)`,
			`CREATE INDEX IF NOT EXISTS idx_ledger_entries_customer ON ledger_entries (customer_id, created_at DESC, id DESC)`,
			`CREATE INDEX IF NOT EXISTS idx_ledger_entries_ref ON ledger_entries (reference_type, reference_id)`,
			`DROP TRIGGER IF EXISTS ledger_entries_append_only ON ledger_entries`,
			`CREATE TRIGGER ledger_entries_append_only
				BEFORE UPDATE OR DELETE ON ledger_entries
				FOR EACH ROW EXECUTE FUNCTION reject_mutation()`,
		},
	},
}

func versionRecorded(ctx context.Context, txm *TxManager, version int) (bool, error) {
	var recorded bool
	err := txm.GetQuerier(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, version).Scan(&recorded)
	return recorded, err
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration commits on its own, so a failure leaves earlier ones applied.
func Migrate(ctx context.Context, txm *TxManager, migrations []Migration) (applied int, err error) {
	if _, err := txm.GetQuerier(ctx).Exec(ctx, createMigrationsTable); err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := pgxscan.Get(ctx, txm.GetQuerier(ctx), &current,
		`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}

	batch := NewBatchExecutor(txm)
	for _, m := range migrations {
		if m.Version <= current {
			continue
		}

		queries := make([]BatchQuery, 0, len(m.Statements)+1)
		for _, stmt := range m.Statements {
			queries = append(queries, BatchQuery{SQL: stmt})
		}
		queries = append(queries, BatchQuery{
			SQL:  `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
			Args: []any{m.Version, m.Name},
		})

		err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := batch.ExecuteBatch(ctx, queries)
			return err
		})
		if err != nil {
			// a concurrent run got there first: its schema_migrations row or
			// catalog entries collide with ours
			if IsUniqueViolation(err) {
				recorded, rerr := versionRecorded(ctx, txm, m.Version)
				if rerr == nil && recorded {
					logger.Info(ctx, "migration applied concurrently, skipping", "version", m.Version, "name", m.Name)
					continue
				}
			}
			return applied, fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}

		applied++
		logger.Info(ctx, "migration applied", "version", m.Version, "name", m.Name)
	}
	return applied, nil
}
