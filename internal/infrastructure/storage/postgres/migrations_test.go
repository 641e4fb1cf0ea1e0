package postgres

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrations_OrderedAndUnique(t *testing.T) {
	seen := make(map[int]bool)
	prev := 0
	for _, m := range Migrations {
		assert.False(t, seen[m.Version], "duplicate version %d", m.Version)
		assert.Greater(t, m.Version, prev, "migration %s is out of order", m.Name)
		assert.NotEmpty(t, m.Statements, "migration %s is empty", m.Name)
		seen[m.Version] = true
		prev = m.Version
	}
}

func TestMigrations_StockCannotGoNegative(t *testing.T) {
	var ddl strings.Builder
	for _, m := range Migrations {
		for _, stmt := range m.Statements {
			ddl.WriteString(stmt)
			ddl.WriteString(";\n")
		}
	}
	schema := ddl.String()

	assert.Contains(t, schema, "CHECK (current_stock >= 0)")
	assert.Contains(t, schema, "PRIMARY KEY (entity_type, year)")
	assert.Contains(t, schema, "PRIMARY KEY (product_id, branch_id)")
	assert.Contains(t, schema, "inventory_movements_append_only")
	assert.Contains(t, schema, "ledger_entries_append_only")
}
