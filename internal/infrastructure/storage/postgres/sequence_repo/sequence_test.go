package sequence_repo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceQueries(t *testing.T) {
	repo := NewSequenceRepo(nil)

	tests := []struct {
		name     string
		build    func() (string, []any, error)
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "ensure row",
			build:    repo.ensureRowQuery("issue_vouchers", 2025).ToSql,
			wantSQL:  "INSERT INTO sequences (entity_type,year,last_number,updated_at) VALUES ($1,$2,$3,now()) ON CONFLICT (entity_type, year) DO NOTHING",
			wantArgs: []any{"issue_vouchers", 2025, 0},
		},
		{
			name:     "lock row",
			build:    repo.selectQuery("payments", 2026).Suffix("FOR UPDATE").ToSql,
			wantSQL:  "SELECT entity_type, year, last_number, updated_at FROM sequences WHERE entity_type = $1 AND year = $2 FOR UPDATE",
			wantArgs: []any{"payments", 2026},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := tt.build()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}
