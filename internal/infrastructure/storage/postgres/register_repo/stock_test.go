package register_repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/registers/stock"
)

func TestMovementsQuery(t *testing.T) {
	repo := NewStockRepo(nil)
	productID, branchID := id.New(), id.New()
	issue := entity.MovementIssue
	from := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		filter   stock.MovementFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "product only",
			filter:   stock.MovementFilter{},
			wantSQL:  "SELECT id, product_id, branch_id, movement_type, qty_units, note, reference_type, reference_id, created_at FROM inventory_movements WHERE product_id = $1 ORDER BY created_at DESC, id DESC",
			wantArgs: []any{productID.String()},
		},
		{
			name:     "all filters",
			filter:   stock.MovementFilter{BranchID: &branchID, Type: &issue, FromDate: &from, Limit: 20, Offset: 40},
			wantSQL:  "SELECT id, product_id, branch_id, movement_type, qty_units, note, reference_type, reference_id, created_at FROM inventory_movements WHERE product_id = $1 AND branch_id = $2 AND movement_type = $3 AND created_at >= $4 ORDER BY created_at DESC, id DESC LIMIT 20 OFFSET 40",
			wantArgs: []any{productID.String(), branchID.String(), "ISSUE", from},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, args, err := repo.movementsQuery(productID, tt.filter).ToSql()
			require.NoError(t, err)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestBalancesQuery(t *testing.T) {
	repo := NewStockRepo(nil)
	branchID := id.New()

	sql, args, err := repo.balancesQuery(stock.BalanceFilter{BranchID: &branchID}).ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT product_id, branch_id, current_stock, updated_at FROM product_branch_stock WHERE branch_id = $1 ORDER BY branch_id, product_id", sql)
	assert.Equal(t, []any{branchID.String()}, args)
}

func TestBalanceLockQuery(t *testing.T) {
	repo := NewStockRepo(nil)
	productID, branchID := id.New(), id.New()

	sql, args, err := repo.balanceQuery(productID, branchID).Suffix("FOR UPDATE").ToSql()
	require.NoError(t, err)

	assert.Equal(t, "SELECT product_id, branch_id, current_stock, updated_at FROM product_branch_stock WHERE branch_id = $1 AND product_id = $2 FOR UPDATE", sql)
	// squirrel.Eq renders driver.Valuer ids through Value()
	assert.Equal(t, []any{branchID.String(), productID.String()}, args)
}

func TestMovementRow_RoundTrip(t *testing.T) {
	m := entity.NewInventoryMovement(id.New(), id.New(), entity.MovementTransferOut, 4, "rebalance",
		entity.NewReference(entity.RefTransfer, id.New()), time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC))

	row := toMovementRow(m)
	require.NotNil(t, row.ReferenceType)
	assert.Equal(t, "transfer", *row.ReferenceType)
	assert.Equal(t, "TRANSFER_OUT", row.MovementType)

	back, err := row.toEntity()
	require.NoError(t, err)
	assert.Equal(t, m, back)
}
