package stock_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"bookkeeping/internal/core/apperror"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/catalogs"
	"bookkeeping/internal/domain/registers/stock"
	"bookkeeping/internal/infrastructure/storage/memory"
	"bookkeeping/pkg/logger"
)

type fixture struct {
	store   *memory.Store
	svc     *stock.Service
	product catalogs.Product
	branchA id.ID
	branchB id.ID
}

// tickClock returns strictly increasing timestamps.
func tickClock() func() time.Time {
	var (
		mu  sync.Mutex
		cur = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newFixture(t *testing.T) (*fixture, context.Context) {
	t.Helper()

	store := memory.New()
	f := &fixture{
		store:   store,
		svc:     stock.NewService(store, store, store, store, stock.WithClock(tickClock())),
		product: catalogs.Product{ID: id.New(), Name: "Paracetamol 500mg", ReorderLevel: 10},
		branchA: id.New(),
		branchB: id.New(),
	}
	store.AddProduct(f.product)
	store.AddBranch(catalogs.Branch{ID: f.branchA, Name: "Main"})
	store.AddBranch(catalogs.Branch{ID: f.branchB, Name: "Harbour"})

	ctx := logger.WithLogger(context.Background(), logger.Nop())
	return f, ctx
}

func (f *fixture) seed(t *testing.T, ctx context.Context, branchID id.ID, qty int64) {
	t.Helper()
	_, err := f.svc.Return(ctx, f.product.ID, branchID, qty, "opening balance", nil)
	require.NoError(t, err)
}

func (f *fixture) stock(t *testing.T, ctx context.Context, branchID id.ID) int64 {
	t.Helper()
	qty, err := f.svc.CurrentStock(ctx, f.product.ID, branchID)
	require.NoError(t, err)
	return qty
}

func (f *fixture) movements(t *testing.T, ctx context.Context) []entity.InventoryMovement {
	t.Helper()
	mvs, err := f.svc.Movements(ctx, f.product.ID, stock.MovementFilter{})
	require.NoError(t, err)
	return mvs
}

func TestIssue_DecrementsStockAndLogsMovement(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 20)

	voucher := entity.NewReference(entity.RefIssueVoucher, id.New())
	mv, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 5, "sold", voucher)
	require.NoError(t, err)

	assert.Equal(t, int64(15), f.stock(t, ctx, f.branchA))
	assert.Equal(t, entity.MovementIssue, mv.Type)
	assert.Equal(t, int64(5), mv.Quantity)
	assert.Equal(t, voucher, mv.Reference)

	issueType := entity.MovementIssue
	issues, err := f.svc.Movements(ctx, f.product.ID, stock.MovementFilter{Type: &issueType})
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, mv.ID, issues[0].ID)
}

func TestIssue_InsufficientStockChangesNothing(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 5)

	_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 10, "too much", nil)
	require.Error(t, err)
	assert.True(t, apperror.IsInsufficientStock(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, int64(5), appErr.Details["available"])
	assert.Equal(t, int64(10), appErr.Details["requested"])

	assert.Equal(t, int64(5), f.stock(t, ctx, f.branchA))
	assert.Len(t, f.movements(t, ctx), 1)
}

func TestIssue_NeverStockedPairIsEmpty(t *testing.T) {
	f, ctx := newFixture(t)

	_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 1, "", nil)
	assert.True(t, apperror.IsInsufficientStock(err))

	balances, err := f.store.GetBalances(ctx, stock.BalanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, balances, "a rejected issue must not create a stock row")
}

func TestReturn_CreatesRowLazily(t *testing.T) {
	f, ctx := newFixture(t)

	assert.Equal(t, int64(0), f.stock(t, ctx, f.branchB))

	mv, err := f.svc.Return(ctx, f.product.ID, f.branchB, 7, "customer return",
		entity.NewReference(entity.RefReturn, id.New()))
	require.NoError(t, err)

	assert.Equal(t, entity.MovementReturn, mv.Type)
	assert.Equal(t, int64(7), f.stock(t, ctx, f.branchB))
}

func TestTransfer_MovesStockBetweenBranches(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 20)

	res, err := f.svc.Transfer(ctx, f.product.ID, f.branchA, f.branchB, 10, "rebalance")
	require.NoError(t, err)

	assert.Equal(t, int64(10), f.stock(t, ctx, f.branchA))
	assert.Equal(t, int64(10), f.stock(t, ctx, f.branchB))

	assert.Equal(t, entity.MovementTransferOut, res.Out.Type)
	assert.Equal(t, f.branchA, res.Out.BranchID)
	assert.Equal(t, entity.MovementTransferIn, res.In.Type)
	assert.Equal(t, f.branchB, res.In.BranchID)
	require.NotNil(t, res.Out.Reference)
	assert.Equal(t, entity.RefTransfer, res.Out.Reference.Kind)
	assert.Equal(t, res.Out.Reference, res.In.Reference)

	// opening return + the two transfer legs
	assert.Len(t, f.movements(t, ctx), 3)
}

func TestTransfer_InsufficientStockWritesNothing(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 3)

	_, err := f.svc.Transfer(ctx, f.product.ID, f.branchA, f.branchB, 4, "")
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.Equal(t, int64(3), f.stock(t, ctx, f.branchA))
	assert.Equal(t, int64(0), f.stock(t, ctx, f.branchB))
	assert.Len(t, f.movements(t, ctx), 1)

	balances, err := f.store.GetBalances(ctx, stock.BalanceFilter{BranchID: &f.branchB})
	require.NoError(t, err)
	assert.Empty(t, balances, "target row creation must roll back with the transfer")
}

func TestTransfer_SameBranchRejected(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 3)

	_, err := f.svc.Transfer(ctx, f.product.ID, f.branchA, f.branchA, 1, "")
	assert.True(t, apperror.HasCode(err, apperror.CodeValidation))
	assert.Len(t, f.movements(t, ctx), 1)
}

func TestTransfer_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 100)
	f.seed(t, ctx, f.branchB, 100)

	const perDirection = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*perDirection)
	for i := 0; i < perDirection; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, f.product.ID, f.branchA, f.branchB, 1, "a->b")
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.Transfer(ctx, f.product.ID, f.branchB, f.branchA, 1, "b->a")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int64(100), f.stock(t, ctx, f.branchA))
	assert.Equal(t, int64(100), f.stock(t, ctx, f.branchB))
	assert.Len(t, f.movements(t, ctx), 2+4*perDirection)
}

func TestIssue_ConcurrentCallersNeverOversell(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 10)

	var (
		wg       sync.WaitGroup
		ok       atomic.Int64
		rejected atomic.Int64
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 1, "", nil)
			switch {
			case err == nil:
				ok.Add(1)
			case apperror.IsInsufficientStock(err):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), ok.Load())
	assert.Equal(t, int64(15), rejected.Load())
	assert.Equal(t, int64(0), f.stock(t, ctx, f.branchA))
}

func TestReplay_MatchesCachedStock(t *testing.T) {
	f, ctx := newFixture(t)

	ops := []struct {
		issue bool
		qty   int64
	}{
		{false, 12}, {true, 5}, {false, 3}, {true, 9}, {true, 1}, {false, 40}, {true, 17},
	}
	var want int64
	for _, op := range ops {
		if op.issue {
			_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, op.qty, "", nil)
			require.NoError(t, err)
			want -= op.qty
		} else {
			_, err := f.svc.Return(ctx, f.product.ID, f.branchA, op.qty, "", nil)
			require.NoError(t, err)
			want += op.qty
		}
	}
	_, err := f.svc.Transfer(ctx, f.product.ID, f.branchA, f.branchB, 6, "")
	require.NoError(t, err)
	want -= 6

	assert.Equal(t, want, f.stock(t, ctx, f.branchA))

	for _, branchID := range []id.ID{f.branchA, f.branchB} {
		d, err := f.svc.Reconcile(ctx, f.product.ID, branchID)
		require.NoError(t, err)
		assert.True(t, d.OK(), "cached %d, replayed %d", d.Cached, d.Replayed)
	}

	drifted, err := f.svc.ReconcileAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, drifted)
}

func TestMutations_RejectBadInput(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 5)

	tests := []struct {
		name string
		call func() error
		code string
	}{
		{
			name: "zero quantity",
			call: func() error {
				_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 0, "", nil)
				return err
			},
			code: apperror.CodeValidation,
		},
		{
			name: "negative return",
			call: func() error {
				_, err := f.svc.Return(ctx, f.product.ID, f.branchA, -2, "", nil)
				return err
			},
			code: apperror.CodeValidation,
		},
		{
			name: "unknown reference kind",
			call: func() error {
				_, err := f.svc.Return(ctx, f.product.ID, f.branchA, 1, "", &entity.Reference{Kind: "invoice", ID: id.New()})
				return err
			},
			code: apperror.CodeValidation,
		},
		{
			name: "unknown product",
			call: func() error {
				_, err := f.svc.Return(ctx, id.New(), f.branchA, 1, "", nil)
				return err
			},
			code: apperror.CodeNotFound,
		},
		{
			name: "unknown branch",
			call: func() error {
				_, err := f.svc.Issue(ctx, f.product.ID, id.New(), 1, "", nil)
				return err
			},
			code: apperror.CodeNotFound,
		},
		{
			name: "unknown transfer target",
			call: func() error {
				_, err := f.svc.Transfer(ctx, f.product.ID, f.branchA, id.New(), 1, "")
				return err
			},
			code: apperror.CodeNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)
			assert.True(t, apperror.HasCode(err, tt.code), "got %v", err)
		})
	}

	assert.Equal(t, int64(5), f.stock(t, ctx, f.branchA))
	assert.Len(t, f.movements(t, ctx), 1)
}

func TestReorderLevel(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 12)

	below, err := f.svc.IsBelowReorderLevel(ctx, f.product.ID, f.branchA)
	require.NoError(t, err)
	assert.False(t, below)

	_, err = f.svc.Issue(ctx, f.product.ID, f.branchA, 3, "", nil)
	require.NoError(t, err)

	below, err = f.svc.IsBelowReorderLevel(ctx, f.product.ID, f.branchA)
	require.NoError(t, err)
	assert.True(t, below)

	items, err := f.svc.ProductsBelowReorderLevel(ctx, f.branchA)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, f.product.ID, items[0].Product.ID)
	assert.Equal(t, int64(9), items[0].CurrentStock)

	items, err = f.svc.ProductsBelowReorderLevel(ctx, f.branchB)
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = f.svc.IsBelowReorderLevel(ctx, id.New(), f.branchA)
	assert.True(t, apperror.IsNotFound(err))
}

func TestMovements_NewestFirstWithPaging(t *testing.T) {
	f, ctx := newFixture(t)
	for qty := int64(1); qty <= 4; qty++ {
		f.seed(t, ctx, f.branchA, qty)
	}

	mvs := f.movements(t, ctx)
	require.Len(t, mvs, 4)
	assert.Equal(t, int64(4), mvs[0].Quantity)
	assert.Equal(t, int64(1), mvs[3].Quantity)

	paged, err := f.svc.Movements(ctx, f.product.ID, stock.MovementFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, paged, 2)
	assert.Equal(t, int64(3), paged[0].Quantity)
	assert.Equal(t, int64(2), paged[1].Quantity)

	from := mvs[2].CreatedAt
	to := mvs[1].CreatedAt
	ranged, err := f.svc.Movements(ctx, f.product.ID, stock.MovementFilter{FromDate: &from, ToDate: &to})
	require.NoError(t, err)
	assert.Len(t, ranged, 2)
}

func TestOperations_JoinOuterTransaction(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 10)

	err := f.store.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 4, "", nil); err != nil {
			return err
		}
		// the second leg fails, so the first must not survive
		_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 7, "", nil)
		return err
	})
	assert.True(t, apperror.IsInsufficientStock(err))

	assert.Equal(t, int64(10), f.stock(t, ctx, f.branchA))
	assert.Len(t, f.movements(t, ctx), 1)
}

func TestIssue_LogsCarryOperationAndReference(t *testing.T) {
	f, ctx := newFixture(t)
	f.seed(t, ctx, f.branchA, 4)

	core, logs := observer.New(zapcore.InfoLevel)
	ctx = logger.WithLogger(ctx, &logger.Logger{SugaredLogger: zap.New(core).Sugar()})

	voucher := entity.NewReference(entity.RefIssueVoucher, id.New())
	_, err := f.svc.Issue(ctx, f.product.ID, f.branchA, 3, "sold", voucher)
	require.NoError(t, err)

	issued := logs.FilterMessage("stock issued").All()
	require.Len(t, issued, 1)
	fields := issued[0].ContextMap()
	assert.Equal(t, "stock.Issue", fields["operation"])
	assert.Equal(t, "issue_voucher:"+voucher.ID.String(), fields["ref"])

	// one unit left is below the reorder level of 10
	low := logs.FilterMessage("stock below reorder level").All()
	require.Len(t, low, 1)
	assert.Equal(t, "stock.Issue", low[0].ContextMap()["operation"])
}
