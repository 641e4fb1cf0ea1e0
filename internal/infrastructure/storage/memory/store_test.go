package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookkeeping/internal/core/apperror"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/registers/stock"
)

func TestRunInTransaction_CommitAndRollback(t *testing.T) {
	s := New()
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.LockSequence(ctx, "payments", 2025)
		require.NoError(t, err)
		seq.LastNumber = 5
		require.NoError(t, s.SaveSequence(ctx, seq))
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, ok, err := s.GetSequence(ctx, "payments", 2025)
	require.NoError(t, err)
	assert.False(t, ok, "rolled back row creation must not be visible")

	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.LockSequence(ctx, "payments", 2025)
		require.NoError(t, err)
		seq.LastNumber = 7
		return s.SaveSequence(ctx, seq)
	})
	require.NoError(t, err)

	seq, ok, err := s.GetSequence(ctx, "payments", 2025)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(7), seq.LastNumber)
}

func TestRunInTransaction_PanicReleasesLocks(t *testing.T) {
	s := New(WithLockTimeout(100 * time.Millisecond))
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			_, _ = s.LockSequence(ctx, "cheques", 2025)
			panic("orchestrator bug")
		})
	})

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.LockSequence(ctx, "cheques", 2025)
		return err
	})
	assert.NoError(t, err)
}

func TestLock_TimesOutWithoutPartialWrites(t *testing.T) {
	s := New(WithLockTimeout(50 * time.Millisecond))
	ctx := context.Background()
	productID, branchID := id.New(), id.New()

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = s.RunInTransaction(ctx, func(ctx context.Context) error {
			_, err := s.LockBalance(ctx, productID, branchID, true)
			close(held)
			<-done
			return err
		})
	}()
	<-held

	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.LockBalance(ctx, productID, branchID, true)
		return err
	})
	close(done)

	require.Error(t, err)
	assert.True(t, apperror.IsRetryable(err))
	assert.ErrorIs(t, err, errLockWait)
}

func TestLock_ContextCancelled(t *testing.T) {
	s := New(WithLockTimeout(0))
	productID, branchID := id.New(), id.New()

	held := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		_ = s.RunInTransaction(context.Background(), func(ctx context.Context) error {
			_, err := s.LockBalance(ctx, productID, branchID, false)
			close(held)
			<-done
			return err
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.LockBalance(ctx, productID, branchID, false)
		return err
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestApplyMovement_Guards(t *testing.T) {
	s := New()
	ctx := context.Background()
	productID, branchID := id.New(), id.New()
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	mv := entity.NewInventoryMovement(productID, branchID, entity.MovementReturn, 3, "", nil, at)
	_, err := s.ApplyMovement(ctx, mv)
	assert.ErrorIs(t, err, errNoTx)

	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		_, err := s.ApplyMovement(ctx, mv)
		return err
	})
	assert.ErrorIs(t, err, errNotLocked)

	err = s.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.LockBalance(ctx, productID, branchID, true); err != nil {
			return err
		}
		out := entity.NewInventoryMovement(productID, branchID, entity.MovementIssue, 1, "", nil, at)
		_, err := s.ApplyMovement(ctx, out)
		return err
	})
	assert.ErrorIs(t, err, errNegativeStock)

	bal, err := s.GetStock(ctx, productID, branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.CurrentStock)
	movements, err := s.GetMovements(ctx, productID, stock.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestReads_SeeOnlyCommittedData(t *testing.T) {
	s := New()
	ctx := context.Background()
	productID, branchID := id.New(), id.New()
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)

	inside := make(chan struct{})
	resume := make(chan struct{})
	finished := make(chan error)
	go func() {
		finished <- s.RunInTransaction(ctx, func(ctx context.Context) error {
			if _, err := s.LockBalance(ctx, productID, branchID, true); err != nil {
				return err
			}
			mv := entity.NewInventoryMovement(productID, branchID, entity.MovementReturn, 4, "", nil, at)
			if _, err := s.ApplyMovement(ctx, mv); err != nil {
				return err
			}
			close(inside)
			<-resume
			return nil
		})
	}()
	<-inside

	bal, err := s.GetStock(ctx, productID, branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), bal.CurrentStock)
	replayed, err := s.ReplayStock(ctx, productID, branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), replayed)

	close(resume)
	require.NoError(t, <-finished)

	bal, err = s.GetStock(ctx, productID, branchID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), bal.CurrentStock)
}

func TestNewestFirst_KeepsInsertionOrderOnTies(t *testing.T) {
	at := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	items := []entity.LedgerEntry{
		{Description: "a", CreatedAt: at},
		{Description: "b", CreatedAt: at.Add(time.Hour)},
		{Description: "c", CreatedAt: at},
	}

	got := newestFirst(items, func(e entity.LedgerEntry) time.Time { return e.CreatedAt })

	var order []string
	for _, e := range got {
		order = append(order, e.Description)
	}
	assert.Equal(t, []string{"b", "c", "a"}, order)
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{2, 3}, page(items, 1, 2))
	assert.Equal(t, []int{4, 5}, page(items, 3, 0))
	assert.Nil(t, page(items, 9, 2))
	assert.Equal(t, items, page(items, 0, 0))
}
