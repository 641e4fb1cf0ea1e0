package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"bookkeeping/internal/core/apperror"
)

var errLockWait = errors.New("lock wait timeout exceeded")

// lockTable hands out exclusive per-key locks. A key is held by at most one
// transaction until that transaction releases it.
type lockTable struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{slots: make(map[string]chan struct{})}
}

func (t *lockTable) slot(key string) chan struct{} {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch, ok := t.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		t.slots[key] = ch
	}
	return ch
}

// acquire blocks until key is free, timeout elapses or ctx is done.
// A non-positive timeout waits without bound.
func (t *lockTable) acquire(ctx context.Context, key string, timeout time.Duration) error {
	ch := t.slot(key)

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case ch <- struct{}{}:
		return nil
	case <-expired:
		return apperror.NewLockTimeout(key, errLockWait)
	case <-ctx.Done():
		return apperror.NewLockTimeout(key, ctx.Err())
	}
}

func (t *lockTable) release(key string) {
	<-t.slot(key)
}
