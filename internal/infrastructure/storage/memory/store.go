// Package memory provides an in-process store with the same transaction,
// locking and atomicity contract as the postgres store. It backs tests and
// single-process tools.
//
// Writes made inside RunInTransaction are buffered per transaction and become
// visible to other callers only on commit. Locks are held until the
// outermost RunInTransaction returns.
package memory

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"bookkeeping/internal/core/apperror"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	corenumerator "bookkeeping/internal/core/numerator"
	"bookkeeping/internal/core/tx"
	"bookkeeping/internal/core/types"
	"bookkeeping/internal/domain/catalogs"
	"bookkeeping/internal/domain/ledger"
	"bookkeeping/internal/domain/registers/stock"
)

// DefaultLockTimeout bounds every lock wait unless overridden.
const DefaultLockTimeout = 5 * time.Second

var (
	errNoTx          = errors.New("memory: operation requires a transaction")
	errNotLocked     = errors.New("memory: row is not locked by this transaction")
	errNegativeStock = errors.New("current_stock would become negative")
)

// Compile-time interface checks.
var (
	_ tx.Manager               = (*Store)(nil)
	_ corenumerator.Repository = (*Store)(nil)
	_ stock.Repository         = (*Store)(nil)
	_ ledger.Repository        = (*Store)(nil)
	_ catalogs.ProductReader   = (*Store)(nil)
	_ catalogs.BranchReader    = (*Store)(nil)
	_ catalogs.CustomerReader  = (*Store)(nil)
)

type seqKey struct {
	entityType string
	year       int
}

func (k seqKey) lockName() string {
	return fmt.Sprintf("sequences/%s/%d", k.entityType, k.year)
}

type stockKey struct {
	productID id.ID
	branchID  id.ID
}

func (k stockKey) lockName() string {
	return fmt.Sprintf("product_branch_stock/%s/%s", k.productID, k.branchID)
}

// Store is an in-memory bookkeeping database.
type Store struct {
	mu        sync.Mutex
	sequences map[seqKey]entity.Sequence
	balances  map[stockKey]entity.StockBalance
	movements []entity.InventoryMovement
	entries   []entity.LedgerEntry

	products  map[id.ID]catalogs.Product
	branches  map[id.ID]catalogs.Branch
	customers map[id.ID]catalogs.Customer

	locks       *lockTable
	lockTimeout time.Duration
	now         func() time.Time
}

// Option customizes a Store.
type Option func(*Store)

// WithLockTimeout sets how long a transaction waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// WithClock overrides the timestamp source for rows the store creates.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		sequences:   make(map[seqKey]entity.Sequence),
		balances:    make(map[stockKey]entity.StockBalance),
		products:    make(map[id.ID]catalogs.Product),
		branches:    make(map[id.ID]catalogs.Branch),
		customers:   make(map[id.ID]catalogs.Customer),
		locks:       newLockTable(),
		lockTimeout: DefaultLockTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// --- Transactions ---

type txKey struct{}

// txn buffers the writes of one transaction.
type txn struct {
	held      []string
	heldSet   map[string]struct{}
	sequences map[seqKey]entity.Sequence
	balances  map[stockKey]entity.StockBalance
	movements []entity.InventoryMovement
	entries   []entity.LedgerEntry
}

func newTxn() *txn {
	return &txn{
		heldSet:   make(map[string]struct{}),
		sequences: make(map[seqKey]entity.Sequence),
		balances:  make(map[stockKey]entity.StockBalance),
	}
}

func (t *txn) holds(name string) bool {
	_, ok := t.heldSet[name]
	return ok
}

func txFrom(ctx context.Context) *txn {
	t, _ := ctx.Value(txKey{}).(*txn)
	return t
}

func requireTx(ctx context.Context) (*txn, error) {
	if t := txFrom(ctx); t != nil {
		return t, nil
	}
	return nil, errNoTx
}

// RunInTransaction executes fn within a transaction. A transaction already in
// ctx is joined. On error or panic nothing fn wrote is kept.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	t := newTxn()
	defer s.releaseAll(t)

	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		return err
	}
	s.commit(t)
	return nil
}

func (s *Store) commit(t *txn) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, v := range t.sequences {
		s.sequences[k] = v
	}
	for k, v := range t.balances {
		s.balances[k] = v
	}
	s.movements = append(s.movements, t.movements...)
	s.entries = append(s.entries, t.entries...)
}

func (s *Store) releaseAll(t *txn) {
	for i := len(t.held) - 1; i >= 0; i-- {
		s.locks.release(t.held[i])
	}
	t.held = nil
}

func (s *Store) lock(ctx context.Context, t *txn, name string) error {
	if t.holds(name) {
		return nil
	}
	if err := s.locks.acquire(ctx, name, s.lockTimeout); err != nil {
		return err
	}
	t.held = append(t.held, name)
	t.heldSet[name] = struct{}{}
	return nil
}

// --- Sequences ---

func (s *Store) lookupSequence(t *txn, k seqKey) (entity.Sequence, bool) {
	if t != nil {
		if seq, ok := t.sequences[k]; ok {
			return seq, true
		}
	}
	seq, ok := s.sequences[k]
	return seq, ok
}

// LockSequence locks the (entityType, year) row, creating it at zero first
// when absent.
func (s *Store) LockSequence(ctx context.Context, entityType string, year int) (entity.Sequence, error) {
	t, err := requireTx(ctx)
	if err != nil {
		return entity.Sequence{}, err
	}
	k := seqKey{entityType: entityType, year: year}
	if err := s.lock(ctx, t, k.lockName()); err != nil {
		return entity.Sequence{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.lookupSequence(t, k)
	if !ok {
		seq = entity.Sequence{EntityType: entityType, Year: year, UpdatedAt: s.now().UTC()}
		t.sequences[k] = seq
	}
	return seq, nil
}

// SaveSequence writes back a row locked by LockSequence.
func (s *Store) SaveSequence(ctx context.Context, seq entity.Sequence) error {
	t, err := requireTx(ctx)
	if err != nil {
		return err
	}
	k := seqKey{entityType: seq.EntityType, year: seq.Year}
	if !t.holds(k.lockName()) {
		return errNotLocked
	}
	t.sequences[k] = seq
	return nil
}

// GetSequence reads a row without locking it.
func (s *Store) GetSequence(ctx context.Context, entityType string, year int) (entity.Sequence, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seq, ok := s.lookupSequence(txFrom(ctx), seqKey{entityType: entityType, year: year})
	return seq, ok, nil
}

// --- Stock ---

func (s *Store) lookupBalance(t *txn, k stockKey) (entity.StockBalance, bool) {
	if t != nil {
		if b, ok := t.balances[k]; ok {
			return b, true
		}
	}
	b, ok := s.balances[k]
	return b, ok
}

// LockBalance locks the (product, branch) row.
func (s *Store) LockBalance(ctx context.Context, productID, branchID id.ID, create bool) (entity.StockBalance, error) {
	t, err := requireTx(ctx)
	if err != nil {
		return entity.StockBalance{}, err
	}
	k := stockKey{productID: productID, branchID: branchID}
	if err := s.lock(ctx, t, k.lockName()); err != nil {
		return entity.StockBalance{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.lookupBalance(t, k)
	if !ok {
		bal = entity.StockBalance{ProductID: productID, BranchID: branchID, UpdatedAt: s.now().UTC()}
		if create {
			t.balances[k] = bal
		}
	}
	return bal, nil
}

// ApplyMovement appends m and moves the locked balance by m.Delta().
func (s *Store) ApplyMovement(ctx context.Context, m entity.InventoryMovement) (int64, error) {
	t, err := requireTx(ctx)
	if err != nil {
		return 0, err
	}
	if !m.Type.Valid() || m.Quantity <= 0 {
		return 0, apperror.NewValidation(fmt.Sprintf("invalid movement %s of %d", m.Type, m.Quantity))
	}
	k := stockKey{productID: m.ProductID, branchID: m.BranchID}
	if !t.holds(k.lockName()) {
		return 0, errNotLocked
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.lookupBalance(t, k)
	if !ok {
		return 0, apperror.NewDatabase("apply movement",
			fmt.Errorf("no stock row for product %s in branch %s", m.ProductID, m.BranchID))
	}
	next := bal.CurrentStock + m.Delta()
	if next < 0 {
		return 0, apperror.NewDatabase("apply movement", errNegativeStock)
	}

	bal.CurrentStock = next
	bal.UpdatedAt = m.CreatedAt
	t.balances[k] = bal
	t.movements = append(t.movements, m)
	return next, nil
}

// GetStock returns the balance row or a zero balance.
func (s *Store) GetStock(ctx context.Context, productID, branchID id.ID) (entity.StockBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	bal, ok := s.lookupBalance(txFrom(ctx), stockKey{productID: productID, branchID: branchID})
	if !ok {
		return entity.StockBalance{ProductID: productID, BranchID: branchID}, nil
	}
	return bal, nil
}

// GetBalances lists balance rows ordered by branch, then product.
func (s *Store) GetBalances(ctx context.Context, filter stock.BalanceFilter) ([]entity.StockBalance, error) {
	t := txFrom(ctx)

	s.mu.Lock()
	merged := make(map[stockKey]entity.StockBalance, len(s.balances))
	for k, v := range s.balances {
		merged[k] = v
	}
	s.mu.Unlock()
	if t != nil {
		for k, v := range t.balances {
			merged[k] = v
		}
	}

	out := make([]entity.StockBalance, 0, len(merged))
	for _, b := range merged {
		if filter.BranchID != nil && b.BranchID != *filter.BranchID {
			continue
		}
		if filter.ProductID != nil && b.ProductID != *filter.ProductID {
			continue
		}
		out = append(out, b)
	}
	slices.SortFunc(out, func(a, b entity.StockBalance) int {
		if c := id.Compare(a.BranchID, b.BranchID); c != 0 {
			return c
		}
		return id.Compare(a.ProductID, b.ProductID)
	})
	return out, nil
}

func (s *Store) movementsView(t *txn) []entity.InventoryMovement {
	s.mu.Lock()
	out := slices.Clone(s.movements)
	s.mu.Unlock()
	if t != nil {
		out = append(out, t.movements...)
	}
	return out
}

// GetMovements returns filtered movements of a product, newest first.
func (s *Store) GetMovements(ctx context.Context, productID id.ID, filter stock.MovementFilter) ([]entity.InventoryMovement, error) {
	var out []entity.InventoryMovement
	for _, m := range s.movementsView(txFrom(ctx)) {
		if m.ProductID != productID {
			continue
		}
		if filter.BranchID != nil && m.BranchID != *filter.BranchID {
			continue
		}
		if filter.Type != nil && m.Type != *filter.Type {
			continue
		}
		if !inRange(m.CreatedAt, filter.FromDate, filter.ToDate) {
			continue
		}
		out = append(out, m)
	}
	out = newestFirst(out, func(m entity.InventoryMovement) time.Time { return m.CreatedAt })
	return page(out, filter.Offset, filter.Limit), nil
}

// ReplayStock folds the movement log of (product, branch) in creation order.
func (s *Store) ReplayStock(ctx context.Context, productID, branchID id.ID) (int64, error) {
	var log []entity.InventoryMovement
	for _, m := range s.movementsView(txFrom(ctx)) {
		if m.ProductID == productID && m.BranchID == branchID {
			log = append(log, m)
		}
	}
	return entity.ReplayStock(log), nil
}

// --- Ledger ---

// InsertEntry appends an entry, inside the transaction in ctx if any.
func (s *Store) InsertEntry(ctx context.Context, e entity.LedgerEntry) error {
	if t := txFrom(ctx); t != nil {
		t.entries = append(t.entries, e)
		return nil
	}
	s.mu.Lock()
	s.entries = append(s.entries, e)
	s.mu.Unlock()
	return nil
}

func (s *Store) entriesView(t *txn) []entity.LedgerEntry {
	s.mu.Lock()
	out := slices.Clone(s.entries)
	s.mu.Unlock()
	if t != nil {
		out = append(out, t.entries...)
	}
	return out
}

// GetEntries returns a customer's entries newest first.
func (s *Store) GetEntries(ctx context.Context, customerID id.ID, filter ledger.EntryFilter) ([]entity.LedgerEntry, error) {
	var out []entity.LedgerEntry
	for _, e := range s.entriesView(txFrom(ctx)) {
		if e.CustomerID == customerID && inRange(e.CreatedAt, filter.From, filter.To) {
			out = append(out, e)
		}
	}
	return newestFirst(out, func(e entity.LedgerEntry) time.Time { return e.CreatedAt }), nil
}

// GetCustomerBalance sums a customer's signed entries.
func (s *Store) GetCustomerBalance(ctx context.Context, customerID id.ID) (types.Money, error) {
	balance := types.Zero()
	for _, e := range s.entriesView(txFrom(ctx)) {
		if e.CustomerID == customerID {
			balance = balance.Add(e.Signed())
		}
	}
	return balance, nil
}

// GetNonZeroBalances returns customers with a non-zero balance ordered by id.
func (s *Store) GetNonZeroBalances(ctx context.Context) ([]entity.CustomerBalance, error) {
	sums := make(map[id.ID]types.Money)
	for _, e := range s.entriesView(txFrom(ctx)) {
		if cur, ok := sums[e.CustomerID]; ok {
			sums[e.CustomerID] = cur.Add(e.Signed())
		} else {
			sums[e.CustomerID] = e.Signed()
		}
	}

	var out []entity.CustomerBalance
	for customerID, balance := range sums {
		if !balance.IsZero() {
			out = append(out, entity.CustomerBalance{CustomerID: customerID, Balance: balance})
		}
	}
	slices.SortFunc(out, func(a, b entity.CustomerBalance) int { return id.Compare(a.CustomerID, b.CustomerID) })
	return out, nil
}

// GetTotalBalance sums every signed entry.
func (s *Store) GetTotalBalance(ctx context.Context) (types.Money, error) {
	total := types.Zero()
	for _, e := range s.entriesView(txFrom(ctx)) {
		total = total.Add(e.Signed())
	}
	return total, nil
}

// --- Catalogs ---

// AddProduct registers a product for lookups.
func (s *Store) AddProduct(p catalogs.Product) {
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
}

// AddBranch registers a branch for lookups.
func (s *Store) AddBranch(b catalogs.Branch) {
	s.mu.Lock()
	s.branches[b.ID] = b
	s.mu.Unlock()
}

// AddCustomer registers a customer for lookups.
func (s *Store) AddCustomer(c catalogs.Customer) {
	s.mu.Lock()
	s.customers[c.ID] = c
	s.mu.Unlock()
}

func (s *Store) GetProduct(_ context.Context, productID id.ID) (catalogs.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[productID]
	if !ok {
		return catalogs.Product{}, apperror.NewNotFound("product", productID)
	}
	return p, nil
}

func (s *Store) GetBranch(_ context.Context, branchID id.ID) (catalogs.Branch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.branches[branchID]
	if !ok {
		return catalogs.Branch{}, apperror.NewNotFound("branch", branchID)
	}
	return b, nil
}

func (s *Store) GetCustomer(_ context.Context, customerID id.ID) (catalogs.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.customers[customerID]
	if !ok {
		return catalogs.Customer{}, apperror.NewNotFound("customer", customerID)
	}
	return c, nil
}

// --- helpers ---

func inRange(at time.Time, from, to *time.Time) bool {
	if from != nil && at.Before(*from) {
		return false
	}
	if to != nil && at.After(*to) {
		return false
	}
	return true
}

// newestFirst orders by timestamp descending; equal timestamps keep reverse
// insertion order.
func newestFirst[T any](items []T, at func(T) time.Time) []T {
	slices.Reverse(items)
	slices.SortStableFunc(items, func(a, b T) int { return at(b).Compare(at(a)) })
	return items
}

func page[T any](items []T, offset, limit int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
