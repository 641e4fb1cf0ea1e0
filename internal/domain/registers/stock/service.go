package stock

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"bookkeeping/internal/core/apperror"
	appctx "bookkeeping/internal/core/context"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/core/tx"
	"bookkeeping/internal/domain/catalogs"
	"bookkeeping/pkg/logger"
)

var tracer = otel.Tracer("bookkeeping/stock")

// Service provides business operations for the stock ledger.
// Each mutating call runs in its own transaction, or joins the caller's one
// when ctx already carries a transaction.
type Service struct {
	repo     Repository
	txm      tx.Manager
	products catalogs.ProductReader
	branches catalogs.BranchReader
	now      func() time.Time
}

// Option customizes a Service.
type Option func(*Service)

// WithClock overrides the movement timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a new stock ledger service.
func NewService(repo Repository, txm tx.Manager, products catalogs.ProductReader, branches catalogs.BranchReader, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		txm:      txm,
		products: products,
		branches: branches,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer is the pair of movements written by a branch transfer.
type Transfer struct {
	Out entity.InventoryMovement `json:"out"`
	In  entity.InventoryMovement `json:"in"`
}

// Issue removes qty units of a product from a branch.
// Fails with INSUFFICIENT_STOCK, leaving stock and log untouched, when the
// branch holds fewer than qty units.
func (s *Service) Issue(ctx context.Context, productID, branchID id.ID, qty int64, note string, ref *entity.Reference) (entity.InventoryMovement, error) {
	ctx, span := s.startSpan(ctx, "stock.Issue", productID, branchID, qty, ref)
	defer span.End()

	if err := validateInput(qty, ref); err != nil {
		return entity.InventoryMovement{}, err
	}
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return entity.InventoryMovement{}, err
	}
	if _, err := s.branches.GetBranch(ctx, branchID); err != nil {
		return entity.InventoryMovement{}, err
	}

	var (
		mv       entity.InventoryMovement
		newStock int64
	)
	err = s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		// An absent row means zero stock, so there is nothing to create.
		bal, err := s.repo.LockBalance(ctx, productID, branchID, false)
		if err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		if qty > bal.CurrentStock {
			return apperror.NewInsufficientStock(productID.String(), branchID.String(), qty, bal.CurrentStock)
		}

		mv = entity.NewInventoryMovement(productID, branchID, entity.MovementIssue, qty, note, ref, s.now().UTC())
		newStock, err = s.repo.ApplyMovement(ctx, mv)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if apperror.IsInsufficientStock(err) {
			logger.Warn(ctx, "stock issue rejected", "product_id", productID, "branch_id", branchID, "requested", qty)
		}
		return entity.InventoryMovement{}, err
	}

	logger.Info(ctx, "stock issued",
		"movement_id", mv.ID,
		"product_id", productID,
		"branch_id", branchID,
		"qty", qty,
		"current_stock", newStock,
	)
	if newStock < product.ReorderLevel {
		logger.Warn(ctx, "stock below reorder level",
			"product_id", productID,
			"product_name", product.Name,
			"branch_id", branchID,
			"current_stock", newStock,
			"reorder_level", product.ReorderLevel,
		)
	}
	return mv, nil
}

// Return puts qty units of a product back into a branch. It has no upper bound.
func (s *Service) Return(ctx context.Context, productID, branchID id.ID, qty int64, note string, ref *entity.Reference) (entity.InventoryMovement, error) {
	ctx, span := s.startSpan(ctx, "stock.Return", productID, branchID, qty, ref)
	defer span.End()

	if err := validateInput(qty, ref); err != nil {
		return entity.InventoryMovement{}, err
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return entity.InventoryMovement{}, err
	}
	if _, err := s.branches.GetBranch(ctx, branchID); err != nil {
		return entity.InventoryMovement{}, err
	}

	var (
		mv       entity.InventoryMovement
		newStock int64
	)
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if _, err := s.repo.LockBalance(ctx, productID, branchID, true); err != nil {
			return fmt.Errorf("lock balance: %w", err)
		}
		mv = entity.NewInventoryMovement(productID, branchID, entity.MovementReturn, qty, note, ref, s.now().UTC())
		var err error
		newStock, err = s.repo.ApplyMovement(ctx, mv)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return entity.InventoryMovement{}, err
	}

	logger.Info(ctx, "stock returned",
		"movement_id", mv.ID,
		"product_id", productID,
		"branch_id", branchID,
		"qty", qty,
		"current_stock", newStock,
	)
	return mv, nil
}

// Transfer moves qty units of a product from one branch to another.
// Either both movements are written or none.
//
// Both rows are locked in ascending (branch, product) order whatever the
// direction, so two opposite transfers cannot deadlock.
func (s *Service) Transfer(ctx context.Context, productID, fromBranchID, toBranchID id.ID, qty int64, note string) (Transfer, error) {
	ctx, span := s.startSpan(ctx, "stock.Transfer", productID, fromBranchID, qty, nil)
	defer span.End()
	span.SetAttributes(attribute.String("stock.to_branch_id", toBranchID.String()))

	if err := validateInput(qty, nil); err != nil {
		return Transfer{}, err
	}
	if fromBranchID == toBranchID {
		return Transfer{}, apperror.NewValidation("source and target branch must differ")
	}
	if _, err := s.products.GetProduct(ctx, productID); err != nil {
		return Transfer{}, err
	}
	for _, branchID := range []id.ID{fromBranchID, toBranchID} {
		if _, err := s.branches.GetBranch(ctx, branchID); err != nil {
			return Transfer{}, err
		}
	}

	var result Transfer
	err := s.txm.RunInTransaction(ctx, func(ctx context.Context) error {
		locked := make(map[id.ID]entity.StockBalance, 2)
		for _, k := range lockOrder(productID, fromBranchID, toBranchID) {
			bal, err := s.repo.LockBalance(ctx, k.productID, k.branchID, k.branchID == toBranchID)
			if err != nil {
				return fmt.Errorf("lock balance: %w", err)
			}
			locked[k.branchID] = bal
		}

		available := locked[fromBranchID].CurrentStock
		if qty > available {
			return apperror.NewInsufficientStock(productID.String(), fromBranchID.String(), qty, available)
		}

		ref := entity.NewReference(entity.RefTransfer, id.New())
		at := s.now().UTC()
		result.Out = entity.NewInventoryMovement(productID, fromBranchID, entity.MovementTransferOut, qty, note, ref, at)
		result.In = entity.NewInventoryMovement(productID, toBranchID, entity.MovementTransferIn, qty, note, ref, at)

		if _, err := s.repo.ApplyMovement(ctx, result.Out); err != nil {
			return err
		}
		_, err := s.repo.ApplyMovement(ctx, result.In)
		return err
	})
	if err != nil {
		span.RecordError(err)
		if apperror.IsInsufficientStock(err) {
			logger.Warn(ctx, "stock transfer rejected", "product_id", productID, "from_branch_id", fromBranchID, "requested", qty)
		}
		return Transfer{}, err
	}

	logger.Info(ctx, "stock transferred",
		"transfer_id", result.Out.Reference.ID,
		"product_id", productID,
		"from_branch_id", fromBranchID,
		"to_branch_id", toBranchID,
		"qty", qty,
	)
	return result, nil
}

// CurrentStock returns the stock of a product in a branch, 0 when it never
// had any.
func (s *Service) CurrentStock(ctx context.Context, productID, branchID id.ID) (int64, error) {
	bal, err := s.repo.GetStock(ctx, productID, branchID)
	if err != nil {
		return 0, fmt.Errorf("get stock: %w", err)
	}
	return bal.CurrentStock, nil
}

// IsBelowReorderLevel reports whether stock is under the product's reorder level.
func (s *Service) IsBelowReorderLevel(ctx context.Context, productID, branchID id.ID) (bool, error) {
	product, err := s.products.GetProduct(ctx, productID)
	if err != nil {
		return false, err
	}
	current, err := s.CurrentStock(ctx, productID, branchID)
	if err != nil {
		return false, err
	}
	return current < product.ReorderLevel, nil
}

// LowStockItem is a product under its reorder level in a branch.
type LowStockItem struct {
	Product      catalogs.Product `json:"product"`
	CurrentStock int64            `json:"currentStock"`
}

// ProductsBelowReorderLevel lists the stocked products of a branch that are
// under their reorder level.
func (s *Service) ProductsBelowReorderLevel(ctx context.Context, branchID id.ID) ([]LowStockItem, error) {
	balances, err := s.repo.GetBalances(ctx, BalanceFilter{BranchID: &branchID})
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	var items []LowStockItem
	for _, b := range balances {
		product, err := s.products.GetProduct(ctx, b.ProductID)
		if err != nil {
			return nil, err
		}
		if b.CurrentStock < product.ReorderLevel {
			items = append(items, LowStockItem{Product: product, CurrentStock: b.CurrentStock})
		}
	}
	return items, nil
}

// Movements returns the movement history of a product, newest first.
func (s *Service) Movements(ctx context.Context, productID id.ID, filter MovementFilter) ([]entity.InventoryMovement, error) {
	movements, err := s.repo.GetMovements(ctx, productID, filter)
	if err != nil {
		return nil, fmt.Errorf("get movements: %w", err)
	}
	return movements, nil
}

// Drift compares the cached stock with the replayed movement log.
type Drift struct {
	ProductID id.ID `json:"productId"`
	BranchID  id.ID `json:"branchId"`
	Cached    int64 `json:"cached"`
	Replayed  int64 `json:"replayed"`
}

// OK reports whether cache and log agree.
func (d Drift) OK() bool { return d.Cached == d.Replayed }

// Reconcile replays the movement log of (product, branch) and compares it
// with the cached current stock.
func (s *Service) Reconcile(ctx context.Context, productID, branchID id.ID) (Drift, error) {
	d := Drift{ProductID: productID, BranchID: branchID}

	bal, err := s.repo.GetStock(ctx, productID, branchID)
	if err != nil {
		return d, fmt.Errorf("get stock: %w", err)
	}
	replayed, err := s.repo.ReplayStock(ctx, productID, branchID)
	if err != nil {
		return d, fmt.Errorf("replay stock: %w", err)
	}
	d.Cached, d.Replayed = bal.CurrentStock, replayed

	if !d.OK() {
		logger.Error(ctx, "stock cache drift detected",
			"product_id", productID,
			"branch_id", branchID,
			"cached", d.Cached,
			"replayed", d.Replayed,
		)
	}
	return d, nil
}

// ReconcileAll checks every balance row and returns the ones that drifted.
func (s *Service) ReconcileAll(ctx context.Context) ([]Drift, error) {
	balances, err := s.repo.GetBalances(ctx, BalanceFilter{})
	if err != nil {
		return nil, fmt.Errorf("get balances: %w", err)
	}

	var drifted []Drift
	for _, b := range balances {
		d, err := s.Reconcile(ctx, b.ProductID, b.BranchID)
		if err != nil {
			return nil, err
		}
		if !d.OK() {
			drifted = append(drifted, d)
		}
	}

	logger.Info(ctx, "stock reconciliation finished",
		"checked", len(balances),
		"drifted", len(drifted),
	)
	return drifted, nil
}

func (s *Service) startSpan(ctx context.Context, name string, productID, branchID id.ID, qty int64, ref *entity.Reference) (context.Context, trace.Span) {
	ctx = appctx.WithOperation(ctx, &appctx.OperationContext{Name: name, Reference: ref.String()})
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String("stock.product_id", productID.String()),
			attribute.String("stock.branch_id", branchID.String()),
			attribute.Int64("stock.qty", qty),
		))
}

func validateInput(qty int64, ref *entity.Reference) error {
	if qty <= 0 {
		return apperror.NewValidation("quantity must be positive").WithDetail("qty", qty)
	}
	if err := ref.Validate(); err != nil {
		return apperror.NewValidation(err.Error())
	}
	return nil
}

type lockKey struct {
	productID id.ID
	branchID  id.ID
}

// lockOrder returns the two balance keys of a transfer in global lock order:
// ascending branch id, then product id.
func lockOrder(productID, a, b id.ID) []lockKey {
	first, second := lockKey{productID, a}, lockKey{productID, b}
	if c := id.Compare(a, b); c > 0 || (c == 0 && id.Compare(first.productID, second.productID) > 0) {
		first, second = second, first
	}
	return []lockKey{first, second}
}
