// Package main checks the cached stock balances against the movement log and
// reports low stock and outstanding customer balances.
//
// Exit status is 2 when any balance drifted from its replayed log.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	flag "github.com/spf13/pflag"

	appctx "bookkeeping/internal/core/context"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/domain/ledger"
	"bookkeeping/internal/domain/registers/stock"
	"bookkeeping/internal/infrastructure/storage/postgres"
	"bookkeeping/internal/infrastructure/storage/postgres/catalog_repo"
	"bookkeeping/internal/infrastructure/storage/postgres/ledger_repo"
	"bookkeeping/internal/infrastructure/storage/postgres/register_repo"
	"bookkeeping/pkg/config"
	"bookkeeping/pkg/logger"
)

func main() {
	branch := flag.String("branch", "", "also list products below reorder level in this branch")
	withLedger := flag.Bool("ledger", true, "report customers with outstanding balances")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Development: cfg.App.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, log.WithComponent("reconcile"))

	pool, txm, err := postgres.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	defer postgres.LogPoolStats(ctx, pool)

	products := catalog_repo.NewProductRepo(txm)
	branches := catalog_repo.NewBranchRepo(txm)
	stockSvc := stock.NewService(register_repo.NewStockRepo(txm), txm, products, branches)
	ledgerSvc := ledger.NewService(ledger_repo.NewLedgerRepo(txm), catalog_repo.NewCustomerRepo(txm))

	// one snapshot, so concurrent movements cannot show up as drift
	var drifted []stock.Drift
	err = txm.Snapshot(ctx, func(ctx context.Context) error {
		var err error
		if drifted, err = stockSvc.ReconcileAll(ctx); err != nil {
			return err
		}

		if *branch != "" {
			if err := reportLowStock(ctx, stockSvc, *branch); err != nil {
				return err
			}
		}
		if *withLedger {
			return reportOutstanding(ctx, ledgerSvc)
		}
		return nil
	})
	if err != nil {
		log.Fatalw("reconciliation failed", "error", err)
	}

	if len(drifted) > 0 {
		for _, d := range drifted {
			fmt.Printf("DRIFT product=%s branch=%s cached=%d replayed=%d\n", d.ProductID, d.BranchID, d.Cached, d.Replayed)
		}
		stop()
		os.Exit(2)
	}
}

func reportLowStock(ctx context.Context, svc *stock.Service, branch string) error {
	branchID, err := id.Parse(branch)
	if err != nil {
		return fmt.Errorf("parse --branch: %w", err)
	}

	items, err := svc.ProductsBelowReorderLevel(ctx, branchID)
	if err != nil {
		return err
	}
	for _, it := range items {
		fmt.Printf("LOW %s (%s) stock=%d reorder_level=%d\n",
			it.Product.Name, it.Product.ID, it.CurrentStock, it.Product.ReorderLevel)
	}
	return nil
}

func reportOutstanding(ctx context.Context, svc *ledger.Service) error {
	outstanding, err := svc.CustomersWithOutstandingBalance(ctx)
	if err != nil {
		return err
	}
	for _, o := range outstanding {
		fmt.Printf("BALANCE %s (%s) %s\n", o.Customer.Name, o.Customer.ID, o.Balance.StringFixed(2))
	}

	total, err := svc.TotalOutstanding(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("TOTAL %s\n", total.StringFixed(2))
	return nil
}
