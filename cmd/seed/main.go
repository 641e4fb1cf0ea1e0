// Package main creates the numbering series for a year and, on request,
// a small demo data set exercising all three ledgers.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	appctx "bookkeeping/internal/core/context"
	"bookkeeping/internal/core/entity"
	"bookkeeping/internal/core/id"
	"bookkeeping/internal/core/types"
	"bookkeeping/internal/domain/catalogs"
	"bookkeeping/internal/domain/ledger"
	"bookkeeping/internal/domain/registers/stock"
	"bookkeeping/internal/infrastructure/numerator"
	"bookkeeping/internal/infrastructure/storage/postgres"
	"bookkeeping/internal/infrastructure/storage/postgres/catalog_repo"
	"bookkeeping/internal/infrastructure/storage/postgres/ledger_repo"
	"bookkeeping/internal/infrastructure/storage/postgres/register_repo"
	"bookkeeping/internal/infrastructure/storage/postgres/sequence_repo"
	"bookkeeping/pkg/config"
	"bookkeeping/pkg/logger"
)

func main() {
	year := flag.Int("year", time.Now().Year(), "year to create the series for")
	demo := flag.Bool("demo", false, "also insert demo catalogs, stock and ledger entries")
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

	ctx := appctx.WithTrace(context.Background(), appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, log.WithComponent("seed"))

	pool, txm, err := postgres.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	log.Info("connected to database")

	sequences := sequence_repo.NewSequenceRepo(txm)
	created, err := sequences.EnsureSeries(ctx, cfg.Sequences.EntityTypes, *year)
	if err != nil {
		log.Fatalw("failed to create sequences", "error", err)
	}
	log.Infow("sequences ready", "year", *year, "created", created, "series", cfg.Sequences.EntityTypes)

	if *demo {
		if err := seedDemoData(ctx, cfg, txm, sequences); err != nil {
			log.Fatalw("failed to seed demo data", "error", err)
		}
	}

	log.Info("seeding completed successfully")
}

var (
	demoProduct  = catalogs.Product{ID: id.MustParse("0193a4c0-0000-7000-8000-000000000001"), Name: "Paracetamol 500mg", ReorderLevel: 20}
	demoMain     = catalogs.Branch{ID: id.MustParse("0193a4c0-0000-7000-8000-000000000101"), Name: "Main store"}
	demoSouth    = catalogs.Branch{ID: id.MustParse("0193a4c0-0000-7000-8000-000000000102"), Name: "South branch"}
	demoCustomer = catalogs.Customer{ID: id.MustParse("0193a4c0-0000-7000-8000-000000000201"), Name: "City Clinic"}
)

// seedDemoData runs one return, one transfer, and an issue voucher with its
// debit and part payment, the way a voucher workflow would.
func seedDemoData(ctx context.Context, cfg *config.Config, txm *postgres.TxManager, sequences *sequence_repo.SequenceRepo) error {
	products := catalog_repo.NewProductRepo(txm)
	branches := catalog_repo.NewBranchRepo(txm)
	customers := catalog_repo.NewCustomerRepo(txm)

	err := txm.RunInTransaction(ctx, func(ctx context.Context) error {
		if err := products.Upsert(ctx, demoProduct); err != nil {
			return err
		}
		for _, b := range []catalogs.Branch{demoMain, demoSouth} {
			if err := branches.Upsert(ctx, b); err != nil {
				return err
			}
		}
		return customers.Upsert(ctx, demoCustomer)
	})
	if err != nil {
		return fmt.Errorf("upsert catalogs: %w", err)
	}

	numbers, err := numerator.NewFromConfig(sequences, txm, cfg)
	if err != nil {
		return fmt.Errorf("configure numbering: %w", err)
	}
	stockSvc := stock.NewService(register_repo.NewStockRepo(txm), txm, products, branches)
	ledgerSvc := ledger.NewService(ledger_repo.NewLedgerRepo(txm), customers)

	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		returnNo, err := numbers.Next(ctx, numerator.ReturnVouchers)
		if err != nil {
			return err
		}
		if _, err := stockSvc.Return(ctx, demoProduct.ID, demoMain.ID, 100, "opening stock "+returnNo,
			entity.NewReference(entity.RefReturn, id.New())); err != nil {
			return err
		}

		if _, err := stockSvc.Transfer(ctx, demoProduct.ID, demoMain.ID, demoSouth.ID, 30, "restock south"); err != nil {
			return err
		}

		issueNo, err := numbers.Next(ctx, numerator.IssueVouchers)
		if err != nil {
			return err
		}
		voucher := entity.NewReference(entity.RefIssueVoucher, id.New())
		if _, err := stockSvc.Issue(ctx, demoProduct.ID, demoSouth.ID, 12, "voucher "+issueNo, voucher); err != nil {
			return err
		}
		if _, err := ledgerSvc.RecordDebit(ctx, demoCustomer.ID, types.MustMoney("180.00"), "voucher "+issueNo, voucher); err != nil {
			return err
		}

		paymentNo, err := numbers.Next(ctx, numerator.Payments)
		if err != nil {
			return err
		}
		_, err = ledgerSvc.RecordCredit(ctx, demoCustomer.ID, types.MustMoney("100.00"), "payment "+paymentNo,
			entity.NewReference(entity.RefPayment, id.New()))
		return err
	})
}
