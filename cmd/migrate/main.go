// Package main applies the bookkeeping schema migrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	appctx "bookkeeping/internal/core/context"
	"bookkeeping/internal/infrastructure/storage/postgres"
	"bookkeeping/pkg/config"
	"bookkeeping/pkg/logger"
)

func main() {
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
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = appctx.WithTrace(ctx, appctx.NewTraceContext())
	ctx = logger.WithLogger(ctx, log.WithComponent("migrate"))

	pool, txm, err := postgres.Open(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	applied, err := postgres.Migrate(ctx, txm, postgres.Migrations)
	if err != nil {
		log.Fatalw("migration failed", "applied", applied, "error", err)
	}

	log.Infow("schema is up to date", "applied", applied, "latest", postgres.Migrations[len(postgres.Migrations)-1].Version)
}
