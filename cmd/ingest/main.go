// Package main runs the ingestion job: fetch the configured BLS series
// and metal spot prices and upsert them into market_data. One-shot by
// default, matching the external twice-daily scheduler; --loop keeps it
// running on the configured interval instead.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-data-service/internal/config"
	"market-data-service/internal/ingestion"
	"market-data-service/internal/ingestion/bls"
	"market-data-service/internal/ingestion/metals"
	"market-data-service/internal/logger"
	"market-data-service/internal/storage/migrations"
	pgstore "market-data-service/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config and DATABASE_URL)")
	loop := flag.Bool("loop", false, "Keep running on the configured interval instead of one shot")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN != "" {
		cfg.Database.DSN = *postgresDSN
	}

	log := logger.New(logger.Config{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})
	mainLog := log.WithComponent("ingest")

	if cfg.Database.DSN == "" {
		mainLog.Fatal("database DSN required: set DATABASE_URL or --postgres-dsn")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := pgstore.NewPool(ctx, cfg.Database.DSN)
	if err != nil {
		mainLog.WithError(err).Fatal("connect to postgres")
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		mainLog.WithError(err).Fatal("apply migrations")
	}

	store := pgstore.NewObservationStore(pool)
	blsClient := bls.NewClient(bls.Config{
		BaseURL: cfg.Ingestion.BLS.BaseURL,
		APIKey:  cfg.Ingestion.BLS.APIKey,
	})
	metalsClient := metals.NewClient(metals.Config{
		BaseURL: cfg.Ingestion.Metals.BaseURL,
		APIKey:  cfg.Ingestion.Metals.APIKey,
	})

	runner := ingestion.NewRunner(cfg.RunnerConfig(), store, blsClient, metalsClient, mainLog, nil)

	if *loop {
		if err := runner.RunEvery(ctx); err != nil {
			mainLog.WithError(err).Fatal("ingestion loop failed")
		}
		mainLog.Info("ingestion loop stopped")
		return
	}

	summary := runner.RunOnce(ctx)
	mainLog.WithFields(logger.Fields{
		"inserted":  summary.Inserted,
		"updated":   summary.Updated,
		"unchanged": summary.Unchanged,
		"skipped":   summary.Skipped,
		"errors":    summary.Errors,
	}).Info("market data update complete")

	if summary.Errors > 0 {
		os.Exit(1)
	}
}
