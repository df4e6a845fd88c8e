// Package main backfills historical BLS data into market_data for a year
// range. Metal spot providers only quote current prices, so metals are
// not backfillable and are ignored here.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"market-data-service/internal/config"
	"market-data-service/internal/domain"
	"market-data-service/internal/ingestion"
	"market-data-service/internal/ingestion/bls"
	"market-data-service/internal/logger"
	"market-data-service/internal/storage/migrations"
	pgstore "market-data-service/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config and DATABASE_URL)")
	startYear := flag.Int("start-year", 2020, "First year to backfill")
	endYear := flag.Int("end-year", time.Now().UTC().Year(), "Last year to backfill")
	series := flag.String("series", "", "Comma-separated data types to backfill (default: configured BLS series)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *postgresDSN != "" {
		cfg.Database.DSN = *postgresDSN
	}

	log := logger.New(logger.Config{Level: cfg.Logging.Level, File: cfg.Logging.File})
	mainLog := log.WithComponent("backfill")

	if cfg.Database.DSN == "" {
		mainLog.Fatal("database DSN required: set DATABASE_URL or --postgres-dsn")
	}

	runnerCfg := cfg.RunnerConfig()
	runnerCfg.Metals = nil
	if *series != "" {
		selected, err := resolveSeries(*series)
		if err != nil {
			mainLog.WithError(err).Fatal("invalid --series")
		}
		runnerCfg.BLSSeries = selected
	}
	if len(runnerCfg.BLSSeries) == 0 {
		mainLog.Fatal("no BLS series selected")
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
	runner := ingestion.NewRunner(runnerCfg, store, blsClient, nil, mainLog, nil)

	summary, err := runner.Backfill(ctx, *startYear, *endYear)
	if err != nil {
		mainLog.WithError(err).Fatal("backfill failed")
	}

	mainLog.WithFields(logger.Fields{
		"start_year": *startYear,
		"end_year":   *endYear,
		"inserted":   summary.Inserted,
		"updated":    summary.Updated,
		"unchanged":  summary.Unchanged,
		"skipped":    summary.Skipped,
		"errors":     summary.Errors,
	}).Info("backfill complete")

	if summary.Errors > 0 {
		os.Exit(1)
	}
}

// resolveSeries maps a comma-separated list of data type names to their
// BLS series IDs.
func resolveSeries(list string) (map[domain.DataType]string, error) {
	selected := make(map[domain.DataType]string)
	for _, part := range strings.Split(list, ",") {
		name := domain.DataType(strings.TrimSpace(part))
		if name == "" {
			continue
		}
		seriesID, ok := ingestion.BLSSeriesIDs[name]
		if !ok {
			return nil, fmt.Errorf("no BLS series for data type %q", name)
		}
		selected[name] = seriesID
	}
	return selected, nil
}
