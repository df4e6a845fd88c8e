// Package main runs the market data service: embedded migrations, the
// HTTP read API, the insert change feed, and optionally the scheduled
// ingestion job in-process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"market-data-service/internal/api"
	"market-data-service/internal/config"
	"market-data-service/internal/feed"
	"market-data-service/internal/ingestion"
	"market-data-service/internal/ingestion/bls"
	"market-data-service/internal/ingestion/metals"
	"market-data-service/internal/logger"
	"market-data-service/internal/observability"
	"market-data-service/internal/storage"
	"market-data-service/internal/storage/memory"
	"market-data-service/internal/storage/migrations"
	pgstore "market-data-service/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "", "YAML config file path")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config and DATABASE_URL)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	ingest := flag.Bool("ingest", false, "Run the scheduled ingestion job in-process")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *postgresDSN != "" {
		cfg.Database.DSN = *postgresDSN
	}
	if *ingest {
		cfg.Ingestion.Enabled = true
	}

	log := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	mainLog := log.WithComponent("server")

	if !*useMemory && cfg.Database.DSN == "" {
		mainLog.Fatal("database DSN required: set DATABASE_URL, --postgres-dsn, or use --use-memory")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	metrics := observability.NewMetrics("market_data")
	hub := feed.NewHub(cfg.Feed.SubscriberBuffer, metrics)

	g, ctx := errgroup.WithContext(ctx)

	var store storage.ObservationStore
	var fd feed.Feed = hub

	if *useMemory {
		memStore := memory.NewObservationStore()
		memStore.SetPublisher(hub)
		store = memStore
		mainLog.Info("using in-memory storage")
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.Database.DSN)
		if err != nil {
			mainLog.WithError(err).Fatal("connect to postgres")
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			mainLog.WithError(err).Fatal("apply migrations")
		}

		store = pgstore.NewObservationStore(pool)
		listener := feed.NewListener(pool, hub, feed.DefaultListenerConfig(), log.WithComponent("feed"), metrics)
		fd = listener
		g.Go(func() error { return listener.Run(ctx) })
	}

	server := api.NewServer(store, fd, metrics, log.WithComponent("api"))
	httpSrv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      server.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		mainLog.WithField("addr", cfg.Server.Addr).Info("http server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.Ingestion.Enabled {
		blsClient := bls.NewClient(bls.Config{
			BaseURL: cfg.Ingestion.BLS.BaseURL,
			APIKey:  cfg.Ingestion.BLS.APIKey,
		})
		metalsClient := metals.NewClient(metals.Config{
			BaseURL: cfg.Ingestion.Metals.BaseURL,
			APIKey:  cfg.Ingestion.Metals.APIKey,
		})
		runner := ingestion.NewRunner(cfg.RunnerConfig(), store, blsClient, metalsClient, log.WithComponent("ingestion"), metrics)
		g.Go(func() error {
			return runner.RunEvery(ctx)
		})
	}

	// Handle shutdown signals; a second signal forces immediate exit.
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		mainLog.WithField("signal", sig.String()).Info("initiating graceful shutdown")
		cancel()

		select {
		case <-sigCh:
			mainLog.Warn("second signal, forcing immediate shutdown")
			os.Exit(1)
		case <-time.After(30 * time.Second):
			mainLog.Warn("graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = g.Wait()
	close(done)
	if err != nil && !errors.Is(err, context.Canceled) {
		mainLog.WithError(err).Fatal("server error")
	}

	mainLog.Info("shutdown complete")
}
