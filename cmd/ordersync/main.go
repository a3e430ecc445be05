// Command ordersync runs one customer-order reconciliation pass and exits.
// It is meant to be invoked by a scheduler (cron, systemd timer); the
// advisory run lock turns accidental overlap into a fast failure.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/application/ordersync"
	"github.com/marketsync/backend/internal/domain/tracking"
	"github.com/marketsync/backend/internal/infrastructure/cache"
	"github.com/marketsync/backend/internal/infrastructure/config"
	"github.com/marketsync/backend/internal/infrastructure/ledgerapi"
	"github.com/marketsync/backend/internal/infrastructure/logger"
	"github.com/marketsync/backend/internal/infrastructure/marketplace"
	"github.com/marketsync/backend/internal/infrastructure/persistence"
	"github.com/marketsync/backend/internal/infrastructure/transport"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "ordersync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ValidateOrderFlow(); err != nil {
		return fmt.Errorf("configuration: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync(log)
	}()
	log = log.With(zap.String("run_id", uuid.NewString()))

	log.Info("starting order reconciliation",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Bool("dry_run", cfg.Sync.DryRun))

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level))
	db, err := persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	if err != nil {
		return fmt.Errorf("connect run-state database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("error closing database", zap.Error(err))
		}
	}()
	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate run-state database: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runLock := persistence.NewGormRunLock(db.DB)
	if err := runLock.Acquire(ctx, tracking.FlowOrders, cfg.Sync.RunLockTTL); err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := runLock.Release(context.Background(), tracking.FlowOrders); err != nil {
			log.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	httpClient := transport.NewClient(cfg.Sync.HTTPTimeout)
	market := marketplace.NewClient(cfg.Marketplace.BaseURL, cfg.Marketplace.Token, httpClient, log)
	ledgerClient := ledgerapi.NewClient(&cfg.Ledger, httpClient, log)

	productCache := cache.NewProductCache(cfg.Cache.Enabled, cache.RedisConfig{
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	}, log)
	products := catalog.NewLookup(ledgerClient, productCache, cfg.Sync.CatalogThrottle, cfg.Cache.TTL)

	records := persistence.NewGormOrderRecordRepository(db.DB)
	service := ordersync.NewService(market, ledgerClient, products, records, &cfg.Orders, cfg.Sync.DryRun, log)

	if _, err := service.Run(ctx); err != nil {
		log.Error("order reconciliation pass failed", zap.Error(err))
		return err
	}
	return nil
}
