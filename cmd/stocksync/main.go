// Command stocksync publishes current ledger stock levels to the
// marketplace warehouse and exits.
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
	"github.com/marketsync/backend/internal/application/stocksync"
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
		fmt.Fprintf(os.Stderr, "stocksync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ValidateStockFlow(); err != nil {
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

	log.Info("starting stock publication",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.Int64("warehouse_id", cfg.Marketplace.WarehouseID),
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
	if err := runLock.Acquire(ctx, tracking.FlowStocks, cfg.Sync.RunLockTTL); err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := runLock.Release(context.Background(), tracking.FlowStocks); err != nil {
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

	service := stocksync.NewService(ledgerClient, products, market, cfg.Ledger.StoreID, cfg.Marketplace.WarehouseID, cfg.Sync.DryRun, log)

	if _, err := service.Run(ctx); err != nil {
		log.Error("stock publication pass failed", zap.Error(err))
		return err
	}
	return nil
}
