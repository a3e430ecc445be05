// Command supplysync runs one supply reconciliation pass and exits. The
// first invocation ever only records the bootstrap marker; schedule it like
// the other flows and it starts importing from the second run.
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
	"github.com/marketsync/backend/internal/application/supplysync"
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
		fmt.Fprintf(os.Stderr, "supplysync: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if err := cfg.ValidateSupplyFlow(); err != nil {
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

	log.Info("starting supply reconciliation",
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
	if err := runLock.Acquire(ctx, tracking.FlowSupplies, cfg.Sync.RunLockTTL); err != nil {
		return fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := runLock.Release(context.Background(), tracking.FlowSupplies); err != nil {
			log.Warn("failed to release run lock", zap.Error(err))
		}
	}()

	httpClient := transport.NewClient(cfg.Sync.HTTPTimeout)
	supplies := marketplace.NewSuppliesClient(cfg.Marketplace.SuppliesBaseURL, cfg.Marketplace.SuppliesToken, httpClient, log)
	ledgerClient := ledgerapi.NewClient(&cfg.Ledger, httpClient, log)

	productCache := cache.NewProductCache(cfg.Cache.Enabled, cache.RedisConfig{
		Host:     cfg.Cache.Host,
		Port:     cfg.Cache.Port,
		Password: cfg.Cache.Password,
		DB:       cfg.Cache.DB,
	}, log)
	products := catalog.NewLookup(ledgerClient, productCache, cfg.Sync.CatalogThrottle, cfg.Cache.TTL)

	records := persistence.NewGormSupplyRecordRepository(db.DB)
	bootstraps := persistence.NewGormBootstrapRepository(db.DB)
	service := supplysync.NewService(supplies, ledgerClient, products, records, bootstraps, &cfg.Supplies, cfg.Sync.DryRun, log)

	if _, err := service.Run(ctx); err != nil {
		log.Error("supply reconciliation pass failed", zap.Error(err))
		return err
	}
	return nil
}
