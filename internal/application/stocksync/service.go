// Package stocksync implements the stock publication pass: it reads the
// ledger's stock-by-store report, resolves each row to a marketplace SKU,
// computes the publishable availability, and pushes the result to the
// marketplace warehouse in bounded batches.
package stocksync

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/ledger"
)

// batchSize is the marketplace's maximum stock entries per publish call
const batchSize = 1000

// previewLimit bounds the dry-run preview log
const previewLimit = 5

// Summary is the end-of-pass outcome breakdown of the stock flow.
type Summary struct {
	// Total is the number of report rows read from the ledger
	Total int
	// Sent counts stock levels published (or counted, in dry run)
	Sent int
	// Batches counts publish calls
	Batches int
	// SkippedNoSKU counts rows that resolved to no marketplace SKU
	SkippedNoSKU int
	// Failed counts rows whose SKU resolution errored; the pass continued
	Failed int
}

// Service runs the stock publication pass.
type Service struct {
	backend     ledger.Backend
	products    *catalog.Lookup
	publisher   integration.StockPublisher
	storeID     string
	warehouseID int64
	dryRun      bool
	logger      *zap.Logger
}

// NewService creates the stock publication service. storeID selects the
// ledger warehouse the report is read from; warehouseID is the marketplace
// warehouse the levels are published to.
func NewService(
	backend ledger.Backend,
	products *catalog.Lookup,
	publisher integration.StockPublisher,
	storeID string,
	warehouseID int64,
	dryRun bool,
	logger *zap.Logger,
) *Service {
	return &Service{
		backend:     backend,
		products:    products,
		publisher:   publisher,
		storeID:     storeID,
		warehouseID: warehouseID,
		dryRun:      dryRun,
		logger:      logger,
	}
}

// Run executes one publication pass. Row-level resolution failures are
// logged and counted; a publish failure aborts the pass since the remaining
// batches would leave the marketplace with a torn view anyway.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{}

	rows, err := s.backend.StockByStore(ctx, s.storeID)
	if err != nil {
		return nil, fmt.Errorf("read stock report: %w", err)
	}
	summary.Total = len(rows)

	updates := make([]integration.StockUpdate, 0, len(rows))
	for _, row := range rows {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		sku, err := s.resolveSKU(ctx, row)
		if err != nil {
			summary.Failed++
			s.logger.Error("stock row resolution failed",
				zap.String("assortment_href", row.AssortmentHref),
				zap.Error(err))
			continue
		}
		if sku == "" {
			summary.SkippedNoSKU++
			s.logger.Warn("stock row has no marketplace sku",
				zap.String("assortment_href", row.AssortmentHref))
			continue
		}

		updates = append(updates, integration.StockUpdate{
			SKU:    sku,
			Amount: row.Available().IntPart(),
		})
	}

	if s.dryRun {
		preview := updates
		if len(preview) > previewLimit {
			preview = preview[:previewLimit]
		}
		s.logger.Info("dry run: skipping stock publication",
			zap.Int("updates", len(updates)),
			zap.Any("preview", preview))
		summary.Sent = len(updates)
		summary.Batches = (len(updates) + batchSize - 1) / batchSize
	} else {
		for start := 0; start < len(updates); start += batchSize {
			end := start + batchSize
			if end > len(updates) {
				end = len(updates)
			}
			chunk := updates[start:end]
			if err := s.publisher.PublishStocks(ctx, s.warehouseID, chunk); err != nil {
				return summary, fmt.Errorf("publish stock batch %d: %w", summary.Batches+1, err)
			}
			summary.Sent += len(chunk)
			summary.Batches++
		}
	}

	s.logger.Info("stock publication pass completed",
		zap.Int("total", summary.Total),
		zap.Int("sent", summary.Sent),
		zap.Int("batches", summary.Batches),
		zap.Int("skipped_no_sku", summary.SkippedNoSKU),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", s.dryRun),
		zap.Duration("duration", time.Since(startTime)))

	return summary, nil
}

// resolveSKU returns the marketplace SKU for one report row: the inline
// article when the report carries it, the referenced product's code
// otherwise. Empty when neither yields one.
func (s *Service) resolveSKU(ctx context.Context, row ledger.StockRow) (string, error) {
	if row.Article != "" {
		return row.Article, nil
	}
	if row.AssortmentHref == "" {
		return "", nil
	}
	ref, err := s.products.ByHref(ctx, row.AssortmentHref)
	if err != nil {
		return "", err
	}
	if ref == nil {
		return "", nil
	}
	return ref.Article, nil
}
