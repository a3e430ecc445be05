// Package supplysync implements the supply reconciliation pass: it tracks
// marketplace replenishment supplies and mirrors each one into the ledger as
// an order, then a warehouse transfer once the supply is accepted for
// shipping, then a shipment once the platform warehouse received it. The
// very first pass only records the bootstrap marker; supplies registered
// before it are never imported.
package supplysync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/ledger"
	"github.com/marketsync/backend/internal/domain/tracking"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

// errNoGoods aborts supply-order creation when no line resolved to a catalog
// product; the supply stays untracked and is retried on later passes.
var errNoGoods = fmt.Errorf("%w: no supply line resolved to a catalog product", ledger.ErrSkipDocument)

// Summary is the end-of-pass outcome breakdown of the supply flow.
type Summary struct {
	// Bootstrapped is true when this pass only wrote the first-run marker
	Bootstrapped bool
	// Total is the number of supplies reported within the lookback window
	Total int
	// SkippedOld counts supplies registered before the bootstrap marker
	SkippedOld int
	// SkippedNoGoods counts new supplies with no resolvable line item
	SkippedNoGoods int
	// CreatedOrders counts ledger orders created this pass
	CreatedOrders int
	// CreatedTransfers counts warehouse transfers created this pass
	CreatedTransfers int
	// CreatedShipments counts shipments created this pass
	CreatedShipments int
	// PlannedUpdates counts planned-delivery-date refreshes
	PlannedUpdates int
	// LeftUnapplied counts documents created but not applied for lack of stock
	LeftUnapplied int
	// Failed counts supplies whose reconciliation errored; the pass continued
	Failed int
}

// Service runs the supply reconciliation pass.
type Service struct {
	source     integration.SupplySource
	backend    ledger.Backend
	resolver   *ledger.DocumentResolver
	products   *catalog.Lookup
	records    tracking.SupplyRecordRepository
	bootstraps tracking.BootstrapRepository
	cfg        *config.SuppliesConfig
	dryRun     bool
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates the supply reconciliation service
func NewService(
	source integration.SupplySource,
	backend ledger.Backend,
	products *catalog.Lookup,
	records tracking.SupplyRecordRepository,
	bootstraps tracking.BootstrapRepository,
	cfg *config.SuppliesConfig,
	dryRun bool,
	logger *zap.Logger,
) *Service {
	return &Service{
		source:     source,
		backend:    backend,
		resolver:   ledger.NewDocumentResolver(backend),
		products:   products,
		records:    records,
		bootstraps: bootstraps,
		cfg:        cfg,
		dryRun:     dryRun,
		logger:     logger,
		now:        time.Now,
	}
}

// Run executes one reconciliation pass. The first run ever writes the
// bootstrap marker and imports nothing, so a fresh installation does not
// drag the marketplace's supply history into the ledger.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{}

	marker, err := s.bootstraps.Get(ctx, tracking.FlowSupplies)
	if err != nil {
		return nil, fmt.Errorf("load bootstrap marker: %w", err)
	}
	if marker == nil {
		summary.Bootstrapped = true
		if s.dryRun {
			s.logger.Info("dry run: skipping bootstrap marker")
			return summary, nil
		}
		marker = &tracking.Bootstrap{Flow: tracking.FlowSupplies, BootstrappedAt: s.now()}
		if err := s.bootstraps.Set(ctx, marker); err != nil {
			return nil, fmt.Errorf("write bootstrap marker: %w", err)
		}
		s.logger.Info("supply flow bootstrapped, nothing imported",
			zap.Time("bootstrapped_at", marker.BootstrappedAt))
		return summary, nil
	}

	from := s.now().AddDate(0, 0, -s.cfg.LookbackDays)
	supplies, err := s.source.ListSupplies(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("list supplies: %w", err)
	}
	summary.Total = len(supplies)

	recordMap, err := s.records.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load supply records: %w", err)
	}

	touched := make([]*tracking.SupplyRecord, 0, len(supplies))
	for _, supply := range supplies {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		rec := recordMap[supply.ExternalID]
		if rec == nil {
			if supply.CreatedAt.Before(marker.BootstrappedAt) {
				summary.SkippedOld++
				continue
			}
			rec, err = s.importSupply(ctx, supply, summary)
			if err != nil {
				summary.Failed++
				s.logger.Error("supply import failed",
					zap.String("supply_id", supply.ExternalID),
					zap.Error(err))
				continue
			}
			if rec == nil {
				continue
			}
			recordMap[supply.ExternalID] = rec
		} else {
			rec.UpdatedAt = s.now()
			if err := s.reconcileTracked(ctx, supply, rec, summary); err != nil {
				summary.Failed++
				s.logger.Error("supply reconciliation failed",
					zap.String("supply_id", supply.ExternalID),
					zap.Int("status_code", int(supply.StatusCode)),
					zap.Error(err))
			}
		}
		touched = append(touched, rec)
	}

	if s.dryRun {
		s.logger.Info("dry run: run state not persisted",
			zap.Int("records", len(touched)))
	} else if err := s.records.SaveAll(ctx, touched); err != nil {
		return summary, fmt.Errorf("persist supply records: %w", err)
	}

	s.logger.Info("supply reconciliation pass completed",
		zap.Int("total", summary.Total),
		zap.Int("created_orders", summary.CreatedOrders),
		zap.Int("created_transfers", summary.CreatedTransfers),
		zap.Int("created_shipments", summary.CreatedShipments),
		zap.Int("planned_updates", summary.PlannedUpdates),
		zap.Int("skipped_old", summary.SkippedOld),
		zap.Int("skipped_no_goods", summary.SkippedNoGoods),
		zap.Int("left_unapplied", summary.LeftUnapplied),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", s.dryRun),
		zap.Duration("duration", time.Since(startTime)))

	return summary, nil
}

// importSupply ensures the ledger order for a newly observed supply and
// starts tracking it. A supply whose goods resolve to no catalog product is
// counted and left untracked; a later pass retries it from scratch.
func (s *Service) importSupply(ctx context.Context, supply integration.Supply, summary *Summary) (*tracking.SupplyRecord, error) {
	doc, created, err := s.ensureDocument(ctx, ledger.KindOrder, ledger.SupplyOrderKey(supply.Number), func(ctx context.Context) (*ledger.Document, error) {
		goods, err := s.source.GetGoods(ctx, supply.ExternalID)
		if err != nil {
			return nil, fmt.Errorf("fetch supply goods: %w", err)
		}
		positions, err := s.resolvePositions(ctx, goods)
		if err != nil {
			return nil, err
		}
		if len(positions) == 0 {
			return nil, errNoGoods
		}
		return &ledger.Document{
			StateID:        s.cfg.OrderStateID,
			Positions:      positions,
			PlannedMoment:  normalizePlannedMoment(supply.PlannedAt, s.cfg.TimezoneOffset),
			SalesChannelID: s.cfg.SalesChannelID,
			Comment:        supply.DestinationWarehouse,
		}, nil
	})
	if err != nil {
		if errors.Is(err, errNoGoods) {
			summary.SkippedNoGoods++
			s.logger.Warn("supply has no resolvable goods",
				zap.String("supply_id", supply.ExternalID),
				zap.String("number", supply.Number))
			return nil, nil
		}
		return nil, fmt.Errorf("ensure supply order: %w", err)
	}
	if created {
		summary.CreatedOrders++
	}

	rec := &tracking.SupplyRecord{
		ExternalID:    supply.ExternalID,
		Number:        supply.Number,
		LedgerOrderID: doc.ID,
		CreatedAt:     s.now(),
		UpdatedAt:     s.now(),
	}
	return rec, s.reconcileTracked(ctx, supply, rec, summary)
}

// reconcileTracked advances an already-imported supply: refreshes the
// planned delivery date while the shipment does not exist, creates the
// transfer when the supply is accepted for shipping, and creates the
// shipment when the platform warehouse received it.
func (s *Service) reconcileTracked(ctx context.Context, supply integration.Supply, rec *tracking.SupplyRecord, summary *Summary) error {
	orderDoc, err := s.resolver.Find(ctx, ledger.KindOrder, ledger.SupplyOrderKey(rec.Number))
	if err != nil {
		return fmt.Errorf("find supply order: %w", err)
	}
	if orderDoc == nil {
		if s.dryRun {
			return nil
		}
		return fmt.Errorf("%w: supply order %q missing", ledger.ErrRequestFailed, ledger.SupplyOrderKey(rec.Number))
	}
	if rec.LedgerOrderID == "" {
		rec.LedgerOrderID = orderDoc.ID
	}

	if !rec.ShipmentCreated {
		if moment := normalizePlannedMoment(supply.PlannedAt, s.cfg.TimezoneOffset); moment != "" && moment != orderDoc.PlannedMoment {
			if err := s.updatePlannedMoment(ctx, orderDoc, moment); err != nil {
				return fmt.Errorf("refresh planned date: %w", err)
			}
			summary.PlannedUpdates++
		}
	}

	if supply.StatusCode.TransferDue() && !rec.TransferCreated {
		if err := s.createTransfer(ctx, orderDoc, rec, summary); err != nil {
			return err
		}
	}

	if supply.StatusCode.ShipmentDue() && !rec.ShipmentCreated {
		if err := s.createShipment(ctx, orderDoc, rec, summary); err != nil {
			return err
		}
	}

	return nil
}

// createTransfer ensures the warehouse transfer mirroring the physical move
// of the supply from the seller warehouse to the marketplace one.
func (s *Service) createTransfer(ctx context.Context, orderDoc *ledger.Document, rec *tracking.SupplyRecord, summary *Summary) error {
	doc, created, err := s.ensureDocument(ctx, ledger.KindTransfer, ledger.SupplyTransferKey(rec.Number), func(ctx context.Context) (*ledger.Document, error) {
		positions, err := s.orderPositions(ctx, orderDoc)
		if err != nil {
			return nil, err
		}
		return &ledger.Document{
			StateID:       s.cfg.TransferStateID,
			Positions:     positions,
			SourceStoreID: s.cfg.SourceStoreID,
			TargetStoreID: s.cfg.TargetStoreID,
		}, nil
	})
	if err != nil {
		return fmt.Errorf("ensure transfer: %w", err)
	}
	rec.TransferCreated = true
	if created {
		summary.CreatedTransfers++
		s.tryApply(ctx, doc, summary)
	}
	return nil
}

// createShipment ensures the shipment that books the supply as fulfilled
// revenue, linked to the supply order and issued from the marketplace
// warehouse.
func (s *Service) createShipment(ctx context.Context, orderDoc *ledger.Document, rec *tracking.SupplyRecord, summary *Summary) error {
	doc, created, err := s.ensureDocument(ctx, ledger.KindShipment, ledger.SupplyShipmentKey(rec.Number), func(ctx context.Context) (*ledger.Document, error) {
		positions, err := s.orderPositions(ctx, orderDoc)
		if err != nil {
			return nil, err
		}
		return &ledger.Document{
			StateID:       s.cfg.ShipmentStateID,
			Positions:     positions,
			LinkedOrderID: orderDoc.ID,
			StoreID:       s.cfg.TargetStoreID,
		}, nil
	})
	if err != nil {
		return fmt.Errorf("ensure shipment: %w", err)
	}
	rec.ShipmentCreated = true
	if created {
		summary.CreatedShipments++
		s.tryApply(ctx, doc, summary)
	}
	return nil
}

// tryApply attempts to apply a freshly created document. Any failure leaves
// the document unapplied for the operator; it never fails the supply.
func (s *Service) tryApply(ctx context.Context, doc *ledger.Document, summary *Summary) {
	if s.dryRun {
		s.logger.Info("dry run: skipping apply",
			zap.String("kind", doc.Kind.String()),
			zap.String("document_id", doc.ID))
		return
	}
	applied, err := s.resolver.Apply(ctx, doc)
	if err != nil {
		summary.LeftUnapplied++
		s.logger.Warn("document left unapplied",
			zap.String("kind", doc.Kind.String()),
			zap.String("document_id", doc.ID),
			zap.Error(err))
		return
	}
	if !applied {
		summary.LeftUnapplied++
		s.logger.Warn("document left unapplied: insufficient stock",
			zap.String("kind", doc.Kind.String()),
			zap.String("document_id", doc.ID))
	}
}

// resolvePositions maps supply goods to document positions; lines without a
// catalog match are dropped with a warning.
func (s *Service) resolvePositions(ctx context.Context, goods []integration.LineItem) ([]ledger.Position, error) {
	positions := make([]ledger.Position, 0, len(goods))
	for _, item := range goods {
		ref, err := s.products.ByArticle(ctx, item.Article)
		if err != nil {
			return nil, fmt.Errorf("resolve article %q: %w", item.Article, err)
		}
		if ref == nil {
			s.logger.Warn("supply article matches no catalog product",
				zap.String("article", item.Article))
			continue
		}
		positions = append(positions, ledger.Position{
			Product:  *ref,
			Quantity: item.Quantity,
			Price:    ref.SalePrice,
		})
	}
	return positions, nil
}

// orderPositions returns the supply order's lines, fetching them when the
// document came from a lookup rather than a fresh build.
func (s *Service) orderPositions(ctx context.Context, orderDoc *ledger.Document) ([]ledger.Position, error) {
	if len(orderDoc.Positions) > 0 {
		return orderDoc.Positions, nil
	}
	positions, err := s.backend.Positions(ctx, ledger.KindOrder, orderDoc.ID)
	if err != nil {
		return nil, fmt.Errorf("load supply order positions: %w", err)
	}
	return positions, nil
}

// ensureDocument is DocumentResolver.Ensure with the dry-run guard
func (s *Service) ensureDocument(
	ctx context.Context,
	kind ledger.DocumentKind,
	key string,
	build func(ctx context.Context) (*ledger.Document, error),
) (*ledger.Document, bool, error) {
	if !s.dryRun {
		return s.resolver.Ensure(ctx, kind, key, build)
	}

	existing, err := s.resolver.Find(ctx, kind, key)
	if err != nil || existing != nil {
		return existing, false, err
	}
	doc, err := build(ctx)
	if err != nil {
		return nil, false, err
	}
	doc.Kind = kind
	doc.ExternalCode = key
	s.logger.Info("dry run: skipping document creation",
		zap.String("kind", kind.String()),
		zap.String("key", key))
	return doc, true, nil
}

// updatePlannedMoment writes the refreshed planned date unless dry run is on
func (s *Service) updatePlannedMoment(ctx context.Context, orderDoc *ledger.Document, moment string) error {
	if s.dryRun {
		s.logger.Info("dry run: skipping planned date update",
			zap.String("document_id", orderDoc.ID),
			zap.String("planned_moment", moment))
		orderDoc.PlannedMoment = moment
		return nil
	}
	if err := s.backend.UpdatePlannedMoment(ctx, ledger.KindOrder, orderDoc.ID, moment); err != nil {
		return err
	}
	orderDoc.PlannedMoment = moment
	return nil
}

// normalizePlannedMoment turns the marketplace's loosely formatted planned
// date into an unambiguous moment: date-only values get midnight in the
// configured offset, a trailing Z becomes an explicit +00:00, and
// offset-less T-datetimes get the configured offset appended. Values already
// carrying an offset, and values without a recognizable datetime shape, pass
// through unchanged.
func normalizePlannedMoment(raw, offset string) string {
	if raw == "" {
		return ""
	}
	if len(raw) == len("2006-01-02") && !strings.ContainsRune(raw, 'T') {
		return raw + "T00:00:00" + offset
	}
	if strings.HasSuffix(raw, "Z") {
		return strings.TrimSuffix(raw, "Z") + "+00:00"
	}
	if i := strings.IndexByte(raw, 'T'); i >= 0 {
		if strings.ContainsAny(raw[i+1:], "+-") {
			return raw
		}
		return raw + offset
	}
	return raw
}
