// Package ordersync implements the customer-order reconciliation pass: it
// polls marketplace orders, mirrors each one into the ledger as an order
// document, advances the document's state to match the externally observed
// status pair, and creates the shipment once the order leaves the too-early
// stages. Every pass is idempotent; the durable order records and the
// ledger-side idempotency keys guarantee at most one document per order and
// kind no matter how often a pass is repeated or interrupted.
package ordersync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/ledger"
	"github.com/marketsync/backend/internal/domain/tracking"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

var (
	// errNoArticle aborts order creation when no line item carries an article
	errNoArticle = fmt.Errorf("%w: no line item carries an article", ledger.ErrSkipDocument)
	// errNoProduct aborts order creation when no line item resolved to a catalog product
	errNoProduct = fmt.Errorf("%w: no line item resolved to a catalog product", ledger.ErrSkipDocument)
)

// Summary is the end-of-pass outcome breakdown. Counters are per entity, not
// per API call; one order contributes to at most one skip counter.
type Summary struct {
	// Total is the number of active (non-retired) orders considered this pass
	Total int
	// SkippedOld counts orders created before the configured import cutoff
	SkippedOld int
	// CreatedOrders counts ledger orders created this pass
	CreatedOrders int
	// CreatedShipments counts ledger shipments created this pass
	CreatedShipments int
	// ShipmentExists counts orders whose shipment already existed
	ShipmentExists int
	// StateChanges counts ledger order state transitions performed
	StateChanges int
	// Cancelled counts orders cancelled before their shipment existed
	Cancelled int
	// Activated counts orders newly marked pending (too early for shipment)
	Activated int
	// Deactivated counts pending orders released this pass
	Deactivated int
	// Retired counts orders that reached a terminal outcome this pass
	Retired int
	// SkippedNoArticle counts orders with no line item carrying an article
	SkippedNoArticle int
	// SkippedNoProduct counts orders whose articles matched no catalog product
	SkippedNoProduct int
	// LeftUnapplied counts shipments created but not applied for lack of stock
	LeftUnapplied int
	// Failed counts orders whose reconciliation errored; the pass continued
	Failed int
}

// Service runs the customer-order reconciliation pass.
type Service struct {
	source   integration.OrderSource
	backend  ledger.Backend
	resolver *ledger.DocumentResolver
	products *catalog.Lookup
	records  tracking.OrderRecordRepository
	cfg      *config.OrdersConfig
	dryRun   bool
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates the order reconciliation service. With dryRun set the
// pass performs every lookup and reports the full summary but executes no
// ledger mutation and persists no run state.
func NewService(
	source integration.OrderSource,
	backend ledger.Backend,
	products *catalog.Lookup,
	records tracking.OrderRecordRepository,
	cfg *config.OrdersConfig,
	dryRun bool,
	logger *zap.Logger,
) *Service {
	return &Service{
		source:   source,
		backend:  backend,
		resolver: ledger.NewDocumentResolver(backend),
		products: products,
		records:  records,
		cfg:      cfg,
		dryRun:   dryRun,
		logger:   logger,
		now:      time.Now,
	}
}

// Run executes one reconciliation pass. Per-order failures are logged and
// counted, never fatal; only setup failures (listing orders, loading run
// state) abort the pass. Run state is persisted once, at the end of the
// pass, so a crash mid-pass repeats work instead of losing it.
func (s *Service) Run(ctx context.Context) (*Summary, error) {
	startTime := time.Now()
	summary := &Summary{}
	cutoff := s.cfg.CutoffTime()

	orders, err := s.source.ListOrders(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list marketplace orders: %w", err)
	}

	recordMap, err := s.records.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load order records: %w", err)
	}

	activeOrders := make([]integration.MarketplaceOrder, 0, len(orders))
	activeIDs := make([]string, 0, len(orders))
	for _, order := range orders {
		if !cutoff.IsZero() && order.CreatedAt.Before(cutoff) {
			summary.SkippedOld++
			continue
		}
		if rec := recordMap[order.ExternalID]; rec != nil && rec.Retired {
			continue
		}
		activeOrders = append(activeOrders, order)
		activeIDs = append(activeIDs, order.ExternalID)
	}
	summary.Total = len(activeOrders)

	statuses := map[string]integration.StatusPair{}
	if len(activeIDs) > 0 {
		statuses, err = s.source.GetStatuses(ctx, activeIDs)
		if err != nil {
			return nil, fmt.Errorf("load order statuses: %w", err)
		}
	}

	denyStates := s.cfg.ShipmentDenyStateIDs()
	touched := make([]*tracking.OrderRecord, 0, len(activeOrders))

	for _, order := range activeOrders {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		rec := recordMap[order.ExternalID]
		if rec == nil {
			rec = &tracking.OrderRecord{
				ExternalID: order.ExternalID,
				CreatedAt:  s.now(),
			}
			recordMap[order.ExternalID] = rec
		}
		rec.UpdatedAt = s.now()
		status := statuses[order.ExternalID]
		if !status.IsZero() {
			rec.LastStatus = status
		}

		if err := s.reconcileOrder(ctx, order, rec, status, denyStates, summary); err != nil {
			summary.Failed++
			s.logger.Error("order reconciliation failed",
				zap.String("order_id", order.ExternalID),
				zap.String("status", status.String()),
				zap.Error(err))
		}
		touched = append(touched, rec)
	}

	if s.dryRun {
		s.logger.Info("dry run: run state not persisted",
			zap.Int("records", len(touched)))
	} else if err := s.records.SaveAll(ctx, touched); err != nil {
		return summary, fmt.Errorf("persist order records: %w", err)
	}

	s.logger.Info("order reconciliation pass completed",
		zap.Int("total", summary.Total),
		zap.Int("created_orders", summary.CreatedOrders),
		zap.Int("created_shipments", summary.CreatedShipments),
		zap.Int("shipment_exists", summary.ShipmentExists),
		zap.Int("state_changes", summary.StateChanges),
		zap.Int("cancelled", summary.Cancelled),
		zap.Int("activated", summary.Activated),
		zap.Int("deactivated", summary.Deactivated),
		zap.Int("retired", summary.Retired),
		zap.Int("skipped_old", summary.SkippedOld),
		zap.Int("skipped_no_article", summary.SkippedNoArticle),
		zap.Int("skipped_no_product", summary.SkippedNoProduct),
		zap.Int("left_unapplied", summary.LeftUnapplied),
		zap.Int("failed", summary.Failed),
		zap.Bool("dry_run", s.dryRun),
		zap.Duration("duration", time.Since(startTime)))

	return summary, nil
}

// reconcileOrder advances one order by at most one step per concern: the
// shipment short-circuit, the cancel-before-shipment branch, order creation,
// the state transition, and the shipment gate, in that order.
func (s *Service) reconcileOrder(
	ctx context.Context,
	order integration.MarketplaceOrder,
	rec *tracking.OrderRecord,
	status integration.StatusPair,
	denyStates map[string]struct{},
	summary *Summary,
) error {
	// A shipment is terminal: nothing else is ever attempted once it exists.
	if rec.ShipmentCreated {
		summary.ShipmentExists++
		s.retire(rec, summary)
		return nil
	}
	shipment, err := s.resolver.Find(ctx, ledger.KindShipment, ledger.ShipmentKey(order.ExternalID))
	if err != nil {
		return fmt.Errorf("find shipment: %w", err)
	}
	if shipment != nil {
		summary.ShipmentExists++
		rec.ShipmentCreated = true
		s.retire(rec, summary)
		return nil
	}

	if status.IsCancellation() {
		return s.cancelOrder(ctx, order.ExternalID, rec, summary)
	}

	orderDoc, created, err := s.ensureDocument(ctx, ledger.KindOrder, ledger.OrderKey(order.ExternalID), s.orderBuilder(order))
	if err != nil {
		switch {
		case errors.Is(err, errNoArticle):
			summary.SkippedNoArticle++
			return nil
		case errors.Is(err, errNoProduct):
			summary.SkippedNoProduct++
			return nil
		default:
			return fmt.Errorf("ensure order: %w", err)
		}
	}
	if created {
		summary.CreatedOrders++
	}
	rec.OrderCreated = true

	decision := integration.MapOrderStatus(status, rec.ShipmentCreated, rec.Pending)
	if decision.Op == integration.OpSetStage {
		stateID := s.cfg.StateIDFor(decision.Stage)
		if stateID != "" && stateID != orderDoc.StateID {
			if err := s.setState(ctx, ledger.KindOrder, orderDoc.ID, stateID); err != nil {
				return fmt.Errorf("set order stage %s: %w", decision.Stage, err)
			}
			orderDoc.StateID = stateID
			summary.StateChanges++
		}
	}

	// The shipment gate reads the current ledger state, not the external
	// status: a state moved manually on the ledger side releases the order.
	if integration.ShipmentEligible(orderDoc.StateID, denyStates) {
		return s.createShipment(ctx, order.ExternalID, orderDoc, rec, summary)
	}
	if !rec.Pending {
		rec.Pending = true
		summary.Activated++
	}
	return nil
}

// cancelOrder moves an existing ledger order to the cancelled state and
// retires the record. A cancellation for an order never imported retires
// the record without touching the ledger.
func (s *Service) cancelOrder(ctx context.Context, externalID string, rec *tracking.OrderRecord, summary *Summary) error {
	doc, err := s.resolver.Find(ctx, ledger.KindOrder, ledger.OrderKey(externalID))
	if err != nil {
		return fmt.Errorf("find order for cancellation: %w", err)
	}
	if doc != nil {
		stateID := s.cfg.StateIDFor(integration.StageCancelled)
		if stateID != "" && stateID != doc.StateID {
			if err := s.setState(ctx, ledger.KindOrder, doc.ID, stateID); err != nil {
				return fmt.Errorf("set cancelled state: %w", err)
			}
			summary.StateChanges++
		}
	}
	summary.Cancelled++
	s.retire(rec, summary)
	return nil
}

// createShipment ensures the shipment document from the order's positions,
// attempts to apply it, and retires the record. Insufficient stock leaves
// the shipment unapplied; the entity still retires, the shortage is an
// operator concern from here on.
func (s *Service) createShipment(
	ctx context.Context,
	externalID string,
	orderDoc *ledger.Document,
	rec *tracking.OrderRecord,
	summary *Summary,
) error {
	doc, created, err := s.ensureDocument(ctx, ledger.KindShipment, ledger.ShipmentKey(externalID), func(ctx context.Context) (*ledger.Document, error) {
		positions, err := s.orderPositions(ctx, orderDoc)
		if err != nil {
			return nil, err
		}
		if len(positions) == 0 {
			return nil, fmt.Errorf("%w: order %q has no positions", ledger.ErrSkipDocument, orderDoc.ID)
		}
		return &ledger.Document{
			Name:          externalID,
			Positions:     positions,
			LinkedOrderID: orderDoc.ID,
		}, nil
	})
	if err != nil {
		if errors.Is(err, ledger.ErrSkipDocument) {
			s.logger.Warn("shipment skipped",
				zap.String("order_id", externalID),
				zap.Error(err))
			return nil
		}
		return fmt.Errorf("ensure shipment: %w", err)
	}

	if created {
		summary.CreatedShipments++
	} else {
		summary.ShipmentExists++
	}
	rec.ShipmentCreated = true

	if created {
		applied, err := s.applyDocument(ctx, doc)
		if err != nil {
			return fmt.Errorf("apply shipment: %w", err)
		}
		if !applied {
			summary.LeftUnapplied++
			s.logger.Warn("shipment left unapplied: insufficient stock",
				zap.String("order_id", externalID),
				zap.String("shipment_id", doc.ID))
		}
		if s.cfg.ShipmentStateID != "" {
			if err := s.setState(ctx, ledger.KindShipment, doc.ID, s.cfg.ShipmentStateID); err != nil {
				return fmt.Errorf("set shipment state: %w", err)
			}
		}
	}

	s.retire(rec, summary)
	return nil
}

// orderBuilder returns the build callback for the order document. It runs
// only when both idempotency lookups miss.
func (s *Service) orderBuilder(order integration.MarketplaceOrder) func(ctx context.Context) (*ledger.Document, error) {
	return func(ctx context.Context) (*ledger.Document, error) {
		positions, hasArticle, err := s.resolvePositions(ctx, order.Items)
		if err != nil {
			return nil, err
		}
		if !hasArticle {
			return nil, errNoArticle
		}
		if len(positions) == 0 {
			return nil, errNoProduct
		}
		return &ledger.Document{
			Name:      order.ExternalID,
			StateID:   s.cfg.StateNewID,
			Positions: positions,
		}, nil
	}
}

// resolvePositions maps line items to document positions, resolving each
// article through the catalog cache. Lines without an article or without a
// catalog match are dropped; hasArticle reports whether any line carried an
// article at all.
func (s *Service) resolvePositions(ctx context.Context, items []integration.LineItem) ([]ledger.Position, bool, error) {
	hasArticle := false
	positions := make([]ledger.Position, 0, len(items))
	for _, item := range items {
		if item.Article == "" {
			continue
		}
		hasArticle = true
		ref, err := s.products.ByArticle(ctx, item.Article)
		if err != nil {
			return nil, hasArticle, fmt.Errorf("resolve article %q: %w", item.Article, err)
		}
		if ref == nil {
			s.logger.Warn("article matches no catalog product",
				zap.String("article", item.Article))
			continue
		}
		positions = append(positions, ledger.Position{
			Product:  *ref,
			Quantity: item.Quantity,
			Reserve:  item.Quantity,
			Price:    ref.SalePrice,
		})
	}
	return positions, hasArticle, nil
}

// orderPositions returns the order's lines, fetched from the backend when
// the document came from a lookup rather than a fresh build.
func (s *Service) orderPositions(ctx context.Context, orderDoc *ledger.Document) ([]ledger.Position, error) {
	if len(orderDoc.Positions) > 0 {
		return orderDoc.Positions, nil
	}
	positions, err := s.backend.Positions(ctx, ledger.KindOrder, orderDoc.ID)
	if err != nil {
		return nil, fmt.Errorf("load order positions: %w", err)
	}
	return positions, nil
}

// retire marks the record terminal, releasing it from the pending set first
func (s *Service) retire(rec *tracking.OrderRecord, summary *Summary) {
	if rec.Pending {
		summary.Deactivated++
	}
	rec.Retire()
	summary.Retired++
}

// ensureDocument is DocumentResolver.Ensure with the dry-run guard: in dry
// run a miss counts as a creation but the ledger is never written, and the
// returned document carries no id.
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

// setState updates a document's state unless dry run is on
func (s *Service) setState(ctx context.Context, kind ledger.DocumentKind, id, stateID string) error {
	if s.dryRun {
		s.logger.Info("dry run: skipping state update",
			zap.String("kind", kind.String()),
			zap.String("document_id", id),
			zap.String("state_id", stateID))
		return nil
	}
	if _, err := s.backend.UpdateState(ctx, kind, id, stateID); err != nil {
		return err
	}
	return nil
}

// applyDocument applies a document unless dry run is on
func (s *Service) applyDocument(ctx context.Context, doc *ledger.Document) (bool, error) {
	if s.dryRun {
		s.logger.Info("dry run: skipping apply",
			zap.String("kind", doc.Kind.String()),
			zap.String("document_id", doc.ID))
		return true, nil
	}
	return s.resolver.Apply(ctx, doc)
}
