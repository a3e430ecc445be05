package ordersync

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/marketsync/backend/internal/application/catalog"
	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/ledger"
	"github.com/marketsync/backend/internal/domain/ledger/ledgertest"
	"github.com/marketsync/backend/internal/domain/tracking"
	"github.com/marketsync/backend/internal/infrastructure/cache"
	"github.com/marketsync/backend/internal/infrastructure/config"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

type fakeOrderSource struct {
	orders   []integration.MarketplaceOrder
	statuses map[string]integration.StatusPair
}

func (f *fakeOrderSource) ListOrders(ctx context.Context, since time.Time) ([]integration.MarketplaceOrder, error) {
	return f.orders, nil
}

func (f *fakeOrderSource) GetStatuses(ctx context.Context, ids []string) (map[string]integration.StatusPair, error) {
	out := make(map[string]integration.StatusPair)
	for _, id := range ids {
		if pair, ok := f.statuses[id]; ok {
			out[id] = pair
		}
	}
	return out, nil
}

type memoryOrderRecords struct {
	records map[string]*tracking.OrderRecord
	saves   int
}

func newMemoryOrderRecords() *memoryOrderRecords {
	return &memoryOrderRecords{records: make(map[string]*tracking.OrderRecord)}
}

func (m *memoryOrderRecords) FindAll(ctx context.Context) (map[string]*tracking.OrderRecord, error) {
	out := make(map[string]*tracking.OrderRecord, len(m.records))
	for id, rec := range m.records {
		clone := *rec
		out[id] = &clone
	}
	return out, nil
}

func (m *memoryOrderRecords) SaveAll(ctx context.Context, records []*tracking.OrderRecord) error {
	m.saves++
	for _, rec := range records {
		clone := *rec
		m.records[rec.ExternalID] = &clone
	}
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func testOrdersConfig() *config.OrdersConfig {
	return &config.OrdersConfig{
		StateNewID:               "st-new",
		StatePickingID:           "st-picking",
		StatePickedID:            "st-picked",
		StateShippedID:           "st-shipped",
		StateDeliveringID:        "st-delivering",
		StateDeliveredID:         "st-delivered",
		StateCancelledID:         "st-cancelled",
		StateCancelledBySellerID: "st-cancelled-seller",
		ShipmentStateID:          "st-shipment-done",
	}
}

func newTestService(source *fakeOrderSource, backend *ledgertest.Backend, records tracking.OrderRecordRepository, cfg *config.OrdersConfig, dryRun bool) *Service {
	products := catalog.NewLookup(backend, cache.NewInMemoryProductCache(), 0, time.Minute)
	return NewService(source, backend, products, records, cfg, dryRun, zap.NewNop())
}

func seedProduct(backend *ledgertest.Backend, article string, price int64) {
	backend.Products[article] = &ledger.ProductRef{
		ID:        "prod-" + article,
		Href:      "https://ledger.example.com/entity/product/prod-" + article,
		Article:   article,
		SalePrice: decimal.NewFromInt(price),
	}
}

func marketOrder(id string, articles ...string) integration.MarketplaceOrder {
	items := make([]integration.LineItem, 0, len(articles))
	for _, article := range articles {
		items = append(items, integration.LineItem{
			Article:  article,
			Quantity: decimal.NewFromInt(1),
		})
	}
	return integration.MarketplaceOrder{
		ExternalID: id,
		Items:      items,
		CreatedAt:  time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
}

func pair(f integration.FulfillmentStatus, l integration.LogisticsStatus) integration.StatusPair {
	return integration.StatusPair{Fulfillment: f, Logistics: l}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestRunCreatesOrderForNewOrder(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.CreatedOrders)
	assert.Equal(t, 1, summary.Activated)
	assert.Equal(t, 0, summary.CreatedShipments)
	assert.Equal(t, 0, summary.Failed)

	doc := backend.Document(ledger.KindOrder, ledger.OrderKey("1001"))
	require.NotNil(t, doc)
	assert.Equal(t, "st-new", doc.StateID)
	require.Len(t, doc.Positions, 1)
	assert.Equal(t, "prod-A-100", doc.Positions[0].Product.ID)
	assert.True(t, doc.Positions[0].Quantity.Equal(decimal.NewFromInt(1)))
	assert.True(t, doc.Positions[0].Price.Equal(decimal.NewFromInt(1990)))

	rec := records.records["1001"]
	require.NotNil(t, rec)
	assert.True(t, rec.OrderCreated)
	assert.True(t, rec.Pending)
	assert.False(t, rec.Retired)
	assert.Equal(t, pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting), rec.LastStatus)
}

func TestRunFullLifecycle(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	source := &fakeOrderSource{
		orders:   []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)
	ctx := context.Background()

	// First observation of the confirmed pair starts assembly.
	source.statuses["1001"] = pair(integration.FulfillmentStatusConfirm, integration.LogisticsStatusWaiting)
	summary, err := service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedOrders)
	assert.Equal(t, 1, summary.StateChanges)
	assert.Equal(t, 1, summary.Activated)
	assert.Equal(t, "st-picking", backend.Document(ledger.KindOrder, "1001").StateID)

	// The repeat observation escalates to assembly done.
	summary, err = service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.CreatedOrders)
	assert.Equal(t, 1, summary.StateChanges)
	assert.Equal(t, 0, summary.Activated)
	assert.Equal(t, "st-picked", backend.Document(ledger.KindOrder, "1001").StateID)

	// Sorted by logistics: delivering is outside the deny set, the shipment
	// is created from the order's positions, applied, and the entity retires.
	source.statuses["1001"] = pair(integration.FulfillmentStatusComplete, integration.LogisticsStatusSorted)
	summary, err = service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedShipments)
	assert.Equal(t, 1, summary.Deactivated)
	assert.Equal(t, 1, summary.Retired)
	assert.Equal(t, 0, summary.LeftUnapplied)

	orderDoc := backend.Document(ledger.KindOrder, "1001")
	assert.Equal(t, "st-delivering", orderDoc.StateID)

	shipment := backend.Document(ledger.KindShipment, ledger.ShipmentKey("1001"))
	require.NotNil(t, shipment)
	assert.True(t, shipment.Applicable)
	assert.Equal(t, orderDoc.ID, shipment.LinkedOrderID)
	assert.Equal(t, "st-shipment-done", shipment.StateID)
	require.Len(t, shipment.Positions, 1)
	assert.Equal(t, "prod-A-100", shipment.Positions[0].Product.ID)

	rec := records.records["1001"]
	assert.True(t, rec.Retired)
	assert.True(t, rec.ShipmentCreated)
	assert.False(t, rec.Pending)

	// A retired entity never re-enters the pass.
	summary, err = service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Total)
	assert.Len(t, backend.DocumentsOfKind(ledger.KindShipment), 1)
}

func TestRunIsIdempotent(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)
	ctx := context.Background()

	_, err := service.Run(ctx)
	require.NoError(t, err)
	summary, err := service.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 0, summary.CreatedOrders)
	assert.Equal(t, 0, summary.Activated)
	assert.Equal(t, 1, backend.CreateCalls)
	assert.Len(t, backend.DocumentsOfKind(ledger.KindOrder), 1)
}

func TestRunSkipsOrderWithoutArticle(t *testing.T) {
	backend := ledgertest.NewBackend()
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedNoArticle)
	assert.Equal(t, 0, summary.CreatedOrders)
	assert.Equal(t, 0, summary.Failed)
	assert.Empty(t, backend.DocumentsOfKind(ledger.KindOrder))

	// The skip is not terminal; the entity stays eligible for later passes.
	rec := records.records["1001"]
	require.NotNil(t, rec)
	assert.False(t, rec.Retired)
	assert.False(t, rec.OrderCreated)
}

func TestRunSkipsOrderWithoutProductThenRecovers(t *testing.T) {
	backend := ledgertest.NewBackend()
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)
	ctx := context.Background()

	summary, err := service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.SkippedNoProduct)
	assert.Empty(t, backend.DocumentsOfKind(ledger.KindOrder))

	// Once the catalog catches up the next pass imports the order.
	seedProduct(backend, "A-100", 1990)
	service = newTestService(source, backend, records, testOrdersConfig(), false)
	summary, err = service.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CreatedOrders)
	assert.Equal(t, 0, summary.SkippedNoProduct)
}

func TestRunCancellationBeforeShipment(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)
	ctx := context.Background()

	_, err := service.Run(ctx)
	require.NoError(t, err)

	source.statuses["1001"] = pair(integration.FulfillmentStatusCancel, integration.LogisticsStatusCanceledByClient)
	summary, err := service.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Cancelled)
	assert.Equal(t, 1, summary.Deactivated)
	assert.Equal(t, 1, summary.Retired)
	assert.Equal(t, "st-cancelled", backend.Document(ledger.KindOrder, "1001").StateID)
	assert.Empty(t, backend.DocumentsOfKind(ledger.KindShipment))
	assert.True(t, records.records["1001"].Retired)
}

func TestRunCancellationAfterShipmentIsIgnored(t *testing.T) {
	backend := ledgertest.NewBackend()
	backend.Seed(&ledger.Document{
		Kind:         ledger.KindShipment,
		Name:         "1001",
		ExternalCode: ledger.ShipmentKey("1001"),
		Applicable:   true,
	})
	backend.Seed(&ledger.Document{
		Kind:         ledger.KindOrder,
		Name:         "1001",
		ExternalCode: ledger.OrderKey("1001"),
		StateID:      "st-shipped",
	})
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusCancel, integration.LogisticsStatusCanceled),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.ShipmentExists)
	assert.Equal(t, 0, summary.Cancelled)
	assert.Equal(t, 1, summary.Retired)
	assert.Equal(t, "st-shipped", backend.Document(ledger.KindOrder, "1001").StateID)
	assert.True(t, records.records["1001"].Retired)
	assert.True(t, records.records["1001"].ShipmentCreated)
}

func TestRunShipmentLeftUnappliedOnInsufficientStock(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	backend.ApplyErr[ledger.ShipmentKey("1001")] = ledger.ErrInsufficientStock
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusComplete, integration.LogisticsStatusSorted),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.CreatedShipments)
	assert.Equal(t, 1, summary.LeftUnapplied)
	assert.Equal(t, 1, summary.Retired)
	assert.Equal(t, 0, summary.Failed)

	shipment := backend.Document(ledger.KindShipment, ledger.ShipmentKey("1001"))
	require.NotNil(t, shipment)
	assert.False(t, shipment.Applicable)
	// The shortage still counts as created; the entity retires.
	assert.True(t, records.records["1001"].Retired)
}

func TestRunCutoffExcludesOldOrders(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	old := marketOrder("900", "A-100")
	old.CreatedAt = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{old, marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"900":  pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	cfg := testOrdersConfig()
	cfg.Cutoff = "2026-02-01T00:00:00Z"
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, cfg, false)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.SkippedOld)
	assert.Equal(t, 1, summary.Total)
	assert.Equal(t, 1, summary.CreatedOrders)
	assert.Nil(t, backend.Document(ledger.KindOrder, "900"))
	assert.Nil(t, records.records["900"])
}

func TestRunDryRunPerformsNoMutations(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{marketOrder("1001", "A-100")},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), true)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	// Counted as it would happen, executed nowhere.
	assert.Equal(t, 1, summary.CreatedOrders)
	assert.Equal(t, 0, backend.CreateCalls)
	assert.Equal(t, 0, backend.UpdateStateCalls)
	assert.Empty(t, backend.DocumentsOfKind(ledger.KindOrder))
	assert.Equal(t, 0, records.saves)
}

func TestRunContinuesAfterPerOrderFailure(t *testing.T) {
	backend := ledgertest.NewBackend()
	seedProduct(backend, "A-100", 1990)
	seedProduct(backend, "B-200", 990)
	// A hard apply failure (not the recognized shortage) fails the order
	// through the error boundary without stopping the pass.
	backend.ApplyErr[ledger.ShipmentKey("1001")] = ledger.ErrRequestFailed
	source := &fakeOrderSource{
		orders: []integration.MarketplaceOrder{
			marketOrder("1001", "A-100"),
			marketOrder("1002", "B-200"),
		},
		statuses: map[string]integration.StatusPair{
			"1001": pair(integration.FulfillmentStatusComplete, integration.LogisticsStatusSorted),
			"1002": pair(integration.FulfillmentStatusNew, integration.LogisticsStatusWaiting),
		},
	}
	records := newMemoryOrderRecords()
	service := newTestService(source, backend, records, testOrdersConfig(), false)

	summary, err := service.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.CreatedOrders)
	assert.NotNil(t, backend.Document(ledger.KindOrder, "1002"))
	// The shipment itself was created before the apply failed; the next pass
	// finds it and retires the entity.
	assert.True(t, records.records["1001"].ShipmentCreated)
	assert.False(t, records.records["1001"].Retired)
}
