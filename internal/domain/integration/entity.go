package integration

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrMarketplaceUnavailable indicates the marketplace API could not be reached at all
	ErrMarketplaceUnavailable = errors.New("integration: marketplace unavailable")
	// ErrMarketplaceRequestFailed indicates a non-recoverable marketplace API error
	ErrMarketplaceRequestFailed = errors.New("integration: marketplace request failed")
	// ErrMarketplaceInvalidResponse indicates the marketplace returned an unparseable payload
	ErrMarketplaceInvalidResponse = errors.New("integration: invalid marketplace response")
)

// ---------------------------------------------------------------------------
// Tracked entities
// ---------------------------------------------------------------------------

// LineItem is one article/quantity pair of a tracked entity.
type LineItem struct {
	// Article is the seller SKU code used to resolve the catalog product
	Article string
	// Quantity is the ordered or supplied quantity
	Quantity decimal.Decimal
}

// MarketplaceOrder is a customer order as reported by the marketplace.
// Everything except the status pair and the line items is immutable between
// polls.
type MarketplaceOrder struct {
	// ExternalID is the stable marketplace-assigned order identifier
	ExternalID string
	// Items contains the order line items
	Items []LineItem
	// CreatedAt is when the order was placed on the marketplace
	CreatedAt time.Time
}

// Supply is a warehouse replenishment batch as reported by the marketplace.
type Supply struct {
	// ExternalID is the stable marketplace-assigned supply identifier
	ExternalID string
	// Number is the human-facing supply number shown in the marketplace UI
	Number string
	// StatusCode is the current supply progress code
	StatusCode SupplyStatusCode
	// CreatedAt is when the supply was registered on the marketplace
	CreatedAt time.Time
	// PlannedAt is the raw planned acceptance date reported by the
	// marketplace; may be date-only or carry no timezone
	PlannedAt string
	// DestinationWarehouse is the human-readable target warehouse name
	DestinationWarehouse string
}

// StockUpdate is one published stock level for a seller SKU.
type StockUpdate struct {
	// SKU is the seller article code on the marketplace
	SKU string
	// Amount is the available quantity to publish
	Amount int64
}

// ---------------------------------------------------------------------------
// Marketplace ports
// ---------------------------------------------------------------------------

// OrderSource reads customer orders from the marketplace. Implementations
// live in the infrastructure layer; transport retries are theirs.
type OrderSource interface {
	// ListOrders returns all orders created at or after since, fully paged
	ListOrders(ctx context.Context, since time.Time) ([]MarketplaceOrder, error)

	// GetStatuses returns the current status pair per order id. Orders the
	// marketplace no longer reports are absent from the result.
	GetStatuses(ctx context.Context, ids []string) (map[string]StatusPair, error)
}

// SupplySource reads replenishment supplies from the marketplace.
type SupplySource interface {
	// ListSupplies returns all supplies updated within the window starting at from
	ListSupplies(ctx context.Context, from time.Time) ([]Supply, error)

	// GetGoods returns the line items of one supply
	GetGoods(ctx context.Context, supplyID string) ([]LineItem, error)
}

// StockPublisher pushes stock levels to a marketplace warehouse.
type StockPublisher interface {
	// PublishStocks publishes one batch of stock levels
	PublishStocks(ctx context.Context, warehouseID int64, stocks []StockUpdate) error
}
