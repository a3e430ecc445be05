// Package ledger contains the ledger-side domain model: the three business
// document kinds the reconciliation engine creates (order, transfer,
// shipment), the backend port they are persisted through, and the resolver
// that guarantees idempotent find-or-create semantics.
package ledger

import (
	"github.com/shopspring/decimal"
)

// ---------------------------------------------------------------------------
// DocumentKind
// ---------------------------------------------------------------------------

// DocumentKind distinguishes the three ledger document variants.
type DocumentKind string

const (
	// KindOrder is a customer order reserving inventory
	KindOrder DocumentKind = "ORDER"
	// KindTransfer is a movement of goods between warehouse locations
	KindTransfer DocumentKind = "TRANSFER"
	// KindShipment is a fulfillment document decrementing inventory
	KindShipment DocumentKind = "SHIPMENT"
)

// IsValid returns true if the kind is one of the three document variants
func (k DocumentKind) IsValid() bool {
	switch k {
	case KindOrder, KindTransfer, KindShipment:
		return true
	default:
		return false
	}
}

// String returns the string representation of DocumentKind
func (k DocumentKind) String() string {
	return string(k)
}

// ---------------------------------------------------------------------------
// Documents
// ---------------------------------------------------------------------------

// ProductRef is a catalog lookup result: the ledger-side identity of a
// product plus its default sale price. Not owned by this system.
type ProductRef struct {
	// ID is the ledger product identifier
	ID string
	// Href is the canonical ledger reference to the product entity
	Href string
	// Article is the seller SKU code the product was resolved by
	Article string
	// SalePrice is the default sale price in minor currency units
	SalePrice decimal.Decimal
}

// Position is one line of a ledger document referencing a catalog product.
type Position struct {
	// Product identifies the catalog product
	Product ProductRef
	// Quantity is the document line quantity
	Quantity decimal.Decimal
	// Reserve is the quantity reserved against inventory (orders only)
	Reserve decimal.Decimal
	// Price is the line price in minor currency units
	Price decimal.Decimal
}

// Document is a ledger business record. One struct covers all three kinds;
// Kind tags the variant and optional fields stay zero for kinds that do not
// carry them. Only fields the reconciliation core reads or writes appear
// here; everything else lives in the backend adapter.
type Document struct {
	// Kind tags the document variant
	Kind DocumentKind
	// ID is the ledger-assigned identifier, empty until created
	ID string
	// Name is the human-facing document number
	Name string
	// ExternalCode is the idempotency key the document is found by
	ExternalCode string
	// StateID is the vendor-defined business state identifier
	StateID string
	// Applicable is true once the document has taken effect against inventory
	Applicable bool
	// Positions contains the document lines
	Positions []Position
	// Comment is the free-form operator note
	Comment string
	// PlannedMoment is the planned acceptance date (orders only)
	PlannedMoment string
	// LinkedOrderID links a shipment to its order
	LinkedOrderID string
	// SourceStoreID and TargetStoreID are the warehouses of a transfer
	SourceStoreID string
	TargetStoreID string
	// StoreID overrides the adapter's default warehouse (shipments only)
	StoreID string
	// SalesChannelID overrides the adapter's default sales channel
	SalesChannelID string
}

// ---------------------------------------------------------------------------
// Idempotency keys
// ---------------------------------------------------------------------------

// Idempotency keys are deterministic derivations from a tracked entity's
// external id. Lookups are kind-scoped, so an order and its shipment may
// share a key; the supply-flow keys carry a suffix because one ledger order
// fans out into a transfer and a shipment under the same supply number.

// OrderKey returns the idempotency key for a customer-order document
func OrderKey(externalID string) string {
	return externalID
}

// ShipmentKey returns the idempotency key for a customer-order shipment
func ShipmentKey(externalID string) string {
	return externalID
}

// SupplyOrderKey returns the idempotency key for a supply's ledger order
func SupplyOrderKey(number string) string {
	return "supply-" + number
}

// SupplyTransferKey returns the idempotency key for a supply's transfer
func SupplyTransferKey(number string) string {
	return SupplyOrderKey(number) + ":transfer"
}

// SupplyShipmentKey returns the idempotency key for a supply's shipment
func SupplyShipmentKey(number string) string {
	return SupplyOrderKey(number) + ":shipment"
}
