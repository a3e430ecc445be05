// Package tracking contains the durable run state: per-entity progress
// records that survive across reconciliation passes, the bootstrap markers
// that keep pre-installation entities from being imported, and the advisory
// run lock. Records are never deleted; re-observing a tracked entity must
// find what was already created.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
)

var (
	// ErrRecordNotFound indicates the entity has no run-state record yet
	ErrRecordNotFound = errors.New("tracking: record not found")
	// ErrRunLocked indicates another pass of the same flow holds the run lock
	ErrRunLocked = errors.New("tracking: run already in progress")
)

// Flow identifies one of the reconciliation flows for bootstrap markers and
// run locks.
type Flow string

const (
	// FlowOrders is the customer-order reconciliation flow
	FlowOrders Flow = "orders"
	// FlowSupplies is the supply reconciliation flow
	FlowSupplies Flow = "supplies"
	// FlowStocks is the stock publication flow
	FlowStocks Flow = "stocks"
)

// String returns the string representation of Flow
func (f Flow) String() string {
	return string(f)
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

// OrderRecord is the per-order reconciliation progress.
type OrderRecord struct {
	// ExternalID is the marketplace order id this record tracks
	ExternalID string
	// OrderCreated is true once the ledger order exists
	OrderCreated bool
	// ShipmentCreated is true once the ledger shipment exists
	ShipmentCreated bool
	// Pending marks an order already seen in a too-early-for-shipment state;
	// it drives the two-step confirm escalation
	Pending bool
	// Retired marks a terminal entity excluded from further passes
	Retired bool
	// LastStatus is the status pair observed on the most recent pass
	LastStatus integration.StatusPair
	// CreatedAt is when the record was first written
	CreatedAt time.Time
	// UpdatedAt is when the record was last mutated
	UpdatedAt time.Time
}

// Retire marks the record terminal and clears the escalation memory
func (r *OrderRecord) Retire() {
	r.Retired = true
	r.Pending = false
}

// SupplyRecord is the per-supply reconciliation progress.
type SupplyRecord struct {
	// ExternalID is the marketplace supply id this record tracks
	ExternalID string
	// Number is the human-facing supply number the ledger documents are named by
	Number string
	// LedgerOrderID is the id of the ensured ledger order
	LedgerOrderID string
	// TransferCreated is true once the warehouse transfer exists
	TransferCreated bool
	// ShipmentCreated is true once the fulfillment shipment exists
	ShipmentCreated bool
	// CreatedAt is when the record was first written
	CreatedAt time.Time
	// UpdatedAt is when the record was last mutated
	UpdatedAt time.Time
}

// Bootstrap records the first run of a flow. Entities that existed before
// BootstrappedAt are intentionally never imported.
type Bootstrap struct {
	Flow           Flow
	BootstrappedAt time.Time
}

// ---------------------------------------------------------------------------
// Repository ports
// ---------------------------------------------------------------------------

// OrderRecordRepository persists order reconciliation progress.
type OrderRecordRepository interface {
	// FindAll returns every order record keyed by external id
	FindAll(ctx context.Context) (map[string]*OrderRecord, error)

	// SaveAll upserts the given records in one batch. Called once per pass.
	SaveAll(ctx context.Context, records []*OrderRecord) error
}

// SupplyRecordRepository persists supply reconciliation progress.
type SupplyRecordRepository interface {
	// FindAll returns every supply record keyed by external id
	FindAll(ctx context.Context) (map[string]*SupplyRecord, error)

	// SaveAll upserts the given records in one batch. Called once per pass.
	SaveAll(ctx context.Context, records []*SupplyRecord) error
}

// BootstrapRepository persists the per-flow first-run markers.
type BootstrapRepository interface {
	// Get returns the marker for the flow, or nil when the flow never ran
	Get(ctx context.Context, flow Flow) (*Bootstrap, error)

	// Set writes the marker; only the first write per flow matters
	Set(ctx context.Context, marker *Bootstrap) error
}

// RunLock prevents overlapping passes of one flow. Best-effort: the
// scheduler not overlapping runs stays the documented operational invariant,
// the lock just turns a violation into a fast failure.
type RunLock interface {
	// Acquire takes the lock for the flow or returns ErrRunLocked while a
	// holder younger than ttl exists
	Acquire(ctx context.Context, flow Flow, ttl time.Duration) error

	// Release drops the lock for the flow
	Release(ctx context.Context, flow Flow) error
}
