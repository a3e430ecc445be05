package integration

// ---------------------------------------------------------------------------
// FulfillmentStatus
// ---------------------------------------------------------------------------

// FulfillmentStatus is the seller-side progress code of a marketplace order.
type FulfillmentStatus string

const (
	// FulfillmentStatusNew indicates a freshly placed order awaiting confirmation
	FulfillmentStatusNew FulfillmentStatus = "new"
	// FulfillmentStatusConfirm indicates the seller confirmed the order and is assembling it
	FulfillmentStatusConfirm FulfillmentStatus = "confirm"
	// FulfillmentStatusComplete indicates the order has left the seller's warehouse
	FulfillmentStatusComplete FulfillmentStatus = "complete"
	// FulfillmentStatusCancel indicates the seller cancelled the order
	FulfillmentStatusCancel FulfillmentStatus = "cancel"
)

// IsValid returns true if the status is one of the known fulfillment codes
func (s FulfillmentStatus) IsValid() bool {
	switch s {
	case FulfillmentStatusNew, FulfillmentStatusConfirm, FulfillmentStatusComplete, FulfillmentStatusCancel:
		return true
	default:
		return false
	}
}

// String returns the string representation of FulfillmentStatus
func (s FulfillmentStatus) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// LogisticsStatus
// ---------------------------------------------------------------------------

// LogisticsStatus is the platform-side logistics progress code of a
// marketplace order.
type LogisticsStatus string

const (
	// LogisticsStatusWaiting indicates the parcel has not been handed to platform logistics
	LogisticsStatusWaiting LogisticsStatus = "waiting"
	// LogisticsStatusSorted indicates the parcel was accepted and sorted by the platform
	LogisticsStatusSorted LogisticsStatus = "sorted"
	// LogisticsStatusSold indicates the parcel was delivered and the sale is final
	LogisticsStatusSold LogisticsStatus = "sold"
	// LogisticsStatusCanceled indicates the platform cancelled the order
	LogisticsStatusCanceled LogisticsStatus = "canceled"
	// LogisticsStatusCanceledByClient indicates the buyer cancelled the order
	LogisticsStatusCanceledByClient LogisticsStatus = "canceled_by_client"
)

// IsValid returns true if the status is one of the known logistics codes
func (s LogisticsStatus) IsValid() bool {
	switch s {
	case LogisticsStatusWaiting, LogisticsStatusSorted, LogisticsStatusSold,
		LogisticsStatusCanceled, LogisticsStatusCanceledByClient:
		return true
	default:
		return false
	}
}

// String returns the string representation of LogisticsStatus
func (s LogisticsStatus) String() string {
	return string(s)
}

// IsCancellation returns true if the logistics code reports a cancellation
func (s LogisticsStatus) IsCancellation() bool {
	return s == LogisticsStatusCanceled || s == LogisticsStatusCanceledByClient
}

// ---------------------------------------------------------------------------
// StatusPair
// ---------------------------------------------------------------------------

// StatusPair is the externally observed status of a marketplace order: the
// fulfillment sub-status crossed with the logistics sub-status. The pair is
// the sole external input to the status mapper.
type StatusPair struct {
	Fulfillment FulfillmentStatus
	Logistics   LogisticsStatus
}

// IsZero returns true if neither sub-status was reported
func (p StatusPair) IsZero() bool {
	return p.Fulfillment == "" && p.Logistics == ""
}

// IsCancellation returns true if either sub-status reports a cancellation
func (p StatusPair) IsCancellation() bool {
	return p.Fulfillment == FulfillmentStatusCancel || p.Logistics.IsCancellation()
}

// String returns "fulfillment/logistics" for logging
func (p StatusPair) String() string {
	return string(p.Fulfillment) + "/" + string(p.Logistics)
}

// ---------------------------------------------------------------------------
// SupplyStatusCode
// ---------------------------------------------------------------------------

// SupplyStatusCode is the numeric progress code of a marketplace supply.
// The marketplace reports supplies through a small integer enum; only the
// codes that gate ledger-side documents are named here.
type SupplyStatusCode int

const (
	// SupplyStatusAccepted indicates the supply was accepted for shipping to
	// the platform warehouse; the goods physically move between warehouses.
	SupplyStatusAccepted SupplyStatusCode = 3
	// SupplyStatusClosed indicates the platform warehouse received the supply
	// and the replenishment is final.
	SupplyStatusClosed SupplyStatusCode = 5
)

// TransferDue returns true if the code requires the warehouse transfer
func (c SupplyStatusCode) TransferDue() bool {
	return c == SupplyStatusAccepted
}

// ShipmentDue returns true if the code requires the fulfillment shipment
func (c SupplyStatusCode) ShipmentDue() bool {
	return c == SupplyStatusClosed
}
