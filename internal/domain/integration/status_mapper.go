package integration

// ---------------------------------------------------------------------------
// OrderStage
// ---------------------------------------------------------------------------

// OrderStage is the symbolic ledger-order state a tracked order must be in.
// Stages are mapped to vendor-defined ledger state ids by configuration; the
// mapper itself never sees vendor ids.
type OrderStage string

const (
	// StageNew is the initial stage of a freshly imported order
	StageNew OrderStage = "NEW"
	// StagePicking is the first stage of a confirmed order (assembly started)
	StagePicking OrderStage = "PICKING"
	// StagePicked is the second stage of a confirmed order (assembly done),
	// reached on the repeat observation of the confirmed sub-status
	StagePicked OrderStage = "PICKED"
	// StageShipped means the parcel left the seller but logistics still waits for it
	StageShipped OrderStage = "SHIPPED"
	// StageDelivering means platform logistics accepted and sorted the parcel
	StageDelivering OrderStage = "DELIVERING"
	// StageDelivered means the parcel reached the buyer
	StageDelivered OrderStage = "DELIVERED"
	// StageCancelled means the order was cancelled before any shipment existed
	StageCancelled OrderStage = "CANCELLED"
	// StageCancelledBySeller mirrors a seller-initiated cancellation recorded
	// manually on the ledger side; the mapper never produces it, but it takes
	// part in shipment-eligibility checks
	StageCancelledBySeller OrderStage = "CANCELLED_BY_SELLER"
)

// String returns the string representation of OrderStage
func (s OrderStage) String() string {
	return string(s)
}

// ---------------------------------------------------------------------------
// Decision
// ---------------------------------------------------------------------------

// DecisionOp is what the reconciliation engine must do for an order after
// observing its current status pair.
type DecisionOp string

const (
	// OpNone means no transition is required this pass
	OpNone DecisionOp = "NONE"
	// OpSetStage means the ledger order must be moved to Decision.Stage
	OpSetStage DecisionOp = "SET_STAGE"
	// OpCancel means the order was cancelled before shipment and must be
	// moved to the cancelled stage and retired
	OpCancel DecisionOp = "CANCEL"
)

// Decision is the outcome of mapping one status observation.
type Decision struct {
	Op    DecisionOp
	Stage OrderStage
}

func none() Decision              { return Decision{Op: OpNone} }
func stage(s OrderStage) Decision { return Decision{Op: OpSetStage, Stage: s} }

// MapOrderStatus maps one external status observation to the required
// ledger-side transition. Pure: no I/O, no clock.
//
// hasShipment marks entities whose shipment document already exists; they are
// terminal and every observation maps to no-op, including cancellations (the
// parcel already left the building). pending marks entities that were already
// seen in a too-early-for-shipment stage on a prior pass; it disambiguates
// the confirmed sub-status into its second stage.
//
// Unknown or incomplete status pairs map to no-op; the caller logs them and
// the pass continues.
func MapOrderStatus(p StatusPair, hasShipment, pending bool) Decision {
	if hasShipment {
		return none()
	}
	if p.Fulfillment == "" || p.Logistics == "" {
		return none()
	}

	if p.IsCancellation() {
		return Decision{Op: OpCancel, Stage: StageCancelled}
	}

	if p.Logistics == LogisticsStatusWaiting {
		switch p.Fulfillment {
		case FulfillmentStatusNew:
			return stage(StageNew)
		case FulfillmentStatusConfirm:
			// Two-step confirm: first observation starts assembly, the
			// repeat observation completes it. Never regresses.
			if pending {
				return stage(StagePicked)
			}
			return stage(StagePicking)
		}
	}

	if p.Fulfillment == FulfillmentStatusComplete {
		switch p.Logistics {
		case LogisticsStatusWaiting:
			return stage(StageShipped)
		case LogisticsStatusSorted:
			return stage(StageDelivering)
		case LogisticsStatusSold:
			return stage(StageDelivered)
		}
	}

	return none()
}

// ---------------------------------------------------------------------------
// Shipment eligibility
// ---------------------------------------------------------------------------

// DefaultShipmentDenyStages lists the order stages that are too early for a
// shipment. A ledger order in any state outside this set gets its shipment
// created exactly once; the decision is made from the current ledger state,
// not from the external status.
func DefaultShipmentDenyStages() []OrderStage {
	return []OrderStage{
		StageNew,
		StagePicking,
		StagePicked,
		StageShipped,
		StageCancelled,
		StageCancelledBySeller,
	}
}

// ShipmentEligible reports whether an order in the ledger state stateID may
// have its shipment created. denyStateIDs holds the vendor state ids of the
// too-early stages. An order with no state at all is never eligible.
func ShipmentEligible(stateID string, denyStateIDs map[string]struct{}) bool {
	if stateID == "" {
		return false
	}
	_, denied := denyStateIDs[stateID]
	return !denied
}
