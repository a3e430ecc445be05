// Package models holds the GORM persistence models for the run state and
// their conversions to and from the domain types.
package models

import (
	"time"

	"github.com/marketsync/backend/internal/domain/integration"
	"github.com/marketsync/backend/internal/domain/tracking"
)

// OrderRecordModel is the persistence model for the tracking.OrderRecord entity.
type OrderRecordModel struct {
	ExternalID      string    `gorm:"type:varchar(64);primary_key"`
	OrderCreated    bool      `gorm:"not null;default:false"`
	ShipmentCreated bool      `gorm:"not null;default:false"`
	Pending         bool      `gorm:"not null;default:false"`
	Retired         bool      `gorm:"not null;default:false;index:idx_order_records_retired"`
	LastFulfillment string    `gorm:"type:varchar(32)"`
	LastLogistics   string    `gorm:"type:varchar(32)"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (OrderRecordModel) TableName() string {
	return "order_records"
}

// ToDomain converts the persistence model to a domain OrderRecord.
func (m *OrderRecordModel) ToDomain() *tracking.OrderRecord {
	return &tracking.OrderRecord{
		ExternalID:      m.ExternalID,
		OrderCreated:    m.OrderCreated,
		ShipmentCreated: m.ShipmentCreated,
		Pending:         m.Pending,
		Retired:         m.Retired,
		LastStatus: integration.StatusPair{
			Fulfillment: integration.FulfillmentStatus(m.LastFulfillment),
			Logistics:   integration.LogisticsStatus(m.LastLogistics),
		},
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain OrderRecord.
func (m *OrderRecordModel) FromDomain(r *tracking.OrderRecord) {
	m.ExternalID = r.ExternalID
	m.OrderCreated = r.OrderCreated
	m.ShipmentCreated = r.ShipmentCreated
	m.Pending = r.Pending
	m.Retired = r.Retired
	m.LastFulfillment = string(r.LastStatus.Fulfillment)
	m.LastLogistics = string(r.LastStatus.Logistics)
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// OrderRecordModelFromDomain creates a new persistence model from a domain OrderRecord.
func OrderRecordModelFromDomain(r *tracking.OrderRecord) *OrderRecordModel {
	m := &OrderRecordModel{}
	m.FromDomain(r)
	return m
}

// SupplyRecordModel is the persistence model for the tracking.SupplyRecord entity.
type SupplyRecordModel struct {
	ExternalID      string    `gorm:"type:varchar(64);primary_key"`
	Number          string    `gorm:"type:varchar(64);not null"`
	LedgerOrderID   string    `gorm:"type:varchar(64)"`
	TransferCreated bool      `gorm:"not null;default:false"`
	ShipmentCreated bool      `gorm:"not null;default:false"`
	CreatedAt       time.Time `gorm:"not null"`
	UpdatedAt       time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (SupplyRecordModel) TableName() string {
	return "supply_records"
}

// ToDomain converts the persistence model to a domain SupplyRecord.
func (m *SupplyRecordModel) ToDomain() *tracking.SupplyRecord {
	return &tracking.SupplyRecord{
		ExternalID:      m.ExternalID,
		Number:          m.Number,
		LedgerOrderID:   m.LedgerOrderID,
		TransferCreated: m.TransferCreated,
		ShipmentCreated: m.ShipmentCreated,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

// FromDomain populates the persistence model from a domain SupplyRecord.
func (m *SupplyRecordModel) FromDomain(r *tracking.SupplyRecord) {
	m.ExternalID = r.ExternalID
	m.Number = r.Number
	m.LedgerOrderID = r.LedgerOrderID
	m.TransferCreated = r.TransferCreated
	m.ShipmentCreated = r.ShipmentCreated
	m.CreatedAt = r.CreatedAt
	m.UpdatedAt = r.UpdatedAt
}

// SupplyRecordModelFromDomain creates a new persistence model from a domain SupplyRecord.
func SupplyRecordModelFromDomain(r *tracking.SupplyRecord) *SupplyRecordModel {
	m := &SupplyRecordModel{}
	m.FromDomain(r)
	return m
}

// BootstrapModel is the persistence model for the per-flow first-run markers.
type BootstrapModel struct {
	Flow           string    `gorm:"type:varchar(16);primary_key"`
	BootstrappedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (BootstrapModel) TableName() string {
	return "flow_bootstraps"
}

// ToDomain converts the persistence model to a domain Bootstrap marker.
func (m *BootstrapModel) ToDomain() *tracking.Bootstrap {
	return &tracking.Bootstrap{
		Flow:           tracking.Flow(m.Flow),
		BootstrappedAt: m.BootstrappedAt,
	}
}

// FromDomain populates the persistence model from a domain Bootstrap marker.
func (m *BootstrapModel) FromDomain(b *tracking.Bootstrap) {
	m.Flow = b.Flow.String()
	m.BootstrappedAt = b.BootstrappedAt
}

// RunLockModel is the advisory lock row guarding against overlapping passes
// of one flow.
type RunLockModel struct {
	Flow       string    `gorm:"type:varchar(16);primary_key"`
	AcquiredAt time.Time `gorm:"not null"`
	ExpiresAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (RunLockModel) TableName() string {
	return "run_locks"
}
