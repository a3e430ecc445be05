package persistence

import (
	"context"
	"errors"

	"github.com/marketsync/backend/internal/domain/tracking"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// saveBatchSize bounds the number of rows per upsert statement
const saveBatchSize = 200

// GormOrderRecordRepository implements tracking.OrderRecordRepository using GORM
type GormOrderRecordRepository struct {
	db *gorm.DB
}

// NewGormOrderRecordRepository creates a new GormOrderRecordRepository
func NewGormOrderRecordRepository(db *gorm.DB) *GormOrderRecordRepository {
	return &GormOrderRecordRepository{db: db}
}

// FindAll returns every order record keyed by external id
func (r *GormOrderRecordRepository) FindAll(ctx context.Context) (map[string]*tracking.OrderRecord, error) {
	var recordModels []models.OrderRecordModel
	if err := r.db.WithContext(ctx).Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make(map[string]*tracking.OrderRecord, len(recordModels))
	for i := range recordModels {
		records[recordModels[i].ExternalID] = recordModels[i].ToDomain()
	}
	return records, nil
}

// SaveAll upserts the given records in one batch
func (r *GormOrderRecordRepository) SaveAll(ctx context.Context, records []*tracking.OrderRecord) error {
	if len(records) == 0 {
		return nil
	}

	recordModels := make([]*models.OrderRecordModel, len(records))
	for i, record := range records {
		recordModels[i] = models.OrderRecordModelFromDomain(record)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			UpdateAll: true,
		}).
		CreateInBatches(recordModels, saveBatchSize).Error
}

// Ensure GormOrderRecordRepository implements OrderRecordRepository
var _ tracking.OrderRecordRepository = (*GormOrderRecordRepository)(nil)

// GormSupplyRecordRepository implements tracking.SupplyRecordRepository using GORM
type GormSupplyRecordRepository struct {
	db *gorm.DB
}

// NewGormSupplyRecordRepository creates a new GormSupplyRecordRepository
func NewGormSupplyRecordRepository(db *gorm.DB) *GormSupplyRecordRepository {
	return &GormSupplyRecordRepository{db: db}
}

// FindAll returns every supply record keyed by external id
func (r *GormSupplyRecordRepository) FindAll(ctx context.Context) (map[string]*tracking.SupplyRecord, error) {
	var recordModels []models.SupplyRecordModel
	if err := r.db.WithContext(ctx).Find(&recordModels).Error; err != nil {
		return nil, err
	}

	records := make(map[string]*tracking.SupplyRecord, len(recordModels))
	for i := range recordModels {
		records[recordModels[i].ExternalID] = recordModels[i].ToDomain()
	}
	return records, nil
}

// SaveAll upserts the given records in one batch
func (r *GormSupplyRecordRepository) SaveAll(ctx context.Context, records []*tracking.SupplyRecord) error {
	if len(records) == 0 {
		return nil
	}

	recordModels := make([]*models.SupplyRecordModel, len(records))
	for i, record := range records {
		recordModels[i] = models.SupplyRecordModelFromDomain(record)
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			UpdateAll: true,
		}).
		CreateInBatches(recordModels, saveBatchSize).Error
}

// Ensure GormSupplyRecordRepository implements SupplyRecordRepository
var _ tracking.SupplyRecordRepository = (*GormSupplyRecordRepository)(nil)

// GormBootstrapRepository implements tracking.BootstrapRepository using GORM
type GormBootstrapRepository struct {
	db *gorm.DB
}

// NewGormBootstrapRepository creates a new GormBootstrapRepository
func NewGormBootstrapRepository(db *gorm.DB) *GormBootstrapRepository {
	return &GormBootstrapRepository{db: db}
}

// Get returns the marker for the flow, or nil when the flow never ran
func (r *GormBootstrapRepository) Get(ctx context.Context, flow tracking.Flow) (*tracking.Bootstrap, error) {
	var model models.BootstrapModel
	if err := r.db.WithContext(ctx).First(&model, "flow = ?", flow.String()).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return model.ToDomain(), nil
}

// Set writes the marker. An existing marker is left untouched: only the
// first run of a flow bootstraps it.
func (r *GormBootstrapRepository) Set(ctx context.Context, marker *tracking.Bootstrap) error {
	model := &models.BootstrapModel{}
	model.FromDomain(marker)
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "flow"}},
			DoNothing: true,
		}).
		Create(model).Error
}

// Ensure GormBootstrapRepository implements BootstrapRepository
var _ tracking.BootstrapRepository = (*GormBootstrapRepository)(nil)
