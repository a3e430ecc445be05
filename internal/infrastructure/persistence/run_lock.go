package persistence

import (
	"context"
	"time"

	"github.com/marketsync/backend/internal/domain/tracking"
	"github.com/marketsync/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRunLock implements tracking.RunLock with an advisory lock row per flow.
// A stale row (expired ttl) is treated as abandoned by a crashed pass and
// taken over.
type GormRunLock struct {
	db *gorm.DB
}

// NewGormRunLock creates a new GormRunLock
func NewGormRunLock(db *gorm.DB) *GormRunLock {
	return &GormRunLock{db: db}
}

// Acquire takes the lock for the flow or returns ErrRunLocked while a live
// holder exists
func (l *GormRunLock) Acquire(ctx context.Context, flow tracking.Flow, ttl time.Duration) error {
	now := time.Now()
	model := &models.RunLockModel{
		Flow:       flow.String(),
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	result := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "flow"}},
			DoNothing: true,
		}).
		Create(model)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	// A row exists; take it over only if its holder expired.
	takeover := l.db.WithContext(ctx).
		Model(&models.RunLockModel{}).
		Where("flow = ? AND expires_at <= ?", flow.String(), now).
		Updates(map[string]any{
			"acquired_at": now,
			"expires_at":  now.Add(ttl),
		})
	if takeover.Error != nil {
		return takeover.Error
	}
	if takeover.RowsAffected == 0 {
		return tracking.ErrRunLocked
	}
	return nil
}

// Release drops the lock for the flow
func (l *GormRunLock) Release(ctx context.Context, flow tracking.Flow) error {
	return l.db.WithContext(ctx).Delete(&models.RunLockModel{}, "flow = ?", flow.String()).Error
}

// Ensure GormRunLock implements RunLock
var _ tracking.RunLock = (*GormRunLock)(nil)
