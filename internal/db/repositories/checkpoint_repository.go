package repositories

import (
	"context"
	"errors"
	"time"

	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/models/entities"
)

// CheckpointRepo tracks the last successful pull per entity type
type CheckpointRepo struct {
	db *gormlib.DB
}

// NewCheckpointRepo creates a new checkpoint repository
func NewCheckpointRepo(db *gormlib.DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// LastPulledAt returns the pull cursor for an entity type, or nil if that
// type has never been pulled
func (r *CheckpointRepo) LastPulledAt(ctx context.Context, entityType string) (*time.Time, error) {
	var cp entities.SyncCheckpoint
	err := r.db.WithContext(ctx).
		Where("entity_type = ?", entityType).
		First(&cp).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cp.LastPulledAt, nil
}

// Advance moves the cursor forward. A cursor never moves backwards, so a
// partially-applied pull is re-fetched rather than skipped.
func (r *CheckpointRepo) Advance(ctx context.Context, entityType string, pulledAt time.Time) error {
	cp := entities.SyncCheckpoint{
		EntityType:   entityType,
		LastPulledAt: &pulledAt,
		UpdatedAt:    time.Now().UTC(),
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		var existing entities.SyncCheckpoint
		err := tx.Where("entity_type = ?", entityType).First(&existing).Error
		if err != nil {
			if errors.Is(err, gormlib.ErrRecordNotFound) {
				return tx.Create(&cp).Error
			}
			return err
		}
		if existing.LastPulledAt != nil && !pulledAt.After(*existing.LastPulledAt) {
			return nil
		}
		return tx.Model(&entities.SyncCheckpoint{}).
			Where("entity_type = ?", entityType).
			Updates(map[string]interface{}{
				"last_pulled_at": &pulledAt,
				"updated_at":     cp.UpdatedAt,
			}).Error
	})
}
