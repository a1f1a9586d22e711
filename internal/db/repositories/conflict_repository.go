package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/models/entities"
)

// ConflictRepo handles conflict_records table operations
type ConflictRepo struct {
	db *gormlib.DB
}

// NewConflictRepo creates a new conflict repository
func NewConflictRepo(db *gormlib.DB) *ConflictRepo {
	return &ConflictRepo{db: db}
}

// Record persists a new unresolved conflict
func (r *ConflictRepo) Record(ctx context.Context, rec *entities.ConflictRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(rec).Error
}

// FindOpen returns the unresolved conflict with the given id, or nil
func (r *ConflictRepo) FindOpen(ctx context.Context, id string) (*entities.ConflictRecord, error) {
	var rec entities.ConflictRecord
	err := r.db.WithContext(ctx).
		Where("id = ? AND resolved = ?", id, false).
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// ListOpen returns all unresolved conflicts, oldest first
func (r *ConflictRepo) ListOpen(ctx context.Context) ([]entities.ConflictRecord, error) {
	var recs []entities.ConflictRecord
	err := r.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at ASC").
		Find(&recs).Error
	return recs, err
}

// HasOpenForEntity reports whether an unresolved conflict blocks the entity
func (r *ConflictRepo) HasOpenForEntity(ctx context.Context, entityID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.ConflictRecord{}).
		Where("entity_id = ? AND resolved = ?", entityID, false).
		Count(&count).Error
	return count > 0, err
}

// CountOpen returns the number of unresolved conflicts
func (r *ConflictRepo) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.ConflictRecord{}).
		Where("resolved = ?", false).
		Count(&count).Error
	return count, err
}

// MarkResolved stores the outcome of a resolution
func (r *ConflictRepo) MarkResolved(ctx context.Context, id string, winner string, resolvedPayload []byte) error {
	now := time.Now().UTC()
	return r.db.WithContext(ctx).
		Model(&entities.ConflictRecord{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"resolved":         true,
			"winner":           winner,
			"resolved_payload": resolvedPayload,
			"resolved_at":      &now,
		}).Error
}
