package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/models/entities"
)

// SyncQueueRepo owns the sync_operations table. It is the single shared
// resource between the foreground write path and the background drain loop;
// nothing touches the table except through these methods.
type SyncQueueRepo struct {
	db *gormlib.DB
}

// NewSyncQueueRepo creates a new sync queue repository
func NewSyncQueueRepo(db *gormlib.DB) *SyncQueueRepo {
	return &SyncQueueRepo{db: db}
}

// ActivePendingOp returns the pending (not yet syncing) operation for an
// entity id, or nil. Runs on the given handle so the change tracker can call
// it inside the store's write transaction.
func (r *SyncQueueRepo) ActivePendingOp(tx *gormlib.DB, entityID string) (*entities.SyncOperation, error) {
	var op entities.SyncOperation
	err := tx.
		Where("entity_id = ? AND status = ?", entityID, entities.SyncStatusPending).
		First(&op).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &op, nil
}

// Insert appends a new operation at the back of the queue
func (r *SyncQueueRepo) Insert(tx *gormlib.DB, op *entities.SyncOperation) error {
	if op.ID == "" {
		op.ID = uuid.NewString()
	}
	if op.EnqueuedAt.IsZero() {
		op.EnqueuedAt = time.Now().UTC()
	}
	op.Status = entities.SyncStatusPending

	pos, err := r.backPosition(tx)
	if err != nil {
		return err
	}
	op.Position = pos

	return tx.Create(op).Error
}

// Save persists changes to an existing operation (coalesced payload, kind)
func (r *SyncQueueRepo) Save(tx *gormlib.DB, op *entities.SyncOperation) error {
	return tx.Save(op).Error
}

// DropPendingForEntity removes any pending operation for an entity id. Used
// when a never-synced entity is deleted: there is nothing to reconcile.
func (r *SyncQueueRepo) DropPendingForEntity(tx *gormlib.DB, entityID string) error {
	return tx.
		Where("entity_id = ? AND status = ?", entityID, entities.SyncStatusPending).
		Delete(&entities.SyncOperation{}).Error
}

// DequeueBatch returns up to maxSize pending operations in enqueue order and
// marks them syncing, so local edits arriving meanwhile layer a fresh pending
// op instead of mutating an in-flight payload.
func (r *SyncQueueRepo) DequeueBatch(ctx context.Context, maxSize int) ([]entities.SyncOperation, error) {
	var batch []entities.SyncOperation

	err := r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		if err := tx.
			Where("status = ?", entities.SyncStatusPending).
			Order("position ASC").
			Limit(maxSize).
			Find(&batch).Error; err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		ids := make([]string, 0, len(batch))
		for i := range batch {
			ids = append(ids, batch[i].ID)
			batch[i].Status = entities.SyncStatusSyncing
		}
		return tx.Model(&entities.SyncOperation{}).
			Where("id IN ?", ids).
			Update("status", entities.SyncStatusSyncing).Error
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue batch: %w", err)
	}

	return batch, nil
}

// Acknowledge removes an operation after the remote confirmed it. A second
// acknowledge of the same id is a no-op.
func (r *SyncQueueRepo) Acknowledge(ctx context.Context, opID string) error {
	return r.db.WithContext(ctx).
		Where("id = ?", opID).
		Delete(&entities.SyncOperation{}).Error
}

// Requeue returns a failed operation to the front of the queue, so retries
// run before newer work and the original ordering intent holds. Returns
// exceeded=true once the attempt count passes the ceiling, in which case the
// operation is removed and the caller flags the entity instead.
func (r *SyncQueueRepo) Requeue(ctx context.Context, opID string, cause error, ceiling int) (exceeded bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		var op entities.SyncOperation
		if err := tx.Where("id = ?", opID).First(&op).Error; err != nil {
			if errors.Is(err, gormlib.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		op.Attempts++
		msg := cause.Error()
		op.LastError = &msg

		if op.Attempts >= ceiling {
			exceeded = true
			return tx.Delete(&op).Error
		}

		pos, err := r.frontPosition(tx)
		if err != nil {
			return err
		}
		op.Position = pos
		op.Status = entities.SyncStatusPending
		return tx.Save(&op).Error
	})
	if err != nil {
		return false, fmt.Errorf("failed to requeue operation %s: %w", opID, err)
	}
	return exceeded, nil
}

// Release reverts untransmitted syncing operations to pending, positions
// preserved and no attempt counted. The drain loop calls it when it stops
// early with part of a dequeued batch still unsent; without it those ops
// would sit in syncing until the next process restart.
func (r *SyncQueueRepo) Release(ctx context.Context, opIDs []string) error {
	if len(opIDs) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).
		Model(&entities.SyncOperation{}).
		Where("id IN ? AND status = ?", opIDs, entities.SyncStatusSyncing).
		Update("status", entities.SyncStatusPending).Error
	if err != nil {
		return fmt.Errorf("failed to release operations: %w", err)
	}
	return nil
}

// RecoverInFlight reverts syncing operations to pending. Called once at
// startup: their network outcome is unknown, so they must run again.
func (r *SyncQueueRepo) RecoverInFlight(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&entities.SyncOperation{}).
		Where("status = ?", entities.SyncStatusSyncing).
		Update("status", entities.SyncStatusPending)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to recover in-flight operations: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Depth returns the number of operations still awaiting acknowledgement
func (r *SyncQueueRepo) Depth(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.SyncOperation{}).
		Count(&count).Error
	return count, err
}

// HasActiveOp reports whether any queued operation (pending or syncing)
// exists for the entity id. The pull path uses it to detect collisions.
func (r *SyncQueueRepo) HasActiveOp(ctx context.Context, entityID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entities.SyncOperation{}).
		Where("entity_id = ?", entityID).
		Count(&count).Error
	return count > 0, err
}

func (r *SyncQueueRepo) backPosition(tx *gormlib.DB) (int64, error) {
	var max *int64
	if err := tx.Model(&entities.SyncOperation{}).
		Select("MAX(position)").Scan(&max).Error; err != nil {
		return 0, err
	}
	if max == nil {
		return 1, nil
	}
	return *max + 1, nil
}

func (r *SyncQueueRepo) frontPosition(tx *gormlib.DB) (int64, error) {
	var min *int64
	if err := tx.Model(&entities.SyncOperation{}).
		Select("MIN(position)").Scan(&min).Error; err != nil {
		return 0, err
	}
	if min == nil {
		return 1, nil
	}
	return *min - 1, nil
}
