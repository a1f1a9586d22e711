package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	gormlib "gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lotusflow/studiosync/internal/common"
	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/models/dtos"
	"lotusflow/studiosync/internal/models/entities"
)

// EntityStore is the exclusive write authority for every domain record.
// All mutations flow through it so the change tracker always observes them;
// reads never block on sync activity.
type EntityStore struct {
	db      *gormlib.DB
	tracker *ChangeTracker
	queue   *repositories.SyncQueueRepo
	cache   *listCache
	now     func() time.Time
}

// NewEntityStore creates a new entity store
func NewEntityStore(db *gormlib.DB, tracker *ChangeTracker, queue *repositories.SyncQueueRepo) *EntityStore {
	return &EntityStore{
		db:      db,
		tracker: tracker,
		queue:   queue,
		cache:   newListCache(30*time.Second, time.Minute),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for read-only composition (health checks)
func (s *EntityStore) DB() *gormlib.DB { return s.db }

// Create assigns identity and sync metadata, persists the entity, and
// enqueues its create operation in the same transaction.
func (s *EntityStore) Create(ctx context.Context, e entities.Entity) error {
	meta := e.Meta()
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	now := s.now()
	meta.CreatedAt = now
	meta.UpdatedAt = now
	meta.SyncVersion = 1
	meta.SyncStatus = entities.SyncStatusPending
	meta.LastSyncedAt = nil
	meta.Deleted = false

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		if err := tx.Create(e).Error; err != nil {
			return err
		}
		return s.tracker.RecordCreate(tx, e)
	})
	if err != nil {
		return &common.PersistenceError{Op: "create " + e.EntityType(), Err: err}
	}

	s.cache.Invalidate(e.EntityType())
	return nil
}

// Update persists a field-level mutation. The entity must carry the sync
// version the caller read; a mismatch against the stored version rejects the
// call with a ConcurrentModificationError and changes nothing.
func (s *EntityStore) Update(ctx context.Context, e entities.Entity) error {
	meta := e.Meta()
	callerVersion := meta.SyncVersion

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		current, err := s.load(tx, e.EntityType(), meta.ID)
		if err != nil {
			return err
		}

		cur := current.Meta()
		if cur.SyncVersion != callerVersion {
			return &common.ConcurrentModificationError{
				EntityType: e.EntityType(),
				EntityID:   meta.ID,
				Expected:   callerVersion,
				Actual:     cur.SyncVersion,
			}
		}

		meta.CreatedAt = cur.CreatedAt
		meta.LastSyncedAt = cur.LastSyncedAt
		meta.UpdatedAt = s.now()
		meta.SyncVersion = cur.SyncVersion + 1
		meta.SyncStatus = entities.SyncStatusPending
		meta.Deleted = false

		if err := tx.Save(e).Error; err != nil {
			return err
		}
		return s.tracker.RecordUpdate(tx, e)
	})
	if err != nil {
		return s.classify(err, "update "+e.EntityType())
	}

	s.cache.Invalidate(e.EntityType())
	return nil
}

// Delete tracks a tombstone delete for entities the remote has seen, so the
// removal propagates before storage is reclaimed. An entity that was never
// synced is removed physically right away; there is nothing to reconcile.
func (s *EntityStore) Delete(ctx context.Context, e entities.Entity) error {
	meta := e.Meta()

	err := s.db.WithContext(ctx).Transaction(func(tx *gormlib.DB) error {
		current, err := s.load(tx, e.EntityType(), meta.ID)
		if err != nil {
			return err
		}
		cur := current.Meta()

		if cur.LastSyncedAt == nil {
			if err := s.queue.DropPendingForEntity(tx, meta.ID); err != nil {
				return err
			}
			return tx.Delete(current).Error
		}

		cur.Deleted = true
		cur.UpdatedAt = s.now()
		cur.SyncVersion++
		cur.SyncStatus = entities.SyncStatusPending
		if err := tx.Save(current).Error; err != nil {
			return err
		}
		return s.tracker.RecordDelete(tx, current)
	})
	if err != nil {
		return s.classify(err, "delete "+e.EntityType())
	}

	s.cache.Invalidate(e.EntityType())
	return nil
}

// Get returns the live (non-tombstoned) entity with the given id
func (s *EntityStore) Get(ctx context.Context, entityType string, id string) (entities.Entity, error) {
	proto, err := entities.Prototype(entityType)
	if err != nil {
		return nil, err
	}
	err = s.db.WithContext(ctx).
		Where("id = ? AND deleted = ?", id, false).
		First(proto).Error
	if err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, &common.PersistenceError{Op: "get " + entityType, Err: err}
	}
	return proto, nil
}

// List returns a snapshot of every live entity of a type. Results are cached
// briefly; any write to the type invalidates the cache.
func (s *EntityStore) List(ctx context.Context, entityType string) ([]entities.Entity, error) {
	if cached, found := s.cache.Get(entityType); found {
		if items, ok := cached.([]entities.Entity); ok {
			return items, nil
		}
	}

	proto, err := entities.Prototype(entityType)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.WithContext(ctx).
		Model(proto).
		Where("deleted = ?", false).
		Order("created_at ASC").
		Rows()
	if err != nil {
		return nil, &common.PersistenceError{Op: "list " + entityType, Err: err}
	}
	defer rows.Close()

	out := make([]entities.Entity, 0)
	for rows.Next() {
		item, _ := entities.Prototype(entityType)
		if err := s.db.ScanRows(rows, item); err != nil {
			return nil, &common.PersistenceError{Op: "list " + entityType, Err: err}
		}
		out = append(out, item)
	}

	s.cache.Set(entityType, out)
	return out, nil
}

// PhysicalDelete reclaims storage for a tombstoned entity once its delete
// operation has been acknowledged by the remote.
func (s *EntityStore) PhysicalDelete(ctx context.Context, entityType string, id string) error {
	proto, err := entities.Prototype(entityType)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Where("id = ?", id).Delete(proto).Error; err != nil {
		return &common.PersistenceError{Op: "physical delete " + entityType, Err: err}
	}
	s.cache.Invalidate(entityType)
	return nil
}

// MarkSyncOutcome records the result of a push for an entity. The engine
// only passes synced when no newer pending operation exists, so a local edit
// made while the push was in flight stays visible as pending.
func (s *EntityStore) MarkSyncOutcome(ctx context.Context, entityType string, id string, status entities.SyncStatus) error {
	proto, err := entities.Prototype(entityType)
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"sync_status": status}
	if status == entities.SyncStatusSynced || status == entities.SyncStatusConflict {
		now := s.now()
		updates["last_synced_at"] = &now
	}

	if err := s.db.WithContext(ctx).
		Model(proto).
		Where("id = ?", id).
		Updates(updates).Error; err != nil {
		return &common.PersistenceError{Op: "mark " + entityType, Err: err}
	}
	s.cache.Invalidate(entityType)
	return nil
}

// ApplyRemote writes a pulled remote record into the store, bypassing the
// change tracker: remote state is already synced by definition. A deleted
// remote record removes the local row.
func (s *EntityStore) ApplyRemote(ctx context.Context, entityType string, rec dtos.RemoteRecord) error {
	proto, err := entities.Prototype(entityType)
	if err != nil {
		return err
	}

	if rec.Deleted {
		if err := s.db.WithContext(ctx).Where("id = ?", rec.ID).Delete(proto).Error; err != nil {
			return &common.PersistenceError{Op: "apply remote delete " + entityType, Err: err}
		}
		s.cache.Invalidate(entityType)
		return nil
	}

	if err := json.Unmarshal(rec.Payload, proto); err != nil {
		return fmt.Errorf("failed to decode remote %s %s: %w", entityType, rec.ID, err)
	}

	now := s.now()
	meta := proto.Meta()
	meta.ID = rec.ID
	meta.SyncVersion = rec.ServerVersion
	meta.SyncStatus = entities.SyncStatusSynced
	meta.LastSyncedAt = &now
	meta.Deleted = false
	meta.UpdatedAt = rec.ServerTimestamp
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = rec.ServerTimestamp
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(proto).Error
	if err != nil {
		return &common.PersistenceError{Op: "apply remote " + entityType, Err: err}
	}

	s.cache.Invalidate(entityType)
	return nil
}

// ApplyResolved writes a conflict resolution outcome: the chosen snapshot
// with a fresh version one past both inputs, status synced.
func (s *EntityStore) ApplyResolved(ctx context.Context, entityType string, id string, payload []byte, version int64) error {
	proto, err := entities.Prototype(entityType)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, proto); err != nil {
		return fmt.Errorf("failed to decode resolved %s %s: %w", entityType, id, err)
	}

	now := s.now()
	meta := proto.Meta()
	meta.ID = id
	meta.SyncVersion = version
	meta.SyncStatus = entities.SyncStatusSynced
	meta.LastSyncedAt = &now
	meta.Deleted = false
	meta.UpdatedAt = now
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = now
	}

	err = s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).
		Create(proto).Error
	if err != nil {
		return &common.PersistenceError{Op: "apply resolved " + entityType, Err: err}
	}

	s.cache.Invalidate(entityType)
	return nil
}

// CountInError returns how many entities across all types sit in error or
// conflict status, for the queue monitor gauge.
func (s *EntityStore) CountInError(ctx context.Context) (int64, error) {
	var total int64
	for _, proto := range entities.AllPrototypes() {
		var count int64
		err := s.db.WithContext(ctx).
			Model(proto).
			Where("sync_status IN ?", []entities.SyncStatus{entities.SyncStatusError, entities.SyncStatusConflict}).
			Count(&count).Error
		if err != nil {
			return 0, err
		}
		total += count
	}
	return total, nil
}

func (s *EntityStore) load(tx *gormlib.DB, entityType string, id string) (entities.Entity, error) {
	proto, err := entities.Prototype(entityType)
	if err != nil {
		return nil, err
	}
	if err := tx.Where("id = ?", id).First(proto).Error; err != nil {
		if errors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}
	return proto, nil
}

func (s *EntityStore) classify(err error, op string) error {
	var cme *common.ConcurrentModificationError
	if errors.Is(err, common.ErrNotFound) || errors.As(err, &cme) {
		return err
	}
	return &common.PersistenceError{Op: op, Err: err}
}
