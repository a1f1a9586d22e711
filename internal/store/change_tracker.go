package store

import (
	"encoding/json"
	"fmt"

	gormlib "gorm.io/gorm"

	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/metrics"
	"lotusflow/studiosync/internal/models/entities"
)

// ChangeTracker translates store writes into durable sync operations. Every
// method runs on the store's own write transaction, so an entity change and
// its queue entry commit or roll back together.
type ChangeTracker struct {
	queue   *repositories.SyncQueueRepo
	metrics *metrics.MetricsRegistry
}

// NewChangeTracker creates a new change tracker
func NewChangeTracker(queue *repositories.SyncQueueRepo, reg *metrics.MetricsRegistry) *ChangeTracker {
	return &ChangeTracker{queue: queue, metrics: reg}
}

// RecordCreate enqueues a create operation for a newly stored entity
func (t *ChangeTracker) RecordCreate(tx *gormlib.DB, e entities.Entity) error {
	return t.record(tx, e, entities.OpCreate)
}

// RecordUpdate enqueues an update, coalescing into the entity's pending
// operation if one exists. An operation already marked syncing is never
// touched; the new edit layers a fresh pending op behind it.
func (t *ChangeTracker) RecordUpdate(tx *gormlib.DB, e entities.Entity) error {
	return t.record(tx, e, entities.OpUpdate)
}

// RecordDelete enqueues a tombstone delete operation
func (t *ChangeTracker) RecordDelete(tx *gormlib.DB, e entities.Entity) error {
	return t.record(tx, e, entities.OpDelete)
}

func (t *ChangeTracker) record(tx *gormlib.DB, e entities.Entity, kind entities.OpKind) error {
	meta := e.Meta()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to snapshot %s %s: %w", e.EntityType(), meta.ID, err)
	}

	active, err := t.queue.ActivePendingOp(tx, meta.ID)
	if err != nil {
		return err
	}

	if active == nil {
		op := &entities.SyncOperation{
			EntityType:    e.EntityType(),
			EntityID:      meta.ID,
			Kind:          kind,
			Payload:       payload,
			ClientVersion: meta.SyncVersion,
		}
		if err := t.queue.Insert(tx, op); err != nil {
			return err
		}
		if t.metrics != nil {
			t.metrics.OpsEnqueuedTotal.WithLabelValues(e.EntityType(), string(kind)).Inc()
		}
		return nil
	}

	// Coalescing rules: anything after a delete stays a delete,
	// update-after-create stays a create with the newest payload, everything
	// else becomes an update with the newest payload.
	switch {
	case active.Kind == entities.OpDelete:
		// delete already queued; nothing newer changes the intent
	case kind == entities.OpDelete:
		active.Kind = entities.OpDelete
		active.Payload = payload
	case active.Kind == entities.OpCreate:
		active.Payload = payload
	default:
		active.Kind = entities.OpUpdate
		active.Payload = payload
	}
	active.ClientVersion = meta.SyncVersion

	return t.queue.Save(tx, active)
}
