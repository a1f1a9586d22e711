package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"lotusflow/studiosync/internal/common"
	"lotusflow/studiosync/internal/db/repositories"
	"lotusflow/studiosync/internal/models/dtos"
	"lotusflow/studiosync/internal/models/entities"
)

// Setup test database
func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(&entities.SyncOperation{}, &entities.Member{}); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return db
}

func setupStore(t *testing.T) (*EntityStore, *repositories.SyncQueueRepo, *gorm.DB) {
	db := setupTestDB(t)
	queue := repositories.NewSyncQueueRepo(db)
	tracker := NewChangeTracker(queue, nil)
	return NewEntityStore(db, tracker, queue), queue, db
}

func pendingOps(t *testing.T, db *gorm.DB, entityID string) []entities.SyncOperation {
	var ops []entities.SyncOperation
	if err := db.Where("entity_id = ?", entityID).Order("position ASC").Find(&ops).Error; err != nil {
		t.Fatalf("Failed to read ops: %v", err)
	}
	return ops
}

func TestEntityStore_Create_EnqueuesOneOp(t *testing.T) {
	st, _, db := setupStore(t)
	ctx := context.Background()

	m := &entities.Member{FirstName: "Asha", LastName: "Rao", Email: "asha@example.com"}
	if err := st.Create(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if m.ID == "" {
		t.Fatal("Expected an assigned id")
	}
	if m.SyncVersion != 1 {
		t.Errorf("Expected sync version 1, got %d", m.SyncVersion)
	}
	if m.SyncStatus != entities.SyncStatusPending {
		t.Errorf("Expected pending status, got %s", m.SyncStatus)
	}
	if m.LastSyncedAt != nil {
		t.Error("Expected last synced at to be nil for a new entity")
	}

	ops := pendingOps(t, db, m.ID)
	if len(ops) != 1 {
		t.Fatalf("Expected 1 queued op, got %d", len(ops))
	}
	if ops[0].Kind != entities.OpCreate {
		t.Errorf("Expected create op, got %s", ops[0].Kind)
	}
	if ops[0].ClientVersion != 1 {
		t.Errorf("Expected client version 1, got %d", ops[0].ClientVersion)
	}
}

func TestEntityStore_Update_CoalescesIntoPendingOp(t *testing.T) {
	st, _, db := setupStore(t)
	ctx := context.Background()

	m := &entities.Member{FirstName: "Asha", LastName: "Rao"}
	if err := st.Create(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	m.Email = "asha@example.com"
	if err := st.Update(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	m.Phone = "555-0101"
	if err := st.Update(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if m.SyncVersion != 3 {
		t.Errorf("Expected sync version 3 after two updates, got %d", m.SyncVersion)
	}

	// Two edits after a create coalesce into the single create op, carrying
	// the latest field values
	ops := pendingOps(t, db, m.ID)
	if len(ops) != 1 {
		t.Fatalf("Expected 1 coalesced op, got %d", len(ops))
	}
	if ops[0].Kind != entities.OpCreate {
		t.Errorf("Expected op to stay a create, got %s", ops[0].Kind)
	}
	if ops[0].ClientVersion != 3 {
		t.Errorf("Expected client version 3, got %d", ops[0].ClientVersion)
	}

	var snapshot entities.Member
	if err := json.Unmarshal(ops[0].Payload, &snapshot); err != nil {
		t.Fatalf("Failed to decode payload: %v", err)
	}
	if snapshot.Email != "asha@example.com" || snapshot.Phone != "555-0101" {
		t.Errorf("Expected payload to carry both edits, got %+v", snapshot)
	}
}

func TestEntityStore_Update_StaleVersionRejected(t *testing.T) {
	st, _, _ := setupStore(t)
	ctx := context.Background()

	m := &entities.Member{FirstName: "Asha", LastName: "Rao"}
	if err := st.Create(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	stale := *m // read at version 1

	m.Email = "fresh@example.com"
	if err := st.Update(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	stale.Email = "stale@example.com"
	err := st.Update(ctx, &stale)
	var cme *common.ConcurrentModificationError
	if !errors.As(err, &cme) {
		t.Fatalf("Expected ConcurrentModificationError, got %v", err)
	}
	if cme.Expected != 1 || cme.Actual != 2 {
		t.Errorf("Expected versions 1/2 in error, got %d/%d", cme.Expected, cme.Actual)
	}

	// The losing write changed nothing
	got, err := st.Get(ctx, entities.EntityTypeMember, m.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if got.(*entities.Member).Email != "fresh@example.com" {
		t.Errorf("Expected winning write preserved, got %s", got.(*entities.Member).Email)
	}
}

func TestEntityStore_Delete_NeverSyncedRemovesImmediately(t *testing.T) {
	st, _, db := setupStore(t)
	ctx := context.Background()

	m := &entities.Member{FirstName: "Asha", LastName: "Rao"}
	if err := st.Create(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := st.Delete(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Nothing to reconcile: no row, no queued op
	var count int64
	if err := db.Model(&entities.Member{}).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected row removed, found %d", count)
	}
	if ops := pendingOps(t, db, m.ID); len(ops) != 0 {
		t.Errorf("Expected no queued ops, got %d", len(ops))
	}
}

func TestEntityStore_Delete_SyncedEntityTombstones(t *testing.T) {
	st, queue, db := setupStore(t)
	ctx := context.Background()

	m := &entities.Member{FirstName: "Asha", LastName: "Rao"}
	if err := st.Create(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Simulate an acknowledged push
	ops := pendingOps(t, db, m.ID)
	if err := queue.Acknowledge(ctx, ops[0].ID); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := st.MarkSyncOutcome(ctx, entities.EntityTypeMember, m.ID, entities.SyncStatusSynced); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	if err := st.Delete(ctx, m); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	// Tombstoned, not removed: the delete must reach the remote first
	if _, err := st.Get(ctx, entities.EntityTypeMember, m.ID); !errors.Is(err, common.ErrNotFound) {
		t.Errorf("Expected tombstoned entity hidden from Get, got %v", err)
	}
	var row entities.Member
	if err := db.Where("id = ?", m.ID).First(&row).Error; err != nil {
		t.Fatalf("Expected row retained, got %v", err)
	}
	if !row.Deleted {
		t.Error("Expected deleted flag set")
	}

	ops = pendingOps(t, db, m.ID)
	if len(ops) != 1 || ops[0].Kind != entities.OpDelete {
		t.Fatalf("Expected one delete op, got %+v", ops)
	}
}

func TestEntityStore_ApplyRemote_UpsertAndDelete(t *testing.T) {
	st, _, db := setupStore(t)
	ctx := context.Background()

	payload, _ := json.Marshal(entities.Member{FirstName: "Remote", LastName: "Member"})
	rec := dtos.RemoteRecord{
		ID:              "11111111-1111-1111-1111-111111111111",
		Payload:         payload,
		ServerVersion:   4,
		ServerTimestamp: time.Now().UTC(),
	}

	if err := st.ApplyRemote(ctx, entities.EntityTypeMember, rec); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}

	got, err := st.Get(ctx, entities.EntityTypeMember, rec.ID)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	meta := got.Meta()
	if meta.SyncVersion != 4 {
		t.Errorf("Expected sync version 4, got %d", meta.SyncVersion)
	}
	if meta.SyncStatus != entities.SyncStatusSynced {
		t.Errorf("Expected synced status, got %s", meta.SyncStatus)
	}

	// Remote state bypasses the change tracker entirely
	if ops := pendingOps(t, db, rec.ID); len(ops) != 0 {
		t.Errorf("Expected no queued ops for pulled record, got %d", len(ops))
	}

	rec.Deleted = true
	if err := st.ApplyRemote(ctx, entities.EntityTypeMember, rec); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	var count int64
	if err := db.Model(&entities.Member{}).Where("id = ?", rec.ID).Count(&count).Error; err != nil {
		t.Fatalf("Failed to count: %v", err)
	}
	if count != 0 {
		t.Error("Expected remote delete to remove the local row")
	}
}

func TestEntityStore_List_ExcludesTombstonesAndInvalidatesCache(t *testing.T) {
	st, _, _ := setupStore(t)
	ctx := context.Background()

	a := &entities.Member{FirstName: "Asha", LastName: "Rao"}
	b := &entities.Member{FirstName: "Ben", LastName: "Ng"}
	for _, m := range []*entities.Member{a, b} {
		if err := st.Create(ctx, m); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	}

	members, err := st.List(ctx, entities.EntityTypeMember)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("Expected 2 members, got %d", len(members))
	}

	// The delete invalidates the cached list
	if err := st.Delete(ctx, b); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	members, err = st.List(ctx, entities.EntityTypeMember)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(members) != 1 || members[0].Meta().ID != a.ID {
		t.Errorf("Expected only the surviving member, got %d", len(members))
	}
}

func TestEntityStore_Get_UnknownID(t *testing.T) {
	st, _, _ := setupStore(t)

	_, err := st.Get(context.Background(), entities.EntityTypeMember, "22222222-2222-2222-2222-222222222222")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("Expected ErrNotFound, got %v", err)
	}
}
