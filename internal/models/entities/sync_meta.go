package entities

import "time"

// SyncStatus tracks where an entity sits in the sync lifecycle
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "pending"
	SyncStatusSyncing  SyncStatus = "syncing"
	SyncStatusSynced   SyncStatus = "synced"
	SyncStatusConflict SyncStatus = "conflict"
	SyncStatusError    SyncStatus = "error"
)

// SyncMeta is embedded in every domain record. SyncVersion increases by
// exactly 1 on every locally-committed mutation; LastSyncedAt is non-nil
// iff the status is synced or conflict.
type SyncMeta struct {
	ID        string    `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`

	SyncStatus   SyncStatus `gorm:"column:sync_status;type:varchar(20);not null;default:pending" json:"sync_status"`
	LastSyncedAt *time.Time `gorm:"column:last_synced_at" json:"last_synced_at,omitempty"`
	SyncVersion  int64      `gorm:"column:sync_version;not null;default:1" json:"sync_version"`

	// Tombstone: a delete is tracked, not applied, until the remote confirms
	Deleted bool `gorm:"column:deleted;not null;default:false" json:"deleted,omitempty"`
}

// Meta exposes the embedded metadata through the Entity interface
func (m *SyncMeta) Meta() *SyncMeta { return m }

// Entity is implemented by every domain record the store manages
type Entity interface {
	Meta() *SyncMeta
	EntityType() string
	TableName() string
}
