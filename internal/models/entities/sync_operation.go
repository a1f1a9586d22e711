package entities

import "time"

// OpKind is the intent a sync operation carries to the remote
type OpKind string

const (
	OpCreate OpKind = "create"
	OpUpdate OpKind = "update"
	OpDelete OpKind = "delete"
)

// SyncOperation is one durable queue entry: a snapshot of an entity's state
// awaiting transmission. At most one pending operation exists per entity id;
// newer local edits coalesce into it instead of duplicating it.
type SyncOperation struct {
	ID       string `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	Position int64  `gorm:"column:position;not null;uniqueIndex:idx_sync_ops_position" json:"position"`

	EntityType string `gorm:"column:entity_type;type:varchar(30);not null" json:"entity_type"`
	EntityID   string `gorm:"column:entity_id;type:uuid;not null;index:idx_sync_ops_entity" json:"entity_id"`
	Kind       OpKind `gorm:"column:kind;type:varchar(10);not null" json:"kind"`

	// Entity field values at enqueue time
	Payload []byte `gorm:"column:payload;not null" json:"payload"`

	// The sync version the payload was committed at, sent as the client
	// version on push
	ClientVersion int64 `gorm:"column:client_version;not null" json:"client_version"`

	Status     SyncStatus `gorm:"column:status;type:varchar(20);not null;default:pending;index:idx_sync_ops_status" json:"status"`
	Attempts   int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError  *string    `gorm:"column:last_error;type:text" json:"last_error,omitempty"`
	EnqueuedAt time.Time  `gorm:"column:enqueued_at;not null" json:"enqueued_at"`
}

func (SyncOperation) TableName() string { return "sync_operations" }
