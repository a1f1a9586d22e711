package entities

import "time"

// ConflictRecord captures a divergence between local and remote state that
// requires (or received) resolution. Persisted so manual conflicts survive
// restarts.
type ConflictRecord struct {
	ID         string `gorm:"column:id;primaryKey;type:uuid" json:"id"`
	EntityType string `gorm:"column:entity_type;type:varchar(30);not null" json:"entity_type"`
	EntityID   string `gorm:"column:entity_id;type:uuid;not null;index:idx_conflicts_entity" json:"entity_id"`

	LocalPayload  []byte `gorm:"column:local_payload;not null" json:"local_payload"`
	RemotePayload []byte `gorm:"column:remote_payload;not null" json:"remote_payload"`
	LocalVersion  int64  `gorm:"column:local_version;not null" json:"local_version"`
	RemoteVersion int64  `gorm:"column:remote_version;not null" json:"remote_version"`

	Strategy        string     `gorm:"column:strategy;type:varchar(30);not null" json:"strategy"`
	Resolved        bool       `gorm:"column:resolved;not null;default:false;index:idx_conflicts_resolved" json:"resolved"`
	ResolvedPayload []byte     `gorm:"column:resolved_payload" json:"resolved_payload,omitempty"`
	Winner          string     `gorm:"column:winner;type:varchar(10)" json:"winner,omitempty"`
	CreatedAt       time.Time  `gorm:"column:created_at" json:"created_at"`
	ResolvedAt      *time.Time `gorm:"column:resolved_at" json:"resolved_at,omitempty"`
}

func (ConflictRecord) TableName() string { return "conflict_records" }
