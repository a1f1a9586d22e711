package entities

import "time"

// SyncCheckpoint tracks the last successful pull per entity type so an
// interrupted sync resumes instead of restarting
type SyncCheckpoint struct {
	EntityType   string     `gorm:"column:entity_type;primaryKey;type:varchar(30)" json:"entity_type"`
	LastPulledAt *time.Time `gorm:"column:last_pulled_at" json:"last_pulled_at,omitempty"`
	UpdatedAt    time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (SyncCheckpoint) TableName() string { return "sync_checkpoints" }
