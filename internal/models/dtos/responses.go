package dtos

import (
	"time"

	"lotusflow/studiosync/internal/models/entities"
)

// APIResponse is the envelope every local API endpoint returns
type APIResponse[T any] struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
	Data      *T        `json:"data,omitempty"`
}

// SyncStatusResponse reports the engine, queue and connectivity state
type SyncStatusResponse struct {
	EngineState     string     `json:"engine_state"`
	QueueDepth      int64      `json:"queue_depth"`
	EntitiesInError int64      `json:"entities_in_error"`
	OpenConflicts   int64      `json:"open_conflicts"`
	Online          bool       `json:"online"`
	Quality         string     `json:"quality"`
	LastCycleAt     *time.Time `json:"last_cycle_at,omitempty"`
}

// ConflictResponse is one open conflict as shown to the UI layer
type ConflictResponse struct {
	ID            string    `json:"id"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	LocalVersion  int64     `json:"local_version"`
	RemoteVersion int64     `json:"remote_version"`
	CreatedAt     time.Time `json:"created_at"`
}

// ResolveConflictRequest carries the human decision for a manual conflict
type ResolveConflictRequest struct {
	Choice string `json:"choice"` // "local" or "remote"
}

// EntityListResponse wraps a list query result
type EntityListResponse struct {
	EntityType string            `json:"entity_type"`
	Count      int               `json:"count"`
	Items      []entities.Entity `json:"items"`
}
