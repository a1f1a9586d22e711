package constants

const (
	StatusError            = "Error"
	StatusNotFound         = "Entity not found"
	StatusStaleVersion     = "Entity was modified since it was read"
	StatusInvalidBody      = "Invalid request body"
	StatusUnknownType      = "Unknown entity type"
	StatusConflictPending  = "Entity has an unresolved conflict"
	StatusSyncTriggered    = "Sync cycle triggered"
	StatusSyncOffline      = "Sync skipped: offline"
	StatusConflictResolved = "Conflict resolved"
)

const (
	MsgQueueCorrupt     = "Sync queue entry references an unknown entity"
	MsgInvalidChoice    = "Resolution choice must be 'local' or 'remote'"
	MsgConflictGone     = "Conflict record not found or already resolved"
	MsgStoreUnavailable = "Local storage is unavailable"
)
