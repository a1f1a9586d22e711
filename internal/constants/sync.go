package constants

// Sync event names emitted on the engine's event feed
const (
	SyncEventPushAcked      = "PUSH_ACKED"
	SyncEventPushRequeued   = "PUSH_REQUEUED"
	SyncEventPushRejected   = "PUSH_REJECTED"
	SyncEventRetryExhausted = "RETRY_EXHAUSTED"
	SyncEventPullApplied    = "PULL_APPLIED"
	SyncEventConflict       = "CONFLICT_DETECTED"
	SyncEventResolved       = "CONFLICT_RESOLVED"
	SyncEventCycleComplete  = "CYCLE_COMPLETE"
)

// Defaults for sync engine tuning, overridable via config
const (
	DefaultBatchSize     = 25
	DefaultRetryCeiling  = 5
	DefaultSyncInterval  = 30 // seconds
	DefaultPushTimeout   = 30 // seconds
	DefaultProbeInterval = 15 // seconds
	DefaultProbeTimeout  = 5  // seconds
)
