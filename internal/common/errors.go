package common

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an entity id is unknown to the store
var ErrNotFound = errors.New("entity not found")

// PersistenceError wraps a local storage failure. It is fatal to the calling
// operation and never retried automatically.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ConcurrentModificationError is returned when a write carries a stale
// sync version (optimistic concurrency check failed).
type ConcurrentModificationError struct {
	EntityType string
	EntityID   string
	Expected   int64
	Actual     int64
}

func (e *ConcurrentModificationError) Error() string {
	return fmt.Sprintf("concurrent modification of %s %s: caller read version %d, store has %d",
		e.EntityType, e.EntityID, e.Expected, e.Actual)
}

// NetworkError wraps a transient remote failure (timeout, 5xx, 429). The
// sync engine requeues the operation with backoff.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network failure during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ValidationError is a permanent rejection from the remote (4xx). The
// operation is dropped and the entity flagged; never auto-retried.
type ValidationError struct {
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("remote rejected payload [%s]: %s", e.Code, e.Message)
}

// IsTransient reports whether err should drive a requeue rather than a
// permanent failure.
func IsTransient(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}
