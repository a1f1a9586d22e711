package providers

import (
	"context"
	"fmt"
	"time"

	"lotusflow/studiosync/internal/models/dtos"
)

// RemoteProvider is the contract the sync engine requires of any backend.
// Push transmits one operation; Pull fetches records modified since the
// cursor. Both classify failures through the common error taxonomy.
type RemoteProvider interface {
	// Push sends one operation's snapshot. Errors are *common.NetworkError
	// (transient), *common.ValidationError (permanent), or *RemoteConflictError.
	Push(ctx context.Context, entityType string, kind string, req dtos.PushRequest) (*dtos.PushResponse, error)

	// Pull fetches records of one type modified since the given time. A nil
	// since means everything.
	Pull(ctx context.Context, entityType string, since *time.Time) ([]dtos.RemoteRecord, error)
}

// RemoteConflictError signals that the remote holds a version the local
// change did not build on. Not a failure: a normal branch into resolution.
type RemoteConflictError struct {
	Remote dtos.RemoteRecord
}

func (e *RemoteConflictError) Error() string {
	return fmt.Sprintf("remote holds newer version %d of %s", e.Remote.ServerVersion, e.Remote.ID)
}
