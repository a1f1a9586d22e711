package services

import (
	"encoding/json"
	"fmt"
	"time"

	"lotusflow/studiosync/internal/models/dtos"
)

// Strategy selects how divergent local/remote state is reconciled
type Strategy string

const (
	StrategyLastWriteWins Strategy = "last-write-wins"
	StrategyFieldMerge    Strategy = "field-merge"
	StrategyManual        Strategy = "manual"
)

// LocalSnapshot is the local side of a conflict: the entity's payload and
// metadata at the moment the collision was detected
type LocalSnapshot struct {
	Payload   json.RawMessage
	Version   int64
	UpdatedAt time.Time
}

// Outcome is the resolver's decision. Manual outcomes carry no payload; the
// entity blocks until a human chooses through the API. A Delete outcome means
// the remote's tombstone won and the local record goes away.
type Outcome struct {
	Payload json.RawMessage
	Version int64
	Winner  string // "local", "remote", or "merged"
	Manual  bool
	Delete  bool
}

// ConflictResolver applies the configured strategy deterministically:
// identical inputs always produce byte-identical outcomes.
type ConflictResolver struct {
	strategy Strategy
}

// NewConflictResolver creates a resolver with the given strategy
func NewConflictResolver(strategy Strategy) *ConflictResolver {
	if strategy == "" {
		strategy = StrategyLastWriteWins
	}
	return &ConflictResolver{strategy: strategy}
}

// Strategy returns the configured strategy name
func (r *ConflictResolver) Strategy() Strategy { return r.strategy }

// Resolve adjudicates one collision. Whatever wins, the result's version is
// one greater than the max of the two inputs so both sides converge on it.
func (r *ConflictResolver) Resolve(local LocalSnapshot, remote dtos.RemoteRecord) (*Outcome, error) {
	version := maxInt64(local.Version, remote.ServerVersion) + 1

	// A remote tombstone resolves by recency regardless of strategy: fields
	// cannot merge with a deletion, and reviewing a record the remote already
	// removed helps nobody. A newer local edit survives and restores it.
	if remote.Deleted {
		if remote.ServerTimestamp.After(local.UpdatedAt) {
			return &Outcome{Version: version, Winner: "remote", Delete: true}, nil
		}
		return &Outcome{Payload: local.Payload, Version: version, Winner: "local"}, nil
	}

	switch r.strategy {
	case StrategyManual:
		return &Outcome{Manual: true, Version: version}, nil

	case StrategyFieldMerge:
		payload, winner, err := mergeFields(local, remote)
		if err != nil {
			return nil, err
		}
		return &Outcome{Payload: payload, Version: version, Winner: winner}, nil

	default: // last-write-wins by updatedAt, exact tie favors local
		if remote.ServerTimestamp.After(local.UpdatedAt) {
			return &Outcome{Payload: remote.Payload, Version: version, Winner: "remote"}, nil
		}
		return &Outcome{Payload: local.Payload, Version: version, Winner: "local"}, nil
	}
}

// mergeFields unions the two payloads' fields; where both set a field, the
// side with the later timestamp wins. Output is deterministic because Go
// marshals map keys in sorted order.
func mergeFields(local LocalSnapshot, remote dtos.RemoteRecord) (json.RawMessage, string, error) {
	var localFields, remoteFields map[string]interface{}
	if err := json.Unmarshal(local.Payload, &localFields); err != nil {
		return nil, "", fmt.Errorf("failed to decode local payload: %w", err)
	}
	if err := json.Unmarshal(remote.Payload, &remoteFields); err != nil {
		return nil, "", fmt.Errorf("failed to decode remote payload: %w", err)
	}

	older, newer := localFields, remoteFields
	if !remote.ServerTimestamp.After(local.UpdatedAt) {
		older, newer = remoteFields, localFields
	}

	merged := make(map[string]interface{}, len(older)+len(newer))
	for k, v := range older {
		merged[k] = v
	}
	for k, v := range newer {
		merged[k] = v
	}

	out, err := json.Marshal(merged)
	if err != nil {
		return nil, "", fmt.Errorf("failed to encode merged payload: %w", err)
	}
	return out, "merged", nil
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
