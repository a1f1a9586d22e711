package backend

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"lotusflow/studiosync/internal/models/dtos"
)

const schema = `
CREATE TABLE IF NOT EXISTS sync_records (
	entity_type      varchar(30) NOT NULL,
	id               uuid        NOT NULL,
	payload          jsonb       NOT NULL,
	server_version   bigint      NOT NULL DEFAULT 1,
	server_timestamp timestamptz NOT NULL DEFAULT now(),
	deleted          boolean     NOT NULL DEFAULT false,
	device_id        varchar(64),
	PRIMARY KEY (entity_type, id)
);
CREATE INDEX IF NOT EXISTS idx_sync_records_ts ON sync_records (entity_type, server_timestamp);
`

// Store is the backend's durable record store: one row per (entity type, id)
// holding the latest accepted version.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to Postgres with retry and ensures the schema exists
func NewStore(dsn string) (*Store, error) {
	var db *sqlx.DB
	var err error

	for i := 0; i < 10; i++ {
		db, err = sqlx.Connect("postgres", dsn)
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// NewStoreWithDB wraps an existing handle (tests)
func NewStoreWithDB(db *sqlx.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Ping reports whether the database is reachable
func (s *Store) Ping() error { return s.db.Ping() }

type record struct {
	EntityType      string    `db:"entity_type"`
	ID              string    `db:"id"`
	Payload         []byte    `db:"payload"`
	ServerVersion   int64     `db:"server_version"`
	ServerTimestamp time.Time `db:"server_timestamp"`
	Deleted         bool      `db:"deleted"`
}

// Apply processes one push. Accepted when the client built on the latest
// server version; a replay of the already-accepted version answers success
// without side effects (restart recovery depends on this); anything older
// returns the current record as a conflict.
func (s *Store) Apply(ctx context.Context, entityType string, req dtos.PushRequest) (*dtos.PushResponse, *dtos.RemoteRecord, error) {
	if req.ID == "" || len(req.Payload) == 0 || !json.Valid(req.Payload) {
		return nil, nil, errBadPayload
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	var cur record
	err = tx.GetContext(ctx, &cur,
		`SELECT entity_type, id, payload, server_version, server_timestamp, deleted
		   FROM sync_records WHERE entity_type = $1 AND id = $2 FOR UPDATE`,
		entityType, req.ID)

	now := time.Now().UTC()
	deleted := req.Kind == "delete"

	switch {
	case errors.Is(err, sql.ErrNoRows):
		version := req.ClientVersion
		if version < 1 {
			version = 1
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO sync_records (entity_type, id, payload, server_version, server_timestamp, deleted, device_id)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			entityType, req.ID, []byte(req.Payload), version, now, deleted, req.DeviceID)
		if err != nil {
			return nil, nil, err
		}
		if err := tx.Commit(); err != nil {
			return nil, nil, err
		}
		return &dtos.PushResponse{ServerVersion: version, ServerTimestamp: now}, nil, nil

	case err != nil:
		return nil, nil, err
	}

	if req.ClientVersion == cur.ServerVersion {
		// Idempotent replay of the accepted version
		return &dtos.PushResponse{ServerVersion: cur.ServerVersion, ServerTimestamp: cur.ServerTimestamp}, nil, nil
	}

	if req.ClientVersion < cur.ServerVersion {
		remote := dtos.RemoteRecord{
			ID:              cur.ID,
			Payload:         cur.Payload,
			ServerVersion:   cur.ServerVersion,
			ServerTimestamp: cur.ServerTimestamp,
			Deleted:         cur.Deleted,
		}
		return nil, &remote, nil
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sync_records
		    SET payload = $1, server_version = $2, server_timestamp = $3, deleted = $4, device_id = $5
		  WHERE entity_type = $6 AND id = $7`,
		[]byte(req.Payload), req.ClientVersion, now, deleted, req.DeviceID, entityType, req.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &dtos.PushResponse{ServerVersion: req.ClientVersion, ServerTimestamp: now}, nil, nil
}

// PullSince returns records of a type modified after the cursor, oldest first
func (s *Store) PullSince(ctx context.Context, entityType string, since *time.Time) ([]dtos.RemoteRecord, error) {
	var rows []record
	var err error

	if since != nil {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT entity_type, id, payload, server_version, server_timestamp, deleted
			   FROM sync_records
			  WHERE entity_type = $1 AND server_timestamp > $2
			  ORDER BY server_timestamp ASC`,
			entityType, *since)
	} else {
		err = s.db.SelectContext(ctx, &rows,
			`SELECT entity_type, id, payload, server_version, server_timestamp, deleted
			   FROM sync_records
			  WHERE entity_type = $1
			  ORDER BY server_timestamp ASC`,
			entityType)
	}
	if err != nil {
		return nil, err
	}

	out := make([]dtos.RemoteRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, dtos.RemoteRecord{
			ID:              r.ID,
			Payload:         r.Payload,
			ServerVersion:   r.ServerVersion,
			ServerTimestamp: r.ServerTimestamp,
			Deleted:         r.Deleted,
		})
	}
	return out, nil
}

var errBadPayload = errors.New("push payload must be a non-empty JSON document with an id")
