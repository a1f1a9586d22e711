package dtos

import (
	"encoding/json"
	"time"
)

// PushRequest is the body of POST /v1/sync/{entityType}/push
type PushRequest struct {
	ID            string          `json:"id"`
	Kind          string          `json:"kind"`
	Payload       json.RawMessage `json:"payload"`
	ClientVersion int64           `json:"client_version"`
	DeviceID      string          `json:"device_id,omitempty"`
}

// PushResponse is returned on a successful push
type PushResponse struct {
	ServerVersion   int64     `json:"server_version"`
	ServerTimestamp time.Time `json:"server_timestamp"`
}

// RemoteRecord is one entry in a pull response, and the remote side of a
// conflict signal
type RemoteRecord struct {
	ID              string          `json:"id"`
	Payload         json.RawMessage `json:"payload"`
	ServerVersion   int64           `json:"server_version"`
	ServerTimestamp time.Time       `json:"server_timestamp"`
	Deleted         bool            `json:"deleted"`
}

// PullResponse is the body of GET /v1/sync/{entityType}/pull
type PullResponse struct {
	Records []RemoteRecord `json:"records"`
}

// ConflictSignal is the 409 body the backend returns when a push's client
// version is behind the server's
type ConflictSignal struct {
	Remote RemoteRecord `json:"remote"`
}

// ErrorResponse is the body of 4xx responses from the backend
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
