package storage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// MatrixEvent is one device model change as seen by the bridge.
type MatrixEvent struct {
	ID        uuid.UUID       `json:"id"`
	SessionID string          `json:"session_id"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"` // JSONB
	CreatedAt time.Time       `json:"created_at"`
}

// CommandLogEntry is one command written to the device.
type CommandLogEntry struct {
	ID        uuid.UUID `json:"id"`
	SessionID string    `json:"session_id"`
	TxID      string    `json:"txid"`
	Command   string    `json:"command"`
	CreatedAt time.Time `json:"created_at"`
}
