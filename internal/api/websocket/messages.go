package websocket

import (
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/matrix"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Model change messages, one per change kind
	MessageTypeRoutingChanged    MessageType = "routing_changed"
	MessageTypeNamingChanged     MessageType = "naming_changed"
	MessageTypeStructuralChanged MessageType = "structural_changed"

	// Full model, sent after authentication and on request
	MessageTypeSnapshot MessageType = "snapshot"

	// LW3 connection messages
	MessageTypeConnectionState MessageType = "connection_state"

	// System messages
	MessageTypeSystemStatus MessageType = "system_status"
)

// IsStatus reports whether the type belongs on the status stream.
func (t MessageType) IsStatus() bool {
	return t == MessageTypeConnectionState || t == MessageTypeSystemStatus
}

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      any         `json:"data"`
}

// ConnectionStateData represents an LW3 connection transition
type ConnectionStateData struct {
	State    string `json:"state"`
	Previous string `json:"previous_state"`
	Session  string `json:"session,omitempty"`
	Address  string `json:"address,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data any) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewChangeMessage wraps a model change together with the model after it.
func NewChangeMessage(kind matrix.ChangeKind, snapshot matrix.Snapshot) Message {
	var t MessageType
	switch kind {
	case matrix.ChangeRouting:
		t = MessageTypeRoutingChanged
	case matrix.ChangeNaming:
		t = MessageTypeNamingChanged
	default:
		t = MessageTypeStructuralChanged
	}
	return NewMessage(t, snapshot)
}

func NewConnectionStateMessage(state, previous, session, address string) Message {
	return NewMessage(MessageTypeConnectionState, ConnectionStateData{
		State:    state,
		Previous: previous,
		Session:  session,
		Address:  address,
	})
}
