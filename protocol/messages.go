package protocol

import (
	"encoding/json"
	"time"
)

// MessageType enumerates every message exchanged with a remote UI.
type MessageType string

const (
	// Engine -> UI
	MsgRegister  MessageType = "register"
	MsgHeartbeat MessageType = "heartbeat"
	MsgLog       MessageType = "log"
	MsgLogEnd    MessageType = "log_end"
	MsgEvent     MessageType = "event"
	MsgAck       MessageType = "ack"

	// UI -> Engine
	MsgIntent   MessageType = "intent"
	MsgShutdown MessageType = "shutdown"
)

// Envelope is the outer JSON wrapper for all WebSocket messages.
type Envelope struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Engine -> UI payloads ---

// RegisterPayload is sent once immediately after connecting.
type RegisterPayload struct {
	ClientID     string            `json:"client_id"`
	Version      string            `json:"version,omitempty"`
	Capabilities []string          `json:"capabilities,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	SessionID    string            `json:"session_id,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// HeartbeatPayload keeps the connection alive.
type HeartbeatPayload struct {
	ClientID  string    `json:"client_id"`
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"` // "idle", "streaming"
}

type LogPayload struct {
	ClientID  string   `json:"client_id"`
	SessionID string   `json:"session_id"`
	Entry     LogEntry `json:"entry"`
}

// LogEntry is a structured log line.
type LogEntry struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Message   string                 `json:"msg"`
	Attrs     map[string]interface{} `json:"attrs,omitempty"`
}

type LogEndPayload struct {
	ClientID  string `json:"client_id"`
	SessionID string `json:"session_id"`
}

// EventPayload carries one render event; EventID is the event's GetId().
type EventPayload struct {
	ClientID  string          `json:"client_id"`
	SessionID string          `json:"session_id,omitempty"`
	EventID   string          `json:"event_id"`
	Data      json.RawMessage `json:"data"`
}

// AckPayload answers an intent once it has been handled.
type AckPayload struct {
	AckedType MessageType `json:"acked_type"`
	RequestID string      `json:"request_id,omitempty"`
	OK        bool        `json:"ok"`
	Error     string      `json:"error,omitempty"`
}

// --- UI -> Engine payloads ---

// IntentPayload is a user action taken in the remote UI. Kind matches the
// runner intent kinds; Arg carries the text, id or setting value.
type IntentPayload struct {
	RequestID string `json:"request_id,omitempty"`
	Kind      string `json:"kind"`
	Arg       string `json:"arg,omitempty"`
}

// ShutdownPayload requests a graceful shutdown.
type ShutdownPayload struct {
	Reason string `json:"reason,omitempty"`
}
