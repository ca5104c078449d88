package controlplane

import (
	"time"

	"chatkit/protocol"
)

// WSLogWriter implements core.LogWriter by forwarding log entries to the
// remote UI alongside the render events.
type WSLogWriter struct {
	client    *Client
	sessionID string
}

func NewWSLogWriter(client *Client, sessionID string) *WSLogWriter {
	return &WSLogWriter{
		client:    client,
		sessionID: sessionID,
	}
}

// Write sends a log entry over the WebSocket. Error values are stringified
// so they survive encoding.
func (w *WSLogWriter) Write(level, msg string, attrs map[string]interface{}) {
	if len(attrs) > 0 {
		cp := make(map[string]interface{}, len(attrs))
		for k, v := range attrs {
			if err, ok := v.(error); ok {
				v = err.Error()
			}
			cp[k] = v
		}
		attrs = cp
	}
	w.client.SendLog(w.sessionID, protocol.LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		Attrs:     attrs,
	})
}

// Close signals the end of the log stream.
func (w *WSLogWriter) Close() {
	w.client.SendLogEnd(w.sessionID)
}
