package controlplane

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"chatkit/core"
	"chatkit/protocol"
)

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultSendBufferSize    = 256
	writeTimeout             = 10 * time.Second
)

// ClientConfig configures the remote UI WebSocket client.
type ClientConfig struct {
	ConnectURL        string
	ClientID          string
	Version           string
	Metadata          map[string]string
	SessionID         string
	HeartbeatInterval time.Duration
	Logger            *core.Logger
}

// Client connects outward to a remote UI. It pushes render events, logs and
// heartbeats, and receives user intents and shutdown requests.
type Client struct {
	config ClientConfig
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	logger *core.Logger
	status atomic.Value

	// OnIntent handles one user intent. It runs on its own goroutine so a
	// long-running intent never blocks the read loop; its error is acked.
	OnIntent   func(ctx context.Context, intent protocol.IntentPayload) error
	OnShutdown func(reason string)

	sendCh    chan []byte
	done      chan struct{}
	doneOnce  sync.Once
	closeOnce sync.Once
}

func NewClient(cfg ClientConfig) *Client {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = defaultHeartbeatInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = core.GetLogger()
	}
	c := &Client{
		config: cfg,
		logger: cfg.Logger.With(map[string]interface{}{"component": "controlplane"}),
		sendCh: make(chan []byte, defaultSendBufferSize),
		done:   make(chan struct{}),
	}
	c.status.Store("idle")
	return c
}

// Connect dials the UI endpoint, registers, and starts the read, write and
// heartbeat loops. Cancelling ctx closes the connection.
func (c *Client) Connect(ctx context.Context) error {
	c.ctx, c.cancel = context.WithCancel(ctx)

	c.logger.With(map[string]interface{}{"url": c.config.ConnectURL}).Info("connecting to remote ui")

	conn, _, err := websocket.DefaultDialer.DialContext(c.ctx, c.config.ConnectURL, nil)
	if err != nil {
		c.cancel()
		return fmt.Errorf("controlplane: dial %q: %w", c.config.ConnectURL, err)
	}
	c.conn = conn

	reg := protocol.RegisterPayload{
		ClientID:     c.config.ClientID,
		Version:      c.config.Version,
		Capabilities: []string{"chat", "record", "speak", "image", "sessions"},
		Metadata:     c.config.Metadata,
		SessionID:    c.config.SessionID,
		Timestamp:    time.Now().UTC(),
	}
	if err := c.send(protocol.MsgRegister, reg); err != nil {
		conn.Close()
		c.cancel()
		return fmt.Errorf("controlplane: send register: %w", err)
	}

	c.logger.With(map[string]interface{}{"client_id": c.config.ClientID}).Info("registered with remote ui")

	go c.readLoop()
	go c.writeLoop()
	go c.heartbeatLoop()

	return nil
}

// SetStatus sets the status reported by the next heartbeat.
func (c *Client) SetStatus(status string) {
	c.status.Store(status)
}

// SendEvent pushes a render event.
func (c *Client) SendEvent(sessionID string, event core.IEvent) {
	data, err := sonic.Marshal(event)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "event": event.GetId()}).Warn("failed to marshal event, dropping")
		return
	}
	c.enqueue(protocol.MsgEvent, protocol.EventPayload{
		ClientID:  c.config.ClientID,
		SessionID: sessionID,
		EventID:   event.GetId(),
		Data:      data,
	})
}

func (c *Client) SendLog(sessionID string, entry protocol.LogEntry) {
	c.enqueue(protocol.MsgLog, protocol.LogPayload{
		ClientID:  c.config.ClientID,
		SessionID: sessionID,
		Entry:     entry,
	})
}

// SendLogEnd signals that a session's log stream has ended.
func (c *Client) SendLogEnd(sessionID string) {
	c.enqueue(protocol.MsgLogEnd, protocol.LogEndPayload{
		ClientID:  c.config.ClientID,
		SessionID: sessionID,
	})
}

// Wait blocks until the connection drops or the context is cancelled.
func (c *Client) Wait() error {
	<-c.done
	return nil
}

// Close shuts down the client.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if c.cancel != nil {
			c.cancel()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

func (c *Client) send(msgType protocol.MessageType, payload interface{}) error {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		return err
	}
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) enqueue(msgType protocol.MessageType, payload interface{}) {
	data, err := protocol.Marshal(msgType, payload)
	if err != nil {
		c.logger.With(map[string]interface{}{"error": err, "type": string(msgType)}).Warn("failed to marshal message, dropping")
		return
	}
	select {
	case c.sendCh <- data:
	default:
		// Buffer full: drop oldest and push new.
		select {
		case <-c.sendCh:
		default:
		}
		select {
		case c.sendCh <- data:
		default:
		}
	}
}

func (c *Client) readLoop() {
	defer func() {
		c.doneOnce.Do(func() { close(c.done) })
		c.cancel()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.With(map[string]interface{}{"error": err}).Warn("remote ui connection lost")
			}
			return
		}

		msgType, payload, err := protocol.Unmarshal(data)
		if err != nil {
			c.logger.With(map[string]interface{}{"error": err}).Warn("invalid message from remote ui")
			continue
		}

		switch msgType {
		case protocol.MsgIntent:
			p, err := protocol.UnmarshalPayload[protocol.IntentPayload](payload)
			if err != nil {
				c.logger.With(map[string]interface{}{"error": err}).Warn("invalid intent payload")
				continue
			}
			go c.handleIntent(p)

		case protocol.MsgShutdown:
			p, _ := protocol.UnmarshalPayload[protocol.ShutdownPayload](payload)
			reason := p.Reason
			if reason == "" {
				reason = "shutdown requested by remote ui"
			}
			c.logger.With(map[string]interface{}{"reason": reason}).Info("shutdown requested")
			if c.OnShutdown != nil {
				c.OnShutdown(reason)
			}
			return

		default:
			c.logger.With(map[string]interface{}{"type": string(msgType)}).Warn("unknown message type from remote ui")
		}
	}
}

func (c *Client) handleIntent(intent protocol.IntentPayload) {
	ack := protocol.AckPayload{AckedType: protocol.MsgIntent, RequestID: intent.RequestID, OK: true}
	if c.OnIntent == nil {
		ack.OK = false
		ack.Error = "intents are not handled"
	} else if err := c.OnIntent(c.ctx, intent); err != nil {
		ack.OK = false
		ack.Error = err.Error()
	}
	c.enqueue(protocol.MsgAck, ack)
}

func (c *Client) writeLoop() {
	for {
		select {
		case data := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.With(map[string]interface{}{"error": err}).Warn("write to remote ui failed")
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			status, _ := c.status.Load().(string)
			c.enqueue(protocol.MsgHeartbeat, protocol.HeartbeatPayload{
				ClientID:  c.config.ClientID,
				Timestamp: time.Now().UTC(),
				Status:    status,
			})
		case <-c.ctx.Done():
			return
		}
	}
}
