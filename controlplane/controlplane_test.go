package controlplane

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/core"
	"chatkit/events/chat"
	"chatkit/protocol"
)

type sentEvent struct {
	sessionID string
	event     core.IEvent
}

type recordingSender struct {
	mu     sync.Mutex
	events []sentEvent
}

func (s *recordingSender) SendEvent(sessionID string, event core.IEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sentEvent{sessionID, event})
}

func TestRemoteRendererEmitsEvents(t *testing.T) {
	sender := &recordingSender{}
	r := NewRemoteRenderer(sender, func() string { return "sess-1" })

	view := r.RenderTurn(core.RoleAssistant, "")
	view.SetContent("Hel")
	view.SetContent("Hello")
	r.Notify("careful")
	r.Finalize()

	require.Len(t, sender.events, 5)
	rendered, ok := sender.events[0].event.(*chat.TurnRenderedEvent)
	require.True(t, ok)
	assert.Equal(t, core.RoleAssistant, rendered.Role)
	assert.NotEmpty(t, rendered.ViewID)

	for _, e := range sender.events[1:3] {
		updated, ok := e.event.(*chat.TurnUpdatedEvent)
		require.True(t, ok)
		assert.Equal(t, rendered.ViewID, updated.ViewID)
	}
	assert.Equal(t, "Hello", sender.events[2].event.(*chat.TurnUpdatedEvent).Content)
	assert.Equal(t, "chat.notification", sender.events[3].event.GetId())
	assert.Equal(t, "chat.finalized", sender.events[4].event.GetId())
	for _, e := range sender.events {
		assert.Equal(t, "sess-1", e.sessionID)
	}
}

func TestSessionsListedOmitsTurnContent(t *testing.T) {
	s := core.NewSession("prompt", "model")
	require.NoError(t, s.AppendTurn(core.RoleUser, "secret plans"))

	ev := chat.NewSessionsListedEvent([]*core.Session{s})
	data, err := sonic.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "secret plans")
	assert.Equal(t, 2, ev.Sessions[0].Turns)
}

// uiServer is a minimal remote UI: it records every envelope it receives and
// lets the test push envelopes back.
type uiServer struct {
	received chan protocol.Envelope
	conn     chan *websocket.Conn
}

func newUIServer(t *testing.T) (*uiServer, *httptest.Server) {
	ui := &uiServer{
		received: make(chan protocol.Envelope, 64),
		conn:     make(chan *websocket.Conn, 1),
	}
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		ui.conn <- conn
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env protocol.Envelope
			if assert.NoError(t, sonic.Unmarshal(data, &env)) {
				ui.received <- env
			}
		}
	}))
	return ui, srv
}

func (ui *uiServer) next(t *testing.T, want protocol.MessageType) protocol.Envelope {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case env := <-ui.received:
			if env.Type == want {
				return env
			}
		case <-deadline:
			t.Fatalf("no %s message received", want)
			return protocol.Envelope{}
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientRegistersAndForwardsEvents(t *testing.T) {
	ui, srv := newUIServer(t)
	defer srv.Close()

	client := NewClient(ClientConfig{
		ConnectURL: wsURL(srv),
		ClientID:   "tester",
		SessionID:  "sess-1",
		Logger:     core.NewDiscardLogger(),
	})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	reg, err := protocol.UnmarshalPayload[protocol.RegisterPayload](ui.next(t, protocol.MsgRegister).Payload)
	require.NoError(t, err)
	assert.Equal(t, "tester", reg.ClientID)
	assert.Equal(t, "sess-1", reg.SessionID)

	client.SendEvent("sess-1", &chat.NotificationEvent{Message: "hi"})
	ev, err := protocol.UnmarshalPayload[protocol.EventPayload](ui.next(t, protocol.MsgEvent).Payload)
	require.NoError(t, err)
	assert.Equal(t, "chat.notification", ev.EventID)
	assert.JSONEq(t, `{"message":"hi"}`, string(ev.Data))
}

func TestClientHandlesIntentsAndAcks(t *testing.T) {
	ui, srv := newUIServer(t)
	defer srv.Close()

	got := make(chan protocol.IntentPayload, 2)
	client := NewClient(ClientConfig{ConnectURL: wsURL(srv), ClientID: "tester", Logger: core.NewDiscardLogger()})
	client.OnIntent = func(_ context.Context, intent protocol.IntentPayload) error {
		got <- intent
		if intent.Kind == "load" {
			return errors.New("session not found")
		}
		return nil
	}
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	conn := <-ui.conn
	ui.next(t, protocol.MsgRegister)

	data, err := protocol.Marshal(protocol.MsgIntent, protocol.IntentPayload{RequestID: "1", Kind: "send", Arg: "hello"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	select {
	case intent := <-got:
		assert.Equal(t, "send", intent.Kind)
		assert.Equal(t, "hello", intent.Arg)
	case <-time.After(2 * time.Second):
		t.Fatal("intent not delivered")
	}
	ack, err := protocol.UnmarshalPayload[protocol.AckPayload](ui.next(t, protocol.MsgAck).Payload)
	require.NoError(t, err)
	assert.True(t, ack.OK)
	assert.Equal(t, "1", ack.RequestID)

	data, err = protocol.Marshal(protocol.MsgIntent, protocol.IntentPayload{RequestID: "2", Kind: "load", Arg: "missing"})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	ack, err = protocol.UnmarshalPayload[protocol.AckPayload](ui.next(t, protocol.MsgAck).Payload)
	require.NoError(t, err)
	assert.False(t, ack.OK)
	assert.Equal(t, "session not found", ack.Error)
}

func TestClientShutdown(t *testing.T) {
	ui, srv := newUIServer(t)
	defer srv.Close()

	reasons := make(chan string, 1)
	client := NewClient(ClientConfig{ConnectURL: wsURL(srv), Logger: core.NewDiscardLogger()})
	client.OnShutdown = func(reason string) { reasons <- reason }
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	conn := <-ui.conn
	data, err := protocol.Marshal(protocol.MsgShutdown, protocol.ShutdownPayload{})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	waited := make(chan struct{})
	go func() {
		client.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after shutdown")
	}
	assert.Equal(t, "shutdown requested by remote ui", <-reasons)
}

func TestWSLogWriterStringifiesErrors(t *testing.T) {
	ui, srv := newUIServer(t)
	defer srv.Close()

	client := NewClient(ClientConfig{ConnectURL: wsURL(srv), Logger: core.NewDiscardLogger()})
	require.NoError(t, client.Connect(context.Background()))
	defer client.Close()

	w := NewWSLogWriter(client, "sess-1")
	w.Write("WARN", "stream failed", map[string]interface{}{"error": errors.New("boom")})
	w.Close()

	entry, err := protocol.UnmarshalPayload[protocol.LogPayload](ui.next(t, protocol.MsgLog).Payload)
	require.NoError(t, err)
	assert.Equal(t, "WARN", entry.Entry.Level)
	assert.Equal(t, "boom", entry.Entry.Attrs["error"])
	ui.next(t, protocol.MsgLogEnd)
}
