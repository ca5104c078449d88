package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"

	"chatkit/core"
	contexthandler "chatkit/handlers/context"
	"chatkit/services/proxy"
)

var ErrDispatchInFlight = errors.New("llm: a reply is already streaming")

// ChatStreamer issues a chat request and hands back the streaming body.
type ChatStreamer interface {
	StreamChat(ctx context.Context, req proxy.ChatRequest) (io.ReadCloser, error)
}

// Speaker plays a committed reply aloud.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Dispatcher runs one exchange: append the user turn, persist, request with
// the selected context window, stream the reply into the session, then speak
// it. Only one exchange runs at a time; a second Send while one is streaming
// is rejected.
type Dispatcher struct {
	session   *core.SessionContext
	selector  *contexthandler.Selector
	client    ChatStreamer
	renderer  core.Renderer
	speaker   Speaker
	config    DispatcherConfig
	autoSpeak atomic.Bool
	busy      atomic.Bool
	logger    *core.Logger
}

func NewDispatcher(
	session *core.SessionContext,
	selector *contexthandler.Selector,
	client ChatStreamer,
	renderer core.Renderer,
	speaker Speaker,
	config DispatcherConfig,
	logger *core.Logger,
) *Dispatcher {
	if logger == nil {
		logger = core.GetLogger()
	}
	if renderer == nil {
		renderer = core.NopRenderer{}
	}
	if config.ErrorBodyLimit <= 0 {
		config.ErrorBodyLimit = DefaultConfig().ErrorBodyLimit
	}
	d := &Dispatcher{
		session:  session,
		selector: selector,
		client:   client,
		renderer: renderer,
		speaker:  speaker,
		config:   config,
		logger:   logger.With(map[string]interface{}{"component": "dispatcher"}),
	}
	d.autoSpeak.Store(config.AutoSpeak)
	return d
}

func (d *Dispatcher) SetAutoSpeak(enabled bool) {
	d.autoSpeak.Store(enabled)
}

func (d *Dispatcher) AutoSpeak() bool {
	return d.autoSpeak.Load()
}

// Busy reports whether an exchange is in flight.
func (d *Dispatcher) Busy() bool {
	return d.busy.Load()
}

// Send runs one exchange for text. Transport and stream failures are rendered
// as an error turn and returned; Finalize runs on every path once the
// exchange has started.
func (d *Dispatcher) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if !d.busy.CompareAndSwap(false, true) {
		d.renderer.Notify(BusyNotice)
		return ErrDispatchInFlight
	}
	defer d.busy.Store(false)
	defer d.renderer.Finalize()

	logger := d.logger
	if l := core.SessionLoggerFromContext(ctx); l != nil {
		logger = l.With(map[string]interface{}{"component": "dispatcher"})
	}

	d.renderer.RenderTurn(core.RoleUser, text)
	var snapshot *core.Session
	err := d.session.Update(ctx, func(s *core.Session) error {
		if err := s.AppendTurn(core.RoleUser, text); err != nil {
			return err
		}
		snapshot = s.Clone()
		return nil
	})
	if snapshot == nil {
		d.renderError(err)
		return err
	}
	if err != nil {
		logger.With(map[string]interface{}{"error": err}).Warn("failed to persist user turn")
	}

	window := d.selector.Select(snapshot.Turns)
	logger.With(map[string]interface{}{
		"session_id": snapshot.ID,
		"turns":      len(snapshot.Turns),
		"window":     len(window),
	}).Debug("dispatching message")

	body, err := d.client.StreamChat(ctx, proxy.NewChatRequest(snapshot.Model, window))
	if err != nil {
		logger.With(map[string]interface{}{"error": err}).Warn("chat request failed")
		d.renderError(err)
		return err
	}
	defer body.Close()

	// persistence outlives a cancelled request so accumulated text is kept
	persistCtx := context.WithoutCancel(ctx)
	view := d.renderer.RenderTurn(core.RoleAssistant, "")
	var committed string
	parser := NewStreamParser(view.SetContent, func(reply string) {
		committed = reply
		view.SetContent(reply)
		// the reply belongs to the session that received the user turn, even
		// if another one became current mid-stream
		err := d.session.UpdateSession(persistCtx, snapshot.ID, func(s *core.Session) error {
			s.CommitAssistantReply(reply)
			return nil
		})
		if err != nil {
			logger.With(map[string]interface{}{"error": err, "session_id": snapshot.ID}).Warn("failed to persist assistant reply")
		}
	}, logger)

	if err := parser.Run(ctx, body); err != nil {
		logger.With(map[string]interface{}{"error": err, "chars": len(committed)}).Warn("stream interrupted")
		d.renderError(err)
		return err
	}

	if d.autoSpeak.Load() && d.speaker != nil && strings.TrimSpace(committed) != "" {
		if err := d.speaker.Speak(ctx, committed); err != nil {
			logger.With(map[string]interface{}{"error": err}).Warn("auto-speak failed")
			d.renderer.Notify(fmt.Sprintf("Speech playback failed: %v", err))
		}
	}
	return nil
}

func (d *Dispatcher) renderError(err error) {
	if err == nil {
		return
	}
	d.renderer.RenderTurn(core.RoleAssistant, ErrorTurn(err, d.config.ErrorBodyLimit))
}

// ErrorTurn formats err as the visible text of an error turn. Status errors
// carry the HTTP code and at most limit characters of the response body.
func ErrorTurn(err error, limit int) string {
	var se *proxy.StatusError
	if errors.As(err, &se) {
		body := se.Body
		if body == "" {
			body = "No response body"
		}
		return fmt.Sprintf("%sHTTP %d: %s", ErrorTurnPrefix, se.StatusCode, truncate(body, limit))
	}
	return ErrorTurnPrefix + err.Error()
}
