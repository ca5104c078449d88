package controlplane

import (
	"github.com/google/uuid"

	"chatkit/core"
	"chatkit/events/chat"
)

// EventSender delivers render events to a remote UI.
type EventSender interface {
	SendEvent(sessionID string, event core.IEvent)
}

// RemoteRenderer implements core.Renderer by translating every call into a
// chat event.
type RemoteRenderer struct {
	sender    EventSender
	sessionID func() string
}

// NewRemoteRenderer tags events with the id sessionID returns at send time.
// A nil sessionID leaves events untagged.
func NewRemoteRenderer(sender EventSender, sessionID func() string) *RemoteRenderer {
	if sessionID == nil {
		sessionID = func() string { return "" }
	}
	return &RemoteRenderer{sender: sender, sessionID: sessionID}
}

func (r *RemoteRenderer) emit(event core.IEvent) {
	r.sender.SendEvent(r.sessionID(), event)
}

type remoteTurnView struct {
	renderer *RemoteRenderer
	id       string
}

func (v *remoteTurnView) SetContent(content string) {
	v.renderer.emit(&chat.TurnUpdatedEvent{ViewID: v.id, Content: content})
}

func (r *RemoteRenderer) RenderTurn(role core.Role, content string) core.TurnView {
	view := &remoteTurnView{renderer: r, id: uuid.NewString()}
	r.emit(&chat.TurnRenderedEvent{ViewID: view.id, Role: role, Content: content})
	return view
}

func (r *RemoteRenderer) Notify(message string) {
	r.emit(&chat.NotificationEvent{Message: message})
}

func (r *RemoteRenderer) Finalize() {
	r.emit(&chat.FinalizedEvent{})
}

func (r *RemoteRenderer) Reset() {
	r.emit(&chat.TranscriptResetEvent{})
}

func (r *RemoteRenderer) ShowSessions(sessions []*core.Session) {
	r.emit(chat.NewSessionsListedEvent(sessions))
}

func (r *RemoteRenderer) ShowHealth(status core.HealthStatus) {
	r.emit(&chat.HealthEvent{Status: status})
}

func (r *RemoteRenderer) ShowRecording(status core.RecordingStatus) {
	r.emit(&chat.RecordingStateEvent{Status: status})
}

func (r *RemoteRenderer) ShowImage(img core.Image) {
	r.emit(&chat.ImageReadyEvent{
		MimeType: img.MimeType,
		URL:      img.URL,
		Data:     img.Data,
		Prompt:   img.Prompt,
	})
}

func (r *RemoteRenderer) SetInput(text string) {
	r.emit(&chat.InputChangedEvent{Text: text})
}
