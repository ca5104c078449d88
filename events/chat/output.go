package chat

import (
	"time"

	"chatkit/core"
)

// TurnRenderedEvent announces a new turn in the transcript. Streaming replies
// follow up with TurnUpdatedEvent carrying the same ViewID.
type TurnRenderedEvent struct {
	ViewID  string    `json:"view_id"`
	Role    core.Role `json:"role"`
	Content string    `json:"content"`
}

func (*TurnRenderedEvent) GetId() string {
	return "chat.turn_rendered"
}

type TurnUpdatedEvent struct {
	ViewID  string `json:"view_id"`
	Content string `json:"content"`
}

func (*TurnUpdatedEvent) GetId() string {
	return "chat.turn_updated"
}

type NotificationEvent struct {
	Message string `json:"message"`
}

func (*NotificationEvent) GetId() string {
	return "chat.notification"
}

// FinalizedEvent closes a dispatch; the input can be re-enabled.
type FinalizedEvent struct{}

func (*FinalizedEvent) GetId() string {
	return "chat.finalized"
}

// TranscriptResetEvent clears the transcript before a session is re-rendered.
type TranscriptResetEvent struct{}

func (*TranscriptResetEvent) GetId() string {
	return "chat.transcript_reset"
}

type SessionSummary struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Turns     int       `json:"turns"`
	UpdatedAt time.Time `json:"updated_at"`
}

type SessionsListedEvent struct {
	Sessions []SessionSummary `json:"sessions"`
}

func (*SessionsListedEvent) GetId() string {
	return "chat.sessions_listed"
}

// NewSessionsListedEvent summarizes sessions without their turn content.
func NewSessionsListedEvent(sessions []*core.Session) *SessionsListedEvent {
	summaries := make([]SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		summaries = append(summaries, SessionSummary{
			ID:        s.ID,
			Title:     s.Title,
			Turns:     len(s.Turns),
			UpdatedAt: s.UpdatedAt,
		})
	}
	return &SessionsListedEvent{Sessions: summaries}
}

type HealthEvent struct {
	Status core.HealthStatus `json:"status"`
}

func (*HealthEvent) GetId() string {
	return "chat.health"
}

type RecordingStateEvent struct {
	Status core.RecordingStatus `json:"status"`
}

func (*RecordingStateEvent) GetId() string {
	return "chat.recording_state"
}

// ImageReadyEvent carries either inline image bytes or a URL.
type ImageReadyEvent struct {
	MimeType string `json:"mime_type,omitempty"`
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"data,omitempty"`
	Prompt   string `json:"prompt"`
}

func (*ImageReadyEvent) GetId() string {
	return "chat.image_ready"
}

// InputChangedEvent mirrors the pending input after a transcription.
type InputChangedEvent struct {
	Text string `json:"text"`
}

func (*InputChangedEvent) GetId() string {
	return "chat.input_changed"
}
