package core

// TurnView is a rendered turn whose content can be replaced as a reply streams in.
type TurnView interface {
	SetContent(content string)
}

// HealthStatus is the outcome of a liveness check against the proxy.
type HealthStatus string

const (
	HealthUnconfigured HealthStatus = "unconfigured"
	HealthConnected    HealthStatus = "connected"
	HealthUnavailable  HealthStatus = "unavailable"
	HealthOffline      HealthStatus = "offline"
)

// RecordingStatus is the audio capture state machine position.
type RecordingStatus string

const (
	RecordingIdle         RecordingStatus = "idle"
	RecordingActive       RecordingStatus = "recording"
	RecordingTranscribing RecordingStatus = "transcribing"
)

// Image is a generated scene image ready for display.
type Image struct {
	Data     []byte
	URL      string
	MimeType string
	Prompt   string
}

// Renderer is the presentation collaborator. The engine only calls these
// read/render/notify operations; layout is the implementation's business.
type Renderer interface {
	RenderTurn(role Role, content string) TurnView
	// Notify surfaces a blocking user notification.
	Notify(message string)
	// Finalize runs once at the end of every dispatch, success or not.
	Finalize()
	// Reset clears rendered turns before a session is re-rendered.
	Reset()
	ShowSessions(sessions []*Session)
	ShowHealth(status HealthStatus)
	ShowRecording(status RecordingStatus)
	ShowImage(img Image)
	// SetInput mirrors the pending input text after transcription.
	SetInput(text string)
}

// NopRenderer implements Renderer with no-ops; embed it to override a subset.
type NopRenderer struct{}

type nopTurnView struct{}

func (nopTurnView) SetContent(string) {}

func (NopRenderer) RenderTurn(Role, string) TurnView { return nopTurnView{} }
func (NopRenderer) Notify(string) {}
func (NopRenderer) Finalize() {}
func (NopRenderer) Reset() {}
func (NopRenderer) ShowSessions([]*Session) {}
func (NopRenderer) ShowHealth(HealthStatus) {}
func (NopRenderer) ShowRecording(RecordingStatus) {}
func (NopRenderer) ShowImage(Image) {}
func (NopRenderer) SetInput(string) {}
