package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"chatkit/core"
)

type sessionEntry struct {
	ID        string
	Title     string
	UpdatedAt time.Time
}

// Renderer implements core.Renderer by posting messages to a bubbletea
// program. Calls made before Attach are dropped.
type Renderer struct {
	send     atomic.Pointer[func(tea.Msg)]
	nextID   atomic.Int64
	imageDir string
	logger   *core.Logger
}

// NewRenderer saves generated images under imageDir; empty uses a directory
// in the OS temp dir.
func NewRenderer(imageDir string, logger *core.Logger) *Renderer {
	if logger == nil {
		logger = core.GetLogger()
	}
	if imageDir == "" {
		imageDir = filepath.Join(os.TempDir(), "chatkit-images")
	}
	return &Renderer{
		imageDir: imageDir,
		logger:   logger.With(map[string]interface{}{"component": "tui"}),
	}
}

// Attach routes subsequent calls to p.
func (r *Renderer) Attach(p *tea.Program) {
	r.attach(p.Send)
}

func (r *Renderer) attach(send func(tea.Msg)) {
	r.send.Store(&send)
}

func (r *Renderer) post(msg tea.Msg) {
	if send := r.send.Load(); send != nil {
		(*send)(msg)
	}
}

type turnView struct {
	r  *Renderer
	id int
}

func (v *turnView) SetContent(content string) {
	v.r.post(turnUpdatedMsg{id: v.id, content: content})
}

func (r *Renderer) RenderTurn(role core.Role, content string) core.TurnView {
	id := int(r.nextID.Add(1))
	r.post(turnRenderedMsg{id: id, role: role, content: content})
	return &turnView{r: r, id: id}
}

func (r *Renderer) Notify(message string) { r.post(noticeMsg{text: message}) }

func (r *Renderer) Finalize() { r.post(finalizedMsg{}) }

func (r *Renderer) Reset() { r.post(resetMsg{}) }

func (r *Renderer) ShowSessions(sessions []*core.Session) {
	entries := make([]sessionEntry, 0, len(sessions))
	for _, s := range sessions {
		entries = append(entries, sessionEntry{ID: s.ID, Title: s.Title, UpdatedAt: s.UpdatedAt})
	}
	r.post(sessionsMsg{sessions: entries})
}

func (r *Renderer) ShowHealth(status core.HealthStatus) { r.post(healthMsg{status: status}) }

func (r *Renderer) ShowRecording(status core.RecordingStatus) {
	r.post(recordingMsg{status: status})
}

func (r *Renderer) SetInput(text string) { r.post(inputMsg{text: text}) }

// ShowImage writes inline image data to disk; a terminal cannot show it.
func (r *Renderer) ShowImage(img core.Image) {
	if len(img.Data) == 0 {
		r.post(imageMsg{location: img.URL})
		return
	}
	path, err := r.saveImage(img)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("failed to save image")
	}
	r.post(imageMsg{location: path, err: err})
}

func (r *Renderer) saveImage(img core.Image) (string, error) {
	if err := os.MkdirAll(r.imageDir, 0o755); err != nil {
		return "", fmt.Errorf("tui: create image dir: %w", err)
	}
	ext := ".png"
	switch {
	case strings.Contains(img.MimeType, "jpeg"):
		ext = ".jpg"
	case strings.Contains(img.MimeType, "webp"):
		ext = ".webp"
	case strings.Contains(img.MimeType, "gif"):
		ext = ".gif"
	}
	path := filepath.Join(r.imageDir, "scene-"+time.Now().Format("20060102-150405")+ext)
	if err := os.WriteFile(path, img.Data, 0o644); err != nil {
		return "", fmt.Errorf("tui: write image: %w", err)
	}
	return path, nil
}
