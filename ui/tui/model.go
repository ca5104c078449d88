// Package tui is the terminal front end: a transcript, a session list and an
// input box whose lines become runner intents.
package tui

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"chatkit/core"
	"chatkit/handlers/llm"
	"chatkit/runner"
)

const sidebarWidth = 34

// Dispatcher runs one intent; Runner.Dispatch satisfies it.
type Dispatcher func(ctx context.Context, intent runner.Intent) error

// Starter performs the initial render; Runner.Start satisfies it.
type Starter func(ctx context.Context)

type turnEntry struct {
	id      int
	role    core.Role
	content string
}

// Model is the root bubbletea model.
type Model struct {
	ctx      context.Context
	dispatch Dispatcher
	start    Starter

	input      textinput.Model
	transcript viewport.Model
	spinner    spinner.Model
	markdown   *glamour.TermRenderer
	theme      theme

	turns     []turnEntry
	sessions  []sessionEntry
	health    core.HealthStatus
	recording core.RecordingStatus
	streaming bool
	notice    string

	width  int
	height int
}

func New(ctx context.Context, dispatch Dispatcher, start Starter) Model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Describe your action, or /help for commands"
	input.Focus()

	transcript := viewport.New(0, 0)
	transcript.MouseWheelEnabled = true

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return Model{
		ctx:        ctx,
		dispatch:   dispatch,
		start:      start,
		input:      input,
		transcript: transcript,
		spinner:    spin,
		theme:      newTheme(),
		health:     core.HealthUnconfigured,
		recording:  core.RecordingIdle,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, m.startCmd())
}

func (m Model) startCmd() tea.Cmd {
	if m.start == nil {
		return nil
	}
	return func() tea.Msg {
		m.start(m.ctx)
		return startedMsg{}
	}
}

// dispatchCmd runs intents in order off the update loop.
func (m Model) dispatchCmd(intents ...runner.Intent) tea.Cmd {
	return func() tea.Msg {
		for _, intent := range intents {
			if err := m.dispatch(m.ctx, intent); err != nil {
				return intentDoneMsg{err: err}
			}
		}
		return intentDoneMsg{}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case turnRenderedMsg:
		m.turns = append(m.turns, turnEntry{id: msg.id, role: msg.role, content: msg.content})
		m.refreshTranscript()
	case turnUpdatedMsg:
		for i := len(m.turns) - 1; i >= 0; i-- {
			if m.turns[i].id == msg.id {
				m.turns[i].content = msg.content
				break
			}
		}
		m.refreshTranscript()
	case resetMsg:
		m.turns = nil
		m.refreshTranscript()
	case finalizedMsg:
		m.streaming = false
	case noticeMsg:
		m.notice = msg.text
	case sessionsMsg:
		m.sessions = msg.sessions
	case healthMsg:
		m.health = msg.status
	case recordingMsg:
		m.recording = msg.status
	case inputMsg:
		m.input.SetValue(msg.text)
		m.input.CursorEnd()
	case imageMsg:
		switch {
		case msg.err != nil:
			m.notice = fmt.Sprintf("Image generation failed: %v", msg.err)
		case msg.location != "":
			m.notice = "Scene image: " + msg.location
		}
	case intentDoneMsg:
		if msg.err != nil && m.notice == "" {
			m.notice = msg.err.Error()
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		return m, tea.Quit
	case "enter":
		return m.submit()
	case "ctrl+r":
		m.notice = ""
		return m, m.dispatchCmd(
			runner.Intent{Kind: runner.IntentSetInput, Arg: m.input.Value()},
			runner.Intent{Kind: runner.IntentRecord},
		)
	case "ctrl+s":
		return m, m.dispatchCmd(runner.Intent{Kind: runner.IntentSpeak})
	case "ctrl+x":
		return m, m.dispatchCmd(runner.Intent{Kind: runner.IntentStopSpeech})
	case "ctrl+g":
		m.notice = "Painting the scene..."
		return m, m.dispatchCmd(runner.Intent{Kind: runner.IntentImage})
	case "ctrl+n":
		return m, m.dispatchCmd(runner.Intent{Kind: runner.IntentNewSession})
	case "pgup", "pgdown":
		var cmd tea.Cmd
		m.transcript, cmd = m.transcript.Update(msg)
		return m, cmd
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := m.input.Value()
	if strings.TrimSpace(line) == "" {
		return m, nil
	}
	if strings.TrimSpace(line) == "/help" {
		m.notice = runner.CommandHelp
		m.input.SetValue("")
		return m, nil
	}
	intent, err := runner.ParseCommand(line)
	if err != nil {
		m.notice = fmt.Sprintf("%v. %s", err, runner.CommandHelp)
		return m, nil
	}
	if intent.Kind == runner.IntentSend && m.streaming {
		m.notice = llm.BusyNotice
		return m, nil
	}
	if intent.Kind == runner.IntentLoadSession || intent.Kind == runner.IntentDeleteSession {
		intent.Arg = m.resolveSession(intent.Arg)
	}
	m.notice = ""
	m.input.SetValue("")
	if intent.Kind == runner.IntentSend {
		m.streaming = true
	}
	return m, m.dispatchCmd(intent)
}

// resolveSession accepts a 1-based position in the session list or a unique
// id prefix; anything else is passed through unchanged.
func (m Model) resolveSession(ref string) string {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(m.sessions) {
		return m.sessions[n-1].ID
	}
	match := ""
	for _, s := range m.sessions {
		if strings.HasPrefix(s.ID, ref) {
			if match != "" {
				return ref
			}
			match = s.ID
		}
	}
	if match == "" {
		return ref
	}
	return match
}

func (m *Model) layout() {
	headerHeight, footerHeight := 1, 4
	w := m.width - sidebarWidth - 2
	if w < 20 {
		w = m.width
	}
	h := m.height - headerHeight - footerHeight
	if h < 3 {
		h = 3
	}
	m.transcript.Width = w
	m.transcript.Height = h
	m.input.Width = m.width - 4
	m.markdown = newMarkdown(w)
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	width := m.transcript.Width
	if width <= 0 {
		width = 80
	}
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.theme.role(t.role).Render(roleLabel(t.role)))
		b.WriteString("\n")
		b.WriteString(m.renderContent(t, width))
	}
	atBottom := m.transcript.AtBottom()
	m.transcript.SetContent(b.String())
	if atBottom || m.streaming {
		m.transcript.GotoBottom()
	}
}

// newMarkdown returns nil when the renderer cannot be built; replies are then
// shown as plain wrapped text.
func newMarkdown(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m *Model) renderContent(t turnEntry, width int) string {
	if t.role == core.RoleAssistant && m.markdown != nil && t.content != "" {
		if out, err := m.markdown.Render(t.content); err == nil {
			return strings.Trim(out, "\n")
		}
	}
	return lipgloss.NewStyle().Width(width).Render(t.content)
}

func roleLabel(role core.Role) string {
	switch role {
	case core.RoleUser:
		return "You"
	case core.RoleAssistant:
		return "Game Master"
	default:
		return string(role)
	}
}

func (m Model) View() string {
	header := m.theme.header.Render("chatkit") + "  " + m.statusLine()

	body := m.transcript.View()
	if m.width-sidebarWidth-2 >= 20 {
		body = lipgloss.JoinHorizontal(lipgloss.Top, body, m.theme.sidebar.Width(sidebarWidth).Render(m.sessionList()))
	}

	notice := m.theme.notice.Render(m.notice)
	help := m.theme.help.Render("enter send · ctrl+r record · ctrl+s speak · ctrl+x stop · ctrl+g image · ctrl+n new · esc quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, body, notice, m.input.View(), help)
}

func (m Model) statusLine() string {
	health := m.theme.healthStyle(m.health).Render(string(m.health))
	parts := []string{"proxy " + health}
	switch m.recording {
	case core.RecordingActive:
		parts = append(parts, m.theme.recording.Render("● recording"))
	case core.RecordingTranscribing:
		parts = append(parts, m.spinner.View()+m.theme.recording.Render("transcribing"))
	}
	if m.streaming {
		parts = append(parts, m.spinner.View()+"narrating")
	}
	return strings.Join(parts, "  ")
}

func (m Model) sessionList() string {
	if len(m.sessions) == 0 {
		return m.theme.help.Render("No saved sessions")
	}
	var b strings.Builder
	b.WriteString(m.theme.sidebarTitle.Render("Sessions"))
	for i, s := range m.sessions {
		title := s.Title
		if r := []rune(title); len(r) > sidebarWidth-8 {
			title = string(r[:sidebarWidth-9]) + "…"
		}
		fmt.Fprintf(&b, "\n%2d. %s", i+1, title)
	}
	return b.String()
}
