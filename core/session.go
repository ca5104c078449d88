package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// DefaultTitle is the sentinel title a session carries until one is derived.
	DefaultTitle = "New Campaign"
	// TitleMaxLength bounds a derived title, in characters.
	TitleMaxLength = 40
)

var (
	ErrSystemTurnAppend = errors.New("session: system turns can only be replaced, not appended")
	ErrInvalidRole      = errors.New("session: invalid role")
	ErrMissingSystem    = errors.New("session: turn 0 must be the only system turn")
)

// now strips the monotonic reading so timestamps survive a serialize/reload
// round trip unchanged.
var now = func() time.Time { return time.Now().UTC().Round(0) }

// Session is a titled, timestamped conversation. Turns[0] is always the single
// system turn; every mutation goes through the methods below so UpdatedAt never
// moves backwards.
type Session struct {
	ID                     string    `json:"id"`
	Title                  string    `json:"title"`
	SystemPrompt           string    `json:"system_prompt"`
	Model                  string    `json:"model"`
	Turns                  []Turn    `json:"turns"`
	LastAssistantUtterance string    `json:"last_assistant_utterance"`
	CreatedAt              time.Time `json:"created_at"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// NewSession creates a session whose only turn is the system prompt.
func NewSession(systemPrompt, model string) *Session {
	ts := now()
	return &Session{
		ID:           uuid.NewString(),
		Title:        DefaultTitle,
		SystemPrompt: systemPrompt,
		Model:        model,
		Turns:        []Turn{{Role: RoleSystem, Content: systemPrompt}},
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
}

// touch advances UpdatedAt, never backwards.
func (s *Session) touch() {
	ts := now()
	if ts.Before(s.UpdatedAt) {
		ts = s.UpdatedAt
	}
	s.UpdatedAt = ts
}

// Touch records a mutation that happened outside the turn log, e.g. an
// explicit save.
func (s *Session) Touch() {
	s.touch()
}

// AppendTurn inserts a user or assistant turn at the tail.
func (s *Session) AppendTurn(role Role, content string) error {
	switch {
	case role == RoleSystem:
		return ErrSystemTurnAppend
	case !role.Valid():
		return fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	s.Turns = append(s.Turns, Turn{Role: role, Content: content})
	s.touch()
	return nil
}

// ReplaceSystemTurn overwrites turn 0 in place.
func (s *Session) ReplaceSystemTurn(prompt string) {
	s.SystemPrompt = prompt
	if len(s.Turns) > 0 && s.Turns[0].Role == RoleSystem {
		s.Turns[0].Content = prompt
	} else {
		s.Turns = append([]Turn{{Role: RoleSystem, Content: prompt}}, s.Turns...)
	}
	s.touch()
}

// CommitAssistantReply appends the streamed reply and remembers it as the last
// utterance for speech and image prompts.
func (s *Session) CommitAssistantReply(text string) {
	s.Turns = append(s.Turns, Turn{Role: RoleAssistant, Content: text})
	s.LastAssistantUtterance = text
	s.touch()
}

// SetModel changes the model identifier used for future requests.
func (s *Session) SetModel(model string) {
	if s.Model == model {
		return
	}
	s.Model = model
	s.touch()
}

// DeriveTitle sets the title from the first non-empty user turn. It only acts
// while the title is empty or the default sentinel, so repeated calls are
// no-ops once a title exists.
func (s *Session) DeriveTitle() {
	if s.Title != "" && s.Title != DefaultTitle {
		return
	}
	for _, t := range s.Turns {
		if t.Role != RoleUser || strings.TrimSpace(t.Content) == "" {
			continue
		}
		s.Title = titleFrom(t.Content)
		s.touch()
		return
	}
}

func titleFrom(content string) string {
	line := strings.TrimSpace(content)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	if utf8.RuneCountInString(line) <= TitleMaxLength {
		return line
	}
	runes := []rune(line)
	return string(runes[:TitleMaxLength])
}

// Validate checks the system-turn invariant. Stores call it on load so a
// corrupted record is rejected instead of silently repaired.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session: missing id")
	}
	if len(s.Turns) == 0 || s.Turns[0].Role != RoleSystem {
		return ErrMissingSystem
	}
	for i, t := range s.Turns[1:] {
		if t.Role == RoleSystem {
			return fmt.Errorf("%w: extra system turn at index %d", ErrMissingSystem, i+1)
		}
		if !t.Role.Valid() {
			return fmt.Errorf("%w: %q at index %d", ErrInvalidRole, t.Role, i+1)
		}
	}
	return nil
}

// Clone returns a deep copy safe to hand to another owner.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Turns = make([]Turn, len(s.Turns))
	copy(cp.Turns, s.Turns)
	return &cp
}
