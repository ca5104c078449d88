package core

import (
	"strings"
	"sync"
)

// PendingInput is the text the user is composing but has not sent yet.
type PendingInput struct {
	mu   sync.Mutex
	text string
}

func (p *PendingInput) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.text
}

func (p *PendingInput) SetText(text string) {
	p.mu.Lock()
	p.text = text
	p.mu.Unlock()
}

// Append space-joins text onto the pending input and returns the result.
func (p *PendingInput) Append(text string) string {
	text = strings.TrimSpace(text)
	p.mu.Lock()
	defer p.mu.Unlock()
	if text == "" {
		return p.text
	}
	if strings.TrimSpace(p.text) == "" {
		p.text = text
	} else {
		p.text = strings.TrimRight(p.text, " ") + " " + text
	}
	return p.text
}

// Take returns the pending text and clears it.
func (p *PendingInput) Take() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	text := p.text
	p.text = ""
	return text
}
