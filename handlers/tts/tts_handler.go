package tts

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"chatkit/core"
)

var ErrNoSpeaker = errors.New("tts: no speech provider configured")

type Handle = core.PlaybackHandle

// Speaker is the synthesis capability a provider offers.
type Speaker interface {
	Kind() ProviderKind
	Start(ctx context.Context, text string) (Handle, error)
}

// Playback keeps at most one playback alive. Speak stops and releases the
// previous handle before the new one starts, so two utterances are never
// audible together. Synthesis runs without mu held so Stop never waits on it;
// gen tells Speak whether a Stop or a newer Speak superseded it meanwhile.
type Playback struct {
	speakMu  sync.Mutex // serializes Speak
	mu       sync.Mutex
	speaker  Speaker
	current  Handle
	gen      uint64
	maxChars int
	logger   *core.Logger
}

func NewPlayback(speaker Speaker, config PlaybackConfig, logger *core.Logger) *Playback {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Playback{
		speaker:  speaker,
		maxChars: config.MaxTextLength,
		logger:   logger.With(map[string]interface{}{"component": "playback"}),
	}
}

// SetSpeaker swaps the provider, stopping anything the old one is playing.
func (p *Playback) SetSpeaker(speaker Speaker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
	p.speaker = speaker
}

func (p *Playback) Provider() (ProviderKind, bool) {
	p.speakMu.Lock()
	defer p.speakMu.Unlock()

	p.mu.Lock()
	speaker := p.speaker
	if speaker == nil {
		p.mu.Unlock()
		return ErrNoSpeaker
	}
	p.stopLocked()
	gen := p.gen
	p.mu.Unlock()

	handle, err := speaker.Start(ctx, text)
	if err != nil {
		return fmt.Errorf("tts: %s speak: %w", speaker.Kind(), err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen {
		// stopped while synthesizing
		handle.Stop()
		return nil
	}
	p.current = handle
	p.logger.With(map[string]interface{}{"provider": speaker.Kind().String(), "chars": len(text)}).Debug("playback started")

	go func() {
		<-handle.Done()
		p.mu.Lock()
		if p.current == handle {
			p.current = nil
		}
		p.mu.Unlock()
	}()
	return nil
}

// Stop halts the active playback, if any.
func (p *Playback) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

func (p *Playback) stopLocked() {
	p.gen++
	if p.current == nil {
		return
	}
	p.current.Stop()
	p.current = nil
}

// Active reports whether a playback is live.
func (p *Playback) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}
