package tts

import (
	"context"
	"fmt"
	"mime"
	"os"
	"strings"
	"sync"

	"chatkit/core"
)

// LocalEngine is an on-device synthesis engine.
type LocalEngine interface {
	// CancelAll silences any utterance the engine is producing.
	CancelAll()
	Say(ctx context.Context, text string) (Handle, error)
}

// LocalSpeaker speaks through the on-device engine.
type LocalSpeaker struct {
	engine LocalEngine
}

func NewLocalSpeaker(engine LocalEngine) *LocalSpeaker {
	return &LocalSpeaker{engine: engine}
}

func (s *LocalSpeaker) Kind() ProviderKind { return ProviderLocal }

// Start cancels the engine's prior utterance, then enqueues text.
func (s *LocalSpeaker) Start(ctx context.Context, text string) (Handle, error) {
	s.engine.CancelAll()
	return s.engine.Say(ctx, text)
}

// Synthesizer turns text into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// Player plays an audio file.
type Player interface {
	Play(ctx context.Context, path string) (Handle, error)
}

// RemoteSpeaker fetches audio from the synthesis endpoint, writes it to one
// transient file and plays it. The file is removed exactly once, when
// playback ends or is stopped.
type RemoteSpeaker struct {
	synth   Synthesizer
	player  Player
	tempDir string
	logger  *core.Logger
}

func NewRemoteSpeaker(synth Synthesizer, player Player, tempDir string, logger *core.Logger) *RemoteSpeaker {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &RemoteSpeaker{
		synth:   synth,
		player:  player,
		tempDir: tempDir,
		logger:  logger.With(map[string]interface{}{"component": "remote_speaker"}),
	}
}

func (s *RemoteSpeaker) Kind() ProviderKind { return ProviderRemote }

func (s *RemoteSpeaker) Start(ctx context.Context, text string) (Handle, error) {
	audio, contentType, err := s.synth.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("synthesis returned no audio")
	}

	f, err := os.CreateTemp(s.tempDir, "chatkit-speech-*"+extensionFor(contentType))
	if err != nil {
		return nil, fmt.Errorf("create audio file: %w", err)
	}
	path := f.Name()
	release := func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.With(map[string]interface{}{"error": err, "path": path}).Debug("releasing speech file")
		}
	}

	_, werr := f.Write(audio)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		release()
		return nil, fmt.Errorf("write audio file: %w", firstErr(werr, cerr))
	}

	inner, err := s.player.Play(ctx, path)
	if err != nil {
		release()
		return nil, err
	}
	return newResourceHandle(inner, release), nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func extensionFor(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ".mp3"
	}
	switch strings.ToLower(mediaType) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg", "audio/opus":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/aac":
		return ".aac"
	case "audio/flac":
		return ".flac"
	default:
		return ".mp3"
	}
}

// resourceHandle ties a transient resource to a playback and releases it
// exactly once.
type resourceHandle struct {
	inner   Handle
	release func()
	once    sync.Once
	done    chan struct{}
}

func newResourceHandle(inner Handle, release func()) *resourceHandle {
	h := &resourceHandle{inner: inner, release: release, done: make(chan struct{})}
	go func() {
		<-inner.Done()
		h.finish()
	}()
	return h
}

func (h *resourceHandle) finish() {
	h.once.Do(func() {
		h.release()
		close(h.done)
	})
}

func (h *resourceHandle) Done() <-chan struct{} { return h.done }

func (h *resourceHandle) Stop() {
	h.inner.Stop()
	h.finish()
}
