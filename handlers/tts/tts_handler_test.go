package tts

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/core"
)

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

type fakeHandle struct {
	name  string
	log   *eventLog
	once  sync.Once
	done  chan struct{}
	stops int
	mu    sync.Mutex
}

func newFakeHandle(name string, log *eventLog) *fakeHandle {
	return &fakeHandle{name: name, log: log, done: make(chan struct{})}
}

func (h *fakeHandle) Done() <-chan struct{} { return h.done }

func (h *fakeHandle) Stop() {
	h.mu.Lock()
	h.stops++
	h.mu.Unlock()
	h.once.Do(func() {
		h.log.add("stop " + h.name)
		close(h.done)
	})
}

// finish simulates playback ending on its own.
func (h *fakeHandle) finish() {
	h.once.Do(func() { close(h.done) })
}

type fakeEngine struct {
	log     *eventLog
	handles []*fakeHandle
	err     error
}

func (e *fakeEngine) CancelAll() { e.log.add("cancel") }

func (e *fakeEngine) Say(_ context.Context, text string) (Handle, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.log.add("say " + text)
	h := newFakeHandle(text, e.log)
	e.handles = append(e.handles, h)
	return h, nil
}

func newLocalPlayback(log *eventLog) (*Playback, *fakeEngine) {
	engine := &fakeEngine{log: log}
	return NewPlayback(NewLocalSpeaker(engine), DefaultConfig(), core.NewDiscardLogger()), engine
}

func TestPlayback_SupersedingStopsPreviousFirst(t *testing.T) {
	log := &eventLog{}
	p, engine := newLocalPlayback(log)
	ctx := context.Background()

	require.NoError(t, p.Speak(ctx, "one"))
	require.NoError(t, p.Speak(ctx, "two"))

	assert.Equal(t, []string{"cancel", "say one", "stop one", "cancel", "say two"}, log.all())
	assert.True(t, p.Active())
	require.Len(t, engine.handles, 2)
	assert.Equal(t, 1, engine.handles[0].stops)
	assert.Equal(t, 0, engine.handles[1].stops)
}

func TestPlayback_StopIsIdempotent(t *testing.T) {
	log := &eventLog{}
	p, engine := newLocalPlayback(log)

	p.Stop()
	require.NoError(t, p.Speak(context.Background(), "hello"))
	p.Stop()
	p.Stop()

	assert.False(t, p.Active())
	assert.Equal(t, 1, engine.handles[0].stops)
}

func TestPlayback_NaturalEndClearsCurrent(t *testing.T) {
	p, engine := newLocalPlayback(&eventLog{})

	require.NoError(t, p.Speak(context.Background(), "hello"))
	engine.handles[0].finish()

	assert.Eventually(t, func() bool { return !p.Active() }, time.Second, 5*time.Millisecond)
	p.Stop()
	assert.Equal(t, 0, engine.handles[0].stops)
}

func TestPlayback_NormalizesAndSkipsEmpty(t *testing.T) {
	log := &eventLog{}
	p, _ := newLocalPlayback(log)

	require.NoError(t, p.Speak(context.Background(), "  **🎲**  "))
	assert.Empty(t, log.all())

	require.NoError(t, p.Speak(context.Background(), "# The Keep\n\nYou *see* a [gate](http://x)."))
	assert.Equal(t, []string{"cancel", "say The Keep You see a gate."}, log.all())
}

func TestPlayback_NoSpeaker(t *testing.T) {
	p := NewPlayback(nil, DefaultConfig(), core.NewDiscardLogger())
	assert.ErrorIs(t, p.Speak(context.Background(), "hi"), ErrNoSpeaker)
	_, ok := p.Provider()
	assert.False(t, ok)
}

func TestPlayback_StartFailureLeavesNothingActive(t *testing.T) {
	log := &eventLog{}
	engine := &fakeEngine{log: log}
	p := NewPlayback(NewLocalSpeaker(engine), DefaultConfig(), core.NewDiscardLogger())
	ctx := context.Background()

	require.NoError(t, p.Speak(ctx, "one"))
	engine.err = errors.New("engine unavailable")
	assert.Error(t, p.Speak(ctx, "two"))

	assert.False(t, p.Active())
	assert.Equal(t, 1, engine.handles[0].stops)
}

func TestPlayback_SetSpeakerStopsActive(t *testing.T) {
	log := &eventLog{}
	p, engine := newLocalPlayback(log)
	require.NoError(t, p.Speak(context.Background(), "one"))

	p.SetSpeaker(NewLocalSpeaker(&fakeEngine{log: log}))
	assert.Equal(t, 1, engine.handles[0].stops)
	assert.False(t, p.Active())
}

// slowSpeaker blocks in Start until release is closed, like a remote
// synthesis round trip.
type slowSpeaker struct {
	log     *eventLog
	entered chan struct{}
	release chan struct{}
	handle  *fakeHandle
}

func (s *slowSpeaker) Kind() ProviderKind { return ProviderRemote }

func (s *slowSpeaker) Start(context.Context, string) (Handle, error) {
	close(s.entered)
	<-s.release
	s.handle = newFakeHandle("slow", s.log)
	return s.handle, nil
}

func TestPlayback_StopDoesNotWaitForSynthesis(t *testing.T) {
	speaker := &slowSpeaker{log: &eventLog{}, entered: make(chan struct{}), release: make(chan struct{})}
	p := NewPlayback(speaker, DefaultConfig(), core.NewDiscardLogger())

	done := make(chan error, 1)
	go func() { done <- p.Speak(context.Background(), "a long tale") }()
	<-speaker.entered

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on synthesis")
	}

	close(speaker.release)
	require.NoError(t, <-done)
	assert.False(t, p.Active())
	assert.Equal(t, 1, speaker.handle.stops)
}

type fakeSynth struct {
	audio       []byte
	contentType string
	err         error
}

func (s *fakeSynth) Synthesize(context.Context, string) ([]byte, string, error) {
	return s.audio, s.contentType, s.err
}

type fakePlayer struct {
	log     *eventLog
	paths   []string
	handles []*fakeHandle
	err     error
}

func (p *fakePlayer) Play(_ context.Context, path string) (Handle, error) {
	p.paths = append(p.paths, path)
	if p.err != nil {
		return nil, p.err
	}
	h := newFakeHandle(filepath.Base(path), p.log)
	p.handles = append(p.handles, h)
	return h, nil
}

func TestRemoteSpeaker_ReleasesFileOnStop(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{log: &eventLog{}}
	speaker := NewRemoteSpeaker(&fakeSynth{audio: []byte("ID3"), contentType: "audio/mpeg"}, player, dir, core.NewDiscardLogger())

	h, err := speaker.Start(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, player.paths, 1)
	path := player.paths[0]
	assert.Equal(t, ".mp3", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3"), data)

	h.Stop()
	h.Stop()
	<-h.Done()
	assert.NoFileExists(t, path)
	assert.Equal(t, 2, player.handles[0].stops)
}

func TestRemoteSpeaker_ReleasesFileOnNaturalEnd(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{log: &eventLog{}}
	speaker := NewRemoteSpeaker(&fakeSynth{audio: []byte("RIFF"), contentType: "audio/wav; codecs=1"}, player, dir, core.NewDiscardLogger())

	h, err := speaker.Start(context.Background(), "hello")
	require.NoError(t, err)
	path := player.paths[0]
	assert.Equal(t, ".wav", filepath.Ext(path))

	player.handles[0].finish()
	select {
	case <-h.Done():
	case <-time.After(time.Second):
		t.Fatal("handle never finished")
	}
	assert.NoFileExists(t, path)
	h.Stop()
}

func TestRemoteSpeaker_PlayerFailureRemovesFile(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{log: &eventLog{}, err: errors.New("no player")}
	speaker := NewRemoteSpeaker(&fakeSynth{audio: []byte("x"), contentType: "audio/mpeg"}, player, dir, core.NewDiscardLogger())

	_, err := speaker.Start(context.Background(), "hello")
	assert.Error(t, err)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRemoteSpeaker_SynthesisFailure(t *testing.T) {
	player := &fakePlayer{log: &eventLog{}}
	speaker := NewRemoteSpeaker(&fakeSynth{err: errors.New("HTTP 500")}, player, t.TempDir(), core.NewDiscardLogger())

	_, err := speaker.Start(context.Background(), "hello")
	assert.Error(t, err)
	assert.Empty(t, player.paths)
}

func TestRemotePlayback_SupersedeReleasesPreviousFile(t *testing.T) {
	dir := t.TempDir()
	player := &fakePlayer{log: &eventLog{}}
	speaker := NewRemoteSpeaker(&fakeSynth{audio: []byte("x"), contentType: "audio/mpeg"}, player, dir, core.NewDiscardLogger())
	p := NewPlayback(speaker, DefaultConfig(), core.NewDiscardLogger())
	ctx := context.Background()

	require.NoError(t, p.Speak(ctx, "one"))
	first := player.paths[0]
	require.NoError(t, p.Speak(ctx, "two"))

	assert.NoFileExists(t, first)
	assert.FileExists(t, player.paths[1])
	p.Stop()
	assert.NoFileExists(t, player.paths[1])
}

func TestParseProviderKind(t *testing.T) {
	assert.Equal(t, ProviderLocal, ParseProviderKind(""))
	assert.Equal(t, ProviderLocal, ParseProviderKind("webspeech"))
	assert.Equal(t, ProviderLocal, ParseProviderKind("local"))
	assert.Equal(t, ProviderRemote, ParseProviderKind("custom"))
	assert.Equal(t, ProviderRemote, ParseProviderKind(" Remote "))
	assert.Equal(t, "remote", ProviderRemote.String())
}

func TestNormalizeTextForTTS(t *testing.T) {
	assert.Equal(t, "Bold and code", normalizeTextForTTS("**Bold** and `code`", 0))
	assert.Equal(t, "Item one Item two", normalizeTextForTTS("- Item one\n- Item two", 0))
	assert.Equal(t, "Roll!", normalizeTextForTTS("Roll! 🎲🐉", 0))
	assert.Equal(t, "alpha beta", normalizeTextForTTS("alpha beta gamma", 11))
	assert.Equal(t, "", normalizeTextForTTS("   ", 0))
}
