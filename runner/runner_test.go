package runner

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatkit/core"
	contexthandler "chatkit/handlers/context"
	"chatkit/handlers/image"
	"chatkit/handlers/llm"
	"chatkit/handlers/tts"
	"chatkit/services/proxy"
	"chatkit/storage"
	"chatkit/storage/memory"
)

type uiRecorder struct {
	core.NopRenderer
	mu       sync.Mutex
	turns    []core.Turn
	notices  []string
	resets   int
	listed   [][]*core.Session
	statuses []core.HealthStatus
}

func (r *uiRecorder) RenderTurn(role core.Role, content string) core.TurnView {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.turns = append(r.turns, core.Turn{Role: role, Content: content})
	return &uiView{r: r, idx: len(r.turns) - 1}
}

type uiView struct {
	r   *uiRecorder
	idx int
}

func (v *uiView) SetContent(content string) {
	v.r.mu.Lock()
	defer v.r.mu.Unlock()
	v.r.turns[v.idx].Content = content
}

func (r *uiRecorder) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, message)
}

func (r *uiRecorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resets++
	r.turns = nil
}

func (r *uiRecorder) ShowSessions(sessions []*core.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listed = append(r.listed, sessions)
}

func (r *uiRecorder) ShowHealth(status core.HealthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, status)
}

type nopHandle struct{ done chan struct{} }

func (h *nopHandle) Done() <-chan struct{} { return h.done }
func (h *nopHandle) Stop()                 {}

type fakeSpeaker struct {
	kind   tts.ProviderKind
	mu     sync.Mutex
	spoken []string
}

func (s *fakeSpeaker) Kind() tts.ProviderKind { return s.kind }

func (s *fakeSpeaker) Start(_ context.Context, text string) (tts.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoken = append(s.spoken, text)
	return &nopHandle{done: make(chan struct{})}, nil
}

type harness struct {
	runner   *Runner
	ui       *uiRecorder
	session  *core.SessionContext
	settings *storage.Sessions
	dispatch *llm.Dispatcher
	speaker  *fakeSpeaker
	built    []tts.ProviderKind
}

func proxyServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"The door creaks.\"}}]}\n\ndata: [DONE]\n\n")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newHarness(t *testing.T) *harness {
	logger := core.NewDiscardLogger()
	srv := proxyServer(t)

	settings := storage.NewSessions(memory.NewStore(), logger)
	session := core.NewSessionContext(settings, nil, llm.DEFAULT_SYSTEM_PROMPT, llm.DefaultModel, logger)
	ui := &uiRecorder{}
	client := proxy.NewClient(proxy.Config{BaseURL: srv.URL}, srv.Client(), logger)
	speaker := &fakeSpeaker{kind: tts.ProviderLocal}
	playback := tts.NewPlayback(speaker, tts.DefaultConfig(), logger)
	dispatch := llm.NewDispatcher(session, contexthandler.NewSelector(contexthandler.DefaultSelectorConfig()),
		client, ui, playback, llm.DefaultConfig(), logger)

	h := &harness{ui: ui, session: session, settings: settings, dispatch: dispatch, speaker: speaker}
	h.runner = NewRunner(Config{
		Session:    session,
		Settings:   settings,
		Client:     client,
		Dispatcher: dispatch,
		Playback:   playback,
		Images:     image.NewGenerator(session, client, ui, image.DefaultConfig(), logger),
		Renderer:   ui,
		BuildSpeaker: func(kind tts.ProviderKind) (tts.Speaker, error) {
			h.built = append(h.built, kind)
			return &fakeSpeaker{kind: kind}, nil
		},
	}, logger)
	return h
}

func (h *harness) setting(t *testing.T, key string) string {
	v, _, err := h.settings.GetSetting(context.Background(), key)
	require.NoError(t, err)
	return v
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Intent
	}{
		{"hello there", Intent{Kind: IntentSend, Arg: "hello there"}},
		{"  /new  ", Intent{Kind: IntentNewSession}},
		{"/load abc-123", Intent{Kind: IntentLoadSession, Arg: "abc-123"}},
		{"/MODEL gpt-4o", Intent{Kind: IntentSetModel, Arg: "gpt-4o"}},
		{"/system You are terse.", Intent{Kind: IntentSetSystemPrompt, Arg: "You are terse."}},
		{"/proxy", Intent{Kind: IntentSetProxyURL}},
		{"//roll initiative", Intent{Kind: IntentSend, Arg: "/roll initiative"}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCommand("/dance")
	assert.ErrorIs(t, err, ErrUnknownCommand)

	_, err = ParseCommand("/load")
	assert.ErrorIs(t, err, ErrMissingArg)
}

func TestParseIntent(t *testing.T) {
	got, err := ParseIntent("send", "hi")
	require.NoError(t, err)
	assert.Equal(t, Intent{Kind: IntentSend, Arg: "hi"}, got)

	_, err = ParseIntent("explode", "")
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestDispatch_SendUsesPendingInputAndRefreshesList(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetInput, Arg: "I open the door"}))

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSend}))

	snap := h.session.Snapshot()
	require.Len(t, snap.Turns, 3)
	assert.Equal(t, "I open the door", snap.Turns[1].Content)
	assert.Equal(t, "The door creaks.", snap.LastAssistantUtterance)
	assert.Equal(t, "I open the door", snap.Title)
	assert.Empty(t, h.runner.cfg.Input.Text())

	require.NotEmpty(t, h.ui.listed)
	last := h.ui.listed[len(h.ui.listed)-1]
	require.Len(t, last, 1)
	assert.Equal(t, snap.ID, last[0].ID)
}

func TestDispatch_NewLoadDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSend, Arg: "first campaign"}))
	first := h.session.CurrentID()

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentNewSession}))
	second := h.session.CurrentID()
	assert.NotEqual(t, first, second)
	assert.Empty(t, h.ui.turns)

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentLoadSession, Arg: first}))
	assert.Equal(t, first, h.session.CurrentID())
	require.Len(t, h.ui.turns, 2)
	assert.Equal(t, core.Turn{Role: core.RoleUser, Content: "first campaign"}, h.ui.turns[0])
	assert.Equal(t, core.Turn{Role: core.RoleAssistant, Content: "The door creaks."}, h.ui.turns[1])

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentDeleteSession, Arg: first}))
	assert.NotEqual(t, first, h.session.CurrentID())
	assert.Empty(t, h.ui.turns)

	err := h.runner.Dispatch(ctx, Intent{Kind: IntentLoadSession, Arg: first})
	assert.ErrorIs(t, err, core.ErrSessionNotFound)
	assert.Contains(t, h.ui.notices, fmt.Sprintf("Could not load session %s.", first))
}

func TestDispatch_SettingsArePersisted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetModel, Arg: "gpt-4o"}))
	assert.Equal(t, "gpt-4o", h.session.Snapshot().Model)
	assert.Equal(t, "gpt-4o", h.setting(t, core.SettingModel))

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetSystemPrompt, Arg: "Be terse."}))
	snap := h.session.Snapshot()
	assert.Equal(t, "Be terse.", snap.Turns[0].Content)
	assert.Equal(t, "Be terse.", h.setting(t, core.SettingSystemPrompt))

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetAutoSpeak, Arg: "on"}))
	assert.True(t, h.dispatch.AutoSpeak())
	assert.Equal(t, "true", h.setting(t, core.SettingAutoSpeak))

	err := h.runner.Dispatch(ctx, Intent{Kind: IntentSetAutoSpeak, Arg: "sometimes"})
	assert.ErrorIs(t, err, ErrInvalidValue)

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetImageSize, Arg: "1792 X 1024"}))
	assert.Equal(t, "1792x1024", h.setting(t, core.SettingImageSize))

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetTTSProvider, Arg: "remote"}))
	assert.Equal(t, []tts.ProviderKind{tts.ProviderRemote}, h.built)
	assert.Equal(t, "remote", h.setting(t, core.SettingTTSProvider))

	// new sessions inherit the updated defaults
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentNewSession}))
	snap = h.session.Snapshot()
	assert.Equal(t, "gpt-4o", snap.Model)
	assert.Equal(t, "Be terse.", snap.SystemPrompt)
}

func TestDispatch_EmptySystemPromptRestoresDefault(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetSystemPrompt, Arg: "Be terse."}))
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetSystemPrompt}))

	assert.Equal(t, llm.DEFAULT_SYSTEM_PROMPT, h.session.Snapshot().Turns[0].Content)
	assert.Empty(t, h.setting(t, core.SettingSystemPrompt))
}

func TestDispatch_ProxyChangeChecksHealth(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetProxyURL, Arg: ""}))
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentCheckHealth}))
	assert.Equal(t, []core.HealthStatus{core.HealthUnconfigured, core.HealthUnconfigured}, h.ui.statuses)

	srv := proxyServer(t)
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSetProxyURL, Arg: srv.URL + "/"}))
	assert.Equal(t, core.HealthConnected, h.ui.statuses[len(h.ui.statuses)-1])
	assert.Equal(t, srv.URL, h.setting(t, core.SettingProxyURL))
}

func TestDispatch_Speak(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	err := h.runner.Dispatch(ctx, Intent{Kind: IntentSpeak})
	assert.ErrorIs(t, err, ErrNothingToSpeak)
	assert.Contains(t, h.ui.notices, NothingToSpeakNotice)

	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSend, Arg: "knock"}))
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSpeak}))
	assert.Equal(t, []string{"The door creaks."}, h.speaker.spoken)
}

func TestDispatch_ImageWithoutNarration(t *testing.T) {
	h := newHarness(t)
	err := h.runner.Dispatch(context.Background(), Intent{Kind: IntentImage})
	assert.True(t, errors.Is(err, image.ErrNoNarration))
	assert.Contains(t, h.ui.notices, image.NoNarrationNotice)
}

func TestDispatch_UnknownKindShowsHelp(t *testing.T) {
	h := newHarness(t)
	err := h.runner.Dispatch(context.Background(), Intent{Kind: "dance"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, h.ui.notices, CommandHelp)
}

func TestStartRendersRestoredSession(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.runner.Dispatch(ctx, Intent{Kind: IntentSend, Arg: "hello"}))

	h.runner.Start(ctx)
	assert.Equal(t, 1, h.ui.resets)
	assert.Len(t, h.ui.turns, 2)
	assert.Equal(t, core.HealthConnected, h.ui.statuses[len(h.ui.statuses)-1])
}

func TestParseToggle(t *testing.T) {
	for _, v := range []string{"on", "TRUE", " yes ", "1"} {
		got, err := ParseToggle(v)
		require.NoError(t, err)
		assert.True(t, got, v)
	}
	for _, v := range []string{"off", "false", "no", "0"} {
		got, err := ParseToggle(v)
		require.NoError(t, err)
		assert.False(t, got, v)
	}
}
