// Package runner maps user intents onto the engine's components. Every front
// end (terminal UI, remote UI) funnels its actions through Runner.Dispatch.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"chatkit/core"
	"chatkit/handlers/image"
	"chatkit/handlers/llm"
	"chatkit/handlers/stt"
	"chatkit/handlers/tts"
	"chatkit/services/proxy"
)

const NothingToSpeakNotice = "Nothing to speak yet. Send a message first."

var (
	ErrNothingToSpeak = errors.New("runner: no narration to speak")
	ErrInvalidValue   = errors.New("runner: invalid setting value")
)

// Config bundles the components a Runner drives. BuildSpeaker constructs the
// speaker for a provider selection; it may be nil when speech is disabled.
type Config struct {
	Session      *core.SessionContext
	Settings     core.SettingsStore
	Input        *core.PendingInput
	Client       *proxy.Client
	Dispatcher   *llm.Dispatcher
	Capture      *stt.CapturePipeline
	Playback     *tts.Playback
	Images       *image.Generator
	Renderer     core.Renderer
	BuildSpeaker func(kind tts.ProviderKind) (tts.Speaker, error)

	// Model and SystemPrompt seed sessions started with IntentNewSession.
	Model        string
	SystemPrompt string
}

type Runner struct {
	cfg          Config
	mu           sync.Mutex
	model        string
	systemPrompt string
	logger       *core.Logger
}

func NewRunner(cfg Config, logger *core.Logger) *Runner {
	if logger == nil {
		logger = core.GetLogger()
	}
	if cfg.Renderer == nil {
		cfg.Renderer = core.NopRenderer{}
	}
	if cfg.Input == nil {
		cfg.Input = &core.PendingInput{}
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = llm.DEFAULT_SYSTEM_PROMPT
	}
	return &Runner{
		cfg:          cfg,
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		logger:       logger.With(map[string]interface{}{"component": "runner"}),
	}
}

// Start renders the restored session, the session list and the proxy health.
func (r *Runner) Start(ctx context.Context) {
	r.renderSession(r.cfg.Session.Snapshot())
	r.listSessions(ctx)
	r.checkHealth(ctx)
}

// Dispatch runs one intent to completion. User-visible failures have already
// been rendered or notified when the error is returned.
func (r *Runner) Dispatch(ctx context.Context, intent Intent) error {
	logger := r.logger.With(map[string]interface{}{
		"intent":     string(intent.Kind),
		"session_id": r.cfg.Session.CurrentID(),
	})
	logger.Debug("dispatching intent")
	ctx = core.ContextWithSessionLogger(ctx, logger)

	switch intent.Kind {
	case IntentSend:
		return r.send(ctx, intent.Arg)
	case IntentSetInput:
		r.cfg.Input.SetText(intent.Arg)
		return nil
	case IntentRecord:
		return r.record(ctx)
	case IntentSpeak:
		return r.speak(ctx)
	case IntentStopSpeech:
		if r.cfg.Playback != nil {
			r.cfg.Playback.Stop()
		}
		return nil
	case IntentImage:
		_, err := r.cfg.Images.Generate(ctx)
		return err
	case IntentNewSession:
		return r.newSession(ctx)
	case IntentSaveSession:
		return r.saveSession(ctx)
	case IntentListSessions:
		return r.listSessions(ctx)
	case IntentLoadSession:
		return r.loadSession(ctx, intent.Arg)
	case IntentDeleteSession:
		return r.deleteSession(ctx, intent.Arg)
	case IntentSetModel:
		return r.setModel(ctx, intent.Arg)
	case IntentSetSystemPrompt:
		return r.setSystemPrompt(ctx, intent.Arg)
	case IntentSetProxyURL:
		r.cfg.Client.SetBaseURL(intent.Arg)
		r.persist(ctx, core.SettingProxyURL, r.cfg.Client.BaseURL())
		r.checkHealth(ctx)
		return nil
	case IntentSetTTSProvider:
		return r.setTTSProvider(ctx, intent.Arg)
	case IntentSetTTSURL:
		r.cfg.Client.SetTTSURL(intent.Arg)
		r.persist(ctx, core.SettingTTSURL, r.cfg.Client.TTSURL())
		return nil
	case IntentSetAutoSpeak:
		return r.setAutoSpeak(ctx, intent.Arg)
	case IntentSetImageSize:
		size := r.cfg.Images.SetSize(intent.Arg)
		r.persist(ctx, core.SettingImageSize, size)
		r.cfg.Renderer.Notify("Image size set to " + size + ".")
		return nil
	case IntentCheckHealth:
		r.checkHealth(ctx)
		return nil
	default:
		r.cfg.Renderer.Notify(CommandHelp)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, intent.Kind)
	}
}

// Close abandons any recording and silences playback.
func (r *Runner) Close() {
	if r.cfg.Capture != nil {
		if err := r.cfg.Capture.Close(); err != nil {
			r.logger.With(map[string]interface{}{"error": err}).Debug("closing capture pipeline")
		}
	}
	if r.cfg.Playback != nil {
		r.cfg.Playback.Stop()
	}
}

// send dispatches arg, or the pending input when arg is empty. The pending
// input survives a rejected send.
func (r *Runner) send(ctx context.Context, arg string) error {
	text := arg
	if strings.TrimSpace(text) == "" {
		text = r.cfg.Input.Text()
	}
	err := r.cfg.Dispatcher.Send(ctx, text)
	if errors.Is(err, llm.ErrDispatchInFlight) {
		return err
	}
	r.cfg.Input.SetText("")
	r.listSessions(ctx)
	return err
}

func (r *Runner) record(ctx context.Context) error {
	if r.cfg.Capture == nil {
		r.cfg.Renderer.Notify("Recording is not available.")
		return stt.ErrNotRecording
	}
	err := r.cfg.Capture.Toggle(ctx)
	if errors.Is(err, stt.ErrTranscribing) {
		r.cfg.Renderer.Notify("Still transcribing the last recording.")
	}
	return err
}

func (r *Runner) speak(ctx context.Context) error {
	text := r.cfg.Session.Snapshot().LastAssistantUtterance
	if strings.TrimSpace(text) == "" {
		r.cfg.Renderer.Notify(NothingToSpeakNotice)
		return ErrNothingToSpeak
	}
	if r.cfg.Playback == nil {
		r.cfg.Renderer.Notify("Speech playback failed: " + tts.ErrNoSpeaker.Error())
		return tts.ErrNoSpeaker
	}
	if err := r.cfg.Playback.Speak(ctx, text); err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("speech playback failed")
		r.cfg.Renderer.Notify(fmt.Sprintf("Speech playback failed: %v", err))
		return err
	}
	return nil
}

func (r *Runner) defaults() (model, systemPrompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model, r.systemPrompt
}

func (r *Runner) newSession(ctx context.Context) error {
	model, prompt := r.defaults()
	s, err := r.cfg.Session.New(ctx, prompt, model)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("failed to start session")
		r.cfg.Renderer.Notify(fmt.Sprintf("Could not start a new session: %v", err))
		return err
	}
	r.renderSession(s)
	return r.listSessions(ctx)
}

func (r *Runner) saveSession(ctx context.Context) error {
	if err := r.cfg.Session.Save(ctx); err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("failed to save session")
		r.cfg.Renderer.Notify(fmt.Sprintf("Could not save the session: %v", err))
		return err
	}
	r.cfg.Renderer.Notify("Session saved.")
	return r.listSessions(ctx)
}

func (r *Runner) listSessions(ctx context.Context) error {
	sessions, err := r.cfg.Session.List(ctx)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("failed to list sessions")
		return err
	}
	r.cfg.Renderer.ShowSessions(sessions)
	return nil
}

func (r *Runner) loadSession(ctx context.Context, id string) error {
	s, err := r.cfg.Session.Load(ctx, id)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err, "session_id": id}).Warn("failed to load session")
		r.cfg.Renderer.Notify(fmt.Sprintf("Could not load session %s.", id))
		return err
	}
	r.renderSession(s)
	return r.listSessions(ctx)
}

func (r *Runner) deleteSession(ctx context.Context, id string) error {
	wasCurrent := r.cfg.Session.CurrentID() == id
	if err := r.cfg.Session.Delete(ctx, id); err != nil {
		r.logger.With(map[string]interface{}{"error": err, "session_id": id}).Warn("failed to delete session")
		r.cfg.Renderer.Notify(fmt.Sprintf("Could not delete session %s.", id))
		return err
	}
	if wasCurrent {
		r.renderSession(r.cfg.Session.Snapshot())
	}
	return r.listSessions(ctx)
}

// renderSession replaces the transcript with every non-system turn of s.
func (r *Runner) renderSession(s *core.Session) {
	r.cfg.Renderer.Reset()
	for _, t := range s.Turns {
		if t.Role == core.RoleSystem {
			continue
		}
		r.cfg.Renderer.RenderTurn(t.Role, t.Content)
	}
}

func (r *Runner) setModel(ctx context.Context, model string) error {
	err := r.cfg.Session.Update(ctx, func(s *core.Session) error {
		s.SetModel(model)
		return nil
	})
	r.mu.Lock()
	r.model = model
	r.mu.Unlock()
	r.persist(ctx, core.SettingModel, model)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("failed to persist model change")
	}
	return err
}

// setSystemPrompt replaces turn 0 of the current session. An empty prompt
// restores the default.
func (r *Runner) setSystemPrompt(ctx context.Context, prompt string) error {
	stored := prompt
	if strings.TrimSpace(prompt) == "" {
		prompt = llm.DEFAULT_SYSTEM_PROMPT
		stored = ""
	}
	err := r.cfg.Session.Update(ctx, func(s *core.Session) error {
		s.ReplaceSystemTurn(prompt)
		return nil
	})
	r.mu.Lock()
	r.systemPrompt = prompt
	r.mu.Unlock()
	r.persist(ctx, core.SettingSystemPrompt, stored)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err}).Warn("failed to persist system prompt")
		r.cfg.Renderer.Notify(fmt.Sprintf("Could not save the system prompt: %v", err))
		return err
	}
	r.cfg.Renderer.Notify("System prompt updated.")
	return nil
}

func (r *Runner) setTTSProvider(ctx context.Context, label string) error {
	kind := tts.ParseProviderKind(label)
	if r.cfg.BuildSpeaker == nil || r.cfg.Playback == nil {
		r.cfg.Renderer.Notify("Speech playback is not available.")
		return tts.ErrNoSpeaker
	}
	speaker, err := r.cfg.BuildSpeaker(kind)
	if err != nil {
		r.logger.With(map[string]interface{}{"error": err, "provider": kind.String()}).Warn("failed to build speaker")
		r.cfg.Renderer.Notify(fmt.Sprintf("Could not switch speech provider: %v", err))
		return err
	}
	r.cfg.Playback.SetSpeaker(speaker)
	r.persist(ctx, core.SettingTTSProvider, kind.String())
	r.cfg.Renderer.Notify("Speech provider set to " + kind.String() + ".")
	return nil
}

func (r *Runner) setAutoSpeak(ctx context.Context, value string) error {
	enabled, err := ParseToggle(value)
	if err != nil {
		r.cfg.Renderer.Notify(fmt.Sprintf("Auto-speak takes on or off, not %q.", value))
		return err
	}
	r.cfg.Dispatcher.SetAutoSpeak(enabled)
	r.persist(ctx, core.SettingAutoSpeak, strconv.FormatBool(enabled))
	return nil
}

func (r *Runner) checkHealth(ctx context.Context) {
	status := r.cfg.Client.Health(ctx)
	r.logger.With(map[string]interface{}{"status": string(status)}).Debug("proxy health checked")
	r.cfg.Renderer.ShowHealth(status)
}

func (r *Runner) persist(ctx context.Context, key, value string) {
	if r.cfg.Settings == nil {
		return
	}
	if err := r.cfg.Settings.SetSetting(ctx, key, value); err != nil {
		r.logger.With(map[string]interface{}{"error": err, "key": key}).Warn("failed to persist setting")
	}
}

// ParseToggle accepts on/off style values.
func ParseToggle(value string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	default:
		return false, fmt.Errorf("%w: %q", ErrInvalidValue, value)
	}
}
