package factories

import (
	"context"
	"errors"
	"fmt"

	"chatkit/core"
	contexthandler "chatkit/handlers/context"
	"chatkit/handlers/image"
	"chatkit/handlers/llm"
	"chatkit/handlers/stt"
	"chatkit/handlers/tts"
	"chatkit/runner"
	"chatkit/services/proxy"
	"chatkit/storage"
	"chatkit/storage/memory"
	"chatkit/storage/sqlite"
)

// InMemoryDB selects the process-local store instead of a SQLite file.
const InMemoryDB = ":memory:"

// App is the fully wired engine. Front ends drive it through Runner.
type App struct {
	Settings   Settings
	Sessions   *storage.Sessions
	Session    *core.SessionContext
	Input      *core.PendingInput
	Client     *proxy.Client
	Dispatcher *llm.Dispatcher
	Capture    *stt.CapturePipeline
	Playback   *tts.Playback
	Images     *image.Generator
	Runner     *runner.Runner

	closers []func() error
	logger  *core.Logger
}

// OpenStore opens the key/value store named by settings.DBPath.
func OpenStore(settings Settings) (core.KeyValueStore, func() error, error) {
	if settings.DBPath == InMemoryDB {
		return memory.NewStore(), func() error { return nil }, nil
	}
	db, err := sqlite.Open(settings.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return db, db.Close, nil
}

// BuildApp opens the store, overlays the persisted settings and wires every
// component against renderer. The returned App owns the store.
func BuildApp(ctx context.Context, settings Settings, renderer core.Renderer, logger *core.Logger) (*App, error) {
	if logger == nil {
		logger = core.GetLogger()
	}
	kv, closeStore, err := OpenStore(settings)
	if err != nil {
		return nil, fmt.Errorf("app: open store: %w", err)
	}
	app, err := BuildAppWithStore(ctx, settings, kv, renderer, logger)
	if err != nil {
		closeStore()
		return nil, err
	}
	app.closers = append(app.closers, closeStore)
	return app, nil
}

// BuildAppWithStore wires the engine on an already opened store.
func BuildAppWithStore(ctx context.Context, settings Settings, kv core.KeyValueStore, renderer core.Renderer, logger *core.Logger) (*App, error) {
	if logger == nil {
		logger = core.GetLogger()
	}
	if renderer == nil {
		renderer = core.NopRenderer{}
	}
	sessions := storage.NewSessions(kv, logger)
	if err := settings.ApplyStored(ctx, sessions, logger); err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}

	app := &App{
		Settings: settings,
		Sessions: sessions,
		Input:    &core.PendingInput{},
		logger:   logger.With(map[string]interface{}{"component": "app"}),
	}
	app.Session = core.RestoreSessionContext(ctx, sessions, settings.SystemPrompt, settings.Model, logger)
	app.Client = proxy.NewClient(settings.Proxy, nil, logger)

	kind := tts.ParseProviderKind(settings.Playback.Provider)
	buildSpeaker := func(kind tts.ProviderKind) (tts.Speaker, error) {
		return BuildSpeaker(kind, settings, app.Client, logger)
	}
	speaker, err := buildSpeaker(kind)
	if err != nil {
		app.logger.With(map[string]interface{}{"error": err, "provider": kind.String()}).Warn("speech playback unavailable")
	}
	app.Playback = tts.NewPlayback(speaker, settings.Playback, logger)

	app.Dispatcher = llm.NewDispatcher(
		app.Session,
		contexthandler.NewSelector(settings.Context),
		app.Client,
		renderer,
		app.Playback,
		settings.Dispatcher,
		logger,
	)
	app.Capture = stt.NewCapturePipeline(
		BuildCaptureDevice(settings, logger),
		app.Client,
		app.Input,
		renderer,
		settings.Capture,
		logger,
	)
	app.Images = image.NewGenerator(app.Session, app.Client, renderer, settings.Image, logger)

	app.Runner = runner.NewRunner(runner.Config{
		Session:      app.Session,
		Settings:     sessions,
		Input:        app.Input,
		Client:       app.Client,
		Dispatcher:   app.Dispatcher,
		Capture:      app.Capture,
		Playback:     app.Playback,
		Images:       app.Images,
		Renderer:     renderer,
		BuildSpeaker: buildSpeaker,
		Model:        settings.Model,
		SystemPrompt: settings.SystemPrompt,
	}, logger)

	app.logger.With(map[string]interface{}{
		"session_id": app.Session.CurrentID(),
		"proxy":      app.Client.BaseURL(),
		"tts":        kind.String(),
	}).Info("engine ready")
	return app, nil
}

// Close releases devices, then the store.
func (a *App) Close() error {
	a.Runner.Close()
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
