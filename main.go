package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"chatkit/controlplane"
	"chatkit/core"
	"chatkit/factories"
	"chatkit/protocol"
	"chatkit/runner"
	"chatkit/ui/tui"
)

const version = "1.0.0"

func main() {
	var connectURL, settingsPath string
	flag.StringVar(&connectURL, "connect", "", "WebSocket URL of a remote UI (e.g. ws://localhost:8888/ws/engine)")
	flag.StringVar(&settingsPath, "settings", getEnv("SETTINGS_PATH", "./settings.json"), "path to settings.json")
	flag.Parse()

	if err := godotenv.Load(".env.local"); err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Debug("no .env.local file loaded")
	}

	settings, err := factories.SettingsFromFile(settingsPath)
	if err != nil {
		core.GetLogger().With(map[string]any{"path": settingsPath, "error": err}).Warn("failed to load settings, using defaults")
	}
	settings.ApplyEnv()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if connectURL != "" {
		err = runConnectedMode(ctx, cancel, connectURL, settings)
	} else {
		err = runTerminalMode(ctx, settings)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupRunLog tees the logger into a per-run .jsonl file when LogDir is set.
// base may be nil to write to the file only.
func setupRunLog(settings factories.Settings, base *core.Logger, mode string) (*core.Logger, func()) {
	if settings.LogDir == "" {
		return base, func() {}
	}
	writer, err := core.NewFileLogWriter(settings.LogDir, uuid.NewString(), mode)
	if err != nil {
		core.GetLogger().With(map[string]any{"error": err}).Warn("failed to open run log")
		return base, func() {}
	}
	return core.NewTeeLogger(base, writer), writer.Close
}

// runTerminalMode drives the engine from the bubbletea front end. Console
// logging is off while the alternate screen is up.
func runTerminalMode(ctx context.Context, settings factories.Settings) error {
	logger, closeLog := setupRunLog(settings, nil, "tui")
	defer closeLog()
	if logger == nil {
		logger = core.NewDiscardLogger()
	}
	core.SetLogger(logger)

	renderer := tui.NewRenderer(getEnv("CHATKIT_IMAGE_DIR", ""), logger)
	app, err := factories.BuildApp(ctx, settings, renderer, logger)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer app.Close()

	model := tui.New(ctx, app.Runner.Dispatch, app.Runner.Start)
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
	renderer.Attach(p)

	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("terminal ui: %w", err)
	}
	return nil
}

// runConnectedMode serves a remote UI over the control plane. The engine
// stops when the connection drops or the UI asks it to shut down.
func runConnectedMode(ctx context.Context, cancel context.CancelFunc, connectURL string, settings factories.Settings) error {
	clientID := getEnv("CHATKIT_CLIENT_ID", "")
	if clientID == "" {
		hostname, _ := os.Hostname()
		clientID = hostname
	}

	base := core.GetLogger()
	client := controlplane.NewClient(controlplane.ClientConfig{
		ConnectURL: connectURL,
		ClientID:   clientID,
		Version:    version,
		Metadata: map[string]string{
			"model": settings.Model,
		},
		Logger: base,
	})

	runLogger, closeLog := setupRunLog(settings, base, "connected")
	defer closeLog()
	wsLog := controlplane.NewWSLogWriter(client, "")
	logger := core.NewTeeLogger(runLogger, wsLog)
	core.SetLogger(logger)

	// Events and logs queue on the client until Connect starts the writer.
	var app *factories.App
	renderer := controlplane.NewRemoteRenderer(client, func() string {
		if app == nil {
			return ""
		}
		return app.Session.CurrentID()
	})
	app, err := factories.BuildApp(ctx, settings, renderer, logger)
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer app.Close()

	client.OnShutdown = func(reason string) {
		logger.With(map[string]any{"reason": reason}).Info("shutdown requested by remote ui")
		cancel()
	}
	client.OnIntent = func(ctx context.Context, p protocol.IntentPayload) error {
		intent, err := runner.ParseIntent(p.Kind, p.Arg)
		if err != nil {
			return err
		}
		client.SetStatus("busy")
		defer client.SetStatus("idle")
		return app.Runner.Dispatch(ctx, intent)
	}

	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connect to remote ui: %w", err)
	}
	defer client.Close()
	defer wsLog.Close()

	app.Runner.Start(ctx)

	go func() {
		client.Wait()
		logger.Info("remote ui connection lost, shutting down")
		cancel()
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
