package factories

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/bytedance/sonic"

	"chatkit/core"
	contexthandler "chatkit/handlers/context"
	"chatkit/handlers/image"
	"chatkit/handlers/llm"
	"chatkit/handlers/stt"
	"chatkit/handlers/tts"
	"chatkit/services/local/capture"
	"chatkit/services/local/speech"
	"chatkit/services/proxy"
	"chatkit/storage/sqlite"
)

// Settings is the top-level config loaded from settings.json. Values are
// layered: defaults, then the file, then CHATKIT_* environment variables,
// then the entries persisted by earlier runs.
type Settings struct {
	// Model is the model new sessions start with.
	Model string `json:"model"`
	// SystemPrompt seeds turn 0 of new sessions.
	SystemPrompt string `json:"system_prompt"`
	// DBPath is the SQLite file holding sessions and settings. ":memory:"
	// keeps everything in process.
	DBPath string `json:"db_path"`
	// LogDir, when set, receives one .jsonl log file per run.
	LogDir string `json:"log_dir,omitempty"`

	Proxy        proxy.Config                  `json:"proxy"`
	Context      contexthandler.SelectorConfig `json:"context"`
	Dispatcher   llm.DispatcherConfig          `json:"dispatcher"`
	Capture      stt.CaptureConfig             `json:"capture"`
	Recorder     capture.Config                `json:"recorder"`
	Playback     tts.PlaybackConfig            `json:"playback"`
	SpeechEngine speech.EngineConfig           `json:"speech_engine"`
	SpeechPlayer speech.PlayerConfig           `json:"speech_player"`
	Image        image.ImageConfig             `json:"image"`
}

// DefaultSettings returns Settings pre-filled with every component default.
func DefaultSettings() Settings {
	return Settings{
		Model:        llm.DefaultModel,
		SystemPrompt: llm.DEFAULT_SYSTEM_PROMPT,
		DBPath:       sqlite.DefaultDBPath(),
		Proxy:        proxy.DefaultConfig(),
		Context:      contexthandler.DefaultSelectorConfig(),
		Dispatcher:   llm.DefaultConfig(),
		Capture:      stt.DefaultConfig(),
		Recorder:     capture.DefaultConfig(),
		Playback:     tts.DefaultConfig(),
		SpeechEngine: speech.DefaultEngineConfig(),
		SpeechPlayer: speech.DefaultPlayerConfig(),
		Image:        image.DefaultConfig(),
	}
}

// SettingsFromJSON parses a JSON blob over the defaults, so omitted fields
// keep their default values.
func SettingsFromJSON(data []byte) (Settings, error) {
	s := DefaultSettings()
	if err := sonic.Unmarshal(data, &s); err != nil {
		return DefaultSettings(), fmt.Errorf("settings: %w", err)
	}
	return s, nil
}

// SettingsFromFile reads and parses Settings from a JSON file.
func SettingsFromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return DefaultSettings(), fmt.Errorf("settings: read %q: %w", path, err)
	}
	return SettingsFromJSON(data)
}

// ApplyEnv overlays the CHATKIT_* environment variables.
func (s *Settings) ApplyEnv() {
	s.Proxy.BaseURL = getEnv("CHATKIT_BASE_URL", s.Proxy.BaseURL)
	s.Proxy.TTSURL = getEnv("CHATKIT_TTS_URL", s.Proxy.TTSURL)
	s.Model = getEnv("CHATKIT_MODEL", s.Model)
	s.SystemPrompt = getEnv("CHATKIT_SYSTEM_PROMPT", s.SystemPrompt)
	s.Playback.Provider = getEnv("CHATKIT_TTS_PROVIDER", s.Playback.Provider)
	s.DBPath = getEnv("CHATKIT_DB_PATH", s.DBPath)
	s.LogDir = getEnv("CHATKIT_LOG_DIR", s.LogDir)
	s.Image.Size = getEnv("CHATKIT_IMAGE_SIZE", s.Image.Size)
	if v := getEnv("CHATKIT_AUTO_SPEAK", ""); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			s.Dispatcher.AutoSpeak = b
		}
	}
}

// ApplyStored overlays the settings entries persisted by earlier runs.
// Malformed entries are skipped.
func (s *Settings) ApplyStored(ctx context.Context, store core.SettingsStore, logger *core.Logger) error {
	if logger == nil {
		logger = core.GetLogger()
	}
	logger = logger.With(map[string]interface{}{"component": "settings"})

	get := func(key string) (string, bool, error) {
		v, ok, err := store.GetSetting(ctx, key)
		if err != nil {
			return "", false, fmt.Errorf("settings: read %s: %w", key, err)
		}
		return v, ok && v != "", nil
	}

	targets := []struct {
		key string
		dst *string
	}{
		{core.SettingProxyURL, &s.Proxy.BaseURL},
		{core.SettingModel, &s.Model},
		{core.SettingSystemPrompt, &s.SystemPrompt},
		{core.SettingTTSProvider, &s.Playback.Provider},
		{core.SettingTTSURL, &s.Proxy.TTSURL},
		{core.SettingImageSize, &s.Image.Size},
	}
	for _, t := range targets {
		v, ok, err := get(t.key)
		if err != nil {
			return err
		}
		if ok {
			*t.dst = v
		}
	}

	v, ok, err := get(core.SettingAutoSpeak)
	if err != nil {
		return err
	}
	if ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			logger.With(map[string]interface{}{"value": v}).Warn("ignoring malformed autoSpeak entry")
		} else {
			s.Dispatcher.AutoSpeak = b
		}
	}
	return nil
}

// getEnv gets an environment variable with a default fallback
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
