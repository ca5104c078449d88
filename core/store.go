package core

import (
	"context"
	"errors"
)

var ErrSessionNotFound = errors.New("session not found")

// KeyValueStore is the local string-keyed persistence collaborator. Missing
// keys report ok=false rather than an error.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SessionStore owns the session collection and the current-session record.
type SessionStore interface {
	LoadSession(ctx context.Context, id string) (*Session, error)
	SaveSession(ctx context.Context, s *Session) error
	ListSessions(ctx context.Context) ([]*Session, error)
	DeleteSession(ctx context.Context, id string) error
	LoadCurrent(ctx context.Context) (*Session, error)
	SaveCurrent(ctx context.Context, s *Session) error
}

// SettingsStore persists individual string settings entries.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Settings entry keys shared by the loader and the runtime settings intents.
const (
	SettingProxyURL     = "proxyUrl"
	SettingModel        = "model"
	SettingSystemPrompt = "systemPrompt"
	SettingTTSProvider  = "ttsProvider"
	SettingTTSURL       = "ttsUrl"
	SettingAutoSpeak    = "autoSpeak"
	SettingImageSize    = "imageSize"
)
