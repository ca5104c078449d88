// Package storage persists sessions and settings on a string-keyed store.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"

	"chatkit/core"
)

const (
	// SessionsIndexKey holds the JSON array of stored session ids.
	SessionsIndexKey = "dndSessions"
	// CurrentSessionKey holds the full record of the session in use.
	CurrentSessionKey = "currentSession"

	sessionKeyPrefix = "session:"
	settingKeyPrefix = "setting:"
)

// Sessions implements core.SessionStore and core.SettingsStore over a
// core.KeyValueStore. Records are validated on load so a corrupted entry is
// reported rather than silently repaired.
type Sessions struct {
	mu     sync.Mutex
	kv     core.KeyValueStore
	logger *core.Logger
}

func NewSessions(kv core.KeyValueStore, logger *core.Logger) *Sessions {
	if logger == nil {
		logger = core.GetLogger()
	}
	return &Sessions{
		kv:     kv,
		logger: logger.With(map[string]interface{}{"component": "storage"}),
	}
}

func sessionKey(id string) string { return sessionKeyPrefix + id }

func (s *Sessions) LoadSession(ctx context.Context, id string) (*core.Session, error) {
	return s.loadRecord(ctx, sessionKey(id))
}

func (s *Sessions) loadRecord(ctx context.Context, key string) (*core.Session, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.ErrSessionNotFound
	}
	var sess core.Session
	if err := sonic.UnmarshalString(raw, &sess); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if err := sess.Validate(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return &sess, nil
}

func (s *Sessions) SaveSession(ctx context.Context, sess *core.Session) error {
	if err := sess.Validate(); err != nil {
		return err
	}
	raw, err := sonic.MarshalString(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Set(ctx, sessionKey(sess.ID), raw); err != nil {
		return err
	}
	ids, err := s.indexLocked(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if id == sess.ID {
			return nil
		}
	}
	return s.writeIndexLocked(ctx, append(ids, sess.ID))
}

// ListSessions returns every indexed session in index order. Entries that
// fail to load are logged and skipped.
func (s *Sessions) ListSessions(ctx context.Context) ([]*core.Session, error) {
	s.mu.Lock()
	ids, err := s.indexLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := make([]*core.Session, 0, len(ids))
	for _, id := range ids {
		sess, err := s.LoadSession(ctx, id)
		if err != nil {
			s.logger.With(map[string]interface{}{"session_id": id, "error": err}).Warn("skipping unreadable session")
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

func (s *Sessions) DeleteSession(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids, err := s.indexLocked(ctx)
	if err != nil {
		return err
	}
	kept := ids[:0]
	found := false
	for _, existing := range ids {
		if existing == id {
			found = true
			continue
		}
		kept = append(kept, existing)
	}
	if !found {
		if _, ok, err := s.kv.Get(ctx, sessionKey(id)); err != nil {
			return err
		} else if !ok {
			return core.ErrSessionNotFound
		}
	}
	if err := s.kv.Delete(ctx, sessionKey(id)); err != nil {
		return err
	}
	if err := s.writeIndexLocked(ctx, kept); err != nil {
		return err
	}

	current, err := s.loadRecord(ctx, CurrentSessionKey)
	if err == nil && current.ID == id {
		return s.kv.Delete(ctx, CurrentSessionKey)
	}
	return nil
}

func (s *Sessions) LoadCurrent(ctx context.Context) (*core.Session, error) {
	return s.loadRecord(ctx, CurrentSessionKey)
}

func (s *Sessions) SaveCurrent(ctx context.Context, sess *core.Session) error {
	raw, err := sonic.MarshalString(sess)
	if err != nil {
		return fmt.Errorf("encode current session: %w", err)
	}
	return s.kv.Set(ctx, CurrentSessionKey, raw)
}

func (s *Sessions) indexLocked(ctx context.Context) ([]string, error) {
	raw, ok, err := s.kv.Get(ctx, SessionsIndexKey)
	if err != nil || !ok {
		return nil, err
	}
	var ids []string
	if err := sonic.UnmarshalString(raw, &ids); err != nil {
		s.logger.With(map[string]interface{}{"error": err}).Warn("session index unreadable, starting empty")
		return nil, nil
	}
	return ids, nil
}

func (s *Sessions) writeIndexLocked(ctx context.Context, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	raw, err := sonic.MarshalString(ids)
	if err != nil {
		return err
	}
	return s.kv.Set(ctx, SessionsIndexKey, raw)
}

// GetSetting reads a single settings entry.
func (s *Sessions) GetSetting(ctx context.Context, key string) (string, bool, error) {
	return s.kv.Get(ctx, settingKeyPrefix+key)
}

// SetSetting writes a single settings entry. An empty value clears it.
func (s *Sessions) SetSetting(ctx context.Context, key, value string) error {
	if value == "" {
		return s.kv.Delete(ctx, settingKeyPrefix+key)
	}
	return s.kv.Set(ctx, settingKeyPrefix+key, value)
}

// IsNotFound reports whether err means the requested session is absent.
func IsNotFound(err error) bool {
	return errors.Is(err, core.ErrSessionNotFound)
}
