package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// SessionContext is the single owner of the current session. It is threaded
// through the dispatcher, capture pipeline and image builder instead of a
// package-level global.
type SessionContext struct {
	mu      sync.Mutex
	store   SessionStore
	current *Session
	logger  *Logger
}

// NewSessionContext wraps current and store. A nil current is replaced by a
// fresh session built from systemPrompt and model.
func NewSessionContext(store SessionStore, current *Session, systemPrompt, model string, logger *Logger) *SessionContext {
	if logger == nil {
		logger = GetLogger()
	}
	if current == nil {
		current = NewSession(systemPrompt, model)
	}
	return &SessionContext{
		store:   store,
		current: current,
		logger:  logger.With(map[string]interface{}{"component": "session"}),
	}
}

// RestoreSessionContext resumes the persisted current session, falling back to
// a new one when nothing usable is stored.
func RestoreSessionContext(ctx context.Context, store SessionStore, systemPrompt, model string, logger *Logger) *SessionContext {
	sc := NewSessionContext(store, nil, systemPrompt, model, logger)
	restored, err := store.LoadCurrent(ctx)
	switch {
	case err == nil:
		sc.current = restored
		sc.logger.With(map[string]interface{}{"session_id": restored.ID}).Info("restored current session")
	case errors.Is(err, ErrSessionNotFound):
	default:
		sc.logger.With(map[string]interface{}{"error": err}).Warn("failed to restore current session, starting fresh")
	}
	return sc
}

// Snapshot returns a deep copy of the current session.
func (c *SessionContext) Snapshot() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.Clone()
}

// CurrentID returns the id of the session in use.
func (c *SessionContext) CurrentID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current.ID
}

// Update applies fn to the current session and persists the result. fn must
// use the Session mutators only.
func (c *SessionContext) Update(ctx context.Context, fn func(s *Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(c.current); err != nil {
		return err
	}
	return c.persistLocked(ctx)
}

// UpdateSession applies fn to the session with the given id. When id is no
// longer current the stored copy is loaded, mutated and saved without
// touching the current-session record.
func (c *SessionContext) UpdateSession(ctx context.Context, id string, fn func(s *Session) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.ID == id {
		if err := fn(c.current); err != nil {
			return err
		}
		return c.persistLocked(ctx)
	}

	stored, err := c.store.LoadSession(ctx, id)
	if err != nil {
		return fmt.Errorf("session: load %s: %w", id, err)
	}
	if err := fn(stored); err != nil {
		return err
	}
	stored.DeriveTitle()
	if err := c.store.SaveSession(ctx, stored); err != nil {
		return fmt.Errorf("session: save %s: %w", id, err)
	}
	return nil
}

// Save persists the current session as-is, deriving the title if needed.
func (c *SessionContext) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current.Touch()
	return c.persistLocked(ctx)
}

func (c *SessionContext) persistLocked(ctx context.Context) error {
	c.current.DeriveTitle()
	snapshot := c.current.Clone()
	if err := c.store.SaveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("session: save %s: %w", snapshot.ID, err)
	}
	if err := c.store.SaveCurrent(ctx, snapshot); err != nil {
		return fmt.Errorf("session: save current %s: %w", snapshot.ID, err)
	}
	return nil
}

// New replaces the current session with a fresh one and saves it immediately.
func (c *SessionContext) New(ctx context.Context, systemPrompt, model string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = NewSession(systemPrompt, model)
	if err := c.persistLocked(ctx); err != nil {
		return nil, err
	}
	c.logger.With(map[string]interface{}{"session_id": c.current.ID}).Info("started new session")
	return c.current.Clone(), nil
}

// Load makes the stored session id current.
func (c *SessionContext) Load(ctx context.Context, id string) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	loaded, err := c.store.LoadSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session: load %s: %w", id, err)
	}
	c.current = loaded
	if err := c.store.SaveCurrent(ctx, loaded.Clone()); err != nil {
		c.logger.With(map[string]interface{}{"error": err}).Warn("failed to record current session")
	}
	return loaded.Clone(), nil
}

// List returns every stored session, most recently updated first.
func (c *SessionContext) List(ctx context.Context) ([]*Session, error) {
	sessions, err := c.store.ListSessions(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// Delete removes a stored session. Deleting the current session starts a new
// one with the same system prompt and model.
func (c *SessionContext) Delete(ctx context.Context, id string) error {
	if err := c.store.DeleteSession(ctx, id); err != nil {
		return fmt.Errorf("session: delete %s: %w", id, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current.ID != id {
		return nil
	}
	c.current = NewSession(c.current.SystemPrompt, c.current.Model)
	return c.persistLocked(ctx)
}
