package service

import (
	"context"
	"sync"

	"sipoma-sync/internal/store"

	"go.uber.org/zap"
)

// SessionManager hands out one session per (date, plant unit) and
// keeps them isolated: the cure for the source's module-scoped shared
// caches and timers.
type SessionManager struct {
	records store.RecordStore
	kv      store.KV
	opts    Options
	logger  *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewSessionManager(records store.RecordStore, kv store.KV, opts Options, logger *zap.Logger) *SessionManager {
	return &SessionManager{
		records:  records,
		kv:       kv,
		opts:     opts,
		logger:   logger,
		sessions: make(map[string]*Session),
	}
}

func sessionKey(date, unit string) string {
	return date + "|" + unit
}

// Get returns the session for (date, unit), creating and loading it on
// first use.
func (m *SessionManager) Get(ctx context.Context, date, unit string) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[sessionKey(date, unit)]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	// Built outside the lock: loading a session hits the store.
	s, err := NewSession(ctx, m.records, m.kv, date, unit, m.opts, m.logger)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.sessions[sessionKey(date, unit)]; ok {
		s.Close()
		return existing, nil
	}
	m.sessions[sessionKey(date, unit)] = s
	return s, nil
}

// Lookup returns an already-open session, nil when none exists.
func (m *SessionManager) Lookup(date, unit string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[sessionKey(date, unit)]
}

// Release closes and forgets one session.
func (m *SessionManager) Release(date, unit string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionKey(date, unit)]
	if ok {
		delete(m.sessions, sessionKey(date, unit))
	}
	m.mu.Unlock()
	if ok {
		s.Close()
	}
}

// Close shuts every open session down.
func (m *SessionManager) Close() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close()
	}
}
