package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is an in-process implementation of app.ActiveSessionStore,
// keyed by session pin.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionPin]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionPin]*app.Session),
	}
}

func (s *SessionStore) Save(_ context.Context, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Pin()] = session
	return nil
}

func (s *SessionStore) FindByPin(_ context.Context, pin domain.SessionPin) (*app.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[pin]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

func (s *SessionStore) Delete(_ context.Context, pin domain.SessionPin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, pin)
	return nil
}
