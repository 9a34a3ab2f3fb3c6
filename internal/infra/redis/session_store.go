package redis

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionStore is a Redis-aware implementation of app.ActiveSessionStore.
// Notes:
//   - The live aggregate (mutex, subscribers) stays in a local in-process
//     map; commands always mutate the local aggregate.
//   - Redis holds the JSON snapshot keyed by pin, refreshed on every save,
//     so live sessions are discoverable and inspectable across restarts.
//   - Delete removes the Redis key first and only then the local entry, so
//     a failed delete leaves the session discoverable for an archival retry.
type SessionStore struct {
	client   *redis.Client
	ttl      time.Duration
	mu       sync.RWMutex
	sessions map[domain.SessionPin]*app.Session
}

func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{
		client:   client,
		ttl:      ttl,
		sessions: make(map[domain.SessionPin]*app.Session),
	}
}

func (s *SessionStore) Save(ctx context.Context, session *app.Session) error {
	data, err := json.Marshal(session.Snapshot())
	if err != nil {
		return classify("marshal session snapshot", err)
	}
	if err := s.client.Set(ctx, s.key(session.Pin()), data, s.ttl).Err(); err != nil {
		return classify("save session snapshot", err)
	}

	s.mu.Lock()
	s.sessions[session.Pin()] = session
	s.mu.Unlock()
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

func (s *SessionStore) Delete(ctx context.Context, pin domain.SessionPin) error {
	if err := s.client.Del(ctx, s.key(pin)).Err(); err != nil {
		return classify("delete session snapshot", err)
	}
	s.mu.Lock()
	delete(s.sessions, pin)
	s.mu.Unlock()
	return nil
}

func (s *SessionStore) key(pin domain.SessionPin) string {
	return "session:pin:" + string(pin)
}
