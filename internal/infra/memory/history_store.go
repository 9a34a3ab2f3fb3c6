package memory

import (
	"context"
	"sync"

	"live-quiz-service/internal/domain"
)

// HistoryStore is an in-process implementation of app.HistoryStore.
type HistoryStore struct {
	mu       sync.RWMutex
	archived map[domain.SessionID]domain.SessionSnapshot
}

func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		archived: make(map[domain.SessionID]domain.SessionSnapshot),
	}
}

// ArchiveSession stores the snapshot. Re-archiving a known session ID is a
// no-op so archival retries never double-write.
func (s *HistoryStore) ArchiveSession(_ context.Context, snapshot domain.SessionSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.archived[snapshot.ID]; ok {
		return nil
	}
	s.archived[snapshot.ID] = snapshot
	return nil
}

func (s *HistoryStore) FindByID(_ context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.archived[id]
	if !ok {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	return snapshot, nil
}
