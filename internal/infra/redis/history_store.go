package redis

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

// HistoryStore is the low-latency archival backend: finished sessions are
// stored as JSON documents keyed by session ID with no expiry. It is the
// primary half of the dual history store; the relational backend is the
// durable fallback.
type HistoryStore struct {
	client *redis.Client
}

func NewHistoryStore(client *redis.Client) *HistoryStore {
	return &HistoryStore{client: client}
}

// ArchiveSession writes the snapshot with SETNX semantics, so re-archiving
// an already-archived session is a no-op rather than a double-write.
func (s *HistoryStore) ArchiveSession(ctx context.Context, snapshot domain.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return classify("marshal archived session", err)
	}
	if err := s.client.SetNX(ctx, s.key(snapshot.ID), data, 0).Err(); err != nil {
		return classify("archive session", err)
	}
	return nil
}

func (s *HistoryStore) FindByID(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.SessionSnapshot{}, domain.ErrSessionNotFound
		}
		return domain.SessionSnapshot{}, classify("find archived session", err)
	}
	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return domain.SessionSnapshot{}, classify("decode archived session", err)
	}
	return snapshot, nil
}

func (s *HistoryStore) key(id domain.SessionID) string {
	return "session:history:" + string(id)
}
