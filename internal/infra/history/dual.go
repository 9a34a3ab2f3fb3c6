// Package history combines a low-latency primary archival backend with a
// durable relational fallback behind one app.HistoryStore.
package history

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// DualStore attempts the primary backend first and falls back only when the
// error is classified as unavailability (domain.ErrStoreUnavailable). Any
// other error propagates: a data error on the primary is a bug to surface,
// not a reason to write somewhere else.
type DualStore struct {
	primary  app.HistoryStore
	fallback app.HistoryStore
	log      zerolog.Logger
}

func NewDualStore(primary, fallback app.HistoryStore, log zerolog.Logger) *DualStore {
	return &DualStore{primary: primary, fallback: fallback, log: log}
}

func (s *DualStore) ArchiveSession(ctx context.Context, snapshot domain.SessionSnapshot) error {
	err := s.primary.ArchiveSession(ctx, snapshot)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		return err
	}
	s.log.Warn().
		Err(err).
		Str("session", string(snapshot.ID)).
		Msg("primary history store unavailable, archiving to fallback")
	return s.fallback.ArchiveSession(ctx, snapshot)
}

// FindByID consults the fallback both when the primary is unavailable and
// when the primary has no record, since the session may have been archived
// during a primary outage.
func (s *DualStore) FindByID(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	snapshot, err := s.primary.FindByID(ctx, id)
	if err == nil {
		return snapshot, nil
	}
	if !errors.Is(err, domain.ErrStoreUnavailable) && !errors.Is(err, domain.ErrSessionNotFound) {
		return domain.SessionSnapshot{}, err
	}
	return s.fallback.FindByID(ctx, id)
}
