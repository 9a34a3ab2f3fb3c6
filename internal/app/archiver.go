package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
)

// Archiver performs the one-time handoff of a finished session from the
// active store to durable history. The sequence is validate, persist to
// history, delete from active; if either persistence step fails the session
// stays discoverable under its pin and the whole sequence can be re-run.
// Both backing stores treat an already-archived session ID as a no-op, so
// re-runs converge without double-writing history.
type Archiver struct {
	active  ActiveSessionStore
	history HistoryStore
	log     zerolog.Logger
}

func NewArchiver(active ActiveSessionStore, history HistoryStore, log zerolog.Logger) *Archiver {
	return &Archiver{active: active, history: history, log: log}
}

// ArchiveAndClean validates terminal invariants, writes the session snapshot
// to history, and removes the session from the active store. A validation
// failure is fatal and aborts before anything is persisted.
func (a *Archiver) ArchiveAndClean(ctx context.Context, session *Session) error {
	if err := session.ValidateForCompletion(); err != nil {
		a.log.Error().
			Err(err).
			Str("session", string(session.ID())).
			Msg("completion invariants violated, refusing to archive")
		return err
	}

	snapshot := session.Snapshot()
	if err := a.history.ArchiveSession(ctx, snapshot); err != nil {
		return fmt.Errorf("archive session %s: %w", snapshot.ID, err)
	}
	if err := a.active.Delete(ctx, snapshot.Pin); err != nil {
		return fmt.Errorf("remove archived session %s from active store: %w", snapshot.ID, err)
	}

	a.log.Info().
		Str("session", string(snapshot.ID)).
		Str("pin", string(snapshot.Pin)).
		Int("players", len(snapshot.Players)).
		Int("questions", snapshot.Progress.Answered).
		Bool("forcedEnd", snapshot.ForcedEnd).
		Msg("session archived")
	return nil
}
