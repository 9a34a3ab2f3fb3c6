package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"live-quiz-service/internal/domain"
)

// HistoryStore is the durable relational archival backend. Archived sessions
// land as one JSONB row each; downstream reporting reads them back whole.
type HistoryStore struct {
	db *bun.DB
}

func NewHistoryStore(db *bun.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

type archivedSessionRow struct {
	bun.BaseModel `bun:"table:archived_sessions"`

	ID          string    `bun:"id,pk"`
	Pin         string    `bun:"pin,notnull"`
	QuizID      string    `bun:"quiz_id,notnull"`
	Data        []byte    `bun:"data,type:jsonb,notnull"`
	CompletedAt time.Time `bun:"completed_at,notnull"`
}

// ArchiveSession inserts the snapshot with ON CONFLICT DO NOTHING, so an
// archival retry after a partial failure never double-writes.
func (s *HistoryStore) ArchiveSession(ctx context.Context, snapshot domain.SessionSnapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal archived session: %w", err)
	}
	completed := time.Now()
	if snapshot.CompletedAt != nil {
		completed = *snapshot.CompletedAt
	}
	row := &archivedSessionRow{
		ID:          string(snapshot.ID),
		Pin:         string(snapshot.Pin),
		QuizID:      string(snapshot.QuizID),
		Data:        data,
		CompletedAt: completed,
	}
	if _, err := s.db.NewInsert().Model(row).On("CONFLICT (id) DO NOTHING").Exec(ctx); err != nil {
		return fmt.Errorf("archive session: %w", err)
	}
	return nil
}

func (s *HistoryStore) FindByID(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error) {
	row := new(archivedSessionRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", string(id)).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.SessionSnapshot{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("find archived session: %w", err)
	}
	var snapshot domain.SessionSnapshot
	if err := json.Unmarshal(row.Data, &snapshot); err != nil {
		return domain.SessionSnapshot{}, fmt.Errorf("decode archived session: %w", err)
	}
	return snapshot, nil
}
