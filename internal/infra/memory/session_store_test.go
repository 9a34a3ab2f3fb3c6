package memory

import (
	"context"
	"errors"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func testQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{{
			ID:      "q1",
			Options: []domain.Option{{Text: "a", Correct: true}},
		}},
	}
}

func TestSessionStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewSessionStore()
	session := app.NewSession("sess-1", "123456", "host-1", testQuiz())

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save: %v", err)
	}
	found, err := store.FindByPin(ctx, "123456")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID() != "sess-1" {
		t.Fatalf("expected sess-1, got %s", found.ID())
	}

	if err := store.Delete(ctx, "123456"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.FindByPin(ctx, "123456"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not-found after delete, got %v", err)
	}
}

func TestHistoryStoreIdempotentArchive(t *testing.T) {
	ctx := context.Background()
	store := NewHistoryStore()

	first := domain.SessionSnapshot{ID: "sess-1", Pin: "123456", State: domain.StateEnded}
	if err := store.ArchiveSession(ctx, first); err != nil {
		t.Fatalf("archive: %v", err)
	}

	// A second write for the same ID must not overwrite the record.
	altered := first
	altered.Pin = "999999"
	if err := store.ArchiveSession(ctx, altered); err != nil {
		t.Fatalf("re-archive: %v", err)
	}

	found, err := store.FindByID(ctx, "sess-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.Pin != "123456" {
		t.Fatalf("re-archive overwrote the record: %+v", found)
	}
}
