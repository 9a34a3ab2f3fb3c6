package app_test

import (
	"errors"
	"testing"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

func TestScoreLiteralScenarios(t *testing.T) {
	question := domain.Question{Points: 1000, TimeLimitSec: 20}

	cases := []struct {
		name       string
		timeUsedMs int64
		want       int
	}{
		{"quarter of the time used", 5000, 1520},
		{"full time used", 20000, 1000},
		{"overshoot clamps to limit", 25000, 1000},
		{"instant answer", 0, 1800},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := app.Score(question, tc.timeUsedMs); got != tc.want {
				t.Fatalf("Score(%d ms) = %d, want %d", tc.timeUsedMs, got, tc.want)
			}
		})
	}
}

func TestScoreMonotonicallyNonIncreasing(t *testing.T) {
	question := domain.Question{Points: 1000, TimeLimitSec: 20}

	prev := app.Score(question, 0)
	for ms := int64(250); ms <= 20000; ms += 250 {
		got := app.Score(question, ms)
		if got > prev {
			t.Fatalf("score increased from %d to %d at %d ms", prev, got, ms)
		}
		prev = got
	}
}

func TestScoreRoundsToNearestTen(t *testing.T) {
	question := domain.Question{Points: 730, TimeLimitSec: 30}
	for ms := int64(0); ms <= 30000; ms += 1111 {
		if got := app.Score(question, ms); got%10 != 0 {
			t.Fatalf("score %d at %d ms is not a multiple of 10", got, ms)
		}
	}
}

func TestEvaluateIncorrectAlwaysZero(t *testing.T) {
	for _, points := range []int{100, 500, 1000, 2000} {
		for _, limit := range []int{5, 20, 60} {
			quiz := singleChoiceQuiz(points, limit)
			session := newActiveSession(t, quiz, "p1")

			rec, err := app.Evaluate(quiz, session, "q1", "p1", 1000, []int{0}) // wrong option
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if rec.Correct || rec.Points != 0 {
				t.Fatalf("points=%d limit=%d: incorrect answer scored %d", points, limit, rec.Points)
			}
		}
	}
}

func TestEvaluateMultiSelectExactSet(t *testing.T) {
	quiz := domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{{
			ID:     "q1",
			Prompt: "pick the correct ones",
			Options: []domain.Option{
				{Text: "a", Correct: true},
				{Text: "b", Correct: false},
				{Text: "c", Correct: true},
			},
			TimeLimitSec: 20,
			Points:       1000,
			Type:         domain.QuestionMultiple,
		}},
	}

	cases := []struct {
		name     string
		selected []int
		correct  bool
	}{
		{"exact set", []int{0, 2}, true},
		{"exact set reordered", []int{2, 0}, true},
		{"subset", []int{0}, false},
		{"superset", []int{0, 1, 2}, false},
		{"empty selection", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := newActiveSession(t, quiz, "p1")
			rec, err := app.Evaluate(quiz, session, "q1", "p1", 1000, tc.selected)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if rec.Correct != tc.correct {
				t.Fatalf("selection %v: correct=%v, want %v", tc.selected, rec.Correct, tc.correct)
			}
			if !tc.correct && rec.Points != 0 {
				t.Fatalf("incorrect answer scored %d", rec.Points)
			}
		})
	}
}

func TestEvaluateRejectsMalformedSelections(t *testing.T) {
	quiz := singleChoiceQuiz(1000, 20)

	cases := []struct {
		name     string
		selected []int
	}{
		{"no selection on single choice", nil},
		{"two selections on single choice", []int{0, 1}},
		{"index out of range", []int{7}},
		{"negative index", []int{-1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			session := newActiveSession(t, quiz, "p1")
			_, err := app.Evaluate(quiz, session, "q1", "p1", 1000, tc.selected)
			if !errors.Is(err, domain.ErrInvalidSelection) {
				t.Fatalf("expected invalid-selection error, got %v", err)
			}
		})
	}
}

func TestEvaluateRejectsDuplicateIndices(t *testing.T) {
	quiz := multiChoiceQuiz()
	session := newActiveSession(t, quiz, "p1")

	_, err := app.Evaluate(quiz, session, "q1", "p1", 1000, []int{0, 0})
	if !errors.Is(err, domain.ErrInvalidSelection) {
		t.Fatalf("expected invalid-selection error, got %v", err)
	}
}

func TestEvaluateUnknownQuestion(t *testing.T) {
	quiz := singleChoiceQuiz(1000, 20)
	session := newActiveSession(t, quiz, "p1")

	_, err := app.Evaluate(quiz, session, "q-missing", "p1", 1000, []int{0})
	if !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question-not-found error, got %v", err)
	}
}

func TestEvaluateRejectsDuplicateSubmission(t *testing.T) {
	quiz := singleChoiceQuiz(1000, 20)
	session := newActiveSession(t, quiz, "p1")

	rec, err := app.Evaluate(quiz, session, "q1", "p1", 1000, []int{1})
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	total, err := session.RecordAnswer(rec)
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	_, err = app.Evaluate(quiz, session, "q1", "p1", 2000, []int{1})
	if !errors.Is(err, domain.ErrDuplicateAnswer) {
		t.Fatalf("expected duplicate-answer error, got %v", err)
	}
	if entry, err := session.LeaderboardEntryFor("p1"); err == nil && entry.Score != 0 && entry.Score != total {
		t.Fatalf("second submission changed score: %d", entry.Score)
	}
}

func singleChoiceQuiz(points, limitSec int) domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{{
			ID:     "q1",
			Prompt: "pick one",
			Options: []domain.Option{
				{Text: "wrong", Correct: false},
				{Text: "right", Correct: true},
			},
			TimeLimitSec: limitSec,
			Points:       points,
			Type:         domain.QuestionSingle,
		}},
	}
}

func multiChoiceQuiz() domain.Quiz {
	return domain.Quiz{
		ID: "quiz-1",
		Questions: []domain.Question{{
			ID:     "q1",
			Prompt: "pick several",
			Options: []domain.Option{
				{Text: "a", Correct: true},
				{Text: "b", Correct: true},
				{Text: "c", Correct: false},
			},
			TimeLimitSec: 20,
			Points:       1000,
			Type:         domain.QuestionMultiple,
		}},
	}
}

// newActiveSession builds a session with the given players joined and the
// first question active.
func newActiveSession(t *testing.T, quiz domain.Quiz, players ...domain.PlayerID) *app.Session {
	t.Helper()
	session := app.NewSession("sess-1", "123456", "host-1", quiz)
	for i, playerID := range players {
		if err := session.Join(playerID, "player-"+string(rune('a'+i)), false); err != nil {
			t.Fatalf("join %s: %v", playerID, err)
		}
	}
	if _, _, err := session.StartQuestion(); err != nil {
		t.Fatalf("start question: %v", err)
	}
	return session
}
