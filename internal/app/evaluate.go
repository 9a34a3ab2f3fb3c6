package app

import (
	"fmt"
	"math"
	"time"

	"live-quiz-service/internal/domain"
)

const (
	defaultBasePoints   = 1000
	defaultTimeLimitSec = 20
)

// Evaluate validates a raw submission against the question definition and
// produces the answer record to be written through Session.RecordAnswer.
// It is pure apart from the read-only duplicate check; the locked insert in
// RecordAnswer remains the final authority on idempotency.
func Evaluate(quiz domain.Quiz, session *Session, questionID domain.QuestionID, playerID domain.PlayerID, timeUsedMs int64, selected []int) (domain.AnswerRecord, error) {
	if session.HasAnswered(questionID, playerID) {
		return domain.AnswerRecord{}, fmt.Errorf("%w: player %s, question %s", domain.ErrDuplicateAnswer, playerID, questionID)
	}

	question, ok := quiz.QuestionByID(questionID)
	if !ok {
		return domain.AnswerRecord{}, fmt.Errorf("%w: %s in quiz %s", domain.ErrQuestionNotFound, questionID, quiz.ID)
	}

	if err := validateSelection(question, selected); err != nil {
		return domain.AnswerRecord{}, err
	}

	correct := isCorrect(question, selected)
	points := 0
	if correct {
		points = Score(question, timeUsedMs)
	}

	return domain.AnswerRecord{
		QuestionID:      questionID,
		PlayerID:        playerID,
		SelectedIndices: selected,
		Correct:         correct,
		Points:          points,
		TimeUsedMs:      timeUsedMs,
		AnsweredAt:      time.Now(),
	}, nil
}

// validateSelection enforces index bounds, rejects duplicate indices, and
// requires exactly one selection for anything other than multiple-select.
// An empty selection on a multiple-select question is valid and simply
// scores as incorrect.
func validateSelection(question domain.Question, selected []int) error {
	if !question.Type.MultiSelect() && len(selected) != 1 {
		return fmt.Errorf("%w: question type %s requires exactly one selected index, got %d", domain.ErrInvalidSelection, questionType(question), len(selected))
	}

	seen := make(map[int]struct{}, len(selected))
	for _, idx := range selected {
		if idx < 0 || idx >= len(question.Options) {
			return fmt.Errorf("%w: index %d out of range [0, %d)", domain.ErrInvalidSelection, idx, len(question.Options))
		}
		if _, dup := seen[idx]; dup {
			return fmt.Errorf("%w: duplicate index %d", domain.ErrInvalidSelection, idx)
		}
		seen[idx] = struct{}{}
	}
	return nil
}

// isCorrect requires the selected set to equal the flagged-correct set
// exactly. Subsets and supersets earn nothing; empty selections are always
// incorrect.
func isCorrect(question domain.Question, selected []int) bool {
	if len(selected) == 0 {
		return false
	}
	correct := question.CorrectIndices()
	if len(selected) != len(correct) {
		return false
	}
	chosen := make(map[int]struct{}, len(selected))
	for _, idx := range selected {
		chosen[idx] = struct{}{}
	}
	for _, idx := range correct {
		if _, ok := chosen[idx]; !ok {
			return false
		}
	}
	return true
}

// Score computes the points for a correct answer with time decay:
//
//	speedMultiplier = 1 + (timeLeftRatio ^ 1.5) * 0.8
//
// ranging over [1.0, 1.8], with the result rounded to the nearest 10 for
// display cleanliness. Time used beyond the limit clamps to the limit, so a
// full-time correct answer is worth exactly the base points.
func Score(question domain.Question, timeUsedMs int64) int {
	base := question.Points
	if base == 0 {
		base = defaultBasePoints
	}
	limit := question.TimeLimitSec
	if limit <= 0 {
		limit = defaultTimeLimitSec
	}

	used := math.Min(float64(timeUsedMs)/1000.0, float64(limit))
	if used < 0 {
		used = 0
	}
	ratio := (float64(limit) - used) / float64(limit)
	multiplier := 1 + math.Pow(ratio, 1.5)*0.8
	return int(math.Round(float64(base)*multiplier/10)) * 10
}

func questionType(question domain.Question) domain.QuestionType {
	if question.Type == "" {
		return domain.QuestionSingle
	}
	return question.Type
}
