package domain

import "errors"

var (
	// ErrSessionNotFound is returned when no live session matches the given pin or ID.
	ErrSessionNotFound = errors.New("session not found")
	// ErrPlayerNotFound is returned when a player tries to act before joining.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID does not belong to
	// the quiz being played. This is a data-integrity error, not user error.
	ErrQuestionNotFound = errors.New("question not found in quiz")
	// ErrDuplicateAnswer is returned when a player already has a recorded
	// answer for the question. Clients must not resubmit.
	ErrDuplicateAnswer = errors.New("answer already recorded for question")
	// ErrInvalidSelection covers out-of-range indices, duplicate indices, and
	// wrong cardinality for the question type.
	ErrInvalidSelection = errors.New("invalid answer selection")
	// ErrStateViolation is returned when a command is issued while the session
	// is not in the required lifecycle state.
	ErrStateViolation = errors.New("operation not allowed in current session state")
	// ErrIntegrity signals the session reached a state that should be
	// impossible; it is fatal for the operation and never retried.
	ErrIntegrity = errors.New("session integrity violation")
	// ErrStoreUnavailable classifies persistence errors that justify falling
	// back to a secondary store. Any unwrapped store error propagates as-is.
	ErrStoreUnavailable = errors.New("store unavailable")
)
