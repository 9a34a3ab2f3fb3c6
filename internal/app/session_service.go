package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"live-quiz-service/internal/domain"
)

// ActiveSessionStore is the persistence boundary for currently-live
// sessions, keyed by pin. There are no historical query needs here.
type ActiveSessionStore interface {
	Save(ctx context.Context, session *Session) error
	FindByPin(ctx context.Context, pin domain.SessionPin) (*Session, error)
	Delete(ctx context.Context, pin domain.SessionPin) error
}

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID domain.QuizID) (domain.Quiz, error)
}

// HistoryStore is the durable boundary for archived sessions. ArchiveSession
// must be idempotent on session ID.
type HistoryStore interface {
	ArchiveSession(ctx context.Context, snapshot domain.SessionSnapshot) error
	FindByID(ctx context.Context, id domain.SessionID) (domain.SessionSnapshot, error)
}

// Submission is the raw answer signal from a player client.
type Submission struct {
	QuestionID      domain.QuestionID
	TimeUsedMs      int64
	SelectedIndices []int
}

// SubmissionResult reports the evaluated outcome back to the submitter.
type SubmissionResult struct {
	Record     domain.AnswerRecord
	TotalScore int
}

const maxPinAttempts = 10

// SessionService contains the live-session use cases: the host drives the
// lifecycle, players join and submit answers, and ending a session hands it
// to the archiver.
type SessionService struct {
	active   ActiveSessionStore
	quizzes  QuizRepository
	history  HistoryStore
	archiver *Archiver
	log      zerolog.Logger
}

func NewSessionService(active ActiveSessionStore, quizzes QuizRepository, history HistoryStore, log zerolog.Logger) *SessionService {
	return &SessionService{
		active:   active,
		quizzes:  quizzes,
		history:  history,
		archiver: NewArchiver(active, history, log),
		log:      log,
	}
}

// Create opens a new session in the lobby state with a fresh ID and a pin
// that is unique among active sessions.
func (s *SessionService) Create(ctx context.Context, quizID domain.QuizID, hostID domain.PlayerID) (*Session, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	if len(quiz.Questions) == 0 {
		return nil, fmt.Errorf("%w: quiz %s has no questions", domain.ErrIntegrity, quizID)
	}

	pin, err := s.freePin(ctx)
	if err != nil {
		return nil, err
	}

	session := NewSession(domain.SessionID(uuid.NewString()), pin, hostID, quiz)
	if err := s.active.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save new session: %w", err)
	}
	s.log.Info().
		Str("session", string(session.ID())).
		Str("pin", string(pin)).
		Str("quiz", string(quizID)).
		Msg("session created")
	return session, nil
}

// Join adds a player to the lobby of the session behind the pin.
func (s *SessionService) Join(ctx context.Context, pin domain.SessionPin, playerID domain.PlayerID, nickname string, guest bool) (*Session, error) {
	session, err := s.active.FindByPin(ctx, pin)
	if err != nil {
		return nil, err
	}
	if err := session.Join(playerID, nickname, guest); err != nil {
		return nil, err
	}
	if err := s.active.Save(ctx, session); err != nil {
		return nil, fmt.Errorf("save session after join: %w", err)
	}
	return session, nil
}

// SubmitAnswer routes one player submission through the evaluation engine
// and records the outcome on the session.
func (s *SessionService) SubmitAnswer(ctx context.Context, pin domain.SessionPin, playerID domain.PlayerID, sub Submission) (SubmissionResult, error) {
	session, err := s.active.FindByPin(ctx, pin)
	if err != nil {
		return SubmissionResult{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID())
	if err != nil {
		return SubmissionResult{}, err
	}

	record, err := Evaluate(quiz, session, sub.QuestionID, playerID, sub.TimeUsedMs, sub.SelectedIndices)
	if err != nil {
		return SubmissionResult{}, err
	}
	total, err := session.RecordAnswer(record)
	if err != nil {
		return SubmissionResult{}, err
	}
	if err := s.active.Save(ctx, session); err != nil {
		return SubmissionResult{}, fmt.Errorf("save session after answer: %w", err)
	}
	return SubmissionResult{Record: record, TotalScore: total}, nil
}

// StartQuestion activates the next (or first) question. Host only.
func (s *SessionService) StartQuestion(ctx context.Context, pin domain.SessionPin, callerID domain.PlayerID) (domain.QuestionID, int, error) {
	session, err := s.hostSession(ctx, pin, callerID)
	if err != nil {
		return "", 0, err
	}
	questionID, index, err := session.StartQuestion()
	if err != nil {
		return "", 0, err
	}
	if err := s.active.Save(ctx, session); err != nil {
		return "", 0, fmt.Errorf("save session after question start: %w", err)
	}
	return questionID, index, nil
}

// CloseQuestion ends the active question and returns the recomputed
// leaderboard. Host only.
func (s *SessionService) CloseQuestion(ctx context.Context, pin domain.SessionPin, callerID domain.PlayerID) (domain.Leaderboard, error) {
	session, err := s.hostSession(ctx, pin, callerID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	lb, err := session.CloseQuestion()
	if err != nil {
		return domain.Leaderboard{}, err
	}
	if err := s.active.Save(ctx, session); err != nil {
		return domain.Leaderboard{}, fmt.Errorf("save session after question close: %w", err)
	}
	return lb, nil
}

// EndSession moves the session to its terminal state and archives it. If
// archival fails the session stays ended in the active store and calling
// EndSession again retries the archival without repeating the transition.
func (s *SessionService) EndSession(ctx context.Context, pin domain.SessionPin, callerID domain.PlayerID) (domain.SessionSnapshot, error) {
	session, err := s.hostSession(ctx, pin, callerID)
	if err != nil {
		return domain.SessionSnapshot{}, err
	}
	if session.State() != domain.StateEnded {
		if err := session.End(); err != nil {
			return domain.SessionSnapshot{}, err
		}
	}
	if err := s.archiver.ArchiveAndClean(ctx, session); err != nil {
		return domain.SessionSnapshot{}, err
	}
	return session.Snapshot(), nil
}

// Leaderboard returns the current leaderboard for a live session.
func (s *SessionService) Leaderboard(ctx context.Context, pin domain.SessionPin) (domain.Leaderboard, error) {
	session, err := s.active.FindByPin(ctx, pin)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	return session.Leaderboard(), nil
}

// Subscribe returns a channel of session events for a live session.
// The caller must invoke the returned cancel function.
func (s *SessionService) Subscribe(ctx context.Context, pin domain.SessionPin) (<-chan domain.SessionEvent, func(), error) {
	session, err := s.active.FindByPin(ctx, pin)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// PlayerSummary rebuilds one player's result from an archived session: final
// score, correct-answer count, final rank, and the per-question breakdown in
// question order. Evaluation is never re-run.
func (s *SessionService) PlayerSummary(ctx context.Context, sessionID domain.SessionID, playerID domain.PlayerID) (domain.PlayerResult, error) {
	snapshot, err := s.history.FindByID(ctx, sessionID)
	if err != nil {
		return domain.PlayerResult{}, err
	}

	var player *domain.Player
	for i := range snapshot.Players {
		if snapshot.Players[i].ID == playerID {
			player = &snapshot.Players[i]
			break
		}
	}
	if player == nil {
		return domain.PlayerResult{}, domain.ErrPlayerNotFound
	}

	result := domain.PlayerResult{
		PlayerID:   playerID,
		Nickname:   player.Nickname,
		FinalScore: player.Score,
	}
	for _, entry := range snapshot.Leaderboard.Entries {
		if entry.PlayerID == playerID {
			result.Rank = entry.Rank
			break
		}
	}
	for _, questionLog := range snapshot.Answers {
		rec, ok := questionLog[playerID]
		if !ok {
			continue
		}
		if rec.Correct {
			result.CorrectCount++
		}
		result.Answers = append(result.Answers, rec)
	}
	// The answer map carries no order; questions close strictly one after
	// another, so the record timestamps reproduce question order.
	sort.Slice(result.Answers, func(i, j int) bool {
		return result.Answers[i].AnsweredAt.Before(result.Answers[j].AnsweredAt)
	})
	return result, nil
}

func (s *SessionService) hostSession(ctx context.Context, pin domain.SessionPin, callerID domain.PlayerID) (*Session, error) {
	session, err := s.active.FindByPin(ctx, pin)
	if err != nil {
		return nil, err
	}
	if session.HostID() != callerID {
		return nil, fmt.Errorf("%w: only the host may drive the session lifecycle", domain.ErrStateViolation)
	}
	return session, nil
}

// freePin draws random 6-digit pins until one is unused among active
// sessions.
func (s *SessionService) freePin(ctx context.Context) (domain.SessionPin, error) {
	for attempt := 0; attempt < maxPinAttempts; attempt++ {
		pin, err := randomPin()
		if err != nil {
			return "", err
		}
		_, err = s.active.FindByPin(ctx, pin)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return pin, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", fmt.Errorf("could not allocate a unique session pin after %d attempts", maxPinAttempts)
}

func randomPin() (domain.SessionPin, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate pin: %w", err)
	}
	return domain.SessionPin(fmt.Sprintf("%06d", n.Int64())), nil
}
