package app

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"live-quiz-service/internal/domain"
)

// Session is the aggregate for one live quiz: it owns the roster, the
// per-question answer log, the progress pointer, and the leaderboard, and is
// the only mutation surface for all of them. Every mutating operation takes
// the session mutex, so commands on one session are serialized and the
// "at most one answer per player per question" invariant is race-free.
type Session struct {
	mu sync.RWMutex

	id     domain.SessionID
	pin    domain.SessionPin
	quizID domain.QuizID
	hostID domain.PlayerID

	state         domain.State
	players       map[domain.PlayerID]*domain.Player
	joinOrder     []domain.PlayerID
	answers       map[domain.QuestionID]map[domain.PlayerID]domain.AnswerRecord
	questionOrder []domain.QuestionID
	progress      domain.Progress
	leaderboard   domain.Leaderboard

	startedAt         time.Time
	questionStartedAt time.Time
	completedAt       *time.Time
	forcedEnd         bool

	now         func() time.Time
	subscribers map[chan domain.SessionEvent]struct{}
}

// NewSession creates a session in the lobby state for the given quiz.
func NewSession(id domain.SessionID, pin domain.SessionPin, hostID domain.PlayerID, quiz domain.Quiz) *Session {
	return NewSessionWithClock(id, pin, hostID, quiz, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id domain.SessionID, pin domain.SessionPin, hostID domain.PlayerID, quiz domain.Quiz, now func() time.Time) *Session {
	order := make([]domain.QuestionID, len(quiz.Questions))
	for i := range quiz.Questions {
		order[i] = quiz.Questions[i].ID
	}
	return &Session{
		id:            id,
		pin:           pin,
		quizID:        quiz.ID,
		hostID:        hostID,
		state:         domain.StateLobby,
		players:       make(map[domain.PlayerID]*domain.Player),
		answers:       make(map[domain.QuestionID]map[domain.PlayerID]domain.AnswerRecord),
		questionOrder: order,
		progress:      domain.Progress{Total: len(order)},
		startedAt:     now(),
		now:           now,
		subscribers:   make(map[chan domain.SessionEvent]struct{}),
	}
}

func (s *Session) ID() domain.SessionID    { return s.id }
func (s *Session) Pin() domain.SessionPin  { return s.pin }
func (s *Session) QuizID() domain.QuizID   { return s.quizID }
func (s *Session) HostID() domain.PlayerID { return s.hostID }

// State returns the current lifecycle state.
func (s *Session) State() domain.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Progress returns a copy of the progress pointer.
func (s *Session) Progress() domain.Progress {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.progress
}

// Join registers a player. Joining is legal only in the lobby; a rejoin with
// a known player ID refreshes the nickname instead of erroring.
func (s *Session) Join(playerID domain.PlayerID, nickname string, guest bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateLobby {
		return fmt.Errorf("%w: join requires %s, session is %s", domain.ErrStateViolation, domain.StateLobby, s.state)
	}

	if player, ok := s.players[playerID]; ok {
		player.Nickname = nickname
		player.Guest = guest
	} else {
		s.players[playerID] = &domain.Player{
			ID:       playerID,
			Nickname: nickname,
			Guest:    guest,
		}
		s.joinOrder = append(s.joinOrder, playerID)
	}

	lb := s.recomputeLeaderboardLocked()
	s.broadcastLocked(domain.SessionEvent{
		Type:        domain.EventLeaderboard,
		SessionID:   s.id,
		Leaderboard: &lb,
		At:          s.now(),
	})
	return nil
}

// StartQuestion moves the session to question_active. From the lobby the
// first question begins; from reveal the progress pointer advances. The
// question start time resets so elapsed-time scoring is measured from now.
func (s *Session) StartQuestion() (domain.QuestionID, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.state.Transition(domain.StateQuestionActive)
	if err != nil {
		return "", 0, err
	}

	if s.state == domain.StateReveal {
		if s.progress.CurrentIndex+1 >= s.progress.Total {
			return "", 0, fmt.Errorf("%w: no questions remain", domain.ErrStateViolation)
		}
		prev := s.progress.CurrentIndex
		s.progress.PreviousIndex = &prev
		s.progress.CurrentIndex++
	}

	s.state = next
	s.questionStartedAt = s.now()
	questionID := s.questionOrder[s.progress.CurrentIndex]
	s.broadcastLocked(domain.SessionEvent{
		Type:          domain.EventQuestionStarted,
		SessionID:     s.id,
		QuestionID:    questionID,
		QuestionIndex: s.progress.CurrentIndex,
		At:            s.now(),
	})
	return questionID, s.progress.CurrentIndex, nil
}

// CloseQuestion moves the session to reveal. Players who never submitted get
// an empty, zero-point record so the answer log is complete for every closed
// question, then the leaderboard is recomputed with rank deltas.
func (s *Session) CloseQuestion() (domain.Leaderboard, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.state.Transition(domain.StateReveal)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	s.state = next

	questionID := s.questionOrder[s.progress.CurrentIndex]
	log := s.answerLogLocked(questionID)
	now := s.now()
	for _, playerID := range s.joinOrder {
		if _, ok := log[playerID]; ok {
			continue
		}
		log[playerID] = domain.AnswerRecord{
			QuestionID:      questionID,
			PlayerID:        playerID,
			SelectedIndices: nil,
			Correct:         false,
			Points:          0,
			TimeUsedMs:      now.Sub(s.questionStartedAt).Milliseconds(),
			AnsweredAt:      now,
		}
		s.players[playerID].Streak = 0
	}
	s.progress.Answered++

	lb := s.recomputeLeaderboardLocked()
	s.broadcastLocked(domain.SessionEvent{
		Type:          domain.EventQuestionClosed,
		SessionID:     s.id,
		QuestionID:    questionID,
		QuestionIndex: s.progress.CurrentIndex,
		Leaderboard:   &lb,
		At:            now,
	})
	return lb, nil
}

// End moves the session to its terminal state. A host may force an early end
// from reveal; in that case the remaining questions are dropped from the
// total so the session archives as a shortened but consistent game.
func (s *Session) End() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.state.Transition(domain.StateEnded)
	if err != nil {
		return err
	}
	s.state = next

	if s.progress.Answered < s.progress.Total {
		s.forcedEnd = true
		s.progress.Total = s.progress.Answered
	}
	completed := s.now()
	s.completedAt = &completed

	lb := s.leaderboard
	s.broadcastLocked(domain.SessionEvent{
		Type:        domain.EventSessionEnded,
		SessionID:   s.id,
		Leaderboard: &lb,
		At:          completed,
	})
	s.closeSubscribersLocked()
	return nil
}

// HasAnswered reports whether the player already has a recorded answer for
// the question. O(1) against the answer log.
func (s *Session) HasAnswered(questionID domain.QuestionID, playerID domain.PlayerID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.answers[questionID][playerID]
	return ok
}

// RecordAnswer is the only write path for submissions. It re-checks the
// duplicate invariant under the session lock, so two concurrent submissions
// that both passed the evaluation-time check still resolve to exactly one
// recorded answer. Either the full record lands with its score, or nothing
// is mutated. Returns the player's new total score.
func (s *Session) RecordAnswer(rec domain.AnswerRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != domain.StateQuestionActive {
		return 0, fmt.Errorf("%w: answers require %s, session is %s", domain.ErrStateViolation, domain.StateQuestionActive, s.state)
	}
	if rec.QuestionID != s.questionOrder[s.progress.CurrentIndex] {
		return 0, fmt.Errorf("%w: question %s is not the active question", domain.ErrStateViolation, rec.QuestionID)
	}
	player, ok := s.players[rec.PlayerID]
	if !ok {
		return 0, domain.ErrPlayerNotFound
	}
	log := s.answerLogLocked(rec.QuestionID)
	if _, ok := log[rec.PlayerID]; ok {
		return 0, fmt.Errorf("%w: player %s, question %s", domain.ErrDuplicateAnswer, rec.PlayerID, rec.QuestionID)
	}

	log[rec.PlayerID] = rec
	player.Score += rec.Points
	if rec.Correct {
		player.Streak++
	} else {
		player.Streak = 0
	}
	return player.Score, nil
}

// QuestionElapsed returns how long the current question has been open.
func (s *Session) QuestionElapsed() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().Sub(s.questionStartedAt)
}

// CurrentQuestionID returns the question the progress pointer is on.
func (s *Session) CurrentQuestionID() domain.QuestionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.questionOrder) == 0 {
		return ""
	}
	return s.questionOrder[s.progress.CurrentIndex]
}

// PlayerAnswers returns all recorded answers for one player in question
// order, not map iteration order.
func (s *Session) PlayerAnswers(playerID domain.PlayerID) []domain.AnswerRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.AnswerRecord, 0, s.progress.Answered)
	for _, questionID := range s.questionOrder {
		if rec, ok := s.answers[questionID][playerID]; ok {
			records = append(records, rec)
		}
	}
	return records
}

// Leaderboard returns the latest computed leaderboard snapshot.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.leaderboard
}

// LeaderboardEntryFor returns the player's current rank and score.
func (s *Session) LeaderboardEntryFor(playerID domain.PlayerID) (domain.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, entry := range s.leaderboard.Entries {
		if entry.PlayerID == playerID {
			return entry, nil
		}
	}
	return domain.LeaderboardEntry{}, domain.ErrPlayerNotFound
}

// ValidateForCompletion checks the terminal invariants before archival: the
// session must be ended, the answered count must match the total, and every
// closed question must hold a record for every player. A failure here is a
// data-integrity bug, not a retryable condition.
func (s *Session) ValidateForCompletion() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.state != domain.StateEnded {
		return fmt.Errorf("%w: session is %s, not %s", domain.ErrStateViolation, s.state, domain.StateEnded)
	}
	if s.progress.Answered != s.progress.Total {
		return fmt.Errorf("%w: answered %d of %d questions in ended state", domain.ErrIntegrity, s.progress.Answered, s.progress.Total)
	}
	for i := 0; i < s.progress.Answered; i++ {
		questionID := s.questionOrder[i]
		log := s.answers[questionID]
		for _, playerID := range s.joinOrder {
			if _, ok := log[playerID]; !ok {
				return fmt.Errorf("%w: question %s has no record for player %s", domain.ErrIntegrity, questionID, playerID)
			}
		}
	}
	return nil
}

// Snapshot returns the full archival record of the session.
func (s *Session) Snapshot() domain.SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	players := make([]domain.Player, 0, len(s.joinOrder))
	for _, playerID := range s.joinOrder {
		players = append(players, *s.players[playerID])
	}
	answers := make(map[domain.QuestionID]map[domain.PlayerID]domain.AnswerRecord, len(s.answers))
	for questionID, log := range s.answers {
		copied := make(map[domain.PlayerID]domain.AnswerRecord, len(log))
		for playerID, rec := range log {
			copied[playerID] = rec
		}
		answers[questionID] = copied
	}

	return domain.SessionSnapshot{
		ID:          s.id,
		Pin:         s.pin,
		QuizID:      s.quizID,
		HostID:      s.hostID,
		State:       s.state,
		Players:     players,
		Answers:     answers,
		Progress:    s.progress,
		Leaderboard: s.leaderboard,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		ForcedEnd:   s.forcedEnd,
	}
}

// Subscribe returns a channel receiving session events. The caller must
// invoke the returned cancel function to avoid leaks.
func (s *Session) Subscribe() (<-chan domain.SessionEvent, func()) {
	ch := make(chan domain.SessionEvent, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	lb := s.leaderboard
	initial := domain.SessionEvent{
		Type:        domain.EventLeaderboard,
		SessionID:   s.id,
		Leaderboard: &lb,
		At:          s.now(),
	}
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) answerLogLocked(questionID domain.QuestionID) map[domain.PlayerID]domain.AnswerRecord {
	log, ok := s.answers[questionID]
	if !ok {
		log = make(map[domain.PlayerID]domain.AnswerRecord)
		s.answers[questionID] = log
	}
	return log
}

// recomputeLeaderboardLocked sorts players by score descending, tie-broken
// by join order so ranking stays deterministic. Previous ranks carry over
// from the prior snapshot.
func (s *Session) recomputeLeaderboardLocked() domain.Leaderboard {
	previous := make(map[domain.PlayerID]int, len(s.leaderboard.Entries))
	for _, entry := range s.leaderboard.Entries {
		previous[entry.PlayerID] = entry.Rank
	}

	order := make(map[domain.PlayerID]int, len(s.joinOrder))
	for i, playerID := range s.joinOrder {
		order[playerID] = i
	}

	entries := make([]domain.LeaderboardEntry, 0, len(s.players))
	for _, playerID := range s.joinOrder {
		player := s.players[playerID]
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID: player.ID,
			Nickname: player.Nickname,
			Score:    player.Score,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return order[entries[i].PlayerID] < order[entries[j].PlayerID]
	})
	for i := range entries {
		entries[i].Rank = i + 1
		if prev, ok := previous[entries[i].PlayerID]; ok {
			entries[i].PreviousRank = prev
		} else {
			entries[i].PreviousRank = i + 1
		}
	}

	s.leaderboard = domain.Leaderboard{
		SessionID: s.id,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
	return s.leaderboard
}

func (s *Session) broadcastLocked(event domain.SessionEvent) {
	for ch := range s.subscribers {
		select {
		case ch <- event:
		default:
			// Drop the oldest buffered event so slow clients never block.
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

func (s *Session) closeSubscribersLocked() {
	for ch := range s.subscribers {
		delete(s.subscribers, ch)
		close(ch)
	}
}
