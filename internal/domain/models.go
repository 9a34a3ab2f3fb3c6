package domain

import "time"

// SessionID uniquely identifies a hosted quiz session.
type SessionID string

// SessionPin is the short join code players use to find a live session.
// It is unique among currently-active sessions and immutable once assigned.
type SessionPin string

// PlayerID identifies a participant within a session.
type PlayerID string

// QuestionID identifies a question inside a quiz.
type QuestionID string

// QuizID identifies the quiz content a session is playing.
type QuizID string

// QuestionType determines the answer cardinality of a question.
type QuestionType string

const (
	QuestionSingle    QuestionType = "single"
	QuestionMultiple  QuestionType = "multiple"
	QuestionTrueFalse QuestionType = "true_false"
)

// MultiSelect reports whether the question accepts more than one selected index.
func (t QuestionType) MultiSelect() bool {
	return t == QuestionMultiple
}

// Option represents a possible answer for a question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models a timed question with indexed answer options.
type Question struct {
	ID           QuestionID   `json:"id"`
	Prompt       string       `json:"prompt"`
	Options      []Option     `json:"options"`
	TimeLimitSec int          `json:"timeLimitSec"` // defaults to 20 if zero
	Points       int          `json:"points"`       // base points, defaults to 1000 if zero
	Type         QuestionType `json:"type"`         // defaults to single if empty
}

// CorrectIndices returns the indices of all options flagged correct.
func (q Question) CorrectIndices() []int {
	indices := make([]int, 0, 1)
	for i, opt := range q.Options {
		if opt.Correct {
			indices = append(indices, i)
		}
	}
	return indices
}

// Quiz is an ordered collection of questions.
type Quiz struct {
	ID        QuizID     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionByID looks up a question definition by its ID.
func (q Quiz) QuestionByID(id QuestionID) (Question, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == id {
			return q.Questions[i], true
		}
	}
	return Question{}, false
}

// Player represents one joined participant and their accumulated state.
type Player struct {
	ID       PlayerID `json:"playerId"`
	Nickname string   `json:"nickname"`
	Score    int      `json:"score"`
	Streak   int      `json:"streak"`
	Guest    bool     `json:"guest"`
}

// AnswerRecord is the recorded outcome of one player's submission for one
// question: what they selected, whether it was correct, what it was worth,
// and how long they took.
type AnswerRecord struct {
	QuestionID      QuestionID `json:"questionId"`
	PlayerID        PlayerID   `json:"playerId"`
	SelectedIndices []int      `json:"selectedIndices"`
	Correct         bool       `json:"correct"`
	Points          int        `json:"points"`
	TimeUsedMs      int64      `json:"timeUsedMs"`
	AnsweredAt      time.Time  `json:"answeredAt"`
}

// Progress tracks where a session is in its question sequence. Indices only
// ever advance.
type Progress struct {
	CurrentIndex  int  `json:"currentIndex"`
	PreviousIndex *int `json:"previousIndex,omitempty"`
	Total         int  `json:"total"`
	Answered      int  `json:"answered"`
}

// LeaderboardEntry is one ranked row of the scoreboard. PreviousRank carries
// the rank from the prior snapshot so clients can animate position changes.
type LeaderboardEntry struct {
	PlayerID     PlayerID `json:"playerId"`
	Nickname     string   `json:"nickname"`
	Score        int      `json:"score"`
	Rank         int      `json:"rank"`
	PreviousRank int      `json:"previousRank"`
}

// Leaderboard captures the ordered scoreboard for a session at a point in
// time. It is derived from player scores and never edited directly.
type Leaderboard struct {
	SessionID SessionID          `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionSnapshot is the full archival record of a session. It carries
// enough data (complete answer log plus leaderboard) for downstream
// reporting to rebuild per-player summaries without re-running evaluation.
type SessionSnapshot struct {
	ID          SessionID                                `json:"id"`
	Pin         SessionPin                               `json:"pin"`
	QuizID      QuizID                                   `json:"quizId"`
	HostID      PlayerID                                 `json:"hostId"`
	State       State                                    `json:"state"`
	Players     []Player                                 `json:"players"`
	Answers     map[QuestionID]map[PlayerID]AnswerRecord `json:"answers"`
	Progress    Progress                                 `json:"progress"`
	Leaderboard Leaderboard                              `json:"leaderboard"`
	StartedAt   time.Time                                `json:"startedAt"`
	CompletedAt *time.Time                               `json:"completedAt,omitempty"`
	ForcedEnd   bool                                     `json:"forcedEnd"`
}

// PlayerResult is the per-player summary reporting consumers build from an
// archived session.
type PlayerResult struct {
	PlayerID     PlayerID       `json:"playerId"`
	Nickname     string         `json:"nickname"`
	FinalScore   int            `json:"finalScore"`
	CorrectCount int            `json:"correctCount"`
	Rank         int            `json:"rank"`
	Answers      []AnswerRecord `json:"answers"`
}

// SessionEvent is pushed to subscribers when the session state changes.
type SessionEvent struct {
	Type          EventType    `json:"type"`
	SessionID     SessionID    `json:"sessionId"`
	QuestionID    QuestionID   `json:"questionId,omitempty"`
	QuestionIndex int          `json:"questionIndex"`
	Leaderboard   *Leaderboard `json:"leaderboard,omitempty"`
	At            time.Time    `json:"at"`
}

// EventType enumerates the session events delivered to subscribers.
type EventType string

const (
	EventLeaderboard     EventType = "leaderboard"
	EventQuestionStarted EventType = "question_started"
	EventQuestionClosed  EventType = "question_closed"
	EventSessionEnded    EventType = "session_ended"
)
