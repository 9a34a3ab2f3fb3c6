package domain

import "fmt"

// State is a session's lifecycle state. Exactly one state holds at a time
// and every transition is checked against the table below; there are no
// ad-hoc state comparisons at call sites.
type State string

const (
	StateLobby          State = "lobby"
	StateQuestionActive State = "question_active"
	StateReveal         State = "reveal"
	StateEnded          State = "ended"
)

// transitions is the full set of legal lifecycle moves:
//
//	lobby -> question_active -> reveal -> question_active ... -> ended
var transitions = map[State][]State{
	StateLobby:          {StateQuestionActive},
	StateQuestionActive: {StateReveal},
	StateReveal:         {StateQuestionActive, StateEnded},
	StateEnded:          {},
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Transition validates the move from s to next and returns next, or a
// state-violation error naming both states.
func (s State) Transition(next State) (State, error) {
	if !s.CanTransition(next) {
		return s, fmt.Errorf("%w: %s -> %s", ErrStateViolation, s, next)
	}
	return next, nil
}
