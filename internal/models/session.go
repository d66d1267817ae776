package models

import (
	"encoding/json"
	"fmt"
)

// Session is the stored part of an estimation session. Everything else about a
// session is derived from its participants.
type Session struct {
	SessionID string   `json:"session_id"`
	Average   *float64 `json:"average"`
}

func NewSession(sessionID string) Session {
	return Session{SessionID: sessionID}
}

// SessionState is the aggregate phase of a session, derived from its votes.
type SessionState string

const (
	StateClean   SessionState = "Clean"
	StateVoting  SessionState = "Voting"
	StateVisible SessionState = "Visible"
	StateDirty   SessionState = "Dirty"
)

// ParseSessionState accepts the canonical names of the four states.
func ParseSessionState(s string) (SessionState, error) {
	switch state := SessionState(s); state {
	case StateClean, StateVoting, StateVisible, StateDirty:
		return state, nil
	}
	return "", fmt.Errorf("unknown session state %q", s)
}

func (s *SessionState) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	state, err := ParseSessionState(raw)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// next folds one vote into the running state. The second result is true once
// the state is Dirty and scanning can stop.
func (s SessionState) next(vote VoteStatus) (SessionState, bool) {
	switch s {
	case StateClean:
		if vote == VoteVisible {
			return StateVisible, false
		}
		return StateVoting, false
	case StateVoting:
		if vote == VoteVisible {
			return StateDirty, true
		}
	case StateVisible:
		if vote != VoteVisible {
			return StateDirty, true
		}
	case StateDirty:
		return StateDirty, true
	}
	return s, false
}

// DeriveSessionState scans votes in order. A session with no votes is Clean,
// all pre-reveal votes give Voting, all revealed votes give Visible, and any
// mixture is Dirty.
func DeriveSessionState(votes []VoteState) SessionState {
	state := StateClean
	for _, v := range votes {
		var done bool
		if state, done = state.next(v.Status()); done {
			return state
		}
	}
	return state
}

// DeriveParticipantsState is DeriveSessionState over each participant's vote.
func DeriveParticipantsState(participants []Participant) SessionState {
	votes := make([]VoteState, len(participants))
	for i, p := range participants {
		votes[i] = p.Vote
	}
	return DeriveSessionState(votes)
}

// TakeVotes reveals every vote and records the mean of the visible amounts.
// The average is nil when nobody has voted.
func TakeVotes(session *Session, participants []Participant) {
	var sum float64
	var count int
	for i := range participants {
		participants[i].Vote = participants[i].Vote.Reveal()
		if amount, ok := participants[i].Vote.Amount(); ok && participants[i].Vote.Status() == VoteVisible {
			sum += float64(amount)
			count++
		}
	}

	session.Average = nil
	if count > 0 {
		avg := sum / float64(count)
		session.Average = &avg
	}
}

// ClearVotes empties visible votes, keeps hidden ones and drops the average.
func ClearVotes(session *Session, participants []Participant) {
	for i := range participants {
		participants[i].Vote = participants[i].Vote.Clear()
	}
	session.Average = nil
}

// ResetVotes empties every vote and drops the average.
func ResetVotes(session *Session, participants []Participant) {
	for i := range participants {
		participants[i].Vote = participants[i].Vote.Reset()
	}
	session.Average = nil
}

// SessionTransition names one of the whole-session vote transitions.
type SessionTransition int

const (
	TransitionReset SessionTransition = iota
	TransitionClear
	TransitionReveal
)

func (t SessionTransition) String() string {
	switch t {
	case TransitionReset:
		return "reset"
	case TransitionClear:
		return "clear"
	case TransitionReveal:
		return "reveal"
	}
	return fmt.Sprintf("SessionTransition(%d)", int(t))
}

// TransitionTo maps a requested target state to the transition that reaches it.
// Dirty is never a valid target.
func TransitionTo(target SessionState) (SessionTransition, bool) {
	switch target {
	case StateClean:
		return TransitionReset, true
	case StateVoting:
		return TransitionClear, true
	case StateVisible:
		return TransitionReveal, true
	}
	return 0, false
}

// Apply runs the transition over a loaded session. Its signature matches the
// repository's session update plan.
func (t SessionTransition) Apply(session *Session, participants []Participant) error {
	switch t {
	case TransitionReset:
		ResetVotes(session, participants)
	case TransitionClear:
		ClearVotes(session, participants)
	case TransitionReveal:
		TakeVotes(session, participants)
	default:
		return fmt.Errorf("unknown transition %d", int(t))
	}
	return nil
}
