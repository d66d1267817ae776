package models

// Participant is a user's membership in one session, keyed by (SessionID, UserID).
type Participant struct {
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id"`
	Nickname  string    `json:"nickname"`
	Vote      VoteState `json:"vote"`
}

func NewParticipant(sessionID, userID, nickname string) Participant {
	return Participant{
		UserID:    userID,
		SessionID: sessionID,
		Nickname:  nickname,
		Vote:      EmptyVote(),
	}
}

// PublicParticipant is the redacted participant shown to other session members.
type PublicParticipant struct {
	UserID     string     `json:"user_id"`
	Nickname   string     `json:"nickname"`
	VoteState  VoteStatus `json:"vote_state"`
	VoteAmount *uint32    `json:"vote_amount"`
}

func (p Participant) Public() PublicParticipant {
	vote := p.Vote.Public()
	return PublicParticipant{
		UserID:     p.UserID,
		Nickname:   p.Nickname,
		VoteState:  vote.State,
		VoteAmount: vote.Amount,
	}
}
