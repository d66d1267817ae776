package models

// PublicSession is everything a session member may see about a session.
type PublicSession struct {
	SessionID string              `json:"session_id"`
	Users     []PublicParticipant `json:"users"`
	Admins    []string            `json:"admins"`
	Average   *float64            `json:"average"`
	State     SessionState        `json:"state"`
}

// NewPublicSession builds the public view; the state is derived from the
// participants in the order given.
func NewPublicSession(session Session, participants []Participant, admins []string) PublicSession {
	users := make([]PublicParticipant, 0, len(participants))
	for _, p := range participants {
		users = append(users, p.Public())
	}
	if admins == nil {
		admins = []string{}
	}
	return PublicSession{
		SessionID: session.SessionID,
		Users:     users,
		Admins:    admins,
		Average:   session.Average,
		State:     DeriveParticipantsState(participants),
	}
}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
