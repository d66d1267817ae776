package redis

import "fmt"

// DefaultNamespace prefixes every key the store writes.
const DefaultNamespace = "STORYESTIMATES"

type table string

const (
	tableUser        table = "USER"
	tableSession     table = "SESSION"
	tableParticipant table = "PARTICIPANT"
)

type relation string

const (
	relAdmin          relation = "ADMIN"
	relParticipantUID relation = "PARTICIPANTUID"
)

// Records live at {ns}_{TABLE}_{id}; relation sets at {ns}_set_{REL}_{id}.
func (s *Store) tableKey(t table, id string) string {
	return fmt.Sprintf("%s_%s_%s", s.namespace, t, id)
}

func (s *Store) setKey(r relation, id string) string {
	return fmt.Sprintf("%s_set_%s_%s", s.namespace, r, id)
}

func participantID(sessionID, userID string) string {
	return sessionID + "_" + userID
}

func (s *Store) participantKey(sessionID, userID string) string {
	return s.tableKey(tableParticipant, participantID(sessionID, userID))
}
