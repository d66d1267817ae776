// Package memory is the in-process StoryData backend. One mutex guards the
// whole store, so every operation is linearizable with every other. Session
// plans run while the lock is held and must not block.
package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/repository"
)

// Store keeps every aggregate in maps. Participant and admin lists keep insertion order.
type Store struct {
	log logger.Logger

	mu           sync.Mutex
	users        map[string]models.BasicUser
	sessions     map[string]models.Session
	participants map[string][]models.Participant
	admins       map[string][]string
}

var _ repository.StoryData = (*Store)(nil)

func New(log logger.Logger) *Store {
	return &Store{
		log:          log.With("component", "memory"),
		users:        make(map[string]models.BasicUser),
		sessions:     make(map[string]models.Session),
		participants: make(map[string][]models.Participant),
		admins:       make(map[string][]string),
	}
}

func (s *Store) GetUser(ctx context.Context, userID string) (*models.BasicUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	return &user, nil
}

func (s *Store) AddUser(ctx context.Context, user models.BasicUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.UserID]; ok {
		return repository.UserExists(user.UserID)
	}
	s.users[user.UserID] = user
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	session = copySession(session)
	return &session, nil
}

func (s *Store) AddSession(ctx context.Context, session models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[session.SessionID]; ok {
		return repository.SessionExists(session.SessionID)
	}
	s.sessions[session.SessionID] = copySession(session)
	return nil
}

// DelSession drops the session together with its participants and admins.
func (s *Store) DelSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return repository.SessionNotFound(sessionID)
	}
	delete(s.sessions, sessionID)
	delete(s.participants, sessionID)
	delete(s.admins, sessionID)
	s.log.Debug("session deleted", "session_id", sessionID)
	return nil
}

func (s *Store) UpdateSession(ctx context.Context, sessionID string, plan repository.SessionPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return repository.SessionNotFound(sessionID)
	}

	updated, participants, err := repository.ApplySessionPlan(session, s.participants[sessionID], plan)
	if err != nil {
		return err
	}

	s.sessions[sessionID] = updated
	if len(participants) > 0 {
		s.participants[sessionID] = participants
	}
	return nil
}

func (s *Store) GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	participants := slices.Clone(s.participants[sessionID])
	if participants == nil {
		participants = []models.Participant{}
	}
	return participants, nil
}

func (s *Store) AddParticipant(ctx context.Context, participant models.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.participantIndex(participant.SessionID, participant.UserID) >= 0 {
		return repository.ParticipantExists(participant.SessionID, participant.UserID)
	}
	s.participants[participant.SessionID] = append(s.participants[participant.SessionID], participant)
	return nil
}

func (s *Store) DelParticipant(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.participantIndex(sessionID, userID)
	if i < 0 {
		return repository.ParticipantNotFound(sessionID, userID)
	}
	s.participants[sessionID] = slices.Delete(slices.Clone(s.participants[sessionID]), i, i+1)
	return nil
}

func (s *Store) UpdateParticipant(ctx context.Context, sessionID, userID string, plan repository.ParticipantPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.participantIndex(sessionID, userID)
	if i < 0 {
		return repository.ParticipantNotFound(sessionID, userID)
	}

	updated, err := repository.ApplyParticipantPlan(s.participants[sessionID][i], plan)
	if err != nil {
		return err
	}
	s.participants[sessionID][i] = updated
	return nil
}

func (s *Store) participantIndex(sessionID, userID string) int {
	return slices.IndexFunc(s.participants[sessionID], func(p models.Participant) bool {
		return p.UserID == userID
	})
}

func (s *Store) GetAdmins(ctx context.Context, sessionID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	admins := slices.Clone(s.admins[sessionID])
	if admins == nil {
		admins = []string{}
	}
	return admins, nil
}

func (s *Store) AddAdmin(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.admins[sessionID], userID) {
		return repository.AdminExists(sessionID, userID)
	}
	s.admins[sessionID] = append(s.admins[sessionID], userID)
	return nil
}

func (s *Store) DelAdmin(ctx context.Context, sessionID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.admins[sessionID], userID)
	if i < 0 {
		return repository.AdminNotFound(sessionID, userID)
	}
	s.admins[sessionID] = slices.Delete(slices.Clone(s.admins[sessionID]), i, i+1)
	return nil
}

func (s *Store) IsAdmin(ctx context.Context, sessionID, userID string) (bool, error) {
	return repository.IsAdminFromList(ctx, s, sessionID, userID)
}

func copySession(session models.Session) models.Session {
	if session.Average != nil {
		avg := *session.Average
		session.Average = &avg
	}
	return session
}
