package repository

import (
	"context"

	"github.com/scottschroeder/storyestimate/internal/models"
)

// SessionPlan mutates a loaded session together with all of its participants.
// Returning an error aborts the update and nothing is persisted.
// A plan may change votes, nicknames and the average, but not which participants exist.
type SessionPlan func(session *models.Session, participants []models.Participant) error

// ParticipantPlan mutates a single loaded participant.
type ParticipantPlan func(participant *models.Participant) error

// UserRepository defines user data operations.
// GetUser returns nil without error when the user does not exist.
type UserRepository interface {
	GetUser(ctx context.Context, userID string) (*models.BasicUser, error)
	AddUser(ctx context.Context, user models.BasicUser) error
}

// SessionRepository defines session data operations
type SessionRepository interface {
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)
	AddSession(ctx context.Context, session models.Session) error
	DelSession(ctx context.Context, sessionID string) error
	UpdateSession(ctx context.Context, sessionID string, plan SessionPlan) error
}

// ParticipantRepository defines participant data operations
type ParticipantRepository interface {
	GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error)
	AddParticipant(ctx context.Context, participant models.Participant) error
	DelParticipant(ctx context.Context, sessionID, userID string) error
	UpdateParticipant(ctx context.Context, sessionID, userID string, plan ParticipantPlan) error
}

// AdminRepository defines the session admin relation
type AdminRepository interface {
	GetAdmins(ctx context.Context, sessionID string) ([]string, error)
	AddAdmin(ctx context.Context, sessionID, userID string) error
	DelAdmin(ctx context.Context, sessionID, userID string) error
	IsAdmin(ctx context.Context, sessionID, userID string) (bool, error)
}

// StoryData combines all repository interfaces.
// Every backend implements it and must pass the shared conformance suite.
type StoryData interface {
	UserRepository
	SessionRepository
	ParticipantRepository
	AdminRepository
}

// Ensure Repository implements all interfaces
var _ StoryData = (*Repository)(nil)
