package services

import (
	"context"

	"github.com/scottschroeder/storyestimate/internal/models"
)

// IDGenerator produces random identifiers and secrets.
type IDGenerator interface {
	SessionID() (string, error)
	UserID() (string, error)
	Token() (string, error)
}

// Broadcaster defines the interface for pushing session changes to clients.
// A nil session means the session was deleted.
type Broadcaster interface {
	BroadcastSessionUpdate(sessionID string, session *models.PublicSession)
}

// UserServicer defines the interface for user operations
type UserServicer interface {
	CreateUser(ctx context.Context) (*models.BasicUser, error)
	Authenticate(ctx context.Context, userID, token string) (*models.AuthenticatedUser, error)
}

// SessionServicer defines the interface for session operations
type SessionServicer interface {
	Create(ctx context.Context, requester *models.AuthenticatedUser) (string, error)
	Lookup(ctx context.Context, sessionID string) (*models.PublicSession, error)
	Join(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser, nickname string) error
	Vote(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser, amount uint32) error
	Update(ctx context.Context, sessionID string, target models.SessionState, requester *models.AuthenticatedUser) error
	Kick(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser) error
	GrantAdmin(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser) error
	RevokeAdmin(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser) error
	Delete(ctx context.Context, sessionID string, requester *models.AuthenticatedUser) error
	JoinQRCode(ctx context.Context, sessionID string) ([]byte, error)
	SetBroadcaster(b Broadcaster)
}

// Ensure concrete types implement interfaces
var (
	_ UserServicer    = (*UserService)(nil)
	_ SessionServicer = (*SessionService)(nil)
)
