package mock

import (
	"context"

	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/repository"
)

// Repository wraps a real backend and allows injecting errors for testing.
// This provides a flexible way to test error paths without breaking a real store.
//
// Usage:
//
//	store := testutil.NewMemoryStore(t)
//	mockRepo := mock.NewRepository(store)
//	mockRepo.AddAdminError = errors.New("connection reset")
//	svc := services.NewSessionService(log, mockRepo, gen)
//	_, err := svc.Create(ctx, user)
//	// err will now contain the injected error
type Repository struct {
	repository.StoryData

	// ===== User Errors =====
	GetUserError error
	AddUserError error

	// ===== Session Errors =====
	GetSessionError    error
	AddSessionError    error
	DelSessionError    error
	UpdateSessionError error

	// ===== Participant Errors =====
	GetParticipantsError   error
	AddParticipantError    error
	DelParticipantError    error
	UpdateParticipantError error

	// ===== Admin Errors =====
	GetAdminsError error
	AddAdminError  error
	DelAdminError  error
	IsAdminError   error
}

var _ repository.StoryData = (*Repository)(nil)

// NewRepository creates a mock repository wrapping a real one
func NewRepository(real repository.StoryData) *Repository {
	return &Repository{
		StoryData: real,
	}
}

// ===== User Methods =====

func (m *Repository) GetUser(ctx context.Context, userID string) (*models.BasicUser, error) {
	if m.GetUserError != nil {
		return nil, m.GetUserError
	}
	return m.StoryData.GetUser(ctx, userID)
}

func (m *Repository) AddUser(ctx context.Context, user models.BasicUser) error {
	if m.AddUserError != nil {
		return m.AddUserError
	}
	return m.StoryData.AddUser(ctx, user)
}

// ===== Session Methods =====

func (m *Repository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	if m.GetSessionError != nil {
		return nil, m.GetSessionError
	}
	return m.StoryData.GetSession(ctx, sessionID)
}

func (m *Repository) AddSession(ctx context.Context, session models.Session) error {
	if m.AddSessionError != nil {
		return m.AddSessionError
	}
	return m.StoryData.AddSession(ctx, session)
}

func (m *Repository) DelSession(ctx context.Context, sessionID string) error {
	if m.DelSessionError != nil {
		return m.DelSessionError
	}
	return m.StoryData.DelSession(ctx, sessionID)
}

func (m *Repository) UpdateSession(ctx context.Context, sessionID string, plan repository.SessionPlan) error {
	if m.UpdateSessionError != nil {
		return m.UpdateSessionError
	}
	return m.StoryData.UpdateSession(ctx, sessionID, plan)
}

// ===== Participant Methods =====

func (m *Repository) GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	if m.GetParticipantsError != nil {
		return nil, m.GetParticipantsError
	}
	return m.StoryData.GetParticipants(ctx, sessionID)
}

func (m *Repository) AddParticipant(ctx context.Context, participant models.Participant) error {
	if m.AddParticipantError != nil {
		return m.AddParticipantError
	}
	return m.StoryData.AddParticipant(ctx, participant)
}

func (m *Repository) DelParticipant(ctx context.Context, sessionID, userID string) error {
	if m.DelParticipantError != nil {
		return m.DelParticipantError
	}
	return m.StoryData.DelParticipant(ctx, sessionID, userID)
}

func (m *Repository) UpdateParticipant(ctx context.Context, sessionID, userID string, plan repository.ParticipantPlan) error {
	if m.UpdateParticipantError != nil {
		return m.UpdateParticipantError
	}
	return m.StoryData.UpdateParticipant(ctx, sessionID, userID, plan)
}

// ===== Admin Methods =====

func (m *Repository) GetAdmins(ctx context.Context, sessionID string) ([]string, error) {
	if m.GetAdminsError != nil {
		return nil, m.GetAdminsError
	}
	return m.StoryData.GetAdmins(ctx, sessionID)
}

func (m *Repository) AddAdmin(ctx context.Context, sessionID, userID string) error {
	if m.AddAdminError != nil {
		return m.AddAdminError
	}
	return m.StoryData.AddAdmin(ctx, sessionID, userID)
}

func (m *Repository) DelAdmin(ctx context.Context, sessionID, userID string) error {
	if m.DelAdminError != nil {
		return m.DelAdminError
	}
	return m.StoryData.DelAdmin(ctx, sessionID, userID)
}

func (m *Repository) IsAdmin(ctx context.Context, sessionID, userID string) (bool, error) {
	if m.IsAdminError != nil {
		return false, m.IsAdminError
	}
	return m.StoryData.IsAdmin(ctx, sessionID, userID)
}
