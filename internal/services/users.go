package services

import (
	"context"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/repository"
)

// UserService handles user registration and authentication
type UserService struct {
	log  logger.Logger
	repo repository.UserRepository
	gen  IDGenerator
}

// NewUserService creates a new UserService
func NewUserService(log logger.Logger, repo repository.UserRepository, gen IDGenerator) *UserService {
	return &UserService{
		log:  log.With("component", "users"),
		repo: repo,
		gen:  gen,
	}
}

// CreateUser registers a user with a fresh id and token. The token is only
// ever returned here.
func (s *UserService) CreateUser(ctx context.Context) (*models.BasicUser, error) {
	token, err := s.gen.Token()
	if err != nil {
		return nil, errors.Internal(err)
	}

	for attempt := 1; attempt <= maxIDAttempts; attempt++ {
		userID, err := s.gen.UserID()
		if err != nil {
			return nil, errors.Internal(err)
		}

		user := models.BasicUser{UserID: userID, Token: token}
		err = s.repo.AddUser(ctx, user)
		if err == nil {
			s.log.Info("user created", "user_id", userID)
			return &user, nil
		}
		if !errors.Is(err, errors.ErrUser) {
			return nil, err
		}
		s.log.Warn("user id collision, retrying", "user_id", userID, "attempt", attempt)
	}
	return nil, idExhausted("user")
}

// Authenticate returns a capability when the token matches the stored user,
// and nil when the user is unknown or the token is wrong.
func (s *UserService) Authenticate(ctx context.Context, userID, token string) (*models.AuthenticatedUser, error) {
	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	return user.Authenticate(token), nil
}
