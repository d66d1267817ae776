package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/repository"
)

// SessionService handles estimation session use cases. It checks the
// requester's rights, then composes StoryData operations.
type SessionService struct {
	log         logger.Logger
	repo        repository.StoryData
	gen         IDGenerator
	baseURL     string
	broadcaster Broadcaster
}

// NewSessionService creates a new SessionService
func NewSessionService(log logger.Logger, repo repository.StoryData, gen IDGenerator) *SessionService {
	return &SessionService{
		log:  log.With("component", "sessions"),
		repo: repo,
		gen:  gen,
	}
}

// SetBroadcaster sets the broadcaster for sending updates to clients
func (s *SessionService) SetBroadcaster(b Broadcaster) {
	s.broadcaster = b
}

// SetBaseURL sets the public URL used in join links.
func (s *SessionService) SetBaseURL(baseURL string) {
	s.baseURL = strings.TrimSuffix(baseURL, "/")
}

// Create allocates a new session and makes the requester its first admin.
func (s *SessionService) Create(ctx context.Context, requester *models.AuthenticatedUser) (string, error) {
	var sessionID string
	for attempt := 1; ; attempt++ {
		if attempt > maxIDAttempts {
			return "", idExhausted("session")
		}

		id, err := s.gen.SessionID()
		if err != nil {
			return "", errors.Internal(err)
		}
		err = s.repo.AddSession(ctx, models.NewSession(id))
		if err == nil {
			sessionID = id
			break
		}
		if !errors.Is(err, errors.ErrUser) {
			return "", err
		}
		s.log.Warn("session id collision, retrying", "session_id", id, "attempt", attempt)
	}

	if err := s.repo.AddAdmin(ctx, sessionID, requester.UserID); err != nil {
		return "", err
	}

	s.log.Info("session created", "session_id", sessionID, "admin", requester.UserID)
	return sessionID, nil
}

// Lookup returns the public view of a session, or nil if it does not exist.
func (s *SessionService) Lookup(ctx context.Context, sessionID string) (*models.PublicSession, error) {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil || session == nil {
		return nil, err
	}
	participants, err := s.repo.GetParticipants(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	admins, err := s.repo.GetAdmins(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	public := models.NewPublicSession(*session, participants, admins)
	return &public, nil
}

// Join adds the requester to a session, or renames them if they already joined.
func (s *SessionService) Join(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser, nickname string) error {
	if requester.UserID != userID {
		return ErrUnauthorized
	}
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return ErrEmptyNickname
	}
	if err := s.requireSession(ctx, sessionID, "can not participate in non-existent session %s"); err != nil {
		return err
	}

	err := s.repo.UpdateParticipant(ctx, sessionID, userID, func(p *models.Participant) error {
		p.Nickname = nickname
		return nil
	})
	if errors.Is(err, errors.ErrNotFound) {
		err = s.repo.AddParticipant(ctx, models.NewParticipant(sessionID, userID, nickname))
	}
	if err != nil {
		return err
	}

	s.notify(ctx, sessionID)
	return nil
}

// Vote places a hidden vote for the requester.
func (s *SessionService) Vote(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser, amount uint32) error {
	if requester.UserID != userID {
		return ErrUnauthorized
	}
	err := s.repo.UpdateParticipant(ctx, sessionID, userID, func(p *models.Participant) error {
		p.Vote = p.Vote.Vote(amount)
		return nil
	})
	if err != nil {
		return err
	}

	s.notify(ctx, sessionID)
	return nil
}

// Update moves the session toward target. Dirty is never a valid target.
func (s *SessionService) Update(ctx context.Context, sessionID string, target models.SessionState, requester *models.AuthenticatedUser) error {
	if err := s.requireAdmin(ctx, sessionID, requester); err != nil {
		return err
	}

	transition, ok := models.TransitionTo(target)
	if !ok {
		if target == models.StateDirty {
			return ErrDirtyTarget
		}
		return errors.Userf("unknown session state %q", target)
	}
	if err := s.repo.UpdateSession(ctx, sessionID, transition.Apply); err != nil {
		return err
	}

	s.log.Debug("session updated", "session_id", sessionID, "transition", transition.String())
	s.notify(ctx, sessionID)
	return nil
}

// Kick removes a participant. Users may always remove themselves.
func (s *SessionService) Kick(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser) error {
	if requester.UserID != userID {
		if err := s.requireAdmin(ctx, sessionID, requester); err != nil {
			return err
		}
	}
	if err := s.repo.DelParticipant(ctx, sessionID, userID); err != nil {
		return err
	}

	s.notify(ctx, sessionID)
	return nil
}

func (s *SessionService) GrantAdmin(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser) error {
	if err := s.requireSession(ctx, sessionID, "can not make an admin for non-existent session %s"); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, sessionID, requester); err != nil {
		return err
	}
	if err := s.repo.AddAdmin(ctx, sessionID, userID); err != nil {
		return err
	}

	s.notify(ctx, sessionID)
	return nil
}

func (s *SessionService) RevokeAdmin(ctx context.Context, sessionID, userID string, requester *models.AuthenticatedUser) error {
	if err := s.requireSession(ctx, sessionID, "can not revoke an admin of non-existent session %s"); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, sessionID, requester); err != nil {
		return err
	}
	if err := s.repo.DelAdmin(ctx, sessionID, userID); err != nil {
		return err
	}

	s.notify(ctx, sessionID)
	return nil
}

// Delete removes the session with its participants and admins.
func (s *SessionService) Delete(ctx context.Context, sessionID string, requester *models.AuthenticatedUser) error {
	if err := s.requireSession(ctx, sessionID, "can not delete non-existent session %s"); err != nil {
		return err
	}
	if err := s.requireAdmin(ctx, sessionID, requester); err != nil {
		return err
	}
	if err := s.repo.DelSession(ctx, sessionID); err != nil {
		return err
	}

	s.log.Info("session deleted", "session_id", sessionID, "by", requester.UserID)
	if s.broadcaster != nil {
		s.broadcaster.BroadcastSessionUpdate(sessionID, nil)
	}
	return nil
}

// JoinQRCode renders a PNG QR code linking to the session.
func (s *SessionService) JoinQRCode(ctx context.Context, sessionID string) ([]byte, error) {
	if s.baseURL == "" {
		return nil, ErrBaseURLNotConfigured
	}
	if err := s.requireSession(ctx, sessionID, "session %s not found"); err != nil {
		return nil, err
	}

	joinURL := fmt.Sprintf("%s/session/%s", s.baseURL, sessionID)
	png, err := qrcode.Encode(joinURL, qrcode.Medium, 256)
	if err != nil {
		return nil, errors.Internal(err)
	}
	return png, nil
}

func (s *SessionService) requireSession(ctx context.Context, sessionID, notFoundFormat string) error {
	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return errors.NotFoundf(notFoundFormat, sessionID)
	}
	return nil
}

func (s *SessionService) requireAdmin(ctx context.Context, sessionID string, requester *models.AuthenticatedUser) error {
	isAdmin, err := s.repo.IsAdmin(ctx, sessionID, requester.UserID)
	if err != nil {
		return err
	}
	if !isAdmin {
		return notAdmin(requester.UserID, sessionID)
	}
	return nil
}

// notify pushes the current public session to subscribers. Failures are logged
// and never fail the operation that triggered them.
func (s *SessionService) notify(ctx context.Context, sessionID string) {
	if s.broadcaster == nil {
		return
	}
	public, err := s.Lookup(ctx, sessionID)
	if err != nil {
		s.log.Warn("failed to load session for broadcast", "session_id", sessionID, "error", err)
		return
	}
	if public == nil {
		return
	}
	s.broadcaster.BroadcastSessionUpdate(sessionID, public)
}
