package repository

import (
	"context"
	"slices"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/models"
)

// Errors shared by every backend so callers see the same kinds and messages.

func SessionNotFound(sessionID string) error {
	return errors.NotFoundf("could not find session %s", sessionID)
}

func ParticipantNotFound(sessionID, userID string) error {
	return errors.NotFoundf("user %s is not a member of session %s", userID, sessionID)
}

func AdminNotFound(sessionID, userID string) error {
	return errors.NotFoundf("user %s is not an admin of session %s", userID, sessionID)
}

func UserExists(userID string) error {
	return errors.Userf("user %s already exists", userID)
}

func SessionExists(sessionID string) error {
	return errors.Userf("session %s already exists", sessionID)
}

func ParticipantExists(sessionID, userID string) error {
	return errors.Userf("user %s is already part of session %s", userID, sessionID)
}

func AdminExists(sessionID, userID string) error {
	return errors.Userf("user %s is already an admin of session %s", userID, sessionID)
}

// ApplySessionPlan runs plan against copies of the loaded state and returns the
// results only if the plan succeeded and left every participant's identity intact.
func ApplySessionPlan(session models.Session, participants []models.Participant, plan SessionPlan) (models.Session, []models.Participant, error) {
	if session.Average != nil {
		avg := *session.Average
		session.Average = &avg
	}
	working := slices.Clone(participants)

	if err := plan(&session, working); err != nil {
		return models.Session{}, nil, err
	}

	if len(working) != len(participants) {
		return models.Session{}, nil, errors.DataIntegrityf("session plan changed participant count from %d to %d", len(participants), len(working))
	}
	for i := range working {
		if working[i].UserID != participants[i].UserID || working[i].SessionID != participants[i].SessionID {
			return models.Session{}, nil, errors.DataIntegrityf("session plan changed the identity of participant %s", participants[i].UserID)
		}
	}
	if session.SessionID == "" {
		return models.Session{}, nil, errors.DataIntegrity("session plan cleared the session id")
	}
	return session, working, nil
}

// ApplyParticipantPlan is ApplySessionPlan for a single participant.
func ApplyParticipantPlan(participant models.Participant, plan ParticipantPlan) (models.Participant, error) {
	working := participant
	if err := plan(&working); err != nil {
		return models.Participant{}, err
	}
	if working.UserID != participant.UserID || working.SessionID != participant.SessionID {
		return models.Participant{}, errors.DataIntegrityf("participant plan changed the identity of participant %s", participant.UserID)
	}
	return working, nil
}

// IsAdminFromList is the default admin check: membership in GetAdmins.
func IsAdminFromList(ctx context.Context, admins AdminLister, sessionID, userID string) (bool, error) {
	list, err := admins.GetAdmins(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return slices.Contains(list, userID), nil
}

// AdminLister is the part of AdminRepository IsAdminFromList needs.
type AdminLister interface {
	GetAdmins(ctx context.Context, sessionID string) ([]string, error)
}
