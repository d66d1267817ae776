package services

import "github.com/scottschroeder/storyestimate/internal/errors"

// maxIDAttempts bounds retries when a freshly generated id is already taken.
const maxIDAttempts = 5

// Service errors
var (
	ErrDirtyTarget          = errors.User("a session can not be set to Dirty")
	ErrEmptyNickname        = errors.User("nickname must not be empty")
	ErrBaseURLNotConfigured = errors.User("base URL is not configured")
	ErrUnauthorized         = errors.Unauthorized("credentials do not match the target user")
)

func notAdmin(userID, sessionID string) error {
	return errors.Forbiddenf("user %s is not an admin of session %s", userID, sessionID)
}

func idExhausted(kind string) error {
	return errors.Internalf("failed to allocate a unique %s id after %d attempts", kind, maxIDAttempts)
}
