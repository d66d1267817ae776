package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
)

// TokenHeader carries "user_id:token" for clients that can not send Basic auth.
const TokenHeader = "TOK"

// Credential errors
var (
	ErrNoCredentials        = errors.Unauthorized("no credentials provided")
	ErrAmbiguousCredentials = errors.Unauthorized("both Authorization and TOK credentials provided")
	ErrMalformedCredentials = errors.Unauthorized("credentials must be user_id:token")
	ErrInvalidCredentials   = errors.Unauthorized("invalid user id or token")
)

type contextKey struct{}

// Authenticator checks a user id and token pair.
type Authenticator interface {
	Authenticate(ctx context.Context, userID, token string) (*models.AuthenticatedUser, error)
}

// Auth authenticates API requests
type Auth struct {
	users Authenticator
	log   logger.Logger
}

// New creates a new Auth instance backed by users
func New(users Authenticator, log logger.Logger) *Auth {
	return &Auth{
		users: users,
		log:   log.With("component", "auth"),
	}
}

// Credentials extracts the user id and token from either HTTP Basic auth or
// the TOK header. Sending both is rejected.
func Credentials(r *http.Request) (userID, token string, err error) {
	basic := r.Header.Get("Authorization")
	tok := r.Header.Get(TokenHeader)

	switch {
	case basic != "" && tok != "":
		return "", "", ErrAmbiguousCredentials
	case basic != "":
		const prefix = "Basic "
		if len(basic) < len(prefix) || !strings.EqualFold(basic[:len(prefix)], prefix) {
			return "", "", ErrMalformedCredentials
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(basic[len(prefix):]))
		if err != nil {
			return "", "", ErrMalformedCredentials
		}
		return splitPair(string(decoded))
	case tok != "":
		return splitPair(strings.TrimSpace(tok))
	}
	return "", "", ErrNoCredentials
}

func splitPair(s string) (string, string, error) {
	userID, token, ok := strings.Cut(s, ":")
	if !ok || userID == "" || token == "" {
		return "", "", ErrMalformedCredentials
	}
	return userID, token, nil
}

// Authenticate resolves the request's credentials to a capability.
func (a *Auth) Authenticate(r *http.Request) (*models.AuthenticatedUser, error) {
	userID, token, err := Credentials(r)
	if err != nil {
		return nil, err
	}
	user, err := a.users.Authenticate(r.Context(), userID, token)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// RequireUser middleware for API endpoints (returns 401)
func (a *Auth) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := a.Authenticate(r)
		if err != nil {
			if !errors.Is(err, errors.ErrUnauthorized) {
				a.log.Error("authentication failed", "error", err)
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// WithUser stores an authenticated user in ctx.
func WithUser(ctx context.Context, user *models.AuthenticatedUser) context.Context {
	return context.WithValue(ctx, contextKey{}, user)
}

// UserFromContext returns the user stored by RequireUser, or nil.
func UserFromContext(ctx context.Context) *models.AuthenticatedUser {
	user, _ := ctx.Value(contextKey{}).(*models.AuthenticatedUser)
	return user
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":  msg,
		"status": status,
	})
}
