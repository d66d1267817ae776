package handlers

import (
	"context"
	"net/http"

	"github.com/scottschroeder/storyestimate/internal/auth"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/services"
)

// WelcomeText is served at the root path.
const WelcomeText = "Welcome to the StoryEstimates WebApp!"

// SessionSubscriber serves websocket subscriptions for one session.
type SessionSubscriber interface {
	ServeSession(w http.ResponseWriter, r *http.Request, sessionID string)
}

// Pinger reports whether the storage backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configure the router.
type Options struct {
	AllowedOrigins []string
	Development    bool
	// CreateLimiter throttles user and session creation. Nil disables it.
	CreateLimiter func(http.Handler) http.Handler
	// Health is checked by GET /health. Nil always reports ok.
	Health Pinger
	// TrustProxy takes the client address from X-Forwarded-For and X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
}

// Handlers holds all HTTP handler dependencies
type Handlers struct {
	Users    services.UserServicer
	Sessions services.SessionServicer
	Auth     *auth.Auth
	Hub      SessionSubscriber
	Log      logger.Logger
	opts     Options
}

// New creates a new Handlers instance with all dependencies
func New(
	users services.UserServicer,
	sessions services.SessionServicer,
	hub SessionSubscriber,
	log logger.Logger,
	opts Options,
) *Handlers {
	return &Handlers{
		Users:    users,
		Sessions: sessions,
		Auth:     auth.New(users, log),
		Hub:      hub,
		Log:      log.With("component", "http"),
		opts:     opts,
	}
}
