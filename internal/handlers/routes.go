package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/scottschroeder/storyestimate/internal/logger"
)

func (h *Handlers) corsHandler() func(http.Handler) http.Handler {
	origins := h.opts.AllowedOrigins
	if h.opts.Development || len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Origin", "X-Requested-With", "TOK"},
		MaxAge:         300,
	}).Handler
}

func (h *Handlers) limitCreate(next http.Handler) http.Handler {
	if h.opts.CreateLimiter == nil {
		return next
	}
	return h.opts.CreateLimiter(next)
}

// Router returns a configured chi router with all routes
func (h *Handlers) Router() chi.Router {
	r := chi.NewRouter()

	// Middleware
	r.Use(h.corsHandler())
	r.Use(middleware.RequestID)
	if h.opts.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logger.RequestLogger(h.Log))
	r.Use(middleware.Recoverer)

	r.Get("/", h.handleIndex)
	r.Get("/health", h.handleHealth)

	r.Route("/api", func(api chi.Router) {
		api.NotFound(h.handleNotFound)

		// Public
		api.With(h.limitCreate).Post("/user", h.handleCreateUser)
		api.Get("/session/{sessionID}", h.handleLookupSession)
		api.Get("/session/{sessionID}/qr", h.handleSessionQR)
		api.Get("/session/{sessionID}/ws", h.handleSessionWS)

		// Authenticated
		api.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))
			r.Use(h.Auth.RequireUser)

			r.Get("/user", h.handleCheckUser)
			r.With(h.limitCreate).Post("/session", h.handleCreateSession)
			r.Delete("/session/{sessionID}", h.handleDeleteSession)
			r.Patch("/session/{sessionID}", h.handleUpdateSession)

			r.Put("/session/{sessionID}/user/{userID}", h.handleJoinSession)
			r.Delete("/session/{sessionID}/user/{userID}", h.handleKickUser)
			r.Post("/session/{sessionID}/user/{userID}/vote", h.handlePlaceVote)

			r.Post("/session/{sessionID}/admin/{userID}", h.handleGrantAdmin)
			r.Delete("/session/{sessionID}/admin/{userID}", h.handleRevokeAdmin)
		})
	})

	return r
}

func (h *Handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(WelcomeText))
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		if err := h.opts.Health.Ping(r.Context()); err != nil {
			h.Log.Warn("health check failed", "error", err)
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	respondOK(w, map[string]string{"status": "ok"})
}

func (h *Handlers) handleNotFound(w http.ResponseWriter, r *http.Request) {
	h.respondError(w, NotFound(r.URL.Path))
}
