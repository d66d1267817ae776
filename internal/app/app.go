package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	goredis "github.com/redis/go-redis/v9"

	"github.com/scottschroeder/storyestimate/internal/config"
	"github.com/scottschroeder/storyestimate/internal/handlers"
	"github.com/scottschroeder/storyestimate/internal/limiter"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/randx"
	"github.com/scottschroeder/storyestimate/internal/repository"
	"github.com/scottschroeder/storyestimate/internal/repository/memory"
	"github.com/scottschroeder/storyestimate/internal/repository/redis"
	"github.com/scottschroeder/storyestimate/internal/services"
	"github.com/scottschroeder/storyestimate/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// backend is an opened StoryData with its lifecycle hooks.
type backend struct {
	store  repository.StoryData
	health handlers.Pinger
	close  func() error
}

// App holds all application dependencies
type App struct {
	cfg      *config.Config
	log      logger.Logger
	backend  *backend
	hub      *websocket.Hub
	limiter  *limiter.IPRateLimiter
	handlers *handlers.Handlers
	baseURL  string
	cancel   context.CancelFunc
}

// New opens the configured backend and wires services, hub and handlers.
func New(cfg *config.Config, log logger.Logger) (*App, error) {
	b, err := openBackend(cfg, log)
	if err != nil {
		return nil, err
	}

	gen := randx.New()
	userService := services.NewUserService(log, b.store, gen)
	sessionService := services.NewSessionService(log, b.store, gen)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", getPreferredIP(realNetworkProvider{}), cfg.Port)
	}
	sessionService.SetBaseURL(baseURL)

	hub := websocket.New(log, sessionService, cfg.AllowedOrigins)
	hub.Start()
	sessionService.SetBroadcaster(hub)

	ctx, cancel := context.WithCancel(context.Background())
	createLimiter := limiter.New(cfg.CreateRate, cfg.CreateBurst, log)
	go createLimiter.Run(ctx)

	h := handlers.New(userService, sessionService, hub, log, handlers.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		Development:    cfg.IsDevelopment(),
		CreateLimiter:  createLimiter.Middleware,
		Health:         b.health,
		TrustProxy:     cfg.TrustProxy,
	})

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  b,
		hub:      hub,
		limiter:  createLimiter,
		handlers: h,
		baseURL:  baseURL,
		cancel:   cancel,
	}, nil
}

func openBackend(cfg *config.Config, log logger.Logger) (*backend, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return &backend{
			store: memory.New(log),
			close: func() error { return nil },
		}, nil

	case config.BackendRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		store := redis.New(client, redis.Options{
			Namespace: cfg.RedisNamespace,
			TTL:       cfg.RedisTTL,
		}, log)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.RedisAddr, err)
		}
		return &backend{store: store, health: store, close: client.Close}, nil

	case config.BackendSQLite:
		repo, err := repository.New(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database %s: %w", cfg.SQLitePath, err)
		}
		return &backend{store: repo, health: repo, close: repo.Close}, nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// BaseURL returns the public URL used in join links.
func (a *App) BaseURL() string {
	return a.baseURL
}

// Close performs graceful shutdown of app resources
func (a *App) Close() error {
	a.cancel()
	a.hub.Stop()
	return a.backend.close()
}

// Run listens on the configured port and serves until ctx is done.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return err
	}
	return a.Serve(ctx, ln)
}

// Serve handles requests on ln until ctx is done, then drains in-flight
// requests.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("server starting", "addr", ln.Addr().String(), "backend", a.cfg.Backend, "base_url", a.baseURL)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
