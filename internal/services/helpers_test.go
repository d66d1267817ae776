package services_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	apperrors "github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/randx"
	"github.com/scottschroeder/storyestimate/internal/repository"
	"github.com/scottschroeder/storyestimate/internal/services"
	"github.com/scottschroeder/storyestimate/internal/testutil"
)

// fixture bundles both services over one backend.
type fixture struct {
	sessions *services.SessionService
	users    *services.UserService
	repo     repository.StoryData
}

func setupServices(t *testing.T, repo repository.StoryData) *fixture {
	t.Helper()
	log := logger.NewNop()
	gen := randx.New()
	return &fixture{
		sessions: services.NewSessionService(log, repo, gen),
		users:    services.NewUserService(log, repo, gen),
		repo:     repo,
	}
}

// eachBackend runs fn once per StoryData backend.
func eachBackend(t *testing.T, fn func(t *testing.T, f *fixture)) {
	for name, newStore := range testutil.Backends() {
		t.Run(name, func(t *testing.T) {
			fn(t, setupServices(t, newStore(t)))
		})
	}
}

func (f *fixture) newUser(t *testing.T) *models.AuthenticatedUser {
	t.Helper()
	user, err := f.users.CreateUser(context.Background())
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	auth, err := f.users.Authenticate(context.Background(), user.UserID, user.Token)
	if err != nil || auth == nil {
		t.Fatalf("Authenticate failed: %v, %v", auth, err)
	}
	return auth
}

// newSession creates a session owned by a fresh admin.
func (f *fixture) newSession(t *testing.T) (string, *models.AuthenticatedUser) {
	t.Helper()
	admin := f.newUser(t)
	sessionID, err := f.sessions.Create(context.Background(), admin)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return sessionID, admin
}

func (f *fixture) join(t *testing.T, sessionID string, user *models.AuthenticatedUser, nickname string) {
	t.Helper()
	if err := f.sessions.Join(context.Background(), sessionID, user.UserID, user, nickname); err != nil {
		t.Fatalf("Join failed: %v", err)
	}
}

func (f *fixture) lookup(t *testing.T, sessionID string) *models.PublicSession {
	t.Helper()
	public, err := f.sessions.Lookup(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	return public
}

func expectKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := apperrors.KindOf(err); got != kind {
		t.Fatalf("expected %v error, got %v (%v)", kind, got, err)
	}
}

// scriptedGen hands out session and user ids from fixed lists.
type scriptedGen struct {
	mu         sync.Mutex
	sessionIDs []string
	userIDs    []string
}

func (g *scriptedGen) SessionID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sessionIDs) == 0 {
		return "", errors.New("out of session ids")
	}
	id := g.sessionIDs[0]
	g.sessionIDs = g.sessionIDs[1:]
	return id, nil
}

func (g *scriptedGen) UserID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.userIDs) == 0 {
		return "", errors.New("out of user ids")
	}
	id := g.userIDs[0]
	g.userIDs = g.userIDs[1:]
	return id, nil
}

func (g *scriptedGen) Token() (string, error) {
	return "token", nil
}

// recordingBroadcaster remembers every update it is asked to send.
type recordingBroadcaster struct {
	mu      sync.Mutex
	updates []*models.PublicSession
	ids     []string
}

func (b *recordingBroadcaster) BroadcastSessionUpdate(sessionID string, session *models.PublicSession) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ids = append(b.ids, sessionID)
	b.updates = append(b.updates, session)
}

func (b *recordingBroadcaster) last() *models.PublicSession {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.updates) == 0 {
		return nil
	}
	return b.updates[len(b.updates)-1]
}

func (b *recordingBroadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.updates)
}
