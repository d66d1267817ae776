package handlers_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	apperrors "github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/handlers"
	"github.com/scottschroeder/storyestimate/internal/limiter"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/randx"
	"github.com/scottschroeder/storyestimate/internal/repository/mock"
	"github.com/scottschroeder/storyestimate/internal/services"
	"github.com/scottschroeder/storyestimate/internal/testutil"
	hub "github.com/scottschroeder/storyestimate/internal/websocket"
)

type testServer struct {
	router   http.Handler
	sessions *services.SessionService
	hub      *hub.Hub
}

func setupServer(t *testing.T, opts handlers.Options) *testServer {
	t.Helper()
	log := logger.NewNop()
	store := testutil.NewMemoryStore(t)
	gen := randx.New()

	users := services.NewUserService(log, store, gen)
	sessions := services.NewSessionService(log, store, gen)
	sessions.SetBaseURL("https://estimate.example.com")

	h := hub.New(log, sessions, nil)
	h.Start()
	t.Cleanup(h.Stop)
	sessions.SetBroadcaster(h)

	return &testServer{
		router:   handlers.New(users, sessions, h, log, opts).Router(),
		sessions: sessions,
		hub:      h,
	}
}

func (s *testServer) do(t *testing.T, method, path string, user *models.BasicUser, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if user != nil {
		creds := base64.StdEncoding.EncodeToString([]byte(user.UserID + ":" + user.Token))
		req.Header.Set("Authorization", "Basic "+creds)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) createUser(t *testing.T) *models.BasicUser {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/user", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create user: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var user models.BasicUser
	if err := json.NewDecoder(w.Body).Decode(&user); err != nil {
		t.Fatalf("failed to decode user: %v", err)
	}
	return &user
}

func (s *testServer) createSession(t *testing.T, admin *models.BasicUser) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/session", admin, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("create session: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var public models.PublicSession
	if err := json.NewDecoder(w.Body).Decode(&public); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	return public.SessionID
}

func (s *testServer) lookup(t *testing.T, sessionID string) models.PublicSession {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/session/"+sessionID, nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var public models.PublicSession
	if err := json.NewDecoder(w.Body).Decode(&public); err != nil {
		t.Fatalf("failed to decode session: %v", err)
	}
	return public
}

func expectError(t *testing.T, w *httptest.ResponseRecorder, status int) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("expected status %d, got %d: %s", status, w.Code, w.Body.String())
	}
	var body handlers.APIError
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	if body.Status != status {
		t.Errorf("expected status %d in body, got %d", status, body.Status)
	}
	if body.Message == "" {
		t.Error("expected an error message")
	}
}

func TestIndexAndHealth(t *testing.T) {
	s := setupServer(t, handlers.Options{})

	w := s.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK || w.Body.String() != handlers.WelcomeText {
		t.Errorf("unexpected index response %d %q", w.Code, w.Body.String())
	}

	w = s.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected healthy, got %d", w.Code)
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth_BackendDown(t *testing.T) {
	s := setupServer(t, handlers.Options{Health: failingPinger{}})
	w := s.do(t, http.MethodGet, "/health", nil, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", w.Code)
	}
}

func TestUserEndpoints(t *testing.T) {
	s := setupServer(t, handlers.Options{})

	w := s.do(t, http.MethodPost, "/api/user", nil, nil)
	var raw map[string]string
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if raw["user_id"] == "" || raw["user_token"] == "" {
		t.Fatalf("expected user_id and user_token, got %v", raw)
	}
	user := &models.BasicUser{UserID: raw["user_id"], Token: raw["user_token"]}

	if w := s.do(t, http.MethodGet, "/api/user", user, nil); w.Code != http.StatusOK {
		t.Errorf("check user: expected 200, got %d", w.Code)
	}
	expectError(t, s.do(t, http.MethodGet, "/api/user", nil, nil), http.StatusUnauthorized)

	fake := &models.BasicUser{UserID: user.UserID, Token: "wrong"}
	expectError(t, s.do(t, http.MethodGet, "/api/user", fake, nil), http.StatusUnauthorized)
}

func TestTokenHeader(t *testing.T) {
	s := setupServer(t, handlers.Options{})
	user := s.createUser(t)

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set("TOK", user.UserID+":"+user.Token)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected TOK header to authenticate, got %d", w.Code)
	}
}

func TestSessionFlow(t *testing.T) {
	s := setupServer(t, handlers.Options{})
	admin := s.createUser(t)
	alice := s.createUser(t)
	bob := s.createUser(t)

	sessionID := s.createSession(t, admin)
	base := "/api/session/" + sessionID

	for _, u := range []struct {
		user *models.BasicUser
		name string
		vote uint32
	}{{alice, "alice", 3}, {bob, "bob", 5}} {
		if w := s.do(t, http.MethodPut, base+"/user/"+u.user.UserID, u.user, map[string]string{"nickname": u.name}); w.Code != http.StatusOK {
			t.Fatalf("join %s: expected 200, got %d: %s", u.name, w.Code, w.Body.String())
		}
		if w := s.do(t, http.MethodPost, base+"/user/"+u.user.UserID+"/vote", u.user, map[string]uint32{"vote": u.vote}); w.Code != http.StatusOK {
			t.Fatalf("vote %s: expected 200, got %d: %s", u.name, w.Code, w.Body.String())
		}
	}

	public := s.lookup(t, sessionID)
	if public.State != models.StateVoting || len(public.Users) != 2 {
		t.Fatalf("expected 2 users voting, got %s with %d users", public.State, len(public.Users))
	}

	if w := s.do(t, http.MethodPatch, base, admin, map[string]string{"state": "Visible"}); w.Code != http.StatusOK {
		t.Fatalf("reveal: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	public = s.lookup(t, sessionID)
	if public.State != models.StateVisible {
		t.Errorf("expected Visible, got %s", public.State)
	}
	if public.Average == nil || *public.Average != 4.0 {
		t.Errorf("expected average 4.0, got %v", public.Average)
	}

	if w := s.do(t, http.MethodDelete, base+"/user/"+bob.UserID, admin, nil); w.Code != http.StatusOK {
		t.Fatalf("kick: expected 200, got %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, base, admin, nil); w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	expectError(t, s.do(t, http.MethodGet, base, nil, nil), http.StatusNotFound)
}

func TestSessionErrors(t *testing.T) {
	s := setupServer(t, handlers.Options{})
	admin := s.createUser(t)
	member := s.createUser(t)
	sessionID := s.createSession(t, admin)
	base := "/api/session/" + sessionID

	tests := []struct {
		name   string
		method string
		path   string
		user   *models.BasicUser
		body   interface{}
		status int
	}{
		{"create session without auth", http.MethodPost, "/api/session", nil, nil, http.StatusUnauthorized},
		{"lookup missing", http.MethodGet, "/api/session/zzzzz", nil, nil, http.StatusNotFound},
		{"update by non-admin", http.MethodPatch, base, member, map[string]string{"state": "Visible"}, http.StatusForbidden},
		{"update to Dirty", http.MethodPatch, base, admin, map[string]string{"state": "Dirty"}, http.StatusBadRequest},
		{"update with unknown state", http.MethodPatch, base, admin, map[string]string{"state": "Done"}, http.StatusBadRequest},
		{"update without state", http.MethodPatch, base, admin, map[string]string{}, http.StatusBadRequest},
		{"update without body", http.MethodPatch, base, admin, nil, http.StatusBadRequest},
		{"join for another user", http.MethodPut, base + "/user/" + admin.UserID, member, map[string]string{"nickname": "x"}, http.StatusUnauthorized},
		{"join without nickname", http.MethodPut, base + "/user/" + member.UserID, member, map[string]string{}, http.StatusBadRequest},
		{"join missing session", http.MethodPut, "/api/session/zzzzz/user/" + member.UserID, member, map[string]string{"nickname": "x"}, http.StatusNotFound},
		{"vote without joining", http.MethodPost, base + "/user/" + member.UserID + "/vote", member, map[string]uint32{"vote": 3}, http.StatusNotFound},
		{"vote without amount", http.MethodPost, base + "/user/" + member.UserID + "/vote", member, map[string]string{}, http.StatusBadRequest},
		{"grant by non-admin", http.MethodPost, base + "/admin/" + member.UserID, member, nil, http.StatusForbidden},
		{"revoke non-admin", http.MethodDelete, base + "/admin/" + member.UserID, admin, nil, http.StatusNotFound},
		{"delete by non-admin", http.MethodDelete, base, member, nil, http.StatusForbidden},
		{"delete missing", http.MethodDelete, "/api/session/zzzzz", admin, nil, http.StatusNotFound},
		{"unknown api route", http.MethodGet, "/api/nothing", nil, nil, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expectError(t, s.do(t, tt.method, tt.path, tt.user, tt.body), tt.status)
		})
	}
}

func TestGrantAndRevokeAdmin(t *testing.T) {
	s := setupServer(t, handlers.Options{})
	admin := s.createUser(t)
	deputy := s.createUser(t)
	sessionID := s.createSession(t, admin)
	base := "/api/session/" + sessionID

	if w := s.do(t, http.MethodPost, base+"/admin/"+deputy.UserID, admin, nil); w.Code != http.StatusOK {
		t.Fatalf("grant: expected 200, got %d", w.Code)
	}
	if got := s.lookup(t, sessionID).Admins; len(got) != 2 {
		t.Errorf("expected 2 admins, got %v", got)
	}
	if w := s.do(t, http.MethodDelete, base+"/admin/"+admin.UserID, deputy, nil); w.Code != http.StatusOK {
		t.Fatalf("revoke: expected 200, got %d", w.Code)
	}
	if got := s.lookup(t, sessionID).Admins; len(got) != 1 || got[0] != deputy.UserID {
		t.Errorf("expected only deputy as admin, got %v", got)
	}
}

func TestSessionQR(t *testing.T) {
	s := setupServer(t, handlers.Options{})
	admin := s.createUser(t)
	sessionID := s.createSession(t, admin)

	w := s.do(t, http.MethodGet, "/api/session/"+sessionID+"/qr", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %s", ct)
	}

	expectError(t, s.do(t, http.MethodGet, "/api/session/zzzzz/qr", nil, nil), http.StatusNotFound)
}

func TestCreateLimiter(t *testing.T) {
	calls := 0
	limit := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			if calls > 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	s := setupServer(t, handlers.Options{CreateLimiter: limit})

	s.createUser(t)
	if w := s.do(t, http.MethodPost, "/api/user", nil, nil); w.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", w.Code)
	}
	if w := s.do(t, http.MethodGet, "/api/session/zzzzz", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("lookups must not be limited, got %d", w.Code)
	}
}

func TestCreateLimiter_ForwardedHeaders(t *testing.T) {
	createUser := func(router http.Handler, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/user", nil)
		req.Header.Set("X-Forwarded-For", forwardedFor)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("ignored by default", func(t *testing.T) {
		rl := limiter.New(0.001, 1, logger.NewNop())
		s := setupServer(t, handlers.Options{CreateLimiter: rl.Middleware})

		if code := createUser(s.router, "203.0.113.1"); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if code := createUser(s.router, "203.0.113.2"); code != http.StatusTooManyRequests {
			t.Errorf("spoofed X-Forwarded-For must not get a new bucket, got %d", code)
		}
	})

	t.Run("trusted proxy", func(t *testing.T) {
		rl := limiter.New(0.001, 1, logger.NewNop())
		s := setupServer(t, handlers.Options{CreateLimiter: rl.Middleware, TrustProxy: true})

		if code := createUser(s.router, "203.0.113.1"); code != http.StatusOK {
			t.Fatalf("expected 200, got %d", code)
		}
		if code := createUser(s.router, "203.0.113.2"); code != http.StatusOK {
			t.Errorf("expected a separate bucket per forwarded client, got %d", code)
		}
		if code := createUser(s.router, "203.0.113.1"); code != http.StatusTooManyRequests {
			t.Errorf("expected 429 for a repeated client, got %d", code)
		}
	})
}

func TestMalformedSessionIDIsNotFound(t *testing.T) {
	log := logger.NewNop()
	store := mock.NewRepository(testutil.NewMemoryStore(t))
	store.GetSessionError = apperrors.Backend(errors.New("connection refused"), "redis get")
	gen := randx.New()
	sessions := services.NewSessionService(log, store, gen)
	sessions.SetBaseURL("https://estimate.example.com")
	router := handlers.New(services.NewUserService(log, store, gen), sessions, nil, log, handlers.Options{}).Router()

	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}

	for _, path := range []string{
		"/api/session/ABCDE",
		"/api/session/abc",
		"/api/session/abcdef/qr",
		"/api/session/abcd1/ws",
	} {
		t.Run(path, func(t *testing.T) {
			expectError(t, get(path), http.StatusNotFound)
		})
	}

	// A well-formed id still reaches the backend.
	expectError(t, get("/api/session/abcde"), http.StatusInternalServerError)
}

func TestCORSPreflight(t *testing.T) {
	s := setupServer(t, handlers.Options{AllowedOrigins: []string{"https://app.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/session/abcde", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPatch)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
		t.Errorf("expected origin to be allowed, got %q", got)
	}
}

func TestToAPIError(t *testing.T) {
	log := logger.NewNop()
	tests := []struct {
		err    error
		status int
	}{
		{apperrors.NotFound("x"), http.StatusNotFound},
		{apperrors.User("x"), http.StatusBadRequest},
		{apperrors.Forbidden("x"), http.StatusForbidden},
		{apperrors.Unauthorized("x"), http.StatusUnauthorized},
		{apperrors.DataIntegrity("x"), http.StatusInternalServerError},
		{apperrors.Backend(errors.New("x"), "redis"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
		{handlers.BadRequest("x"), http.StatusBadRequest},
	}
	for _, tt := range tests {
		if got := handlers.ToAPIError(log, tt.err); got.Status != tt.status {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.status, got.Status)
		}
	}
}

func TestSessionWebsocket(t *testing.T) {
	s := setupServer(t, handlers.Options{})
	admin := s.createUser(t)
	member := s.createUser(t)
	sessionID := s.createSession(t, admin)

	srv := httptest.NewServer(s.router)
	t.Cleanup(srv.Close)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/session/" + sessionID + "/ws"

	if _, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/session/zzzzz/ws", nil); err == nil {
		t.Error("expected dial to a missing session to fail")
	} else if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for a missing session, got %v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	var msg models.WSMessage
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("expected initial state: %v", err)
	}
	if msg.Type != hub.TypeSessionUpdate {
		t.Fatalf("expected %s, got %s", hub.TypeSessionUpdate, msg.Type)
	}

	deadline := time.Now().Add(2 * time.Second)
	for s.hub.ClientCount(sessionID) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if w := s.do(t, http.MethodPut, "/api/session/"+sessionID+"/user/"+member.UserID, member, map[string]string{"nickname": "bob"}); w.Code != http.StatusOK {
		t.Fatalf("join: expected 200, got %d", w.Code)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var update struct {
		Type    string               `json:"type"`
		Payload models.PublicSession `json:"payload"`
	}
	if err := conn.ReadJSON(&update); err != nil {
		t.Fatalf("expected update after join: %v", err)
	}
	if update.Type != hub.TypeSessionUpdate || len(update.Payload.Users) != 1 {
		t.Errorf("unexpected update: %+v", update)
	}
}
