package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/logger"
	"github.com/scottschroeder/storyestimate/internal/models"
)

type fakeUsers struct {
	tokens map[string]string
	err    error
}

func (f *fakeUsers) Authenticate(_ context.Context, userID, token string) (*models.AuthenticatedUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	if want, ok := f.tokens[userID]; ok && want == token {
		return &models.AuthenticatedUser{UserID: userID}, nil
	}
	return nil, nil
}

func basicHeader(userID, token string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(userID+":"+token))
}

func TestCredentials(t *testing.T) {
	tests := []struct {
		name      string
		basic     string
		tok       string
		wantUser  string
		wantToken string
		wantErr   error
	}{
		{"basic", basicHeader("alice", "secret"), "", "alice", "secret", nil},
		{"basic lowercase scheme", "basic " + base64.StdEncoding.EncodeToString([]byte("alice:secret")), "", "alice", "secret", nil},
		{"tok header", "", "bob:hunter2", "bob", "hunter2", nil},
		{"token containing colon", "", "bob:a:b", "bob", "a:b", nil},
		{"both", basicHeader("alice", "secret"), "bob:hunter2", "", "", ErrAmbiguousCredentials},
		{"none", "", "", "", "", ErrNoCredentials},
		{"missing token", basicHeader("alice", ""), "", "", "", ErrMalformedCredentials},
		{"missing separator", "", "bob", "", "", ErrMalformedCredentials},
		{"bad base64", "Basic !!!", "", "", "", ErrMalformedCredentials},
		{"bearer scheme", "Bearer abc", "", "", "", ErrMalformedCredentials},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
			if tt.basic != "" {
				req.Header.Set("Authorization", tt.basic)
			}
			if tt.tok != "" {
				req.Header.Set(TokenHeader, tt.tok)
			}

			userID, token, err := Credentials(req)
			if err != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if userID != tt.wantUser || token != tt.wantToken {
				t.Errorf("expected %s:%s, got %s:%s", tt.wantUser, tt.wantToken, userID, token)
			}
		})
	}
}

func TestRequireUser(t *testing.T) {
	users := &fakeUsers{tokens: map[string]string{"alice": "secret"}}
	a := New(users, logger.NewNop())

	var seen *models.AuthenticatedUser
	handler := a.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = UserFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"valid", basicHeader("alice", "secret"), http.StatusNoContent},
		{"wrong token", basicHeader("alice", "nope"), http.StatusUnauthorized},
		{"unknown user", basicHeader("mallory", "secret"), http.StatusUnauthorized},
		{"no header", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d", tt.wantStatus, w.Code)
			}
			if tt.wantStatus == http.StatusNoContent {
				if seen == nil || seen.UserID != "alice" {
					t.Errorf("expected alice in context, got %v", seen)
				}
				return
			}
			if seen != nil {
				t.Error("handler should not run for rejected requests")
			}

			var body map[string]interface{}
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if body["status"] != float64(tt.wantStatus) {
				t.Errorf("expected status %d in body, got %v", tt.wantStatus, body["status"])
			}
		})
	}
}

func TestRequireUser_BackendFailure(t *testing.T) {
	users := &fakeUsers{err: apperrors.Backend(errors.New("connection refused"), "redis get")}
	a := New(users, logger.NewNop())
	handler := a.RequireUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run")
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/user", nil)
	req.Header.Set(TokenHeader, "alice:secret")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", w.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Error != "Internal server error" {
		t.Errorf("backend details leaked to the client: %q", body.Error)
	}
}

func TestUserFromContext_Empty(t *testing.T) {
	if user := UserFromContext(context.Background()); user != nil {
		t.Errorf("expected nil user, got %v", user)
	}
}
