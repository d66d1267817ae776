// Package storytest is the conformance suite every StoryData backend runs.
package storytest

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/models"
	"github.com/scottschroeder/storyestimate/internal/repository"
)

// Factory returns an empty backend. It is called once per subtest.
type Factory func(t *testing.T) repository.StoryData

// Run exercises the whole StoryData contract against backends built by newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, store repository.StoryData)
	}{
		{"UserRoundTrip", testUserRoundTrip},
		{"DuplicateUser", testDuplicateUser},
		{"SessionRoundTrip", testSessionRoundTrip},
		{"DuplicateSession", testDuplicateSession},
		{"DeleteSession", testDeleteSession},
		{"UpdateSession", testUpdateSession},
		{"UpdateMissingSession", testUpdateMissingSession},
		{"UpdateSessionPlanError", testUpdateSessionPlanError},
		{"UpdateSessionIdentityChange", testUpdateSessionIdentityChange},
		{"Participants", testParticipants},
		{"DuplicateParticipant", testDuplicateParticipant},
		{"DeleteParticipant", testDeleteParticipant},
		{"UpdateParticipant", testUpdateParticipant},
		{"UpdateParticipantErrors", testUpdateParticipantErrors},
		{"Admins", testAdmins},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, newStore(t))
		})
	}
}

func requireKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, errors.KindOf(err), "unexpected error: %v", err)
}

func seedSession(t *testing.T, store repository.StoryData, sessionID string, userIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.AddSession(ctx, models.NewSession(sessionID)))
	for _, uid := range userIDs {
		require.NoError(t, store.AddParticipant(ctx, models.NewParticipant(sessionID, uid, "nick-"+uid)))
	}
}

func testUserRoundTrip(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	user := models.BasicUser{UserID: "u1abcdefghijklm", Token: "tok"}

	missing, err := store.GetUser(ctx, user.UserID)
	require.NoError(t, err)
	assert.Nil(t, missing)

	require.NoError(t, store.AddUser(ctx, user))
	got, err := store.GetUser(ctx, user.UserID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, user, *got)
}

func testDuplicateUser(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	require.NoError(t, store.AddUser(ctx, models.BasicUser{UserID: "u1", Token: "first"}))

	requireKind(t, store.AddUser(ctx, models.BasicUser{UserID: "u1", Token: "second"}), errors.ErrUser)

	got, err := store.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "first", got.Token)
}

func testSessionRoundTrip(t *testing.T, store repository.StoryData) {
	ctx := context.Background()

	missing, err := store.GetSession(ctx, "abcde")
	require.NoError(t, err)
	assert.Nil(t, missing)

	avg := 2.5
	session := models.Session{SessionID: "abcde", Average: &avg}
	require.NoError(t, store.AddSession(ctx, session))

	got, err := store.GetSession(ctx, "abcde")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, session, *got)

	require.NoError(t, store.AddSession(ctx, models.NewSession("fghij")))
	got, err = store.GetSession(ctx, "fghij")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.Average)
}

func testDuplicateSession(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	require.NoError(t, store.AddSession(ctx, models.NewSession("abcde")))
	requireKind(t, store.AddSession(ctx, models.NewSession("abcde")), errors.ErrUser)
}

func testDeleteSession(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice", "bob")
	require.NoError(t, store.AddAdmin(ctx, "abcde", "alice"))

	require.NoError(t, store.DelSession(ctx, "abcde"))

	got, err := store.GetSession(ctx, "abcde")
	require.NoError(t, err)
	assert.Nil(t, got)

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	assert.Empty(t, participants)

	admins, err := store.GetAdmins(ctx, "abcde")
	require.NoError(t, err)
	assert.Empty(t, admins)

	requireKind(t, store.DelSession(ctx, "abcde"), errors.ErrNotFound)

	// The id can be reused once the old session is gone.
	seedSession(t, store, "abcde", "alice")
}

func testUpdateSession(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice", "bob", "carol")

	votes := map[string]uint32{"alice": 4, "bob": 6}
	for uid, amount := range votes {
		require.NoError(t, store.UpdateParticipant(ctx, "abcde", uid, func(p *models.Participant) error {
			p.Vote = p.Vote.Vote(amount)
			return nil
		}))
	}

	var seen int
	require.NoError(t, store.UpdateSession(ctx, "abcde", func(s *models.Session, ps []models.Participant) error {
		seen = len(ps)
		models.TakeVotes(s, ps)
		return nil
	}))
	assert.Equal(t, 3, seen)

	session, err := store.GetSession(ctx, "abcde")
	require.NoError(t, err)
	require.NotNil(t, session)
	require.NotNil(t, session.Average)
	assert.Equal(t, 5.0, *session.Average)

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	require.Len(t, participants, 3)
	for _, p := range participants {
		if amount, voted := votes[p.UserID]; voted {
			assert.Equal(t, models.VisibleVote(amount), p.Vote, p.UserID)
		} else {
			assert.Equal(t, models.EmptyVote(), p.Vote, p.UserID)
		}
	}
	assert.Equal(t, models.StateVisible, models.DeriveParticipantsState(participants))
}

func testUpdateMissingSession(t *testing.T, store repository.StoryData) {
	called := false
	err := store.UpdateSession(context.Background(), "zzzzz", func(*models.Session, []models.Participant) error {
		called = true
		return nil
	})
	requireKind(t, err, errors.ErrNotFound)
	assert.False(t, called, "plan must not run for a missing session")
}

func testUpdateSessionPlanError(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice")
	planErr := stderrors.New("plan refused")

	err := store.UpdateSession(ctx, "abcde", func(s *models.Session, ps []models.Participant) error {
		avg := 99.0
		s.Average = &avg
		ps[0].Nickname = "changed"
		return planErr
	})
	require.ErrorIs(t, err, planErr)

	session, err := store.GetSession(ctx, "abcde")
	require.NoError(t, err)
	assert.Nil(t, session.Average)

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "nick-alice", participants[0].Nickname)
}

func testUpdateSessionIdentityChange(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice")

	err := store.UpdateSession(ctx, "abcde", func(s *models.Session, ps []models.Participant) error {
		ps[0].UserID = "mallory"
		return nil
	})
	requireKind(t, err, errors.ErrDataIntegrity)

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "alice", participants[0].UserID)
}

func testParticipants(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	require.NoError(t, store.AddSession(ctx, models.NewSession("abcde")))

	empty, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	assert.Empty(t, empty)

	var want []models.Participant
	for i := range 12 {
		p := models.NewParticipant("abcde", fmt.Sprintf("user%02d", i), fmt.Sprintf("bob_%d", i))
		if i%3 == 0 {
			p.Vote = models.HiddenVote(uint32(i))
		}
		require.NoError(t, store.AddParticipant(ctx, p))
		want = append(want, p)
	}
	// A participant in another session must not leak in.
	require.NoError(t, store.AddParticipant(ctx, models.NewParticipant("fghij", "user00", "other")))

	got, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, got)

	unknown, err := store.GetParticipants(ctx, "zzzzz")
	require.NoError(t, err)
	assert.Empty(t, unknown)
}

func testDuplicateParticipant(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice")

	dup := models.NewParticipant("abcde", "alice", "imposter")
	dup.Vote = models.HiddenVote(13)
	requireKind(t, store.AddParticipant(ctx, dup), errors.ErrUser)

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, models.NewParticipant("abcde", "alice", "nick-alice"), participants[0])
}

func testDeleteParticipant(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice", "bob")

	require.NoError(t, store.DelParticipant(ctx, "abcde", "alice"))

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, "bob", participants[0].UserID)

	requireKind(t, store.DelParticipant(ctx, "abcde", "alice"), errors.ErrNotFound)
	requireKind(t, store.DelParticipant(ctx, "zzzzz", "bob"), errors.ErrNotFound)

	// Rejoining after leaving starts fresh.
	require.NoError(t, store.AddParticipant(ctx, models.NewParticipant("abcde", "alice", "again")))
}

func testUpdateParticipant(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice", "bob")

	require.NoError(t, store.UpdateParticipant(ctx, "abcde", "bob", func(p *models.Participant) error {
		p.Nickname = "bill"
		p.Vote = p.Vote.Vote(8)
		return nil
	}))

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	byID := map[string]models.Participant{}
	for _, p := range participants {
		byID[p.UserID] = p
	}
	assert.Equal(t, "bill", byID["bob"].Nickname)
	assert.Equal(t, models.HiddenVote(8), byID["bob"].Vote)
	assert.Equal(t, "nick-alice", byID["alice"].Nickname)
}

func testUpdateParticipantErrors(t *testing.T, store repository.StoryData) {
	ctx := context.Background()
	seedSession(t, store, "abcde", "alice")

	err := store.UpdateParticipant(ctx, "abcde", "nobody", func(*models.Participant) error { return nil })
	requireKind(t, err, errors.ErrNotFound)

	planErr := stderrors.New("nope")
	err = store.UpdateParticipant(ctx, "abcde", "alice", func(p *models.Participant) error {
		p.Nickname = "changed"
		return planErr
	})
	require.ErrorIs(t, err, planErr)

	err = store.UpdateParticipant(ctx, "abcde", "alice", func(p *models.Participant) error {
		p.SessionID = "fghij"
		return nil
	})
	requireKind(t, err, errors.ErrDataIntegrity)

	participants, err := store.GetParticipants(ctx, "abcde")
	require.NoError(t, err)
	require.Len(t, participants, 1)
	assert.Equal(t, models.NewParticipant("abcde", "alice", "nick-alice"), participants[0])
}

func testAdmins(t *testing.T, store repository.StoryData) {
	ctx := context.Background()

	admins, err := store.GetAdmins(ctx, "abcde")
	require.NoError(t, err)
	assert.Empty(t, admins)

	var want []string
	for i := range 8 {
		uid := fmt.Sprintf("admin%d", i)
		require.NoError(t, store.AddAdmin(ctx, "abcde", uid))
		want = append(want, uid)
	}
	admins, err = store.GetAdmins(ctx, "abcde")
	require.NoError(t, err)
	assert.ElementsMatch(t, want, admins)

	requireKind(t, store.AddAdmin(ctx, "abcde", "admin0"), errors.ErrUser)

	ok, err := store.IsAdmin(ctx, "abcde", "admin3")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.IsAdmin(ctx, "abcde", "stranger")
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = store.IsAdmin(ctx, "fghij", "admin3")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.DelAdmin(ctx, "abcde", "admin3"))
	ok, err = store.IsAdmin(ctx, "abcde", "admin3")
	require.NoError(t, err)
	assert.False(t, ok)

	requireKind(t, store.DelAdmin(ctx, "abcde", "admin3"), errors.ErrNotFound)
	requireKind(t, store.DelAdmin(ctx, "abcde", "stranger"), errors.ErrNotFound)
}
