package repository

import (
	"context"
	stderrors "errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/models"
)

func newMockRepo(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Repository{db: db}, mock
}

func expectKind(t *testing.T, err error, kind errors.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", kind)
	}
	if got := errors.KindOf(err); got != kind {
		t.Errorf("expected %v error, got %v (%v)", kind, got, err)
	}
}

func TestGetUser_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT user_id, token FROM users").WillReturnError(stderrors.New("disk I/O error"))

	user, err := repo.GetUser(context.Background(), "u1")
	if user != nil {
		t.Errorf("expected nil user, got %v", user)
	}
	expectKind(t, err, errors.ErrBackend)
}

func TestAddUser_IgnoredInsertIsConflict(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT OR IGNORE INTO users").
		WithArgs("u1", "tok").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.AddUser(context.Background(), models.BasicUser{UserID: "u1", Token: "tok"})
	expectKind(t, err, errors.ErrUser)
}

func TestAddSession_RowsAffectedError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("INSERT OR IGNORE INTO sessions").
		WillReturnResult(sqlmock.NewErrorResult(stderrors.New("driver lost count")))

	err := repo.AddSession(context.Background(), models.NewSession("abcde"))
	expectKind(t, err, errors.ErrBackend)
}

func TestDelSession_NotFoundRollsBack(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WithArgs("abcde").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.DelSession(context.Background(), "abcde")
	expectKind(t, err, errors.ErrNotFound)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestDelSession_CleanupFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sessions").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM participants").WillReturnError(stderrors.New("locked"))
	mock.ExpectRollback()

	err := repo.DelSession(context.Background(), "abcde")
	expectKind(t, err, errors.ErrBackend)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateSession_CommitFailure(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT session_id, average FROM sessions").
		WithArgs("abcde").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "average"}).AddRow("abcde", nil))
	mock.ExpectQuery("SELECT (.+) FROM participants").
		WithArgs("abcde").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "nickname", "vote"}).
			AddRow("abcde", "alice", "Alice", `{"state":"Hidden","amount":4}`))
	mock.ExpectExec("UPDATE participants SET nickname").
		WithArgs("Alice", `{"state":"Visible","amount":4}`, "abcde", "alice").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE sessions SET average").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit().WillReturnError(stderrors.New("disk full"))

	err := repo.UpdateSession(context.Background(), "abcde", models.TransitionReveal.Apply)
	expectKind(t, err, errors.ErrBackend)

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpdateSession_CorruptVote(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT session_id, average FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "average"}).AddRow("abcde", 3.5))
	mock.ExpectQuery("SELECT (.+) FROM participants").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "nickname", "vote"}).
			AddRow("abcde", "alice", "Alice", `not json`))
	mock.ExpectRollback()

	called := false
	err := repo.UpdateSession(context.Background(), "abcde", func(*models.Session, []models.Participant) error {
		called = true
		return nil
	})
	expectKind(t, err, errors.ErrDataIntegrity)
	if called {
		t.Error("plan should not run when participants cannot be loaded")
	}
}

func TestUpdateSession_MissingSession(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT session_id, average FROM sessions").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "average"}))
	mock.ExpectRollback()

	err := repo.UpdateSession(context.Background(), "abcde", models.TransitionReset.Apply)
	expectKind(t, err, errors.ErrNotFound)
}

func TestUpdateParticipant_MissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM participants").
		WithArgs("abcde", "bob").
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "nickname", "vote"}))
	mock.ExpectRollback()

	err := repo.UpdateParticipant(context.Background(), "abcde", "bob", func(*models.Participant) error { return nil })
	expectKind(t, err, errors.ErrNotFound)
}

func TestGetAdmins_ScanError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery("SELECT user_id FROM admins").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow(nil))

	_, err := repo.GetAdmins(context.Background(), "abcde")
	expectKind(t, err, errors.ErrBackend)
}

func TestIsAdmin_QueryError(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM admins")).
		WillReturnError(stderrors.New("closed"))

	_, err := repo.IsAdmin(context.Background(), "abcde", "alice")
	expectKind(t, err, errors.ErrBackend)
}

func TestDelAdmin_NotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	mock.ExpectExec("DELETE FROM admins").
		WithArgs("abcde", "alice").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.DelAdmin(context.Background(), "abcde", "alice")
	expectKind(t, err, errors.ErrNotFound)
}
