package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"

	_ "github.com/mattn/go-sqlite3"
	"github.com/scottschroeder/storyestimate/internal/errors"
	"github.com/scottschroeder/storyestimate/internal/models"
)

// Repository is the durable single-node StoryData backend, stored in SQLite.
// Unlike the remote backend, session updates run inside a SQL transaction.
type Repository struct {
	db *sql.DB
}

// New creates a new Repository
func New(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single connection
	db.SetMaxIdleConns(1)

	repo := &Repository{db: db}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return repo, nil
}

// Close closes the database connection
func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks if the database connection is alive
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// migrate runs database migrations
func (r *Repository) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			token TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			average REAL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS participants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			nickname TEXT NOT NULL,
			vote TEXT NOT NULL,
			UNIQUE(session_id, user_id)
		)`,
		`CREATE TABLE IF NOT EXISTS admins (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			UNIQUE(session_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_participants_session ON participants(session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_admins_session ON admins(session_id)`,
	}

	for _, m := range migrations {
		if _, err := r.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) GetUser(ctx context.Context, userID string) (*models.BasicUser, error) {
	var user models.BasicUser
	err := r.db.QueryRowContext(ctx, `SELECT user_id, token FROM users WHERE user_id = ?`, userID).
		Scan(&user.UserID, &user.Token)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Backend(err, "get user")
	}
	return &user, nil
}

func (r *Repository) AddUser(ctx context.Context, user models.BasicUser) error {
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO users (user_id, token) VALUES (?, ?)`, user.UserID, user.Token)
	if err != nil {
		return errors.Backend(err, "add user")
	}
	return insertedOrConflict(res, UserExists(user.UserID))
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := getSession(ctx, r.db, sessionID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Backend(err, "get session")
	}
	return session, nil
}

func getSession(ctx context.Context, q queryer, sessionID string) (*models.Session, error) {
	var average sql.NullFloat64
	session := models.NewSession(sessionID)
	err := q.QueryRowContext(ctx, `SELECT session_id, average FROM sessions WHERE session_id = ?`, sessionID).
		Scan(&session.SessionID, &average)
	if err != nil {
		return nil, err
	}
	if average.Valid {
		avg := average.Float64
		session.Average = &avg
	}
	return &session, nil
}

func (r *Repository) AddSession(ctx context.Context, session models.Session) error {
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO sessions (session_id, average) VALUES (?, ?)`,
		session.SessionID, nullableAverage(session.Average))
	if err != nil {
		return errors.Backend(err, "add session")
	}
	return insertedOrConflict(res, SessionExists(session.SessionID))
}

// DelSession removes the session along with its participants and admins.
func (r *Repository) DelSession(ctx context.Context, sessionID string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Backend(err, "begin delete session")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?`, sessionID)
	if err != nil {
		return errors.Backend(err, "delete session")
	}
	if n, err := res.RowsAffected(); err != nil {
		return errors.Backend(err, "delete session")
	} else if n == 0 {
		return SessionNotFound(sessionID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM participants WHERE session_id = ?`, sessionID); err != nil {
		return errors.Backend(err, "delete session participants")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM admins WHERE session_id = ?`, sessionID); err != nil {
		return errors.Backend(err, "delete session admins")
	}

	if err := tx.Commit(); err != nil {
		return errors.Backend(err, "commit delete session")
	}
	return nil
}

// UpdateSession loads the session and its participants, applies plan and
// writes everything back in one transaction.
func (r *Repository) UpdateSession(ctx context.Context, sessionID string, plan SessionPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Backend(err, "begin update session")
	}
	defer tx.Rollback()

	session, err := getSession(ctx, tx, sessionID)
	if err == sql.ErrNoRows {
		return SessionNotFound(sessionID)
	}
	if err != nil {
		return errors.Backend(err, "get session")
	}

	participants, err := getParticipants(ctx, tx, sessionID)
	if err != nil {
		return err
	}

	updated, updatedParticipants, err := ApplySessionPlan(*session, participants, plan)
	if err != nil {
		return err
	}

	for _, p := range updatedParticipants {
		if err := updateParticipant(ctx, tx, p); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET average = ? WHERE session_id = ?`,
		nullableAverage(updated.Average), sessionID); err != nil {
		return errors.Backend(err, "update session")
	}

	if err := tx.Commit(); err != nil {
		return errors.Backend(err, "commit update session")
	}
	return nil
}

// GetParticipants returns participants in join order.
func (r *Repository) GetParticipants(ctx context.Context, sessionID string) ([]models.Participant, error) {
	return getParticipants(ctx, r.db, sessionID)
}

func getParticipants(ctx context.Context, q queryer, sessionID string) ([]models.Participant, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT session_id, user_id, nickname, vote
		FROM participants
		WHERE session_id = ?
		ORDER BY id
	`, sessionID)
	if err != nil {
		return nil, errors.Backend(err, "get participants")
	}
	defer rows.Close()

	participants := []models.Participant{}
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, err
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(err, "get participants")
	}
	return participants, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row scanner) (models.Participant, error) {
	var p models.Participant
	var vote string
	if err := row.Scan(&p.SessionID, &p.UserID, &p.Nickname, &vote); err != nil {
		return models.Participant{}, errors.Backend(err, "scan participant")
	}
	if err := json.Unmarshal([]byte(vote), &p.Vote); err != nil {
		return models.Participant{}, errors.Wrap(err, errors.ErrDataIntegrity, "corrupt vote for participant "+p.UserID)
	}
	return p, nil
}

func (r *Repository) AddParticipant(ctx context.Context, participant models.Participant) error {
	vote, err := json.Marshal(participant.Vote)
	if err != nil {
		return errors.Backend(err, "encode vote")
	}
	res, err := r.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO participants (session_id, user_id, nickname, vote)
		VALUES (?, ?, ?, ?)
	`, participant.SessionID, participant.UserID, participant.Nickname, string(vote))
	if err != nil {
		return errors.Backend(err, "add participant")
	}
	return insertedOrConflict(res, ParticipantExists(participant.SessionID, participant.UserID))
}

func (r *Repository) DelParticipant(ctx context.Context, sessionID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM participants WHERE session_id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return errors.Backend(err, "delete participant")
	}
	return affectedOrNotFound(res, ParticipantNotFound(sessionID, userID))
}

func (r *Repository) UpdateParticipant(ctx context.Context, sessionID, userID string, plan ParticipantPlan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Backend(err, "begin update participant")
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `
		SELECT session_id, user_id, nickname, vote
		FROM participants
		WHERE session_id = ? AND user_id = ?
	`, sessionID, userID)
	participant, err := scanParticipant(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return ParticipantNotFound(sessionID, userID)
	}
	if err != nil {
		return err
	}

	updated, err := ApplyParticipantPlan(participant, plan)
	if err != nil {
		return err
	}
	if err := updateParticipant(ctx, tx, updated); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.Backend(err, "commit update participant")
	}
	return nil
}

func updateParticipant(ctx context.Context, q queryer, p models.Participant) error {
	vote, err := json.Marshal(p.Vote)
	if err != nil {
		return errors.Backend(err, "encode vote")
	}
	if _, err := q.ExecContext(ctx, `
		UPDATE participants SET nickname = ?, vote = ?
		WHERE session_id = ? AND user_id = ?
	`, p.Nickname, string(vote), p.SessionID, p.UserID); err != nil {
		return errors.Backend(err, "update participant")
	}
	return nil
}

// GetAdmins returns admins in the order they were granted.
func (r *Repository) GetAdmins(ctx context.Context, sessionID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM admins WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, errors.Backend(err, "get admins")
	}
	defer rows.Close()

	admins := []string{}
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, errors.Backend(err, "scan admin")
		}
		admins = append(admins, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Backend(err, "get admins")
	}
	return admins, nil
}

func (r *Repository) AddAdmin(ctx context.Context, sessionID, userID string) error {
	res, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO admins (session_id, user_id) VALUES (?, ?)`, sessionID, userID)
	if err != nil {
		return errors.Backend(err, "add admin")
	}
	return insertedOrConflict(res, AdminExists(sessionID, userID))
}

func (r *Repository) DelAdmin(ctx context.Context, sessionID, userID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM admins WHERE session_id = ? AND user_id = ?`, sessionID, userID)
	if err != nil {
		return errors.Backend(err, "delete admin")
	}
	return affectedOrNotFound(res, AdminNotFound(sessionID, userID))
}

func (r *Repository) IsAdmin(ctx context.Context, sessionID, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM admins WHERE session_id = ? AND user_id = ?)`, sessionID, userID).
		Scan(&exists)
	if err != nil {
		return false, errors.Backend(err, "check admin")
	}
	return exists, nil
}

func nullableAverage(avg *float64) sql.NullFloat64 {
	if avg == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *avg, Valid: true}
}

// insertedOrConflict turns an ignored INSERT into the given conflict.
func insertedOrConflict(res sql.Result, conflict error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Backend(err, "rows affected")
	}
	if n == 0 {
		return conflict
	}
	return nil
}

func affectedOrNotFound(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Backend(err, "rows affected")
	}
	if n == 0 {
		return notFound
	}
	return nil
}
