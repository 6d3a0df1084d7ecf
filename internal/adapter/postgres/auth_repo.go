// Package postgres implements the domain repositories using PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"accounts/internal/domain"
)

var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

const userColumns = "id, username, email, password_hash, role, created_at"

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var role string
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &role, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	return &u, nil
}

// GetByEmail retrieves a user by email.
func (d *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE email = $1",
		email,
	))
}

// GetByID retrieves a user by ID.
func (d *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	return scanUser(d.sql.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE id = $1",
		id,
	))
}

// Create creates a new user.
func (d *DB) Create(ctx context.Context, username, email, passwordHash string, role domain.Role) (*domain.User, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx,
		"INSERT INTO users (username, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5) RETURNING "+userColumns,
		username, email, passwordHash, string(role), time.Now().UTC(),
	))
	if isUniqueViolation(err) {
		return nil, domain.ErrEmailTaken
	}
	return u, err
}

// Update applies the non-nil fields of upd. It returns (nil, nil) when the
// user does not exist.
func (d *DB) Update(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	u, err := scanUser(d.sql.QueryRowContext(ctx,
		"UPDATE users SET email = COALESCE($2, email), password_hash = COALESCE($3, password_hash) WHERE id = $1 RETURNING "+userColumns,
		id, nullString(upd.Email), nullString(upd.PasswordHash),
	))
	if isUniqueViolation(err) {
		return nil, domain.ErrEmailTaken
	}
	return u, err
}

// Delete deletes a user. Sessions go with it through ON DELETE CASCADE.
func (d *DB) Delete(ctx context.Context, id int64) (bool, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM users WHERE id = $1", id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// SessionRepo implements session repository operations on DB.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo wraps a DB as a SessionRepository.
func NewSessionRepo(db *DB) *SessionRepo {
	return &SessionRepo{db: db}
}

// Create creates a new session.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	return r.db.sql.QueryRowContext(ctx,
		"INSERT INTO sessions (token, user_id, created_at, valid_until) VALUES ($1, $2, $3, $4) RETURNING id",
		s.Token, s.UserID, s.CreatedAt.UTC(), s.ValidUntil.UTC(),
	).Scan(&s.ID)
}

// GetByToken retrieves a session by token.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	var s domain.Session
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT id, token, user_id, created_at, valid_until FROM sessions WHERE token = $1",
		token,
	).Scan(&s.ID, &s.Token, &s.UserID, &s.CreatedAt, &s.ValidUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Invalidate sets valid_until to now for a session that is still valid. The
// condition and the write are one statement, so concurrent logouts cannot
// both succeed.
func (r *SessionRepo) Invalidate(ctx context.Context, token string, now time.Time) (bool, error) {
	res, err := r.db.sql.ExecContext(ctx,
		"UPDATE sessions SET valid_until = $2 WHERE token = $1 AND valid_until > $2",
		token, now.UTC(),
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// HasValid reports whether the user holds a session valid at now.
func (r *SessionRepo) HasValid(ctx context.Context, userID int64, now time.Time) (bool, error) {
	var ok bool
	err := r.db.sql.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM sessions WHERE user_id = $1 AND valid_until > $2)",
		userID, now.UTC(),
	).Scan(&ok)
	return ok, err
}

// DeleteByUser deletes all sessions of a user.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID int64) error {
	_, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE user_id = $1", userID)
	return err
}

// DeleteInvalidBefore deletes sessions whose valid_until is before cutoff.
func (r *SessionRepo) DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.sql.ExecContext(ctx, "DELETE FROM sessions WHERE valid_until < $1", cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
