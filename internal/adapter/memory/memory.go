// Package memory implements an in-memory repository for development and testing.
package memory

import (
	"context"
	"sync"
	"time"

	"accounts/internal/domain"
)

// DB implements an in-memory database storage.
type DB struct {
	mu       sync.Mutex
	users    []*domain.User
	sessions map[string]*domain.Session

	userIDCounter    int64
	sessionIDCounter int64
}

// New creates a new in-memory database.
func New() *DB {
	return &DB{
		sessions: make(map[string]*domain.Session),
	}
}

// Ensure interfaces are met.
var _ domain.UserRepository = (*DB)(nil)
var _ domain.SessionRepository = (*SessionRepo)(nil)

// --- UserRepository ---

// GetByEmail retrieves a user by email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, u := range db.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

// GetByID retrieves a user by ID.
func (db *DB) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if u := db.findUser(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

// Create creates a new user.
func (db *DB) Create(ctx context.Context, username, email, passwordHash string, role domain.Role) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if db.emailTaken(email, 0) {
		return nil, domain.ErrEmailTaken
	}

	db.userIDCounter++
	u := &domain.User{
		ID:           db.userIDCounter,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Role:         role,
		CreatedAt:    time.Now().UTC(),
	}
	db.users = append(db.users, u)
	cp := *u
	return &cp, nil
}

// Update applies the non-nil fields of upd to the user.
func (db *DB) Update(ctx context.Context, id int64, upd domain.UserUpdate) (*domain.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	u := db.findUser(id)
	if u == nil {
		return nil, nil
	}
	if upd.Email != nil {
		if db.emailTaken(*upd.Email, id) {
			return nil, domain.ErrEmailTaken
		}
		u.Email = *upd.Email
	}
	if upd.PasswordHash != nil {
		u.PasswordHash = *upd.PasswordHash
	}
	cp := *u
	return &cp, nil
}

// Delete removes a user and, like the SQL foreign key, all of their sessions.
func (db *DB) Delete(ctx context.Context, id int64) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	for i, u := range db.users {
		if u.ID == id {
			db.users = append(db.users[:i], db.users[i+1:]...)
			db.deleteSessionsLocked(id)
			return true, nil
		}
	}
	return false, nil
}

func (db *DB) findUser(id int64) *domain.User {
	for _, u := range db.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (db *DB) emailTaken(email string, exceptID int64) bool {
	for _, u := range db.users {
		if u.Email == email && u.ID != exceptID {
			return true
		}
	}
	return false
}

func (db *DB) deleteSessionsLocked(userID int64) {
	for k, s := range db.sessions {
		if s.UserID == userID {
			delete(db.sessions, k)
		}
	}
}

// --- SessionRepository ---

// SessionRepo implements session persistence.
type SessionRepo struct {
	db *DB
}

// NewSessionRepo creates a new session repository.
func (db *DB) NewSessionRepo() *SessionRepo {
	return &SessionRepo{db: db}
}

// Create stores a new session and assigns its ID.
func (r *SessionRepo) Create(ctx context.Context, s *domain.Session) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	r.db.sessionIDCounter++
	s.ID = r.db.sessionIDCounter
	cp := *s
	r.db.sessions[s.Token] = &cp
	return nil
}

// GetByToken retrieves a session by token, expired or not.
func (r *SessionRepo) GetByToken(ctx context.Context, token string) (*domain.Session, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if s, ok := r.db.sessions[token]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

// Invalidate moves a still-valid session's expiry to now.
func (r *SessionRepo) Invalidate(ctx context.Context, token string, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	s, ok := r.db.sessions[token]
	if !ok || !s.ValidAt(now) {
		return false, nil
	}
	s.ValidUntil = now
	return true, nil
}

// HasValid reports whether the user holds a session valid at now.
func (r *SessionRepo) HasValid(ctx context.Context, userID int64, now time.Time) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, s := range r.db.sessions {
		if s.UserID == userID && s.ValidAt(now) {
			return true, nil
		}
	}
	return false, nil
}

// DeleteByUser deletes all sessions of a user.
func (r *SessionRepo) DeleteByUser(ctx context.Context, userID int64) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.deleteSessionsLocked(userID)
	return nil
}

// DeleteInvalidBefore deletes sessions whose validity ended before cutoff.
func (r *SessionRepo) DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for k, s := range r.db.sessions {
		if s.ValidUntil.Before(cutoff) {
			delete(r.db.sessions, k)
			n++
		}
	}
	return n, nil
}
