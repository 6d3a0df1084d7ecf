// Package domain contains the core business entities and interfaces.
package domain

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrEmailTaken is returned by UserRepository implementations when an email
// address is already registered to another user.
var ErrEmailTaken = errors.New("email already registered")

// Role is the authorization level of a user.
type Role string

// Known roles. Newly registered users are guests.
const (
	RoleGuest  Role = "Guest"
	RoleMember Role = "Member"
	RoleAdmin  Role = "Admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleMember, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered account. Email doubles as the login name.
type User struct {
	ID           int64
	Username     string
	Email        string
	PasswordHash string
	Role         Role
	CreatedAt    time.Time
}

// DisplayName returns the username given at registration, or the local part
// of the email address when none was stored.
func (u *User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	local, _, _ := strings.Cut(u.Email, "@")
	return local
}

// UserUpdate carries the fields to change on a user. Nil fields are left
// untouched.
type UserUpdate struct {
	Email        *string
	PasswordHash *string
}

// Empty reports whether the update changes nothing.
func (u UserUpdate) Empty() bool {
	return u.Email == nil && u.PasswordHash == nil
}

// Session is a login session. ID is the storage identity and is never handed
// to clients; Token is the opaque credential they present.
type Session struct {
	ID         int64
	Token      string
	UserID     int64
	CreatedAt  time.Time
	ValidUntil time.Time
}

// ValidAt reports whether the session may be used at now. A session whose
// ValidUntil is not strictly after now is invalid, whether it ran out or was
// logged out.
func (s *Session) ValidAt(now time.Time) bool {
	return now.Before(s.ValidUntil)
}

// UserRepository defines the port for user persistence operations.
// Lookups return (nil, nil) when no user matches.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
	Create(ctx context.Context, username, email, passwordHash string, role Role) (*User, error)
	Update(ctx context.Context, id int64, upd UserUpdate) (*User, error)
	Delete(ctx context.Context, id int64) (bool, error)
}

// SessionRepository defines the port for session persistence operations.
type SessionRepository interface {
	// Create stores s and assigns its ID.
	Create(ctx context.Context, s *Session) error
	// GetByToken returns (nil, nil) when the token is unknown. Expired
	// sessions are returned as stored; callers apply ValidAt.
	GetByToken(ctx context.Context, token string) (*Session, error)
	// Invalidate sets valid_until to now for the session with the given
	// token, but only if it is still valid at now. It reports whether a
	// session was changed.
	Invalidate(ctx context.Context, token string, now time.Time) (bool, error)
	// HasValid reports whether the user holds at least one session valid at now.
	HasValid(ctx context.Context, userID int64, now time.Time) (bool, error)
	DeleteByUser(ctx context.Context, userID int64) error
	// DeleteInvalidBefore removes sessions whose valid_until is before cutoff.
	DeleteInvalidBefore(ctx context.Context, cutoff time.Time) (int64, error)
}
