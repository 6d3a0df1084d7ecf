// Package app holds the application services and business logic.
package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"accounts/internal/domain"
)

// SessionTTL is the fixed lifetime of a session. There is no refresh.
const SessionTTL = 24 * time.Hour

// LoginResult is returned by a successful Login.
type LoginResult struct {
	Token   string
	User    *domain.User
	Session *domain.Session
}

// AuthService handles registration, authentication and session management.
type AuthService struct {
	users    domain.UserRepository
	sessions domain.SessionRepository
	hasher   *PasswordHasher
	now      func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(users domain.UserRepository, sessions domain.SessionRepository, hasher *PasswordHasher) *AuthService {
	return &AuthService{
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		now:      time.Now,
	}
}

// Register creates a Guest account.
func (s *AuthService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	email = normalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	user, err := s.users.Create(ctx, strings.TrimSpace(username), email, hash, domain.RoleGuest)
	if errors.Is(err, domain.ErrEmailTaken) {
		return nil, err
	}
	if err != nil {
		return nil, storeFailure("create user", err)
	}
	return user, nil
}

// Login verifies the credentials and opens a new session valid for SessionTTL.
func (s *AuthService) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return nil, storeFailure("get user", err)
	}
	if user == nil {
		s.hasher.burn(password)
		return nil, ErrInvalidCredentials
	}
	if !s.hasher.Verify(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	token, err := generateToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	session := &domain.Session{
		Token:      token,
		UserID:     user.ID,
		CreatedAt:  now,
		ValidUntil: now.Add(SessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, storeFailure("create session", err)
	}

	return &LoginResult{Token: token, User: user, Session: session}, nil
}

// Validate resolves token to the user owning it. Unknown tokens, sessions past
// their ValidUntil and sessions whose user was deleted all yield
// ErrInvalidOrExpiredSession.
func (s *AuthService) Validate(ctx context.Context, token string) (*domain.User, error) {
	if token == "" {
		return nil, ErrInvalidOrExpiredSession
	}

	session, err := s.sessions.GetByToken(ctx, token)
	if err != nil {
		return nil, storeFailure("get session", err)
	}
	if session == nil || !session.ValidAt(s.now()) {
		return nil, ErrInvalidOrExpiredSession
	}

	user, err := s.users.GetByID(ctx, session.UserID)
	if err != nil {
		return nil, storeFailure("get user", err)
	}
	if user == nil {
		return nil, ErrInvalidOrExpiredSession
	}
	return user, nil
}

// Logout soft-invalidates the session by moving its ValidUntil to now. A
// second logout with the same token fails like an unknown token.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	if _, err := s.Validate(ctx, token); err != nil {
		return err
	}

	changed, err := s.sessions.Invalidate(ctx, token, s.now())
	if err != nil {
		return storeFailure("invalidate session", err)
	}
	if !changed {
		// A concurrent logout got there first.
		return ErrInvalidOrExpiredSession
	}
	return nil
}

// PurgeSessions deletes sessions that have been invalid for longer than
// retention and returns how many were removed.
func (s *AuthService) PurgeSessions(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := s.sessions.DeleteInvalidBefore(ctx, s.now().Add(-retention))
	if err != nil {
		return 0, storeFailure("purge sessions", err)
	}
	return n, nil
}

func generateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	local, domainPart, ok := strings.Cut(email, "@")
	if !ok || local == "" || domainPart == "" || strings.ContainsAny(email, " \t\r\n") {
		return fmt.Errorf("%w: invalid email address %q", ErrInvalidInput, email)
	}
	return nil
}
