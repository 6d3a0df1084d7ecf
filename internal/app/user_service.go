package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"accounts/internal/domain"
)

// SessionValidator resolves a session token to its user.
type SessionValidator interface {
	Validate(ctx context.Context, token string) (*domain.User, error)
}

// Details is the profile view returned to a logged-in user.
type Details struct {
	Username string
	Email    string
	Role     domain.Role
}

// UserService implements the profile operations that require a valid session,
// plus the public greeting.
type UserService struct {
	auth     SessionValidator
	users    domain.UserRepository
	sessions domain.SessionRepository
	hasher   *PasswordHasher
	log      *slog.Logger
	now      func() time.Time
}

// NewUserService creates a UserService.
func NewUserService(auth SessionValidator, users domain.UserRepository, sessions domain.SessionRepository, hasher *PasswordHasher, logger *slog.Logger) *UserService {
	if logger == nil {
		logger = slog.Default()
	}
	return &UserService{
		auth:     auth,
		users:    users,
		sessions: sessions,
		hasher:   hasher,
		log:      logger,
		now:      time.Now,
	}
}

// Details returns the profile of the user owning token.
func (s *UserService) Details(ctx context.Context, token string) (*Details, error) {
	user, err := s.auth.Validate(ctx, token)
	if err != nil {
		return nil, err
	}
	return &Details{Username: user.DisplayName(), Email: user.Email, Role: user.Role}, nil
}

// Update changes the email and/or password of the user owning token. Empty
// arguments are treated as not supplied.
func (s *UserService) Update(ctx context.Context, token, email, password string) error {
	user, err := s.auth.Validate(ctx, token)
	if err != nil {
		return err
	}

	var upd domain.UserUpdate
	if email != "" {
		email = normalizeEmail(email)
		if err := validateEmail(email); err != nil {
			return err
		}
		upd.Email = &email
	}
	if password != "" {
		hash, err := s.hasher.Hash(password)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		upd.PasswordHash = &hash
	}
	if upd.Empty() {
		return ErrNoUpdatesRequested
	}

	// The write is not conditional on the session: a logout that commits
	// after Validate does not stop it (row-level last-write-wins).
	updated, err := s.users.Update(ctx, user.ID, upd)
	if err != nil {
		return storeFailure("update user", err)
	}
	if updated == nil {
		return storeFailure("update user", fmt.Errorf("user %d not found", user.ID))
	}
	return nil
}

// Delete removes the user owning token together with all of their sessions.
func (s *UserService) Delete(ctx context.Context, token string) error {
	user, err := s.auth.Validate(ctx, token)
	if err != nil {
		return err
	}

	deleted, err := s.users.Delete(ctx, user.ID)
	if err != nil {
		return storeFailure("delete user", err)
	}
	if !deleted {
		return ErrInvalidOrExpiredSession
	}

	// The user no longer resolves, so leftover sessions fail validation even
	// if this cleanup does not complete.
	if err := s.sessions.DeleteByUser(ctx, user.ID); err != nil {
		s.log.Warn("delete sessions of removed user", "user_id", user.ID, "err", err)
	}
	return nil
}

// Welcome returns a greeting personalized for userID when that user currently
// holds a valid session, and the generic greeting otherwise. It never fails.
func (s *UserService) Welcome(ctx context.Context, userID *int64) string {
	const generic = "Hello World!"
	if userID == nil {
		return generic
	}

	user, err := s.users.GetByID(ctx, *userID)
	if err != nil {
		s.log.Error("welcome: get user", "user_id", *userID, "err", err)
		return generic
	}
	if user == nil {
		return generic
	}

	active, err := s.sessions.HasValid(ctx, user.ID, s.now())
	if err != nil {
		s.log.Error("welcome: check sessions", "user_id", user.ID, "err", err)
		return generic
	}
	if !active {
		return generic
	}
	return fmt.Sprintf("Hello %s!", user.Email)
}
