package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials indicates that the email or password was incorrect.
	// Unknown accounts and wrong passwords are deliberately not told apart.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrInvalidOrExpiredSession is returned for unknown, expired and logged
	// out tokens alike.
	ErrInvalidOrExpiredSession = errors.New("invalid session token or session expired")
	// ErrNoUpdatesRequested indicates an update that named no fields.
	ErrNoUpdatesRequested = errors.New("no updates to perform")
	// ErrStoreFailure wraps persistence errors.
	ErrStoreFailure = errors.New("store failure")
	// ErrInvalidInput indicates a malformed email or password.
	ErrInvalidInput = errors.New("invalid input")
)

func storeFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStoreFailure, op, err)
}
