package app

import (
	"golang.org/x/crypto/bcrypt"
)

// maxPasswordLen is the number of bytes bcrypt reads. Hash rejects longer
// passwords, so a longer candidate can never match.
const maxPasswordLen = 72

// PasswordHasher hashes and verifies passwords with bcrypt. The salt and cost
// are embedded in the hash, so Verify needs nothing but the stored string.
type PasswordHasher struct {
	cost  int
	dummy []byte
}

// NewPasswordHasher returns a hasher using the given bcrypt cost. Costs outside
// bcrypt's accepted range fall back to bcrypt.DefaultCost.
func NewPasswordHasher(cost int) *PasswordHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	// Compared against when the account does not exist, so unknown emails
	// cost as much as wrong passwords.
	dummy, _ := bcrypt.GenerateFromPassword([]byte("no-such-account"), cost)
	return &PasswordHasher{cost: cost, dummy: dummy}
}

// Hash returns the bcrypt hash of plain.
func (h *PasswordHasher) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether plain matches hash.
func (h *PasswordHasher) Verify(plain, hash string) bool {
	if hash == "" {
		return false
	}
	if len(plain) > maxPasswordLen {
		h.burn(plain[:maxPasswordLen])
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

func (h *PasswordHasher) burn(plain string) {
	_ = bcrypt.CompareHashAndPassword(h.dummy, []byte(plain))
}
