package auth

import (
	"unicode/utf8"

	goerrors "github.com/goliatone/go-errors"
	"golang.org/x/crypto/bcrypt"
)

const (
	// MinPasswordLength is the shortest secret accepted for hashing
	MinPasswordLength = 8
	// MaxPasswordLength is counted in characters
	MaxPasswordLength = 32
	// MaxPasswordBytes is bcrypt's input limit, multibyte secrets can reach
	// it under MaxPasswordLength characters
	MaxPasswordBytes = 72
)

// BcryptHasher implements PasswordHasher with a fixed work factor
type BcryptHasher struct {
	cost int
}

// NewPasswordHasher returns a bcrypt hasher. A cost outside bcrypt's
// accepted range falls back to the build default.
func NewPasswordHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = passwordHashCost()
	}
	return &BcryptHasher{cost: cost}
}

// Cost returns the work factor used for new hashes
func (h *BcryptHasher) Cost() int {
	return h.cost
}

// Hash will generate a password hash
func (h *BcryptHasher) Hash(secret string) (string, error) {
	if err := ValidatePasswordLength(secret); err != nil {
		return "", err
	}

	out, err := bcrypt.GenerateFromPassword([]byte(secret), h.cost)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}
	return string(out), nil
}

// Verify will validate the given cleartext password matches the hashed
// password. Malformed hashes simply fail to match.
func (h *BcryptHasher) Verify(secret, hash string) bool {
	if secret == "" || hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// ValidatePasswordLength enforces the 8..32 character rule and the bcrypt
// byte limit
func ValidatePasswordLength(secret string) error {
	n := utf8.RuneCountInString(secret)
	if n < MinPasswordLength || n > MaxPasswordLength || len(secret) > MaxPasswordBytes {
		return WithMetadata(ErrPasswordLength, map[string]any{
			"length": n,
			"bytes":  len(secret),
		})
	}
	return nil
}

var _ PasswordHasher = (*BcryptHasher)(nil)
