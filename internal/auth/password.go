// Password hashing for accounts registered with email + password.
//
// Google sign-in never touches this file. Accounts created through
// POST /api/users store a bcrypt hash, and POST /auth/login verifies it.
//
// Hash format (the full output of bcrypt.GenerateFromPassword):
//
//	$2a$12$<22-char salt><31-char hash>
//	 ^   ^
//	 |   cost (2^12 rounds)
//	 version

package auth

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor (~250ms per hash on a modern server).
const defaultCost = 12

// Password length bounds. bcrypt silently truncates input past 72 bytes,
// so longer passwords are rejected rather than half-checked.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// ErrInvalidPassword is returned by Verify when the password does not match.
var ErrInvalidPassword = errors.New("auth: invalid password")

// PasswordService provides bcrypt hashing and verification.
// A struct rather than free functions so tests can inject a cheap cost.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceWithCost is for tests in other packages: cost 4 (the
// bcrypt minimum) hashes in about a millisecond. Never use it in production.
func NewPasswordServiceWithCost(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordLength {
		return "", fmt.Errorf("auth: password must be %d bytes or fewer", MaxPasswordLength)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// Verify checks a plaintext password against a stored hash.
//
// An empty hash (an account that only ever signed in with Google) never
// matches. bcrypt's comparison is constant-time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	if hash == "" {
		return ErrInvalidPassword
	}
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrInvalidPassword
		}
		return fmt.Errorf("auth: comparing password hash: %w", err)
	}
	return nil
}
