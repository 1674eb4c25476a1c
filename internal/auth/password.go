package auth

// PLACEHOLDER PASSWORDS:
// Users only ever sign in with GitHub, but the users table keeps a
// password_hash column so an email/password path can be added without a
// migration. New accounts get the bcrypt hash of 12 random characters that is
// never shown to anyone, which makes the column non-empty yet unusable.
//
// bcrypt automatically:
//   - Generates a random salt
//   - Embeds salt and cost in the output ($2a$12$<salt><hash>)
//   - Is deliberately slow (cost 12 ≈ 250ms)

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor.
const defaultCost = 12

const placeholderAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// PasswordService provides bcrypt hashing.
//
// It's a struct (not free functions) so that the cost can be injected
// in tests: cost 4 makes tests fast without changing the logic under test.
type PasswordService struct {
	cost int
}

// NewPasswordService creates a PasswordService with the default cost (12).
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest creates a PasswordService with a custom cost.
// Do NOT use in production: cost 4 is far too weak.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash hashes the given plaintext password with bcrypt.
// Returns an error if the plaintext is longer than bcrypt's 72-byte limit.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: password must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing password: %w", err)
	}

	return string(hashed), nil
}

// PlaceholderHash returns the hash of a fresh random 12-character password.
func (p *PasswordService) PlaceholderHash() (string, error) {
	secret, err := randomString(12)
	if err != nil {
		return "", err
	}
	return p.Hash(secret)
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("auth: reading random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = placeholderAlphabet[int(b)%len(placeholderAlphabet)]
	}
	return string(buf), nil
}
