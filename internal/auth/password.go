package auth

// Share passphrase hashing.
//
// The host sets a passphrase when it starts sharing. Only the bcrypt hash is
// kept in memory; guests present the plaintext when they join.

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// defaultCost is the bcrypt work factor. Joins are rare, so cost 12 is fine.
const defaultCost = 12

// PasswordService hashes and verifies share passphrases. The cost is a field
// so tests can use bcrypt.MinCost.
type PasswordService struct {
	cost int
}

// NewPasswordService uses the default cost.
func NewPasswordService() *PasswordService {
	return &PasswordService{cost: defaultCost}
}

// NewPasswordServiceForTest is for tests in other packages. Never use it in
// production.
func NewPasswordServiceForTest(cost int) *PasswordService {
	return &PasswordService{cost: cost}
}

// Hash returns the bcrypt hash of a passphrase. Passphrases longer than 72
// bytes are rejected instead of being silently truncated by bcrypt.
func (p *PasswordService) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", fmt.Errorf("auth: passphrase must be 72 bytes or fewer")
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), p.cost)
	if err != nil {
		return "", fmt.Errorf("auth: hashing passphrase: %w", err)
	}

	return string(hashed), nil
}

// Verify returns nil when plaintext matches hash. The comparison is constant
// time.
func (p *PasswordService) Verify(hash, plaintext string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrWrongPassphrase
		}
		return fmt.Errorf("auth: comparing passphrase hash: %w", err)
	}
	return nil
}

// ErrWrongPassphrase is returned by Verify on a mismatch.
var ErrWrongPassphrase = errors.New("auth: wrong passphrase")
