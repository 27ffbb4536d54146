// Package password implements the adaptive-cost password hashing policy
// from spec.md §2.1, grounded on the bcrypt wrapper style used for
// password hashing in the corpus.
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// MinCost is the lowest adaptive cost factor spec.md §2 permits ("≥ 10").
const MinCost = 10

// DefaultCost is used when no cost is configured.
const DefaultCost = 12

// ErrTooLong signals a plaintext over bcrypt's 72-byte limit; bcrypt
// truncates silently past that, so this is rejected explicitly.
var ErrTooLong = errors.New("password: plaintext exceeds 72 bytes")

// Hasher hashes and verifies passwords with a configured bcrypt cost.
type Hasher struct {
	cost int
}

// New returns a Hasher at cost; a cost below MinCost is replaced by
// DefaultCost.
func New(cost int) *Hasher {
	if cost < MinCost {
		cost = DefaultCost
	}
	return &Hasher{cost: cost}
}

// Hash produces a self-contained bcrypt hash string.
func (h *Hasher) Hash(plaintext string) (string, error) {
	if len(plaintext) > 72 {
		return "", ErrTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hashing: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext matches the stored hash.
func (h *Hasher) Verify(hash, plaintext string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	return err == nil
}

// MeetsPolicy enforces spec.md §6's server-side password policy: length
// ≥ 8 and at least one of each of {uppercase, lowercase, digit,
// non-alphanumeric}.
func MeetsPolicy(plaintext string) bool {
	if len(plaintext) < 8 {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range plaintext {
		switch {
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		case r >= '0' && r <= '9':
			hasDigit = true
		default:
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
