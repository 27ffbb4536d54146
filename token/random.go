package token

import (
	"crypto/rand"
	"encoding/base64"
)

// randomBytes is the byte width used by RandomToken, giving 256 bits of
// entropy — comfortably over spec.md §4.1's "≥128 bits" floor.
const randomBytes = 32

// RandomToken returns a url-safe, uniformly distributed random string
// used for refresh-token-family ids and for email-verification,
// password-reset, CSRF, and OAuth-state tokens (spec.md §4.1).
func RandomToken() (string, error) {
	buf := make([]byte, randomBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
