// Package token provides opaque random identifiers for sessions and requests.
package token

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
)

// DefaultLength is the default token length in bytes (256 bits of entropy).
const DefaultLength = 32

// Generate returns a cryptographically random token of DefaultLength bytes,
// Base64 RawURL encoded.
func Generate() (string, error) {
	return GenerateWithLength(DefaultLength)
}

// GenerateWithLength returns a random token of length bytes, Base64 RawURL
// encoded so it is safe in URLs and headers.
func GenerateWithLength(length int) (string, error) {
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WithPrefix returns prefix followed by a fresh DefaultLength token.
func WithPrefix(prefix string) (string, error) {
	t, err := Generate()
	if err != nil {
		return "", err
	}
	return prefix + t, nil
}

// Equal compares two tokens in constant time.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
