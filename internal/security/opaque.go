package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
)

// OpaqueTokenBytes is the entropy of every invitation, reset, and API token.
const OpaqueTokenBytes = 32

// GenerateOpaqueToken returns a URL-safe random token and the hash to persist for it.
// The raw token is shown to its holder once and never stored.
func GenerateOpaqueToken() (raw, hash string, err error) {
	b := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = base64.RawURLEncoding.EncodeToString(b)
	return raw, HashToken(raw), nil
}

// HashToken returns the hex-encoded SHA-256 of token, the form used for lookups.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// TokenHashEqual compares the hash of providedToken with storedHash in constant time.
// An empty token never matches.
func TokenHashEqual(providedToken, storedHash string) bool {
	if providedToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(HashToken(providedToken)), []byte(storedHash)) == 1
}
