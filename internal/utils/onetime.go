package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"time"
)

// Lifetimes of the out-of-band tokens.
const (
	VerificationTTL = 24 * time.Hour
	ResetTTL        = 30 * time.Minute
)

// oneTimeTokenBytes is the entropy of a one-time token.
const oneTimeTokenBytes = 32

// OneTimeToken is a random secret sent to the user by email. Only Hash is
// persisted; Plain is handed out exactly once.
type OneTimeToken struct {
	Plain     string
	Hash      string
	ExpiresAt time.Time
}

// NewOneTimeToken generates a token that expires ttl from now.
func NewOneTimeToken(ttl time.Duration) (OneTimeToken, error) {
	plain, err := randomHex(oneTimeTokenBytes)
	if err != nil {
		return OneTimeToken{}, err
	}
	return OneTimeToken{
		Plain:     plain,
		Hash:      HashOneTimeToken(plain),
		ExpiresAt: time.Now().UTC().Add(ttl),
	}, nil
}

// HashOneTimeToken returns the SHA-256 hex digest stored for a token.
func HashOneTimeToken(plain string) string {
	sum := sha256.Sum256([]byte(plain))
	return hex.EncodeToString(sum[:])
}

// MatchOneTimeToken recomputes the digest of plain and compares it with
// storedHash in constant time.
func MatchOneTimeToken(plain, storedHash string) bool {
	if plain == "" || storedHash == "" {
		return false
	}
	got := HashOneTimeToken(plain)
	return subtle.ConstantTimeCompare([]byte(got), []byte(storedHash)) == 1
}

// randomHex returns a hex string of n random bytes.
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
