package utils // package utils provides helper functions for token creation and hashing

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// IssuedAtLeeway accepts tokens dated up to a second ahead, as issued right
// after a password change.
const IssuedAtLeeway = time.Second

// LoggedOutToken is the value written to the session cookie on logout. It
// is never a valid JWT and is rejected before any signature check.
const LoggedOutToken = "loggedout"

var (
	// ErrInvalidToken covers bad signatures, unexpected algorithms and
	// malformed payloads.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is returned for a well-formed token past its exp claim.
	ErrExpiredToken = errors.New("token expired")
)

// SessionClaims is the payload of a session token: the user id under "id"
// plus the registered iat/exp claims.
type SessionClaims struct {
	UserID uint64 `json:"id"`
	jwt.RegisteredClaims
}

// IssuedAtTime returns the iat claim as a time.Time (zero when absent).
func (c SessionClaims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// SessionToken is a signed JWT along with its expiry.
type SessionToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// NewSessionToken builds and signs an HS256 JWT for userID valid for ttl.
func NewSessionToken(secret string, userID uint64, ttl time.Duration) (SessionToken, error) {
	return NewSessionTokenAt(secret, userID, ttl, time.Now())
}

// NewSessionTokenAt is NewSessionToken with an explicit issue time.
func NewSessionTokenAt(secret string, userID uint64, ttl time.Duration, issuedAt time.Time) (SessionToken, error) {
	issuedAt = issuedAt.UTC().Truncate(time.Second)
	exp := issuedAt.Add(ttl)
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(secret))
	if err != nil {
		return SessionToken{}, err
	}
	return SessionToken{Token: signed, Exp: exp}, nil
}

// ParseSessionToken verifies raw against secret and returns its claims.
func ParseSessionToken(secret, raw string) (SessionClaims, error) {
	var claims SessionClaims
	tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(IssuedAtLeeway),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return SessionClaims{}, ErrExpiredToken
		}
		return SessionClaims{}, ErrInvalidToken
	}
	if !tok.Valid || claims.UserID == 0 || claims.IssuedAt == nil {
		return SessionClaims{}, ErrInvalidToken
	}
	return claims, nil
}
