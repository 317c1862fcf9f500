// Package auth issues and verifies the HS256 session tokens used by the
// login endpoint and the WebSocket connect path.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/harborchat/harbor/src/types"
)

// ErrInvalidToken is returned for tokens that fail signature, structure, or
// expiry checks.
var ErrInvalidToken = errors.New("invalid token")

// TokenTTL is how long an issued token stays valid.
const TokenTTL = 24 * time.Hour

type claims struct {
	jwt.RegisteredClaims
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

// Service signs and verifies session tokens with a shared HMAC secret.
type Service struct {
	secret []byte
	now    func() time.Time
}

// New creates a token service. now may be nil, defaulting to time.Now.
func New(secret []byte, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{secret: secret, now: now}
}

// Issue signs a token for an authenticated user.
func (s *Service) Issue(userID int64, username string) (string, error) {
	issued := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(TokenTTL)),
		},
		UserID:   userID,
		Username: username,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses a token and returns the authenticated identity it carries.
func (s *Service) Verify(token string) (types.Identity, error) {
	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if parsed.UserID == 0 {
		return types.Identity{}, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return types.Authenticated(parsed.UserID, parsed.Username), nil
}
