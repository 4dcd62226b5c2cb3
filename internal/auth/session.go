// Package auth issues and verifies the HS256 session tokens that identify the
// signed-in user of the local store.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpired      = errors.New("token expired or not valid yet")
)

// Token is an issued access token.
type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Sessions signs and verifies session tokens with a shared key.
type Sessions struct {
	signKey []byte
	ttl     time.Duration
	leeway  time.Duration
	now     func() time.Time
}

// NewSessions constructs Sessions. A non-positive ttl defaults to 30 days.
func NewSessions(signKey []byte, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Sessions{signKey: signKey, ttl: ttl, leeway: 30 * time.Second, now: time.Now}
}

// Issue creates a signed token whose subject is userID.
func (s *Sessions) Issue(userID string) (Token, error) {
	if strings.TrimSpace(userID) == "" {
		return Token{}, errors.New("empty user id")
	}
	now := s.now()
	exp := now.Add(s.ttl)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signKey)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, ExpiresAt: exp}, nil
}

// UserID verifies tok and returns its subject.
func (s *Sessions) UserID(tok string) (string, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(tok, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.signKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	v := jwt.NewValidator(jwt.WithLeeway(s.leeway), jwt.WithTimeFunc(s.now))
	if err := v.Validate(&claims); err != nil {
		return "", ErrExpired
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
