// Package token signs and verifies the stateless HS256 tokens used for
// sessions, password reset links and email verification links.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/findosh/fintrack/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrMissingSecret is returned by Sign when no signing secret is configured
var ErrMissingSecret = errors.New("token signing secret is not configured")

// Purpose distinguishes what a token may be used for. Sessions carry none.
type Purpose string

const (
	PurposeSession Purpose = ""
	PurposeReset   Purpose = "reset"
	PurposeVerify  Purpose = "verify"
)

// Payload is the application data carried by a token
type Payload struct {
	UserID  uuid.UUID
	Email   string
	Purpose Purpose
}

type claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Type   string `json:"type,omitempty"`
	jwt.RegisteredClaims
}

// Service signs and verifies tokens. It holds no state beyond the config,
// and reads the secret on every call.
type Service struct {
	cfg *config.Config
	now func() time.Time
}

// NewService creates a token service
func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg, now: time.Now}
}

// Sign issues a token for p that expires after ttl
func (s *Service) Sign(p Payload, ttl time.Duration) (string, error) {
	secret := s.cfg.SecretKey
	if secret == "" {
		return "", ErrMissingSecret
	}

	now := s.now()
	c := claims{
		UserID: p.UserID.String(),
		Email:  p.Email,
		Type:   string(p.Purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, algorithm and expiry. Every failure, whatever
// its cause, yields (nil, false). The purpose is returned, not enforced.
func (s *Service) Verify(tokenString string) (*Payload, bool) {
	secret := s.cfg.SecretKey
	if secret == "" || tokenString == "" {
		return nil, false
	}

	var c claims
	tok, err := jwt.ParseWithClaims(tokenString, &c,
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return []byte(secret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !tok.Valid {
		return nil, false
	}

	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return nil, false
	}

	return &Payload{UserID: userID, Email: c.Email, Purpose: Purpose(c.Type)}, true
}
