// Package models defines core domain types
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Password hash sentinels for externally authenticated accounts. Neither is a
// valid bcrypt hash, so no password ever matches them.
const (
	PasswordOAuthGoogle = "oauth-google"
	PasswordCodeAuth    = "code-auth"
)

// User represents an account holder
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone,omitempty"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"` // Never serialize to JSON
	IsVerified   bool      `json:"isVerified"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"-"`
}

// NewUser creates a new user with generated ID and timestamps
func NewUser(email, name, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		ID:           uuid.New(),
		Email:        NormalizeEmail(email),
		Name:         strings.TrimSpace(name),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// HasPassword reports whether the account can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != "" &&
		u.PasswordHash != PasswordOAuthGoogle &&
		u.PasswordHash != PasswordCodeAuth
}

// NormalizeEmail trims and lowercases an address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PhonePlaceholderEmail derives the synthetic address used for phone-only
// signups. It returns "" when phone carries no digits.
func PhonePlaceholderEmail(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return ""
	}
	return b.String() + "@phone.local"
}
