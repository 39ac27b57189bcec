// Package models holds the server-side domain types.
package models

import (
	"strings"
	"time"
)

// User is a stored account. PasswordHash and RefreshToken never leave the
// server; use Public for anything returned to a caller.
type User struct {
	ID           string
	UserName     string
	Email        string
	PasswordHash string
	RefreshToken *string
	CompanyID    *string
	Working      []string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the sanitized projection of User.
type PublicUser struct {
	ID        string    `json:"_id"`
	UserName  string    `json:"username"`
	Email     string    `json:"email"`
	CompanyID *string   `json:"company,omitempty"`
	Working   []string  `json:"working"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Public returns u without credentials.
func (u *User) Public() *PublicUser {
	working := make([]string, len(u.Working))
	copy(working, u.Working)

	return &PublicUser{
		ID:        u.ID,
		UserName:  u.UserName,
		Email:     u.Email,
		CompanyID: u.CompanyID,
		Working:   working,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// NormalizeEmail trims and lower-cases an address, which is the form emails
// are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
