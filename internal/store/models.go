package store

import (
	"fmt"
	"strings"
	"time"
)

// Role is the closed set of account roles.
type Role string

const (
	RoleGuest Role = "guest"
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
)

// ParseRole returns the Role named by s. Unknown names are rejected rather
// than degraded to guest.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleGuest, RoleOwner, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Satisfies reports whether a holder of r may act at the required level.
func (r Role) Satisfies(required Role) bool {
	return r.rank() >= required.rank() && r.rank() > 0
}

func (r Role) rank() int {
	switch r {
	case RoleGuest:
		return 1
	case RoleOwner:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// User represents an account. PasswordHash is empty for OAuth-only accounts.
type User struct {
	ID            string
	Role          Role
	Name          string
	Email         string
	EmailVerified bool
	PasswordHash  string
	AvatarURL     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// HasPassword reports whether the user can authenticate with a password.
func (u *User) HasPassword() bool { return u.PasswordHash != "" }

// VerificationLink is a pending email verification. ID is the capability
// embedded in the link sent to the user.
type VerificationLink struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the link is past its expiry at now.
func (v *VerificationLink) Expired(now time.Time) bool { return now.After(v.ExpiresAt) }

// ResetLink is a pending password reset.
type ResetLink struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Expired reports whether the link is past its expiry at now.
func (r *ResetLink) Expired(now time.Time) bool { return now.After(r.ExpiresAt) }

// Todo is an item of the todo resource owned by a user.
type Todo struct {
	ID        string
	OwnerID   string
	Title     string
	Done      bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NormalizeEmail lower-cases and trims an address so uniqueness is
// case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
