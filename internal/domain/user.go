package domain

import "time"

// Role distinguishes the two kinds of principals.
type Role string

const (
	RoleClient Role = "client"
	RoleAgent  Role = "agent"
)

// Valid reports whether the role is a known value.
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAgent
}

// User is an authenticated principal. Role is immutable after provisioning.
type User struct {
	ID            string
	Email         string
	Name          string
	Role          Role
	PhotoURL      *string
	PasswordHash  string
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}
