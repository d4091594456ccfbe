package domain

import "time"

// VerificationToken is a single-use email verification token issued during
// user provisioning.
type VerificationToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
