package domain

import "time"

// ResetToken authorizes one password change for UserID until ExpiresAt.
// Only the SHA-256 hash of the emailed token is stored.
type ResetToken struct {
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token can no longer be used at now.
func (t *ResetToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
