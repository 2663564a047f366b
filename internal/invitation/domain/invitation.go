// Package domain holds the invitation entity and its state machine.
//
// An invitation starts pending and moves at most once, to accepted, revoked, or
// expired. Expiry is lazy: a pending invitation older than the TTL is flipped to
// expired by whichever read notices it first.
package domain

import "time"

// DefaultTTL is how long a pending invitation may be accepted.
const DefaultTTL = 7 * 24 * time.Hour

// Invitation offers an email address membership in an organization. Only the
// SHA-256 hash of the token is stored.
type Invitation struct {
	ID         string
	Email      string
	OrgID      string
	InviterID  string
	TokenHash  string
	Status     Status
	AcceptedBy string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRevoked  Status = "revoked"
	StatusExpired  Status = "expired"
)

// Terminal reports whether no further transitions are allowed from s.
func (s Status) Terminal() bool {
	return s == StatusAccepted || s == StatusRevoked || s == StatusExpired
}

// CanTransition reports whether from → to is an edge of the state machine.
func CanTransition(from, to Status) bool {
	return from == StatusPending && to.Terminal()
}

// IsStale reports whether a pending invitation has outlived ttl at now.
func (i *Invitation) IsStale(now time.Time, ttl time.Duration) bool {
	return i.Status == StatusPending && now.Sub(i.CreatedAt) > ttl
}

// ExpiresAt is the instant after which a pending invitation becomes stale.
func (i *Invitation) ExpiresAt(ttl time.Duration) time.Time {
	return i.CreatedAt.Add(ttl)
}
