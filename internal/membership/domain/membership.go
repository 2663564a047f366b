package domain

import (
	"fmt"
	"strings"
	"time"
)

// Membership links a user to an organization with a role. At most one exists per (user, org).
type Membership struct {
	ID        string
	UserID    string
	OrgID     string
	Role      Role
	CreatedAt time.Time
}

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Grants reports whether holding r satisfies a check for required. Admin satisfies every role.
func (r Role) Grants(required Role) bool {
	return r.Valid() && (r == RoleAdmin || r == required)
}

// ParseRole parses a role name case-insensitively.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// Counts summarizes an organization's memberships for invariant checks.
type Counts struct {
	Total  int
	Admins int
}
