package domain

import "time"

// AuditLog represents an audit event. Metadata is free-form key=value text.
type AuditLog struct {
	ID        string
	OrgID     string
	UserID    string
	Action    string
	Resource  string
	Metadata  string
	CreatedAt time.Time
}
