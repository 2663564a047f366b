package domain

import (
	"errors"
	"strings"
	"time"
)

// Org represents an organization/tenant. Names are unique.
type Org struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

// MaxNameLength bounds organization names.
const MaxNameLength = 100

// Validate validates the organization for persistence. Returns an error describing the first validation failure.
func (o *Org) Validate() error {
	o.Name = strings.TrimSpace(o.Name)
	if o.Name == "" {
		return errors.New("name is required")
	}
	if len(o.Name) > MaxNameLength {
		return errors.New("name must be at most 100 characters")
	}
	return nil
}
