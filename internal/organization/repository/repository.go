package repository

import (
	"context"

	"orgauth/backend/internal/organization/domain"
)

// Repository defines persistence for organizations. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error)
	GetOrganizationByName(ctx context.Context, name string) (*domain.Org, error)
	CreateOrganization(ctx context.Context, o *domain.Org) error
	// LockOrganization returns the org and, inside a transaction, holds a row lock on it until
	// commit. Every membership mutation for the org takes this lock first.
	LockOrganization(ctx context.Context, id string) (*domain.Org, error)
}
