package repository

import (
	"context"

	"orgauth/backend/internal/membership/domain"
)

// Repository defines persistence for memberships. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
	ListMembershipsByOrg(ctx context.Context, orgID string) ([]*domain.Membership, error)
	ListMembershipsByUser(ctx context.Context, userID string) ([]*domain.Membership, error)
	// CreateMembership inserts m; a second membership for the same (user, org) is a conflict.
	CreateMembership(ctx context.Context, m *domain.Membership) error
	DeleteByUserAndOrg(ctx context.Context, userID, orgID string) error
	UpdateRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error)
	CountByOrg(ctx context.Context, orgID string) (domain.Counts, error)
}
