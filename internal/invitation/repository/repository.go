package repository

import (
	"context"
	"time"

	"orgauth/backend/internal/invitation/domain"
)

// Repository defines persistence for invitations. Lookups return (nil, nil) when no row matches.
// Single-row lookups lock the row for the rest of the enclosing transaction.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.Invitation, error)
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error)
	GetPendingByEmailAndOrg(ctx context.Context, email, orgID string) (*domain.Invitation, error)
	ListByOrg(ctx context.Context, orgID string, status domain.Status) ([]*domain.Invitation, error)
	// Create inserts inv. A duplicate token hash or a second pending row for (email, org) is a conflict.
	Create(ctx context.Context, inv *domain.Invitation) error
	// UpdateStatus moves a pending invitation to status. It reports false when the row was not pending.
	UpdateStatus(ctx context.Context, id string, status domain.Status, acceptedBy string, at time.Time) (bool, error)
	// ExpirePendingBefore marks every pending invitation created before cutoff as expired.
	ExpirePendingBefore(ctx context.Context, cutoff, at time.Time) (int64, error)
}
