package repository

import (
	"context"
	"time"

	"orgauth/backend/internal/user/domain"
)

// Repository defines persistence for users. Lookups return (nil, nil) when no row matches.
type Repository interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
	// GetByEmail matches case-insensitively.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Create(ctx context.Context, u *domain.User) error
	UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error
	// SetCurrentOrg caches orgID as the user's default org; an empty orgID clears it.
	SetCurrentOrg(ctx context.Context, id, orgID string) error
}
