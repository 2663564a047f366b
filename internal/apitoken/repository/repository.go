package repository

import (
	"context"
	"time"

	"orgauth/backend/internal/apitoken/domain"
)

// Repository defines persistence for API tokens. Lookups return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, t *domain.APIToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.APIToken, error)
	ListByUser(ctx context.Context, userID string) ([]*domain.APIToken, error)
	// Revoke marks the user's token revoked; it reports false when no unrevoked token matched.
	Revoke(ctx context.Context, id, userID string, at time.Time) (bool, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}
