package repository

import (
	"context"
	"time"

	"orgauth/backend/internal/passwordreset/domain"
)

// Repository defines persistence for password-reset tokens. Lookups return (nil, nil) when no row matches.
type Repository interface {
	Create(ctx context.Context, t *domain.ResetToken) error
	GetByTokenHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error)
	DeleteByUser(ctx context.Context, userID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
