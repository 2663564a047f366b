package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orgauth/backend/internal/db"
	"orgauth/backend/internal/passwordreset/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a reset-token repository that runs its queries on conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.ResetToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO password_reset_tokens (token_hash, user_id, expires_at, created_at) VALUES ($1, $2, $3, $4)`,
		t.TokenHash, t.UserID, t.ExpiresAt, t.CreatedAt)
	return err
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.ResetToken, error) {
	var t domain.ResetToken
	err := r.db.QueryRowContext(ctx,
		`SELECT token_hash, user_id, expires_at, created_at FROM password_reset_tokens WHERE token_hash = $1 FOR UPDATE`,
		tokenHash,
	).Scan(&t.TokenHash, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE user_id = $1`, userID)
	return err
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM password_reset_tokens WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
