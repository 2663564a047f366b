package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orgauth/backend/internal/apitoken/domain"
	"orgauth/backend/internal/db"
)

const apiTokenColumns = `id, user_id, name, token_hash, expires_at, last_used_at, revoked_at, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an API token repository that runs its queries on conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) Create(ctx context.Context, t *domain.APIToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO api_tokens (id, user_id, name, token_hash, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.UserID, t.Name, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return err
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.APIToken, error) {
	t, err := scanAPIToken(r.db.QueryRowContext(ctx, `SELECT `+apiTokenColumns+` FROM api_tokens WHERE token_hash = $1`, tokenHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return t, err
}

func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.APIToken, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+apiTokenColumns+` FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.APIToken
	for rows.Next() {
		t, err := scanAPIToken(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Revoke(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE api_tokens SET revoked_at = $3 WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`, id, userID, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE api_tokens SET last_used_at = $2 WHERE id = $1`, id, at)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanAPIToken(s scanner) (*domain.APIToken, error) {
	var (
		t        domain.APIToken
		lastUsed sql.NullTime
		revoked  sql.NullTime
	)
	if err := s.Scan(&t.ID, &t.UserID, &t.Name, &t.TokenHash, &t.ExpiresAt, &lastUsed, &revoked, &t.CreatedAt); err != nil {
		return nil, err
	}
	if lastUsed.Valid {
		t.LastUsedAt = &lastUsed.Time
	}
	if revoked.Valid {
		t.RevokedAt = &revoked.Time
	}
	return &t, nil
}
