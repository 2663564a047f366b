package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orgauth/backend/internal/db"
	"orgauth/backend/internal/user/domain"
)

const userColumns = `id, email, password_hash, current_org_id, status, created_at, updated_at`

// PostgresRepository persists users in the users table.
type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a user repository that runs its queries on conn (a *sql.DB or *sql.Tx).
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetByID returns the user for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetByEmail returns the user whose email matches case-insensitively, or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email))
}

// Create inserts u. The unique index on lower(email) rejects duplicates.
func (r *PostgresRepository) Create(ctx context.Context, u *domain.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Email, u.PasswordHash, nullString(u.CurrentOrgID), string(u.Status), u.CreatedAt, u.UpdatedAt)
	return err
}

func (r *PostgresRepository) UpdatePasswordHash(ctx context.Context, id, hash string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, at)
	return err
}

func (r *PostgresRepository) SetCurrentOrg(ctx context.Context, id, orgID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE users SET current_org_id = $2 WHERE id = $1`, id, nullString(orgID))
	return err
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var (
		u      domain.User
		orgID  sql.NullString
		status string
	)
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &orgID, &status, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.CurrentOrgID = orgID.String
	u.Status = domain.UserStatus(status)
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
