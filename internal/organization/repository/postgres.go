package repository

import (
	"context"
	"database/sql"
	"errors"

	"orgauth/backend/internal/db"
	"orgauth/backend/internal/organization/domain"
)

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an organization repository that runs its queries on conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// GetOrganizationByID returns the organization for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetOrganizationByID(ctx context.Context, id string) (*domain.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1`, id))
}

func (r *PostgresRepository) GetOrganizationByName(ctx context.Context, name string) (*domain.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE name = $1`, name))
}

// CreateOrganization persists the organization to the database. The organization must have ID set.
func (r *PostgresRepository) CreateOrganization(ctx context.Context, o *domain.Org) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO organizations (id, name, created_at) VALUES ($1, $2, $3)`, o.ID, o.Name, o.CreatedAt)
	return err
}

func (r *PostgresRepository) LockOrganization(ctx context.Context, id string) (*domain.Org, error) {
	return scanOrg(r.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM organizations WHERE id = $1 FOR UPDATE`, id))
}

func scanOrg(row *sql.Row) (*domain.Org, error) {
	var o domain.Org
	if err := row.Scan(&o.ID, &o.Name, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}
