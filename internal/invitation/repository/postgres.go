package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"orgauth/backend/internal/db"
	"orgauth/backend/internal/invitation/domain"
)

const invitationColumns = `id, email, org_id, inviter_id, token_hash, status, accepted_by_user_id, created_at, updated_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns an invitation repository that runs its queries on conn.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE id = $1 FOR UPDATE`, id)
}

func (r *PostgresRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*domain.Invitation, error) {
	return r.getOne(ctx, `SELECT `+invitationColumns+` FROM invitations WHERE token_hash = $1 FOR UPDATE`, tokenHash)
}

func (r *PostgresRepository) GetPendingByEmailAndOrg(ctx context.Context, email, orgID string) (*domain.Invitation, error) {
	return r.getOne(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE email = $1 AND org_id = $2 AND status = 'pending' FOR UPDATE`,
		email, orgID)
}

// ListByOrg returns the org's invitations, newest first. An empty status lists every status.
func (r *PostgresRepository) ListByOrg(ctx context.Context, orgID string, status domain.Status) ([]*domain.Invitation, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+invitationColumns+` FROM invitations WHERE org_id = $1 AND ($2 = '' OR status = $2) ORDER BY created_at DESC, id`,
		orgID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*domain.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invitation) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invitations (`+invitationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		inv.ID, inv.Email, inv.OrgID, inv.InviterID, inv.TokenHash, string(inv.Status),
		sql.NullString{String: inv.AcceptedBy, Valid: inv.AcceptedBy != ""}, inv.CreatedAt, inv.UpdatedAt)
	return err
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status domain.Status, acceptedBy string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = $2, accepted_by_user_id = $3, updated_at = $4 WHERE id = $1 AND status = 'pending'`,
		id, string(status), sql.NullString{String: acceptedBy, Valid: acceptedBy != ""}, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (r *PostgresRepository) ExpirePendingBefore(ctx context.Context, cutoff, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = 'expired', updated_at = $2 WHERE status = 'pending' AND created_at < $1`,
		cutoff, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*domain.Invitation, error) {
	inv, err := scanInvitation(r.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return inv, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvitation(s scanner) (*domain.Invitation, error) {
	var (
		inv        domain.Invitation
		status     string
		acceptedBy sql.NullString
	)
	err := s.Scan(&inv.ID, &inv.Email, &inv.OrgID, &inv.InviterID, &inv.TokenHash, &status,
		&acceptedBy, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	inv.Status = domain.Status(status)
	inv.AcceptedBy = acceptedBy.String
	return &inv, nil
}
