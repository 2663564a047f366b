// Package postgres implements store.Store on a Postgres connection pool.
package postgres

import (
	"context"
	"database/sql"
	"time"

	apitokenrepo "orgauth/backend/internal/apitoken/repository"
	auditrepo "orgauth/backend/internal/audit/repository"
	"orgauth/backend/internal/db"
	invitationrepo "orgauth/backend/internal/invitation/repository"
	membershiprepo "orgauth/backend/internal/membership/repository"
	organizationrepo "orgauth/backend/internal/organization/repository"
	passwordresetrepo "orgauth/backend/internal/passwordreset/repository"
	"orgauth/backend/internal/store"
	userrepo "orgauth/backend/internal/user/repository"
)

// Store runs each unit of work in a read-committed transaction bounded by Timeout.
type Store struct {
	conn    *sql.DB
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// New returns a Store over conn. timeout <= 0 disables the per-transaction deadline.
func New(conn *sql.DB, timeout time.Duration) *Store {
	return &Store{conn: conn, timeout: timeout}
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	return db.InTx(ctx, s.conn, s.timeout, func(ctx context.Context, sqlTx *sql.Tx) error {
		return fn(ctx, &tx{q: sqlTx})
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return db.Classify(ctx, s.conn.PingContext(ctx))
}

func (s *Store) Close() error {
	return s.conn.Close()
}

type tx struct {
	q db.DBTX
}

func (t *tx) Users() userrepo.Repository { return userrepo.NewPostgresRepository(t.q) }

func (t *tx) Organizations() organizationrepo.Repository {
	return organizationrepo.NewPostgresRepository(t.q)
}

func (t *tx) Memberships() membershiprepo.Repository {
	return membershiprepo.NewPostgresRepository(t.q)
}

func (t *tx) Invitations() invitationrepo.Repository {
	return invitationrepo.NewPostgresRepository(t.q)
}

func (t *tx) ResetTokens() passwordresetrepo.Repository {
	return passwordresetrepo.NewPostgresRepository(t.q)
}

func (t *tx) APITokens() apitokenrepo.Repository { return apitokenrepo.NewPostgresRepository(t.q) }

func (t *tx) AuditLogs() auditrepo.Repository { return auditrepo.NewPostgresRepository(t.q) }
