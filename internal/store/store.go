// Package store gives services transactional access to every repository.
//
// All multi-step checks (count-then-mutate, check-then-insert) run inside one
// InTx call so that they observe a consistent snapshot. The Postgres store uses
// read-committed transactions with row locks; the memory store serializes
// transactions and applies them copy-on-commit.
package store

import (
	"context"

	apitokenrepo "orgauth/backend/internal/apitoken/repository"
	auditdomain "orgauth/backend/internal/audit/domain"
	auditrepo "orgauth/backend/internal/audit/repository"
	invitationrepo "orgauth/backend/internal/invitation/repository"
	membershiprepo "orgauth/backend/internal/membership/repository"
	organizationrepo "orgauth/backend/internal/organization/repository"
	passwordresetrepo "orgauth/backend/internal/passwordreset/repository"
	userrepo "orgauth/backend/internal/user/repository"
)

// Tx exposes the repositories bound to one transaction.
type Tx interface {
	Users() userrepo.Repository
	Organizations() organizationrepo.Repository
	Memberships() membershiprepo.Repository
	Invitations() invitationrepo.Repository
	ResetTokens() passwordresetrepo.Repository
	APITokens() apitokenrepo.Repository
	AuditLogs() auditrepo.Repository
}

// Store runs units of work.
type Store interface {
	// InTx runs fn in a transaction that commits when fn returns nil and rolls back otherwise.
	// Failures are apperr errors; timeouts and connection loss surface as STORE_UNAVAILABLE.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// AuditRepository adapts s to the audit repository so each write is its own transaction.
func AuditRepository(s Store) auditrepo.Repository {
	return auditAdapter{s: s}
}

type auditAdapter struct {
	s Store
}

func (a auditAdapter) Create(ctx context.Context, entry *auditdomain.AuditLog) error {
	return a.s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.AuditLogs().Create(ctx, entry)
	})
}

func (a auditAdapter) ListByOrg(ctx context.Context, orgID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	var out []*auditdomain.AuditLog
	err := a.s.InTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		out, err = tx.AuditLogs().ListByOrg(ctx, orgID, limit, offset)
		return err
	})
	return out, err
}
