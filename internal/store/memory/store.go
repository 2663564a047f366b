// Package memory implements store.Store in process memory.
//
// Transactions are serialized by a single mutex and run against a private copy
// of the data set that replaces the shared one only when fn succeeds, so a failed
// unit of work leaves no trace. The audit log is append-only and is not part of
// that copy: a transaction buffers its entries and they are appended on commit.
// Unique constraints mirror the Postgres schema.
// Used by tests and by STORE_DRIVER=memory for local development.
package memory

import (
	"context"
	"sync"

	apitokendomain "orgauth/backend/internal/apitoken/domain"
	apitokenrepo "orgauth/backend/internal/apitoken/repository"
	auditdomain "orgauth/backend/internal/audit/domain"
	auditrepo "orgauth/backend/internal/audit/repository"
	invitationdomain "orgauth/backend/internal/invitation/domain"
	invitationrepo "orgauth/backend/internal/invitation/repository"
	membershipdomain "orgauth/backend/internal/membership/domain"
	membershiprepo "orgauth/backend/internal/membership/repository"
	organizationdomain "orgauth/backend/internal/organization/domain"
	organizationrepo "orgauth/backend/internal/organization/repository"
	passwordresetdomain "orgauth/backend/internal/passwordreset/domain"
	passwordresetrepo "orgauth/backend/internal/passwordreset/repository"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/store"
	userdomain "orgauth/backend/internal/user/domain"
	userrepo "orgauth/backend/internal/user/repository"
)

// Store is an in-memory store.Store. The zero value is not usable; call New.
type Store struct {
	mu       sync.Mutex
	state    *state
	audit    []auditdomain.AuditLog
	failNext error
}

var _ store.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{state: newState()}
}

// FailNextTx makes the next InTx call fail with err before running its function.
func (s *Store) FailNextTx(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return apperr.Wrap(apperr.CodeStoreUnavailable, "operation aborted", err)
	}
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	t := &tx{st: s.state.clone(), audit: s.audit}
	if err := fn(ctx, t); err != nil {
		return err
	}
	s.state = t.st
	s.audit = append(s.audit, t.pendingAudit...)
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return nil }

func (s *Store) Close() error { return nil }

type state struct {
	users       map[string]userdomain.User
	orgs        map[string]organizationdomain.Org
	memberships map[string]membershipdomain.Membership
	invitations map[string]invitationdomain.Invitation
	resets      map[string]passwordresetdomain.ResetToken
	apiTokens   map[string]apitokendomain.APIToken
}

func newState() *state {
	return &state{
		users:       map[string]userdomain.User{},
		orgs:        map[string]organizationdomain.Org{},
		memberships: map[string]membershipdomain.Membership{},
		invitations: map[string]invitationdomain.Invitation{},
		resets:      map[string]passwordresetdomain.ResetToken{},
		apiTokens:   map[string]apitokendomain.APIToken{},
	}
}

func (s *state) clone() *state {
	c := &state{
		users:       make(map[string]userdomain.User, len(s.users)),
		orgs:        make(map[string]organizationdomain.Org, len(s.orgs)),
		memberships: make(map[string]membershipdomain.Membership, len(s.memberships)),
		invitations: make(map[string]invitationdomain.Invitation, len(s.invitations)),
		resets:      make(map[string]passwordresetdomain.ResetToken, len(s.resets)),
		apiTokens:   make(map[string]apitokendomain.APIToken, len(s.apiTokens)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orgs {
		c.orgs[k] = v
	}
	for k, v := range s.memberships {
		c.memberships[k] = v
	}
	for k, v := range s.invitations {
		c.invitations[k] = v
	}
	for k, v := range s.resets {
		c.resets[k] = v
	}
	for k, v := range s.apiTokens {
		c.apiTokens[k] = copyAPIToken(v)
	}
	return c
}

type tx struct {
	st *state
	// audit is the committed log, read-only for the life of the transaction.
	audit        []auditdomain.AuditLog
	pendingAudit []auditdomain.AuditLog
}

func (t *tx) Users() userrepo.Repository { return userRepo{t.st} }
func (t *tx) Organizations() organizationrepo.Repository { return orgRepo{t.st} }
func (t *tx) Memberships() membershiprepo.Repository { return membershipRepo{t.st} }
func (t *tx) Invitations() invitationrepo.Repository { return invitationRepo{t.st} }
func (t *tx) ResetTokens() passwordresetrepo.Repository { return resetRepo{t.st} }
func (t *tx) APITokens() apitokenrepo.Repository { return apiTokenRepo{t.st} }
func (t *tx) AuditLogs() auditrepo.Repository { return auditRepo{t} }

func conflict(what string) error {
	return apperr.Newf(apperr.CodeConflict, "%s already exists", what)
}
