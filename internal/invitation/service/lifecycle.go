// Package service implements the invitation lifecycle: issuing single-use
// invitation tokens, accepting them into a membership, revoking them, and
// expiring the ones nobody used in time.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgauth/backend/internal/audit"
	"orgauth/backend/internal/email"
	"orgauth/backend/internal/invitation/domain"
	membershipdomain "orgauth/backend/internal/membership/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/security"
	"orgauth/backend/internal/store"
	userdomain "orgauth/backend/internal/user/domain"
)

// MemberAdder creates a membership inside an open transaction. *membership/service.Registry implements it.
type MemberAdder interface {
	AddMemberTx(ctx context.Context, tx store.Tx, userID, orgID string, role membershipdomain.Role) (*membershipdomain.Membership, error)
}

// Credentials are supplied by an unauthenticated caller accepting an invitation.
// An empty Email defaults to the invited address.
type Credentials struct {
	Email    string
	Password string
}

// CreateResult is returned by Create. Token is the raw invitation token and is never stored.
// Warning is set when the invitation was persisted but the email could not be delivered.
type CreateResult struct {
	Invitation *domain.Invitation
	Token      string
	Warning    string
}

// AcceptResult is returned by Accept. Session is set only on the credentials path.
type AcceptResult struct {
	Invitation  *domain.Invitation
	Membership  *membershipdomain.Membership
	UserCreated bool
	Session     *security.Session
}

// Config collects the collaborators of a Lifecycle.
type Config struct {
	Store    store.Store
	Members  MemberAdder
	Sender   email.Sender
	Hasher   security.PasswordHasher
	Sessions security.SessionIssuer
	Audit    audit.AuditLogger
	Log      *zap.Logger
	Links    email.Links
	// TTL is how long a pending invitation may be accepted. Zero means domain.DefaultTTL.
	TTL time.Duration
}

// Lifecycle owns invitation state transitions.
type Lifecycle struct {
	store    store.Store
	members  MemberAdder
	sender   email.Sender
	hasher   security.PasswordHasher
	sessions security.SessionIssuer
	audit    audit.AuditLogger
	log      *zap.Logger
	links    email.Links
	ttl      time.Duration
	now      func() time.Time
}

// NewLifecycle returns a Lifecycle. Nil Audit and Log are replaced with no-ops; a nil Sender logs messages.
func NewLifecycle(cfg Config) *Lifecycle {
	l := &Lifecycle{
		store:    cfg.Store,
		members:  cfg.Members,
		sender:   cfg.Sender,
		hasher:   cfg.Hasher,
		sessions: cfg.Sessions,
		audit:    cfg.Audit,
		log:      cfg.Log,
		links:    cfg.Links,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	if l.log == nil {
		l.log = zap.NewNop()
	}
	if l.audit == nil {
		l.audit = audit.Nop{}
	}
	if l.sender == nil {
		l.sender = email.NewLogSender(l.log)
	}
	if l.ttl <= 0 {
		l.ttl = domain.DefaultTTL
	}
	return l
}

// TTL returns the configured invitation lifetime.
func (l *Lifecycle) TTL() time.Duration { return l.ttl }

// Create invites address to orgID on behalf of actorID. A pending invitation for the same
// address is superseded. The email is sent after commit; a delivery failure only sets Warning.
func (l *Lifecycle) Create(ctx context.Context, actorID, orgID, address string) (*CreateResult, error) {
	addr := userdomain.NormalizeEmail(address)
	if err := userdomain.ValidateEmail(addr); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	raw, hash, err := security.GenerateOpaqueToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "generate invitation token", err)
	}
	now := l.now().UTC()
	inv := &domain.Invitation{
		ID:        uuid.New().String(),
		Email:     addr,
		OrgID:     orgID,
		InviterID: actorID,
		TokenHash: hash,
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	var (
		orgName      string
		inviterEmail string
		superseded   *domain.Invitation
	)
	err = l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		org, err := tx.Organizations().LockOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return apperr.New(apperr.CodeNotFound, "organization not found")
		}
		orgName = org.Name
		if inviter, err := tx.Users().GetByID(ctx, actorID); err != nil {
			return err
		} else if inviter != nil {
			inviterEmail = inviter.Email
		}
		invitee, err := tx.Users().GetByEmail(ctx, addr)
		if err != nil {
			return err
		}
		if invitee != nil {
			m, err := tx.Memberships().GetMembershipByUserAndOrg(ctx, invitee.ID, orgID)
			if err != nil {
				return err
			}
			if m != nil {
				return apperr.New(apperr.CodeAlreadyMember, "user is already a member of this organization")
			}
		}
		prev, err := tx.Invitations().GetPendingByEmailAndOrg(ctx, addr, orgID)
		if err != nil {
			return err
		}
		if prev != nil {
			next := domain.StatusRevoked
			if prev.IsStale(now, l.ttl) {
				next = domain.StatusExpired
			}
			if _, err := tx.Invitations().UpdateStatus(ctx, prev.ID, next, "", now); err != nil {
				return err
			}
			prev.Status = next
			superseded = prev
		}
		return tx.Invitations().Create(ctx, inv)
	})
	if err != nil {
		return nil, err
	}
	if superseded != nil {
		l.log.Info("invitation superseded",
			zap.String("invitation_id", superseded.ID),
			zap.String("status", string(superseded.Status)))
	}
	l.audit.LogEvent(ctx, orgID, actorID, audit.ActionInvitationCreated, audit.ResourceInvitation,
		audit.Metadata("invitation_id", inv.ID, "email", addr))

	res := &CreateResult{Invitation: inv, Token: raw}
	subject, body := email.InvitationMessage(orgName, inviterEmail, l.links.InvitationLink(raw), now, inv.ExpiresAt(l.ttl))
	if err := l.sender.Send(ctx, addr, subject, body); err != nil {
		l.log.Warn("invitation email not delivered",
			zap.String("invitation_id", inv.ID),
			zap.String("org_id", orgID),
			zap.Error(err))
		res.Warning = "invitation created but the email could not be delivered"
	}
	return res, nil
}

// Lookup returns the invitation for rawToken. A stale pending invitation is persisted as
// expired and INVITATION_EXPIRED is returned.
func (l *Lifecycle) Lookup(ctx context.Context, rawToken string) (*domain.Invitation, error) {
	if rawToken == "" {
		return nil, apperr.New(apperr.CodeNotFound, "invitation not found")
	}
	return l.read(ctx, func(ctx context.Context, tx store.Tx) (*domain.Invitation, error) {
		return tx.Invitations().GetByTokenHash(ctx, security.HashToken(rawToken))
	})
}

func (l *Lifecycle) read(ctx context.Context, find func(context.Context, store.Tx) (*domain.Invitation, error)) (*domain.Invitation, error) {
	var (
		inv     *domain.Invitation
		expired bool
	)
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		inv, err = find(ctx, tx)
		if err != nil {
			return err
		}
		if inv == nil {
			return apperr.New(apperr.CodeNotFound, "invitation not found")
		}
		if inv.Status == domain.StatusExpired {
			return errInvitationExpired
		}
		expired, err = l.expireIfStale(ctx, tx, inv)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		l.logExpired(ctx, inv)
		return nil, errInvitationExpired
	}
	return inv, nil
}

// Accept consumes rawToken. An authenticated caller (userID non-empty) joins as themselves;
// otherwise creds identify an existing account or create a new one, and a session is returned.
func (l *Lifecycle) Accept(ctx context.Context, rawToken, userID string, creds *Credentials) (*AcceptResult, error) {
	if rawToken == "" {
		return nil, apperr.New(apperr.CodeNotFound, "invitation not found")
	}
	if userID == "" && creds == nil {
		return nil, apperr.New(apperr.CodeUnauthenticated, "sign in or supply credentials to accept the invitation")
	}
	var (
		res     = &AcceptResult{}
		expired bool
	)
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		inv, err := tx.Invitations().GetByTokenHash(ctx, security.HashToken(rawToken))
		if err != nil {
			return err
		}
		if inv != nil && inv.Status == domain.StatusExpired {
			return errInvitationExpired
		}
		if inv == nil || inv.Status != domain.StatusPending {
			return apperr.New(apperr.CodeNotFound, "invitation not found")
		}
		if expired, err = l.expireIfStale(ctx, tx, inv); err != nil || expired {
			res.Invitation = inv
			return err
		}

		var u *userdomain.User
		if userID != "" {
			u, err = tx.Users().GetByID(ctx, userID)
			if err != nil {
				return err
			}
			if u == nil {
				return apperr.New(apperr.CodeUnauthenticated, "unknown user")
			}
			if userdomain.NormalizeEmail(u.Email) != inv.Email {
				return apperr.New(apperr.CodeInvitationMismatch, "invitation was sent to a different email address")
			}
		} else {
			u, res.UserCreated, err = l.resolveCredentials(ctx, tx, inv, creds)
			if err != nil {
				return err
			}
		}

		existing, err := tx.Memberships().GetMembershipByUserAndOrg(ctx, u.ID, inv.OrgID)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CodeAlreadyMember, "already a member of this organization")
		}
		m, err := l.members.AddMemberTx(ctx, tx, u.ID, inv.OrgID, membershipdomain.RoleMember)
		if err != nil {
			return err
		}
		now := l.now().UTC()
		ok, err := tx.Invitations().UpdateStatus(ctx, inv.ID, domain.StatusAccepted, u.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.CodeNotFound, "invitation not found")
		}
		if u.CurrentOrgID == "" {
			if err := tx.Users().SetCurrentOrg(ctx, u.ID, inv.OrgID); err != nil {
				return err
			}
		}
		inv.Status = domain.StatusAccepted
		inv.AcceptedBy = u.ID
		inv.UpdatedAt = now
		res.Invitation = inv
		res.Membership = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		l.logExpired(ctx, res.Invitation)
		return nil, errInvitationExpired
	}

	m := res.Membership
	if res.UserCreated {
		l.audit.LogEvent(ctx, m.OrgID, m.UserID, audit.ActionUserRegistered, audit.ResourceUser,
			audit.Metadata("via", "invitation"))
	}
	l.audit.LogEvent(ctx, m.OrgID, m.UserID, audit.ActionInvitationAccepted, audit.ResourceInvitation,
		audit.Metadata("invitation_id", res.Invitation.ID))
	l.audit.LogEvent(ctx, m.OrgID, m.UserID, audit.ActionMemberAdded, audit.ResourceMembership,
		audit.Metadata("user_id", m.UserID, "role", string(m.Role)))

	if userID == "" {
		if l.sessions == nil {
			return nil, apperr.New(apperr.CodeInternal, "session issuer not configured")
		}
		s, err := l.sessions.IssueSession(m.UserID, m.OrgID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "issue session", err)
		}
		res.Session = s
	}
	return res, nil
}

// resolveCredentials returns the account the credentials name, creating it when unknown.
func (l *Lifecycle) resolveCredentials(ctx context.Context, tx store.Tx, inv *domain.Invitation, creds *Credentials) (*userdomain.User, bool, error) {
	addr := inv.Email
	if creds.Email != "" {
		addr = userdomain.NormalizeEmail(creds.Email)
		if addr != inv.Email {
			return nil, false, apperr.New(apperr.CodeInvitationMismatch, "invitation was sent to a different email address")
		}
	}
	u, err := tx.Users().GetByEmail(ctx, addr)
	if err != nil {
		return nil, false, err
	}
	if u != nil {
		if u.Status != userdomain.UserStatusActive || l.hasher.Compare(u.PasswordHash, []byte(creds.Password)) != nil {
			return nil, false, apperr.New(apperr.CodeInvalidCredentials, "invalid email or password")
		}
		return u, false, nil
	}
	if err := userdomain.ValidatePassword(creds.Password); err != nil {
		return nil, false, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	hash, err := l.hasher.Hash([]byte(creds.Password))
	if err != nil {
		return nil, false, apperr.Wrap(apperr.CodeInternal, "hash password", err)
	}
	now := l.now().UTC()
	u = &userdomain.User{
		ID:           uuid.New().String(),
		Email:        addr,
		PasswordHash: hash,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Users().Create(ctx, u); err != nil {
		return nil, false, err
	}
	return u, true, nil
}

// Revoke marks pending invitation id of orgID revoked. NOT_FOUND when it does not exist in
// orgID or is no longer pending; INVITATION_EXPIRED (persisted) when it went stale.
func (l *Lifecycle) Revoke(ctx context.Context, orgID, actorID, id string) (*domain.Invitation, error) {
	var (
		inv     *domain.Invitation
		expired bool
	)
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		inv, err = tx.Invitations().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if inv != nil && inv.OrgID == orgID && inv.Status == domain.StatusExpired {
			return errInvitationExpired
		}
		if inv == nil || inv.OrgID != orgID || inv.Status != domain.StatusPending {
			return apperr.New(apperr.CodeNotFound, "invitation not found")
		}
		if expired, err = l.expireIfStale(ctx, tx, inv); err != nil || expired {
			return err
		}
		now := l.now().UTC()
		ok, err := tx.Invitations().UpdateStatus(ctx, id, domain.StatusRevoked, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.CodeNotFound, "invitation not found")
		}
		inv.Status = domain.StatusRevoked
		inv.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	if expired {
		l.logExpired(ctx, inv)
		return nil, errInvitationExpired
	}
	l.audit.LogEvent(ctx, orgID, actorID, audit.ActionInvitationRevoked, audit.ResourceInvitation,
		audit.Metadata("invitation_id", id, "email", inv.Email))
	return inv, nil
}

// ListPending returns orgID's pending invitations, newest first. Stale ones are expired on the way.
func (l *Lifecycle) ListPending(ctx context.Context, orgID string) ([]*domain.Invitation, error) {
	var out []*domain.Invitation
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		list, err := tx.Invitations().ListByOrg(ctx, orgID, domain.StatusPending)
		if err != nil {
			return err
		}
		out = out[:0]
		for _, inv := range list {
			expired, err := l.expireIfStale(ctx, tx, inv)
			if err != nil {
				return err
			}
			if !expired {
				out = append(out, inv)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ExpireStale marks every pending invitation older than the TTL expired and reports how many changed.
func (l *Lifecycle) ExpireStale(ctx context.Context) (int64, error) {
	now := l.now().UTC()
	var n int64
	err := l.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.Invitations().ExpirePendingBefore(ctx, now.Add(-l.ttl), now)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		l.log.Info("expired stale invitations", zap.Int64("count", n))
	}
	return n, nil
}

var errInvitationExpired = apperr.New(apperr.CodeInvitationExpired, "invitation has expired")

// expireIfStale persists the pending → expired transition when inv is past the TTL.
// The caller commits the transaction and then reports INVITATION_EXPIRED.
func (l *Lifecycle) expireIfStale(ctx context.Context, tx store.Tx, inv *domain.Invitation) (bool, error) {
	now := l.now().UTC()
	if !inv.IsStale(now, l.ttl) {
		return false, nil
	}
	if _, err := tx.Invitations().UpdateStatus(ctx, inv.ID, domain.StatusExpired, "", now); err != nil {
		return false, err
	}
	inv.Status = domain.StatusExpired
	inv.UpdatedAt = now
	return true, nil
}

func (l *Lifecycle) logExpired(ctx context.Context, inv *domain.Invitation) {
	l.log.Info("invitation expired", zap.String("invitation_id", inv.ID), zap.String("org_id", inv.OrgID))
	l.audit.LogEvent(ctx, inv.OrgID, inv.InviterID, audit.ActionInvitationExpired, audit.ResourceInvitation,
		audit.Metadata("invitation_id", inv.ID))
}

