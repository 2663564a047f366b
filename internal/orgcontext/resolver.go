// Package orgcontext resolves the active organization for a request.
//
// The cached current_org_id on the user is only a hint: every resolution
// re-checks a live membership, and the hint is rewritten best-effort after a
// successful lookup so the choice sticks across requests.
package orgcontext

import (
	"context"

	"go.uber.org/zap"

	membershipdomain "orgauth/backend/internal/membership/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/requestctx"
	"orgauth/backend/internal/store"
)

// Resolver resolves and selects the active organization.
type Resolver struct {
	store store.Store
	log   *zap.Logger
}

// NewResolver returns a Resolver over s. A nil log discards output.
func NewResolver(s store.Store, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{store: s, log: log}
}

// Resolve returns the caller's membership in the active organization: override when non-empty,
// otherwise the user's cached current org. It returns (nil, nil) when there is no candidate or
// the user is not a member of it. A user that does not exist is UNAUTHENTICATED.
func (r *Resolver) Resolve(ctx context.Context, userID, override string) (*membershipdomain.Membership, error) {
	var (
		m        *membershipdomain.Membership
		cached   string
		resolved bool
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.New(apperr.CodeUnauthenticated, "unknown user")
		}
		cached = u.CurrentOrgID
		candidate := override
		if candidate == "" {
			candidate = cached
		}
		if candidate == "" {
			return nil
		}
		resolved = true
		m, err = tx.Memberships().GetMembershipByUserAndOrg(ctx, userID, candidate)
		return err
	})
	if err != nil {
		return nil, err
	}
	switch {
	case m != nil && m.OrgID != cached:
		r.writeBack(ctx, userID, m.OrgID)
	case m == nil && resolved && override == "" && cached != "":
		// The cached org no longer has a membership behind it.
		r.writeBack(ctx, userID, "")
	}
	return m, nil
}

// Attach resolves the active organization and returns ctx carrying it. When nothing resolves
// the returned ctx carries no organization and guarded operations fail NO_ORGANIZATION_SELECTED.
func (r *Resolver) Attach(ctx context.Context, userID, override string) (context.Context, *membershipdomain.Membership, error) {
	m, err := r.Resolve(ctx, userID, override)
	if err != nil {
		return ctx, nil, err
	}
	if m == nil {
		return requestctx.WithActiveOrg(ctx, ""), nil, nil
	}
	return requestctx.WithActiveOrg(ctx, m.OrgID), m, nil
}

// Select makes orgID the user's current organization. Unlike the write-back in Resolve the
// update is part of the operation: it fails PERMISSION_DENIED when the user is not a member.
func (r *Resolver) Select(ctx context.Context, userID, orgID string) (*membershipdomain.Membership, error) {
	if orgID == "" {
		return nil, apperr.New(apperr.CodeInvalidArgument, "organization id is required")
	}
	var m *membershipdomain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.New(apperr.CodeUnauthenticated, "unknown user")
		}
		m, err = tx.Memberships().GetMembershipByUserAndOrg(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.New(apperr.CodePermissionDenied, "not a member of this organization")
		}
		if u.CurrentOrgID == orgID {
			return nil
		}
		return tx.Users().SetCurrentOrg(ctx, userID, orgID)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (r *Resolver) writeBack(ctx context.Context, userID, orgID string) {
	err := r.store.InTx(context.WithoutCancel(ctx), func(ctx context.Context, tx store.Tx) error {
		return tx.Users().SetCurrentOrg(ctx, userID, orgID)
	})
	if err != nil {
		r.log.Warn("orgcontext: failed to persist current org",
			zap.String("user_id", userID),
			zap.String("org_id", orgID),
			zap.Error(err))
	}
}
