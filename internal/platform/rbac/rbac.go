// Package rbac is the permission guard for organization-scoped operations.
package rbac

import (
	"context"
	"errors"

	"orgauth/backend/internal/membership/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/requestctx"
)

// OrgMembershipGetter returns a user's membership in an org, or (nil, nil) when there is none.
type OrgMembershipGetter interface {
	GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error)
}

// RoleEvaluator decides whether a held role satisfies a required one.
type RoleEvaluator interface {
	Allows(ctx context.Context, held, required domain.Role) (bool, error)
}

// RoleGrants is the built-in RoleEvaluator: admin satisfies every role.
type RoleGrants struct{}

func (RoleGrants) Allows(_ context.Context, held, required domain.Role) (bool, error) {
	return held.Grants(required), nil
}

// Principal is the caller that passed a permission check.
type Principal struct {
	UserID string
	OrgID  string
	Role   domain.Role
}

// RequirePermission checks that the caller in ctx holds required in the active organization.
// It has no side effects. Failures: UNAUTHENTICATED without a user, NO_ORGANIZATION_SELECTED
// without an active org, PERMISSION_DENIED without a membership or with an insufficient role.
func RequirePermission(ctx context.Context, getter OrgMembershipGetter, eval RoleEvaluator, required domain.Role) (Principal, error) {
	userID, ok := requestctx.GetUserID(ctx)
	if !ok {
		return Principal{}, apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	orgID, ok := requestctx.GetOrgID(ctx)
	if !ok {
		return Principal{}, apperr.New(apperr.CodeNoOrganizationSelected, "no organization selected")
	}
	m, err := getter.GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return Principal{}, passThrough(err, "resolve membership")
	}
	if m == nil {
		return Principal{}, apperr.New(apperr.CodePermissionDenied, "not a member of this organization")
	}
	if eval == nil {
		eval = RoleGrants{}
	}
	allowed, err := eval.Allows(ctx, m.Role, required)
	if err != nil {
		return Principal{}, passThrough(err, "evaluate role")
	}
	if !allowed {
		return Principal{}, apperr.Newf(apperr.CodePermissionDenied, "organization %s role required", required)
	}
	return Principal{UserID: userID, OrgID: orgID, Role: m.Role}, nil
}

// Checker binds a getter and evaluator so guards can be built per operation.
type Checker struct {
	Getter    OrgMembershipGetter
	Evaluator RoleEvaluator
}

// Require runs RequirePermission with c's collaborators.
func (c Checker) Require(ctx context.Context, required domain.Role) (Principal, error) {
	return RequirePermission(ctx, c.Getter, c.Evaluator, required)
}

// RequireOrgAdmin is Require(ctx, RoleAdmin).
func (c Checker) RequireOrgAdmin(ctx context.Context) (Principal, error) {
	return c.Require(ctx, domain.RoleAdmin)
}

// RequireOrgMember is Require(ctx, RoleMember); any role passes.
func (c Checker) RequireOrgMember(ctx context.Context) (Principal, error) {
	return c.Require(ctx, domain.RoleMember)
}

// Guard wraps op so that it only runs after the caller passes the check for required.
// When the check fails op is never invoked and the check's error is returned.
func Guard[T any](c Checker, required domain.Role, op func(ctx context.Context, p Principal) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		p, err := c.Require(ctx, required)
		if err != nil {
			var zero T
			return zero, err
		}
		return op(ctx, p)
	}
}

func passThrough(err error, what string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperr.Wrap(apperr.CodeInternal, what, err)
}
