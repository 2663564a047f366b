// Package service implements the membership registry: organizations, their
// members, and the invariants that every organization keeps at least one
// member and at least one admin.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgauth/backend/internal/audit"
	"orgauth/backend/internal/membership/domain"
	organizationdomain "orgauth/backend/internal/organization/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/requestctx"
	"orgauth/backend/internal/store"
)

// Registry owns the organization/membership relation. Every mutation locks the
// organization row before reading counts, so concurrent removals and demotions
// on one organization are serialized.
type Registry struct {
	store store.Store
	audit audit.AuditLogger
	log   *zap.Logger
	now   func() time.Time
}

// NewRegistry returns a Registry. Nil audit and log collaborators are replaced with no-ops.
func NewRegistry(s store.Store, auditLogger audit.AuditLogger, log *zap.Logger) *Registry {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{store: s, audit: auditLogger, log: log, now: time.Now}
}

// CreateOrganization creates an organization named name with ownerID as its first admin
// and makes it the owner's current organization. Both rows are written in one transaction.
func (r *Registry) CreateOrganization(ctx context.Context, name, ownerID string) (*organizationdomain.Org, *domain.Membership, error) {
	now := r.now().UTC()
	org := &organizationdomain.Org{ID: uuid.New().String(), Name: name, CreatedAt: now}
	if err := org.Validate(); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	var m *domain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		owner, err := tx.Users().GetByID(ctx, ownerID)
		if err != nil {
			return err
		}
		if owner == nil {
			return apperr.New(apperr.CodeNotFound, "user not found")
		}
		existing, err := tx.Organizations().GetOrganizationByName(ctx, org.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.Newf(apperr.CodeConflict, "organization %q already exists", org.Name)
		}
		if err := tx.Organizations().CreateOrganization(ctx, org); err != nil {
			return err
		}
		m = &domain.Membership{ID: uuid.New().String(), UserID: ownerID, OrgID: org.ID, Role: domain.RoleAdmin, CreatedAt: now}
		if err := tx.Memberships().CreateMembership(ctx, m); err != nil {
			return err
		}
		return tx.Users().SetCurrentOrg(ctx, ownerID, org.ID)
	})
	if err != nil {
		return nil, nil, err
	}
	r.log.Info("organization created", zap.String("org_id", org.ID), zap.String("owner_id", ownerID))
	r.audit.LogEvent(ctx, org.ID, ownerID, audit.ActionOrganizationCreated, audit.ResourceOrganization,
		audit.Metadata("name", org.Name))
	return org, m, nil
}

// AddMember adds userID to orgID with role. CONFLICT if the pair already has a membership.
func (r *Registry) AddMember(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error) {
	var m *domain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		m, err = r.AddMemberTx(ctx, tx, userID, orgID, role)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.audit.LogEvent(ctx, orgID, actor(ctx, userID), audit.ActionMemberAdded, audit.ResourceMembership,
		audit.Metadata("user_id", userID, "role", string(role)))
	return m, nil
}

// AddMemberTx is AddMember inside the caller's transaction. The caller is responsible for auditing.
func (r *Registry) AddMemberTx(ctx context.Context, tx store.Tx, userID, orgID string, role domain.Role) (*domain.Membership, error) {
	if !role.Valid() {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown role %q", role)
	}
	if _, err := lockOrg(ctx, tx, orgID); err != nil {
		return nil, err
	}
	u, err := tx.Users().GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.CodeNotFound, "user not found")
	}
	existing, err := tx.Memberships().GetMembershipByUserAndOrg(ctx, userID, orgID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.New(apperr.CodeConflict, "user is already a member of this organization")
	}
	m := &domain.Membership{ID: uuid.New().String(), UserID: userID, OrgID: orgID, Role: role, CreatedAt: r.now().UTC()}
	if err := tx.Memberships().CreateMembership(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// RemoveMember deletes userID's membership in orgID. NOT_FOUND if absent; INVARIANT_VIOLATION
// if it is the organization's last membership or its last admin, self-removal included.
func (r *Registry) RemoveMember(ctx context.Context, userID, orgID string) error {
	var removed *domain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := lockOrg(ctx, tx, orgID); err != nil {
			return err
		}
		m, err := tx.Memberships().GetMembershipByUserAndOrg(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.New(apperr.CodeNotFound, "membership not found")
		}
		counts, err := tx.Memberships().CountByOrg(ctx, orgID)
		if err != nil {
			return err
		}
		if counts.Total <= 1 {
			return apperr.New(apperr.CodeInvariantViolation, "cannot remove the last member of an organization")
		}
		if m.Role == domain.RoleAdmin && counts.Admins <= 1 {
			return apperr.New(apperr.CodeInvariantViolation, "cannot remove the last admin of an organization")
		}
		if err := tx.Memberships().DeleteByUserAndOrg(ctx, userID, orgID); err != nil {
			return err
		}
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u != nil && u.CurrentOrgID == orgID {
			if err := tx.Users().SetCurrentOrg(ctx, userID, ""); err != nil {
				return err
			}
		}
		removed = m
		return nil
	})
	if err != nil {
		return err
	}
	r.audit.LogEvent(ctx, orgID, actor(ctx, userID), audit.ActionMemberRemoved, audit.ResourceMembership,
		audit.Metadata("user_id", userID, "role", string(removed.Role)))
	return nil
}

// ChangeRole sets userID's role in orgID. NOT_FOUND if absent; INVARIANT_VIOLATION when demoting
// the last admin. An unchanged role is a no-op that returns the current membership.
func (r *Registry) ChangeRole(ctx context.Context, userID, orgID string, role domain.Role) (*domain.Membership, error) {
	if !role.Valid() {
		return nil, apperr.Newf(apperr.CodeInvalidArgument, "unknown role %q", role)
	}
	var (
		updated *domain.Membership
		from    domain.Role
	)
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := lockOrg(ctx, tx, orgID); err != nil {
			return err
		}
		m, err := tx.Memberships().GetMembershipByUserAndOrg(ctx, userID, orgID)
		if err != nil {
			return err
		}
		if m == nil {
			return apperr.New(apperr.CodeNotFound, "membership not found")
		}
		from = m.Role
		if m.Role == role {
			updated = m
			return nil
		}
		if m.Role == domain.RoleAdmin {
			counts, err := tx.Memberships().CountByOrg(ctx, orgID)
			if err != nil {
				return err
			}
			if counts.Admins <= 1 {
				return apperr.New(apperr.CodeInvariantViolation, "cannot demote the last admin of an organization")
			}
		}
		updated, err = tx.Memberships().UpdateRole(ctx, userID, orgID, role)
		if err != nil {
			return err
		}
		if updated == nil {
			return apperr.New(apperr.CodeNotFound, "membership not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if from != role {
		r.audit.LogEvent(ctx, orgID, actor(ctx, userID), audit.ActionRoleChanged, audit.ResourceMembership,
			audit.Metadata("user_id", userID, "from", string(from), "to", string(role)))
	}
	return updated, nil
}

// ListMembers returns every membership of orgID. NOT_FOUND if the organization does not exist.
func (r *Registry) ListMembers(ctx context.Context, orgID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		org, err := tx.Organizations().GetOrganizationByID(ctx, orgID)
		if err != nil {
			return err
		}
		if org == nil {
			return apperr.New(apperr.CodeNotFound, "organization not found")
		}
		out, err = tx.Memberships().ListMembershipsByOrg(ctx, orgID)
		return err
	})
	return out, err
}

// ListUserOrganizations returns every membership held by userID.
func (r *Registry) ListUserOrganizations(ctx context.Context, userID string) ([]*domain.Membership, error) {
	var out []*domain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Memberships().ListMembershipsByUser(ctx, userID)
		return err
	})
	return out, err
}

// GetOrganization returns the organization with id. NOT_FOUND if absent.
func (r *Registry) GetOrganization(ctx context.Context, id string) (*organizationdomain.Org, error) {
	var org *organizationdomain.Org
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		org, err = tx.Organizations().GetOrganizationByID(ctx, id)
		if err != nil {
			return err
		}
		if org == nil {
			return apperr.New(apperr.CodeNotFound, "organization not found")
		}
		return nil
	})
	return org, err
}

// GetMembershipByUserAndOrg returns the membership or (nil, nil). It satisfies rbac.OrgMembershipGetter.
func (r *Registry) GetMembershipByUserAndOrg(ctx context.Context, userID, orgID string) (*domain.Membership, error) {
	var m *domain.Membership
	err := r.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		m, err = tx.Memberships().GetMembershipByUserAndOrg(ctx, userID, orgID)
		return err
	})
	return m, err
}

func lockOrg(ctx context.Context, tx store.Tx, orgID string) (*organizationdomain.Org, error) {
	org, err := tx.Organizations().LockOrganization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	if org == nil {
		return nil, apperr.New(apperr.CodeNotFound, "organization not found")
	}
	return org, nil
}

// actor is the authenticated caller, or fallback for calls made outside a request.
func actor(ctx context.Context, fallback string) string {
	if id, ok := requestctx.GetUserID(ctx); ok {
		return id
	}
	return fallback
}
