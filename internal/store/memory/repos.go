package memory

import (
	"context"
	"sort"
	"time"

	apitokendomain "orgauth/backend/internal/apitoken/domain"
	auditdomain "orgauth/backend/internal/audit/domain"
	invitationdomain "orgauth/backend/internal/invitation/domain"
	membershipdomain "orgauth/backend/internal/membership/domain"
	organizationdomain "orgauth/backend/internal/organization/domain"
	passwordresetdomain "orgauth/backend/internal/passwordreset/domain"
	userdomain "orgauth/backend/internal/user/domain"
)

type userRepo struct{ st *state }

func (r userRepo) GetByID(_ context.Context, id string) (*userdomain.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (r userRepo) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	email = userdomain.NormalizeEmail(email)
	for _, u := range r.st.users {
		if userdomain.NormalizeEmail(u.Email) == email {
			u := u
			return &u, nil
		}
	}
	return nil, nil
}

func (r userRepo) Create(ctx context.Context, u *userdomain.User) error {
	if _, ok := r.st.users[u.ID]; ok {
		return conflict("user")
	}
	if existing, _ := r.GetByEmail(ctx, u.Email); existing != nil {
		return conflict("user email")
	}
	r.st.users[u.ID] = *u
	return nil
}

func (r userRepo) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	if u, ok := r.st.users[id]; ok {
		u.PasswordHash = hash
		u.UpdatedAt = at
		r.st.users[id] = u
	}
	return nil
}

func (r userRepo) SetCurrentOrg(_ context.Context, id, orgID string) error {
	if u, ok := r.st.users[id]; ok {
		u.CurrentOrgID = orgID
		r.st.users[id] = u
	}
	return nil
}

type orgRepo struct{ st *state }

func (r orgRepo) GetOrganizationByID(_ context.Context, id string) (*organizationdomain.Org, error) {
	o, ok := r.st.orgs[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r orgRepo) GetOrganizationByName(_ context.Context, name string) (*organizationdomain.Org, error) {
	for _, o := range r.st.orgs {
		if o.Name == name {
			o := o
			return &o, nil
		}
	}
	return nil, nil
}

func (r orgRepo) CreateOrganization(ctx context.Context, o *organizationdomain.Org) error {
	if _, ok := r.st.orgs[o.ID]; ok {
		return conflict("organization")
	}
	if existing, _ := r.GetOrganizationByName(ctx, o.Name); existing != nil {
		return conflict("organization name")
	}
	r.st.orgs[o.ID] = *o
	return nil
}

// LockOrganization needs no lock: memory transactions are already serialized.
func (r orgRepo) LockOrganization(ctx context.Context, id string) (*organizationdomain.Org, error) {
	return r.GetOrganizationByID(ctx, id)
}

type membershipRepo struct{ st *state }

func (r membershipRepo) GetMembershipByUserAndOrg(_ context.Context, userID, orgID string) (*membershipdomain.Membership, error) {
	for _, m := range r.st.memberships {
		if m.UserID == userID && m.OrgID == orgID {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (r membershipRepo) ListMembershipsByOrg(_ context.Context, orgID string) ([]*membershipdomain.Membership, error) {
	return r.filter(func(m membershipdomain.Membership) bool { return m.OrgID == orgID }), nil
}

func (r membershipRepo) ListMembershipsByUser(_ context.Context, userID string) ([]*membershipdomain.Membership, error) {
	return r.filter(func(m membershipdomain.Membership) bool { return m.UserID == userID }), nil
}

func (r membershipRepo) CreateMembership(ctx context.Context, m *membershipdomain.Membership) error {
	if _, ok := r.st.memberships[m.ID]; ok {
		return conflict("membership")
	}
	if existing, _ := r.GetMembershipByUserAndOrg(ctx, m.UserID, m.OrgID); existing != nil {
		return conflict("membership")
	}
	r.st.memberships[m.ID] = *m
	return nil
}

func (r membershipRepo) DeleteByUserAndOrg(_ context.Context, userID, orgID string) error {
	for id, m := range r.st.memberships {
		if m.UserID == userID && m.OrgID == orgID {
			delete(r.st.memberships, id)
		}
	}
	return nil
}

func (r membershipRepo) UpdateRole(_ context.Context, userID, orgID string, role membershipdomain.Role) (*membershipdomain.Membership, error) {
	for id, m := range r.st.memberships {
		if m.UserID == userID && m.OrgID == orgID {
			m.Role = role
			r.st.memberships[id] = m
			return &m, nil
		}
	}
	return nil, nil
}

func (r membershipRepo) CountByOrg(_ context.Context, orgID string) (membershipdomain.Counts, error) {
	var c membershipdomain.Counts
	for _, m := range r.st.memberships {
		if m.OrgID != orgID {
			continue
		}
		c.Total++
		if m.Role == membershipdomain.RoleAdmin {
			c.Admins++
		}
	}
	return c, nil
}

func (r membershipRepo) filter(keep func(membershipdomain.Membership) bool) []*membershipdomain.Membership {
	var out []*membershipdomain.Membership
	for _, m := range r.st.memberships {
		if keep(m) {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type invitationRepo struct{ st *state }

func (r invitationRepo) GetByID(_ context.Context, id string) (*invitationdomain.Invitation, error) {
	inv, ok := r.st.invitations[id]
	if !ok {
		return nil, nil
	}
	return &inv, nil
}

func (r invitationRepo) GetByTokenHash(_ context.Context, tokenHash string) (*invitationdomain.Invitation, error) {
	for _, inv := range r.st.invitations {
		if inv.TokenHash == tokenHash {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (r invitationRepo) GetPendingByEmailAndOrg(_ context.Context, email, orgID string) (*invitationdomain.Invitation, error) {
	for _, inv := range r.st.invitations {
		if inv.Email == email && inv.OrgID == orgID && inv.Status == invitationdomain.StatusPending {
			inv := inv
			return &inv, nil
		}
	}
	return nil, nil
}

func (r invitationRepo) ListByOrg(_ context.Context, orgID string, status invitationdomain.Status) ([]*invitationdomain.Invitation, error) {
	var out []*invitationdomain.Invitation
	for _, inv := range r.st.invitations {
		if inv.OrgID == orgID && (status == "" || inv.Status == status) {
			inv := inv
			out = append(out, &inv)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r invitationRepo) Create(ctx context.Context, inv *invitationdomain.Invitation) error {
	if _, ok := r.st.invitations[inv.ID]; ok {
		return conflict("invitation")
	}
	if existing, _ := r.GetByTokenHash(ctx, inv.TokenHash); existing != nil {
		return conflict("invitation token")
	}
	if inv.Status == invitationdomain.StatusPending {
		if existing, _ := r.GetPendingByEmailAndOrg(ctx, inv.Email, inv.OrgID); existing != nil {
			return conflict("pending invitation")
		}
	}
	r.st.invitations[inv.ID] = *inv
	return nil
}

func (r invitationRepo) UpdateStatus(_ context.Context, id string, status invitationdomain.Status, acceptedBy string, at time.Time) (bool, error) {
	inv, ok := r.st.invitations[id]
	if !ok || inv.Status != invitationdomain.StatusPending {
		return false, nil
	}
	inv.Status = status
	inv.AcceptedBy = acceptedBy
	inv.UpdatedAt = at
	r.st.invitations[id] = inv
	return true, nil
}

func (r invitationRepo) ExpirePendingBefore(_ context.Context, cutoff, at time.Time) (int64, error) {
	var n int64
	for id, inv := range r.st.invitations {
		if inv.Status == invitationdomain.StatusPending && inv.CreatedAt.Before(cutoff) {
			inv.Status = invitationdomain.StatusExpired
			inv.UpdatedAt = at
			r.st.invitations[id] = inv
			n++
		}
	}
	return n, nil
}

type resetRepo struct{ st *state }

func (r resetRepo) Create(_ context.Context, t *passwordresetdomain.ResetToken) error {
	if _, ok := r.st.resets[t.TokenHash]; ok {
		return conflict("reset token")
	}
	r.st.resets[t.TokenHash] = *t
	return nil
}

func (r resetRepo) GetByTokenHash(_ context.Context, tokenHash string) (*passwordresetdomain.ResetToken, error) {
	t, ok := r.st.resets[tokenHash]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (r resetRepo) DeleteByUser(_ context.Context, userID string) error {
	for h, t := range r.st.resets {
		if t.UserID == userID {
			delete(r.st.resets, h)
		}
	}
	return nil
}

func (r resetRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	for h, t := range r.st.resets {
		if t.Expired(now) {
			delete(r.st.resets, h)
			n++
		}
	}
	return n, nil
}

type apiTokenRepo struct{ st *state }

func (r apiTokenRepo) Create(ctx context.Context, t *apitokendomain.APIToken) error {
	if _, ok := r.st.apiTokens[t.ID]; ok {
		return conflict("api token")
	}
	if existing, _ := r.GetByTokenHash(ctx, t.TokenHash); existing != nil {
		return conflict("api token")
	}
	r.st.apiTokens[t.ID] = copyAPIToken(*t)
	return nil
}

func (r apiTokenRepo) GetByTokenHash(_ context.Context, tokenHash string) (*apitokendomain.APIToken, error) {
	for _, t := range r.st.apiTokens {
		if t.TokenHash == tokenHash {
			c := copyAPIToken(t)
			return &c, nil
		}
	}
	return nil, nil
}

func (r apiTokenRepo) ListByUser(_ context.Context, userID string) ([]*apitokendomain.APIToken, error) {
	var out []*apitokendomain.APIToken
	for _, t := range r.st.apiTokens {
		if t.UserID == userID {
			c := copyAPIToken(t)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r apiTokenRepo) Revoke(_ context.Context, id, userID string, at time.Time) (bool, error) {
	t, ok := r.st.apiTokens[id]
	if !ok || t.UserID != userID || t.RevokedAt != nil {
		return false, nil
	}
	t.RevokedAt = &at
	r.st.apiTokens[id] = t
	return true, nil
}

func (r apiTokenRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	if t, ok := r.st.apiTokens[id]; ok {
		t.LastUsedAt = &at
		r.st.apiTokens[id] = t
	}
	return nil
}

func copyAPIToken(t apitokendomain.APIToken) apitokendomain.APIToken {
	if t.LastUsedAt != nil {
		v := *t.LastUsedAt
		t.LastUsedAt = &v
	}
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		t.RevokedAt = &v
	}
	return t
}

type auditRepo struct{ tx *tx }

func (r auditRepo) Create(_ context.Context, a *auditdomain.AuditLog) error {
	r.tx.pendingAudit = append(r.tx.pendingAudit, *a)
	return nil
}

// ListByOrg sees the committed log plus entries buffered by the same transaction.
func (r auditRepo) ListByOrg(_ context.Context, orgID string, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	var all []*auditdomain.AuditLog
	for _, entries := range [][]auditdomain.AuditLog{r.tx.pendingAudit, r.tx.audit} {
		for i := len(entries) - 1; i >= 0; i-- {
			if entries[i].OrgID == orgID {
				a := entries[i]
				all = append(all, &a)
			}
		}
	}
	if int(offset) >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && int(limit) < len(all) {
		all = all[:limit]
	}
	return all, nil
}
