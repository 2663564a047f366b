package orgcontext

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	membershipdomain "orgauth/backend/internal/membership/domain"
	organizationdomain "orgauth/backend/internal/organization/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/requestctx"
	"orgauth/backend/internal/store"
	"orgauth/backend/internal/store/memory"
	userdomain "orgauth/backend/internal/user/domain"
)

func seed(t *testing.T, s store.Store, currentOrg string, memberOf ...string) {
	t.Helper()
	err := s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, id := range []string{"org-1", "org-2"} {
			if err := tx.Organizations().CreateOrganization(ctx, &organizationdomain.Org{ID: id, Name: id}); err != nil {
				return err
			}
		}
		if err := tx.Users().Create(ctx, &userdomain.User{ID: "u1", Email: "u1@example.com", PasswordHash: "h", CurrentOrgID: currentOrg}); err != nil {
			return err
		}
		for _, orgID := range memberOf {
			m := &membershipdomain.Membership{ID: "m-" + orgID, UserID: "u1", OrgID: orgID, Role: membershipdomain.RoleMember}
			if err := tx.Memberships().CreateMembership(ctx, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func currentOrg(t *testing.T, s store.Store) string {
	t.Helper()
	var org string
	_ = s.InTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByID(ctx, "u1")
		if err != nil || u == nil {
			t.Fatalf("load user: %v", err)
		}
		org = u.CurrentOrgID
		return nil
	})
	return org
}

func TestResolve_UsesCachedOrg(t *testing.T) {
	s := memory.New()
	seed(t, s, "org-1", "org-1")
	m, err := NewResolver(s, nil).Resolve(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m == nil || m.OrgID != "org-1" {
		t.Fatalf("Resolve = %+v, want org-1", m)
	}
}

func TestResolve_OverrideWinsAndSticks(t *testing.T) {
	s := memory.New()
	seed(t, s, "org-1", "org-1", "org-2")
	m, err := NewResolver(s, nil).Resolve(context.Background(), "u1", "org-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m == nil || m.OrgID != "org-2" {
		t.Fatalf("Resolve = %+v, want org-2", m)
	}
	if got := currentOrg(t, s); got != "org-2" {
		t.Errorf("current org = %q, want org-2 written back", got)
	}
}

func TestResolve_StaleCacheReturnsNone(t *testing.T) {
	s := memory.New()
	// Cached org-1 but the membership there is gone.
	seed(t, s, "org-1", "org-2")
	m, err := NewResolver(s, nil).Resolve(context.Background(), "u1", "")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m != nil {
		t.Fatalf("Resolve = %+v, want none for stale cache", m)
	}
	if got := currentOrg(t, s); got != "" {
		t.Errorf("current org = %q, want stale hint cleared", got)
	}
}

func TestResolve_OverrideNotMember(t *testing.T) {
	s := memory.New()
	seed(t, s, "org-1", "org-1")
	m, err := NewResolver(s, nil).Resolve(context.Background(), "u1", "org-2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if m != nil {
		t.Fatalf("Resolve = %+v, want none", m)
	}
	if got := currentOrg(t, s); got != "org-1" {
		t.Errorf("failed override must not touch the cache, got %q", got)
	}
}

func TestResolve_NoCandidate(t *testing.T) {
	s := memory.New()
	seed(t, s, "", "org-1")
	m, err := NewResolver(s, nil).Resolve(context.Background(), "u1", "")
	if err != nil || m != nil {
		t.Fatalf("Resolve = %+v, %v; want none", m, err)
	}
}

func TestResolve_UnknownUser(t *testing.T) {
	s := memory.New()
	_, err := NewResolver(s, nil).Resolve(context.Background(), "ghost", "org-1")
	if !errors.Is(err, apperr.ErrUnauthenticated) {
		t.Errorf("err = %v, want unauthenticated", err)
	}
}

func TestResolve_StoreUnavailable(t *testing.T) {
	s := memory.New()
	seed(t, s, "org-1", "org-1")
	s.FailNextTx(apperr.New(apperr.CodeStoreUnavailable, "down"))
	_, err := NewResolver(s, nil).Resolve(context.Background(), "u1", "")
	if !apperr.IsRetryable(err) {
		t.Errorf("err = %v, want retryable", err)
	}
}

// failAfter fails every InTx call after the first n succeed.
type failAfter struct {
	store.Store
	n int
}

func (f *failAfter) InTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if f.n <= 0 {
		return apperr.New(apperr.CodeStoreUnavailable, "down")
	}
	f.n--
	return f.Store.InTx(ctx, fn)
}

func TestResolve_WriteBackFailureIsLogged(t *testing.T) {
	mem := memory.New()
	seed(t, mem, "org-1", "org-1", "org-2")
	core, logs := observer.New(zap.WarnLevel)
	r := NewResolver(&failAfter{Store: mem, n: 1}, zap.New(core))

	m, err := r.Resolve(context.Background(), "u1", "org-2")
	if err != nil {
		t.Fatalf("Resolve should succeed despite write-back failure: %v", err)
	}
	if m == nil || m.OrgID != "org-2" {
		t.Fatalf("Resolve = %+v, want org-2", m)
	}
	if logs.Len() != 1 {
		t.Errorf("warn logs = %d, want 1", logs.Len())
	}
	if got := currentOrg(t, mem); got != "org-1" {
		t.Errorf("current org = %q, want unchanged org-1", got)
	}
}

func TestAttach(t *testing.T) {
	s := memory.New()
	seed(t, s, "org-1", "org-1")
	r := NewResolver(s, nil)

	ctx, m, err := r.Attach(context.Background(), "u1", "")
	if err != nil || m == nil {
		t.Fatalf("Attach: %+v, %v", m, err)
	}
	if orgID, ok := requestctx.GetOrgID(ctx); !ok || orgID != "org-1" {
		t.Errorf("ctx org = %q, %v", orgID, ok)
	}

	ctx, m, err = r.Attach(ctx, "u1", "org-2")
	if err != nil || m != nil {
		t.Fatalf("Attach non-member: %+v, %v", m, err)
	}
	if _, ok := requestctx.GetOrgID(ctx); ok {
		t.Error("ctx should carry no org after failed resolution")
	}
}

func TestSelect(t *testing.T) {
	s := memory.New()
	seed(t, s, "org-1", "org-1", "org-2")
	r := NewResolver(s, nil)
	ctx := context.Background()

	m, err := r.Select(ctx, "u1", "org-2")
	if err != nil || m == nil || m.OrgID != "org-2" {
		t.Fatalf("Select = %+v, %v", m, err)
	}
	if got := currentOrg(t, s); got != "org-2" {
		t.Errorf("current org = %q, want org-2", got)
	}

	if _, err := r.Select(ctx, "u1", "org-3"); !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("Select non-member: err = %v, want permission denied", err)
	}
	if _, err := r.Select(ctx, "u1", ""); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("Select empty: err = %v, want invalid argument", err)
	}
	if got := currentOrg(t, s); got != "org-2" {
		t.Errorf("failed selects must not change current org, got %q", got)
	}
}
