package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	auditdomain "orgauth/backend/internal/audit/domain"
	invitationdomain "orgauth/backend/internal/invitation/domain"
	membershipdomain "orgauth/backend/internal/membership/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/store"
	userdomain "orgauth/backend/internal/user/domain"
)

func TestStore_RollbackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, &userdomain.User{ID: "u1", Email: "a@example.com", PasswordHash: "h"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}
	_ = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, _ := tx.Users().GetByID(ctx, "u1")
		if u != nil {
			t.Error("user should not survive a rolled back transaction")
		}
		return nil
	})
}

func TestStore_UniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	now := time.Now()

	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.Users().Create(ctx, &userdomain.User{ID: "u1", Email: "alice@example.com", PasswordHash: "h"}); err != nil {
			return err
		}
		return tx.Users().Create(ctx, &userdomain.User{ID: "u2", Email: "ALICE@example.com", PasswordHash: "h"})
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate email (case-insensitive): err = %v, want conflict", err)
	}

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		m := &membershipdomain.Membership{ID: "m1", UserID: "u1", OrgID: "o1", Role: membershipdomain.RoleAdmin}
		if err := tx.Memberships().CreateMembership(ctx, m); err != nil {
			return err
		}
		return tx.Memberships().CreateMembership(ctx, &membershipdomain.Membership{ID: "m2", UserID: "u1", OrgID: "o1", Role: membershipdomain.RoleMember})
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("duplicate membership: err = %v, want conflict", err)
	}

	err = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		inv := func(id, hash string) *invitationdomain.Invitation {
			return &invitationdomain.Invitation{ID: id, Email: "bob@example.com", OrgID: "o1", TokenHash: hash, Status: invitationdomain.StatusPending, CreatedAt: now}
		}
		if err := tx.Invitations().Create(ctx, inv("i1", "h1")); err != nil {
			return err
		}
		return tx.Invitations().Create(ctx, inv("i2", "h2"))
	})
	if !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second pending invitation: err = %v, want conflict", err)
	}
}

func TestStore_SerializesTransactions(t *testing.T) {
	s := New()
	ctx := context.Background()
	_ = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, &userdomain.User{ID: "u1", Email: "a@example.com", PasswordHash: "0"})
	})

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
				u, _ := tx.Users().GetByID(ctx, "u1")
				return tx.Users().UpdatePasswordHash(ctx, "u1", u.PasswordHash+"x", time.Now())
			})
		}()
	}
	wg.Wait()

	_ = s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, _ := tx.Users().GetByID(ctx, "u1")
		if len(u.PasswordHash) != workers+1 {
			t.Errorf("lost update: hash length = %d, want %d", len(u.PasswordHash), workers+1)
		}
		return nil
	})
}

func TestStore_CanceledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ran = true
		return nil
	})
	if !errors.Is(err, apperr.ErrStoreUnavailable) {
		t.Errorf("err = %v, want store unavailable", err)
	}
	if ran {
		t.Error("fn should not run on a canceled context")
	}
}

func TestStore_FailNextTx(t *testing.T) {
	s := New()
	want := apperr.New(apperr.CodeStoreUnavailable, "injected")
	s.FailNextTx(want)
	if err := s.InTx(context.Background(), func(context.Context, store.Tx) error { return nil }); err != want {
		t.Errorf("first InTx err = %v, want injected", err)
	}
	if err := s.InTx(context.Background(), func(context.Context, store.Tx) error { return nil }); err != nil {
		t.Errorf("second InTx err = %v, want nil", err)
	}
}

func TestAuditRepo_ListByOrgNewestFirst(t *testing.T) {
	s := New()
	repo := store.AuditRepository(s)
	ctx := context.Background()
	for _, action := range []string{"a", "b", "c"} {
		if err := repo.Create(ctx, auditEntry("o1", action)); err != nil {
			t.Fatal(err)
		}
	}
	_ = repo.Create(ctx, auditEntry("o2", "z"))

	list, err := repo.ListByOrg(ctx, "o1", 2, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].Action != "c" || list[1].Action != "b" {
		t.Errorf("unexpected page: %+v", list)
	}
}

func auditEntry(orgID, action string) *auditdomain.AuditLog {
	return &auditdomain.AuditLog{ID: orgID + "-" + action, OrgID: orgID, Action: action, CreatedAt: time.Now()}
}

func TestAuditRepo_EntriesFollowTransactionOutcome(t *testing.T) {
	s := New()
	ctx := context.Background()
	if err := store.AuditRepository(s).Create(ctx, auditEntry("o1", "kept")); err != nil {
		t.Fatal(err)
	}
	committed := &s.audit[0]

	boom := errors.New("boom")
	err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := tx.AuditLogs().Create(ctx, auditEntry("o1", "dropped")); err != nil {
			return err
		}
		list, err := tx.AuditLogs().ListByOrg(ctx, "o1", 0, 0)
		if err != nil {
			return err
		}
		if len(list) != 2 || list[0].Action != "dropped" || list[1].Action != "kept" {
			t.Errorf("in-tx view: %+v", list)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx err = %v, want boom", err)
	}

	// Unrelated transactions must not copy the committed log.
	if err := s.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return tx.Users().Create(ctx, &userdomain.User{ID: "u1", Email: "a@example.com", PasswordHash: "h"})
	}); err != nil {
		t.Fatal(err)
	}
	if &s.audit[0] != committed {
		t.Error("committed audit log was reallocated by a transaction that wrote no audit entries")
	}

	list, err := store.AuditRepository(s).ListByOrg(ctx, "o1", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Action != "kept" {
		t.Errorf("after rollback: %+v", list)
	}
}
