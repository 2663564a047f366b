// Package service implements password identity: signup, login, and the
// password-reset flow.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgauth/backend/internal/audit"
	"orgauth/backend/internal/email"
	membershipdomain "orgauth/backend/internal/membership/domain"
	passwordresetdomain "orgauth/backend/internal/passwordreset/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/security"
	"orgauth/backend/internal/store"
	userdomain "orgauth/backend/internal/user/domain"
)

// DefaultResetTTL is how long a password-reset token stays valid.
const DefaultResetTTL = 30 * time.Minute

// resetDeliveryTimeout bounds one background reset-email delivery.
const resetDeliveryTimeout = 30 * time.Second

// OrgResolver picks the organization a new session is scoped to. *orgcontext.Resolver implements it.
type OrgResolver interface {
	Resolve(ctx context.Context, userID, override string) (*membershipdomain.Membership, error)
}

// Config collects the collaborators of an AuthService.
type Config struct {
	Store    store.Store
	Hasher   security.PasswordHasher
	Sessions security.SessionIssuer
	Resolver OrgResolver
	Sender   email.Sender
	Audit    audit.AuditLogger
	Log      *zap.Logger
	Links    email.Links
	// ResetTTL is the password-reset token lifetime. Zero means DefaultResetTTL.
	ResetTTL time.Duration
}

// AuthService implements register, login, and password reset.
type AuthService struct {
	store    store.Store
	hasher   security.PasswordHasher
	sessions security.SessionIssuer
	resolver OrgResolver
	sender   email.Sender
	audit    audit.AuditLogger
	log      *zap.Logger
	links    email.Links
	resetTTL time.Duration
	now      func() time.Time

	// dummyHash is compared against for unknown users so login cost does not reveal accounts.
	dummyHash  string
	deliveries sync.WaitGroup
}

// NewAuthService returns an AuthService. Nil Audit and Log are replaced with no-ops; a nil Sender logs messages.
// It fails only when the hasher cannot produce the dummy hash used for unknown users.
func NewAuthService(cfg Config) (*AuthService, error) {
	s := &AuthService{
		store:    cfg.Store,
		hasher:   cfg.Hasher,
		sessions: cfg.Sessions,
		resolver: cfg.Resolver,
		sender:   cfg.Sender,
		audit:    cfg.Audit,
		log:      cfg.Log,
		links:    cfg.Links,
		resetTTL: cfg.ResetTTL,
		now:      time.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.audit == nil {
		s.audit = audit.Nop{}
	}
	if s.sender == nil {
		s.sender = email.NewLogSender(s.log)
	}
	if s.resetTTL <= 0 {
		s.resetTTL = DefaultResetTTL
	}
	dummy, err := s.hasher.Hash([]byte(uuid.New().String()))
	if err != nil {
		return nil, fmt.Errorf("dummy password hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Register creates an active user with the given email and password. CONFLICT if the
// email is taken (case-insensitively).
func (s *AuthService) Register(ctx context.Context, address, password string) (*userdomain.User, error) {
	addr := userdomain.NormalizeEmail(address)
	if err := userdomain.ValidateEmail(addr); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	if err := userdomain.ValidatePassword(password); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	hashed, err := s.hasher.Hash([]byte(password))
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "hash password", err)
	}
	now := s.now().UTC()
	u := &userdomain.User{
		ID:           uuid.New().String(),
		Email:        addr,
		PasswordHash: hashed,
		Status:       userdomain.UserStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := u.Validate(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.Users().GetByEmail(ctx, addr)
		if err != nil {
			return err
		}
		if existing != nil {
			return apperr.New(apperr.CodeConflict, "email already registered")
		}
		return tx.Users().Create(ctx, u)
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("user_id", u.ID))
	s.audit.LogEvent(ctx, "", u.ID, audit.ActionUserRegistered, audit.ResourceUser, audit.Metadata("via", "signup"))
	return u, nil
}

// Login verifies email and password and returns a session scoped to orgID, or to the user's
// cached organization when orgID is empty. Unknown users and wrong passwords both fail
// INVALID_CREDENTIALS after a bcrypt comparison. PERMISSION_DENIED if orgID is given and the
// user is not a member of it.
func (s *AuthService) Login(ctx context.Context, address, password, orgID string) (*security.Session, error) {
	addr := userdomain.NormalizeEmail(address)
	orgID = strings.TrimSpace(orgID)
	var u *userdomain.User
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().GetByEmail(ctx, addr)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil || u.Status != userdomain.UserStatusActive {
		_ = s.hasher.Compare(s.dummyHash, []byte(password))
		s.audit.LogEvent(ctx, "", "", audit.ActionLoginFailure, audit.ResourceUser, audit.Metadata("reason", "unknown_user"))
		return nil, apperr.New(apperr.CodeInvalidCredentials, "invalid email or password")
	}
	if err := s.hasher.Compare(u.PasswordHash, []byte(password)); err != nil {
		s.audit.LogEvent(ctx, "", u.ID, audit.ActionLoginFailure, audit.ResourceUser, audit.Metadata("reason", "bad_password"))
		return nil, apperr.New(apperr.CodeInvalidCredentials, "invalid email or password")
	}

	active := ""
	if s.resolver != nil {
		m, err := s.resolver.Resolve(ctx, u.ID, orgID)
		if err != nil {
			return nil, err
		}
		if m != nil {
			active = m.OrgID
		} else if orgID != "" {
			return nil, apperr.New(apperr.CodePermissionDenied, "not a member of the organization")
		}
	}
	sess, err := s.sessions.IssueSession(u.ID, active)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "issue session", err)
	}
	return sess, nil
}

// RequestPasswordReset emails a single-use reset link to address when it belongs to an active
// user. The result is identical whether or not the address is known: delivery happens in the
// background and failures are only logged, so neither the response nor its latency reveals which
// accounts exist. Earlier reset tokens are replaced. Flush waits for pending deliveries.
func (s *AuthService) RequestPasswordReset(ctx context.Context, address string) error {
	addr := userdomain.NormalizeEmail(address)
	if err := userdomain.ValidateEmail(addr); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	raw, hash, err := security.GenerateOpaqueToken()
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "generate reset token", err)
	}
	now := s.now().UTC()
	var userID string
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByEmail(ctx, addr)
		if err != nil {
			return err
		}
		if u == nil || u.Status != userdomain.UserStatusActive {
			return nil
		}
		if err := tx.ResetTokens().DeleteByUser(ctx, u.ID); err != nil {
			return err
		}
		userID = u.ID
		return tx.ResetTokens().Create(ctx, &passwordresetdomain.ResetToken{
			TokenHash: hash,
			UserID:    u.ID,
			ExpiresAt: now.Add(s.resetTTL),
			CreatedAt: now,
		})
	})
	if err != nil {
		return err
	}
	if userID == "" {
		s.log.Debug("password reset requested for unknown address")
		return nil
	}
	s.audit.LogEvent(ctx, "", userID, audit.ActionPasswordResetRequested, audit.ResourceUser, "{}")
	subject, body := email.PasswordResetMessage(s.links.PasswordResetLink(raw), s.resetTTL)
	s.deliveries.Add(1)
	go func(ctx context.Context) {
		defer s.deliveries.Done()
		ctx, cancel := context.WithTimeout(ctx, resetDeliveryTimeout)
		defer cancel()
		if err := s.sender.Send(ctx, addr, subject, body); err != nil {
			s.log.Warn("password reset email not delivered", zap.String("user_id", userID), zap.Error(err))
		}
	}(context.WithoutCancel(ctx))
	return nil
}

// Flush blocks until every queued reset email has been handed to the sender or ctx ends.
func (s *AuthService) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.deliveries.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ConfirmPasswordReset sets a new password for the owner of rawToken. INVALID_TOKEN when the token
// is unknown or already used, TOKEN_EXPIRED when it is past its expiry; neither failure changes
// anything. Success deletes every reset token of the user.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, rawToken, newPassword string) error {
	if rawToken == "" {
		return apperr.New(apperr.CodeInvalidToken, "invalid reset token")
	}
	if err := userdomain.ValidatePassword(newPassword); err != nil {
		return apperr.Wrap(apperr.CodeInvalidArgument, err.Error(), err)
	}
	hashed, err := s.hasher.Hash([]byte(newPassword))
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "hash password", err)
	}
	now := s.now().UTC()
	var userID string
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		t, err := tx.ResetTokens().GetByTokenHash(ctx, security.HashToken(rawToken))
		if err != nil {
			return err
		}
		if t == nil {
			return apperr.New(apperr.CodeInvalidToken, "invalid reset token")
		}
		if t.Expired(now) {
			return apperr.New(apperr.CodeTokenExpired, "reset token has expired")
		}
		if err := tx.Users().UpdatePasswordHash(ctx, t.UserID, hashed, now); err != nil {
			return err
		}
		userID = t.UserID
		return tx.ResetTokens().DeleteByUser(ctx, t.UserID)
	})
	if err != nil {
		return err
	}
	s.log.Info("password reset completed", zap.String("user_id", userID))
	s.audit.LogEvent(ctx, "", userID, audit.ActionPasswordResetCompleted, audit.ResourceUser, "{}")
	return nil
}

// PurgeExpiredResetTokens deletes reset tokens past their expiry and reports how many were removed.
func (s *AuthService) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		n, err = tx.ResetTokens().DeleteExpired(ctx, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.Info("purged expired reset tokens", zap.Int64("count", n))
	}
	return n, nil
}

// CurrentUser returns the user with id. UNAUTHENTICATED if it does not exist.
func (s *AuthService) CurrentUser(ctx context.Context, id string) (*userdomain.User, error) {
	var u *userdomain.User
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.Users().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.New(apperr.CodeUnauthenticated, "unknown user")
	}
	return u, nil
}
