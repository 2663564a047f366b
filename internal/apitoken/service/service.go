// Package service issues and verifies long-lived API tokens.
package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"orgauth/backend/internal/apitoken/domain"
	"orgauth/backend/internal/audit"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/security"
	"orgauth/backend/internal/store"
)

// DefaultTTL is the lifetime of a newly issued token.
const DefaultTTL = 30 * 24 * time.Hour

const maxNameLength = 100

// Issued is returned once by Issue. Token is the raw bearer value; it cannot be recovered later.
type Issued struct {
	APIToken *domain.APIToken
	Token    string
}

// Service manages API tokens.
type Service struct {
	store store.Store
	audit audit.AuditLogger
	log   *zap.Logger
	ttl   time.Duration
	now   func() time.Time
}

// NewService returns a Service. A non-positive ttl means DefaultTTL.
func NewService(s store.Store, auditLogger audit.AuditLogger, log *zap.Logger, ttl time.Duration) *Service {
	if auditLogger == nil {
		auditLogger = audit.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Service{store: s, audit: auditLogger, log: log, ttl: ttl, now: time.Now}
}

// Issue creates a token named name for userID.
func (s *Service) Issue(ctx context.Context, userID, name string) (*Issued, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return nil, apperr.New(apperr.CodeInvalidArgument, "token name must be 1-100 characters")
	}
	raw, hash, err := security.GenerateOpaqueToken()
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "generate api token", err)
	}
	now := s.now().UTC()
	t := &domain.APIToken{
		ID:        uuid.New().String(),
		UserID:    userID,
		Name:      name,
		TokenHash: hash,
		ExpiresAt: now.Add(s.ttl),
		CreatedAt: now,
	}
	err = s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return err
		}
		if u == nil {
			return apperr.New(apperr.CodeUnauthenticated, "unknown user")
		}
		return tx.APITokens().Create(ctx, t)
	})
	if err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, "", userID, audit.ActionAPITokenIssued, audit.ResourceAPIToken,
		audit.Metadata("token_id", t.ID, "name", name))
	return &Issued{APIToken: t, Token: raw}, nil
}

// Authenticate returns the owner of raw. UNAUTHENTICATED when the token is unknown, revoked,
// or expired. Last use is recorded best-effort.
func (s *Service) Authenticate(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", apperr.New(apperr.CodeUnauthenticated, "missing api token")
	}
	now := s.now().UTC()
	var t *domain.APIToken
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		t, err = tx.APITokens().GetByTokenHash(ctx, security.HashToken(raw))
		return err
	})
	if err != nil {
		return "", err
	}
	if t == nil || !security.TokenHashEqual(raw, t.TokenHash) || !t.Active(now) {
		return "", apperr.New(apperr.CodeUnauthenticated, "invalid api token")
	}
	err = s.store.InTx(context.WithoutCancel(ctx), func(ctx context.Context, tx store.Tx) error {
		return tx.APITokens().TouchLastUsed(ctx, t.ID, now)
	})
	if err != nil {
		s.log.Warn("apitoken: failed to record last use", zap.String("token_id", t.ID), zap.Error(err))
	}
	return t.UserID, nil
}

// Revoke revokes userID's token id. NOT_FOUND if the user has no such unrevoked token.
func (s *Service) Revoke(ctx context.Context, userID, id string) error {
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.APITokens().Revoke(ctx, id, userID, s.now().UTC())
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.CodeNotFound, "api token not found")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.audit.LogEvent(ctx, "", userID, audit.ActionAPITokenRevoked, audit.ResourceAPIToken, audit.Metadata("token_id", id))
	return nil
}

// List returns userID's tokens, newest first. Hashes are cleared.
func (s *Service) List(ctx context.Context, userID string) ([]*domain.APIToken, error) {
	var out []*domain.APIToken
	err := s.store.InTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.APITokens().ListByUser(ctx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, t := range out {
		t.TokenHash = ""
	}
	return out, nil
}
