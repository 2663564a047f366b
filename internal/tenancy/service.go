// Package tenancy exposes the inbound operations of the authorization core.
//
// Every call expects the caller's identity in ctx (requestctx.WithIdentity,
// usually via Authenticate). Organization-scoped operations additionally need
// the active organization, resolved by Authenticate or SelectOrganization, and
// run behind the permission guard.
package tenancy

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apitokendomain "orgauth/backend/internal/apitoken/domain"
	apitokenservice "orgauth/backend/internal/apitoken/service"
	"orgauth/backend/internal/audit"
	auditdomain "orgauth/backend/internal/audit/domain"
	auditrepo "orgauth/backend/internal/audit/repository"
	identityservice "orgauth/backend/internal/identity/service"
	invitationdomain "orgauth/backend/internal/invitation/domain"
	invitationservice "orgauth/backend/internal/invitation/service"
	membershipdomain "orgauth/backend/internal/membership/domain"
	membershipservice "orgauth/backend/internal/membership/service"
	organizationdomain "orgauth/backend/internal/organization/domain"
	"orgauth/backend/internal/orgcontext"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/platform/rbac"
	"orgauth/backend/internal/requestctx"
	"orgauth/backend/internal/security"
	userdomain "orgauth/backend/internal/user/domain"
)

const instrumentationName = "orgauth/backend/internal/tenancy"

// Deps collects the services behind the facade. Evaluator defaults to rbac.RoleGrants;
// Tracer and Meter default to the global OpenTelemetry providers.
type Deps struct {
	Registry    *membershipservice.Registry
	Invitations *invitationservice.Lifecycle
	Auth        *identityservice.AuthService
	APITokens   *apitokenservice.Service
	AuditLogs   auditrepo.Repository
	Audit       audit.AuditLogger
	Resolver    *orgcontext.Resolver
	Evaluator   rbac.RoleEvaluator
	Tracer      trace.Tracer
	Meter       metric.Meter
	Log         *zap.Logger
}

// Service is the entry point used by transports and the admin CLI.
type Service struct {
	registry    *membershipservice.Registry
	invitations *invitationservice.Lifecycle
	auth        *identityservice.AuthService
	apiTokens   *apitokenservice.Service
	auditLogs   auditrepo.Repository
	audit       audit.AuditLogger
	resolver    *orgcontext.Resolver
	checker     rbac.Checker
	tracer      trace.Tracer
	calls       metric.Int64Counter
	latency     metric.Float64Histogram
	log         *zap.Logger
}

// New returns a Service. It fails only when the metric instruments cannot be created.
func New(d Deps) (*Service, error) {
	if d.Evaluator == nil {
		d.Evaluator = rbac.RoleGrants{}
	}
	if d.Tracer == nil {
		d.Tracer = otel.Tracer(instrumentationName)
	}
	if d.Meter == nil {
		d.Meter = otel.Meter(instrumentationName)
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Audit == nil {
		d.Audit = audit.Nop{}
	}
	calls, err := d.Meter.Int64Counter("orgauth.operations",
		metric.WithDescription("Inbound operations by name and result code."))
	if err != nil {
		return nil, err
	}
	latency, err := d.Meter.Float64Histogram("orgauth.operation.duration",
		metric.WithDescription("Inbound operation latency."),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}
	return &Service{
		registry:    d.Registry,
		invitations: d.Invitations,
		auth:        d.Auth,
		apiTokens:   d.APITokens,
		auditLogs:   d.AuditLogs,
		audit:       d.Audit,
		resolver:    d.Resolver,
		checker:     rbac.Checker{Getter: d.Registry, Evaluator: d.Evaluator},
		tracer:      d.Tracer,
		calls:       calls,
		latency:     latency,
		log:         d.Log,
	}, nil
}

// Authenticate attaches userID and the resolved active organization to ctx. orgOverride,
// when set, is tried before the user's cached organization.
func (s *Service) Authenticate(ctx context.Context, userID string, method requestctx.AuthMethod, orgOverride string) (context.Context, error) {
	ctx = requestctx.WithIdentity(ctx, userID, method)
	ctx, _, err := s.resolver.Attach(ctx, userID, orgOverride)
	return ctx, err
}

// Register creates an account.
func (s *Service) Register(ctx context.Context, email, password string) (*userdomain.User, error) {
	return instrument(s, ctx, "Register", func(ctx context.Context) (*userdomain.User, error) {
		return s.auth.Register(ctx, email, password)
	})
}

// Login returns a session scoped to orgID, or to the user's cached organization.
func (s *Service) Login(ctx context.Context, email, password, orgID string) (*security.Session, error) {
	return instrument(s, ctx, "Login", func(ctx context.Context) (*security.Session, error) {
		return s.auth.Login(ctx, email, password, orgID)
	})
}

// CreateOrganization creates an organization with the caller as its first admin and makes it
// the caller's active organization.
func (s *Service) CreateOrganization(ctx context.Context, name string) (*organizationdomain.Org, *membershipdomain.Membership, error) {
	type created struct {
		org *organizationdomain.Org
		m   *membershipdomain.Membership
	}
	res, err := instrument(s, ctx, "CreateOrganization", func(ctx context.Context) (created, error) {
		userID, err := caller(ctx)
		if err != nil {
			return created{}, err
		}
		org, m, err := s.registry.CreateOrganization(ctx, name, userID)
		return created{org, m}, err
	})
	return res.org, res.m, err
}

// SelectOrganization makes orgID the caller's current organization and returns ctx with it active.
func (s *Service) SelectOrganization(ctx context.Context, orgID string) (context.Context, *membershipdomain.Membership, error) {
	m, err := instrument(s, ctx, "SelectOrganization", func(ctx context.Context) (*membershipdomain.Membership, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		return s.resolver.Select(ctx, userID, orgID)
	})
	if err != nil {
		return ctx, nil, err
	}
	s.audit.LogEvent(ctx, m.OrgID, m.UserID, audit.ActionOrganizationSelected, audit.ResourceOrganization, "{}")
	return requestctx.WithActiveOrg(ctx, m.OrgID), m, nil
}

// ListMyOrganizations returns the caller's memberships.
func (s *Service) ListMyOrganizations(ctx context.Context) ([]*membershipdomain.Membership, error) {
	return instrument(s, ctx, "ListMyOrganizations", func(ctx context.Context) ([]*membershipdomain.Membership, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		return s.registry.ListUserOrganizations(ctx, userID)
	})
}

// InviteUser invites email to the active organization. Admin only.
func (s *Service) InviteUser(ctx context.Context, email string) (*invitationservice.CreateResult, error) {
	return instrument(s, ctx, "InviteUser", rbac.Guard(s.checker, membershipdomain.RoleAdmin,
		func(ctx context.Context, p rbac.Principal) (*invitationservice.CreateResult, error) {
			return s.invitations.Create(ctx, p.UserID, p.OrgID, email)
		}))
}

// RevokeInvitation revokes a pending invitation of the active organization. Admin only.
func (s *Service) RevokeInvitation(ctx context.Context, invitationID string) (*invitationdomain.Invitation, error) {
	return instrument(s, ctx, "RevokeInvitation", rbac.Guard(s.checker, membershipdomain.RoleAdmin,
		func(ctx context.Context, p rbac.Principal) (*invitationdomain.Invitation, error) {
			return s.invitations.Revoke(ctx, p.OrgID, p.UserID, invitationID)
		}))
}

// ListInvitations returns the active organization's pending invitations. Admin only.
func (s *Service) ListInvitations(ctx context.Context) ([]*invitationdomain.Invitation, error) {
	return instrument(s, ctx, "ListInvitations", rbac.Guard(s.checker, membershipdomain.RoleAdmin,
		func(ctx context.Context, p rbac.Principal) ([]*invitationdomain.Invitation, error) {
			return s.invitations.ListPending(ctx, p.OrgID)
		}))
}

// AcceptInvitation consumes token. A signed-in caller joins as themselves; otherwise creds
// are required and a session is returned.
func (s *Service) AcceptInvitation(ctx context.Context, token string, creds *invitationservice.Credentials) (*invitationservice.AcceptResult, error) {
	return instrument(s, ctx, "AcceptInvitation", func(ctx context.Context) (*invitationservice.AcceptResult, error) {
		userID, _ := requestctx.GetUserID(ctx)
		return s.invitations.Accept(ctx, token, userID, creds)
	})
}

// RemoveMember removes userID from the active organization. Admins may remove anyone;
// any member may remove themselves. The last member and the last admin cannot be removed.
func (s *Service) RemoveMember(ctx context.Context, userID string) error {
	_, err := instrument(s, ctx, "RemoveMember", func(ctx context.Context) (struct{}, error) {
		required := membershipdomain.RoleAdmin
		if self, _ := requestctx.GetUserID(ctx); self == userID {
			required = membershipdomain.RoleMember
		}
		return rbac.Guard(s.checker, required, func(ctx context.Context, p rbac.Principal) (struct{}, error) {
			return struct{}{}, s.registry.RemoveMember(ctx, userID, p.OrgID)
		})(ctx)
	})
	return err
}

// ChangeRole sets userID's role in the active organization. Admin only.
func (s *Service) ChangeRole(ctx context.Context, userID string, role membershipdomain.Role) (*membershipdomain.Membership, error) {
	return instrument(s, ctx, "ChangeRole", rbac.Guard(s.checker, membershipdomain.RoleAdmin,
		func(ctx context.Context, p rbac.Principal) (*membershipdomain.Membership, error) {
			return s.registry.ChangeRole(ctx, userID, p.OrgID, role)
		}))
}

// ListMembers returns the active organization's memberships. Any member.
func (s *Service) ListMembers(ctx context.Context) ([]*membershipdomain.Membership, error) {
	return instrument(s, ctx, "ListMembers", rbac.Guard(s.checker, membershipdomain.RoleMember,
		func(ctx context.Context, p rbac.Principal) ([]*membershipdomain.Membership, error) {
			return s.registry.ListMembers(ctx, p.OrgID)
		}))
}

// RequestPasswordReset emails a reset link when email belongs to an account. Unauthenticated.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	_, err := instrument(s, ctx, "RequestPasswordReset", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.auth.RequestPasswordReset(ctx, email)
	})
	return err
}

// ConfirmPasswordReset sets a new password using a reset token. Unauthenticated.
func (s *Service) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	_, err := instrument(s, ctx, "ConfirmPasswordReset", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.auth.ConfirmPasswordReset(ctx, token, newPassword)
	})
	return err
}

// IssueAPIToken issues an API token for the caller. The raw token is only in the result.
func (s *Service) IssueAPIToken(ctx context.Context, name string) (*apitokenservice.Issued, error) {
	return instrument(s, ctx, "IssueAPIToken", func(ctx context.Context) (*apitokenservice.Issued, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		return s.apiTokens.Issue(ctx, userID, name)
	})
}

// RevokeAPIToken revokes one of the caller's API tokens.
func (s *Service) RevokeAPIToken(ctx context.Context, id string) error {
	_, err := instrument(s, ctx, "RevokeAPIToken", func(ctx context.Context) (struct{}, error) {
		userID, err := caller(ctx)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, s.apiTokens.Revoke(ctx, userID, id)
	})
	return err
}

// ListAPITokens returns the caller's API tokens without their hashes.
func (s *Service) ListAPITokens(ctx context.Context) ([]*apitokendomain.APIToken, error) {
	return instrument(s, ctx, "ListAPITokens", func(ctx context.Context) ([]*apitokendomain.APIToken, error) {
		userID, err := caller(ctx)
		if err != nil {
			return nil, err
		}
		return s.apiTokens.List(ctx, userID)
	})
}

// MaxAuditPage caps the page size of ListAuditLog.
const MaxAuditPage = 200

// ListAuditLog returns the active organization's audit events, newest first. Admin only.
func (s *Service) ListAuditLog(ctx context.Context, limit, offset int32) ([]*auditdomain.AuditLog, error) {
	return instrument(s, ctx, "ListAuditLog", rbac.Guard(s.checker, membershipdomain.RoleAdmin,
		func(ctx context.Context, p rbac.Principal) ([]*auditdomain.AuditLog, error) {
			if s.auditLogs == nil {
				return nil, nil
			}
			if limit <= 0 || limit > MaxAuditPage {
				limit = MaxAuditPage
			}
			if offset < 0 {
				return nil, apperr.New(apperr.CodeInvalidArgument, "offset must not be negative")
			}
			return s.auditLogs.ListByOrg(ctx, p.OrgID, limit, offset)
		}))
}

func caller(ctx context.Context) (string, error) {
	userID, ok := requestctx.GetUserID(ctx)
	if !ok {
		return "", apperr.New(apperr.CodeUnauthenticated, "authentication required")
	}
	return userID, nil
}

// instrument runs fn inside a span and records its outcome.
func instrument[T any](s *Service, ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, "tenancy."+op)
	defer span.End()
	start := time.Now()

	res, err := fn(ctx)

	code := "OK"
	if err != nil {
		code = string(apperr.CodeOf(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, code)
	}
	if orgID, ok := requestctx.GetOrgID(ctx); ok {
		span.SetAttributes(attribute.String("org_id", orgID))
	}
	attrs := metric.WithAttributes(attribute.String("operation", op), attribute.String("code", code))
	s.calls.Add(ctx, 1, attrs)
	s.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)

	switch {
	case err == nil:
		s.log.Debug("operation", zap.String("op", op))
	case apperr.CodeOf(err) == apperr.CodeInternal:
		s.log.Error("operation failed", zap.String("op", op), zap.Error(err))
	default:
		s.log.Info("operation rejected", zap.String("op", op), zap.String("code", code), zap.Error(err))
	}
	return res, err
}
