// Package app wires configuration into the services shared by the binaries.
package app

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	apitokenservice "orgauth/backend/internal/apitoken/service"
	"orgauth/backend/internal/audit"
	"orgauth/backend/internal/config"
	"orgauth/backend/internal/db"
	"orgauth/backend/internal/email"
	identityservice "orgauth/backend/internal/identity/service"
	invitationservice "orgauth/backend/internal/invitation/service"
	"orgauth/backend/internal/jobs"
	membershipservice "orgauth/backend/internal/membership/service"
	"orgauth/backend/internal/orgcontext"
	"orgauth/backend/internal/policy/engine"
	"orgauth/backend/internal/security"
	"orgauth/backend/internal/store"
	"orgauth/backend/internal/store/memory"
	"orgauth/backend/internal/store/postgres"
	otelsetup "orgauth/backend/internal/telemetry/otel"
	"orgauth/backend/internal/tenancy"
)

// ServiceName identifies this process in telemetry.
const ServiceName = "orgauth"

// App holds the wired services. Close releases the store and flushes telemetry.
type App struct {
	Config      *config.Config
	Log         *zap.Logger
	Store       store.Store
	Tokens      *security.TokenProvider
	Policy      *engine.OPAEvaluator
	Registry    *membershipservice.Registry
	Resolver    *orgcontext.Resolver
	Invitations *invitationservice.Lifecycle
	Auth        *identityservice.AuthService
	APITokens   *apitokenservice.Service
	Tenancy     *tenancy.Service
	Jobs        *jobs.Runner
	Telemetry   *otelsetup.Providers
}

// New builds an App from cfg. The caller owns the returned App and must Close it.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{Config: cfg, Log: log}
	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	providers, err := otelsetup.NewProviders(ctx, cfg.OTLPEndpoint, ServiceName, cfg.OTLPInsecure, log)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	providers.SetGlobal()
	a.Telemetry = providers

	if a.Store, err = openStore(cfg, log); err != nil {
		return nil, err
	}
	if a.Tokens, err = tokenProvider(cfg, log); err != nil {
		return nil, err
	}
	if a.Policy, err = rolePolicy(ctx, cfg.RolePolicyFile); err != nil {
		return nil, err
	}

	sender, err := email.New(email.Options{
		Driver: cfg.MailDriver,
		From:   cfg.MailFrom,
		SMTP: email.SMTPServer{
			HostPort: cfg.SMTPHostPort,
			TLS:      cfg.SMTPTLS,
			User:     cfg.SMTPUser,
			Password: cfg.SMTPPassword,
		},
		SendGridAPIKey: cfg.SendGridAPIKey,
	}, log)
	if err != nil {
		return nil, err
	}

	var otelAudit audit.AuditLogger
	if cfg.OTLPEndpoint != "" {
		otelAudit = otelsetup.NewAuditEmitter(providers.LoggerProvider)
	}
	auditRepo := store.AuditRepository(a.Store)
	auditLogger := audit.Multi(audit.NewLogger(auditRepo, log), otelAudit)

	hasher := security.NewHasher(cfg.BcryptCost)
	links := email.Links{BaseURL: cfg.AppBaseURL}

	a.Registry = membershipservice.NewRegistry(a.Store, auditLogger, log)
	a.Resolver = orgcontext.NewResolver(a.Store, log)
	a.Invitations = invitationservice.NewLifecycle(invitationservice.Config{
		Store:    a.Store,
		Members:  a.Registry,
		Sender:   sender,
		Hasher:   hasher,
		Sessions: a.Tokens,
		Audit:    auditLogger,
		Log:      log,
		Links:    links,
		TTL:      cfg.InvitationTTL(),
	})
	a.Auth, err = identityservice.NewAuthService(identityservice.Config{
		Store:    a.Store,
		Hasher:   hasher,
		Sessions: a.Tokens,
		Resolver: a.Resolver,
		Sender:   sender,
		Audit:    auditLogger,
		Log:      log,
		Links:    links,
		ResetTTL: cfg.PasswordResetTTL(),
	})
	if err != nil {
		return nil, err
	}
	a.APITokens = apitokenservice.NewService(a.Store, auditLogger, log, cfg.APITokenTTL())
	a.Tenancy, err = tenancy.New(tenancy.Deps{
		Registry:    a.Registry,
		Invitations: a.Invitations,
		Auth:        a.Auth,
		APITokens:   a.APITokens,
		AuditLogs:   auditRepo,
		Audit:       auditLogger,
		Resolver:    a.Resolver,
		Evaluator:   a.Policy,
		Tracer:      providers.TracerProvider.Tracer(ServiceName),
		Meter:       providers.MeterProvider.Meter(ServiceName),
		Log:         log,
	})
	if err != nil {
		return nil, err
	}
	a.Jobs = jobs.NewRunner(a.Invitations, a.Auth, log, 0)

	ok = true
	return a, nil
}

// Close releases the store and flushes telemetry.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Auth != nil {
		errs = append(errs, a.Auth.Flush(ctx))
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	if a.Telemetry != nil {
		errs = append(errs, a.Telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func openStore(cfg *config.Config, log *zap.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		log.Warn("using in-memory store; data is lost on exit")
		return memory.New(), nil
	default:
		conn, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return postgres.New(conn, cfg.StoreTimeout()), nil
	}
}

// tokenProvider loads the configured signing keys. Outside production an ephemeral P-256 key
// is generated when none are configured, so sessions do not survive a restart.
func tokenProvider(cfg *config.Config, log *zap.Logger) (*security.TokenProvider, error) {
	var (
		signer crypto.Signer
		pub    crypto.PublicKey
		err    error
	)
	if cfg.AuthEnabled() {
		if signer, err = security.ParsePrivateKey(cfg.JWTPrivateKey); err != nil {
			return nil, fmt.Errorf("JWT_PRIVATE_KEY: %w", err)
		}
		if pub, err = security.ParsePublicKey(cfg.JWTPublicKey); err != nil {
			return nil, fmt.Errorf("JWT_PUBLIC_KEY: %w", err)
		}
	} else {
		if cfg.Env == "production" {
			return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY must be set in production")
		}
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		signer, pub = key, key.Public()
		log.Warn("no JWT keys configured; using an ephemeral signing key")
	}
	alg := security.KeyAlg(pub)
	if alg == "" {
		return nil, errors.New("JWT_PUBLIC_KEY: unsupported key type, want RSA or ECDSA P-256")
	}
	log.Debug("session signing key loaded", zap.String("alg", alg))
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}

func rolePolicy(ctx context.Context, path string) (*engine.OPAEvaluator, error) {
	var policy string
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ROLE_POLICY_FILE: %w", err)
		}
		policy = string(b)
	}
	return engine.NewOPAEvaluator(ctx, policy)
}
