// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Required when StoreDriver is postgres.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// StoreDriver selects the persistence backend: postgres or memory (local development only).
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	// StoreTimeoutRaw bounds every store transaction (e.g. "5s").
	StoreTimeoutRaw string `mapstructure:"STORE_TIMEOUT"`

	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file; used with JWT_PUBLIC_KEY for RS256/ES256.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file; used with JWT_PRIVATE_KEY.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the session token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// InvitationTTLRaw is how long an invitation may be accepted (default 168h).
	InvitationTTLRaw string `mapstructure:"INVITATION_TTL"`
	// PasswordResetTTLRaw is the reset token lifetime (default 30m).
	PasswordResetTTLRaw string `mapstructure:"PASSWORD_RESET_TTL"`
	// APITokenTTLRaw is the API token lifetime (default 720h).
	APITokenTTLRaw string `mapstructure:"API_TOKEN_TTL"`
	// RolePolicyFile optionally replaces the built-in role policy with a Rego module.
	RolePolicyFile string `mapstructure:"ROLE_POLICY_FILE"`

	// AppBaseURL prefixes the links placed in invitation and reset emails.
	AppBaseURL string `mapstructure:"APP_BASE_URL"`
	MailFrom   string `mapstructure:"MAIL_FROM"`
	// MailDriver is log, smtp, or sendgrid.
	MailDriver     string `mapstructure:"MAIL_DRIVER"`
	SMTPHostPort   string `mapstructure:"SMTP_HOST_PORT"`
	SMTPUser       string `mapstructure:"SMTP_USER"`
	SMTPPassword   string `mapstructure:"SMTP_PASSWORD"`
	// SMTPTLS is none, tls, or starttls.
	SMTPTLS        string `mapstructure:"SMTP_TLS"`
	SendGridAPIKey string `mapstructure:"SENDGRID_API_KEY"`

	// ExpirySweepSchedule is a six-field cron expression (seconds first) for the expiry jobs.
	ExpirySweepSchedule string `mapstructure:"EXPIRY_SWEEP_SCHEDULE"`

	LogLevel string `mapstructure:"LOG_LEVEL"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// OTLPEndpoint enables OpenTelemetry export when set.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STORE_DRIVER", StorePostgres)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "orgauth")
	v.SetDefault("JWT_AUDIENCE", "orgauth-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("INVITATION_TTL", "168h")
	v.SetDefault("PASSWORD_RESET_TTL", "30m")
	v.SetDefault("API_TOKEN_TTL", "720h")
	v.SetDefault("ROLE_POLICY_FILE", "")
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("MAIL_DRIVER", "log")
	v.SetDefault("SMTP_HOST_PORT", "")
	v.SetDefault("SMTP_USER", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_TLS", "starttls")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("EXPIRY_SWEEP_SCHEDULE", "0 */15 * * * *")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}

	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORE_DRIVER=postgres")
		}
	case StoreMemory:
		if c.Env == "production" {
			return errors.New("config: STORE_DRIVER=memory must not be used when APP_ENV=production")
		}
	default:
		return fmt.Errorf("config: unknown STORE_DRIVER %q", c.StoreDriver)
	}

	if c.BcryptCost == 0 {
		c.BcryptCost = 12
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	c.MailDriver = strings.ToLower(strings.TrimSpace(c.MailDriver))
	switch c.MailDriver {
	case "log":
	case "smtp":
		if c.SMTPHostPort == "" {
			return errors.New("config: SMTP_HOST_PORT must be set when MAIL_DRIVER=smtp")
		}
		switch c.SMTPTLS {
		case "none", "tls", "starttls":
		default:
			return fmt.Errorf("config: SMTP_TLS must be none, tls, or starttls, got %q", c.SMTPTLS)
		}
	case "sendgrid":
		if c.SendGridAPIKey == "" {
			return errors.New("config: SENDGRID_API_KEY must be set when MAIL_DRIVER=sendgrid")
		}
	default:
		return fmt.Errorf("config: unknown MAIL_DRIVER %q", c.MailDriver)
	}

	for key, raw := range map[string]string{
		"STORE_TIMEOUT":      c.StoreTimeoutRaw,
		"INVITATION_TTL":     c.InvitationTTLRaw,
		"PASSWORD_RESET_TTL": c.PasswordResetTTLRaw,
		"API_TOKEN_TTL":      c.APITokenTTLRaw,
	} {
		if d, err := time.ParseDuration(raw); err != nil || d <= 0 {
			return fmt.Errorf("config: %s must be a positive duration, got %q", key, raw)
		}
	}
	return nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return durationOr(c.JWTAccessTTL, 15*time.Minute)
}

// StoreTimeout returns STORE_TIMEOUT, 5s if unset.
func (c *Config) StoreTimeout() time.Duration {
	return durationOr(c.StoreTimeoutRaw, 5*time.Second)
}

// InvitationTTL returns INVITATION_TTL, 7 days if unset.
func (c *Config) InvitationTTL() time.Duration {
	return durationOr(c.InvitationTTLRaw, 7*24*time.Hour)
}

// PasswordResetTTL returns PASSWORD_RESET_TTL, 30m if unset.
func (c *Config) PasswordResetTTL() time.Duration {
	return durationOr(c.PasswordResetTTLRaw, 30*time.Minute)
}

// APITokenTTL returns API_TOKEN_TTL, 30 days if unset.
func (c *Config) APITokenTTL() time.Duration {
	return durationOr(c.APITokenTTLRaw, 30*24*time.Hour)
}

// AuthEnabled reports whether a signing key pair is configured.
func (c *Config) AuthEnabled() bool {
	return c.JWTPrivateKey != "" && c.JWTPublicKey != ""
}

func durationOr(raw string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
