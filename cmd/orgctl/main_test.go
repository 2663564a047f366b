package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"orgauth/backend/internal/app"
	"orgauth/backend/internal/config"
	"orgauth/backend/internal/platform/apperr"
)

// useMemoryApp points the commands at one in-memory App for the test and captures stdout.
func useMemoryApp(t *testing.T) *bytes.Buffer {
	t.Helper()
	ctx := context.Background()
	a, err := app.New(ctx, &config.Config{
		StoreDriver: config.StoreMemory,
		BcryptCost:  4,
		JWTIssuer:   "orgauth",
		JWTAudience: "orgauth-api",
		AppBaseURL:  "http://localhost:3000",
		MailDriver:  "log",
	}, nil)
	if err != nil {
		t.Fatalf("app.New: %v", err)
	}
	prevOpen, prevOut := openApp, stdout
	var buf bytes.Buffer
	openApp = func(context.Context) (*app.App, func(), error) { return a, func() {}, nil }
	stdout = &buf
	t.Cleanup(func() {
		openApp, stdout = prevOpen, prevOut
		_ = a.Close(ctx)
	})
	return &buf
}

func run(t *testing.T, args ...string) error {
	t.Helper()
	return newCommand().Run(context.Background(), append([]string{"orgctl"}, args...))
}

func TestOrgctl_InviteFlow(t *testing.T) {
	out := useMemoryApp(t)
	admin := []string{"--email", "admin@example.com", "--password", "secret123"}

	if err := run(t, append(admin, "user", "register")...); err != nil {
		t.Fatalf("user register: %v", err)
	}
	if err := run(t, append(admin, "org", "create", "Acme")...); err != nil {
		t.Fatalf("org create: %v", err)
	}
	if !strings.Contains(out.String(), "Acme") {
		t.Errorf("org create output = %q", out.String())
	}

	out.Reset()
	if err := run(t, append(admin, "--output", "json-raw", "invitation", "create", "bob@example.com")...); err != nil {
		t.Fatalf("invitation create: %v", err)
	}
	var created struct{ Token string }
	if err := json.Unmarshal(out.Bytes(), &created); err != nil || created.Token == "" {
		t.Fatalf("decode invitation output %q: %v", out.String(), err)
	}

	if err := run(t, "--email", "bob@example.com", "--password", "bobpass99", "invitation", "accept", created.Token); err != nil {
		t.Fatalf("invitation accept: %v", err)
	}

	out.Reset()
	if err := run(t, append(admin, "--output", "no-header", "member", "list")...); err != nil {
		t.Fatalf("member list: %v", err)
	}
	if got := strings.Count(out.String(), "member") + strings.Count(out.String(), "admin"); got != 2 {
		t.Errorf("member list output = %q, want two rows", out.String())
	}

	err := run(t, "--email", "bob@example.com", "--password", "bobpass99", "invitation", "create", "carol@example.com")
	if !errors.Is(err, apperr.ErrPermissionDenied) {
		t.Errorf("member invite: err = %v, want permission denied", err)
	}

	out.Reset()
	if err := run(t, append(admin, "audit", "list", "--limit", "20")...); err != nil {
		t.Fatalf("audit list: %v", err)
	}
	for _, action := range []string{"organization_created", "invitation_created", "invitation_accepted"} {
		if !strings.Contains(out.String(), action) {
			t.Errorf("audit list output missing %s:\n%s", action, out.String())
		}
	}
}

func TestOrgctl_Errors(t *testing.T) {
	useMemoryApp(t)

	if err := run(t, "member", "list"); err == nil || !strings.Contains(err.Error(), "--email") {
		t.Errorf("missing credentials: err = %v", err)
	}
	if err := run(t, "--email", "a@example.com", "--password", "x", "org", "create"); err == nil {
		t.Error("org create without NAME should fail")
	}
	if err := run(t, "--email", "ghost@example.com", "--password", "secret123", "org", "list"); !errors.Is(err, apperr.ErrInvalidCredentials) {
		t.Errorf("unknown user: err = %v, want invalid credentials", err)
	}
	if err := run(t, "--output", "yaml", "--email", "a@example.com", "--password", "secret123", "user", "register"); err == nil {
		t.Error("unknown output format should fail")
	}
}

func TestOrgctl_TokensAndJobs(t *testing.T) {
	out := useMemoryApp(t)
	creds := []string{"--email", "ci@example.com", "--password", "secret123"}
	if err := run(t, append(creds, "user", "register")...); err != nil {
		t.Fatalf("user register: %v", err)
	}
	if err := run(t, append(creds, "token", "issue", "deploy")...); err != nil {
		t.Fatalf("token issue: %v", err)
	}
	out.Reset()
	if err := run(t, append(creds, "token", "list")...); err != nil {
		t.Fatalf("token list: %v", err)
	}
	if !strings.Contains(out.String(), "deploy") {
		t.Errorf("token list output = %q", out.String())
	}
	if err := run(t, "jobs", "run"); err != nil {
		t.Errorf("jobs run: %v", err)
	}
	if err := run(t, "password", "reset-request", "nobody@example.com"); err != nil {
		t.Errorf("reset-request for unknown address: %v", err)
	}
}
