// seed inserts development sample data for local testing.
// Idempotent: skips inserts if the dev user (dev@example.com) already exists.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"orgauth/backend/internal/app"
	"orgauth/backend/internal/config"
	membershipdomain "orgauth/backend/internal/membership/domain"
	"orgauth/backend/internal/platform/apperr"
	"orgauth/backend/internal/platform/logging"
)

const (
	devUserEmail = "dev@example.com"
	memberEmail  = "member@example.com"
	inviteeEmail = "invitee@example.com"
	devPassword  = "password123"
	devOrgName   = "Acme Dev"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	zlog, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zlog)
	if err != nil {
		log.Fatalf("startup: %v", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = a.Close(closeCtx)
	}()

	dev, err := a.Auth.Register(ctx, devUserEmail, devPassword)
	if errors.Is(err, apperr.ErrConflict) {
		log.Println("Seed already applied (dev@example.com exists). Skipping.")
		return
	}
	if err != nil {
		log.Fatalf("create dev user: %v", err)
	}
	member, err := a.Auth.Register(ctx, memberEmail, devPassword)
	if err != nil {
		log.Fatalf("create member user: %v", err)
	}

	org, _, err := a.Registry.CreateOrganization(ctx, devOrgName, dev.ID)
	if err != nil {
		log.Fatalf("create org: %v", err)
	}
	if _, err := a.Registry.AddMember(ctx, member.ID, org.ID, membershipdomain.RoleMember); err != nil {
		log.Fatalf("create member membership: %v", err)
	}
	inv, err := a.Invitations.Create(ctx, dev.ID, org.ID, inviteeEmail)
	if err != nil {
		log.Fatalf("create invitation: %v", err)
	}

	log.Println("Seed completed successfully.")
	fmt.Printf("Dev login: %s / %s (admin of %s)\n", devUserEmail, devPassword, devOrgName)
	fmt.Printf("Member login: %s / %s\n", memberEmail, devPassword)
	fmt.Printf("Pending invitation for %s: token %s\n", inviteeEmail, inv.Token)
}
