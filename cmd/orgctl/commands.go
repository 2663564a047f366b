package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"

	"orgauth/backend/internal/app"
	auditdomain "orgauth/backend/internal/audit/domain"
	invitationdomain "orgauth/backend/internal/invitation/domain"
	invitationservice "orgauth/backend/internal/invitation/service"
	membershipdomain "orgauth/backend/internal/membership/domain"
	"orgauth/backend/internal/platform/retry"
)

func requireArgs(command *cli.Command, names ...string) error {
	if command.NArg() != len(names) {
		return fmt.Errorf("usage: %s %v", command.Name, names)
	}
	return nil
}

func createOrganizationCommand() *cli.Command {
	return &cli.Command{
		Name:  "org",
		Usage: "Commands relating to organizations",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Create an organization with the signed-in user as admin",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "NAME"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						org, m, err := a.Tenancy.CreateOrganization(ctx, command.Args().First())
						if err != nil {
							return err
						}
						return showOutput(command, table{
							headers: []string{"ORGANIZATION ID", "NAME", "ROLE"},
							rows:    [][]string{{org.ID, org.Name, string(m.Role)}},
							raw:     org,
						})
					})
				},
			},
			{
				Name:  "list",
				Usage: "List the signed-in user's organizations",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						var ms []*membershipdomain.Membership
						err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
							var err error
							ms, err = a.Tenancy.ListMyOrganizations(ctx)
							return err
						})
						if err != nil {
							return err
						}
						return showOutput(command, membershipTable(ms))
					})
				},
			},
			{
				Name:      "select",
				Usage:     "Make an organization the signed-in user's current organization",
				ArgsUsage: "ORG_ID",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "ORG_ID"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						_, m, err := a.Tenancy.SelectOrganization(ctx, command.Args().First())
						if err != nil {
							return err
						}
						return showOutput(command, membershipTable([]*membershipdomain.Membership{m}))
					})
				},
			},
		},
	}
}

func createMemberCommand() *cli.Command {
	return &cli.Command{
		Name:  "member",
		Usage: "Commands relating to organization members",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List members of the active organization",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						var ms []*membershipdomain.Membership
						err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
							var err error
							ms, err = a.Tenancy.ListMembers(ctx)
							return err
						})
						if err != nil {
							return err
						}
						return showOutput(command, membershipTable(ms))
					})
				},
			},
			{
				Name:      "remove",
				Usage:     "Remove a member from the active organization",
				ArgsUsage: "USER_ID",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "USER_ID"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						if err := a.Tenancy.RemoveMember(ctx, command.Args().First()); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "removed %s\n", command.Args().First())
						return nil
					})
				},
			},
			{
				Name:      "role",
				Usage:     "Change a member's role (admin or member)",
				ArgsUsage: "USER_ID ROLE",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "USER_ID", "ROLE"); err != nil {
						return err
					}
					role, err := membershipdomain.ParseRole(command.Args().Get(1))
					if err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						m, err := a.Tenancy.ChangeRole(ctx, command.Args().First(), role)
						if err != nil {
							return err
						}
						return showOutput(command, membershipTable([]*membershipdomain.Membership{m}))
					})
				},
			},
		},
	}
}

func createInvitationCommand() *cli.Command {
	return &cli.Command{
		Name:  "invitation",
		Usage: "Commands relating to invitations",
		Commands: []*cli.Command{
			{
				Name:      "create",
				Usage:     "Invite an email address to the active organization",
				ArgsUsage: "EMAIL",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "EMAIL"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						res, err := a.Tenancy.InviteUser(ctx, command.Args().First())
						if err != nil {
							return err
						}
						if res.Warning != "" {
							fmt.Fprintf(stdout, "warning: %s\n", res.Warning)
						}
						t := invitationTable([]*invitationdomain.Invitation{res.Invitation}, a.Invitations.TTL())
						t.headers = append(t.headers, "TOKEN")
						t.rows[0] = append(t.rows[0], res.Token)
						t.raw = res
						return showOutput(command, t)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List pending invitations of the active organization",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						var invs []*invitationdomain.Invitation
						err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
							var err error
							invs, err = a.Tenancy.ListInvitations(ctx)
							return err
						})
						if err != nil {
							return err
						}
						return showOutput(command, invitationTable(invs, a.Invitations.TTL()))
					})
				},
			},
			{
				Name:      "revoke",
				Usage:     "Revoke a pending invitation",
				ArgsUsage: "INVITATION_ID",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "INVITATION_ID"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						inv, err := a.Tenancy.RevokeInvitation(ctx, command.Args().First())
						if err != nil {
							return err
						}
						return showOutput(command, invitationTable([]*invitationdomain.Invitation{inv}, a.Invitations.TTL()))
					})
				},
			},
			{
				Name:      "show",
				Usage:     "Show the invitation behind a token",
				ArgsUsage: "TOKEN",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "TOKEN"); err != nil {
						return err
					}
					return withApp(ctx, func(a *app.App) error {
						inv, err := a.Invitations.Lookup(ctx, command.Args().First())
						if err != nil {
							return err
						}
						return showOutput(command, invitationTable([]*invitationdomain.Invitation{inv}, a.Invitations.TTL()))
					})
				},
			},
			{
				Name:      "accept",
				Usage:     "Accept an invitation with --email/--password, creating the account if needed",
				ArgsUsage: "TOKEN",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "TOKEN"); err != nil {
						return err
					}
					return withApp(ctx, func(a *app.App) error {
						res, err := a.Tenancy.AcceptInvitation(ctx, command.Args().First(), &invitationservice.Credentials{
							Email:    command.String("email"),
							Password: command.String("password"),
						})
						if err != nil {
							return err
						}
						t := membershipTable([]*membershipdomain.Membership{res.Membership})
						t.headers = append(t.headers, "NEW ACCOUNT")
						t.rows[0] = append(t.rows[0], fmt.Sprint(res.UserCreated))
						t.raw = res
						return showOutput(command, t)
					})
				},
			},
		},
	}
}

func createJobsCommand() *cli.Command {
	return &cli.Command{
		Name:  "jobs",
		Usage: "Maintenance jobs",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Expire stale invitations and purge expired reset tokens now",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withApp(ctx, func(a *app.App) error {
						a.Jobs.RunAll()
						fmt.Fprintln(stdout, "jobs completed")
						return nil
					})
				},
			},
		},
	}
}

func createAuditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Commands relating to the audit trail",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit events of the active organization, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "maximum number of events"},
					&cli.IntFlag{Name: "offset", Usage: "number of events to skip"},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						events, err := a.Tenancy.ListAuditLog(ctx, int32(command.Int("limit")), int32(command.Int("offset")))
						if err != nil {
							return err
						}
						return showOutput(command, auditTable(events))
					})
				},
			},
		},
	}
}

func auditTable(events []*auditdomain.AuditLog) table {
	t := table{headers: []string{"WHEN", "USER ID", "ACTION", "RESOURCE", "DETAILS"}, raw: events}
	for _, e := range events {
		t.rows = append(t.rows, []string{when(e.CreatedAt), e.UserID, e.Action, e.Resource, e.Metadata})
	}
	return t
}

func membershipTable(ms []*membershipdomain.Membership) table {
	t := table{headers: []string{"ORGANIZATION ID", "USER ID", "ROLE", "JOINED"}, raw: ms}
	for _, m := range ms {
		t.rows = append(t.rows, []string{m.OrgID, m.UserID, string(m.Role), when(m.CreatedAt)})
	}
	return t
}

func invitationTable(invs []*invitationdomain.Invitation, ttl time.Duration) table {
	t := table{headers: []string{"INVITATION ID", "EMAIL", "STATUS", "EXPIRES"}, raw: invs}
	for _, inv := range invs {
		expires := "-"
		if inv.Status == invitationdomain.StatusPending {
			expires = when(inv.ExpiresAt(ttl))
		}
		t.rows = append(t.rows, []string{inv.ID, inv.Email, string(inv.Status), expires})
	}
	return t
}
