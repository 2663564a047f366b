package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"orgauth/backend/internal/app"
	apitokendomain "orgauth/backend/internal/apitoken/domain"
	"orgauth/backend/internal/platform/retry"
)

func createUserCommand() *cli.Command {
	return &cli.Command{
		Name:  "user",
		Usage: "Commands relating to user accounts",
		Commands: []*cli.Command{
			{
				Name:  "register",
				Usage: "Create an account from --email and --password",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withApp(ctx, func(a *app.App) error {
						u, err := a.Tenancy.Register(ctx, command.String("email"), command.String("password"))
						if err != nil {
							return err
						}
						return showOutput(command, table{
							headers: []string{"USER ID", "EMAIL", "STATUS"},
							rows:    [][]string{{u.ID, u.Email, string(u.Status)}},
							raw:     map[string]string{"id": u.ID, "email": u.Email, "status": string(u.Status)},
						})
					})
				},
			},
			{
				Name:  "login",
				Usage: "Sign in and print a session access token",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withApp(ctx, func(a *app.App) error {
						sess, err := a.Tenancy.Login(ctx, command.String("email"), command.String("password"), command.String("org"))
						if err != nil {
							return err
						}
						return showOutput(command, table{
							headers: []string{"USER ID", "ORGANIZATION ID", "EXPIRES", "ACCESS TOKEN"},
							rows:    [][]string{{sess.UserID, sess.OrgID, when(sess.ExpiresAt), sess.AccessToken}},
							raw:     sess,
						})
					})
				},
			},
		},
	}
}

func createPasswordCommand() *cli.Command {
	return &cli.Command{
		Name:  "password",
		Usage: "Password reset",
		Commands: []*cli.Command{
			{
				Name:      "reset-request",
				Usage:     "Email a reset link if the address belongs to an account",
				ArgsUsage: "EMAIL",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "EMAIL"); err != nil {
						return err
					}
					return withApp(ctx, func(a *app.App) error {
						if err := a.Tenancy.RequestPasswordReset(ctx, command.Args().First()); err != nil {
							return err
						}
						fmt.Fprintln(stdout, "if the address belongs to an account, a reset link was sent")
						return nil
					})
				},
			},
			{
				Name:      "reset-confirm",
				Usage:     "Set a new password with a reset token",
				ArgsUsage: "TOKEN NEW_PASSWORD",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "TOKEN", "NEW_PASSWORD"); err != nil {
						return err
					}
					return withApp(ctx, func(a *app.App) error {
						if err := a.Tenancy.ConfirmPasswordReset(ctx, command.Args().First(), command.Args().Get(1)); err != nil {
							return err
						}
						fmt.Fprintln(stdout, "password updated")
						return nil
					})
				},
			},
		},
	}
}

func createTokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Commands relating to API tokens of the signed-in user",
		Commands: []*cli.Command{
			{
				Name:      "issue",
				Usage:     "Issue an API token; the token is shown only once",
				ArgsUsage: "NAME",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "NAME"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						issued, err := a.Tenancy.IssueAPIToken(ctx, command.Args().First())
						if err != nil {
							return err
						}
						t := tokenTable([]*apitokendomain.APIToken{issued.APIToken})
						t.headers = append(t.headers, "TOKEN")
						t.rows[0] = append(t.rows[0], issued.Token)
						t.raw = issued
						return showOutput(command, t)
					})
				},
			},
			{
				Name:  "list",
				Usage: "List API tokens",
				Action: func(ctx context.Context, command *cli.Command) error {
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						var tokens []*apitokendomain.APIToken
						err := retry.Do(ctx, retry.DefaultPolicy, func(ctx context.Context) error {
							var err error
							tokens, err = a.Tenancy.ListAPITokens(ctx)
							return err
						})
						if err != nil {
							return err
						}
						return showOutput(command, tokenTable(tokens))
					})
				},
			},
			{
				Name:      "revoke",
				Usage:     "Revoke an API token",
				ArgsUsage: "TOKEN_ID",
				Action: func(ctx context.Context, command *cli.Command) error {
					if err := requireArgs(command, "TOKEN_ID"); err != nil {
						return err
					}
					return withSession(ctx, command, func(ctx context.Context, a *app.App) error {
						if err := a.Tenancy.RevokeAPIToken(ctx, command.Args().First()); err != nil {
							return err
						}
						fmt.Fprintf(stdout, "revoked %s\n", command.Args().First())
						return nil
					})
				},
			},
		},
	}
}

func tokenTable(tokens []*apitokendomain.APIToken) table {
	t := table{headers: []string{"TOKEN ID", "NAME", "EXPIRES", "LAST USED", "REVOKED"}, raw: tokens}
	for _, tok := range tokens {
		t.rows = append(t.rows, []string{tok.ID, tok.Name, when(tok.ExpiresAt), optionalTime(tok.LastUsedAt), optionalTime(tok.RevokedAt)})
	}
	return t
}
