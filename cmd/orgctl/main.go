// orgctl administers organizations, members, invitations, and API tokens against the configured store.
//
// Commands that act on behalf of a user sign in with --email/--password (or ORGCTL_EMAIL/ORGCTL_PASSWORD)
// and run with the same permission checks as any other caller.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/urfave/cli/v3"

	"orgauth/backend/internal/app"
	"orgauth/backend/internal/config"
	"orgauth/backend/internal/platform/logging"
	"orgauth/backend/internal/requestctx"
)

// Version is set using ldflags at build time.
var Version = "dev"

const (
	encodeJSONRaw    = "json-raw"
	encodeJSONPretty = "json"
	encodeNoHeader   = "no-header"
	encodeColumn     = "column"
)

var (
	stdout io.Writer = os.Stdout
	// openApp builds the services; tests replace it with an in-memory App.
	openApp = func(ctx context.Context) (*app.App, func(), error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		log, err := logging.New(cfg.LogLevel, cfg.Env)
		if err != nil {
			return nil, nil, err
		}
		a, err := app.New(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return a, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = a.Close(closeCtx)
			_ = log.Sync()
		}, nil
	}
)

func main() {
	cli.HelpFlag.(*cli.BoolFlag).Usage = "Show help"
	if err := newCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "orgctl:", err)
		os.Exit(1)
	}
}

func newCommand() *cli.Command {
	cmd := &cli.Command{
		Name:  "orgctl",
		Usage: "administers organizations, memberships, and invitations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "email",
				Usage:   "Sign in as this user",
				Sources: cli.EnvVars("ORGCTL_EMAIL"),
			},
			&cli.StringFlag{
				Name:    "password",
				Usage:   "Password of the signed-in user",
				Sources: cli.EnvVars("ORGCTL_PASSWORD"),
			},
			&cli.StringFlag{
				Name:    "org",
				Usage:   "Organization ID to act in (defaults to the user's current organization)",
				Sources: cli.EnvVars("ORGCTL_ORG"),
			},
			&cli.StringFlag{
				Name:  "output",
				Value: encodeColumn,
				Usage: "Output format: json, json-raw, no-header, column (default columns)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "version",
				Usage: "Get the version of orgctl",
				Action: func(ctx context.Context, command *cli.Command) error {
					fmt.Fprintf(stdout, "version: %s\n", Version)
					return nil
				},
			},
			createUserCommand(),
			createOrganizationCommand(),
			createMemberCommand(),
			createInvitationCommand(),
			createPasswordCommand(),
			createTokenCommand(),
			createJobsCommand(),
			createAuditCommand(),
		},
	}
	sort.Slice(cmd.Commands, func(i, j int) bool {
		return cmd.Commands[i].Name < cmd.Commands[j].Name
	})
	return cmd
}

// withApp runs fn with the wired services.
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, done, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer done()
	return fn(a)
}

// withSession signs in with the global credentials and runs fn with an authenticated context
// whose active organization honors --org.
func withSession(ctx context.Context, command *cli.Command, fn func(ctx context.Context, a *app.App) error) error {
	return withApp(ctx, func(a *app.App) error {
		email, password := command.String("email"), command.String("password")
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}
		org := command.String("org")
		sess, err := a.Tenancy.Login(ctx, email, password, org)
		if err != nil {
			return err
		}
		ctx, err := a.Tenancy.Authenticate(ctx, sess.UserID, requestctx.AuthSession, org)
		if err != nil {
			return err
		}
		return fn(ctx, a)
	})
}
