// Command ledgerctl runs operator tasks against a fjord-ledger deployment:
// schema migrations and issuing access tokens for staff and service accounts.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	migrate "github.com/rubenv/sql-migrate"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/simonkvalheim/fjord-ledger/internal/app"
	"github.com/simonkvalheim/fjord-ledger/internal/auth"
	"github.com/simonkvalheim/fjord-ledger/internal/bootstrap"
	"github.com/simonkvalheim/fjord-ledger/internal/config"
)

type cli struct {
	cfg *config.Config
	log *logrus.Logger
}

func newRootCommand() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "ledgerctl",
		Short:         "Operator tooling for fjord-ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			c.cfg = cfg
			c.log = cfg.NewLogger()
			return nil
		},
	}

	root.AddCommand(c.migrateCommand())
	root.AddCommand(c.tokenCommand())
	return root
}

func (c *cli) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back schema migrations",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.migrate(cmd.Context(), migrate.Up)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migrations\n", n)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back all migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := c.migrate(cmd.Context(), migrate.Down)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Rolled back %d migrations\n", n)
			return nil
		},
	})
	return cmd
}

func (c *cli) migrate(ctx context.Context, direction migrate.MigrationDirection) (int, error) {
	if c.cfg.DatabaseURL == "" {
		return 0, fmt.Errorf("DATABASE_URL is required for migrations")
	}
	db, err := app.ConnectDB(ctx, c.cfg.DatabaseURL)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	n, err := bootstrap.Migrate(db, direction)
	if err != nil {
		return 0, fmt.Errorf("migration failed: %w", err)
	}
	c.log.WithField("count", n).Debug("migrations executed")
	return n, nil
}

func (c *cli) tokenCommand() *cobra.Command {
	var (
		subject  string
		elevated bool
		ttl      time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if c.cfg.UsingDevSecret() {
				c.log.Warn("signing with the development JWT_SECRET")
			}
			svc := auth.NewService(auth.DefaultConfig(c.cfg.JWTSecret))
			token, expiresAt, err := svc.Issue(subject, elevated, ttl)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, token)
			fmt.Fprintf(out, "expires %s\n", expiresAt.UTC().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "actor id the token is issued to (a customer id for customers)")
	cmd.Flags().BoolVar(&elevated, "elevated", false, "grant staff privileges")
	cmd.Flags().DurationVar(&ttl, "ttl", 15*time.Minute, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
