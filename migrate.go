package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bibliotheque/internal/app"
	"bibliotheque/library/sqlstore"
)

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	var steps int

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.PersistentFlags().IntVar(&steps, "steps", 0, "number of migrations to apply (up: 0 = all, down: 0 = 1)")

	withStore := func(run func(cmd *cobra.Command, a *app.App, store *sqlstore.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg := opts.cfg
			cfg.AutoMigrate = false
			a, err := opts.open(cmd, cfg)
			if err != nil {
				return err
			}
			defer closeApp(a)

			store, err := a.SQL()
			if err != nil {
				return err
			}
			return run(cmd, a, store)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, a *app.App, store *sqlstore.Store) error {
				if err := store.MigrateUp(cmd.Context(), steps); err != nil {
					return err
				}
				return reportStatus(cmd, a, store, "migrations applied")
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back migrations",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, a *app.App, store *sqlstore.Store) error {
				if err := store.MigrateDown(cmd.Context(), steps); err != nil {
					return err
				}
				return reportStatus(cmd, a, store, "migrations rolled back")
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show the schema version",
			Args:  cobra.NoArgs,
			RunE: withStore(func(cmd *cobra.Command, a *app.App, store *sqlstore.Store) error {
				return reportStatus(cmd, a, store, "")
			}),
		},
	)
	return cmd
}

func reportStatus(cmd *cobra.Command, a *app.App, store *sqlstore.Store, msg string) error {
	status, err := store.Status(cmd.Context())
	if err != nil {
		return err
	}

	if msg != "" {
		withCommand(a, cmd).WithFields(log.Fields{
			"driver":  store.Driver(),
			"version": status.Version,
		}).Info(msg)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%-10s %d\n", "version", status.Version)
	fmt.Fprintf(out, "%-10s %d\n", "applied", status.Applied)
	fmt.Fprintf(out, "%-10s %d\n", "available", status.Available)
	fmt.Fprintf(out, "%-10s %d\n", "pending", status.Pending())
	return nil
}
