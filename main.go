package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"bibliotheque/internal/app"
	"bibliotheque/internal/config"
)

// rootOptions carries the persistent flags shared by every subcommand.
type rootOptions struct {
	cfg    config.Config
	envErr error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	opts.cfg, opts.envErr = config.FromEnv()
	if opts.envErr != nil {
		opts.cfg = config.DefaultConfig()
	}

	root := &cobra.Command{
		Use:   "bibliotheque",
		Short: "Library lending and reservation engine",
		Long: `bibliotheque keeps a catalog of books, members, loans and reservations and
applies lending transactions to it, one atomic operation at a time.

Settings come from flags, then BIBLIO_* environment variables, then defaults.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envErr != nil {
				return opts.envErr
			}
			return opts.cfg.Validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.cfg.Storage, "storage", opts.cfg.Storage, "storage driver: memory, sqlite3, pgx or postgres")
	flags.StringVar(&opts.cfg.DSN, "dsn", opts.cfg.DSN, "database file (sqlite3) or connection string")
	flags.StringVar(&opts.cfg.LogLevel, "log-level", opts.cfg.LogLevel, "log level: debug, info, warn, error")
	flags.StringVar(&opts.cfg.LogFormat, "log-format", opts.cfg.LogFormat, "log format: text or json")
	flags.StringVar(&opts.cfg.MetricsFile, "metrics-file", opts.cfg.MetricsFile, "write Prometheus metrics to this file on exit")
	flags.BoolVar(&opts.cfg.AutoMigrate, "auto-migrate", opts.cfg.AutoMigrate, "apply pending schema migrations on startup")

	root.AddCommand(
		newRunCmd(opts),
		newShellCmd(opts),
		newMigrateCmd(opts),
		newListCmd(opts),
	)
	return root
}

// open builds the application for one command, logging to the command's stderr.
func (o *rootOptions) open(cmd *cobra.Command, cfg config.Config) (*app.App, error) {
	logger, err := app.NewLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	return app.NewWithLogger(cmd.Context(), cfg, logger)
}

// closeApp releases the application, reporting failures without changing the exit status.
func closeApp(a *app.App) {
	if err := a.Close(); err != nil {
		a.Logger.WithError(err).Warn("shutdown incomplete")
	}
}

func withCommand(a *app.App, cmd *cobra.Command) *log.Entry {
	return a.Logger.WithField("command", cmd.CommandPath())
}
