// Package app wires a Config into a ready LibraryManager: logger, storage,
// schema migrations and metrics.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"bibliotheque/internal/config"
	"bibliotheque/library"
	"bibliotheque/library/memory"
	"bibliotheque/library/sqlstore"
)

// ErrNoDatabase is returned by SQL-only actions on the memory storage.
var ErrNoDatabase = errors.New("storage is not backed by a database")

// App holds the runtime dependencies of one command invocation.
type App struct {
	Config   config.Config
	Logger   *log.Entry
	Registry *prometheus.Registry
	Manager  *library.LibraryManager

	sql    *sqlstore.Store
	closer io.Closer
}

// NewLogger builds a logrus logger writing to w with the configured level and format.
func NewLogger(cfg config.Config, w io.Writer) (*log.Logger, error) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}

	logger := log.New()
	logger.SetOutput(w)
	logger.SetLevel(level)
	if cfg.LogFormat == config.LogFormatJSON {
		logger.SetFormatter(&log.JSONFormatter{})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return logger, nil
}

// New validates cfg, opens the storage and builds the manager. Logs go to stderr.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg, os.Stderr)
	if err != nil {
		return nil, err
	}
	return NewWithLogger(ctx, cfg, logger)
}

// NewWithLogger is New with a caller-supplied logger.
func NewWithLogger(ctx context.Context, cfg config.Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Logger:   logger.WithField("component", "app"),
		Registry: prometheus.NewRegistry(),
	}

	scope, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}

	a.Manager = library.NewLibraryManager(scope,
		library.WithLogger(logger.WithField("component", "library")),
		library.WithMetrics(library.NewMetrics(a.Registry)),
	)
	return a, nil
}

func (a *App) openStorage(ctx context.Context) (library.TxScope, error) {
	if !a.Config.IsSQL() {
		store := memory.NewStore()
		a.closer = store
		a.Logger.WithField("storage", config.StorageMemory).Debug("using in-memory storage")
		return store, nil
	}

	store, err := sqlstore.Open(ctx, a.Config.Storage, a.Config.DSN)
	if err != nil {
		return nil, err
	}
	a.sql = store
	a.closer = store

	if a.Config.AutoMigrate {
		if err := store.MigrateUp(ctx, 0); err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("auto-migrate: %w", err)
		}
	}
	a.Logger.WithFields(log.Fields{
		"storage":      a.Config.Storage,
		"auto_migrate": a.Config.AutoMigrate,
	}).Debug("storage opened")
	return store, nil
}

// SQL returns the database store, or ErrNoDatabase for the memory storage.
func (a *App) SQL() (*sqlstore.Store, error) {
	if a.sql == nil {
		return nil, ErrNoDatabase
	}
	return a.sql, nil
}

// WriteMetrics writes the registry to the configured textfile, if any.
func (a *App) WriteMetrics() error {
	if a.Config.MetricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.Config.MetricsFile, a.Registry); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

// Close flushes metrics and releases the storage.
func (a *App) Close() error {
	metricsErr := a.WriteMetrics()
	var closeErr error
	if a.closer != nil {
		closeErr = a.closer.Close()
	}
	return errors.Join(metricsErr, closeErr)
}
