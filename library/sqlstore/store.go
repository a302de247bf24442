// Package sqlstore implements the library repositories on SQLite or PostgreSQL.
// Every unit of work runs inside one database transaction.
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"bibliotheque/library"
)

// Supported database/sql driver names.
const (
	DriverSQLite   = "sqlite3"
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
)

const (
	defaultConnTimeout     = 5 * time.Second
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 25
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 5 * time.Minute
)

// Store wraps a SQL connection pool.
type Store struct {
	db      *sqlx.DB
	driver  string
	dialect goqu.DialectWrapper
	txOpts  *sql.TxOptions
}

// Open connects to the database and checks it is reachable. For sqlite3 a plain
// file path is accepted and turned into a DSN with foreign keys enabled.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	var (
		dialect string
		txOpts  *sql.TxOptions
	)
	switch driver {
	case DriverSQLite:
		dialect = "sqlite3"
		var err error
		if dsn, err = SQLiteDSN(dsn); err != nil {
			return nil, err
		}
	case DriverPgx, DriverPostgres:
		dialect = "postgres"
		txOpts = &sql.TxOptions{Isolation: sql.LevelSerializable}
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// One writer at a time; immediate transactions queue on the busy timeout.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(defaultMaxOpenConns)
		db.SetMaxIdleConns(defaultMaxIdleConns)
		db.SetConnMaxLifetime(defaultConnMaxLifetime)
		db.SetConnMaxIdleTime(defaultConnMaxIdleTime)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	return &Store{db: db, driver: driver, dialect: goqu.Dialect(dialect), txOpts: txOpts}, nil
}

// SQLiteDSN turns a database file path into a go-sqlite3 DSN, creating the parent
// directory so a first run succeeds. DSNs already starting with "file:" are kept.
func SQLiteDSN(path string) (string, error) {
	if strings.HasPrefix(path, "file:") {
		return path, nil
	}
	if path == "" {
		return "", fmt.Errorf("sqlite database path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return "", fmt.Errorf("create db dir: %w", err)
		}
	}
	return fmt.Sprintf("file:%s?_busy_timeout=5000&_foreign_keys=1&_txlock=immediate", path), nil
}

// Driver returns the database/sql driver name the store was opened with.
func (s *Store) Driver() string { return s.driver }

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sql store is not initialized")
	}
	pingCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()
	return s.db.PingContext(pingCtx)
}

// Execute runs fn inside one transaction, committing only when fn succeeds.
func (s *Store) Execute(ctx context.Context, fn func(ctx context.Context, repos library.Repositories) error) error {
	tx, err := s.db.BeginTxx(ctx, s.txOpts)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, &unit{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", translate(err))
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ library.TxScope = (*Store)(nil)
