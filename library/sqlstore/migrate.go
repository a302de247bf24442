package sqlstore

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"
)

const (
	migrationTable   = "schema_migrations"
	migrationLockKey = int64(20240101)
)

var migrationTableDDL = map[string]string{
	"sqlite3": `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version INTEGER PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at DATETIME NOT NULL
)`,
	"postgres": `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL
)`,
}

var (
	//go:embed migrations
	migrationsFS embed.FS

	migrationFilePattern = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type migration struct {
	Version int64
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationStatus describes the schema version of a database.
type MigrationStatus struct {
	Version   int64
	Applied   int
	Available int
}

// Pending reports how many embedded migrations have not been applied yet.
func (s MigrationStatus) Pending() int {
	if s.Available < s.Applied {
		return 0
	}
	return s.Available - s.Applied
}

// MigrateUp applies up migrations. steps=0 applies all pending ones.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, func(ctx context.Context, conn *sqlx.Conn, migrations []migration) error {
		return s.applyUp(ctx, conn, migrations, steps)
	})
}

// MigrateDown rolls back migrations, one step when steps<=0.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, func(ctx context.Context, conn *sqlx.Conn, migrations []migration) error {
		return s.applyDown(ctx, conn, migrations, steps)
	})
}

// Status returns the current version and the number of applied and embedded migrations.
func (s *Store) Status(ctx context.Context) (MigrationStatus, error) {
	migrations, err := loadMigrationsFromFS(migrationsFS, s.dialectName())
	if err != nil {
		return MigrationStatus{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationTableDDL[s.dialectName()]); err != nil {
		return MigrationStatus{}, fmt.Errorf("ensure migration table: %w", err)
	}

	var status struct {
		Version int64 `db:"version"`
		Count   int   `db:"applied"`
	}
	query, args, err := s.dialect.From(migrationTable).
		Select(
			goqu.COALESCE(goqu.MAX("version"), 0).As("version"),
			goqu.COUNT(goqu.Star()).As("applied"),
		).
		Prepared(true).ToSQL()
	if err != nil {
		return MigrationStatus{}, fmt.Errorf("build migration status query: %w", err)
	}
	if err := s.db.GetContext(queryCtx, &status, query, args...); err != nil {
		return MigrationStatus{}, fmt.Errorf("query migration status: %w", err)
	}

	return MigrationStatus{Version: status.Version, Applied: status.Count, Available: len(migrations)}, nil
}

func (s *Store) dialectName() string {
	if s.driver == DriverSQLite {
		return "sqlite3"
	}
	return "postgres"
}

func (s *Store) migrate(ctx context.Context, run func(ctx context.Context, conn *sqlx.Conn, migrations []migration) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sql store is not initialized")
	}

	migrations, err := loadMigrationsFromFS(migrationsFS, s.dialectName())
	if err != nil {
		return err
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	if s.dialectName() == "postgres" {
		lockCtx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
		defer cancel()
		if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
		}()
	}

	if _, err := conn.ExecContext(ctx, migrationTableDDL[s.dialectName()]); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	return run(ctx, conn, migrations)
}

func (s *Store) applyUp(ctx context.Context, conn *sqlx.Conn, migrations []migration, steps int) error {
	applied, err := s.loadAppliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	appliedSteps := 0
	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		record := s.dialect.Insert(migrationTable).Rows(goqu.Record{
			"version":    m.Version,
			"name":       m.Name,
			"applied_at": time.Now().UTC(),
		}).Prepared(true)
		if err := s.applyOne(ctx, conn, "up", m, m.UpSQL, record); err != nil {
			return err
		}
		appliedSteps++
		if steps > 0 && appliedSteps >= steps {
			break
		}
	}

	return nil
}

func (s *Store) applyDown(ctx context.Context, conn *sqlx.Conn, migrations []migration, steps int) error {
	versionMap := make(map[int64]migration, len(migrations))
	for _, m := range migrations {
		versionMap[m.Version] = m
	}

	query, args, err := s.dialect.From(migrationTable).
		Select("version").
		Order(goqu.I("version").Desc()).
		Limit(uint(steps)).
		Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build applied migrations query: %w", err)
	}
	var versions []int64
	if err := conn.SelectContext(ctx, &versions, query, args...); err != nil {
		return fmt.Errorf("query applied migrations desc: %w", err)
	}

	for _, version := range versions {
		m, ok := versionMap[version]
		if !ok {
			return fmt.Errorf("cannot rollback unknown migration version %d", version)
		}
		remove := s.dialect.Delete(migrationTable).Where(goqu.C("version").Eq(m.Version)).Prepared(true)
		if err := s.applyOne(ctx, conn, "down", m, m.DownSQL, remove); err != nil {
			return err
		}
	}

	return nil
}

// applyOne runs a migration body and its bookkeeping statement in one transaction.
func (s *Store) applyOne(ctx context.Context, conn *sqlx.Conn, direction string, m migration, body string, bookkeeping statement) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", direction, m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}

	query, args, err := bookkeeping.ToSQL()
	if err != nil {
		return fmt.Errorf("build migration record %d_%s: %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("record %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", direction, m.Version, m.Name, err)
	}
	return nil
}

func (s *Store) loadAppliedVersions(ctx context.Context, conn *sqlx.Conn) (map[int64]bool, error) {
	query, args, err := s.dialect.From(migrationTable).Select("version").Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build applied migrations query: %w", err)
	}
	var versions []int64
	if err := conn.SelectContext(ctx, &versions, query, args...); err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}

	result := make(map[int64]bool, len(versions))
	for _, v := range versions {
		result[v] = true
	}
	return result, nil
}

func loadMigrationsFromFS(fsys fs.FS, dialect string) ([]migration, error) {
	files, err := fs.Glob(fsys, path.Join("migrations", dialect, "*.sql"))
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	if len(files) == 0 {
		return nil, errors.New("no migration files found for " + dialect)
	}

	builders := make(map[int64]*migration)
	for _, file := range files {
		base := path.Base(file)
		matches := migrationFilePattern.FindStringSubmatch(base)
		if len(matches) != 4 {
			return nil, fmt.Errorf("invalid migration file name: %s", base)
		}

		version, err := strconv.ParseInt(matches[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse migration version from %s: %w", base, err)
		}
		name, direction := matches[2], matches[3]

		raw, err := fs.ReadFile(fsys, file)
		if err != nil {
			return nil, fmt.Errorf("read migration file %s: %w", file, err)
		}
		body := strings.TrimSpace(string(raw))
		if body == "" {
			return nil, fmt.Errorf("migration file is empty: %s", base)
		}

		b, ok := builders[version]
		if !ok {
			b = &migration{Version: version, Name: name}
			builders[version] = b
		} else if b.Name != name {
			return nil, fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, b.Name, name)
		}

		switch direction {
		case "up":
			if b.UpSQL != "" {
				return nil, fmt.Errorf("duplicate up migration for version %d", version)
			}
			b.UpSQL = body
		case "down":
			if b.DownSQL != "" {
				return nil, fmt.Errorf("duplicate down migration for version %d", version)
			}
			b.DownSQL = body
		}
	}

	migrations := make([]migration, 0, len(builders))
	for _, b := range builders {
		if b.UpSQL == "" || b.DownSQL == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", b.Version, b.Name)
		}
		migrations = append(migrations, *b)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

	return migrations, nil
}
