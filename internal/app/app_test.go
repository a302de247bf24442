package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bibliotheque/internal/config"
	"bibliotheque/library"
)

func testLogger() *log.Logger {
	logger := log.New()
	logger.SetOutput(&bytes.Buffer{})
	return logger
}

func TestNewLoggerFormats(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.DefaultConfig()
	cfg.LogFormat = config.LogFormatJSON
	cfg.LogLevel = "warn"

	logger, err := NewLogger(cfg, &buf)
	require.NoError(t, err)
	assert.Equal(t, log.WarnLevel, logger.GetLevel())

	logger.Info("hidden")
	logger.WithField("component", "test").Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"component":"test"`)

	cfg.LogLevel = "chatty"
	_, err = NewLogger(cfg, &buf)
	require.Error(t, err)
}

func TestNewMemoryApp(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.Storage = config.StorageMemory
	cfg.DSN = ""

	a, err := NewWithLogger(ctx, cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	_, err = a.SQL()
	require.ErrorIs(t, err, ErrNoDatabase)

	_, err = a.Manager.RegisterMember(ctx, library.MemberDraft{ID: "M1", Name: "Ann", Phone: "555", LoanLimit: 1})
	require.NoError(t, err)
	members, err := a.Manager.Members(ctx, library.SortByID)
	require.NoError(t, err)
	assert.Len(t, members, 1)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage = "mysql"

	_, err := New(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage")
}

func TestSQLiteAppMigratesAndWritesMetrics(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.DSN = filepath.Join(dir, "data", "library.db")
	cfg.MetricsFile = filepath.Join(dir, "library.prom")

	a, err := NewWithLogger(ctx, cfg, testLogger())
	require.NoError(t, err)

	store, err := a.SQL()
	require.NoError(t, err)
	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Zero(t, status.Pending())

	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = a.Manager.Acquire(ctx, library.BookDraft{ID: "B1", Title: "Dune", Author: "Herbert", AcquiredAt: day})
	require.NoError(t, err)
	_, err = a.Manager.Acquire(ctx, library.BookDraft{ID: "B1", Title: "Dune", Author: "Herbert", AcquiredAt: day})
	require.ErrorIs(t, err, library.ErrAlreadyExists)

	require.NoError(t, a.Close())

	data, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `bibliotheque_operations_total{op="acquire",outcome="ok"} 1`)
	assert.Contains(t, text, `bibliotheque_operations_total{op="acquire",outcome="already_exists"} 1`)
}

func TestSQLiteAppWithoutAutoMigrate(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "library.db")
	cfg.AutoMigrate = false

	a, err := NewWithLogger(ctx, cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	store, err := a.SQL()
	require.NoError(t, err)
	status, err := store.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, status.Applied)
	assert.Equal(t, status.Available, status.Pending())
}
