// Package config holds the runtime settings shared by the bibliotheque commands.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
)

// Storage drivers. The SQL drivers are database/sql driver names.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite3"
	StoragePgx      = "pgx"
	StoragePostgres = "postgres"
)

// Log output formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// Environment variables read by FromEnv.
const (
	EnvStorage     = "BIBLIO_STORAGE"
	EnvDSN         = "BIBLIO_DSN"
	EnvLogLevel    = "BIBLIO_LOG_LEVEL"
	EnvLogFormat   = "BIBLIO_LOG_FORMAT"
	EnvMetricsFile = "BIBLIO_METRICS_FILE"
	EnvAutoMigrate = "BIBLIO_AUTO_MIGRATE"
)

// Config describes how to open the catalog and how to report on it.
type Config struct {
	Storage     string
	DSN         string
	LogLevel    string
	LogFormat   string
	MetricsFile string
	AutoMigrate bool
}

// DefaultConfig returns a local SQLite catalog in the working directory.
func DefaultConfig() Config {
	return Config{
		Storage:     StorageSQLite,
		DSN:         "library.db",
		LogLevel:    "info",
		LogFormat:   LogFormatText,
		AutoMigrate: true,
	}
}

// FromEnv returns DefaultConfig overridden by BIBLIO_* environment variables.
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	if err := cfg.LoadEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadEnv overrides fields whose environment variable is set.
func (c *Config) LoadEnv() error {
	if v := os.Getenv(EnvStorage); v != "" {
		c.Storage = v
	}
	if v := os.Getenv(EnvDSN); v != "" {
		c.DSN = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.LogFormat = v
	}
	if v := os.Getenv(EnvMetricsFile); v != "" {
		c.MetricsFile = v
	}
	if v := os.Getenv(EnvAutoMigrate); v != "" {
		auto, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", EnvAutoMigrate, v)
		}
		c.AutoMigrate = auto
	}
	return nil
}

// Validate rejects unknown drivers, levels and formats.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StorageSQLite, StoragePgx, StoragePostgres:
		if strings.TrimSpace(c.DSN) == "" {
			return fmt.Errorf("storage %s requires a dsn", c.Storage)
		}
	default:
		return fmt.Errorf("unsupported storage %q", c.Storage)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("unsupported log format %q", c.LogFormat)
	}
	return nil
}

// IsSQL reports whether the storage is backed by a database.
func (c Config) IsSQL() bool {
	return c.Storage != StorageMemory
}
