// Package migration applies the embedded per-dialect schema with golang-migrate.
package migration

import (
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"towerdocs/internal/config"
	"towerdocs/internal/database"
	"towerdocs/internal/logger"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationsFS embed.FS

// DatabaseURL returns the golang-migrate URL for c. The migrator opens its
// own connection so closing it never touches the application pool.
func DatabaseURL(c config.DatabaseConfig) (string, error) {
	switch c.Driver {
	case database.DriverPostgres, "":
		dsn, err := database.BuildPostgresDSN(c)
		if err != nil {
			return "", err
		}
		return "pgx5" + strings.TrimPrefix(dsn, "postgres"), nil
	case database.DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return "", fmt.Errorf("invalid database config: sqlite path is required")
		}
		return "sqlite://" + c.SQLitePath, nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", c.Driver)
	}
}

// EnsureMigrated brings the schema up to the latest embedded version.
func EnsureMigrated(c config.DatabaseConfig, log *logger.Logger) error {
	start := time.Now()
	dialect := c.Driver
	if dialect == "" {
		dialect = database.DriverPostgres
	}
	log = log.With("component", "database", "dialect", dialect, "db_host", c.Host)

	log.Info("db_migration_check", "status", "starting")

	dbURL, err := DatabaseURL(c)
	if err != nil {
		return failed(log, start, err)
	}
	src, err := iofs.New(migrationsFS, dialect)
	if err != nil {
		return failed(log, start, fmt.Errorf("load migration source: %w", err))
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, dbURL)
	if err != nil {
		return failed(log, start, fmt.Errorf("create migrator: %w", err))
	}
	defer m.Close()
	m.Log = stepLogger{log: log}

	current, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
	case err != nil:
		return failed(log, start, fmt.Errorf("read schema version: %w", err))
	case dirty:
		return failed(log, start, fmt.Errorf("schema version %d is dirty", current))
	}

	log.Info("db_migration_start", "status", "in_progress", "from_version", current)
	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("db_migration_skip", "status", "success",
				"msg", "schema already up to date", "duration_ms", time.Since(start).Milliseconds())
			return nil
		}
		return failed(log, start, fmt.Errorf("apply migrations: %w", err))
	}

	version, _, _ := m.Version()
	log.Info("db_migration_success", "status", "success",
		"version", version, "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func failed(log *logger.Logger, start time.Time, err error) error {
	log.Error("db_migration_failed", "status", "error",
		"error_message", err.Error(), "duration_ms", time.Since(start).Milliseconds())
	return err
}

// stepLogger forwards golang-migrate's per-file progress lines.
type stepLogger struct {
	log *logger.Logger
}

func (s stepLogger) Printf(format string, v ...any) {
	s.log.Debug("db_migration_step", "status", "success",
		"migration_step", strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (s stepLogger) Verbose() bool { return true }
