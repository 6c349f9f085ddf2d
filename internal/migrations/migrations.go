// Package migrations handles warehouse schema migrations
package migrations

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/clickhouse" // clickhouse driver for migrations
	_ "github.com/golang-migrate/migrate/v4/source/file"         // file source driver for migrations
	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/config"
)

// Run applies all pending migrations from the configured directory.
// An already up-to-date schema is not an error.
func Run(log logrus.FieldLogger, cfg *config.Config) error {
	log = log.WithField("component", "migrations")

	m, err := newMigrate(cfg)
	if err != nil {
		return err
	}
	defer closeMigrate(log, m)

	upErr := m.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", upErr)
	}

	if errors.Is(upErr, migrate.ErrNoChange) {
		log.Info("No new migrations to apply")

		return nil
	}

	version, dirty, vErr := m.Version()
	if vErr != nil && !errors.Is(vErr, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get migration version: %w", vErr)
	}

	if !dirty {
		log.WithField("version", version).Info("Migrations applied successfully")
	}

	return nil
}

// Status returns the current migration version and dirty state. A schema
// with no applied migrations reports version 0, clean.
func Status(log logrus.FieldLogger, cfg *config.Config) (version uint, dirty bool, err error) {
	log = log.WithField("component", "migrations")

	m, err := newMigrate(cfg)
	if err != nil {
		return 0, false, err
	}
	defer closeMigrate(log, m)

	version, dirty, err = m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		// No migrations applied yet
		return 0, false, nil
	}

	if err != nil {
		return 0, false, err
	}

	return version, dirty, nil
}

func newMigrate(cfg *config.Config) (*migrate.Migrate, error) {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", cfg.MigrationsDir),
		buildConnectionString(cfg),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create migration instance: %w", err)
	}

	return m, nil
}

func closeMigrate(log logrus.FieldLogger, m *migrate.Migrate) {
	if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
		log.WithFields(logrus.Fields{
			"source_error":   sourceErr,
			"database_error": dbErr,
		}).Warn("Failed to close migration instance")
	}
}

// buildConnectionString builds the ClickHouse connection string for golang-migrate
func buildConnectionString(cfg *config.Config) string {
	connStr := fmt.Sprintf("clickhouse://%s:%d?username=%s&database=%s&x-multi-statement=true",
		cfg.ClickhouseHost,
		cfg.ClickhousePort,
		cfg.ClickhouseUsername,
		cfg.ClickhouseDatabase,
	)

	if cfg.ClickhousePassword != "" {
		connStr += fmt.Sprintf("&password=%s", cfg.ClickhousePassword)
	}

	connStr += "&x-migrations-table-engine=MergeTree"

	return connStr
}
