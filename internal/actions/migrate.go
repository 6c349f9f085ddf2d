// Package actions contains the core business logic for metrictask operations
package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/clickhouse"
	"github.com/pressmetrics/metrictask/internal/config"
	"github.com/pressmetrics/metrictask/internal/migrations"
)

var (
	// ErrHostNotSet is returned when the ClickHouse host is not configured
	ErrHostNotSet = errors.New("ClickHouse host is not set")
	// ErrPortNotSet is returned when the ClickHouse port is not configured
	ErrPortNotSet = errors.New("ClickHouse port is not set")
	// ErrUsernameNotSet is returned when the ClickHouse username is not configured
	ErrUsernameNotSet = errors.New("ClickHouse username is not set")
	// ErrDatabaseNotSet is returned when the warehouse database is not configured
	ErrDatabaseNotSet = errors.New("ClickHouse database is not set")
	// ErrDatabaseIsDefault is returned when the warehouse database is 'default'
	ErrDatabaseIsDefault = errors.New("database cannot be 'default' - please configure a dedicated warehouse database")
)

// Migrate validates config, ensures the warehouse database exists, and applies
// pending migrations. With skipConfirm false it stops after printing the
// target so the caller can ask for confirmation first.
func Migrate(isInteractive, skipConfirm bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if valErr := validateConfig(cfg); valErr != nil {
		return valErr
	}

	// Show target info
	fmt.Println("\n📋 Migrate Configuration:")
	fmt.Println("=========================")
	fmt.Printf("ClickHouse Host: %s:%d\n", cfg.ClickhouseHost, cfg.ClickhousePort)
	fmt.Printf("Username:        %s\n", cfg.ClickhouseUsername)
	fmt.Printf("Database Name:   %s\n", cfg.ClickhouseDatabase)
	fmt.Printf("Migrations Dir:  %s\n", cfg.MigrationsDir)
	fmt.Println()

	// Handle confirmation for both TUI and CLI modes
	if !skipConfirm {
		if isInteractive {
			fmt.Printf("⚠️  You are about to migrate database: %s\n", strings.ToUpper(cfg.ClickhouseDatabase))
			fmt.Println("This will create the database if it doesn't exist.")
		}
		// Return here so the caller can handle confirmation
		return nil
	}

	fmt.Println("🔌 Connecting to ClickHouse...")
	log := logrus.New()

	client, err := clickhouse.NewClient(log, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close connection: %v\n", closeErr)
		}
	}()
	fmt.Println("✅ Connection successful!")

	fmt.Printf("\n📦 Creating database '%s' if it doesn't exist...\n", cfg.ClickhouseDatabase)
	if err := client.CreateDatabase(context.Background(), cfg.ClickhouseDatabase); err != nil {
		return err
	}
	fmt.Printf("✅ Database '%s' is ready!\n", cfg.ClickhouseDatabase)

	fmt.Printf("\n🔄 Running database migrations...\n")
	if err := migrations.Run(log, cfg); err != nil {
		return err
	}

	fmt.Println("\n🎉 Migrate completed successfully!")
	return nil
}

// MigrationStatus prints the current schema migration version.
func MigrationStatus() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if valErr := validateConfig(cfg); valErr != nil {
		return valErr
	}

	version, dirty, err := migrations.Status(logrus.New(), cfg)
	if err != nil {
		return fmt.Errorf("failed to read migration status: %w", err)
	}

	if version == 0 && !dirty {
		fmt.Println("ℹ️  No migrations applied yet")
		return nil
	}

	state := "clean"
	if dirty {
		state = "dirty"
	}
	fmt.Printf("Current migration version: %d (%s)\n", version, state)

	return nil
}

// validateConfig checks if the configuration is valid for warehouse operations
func validateConfig(cfg *config.Config) error {
	if cfg.ClickhouseHost == "" {
		return ErrHostNotSet
	}

	if cfg.ClickhousePort == 0 {
		return ErrPortNotSet
	}

	if cfg.ClickhouseUsername == "" {
		return ErrUsernameNotSet
	}

	if cfg.ClickhouseDatabase == "" {
		return ErrDatabaseNotSet
	}

	if cfg.ClickhouseDatabase == "default" {
		return ErrDatabaseIsDefault
	}

	return nil
}
