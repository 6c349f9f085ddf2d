package actions

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/clickhouse"
	"github.com/pressmetrics/metrictask/internal/config"
)

// Teardown validates config and truncates every raw data table in the
// configured warehouse database. The database and its schema stay in place,
// only the rows go.
func Teardown(isInteractive, skipConfirm bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if valErr := validateConfig(cfg); valErr != nil {
		return valErr
	}

	// Show target info
	fmt.Println("\n⚠️  Teardown Configuration:")
	fmt.Println("===========================")
	fmt.Printf("ClickHouse Host: %s:%d\n", cfg.ClickhouseHost, cfg.ClickhousePort)
	fmt.Printf("Username:        %s\n", cfg.ClickhouseUsername)
	fmt.Printf("Database Name:   %s\n", cfg.ClickhouseDatabase)
	fmt.Println()

	// Handle confirmation for both TUI and CLI modes
	if !skipConfirm {
		if isInteractive {
			fmt.Printf("🗑️  You are about to TRUNCATE all tables in database: %s\n", strings.ToUpper(cfg.ClickhouseDatabase))
			fmt.Println("⚠️  WARNING: This will permanently delete ALL data in the database!")
		}
		// Return here so the caller can handle confirmation
		return nil
	}

	fmt.Println("🔌 Connecting to ClickHouse...")

	log := logrus.New()
	log.SetLevel(logrus.WarnLevel)

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

	ctx := context.Background()

	exists, err := client.DatabaseExists(ctx, cfg.ClickhouseDatabase)
	if err != nil {
		return err
	}

	if !exists {
		fmt.Printf("ℹ️  Database '%s' does not exist, nothing to teardown\n", cfg.ClickhouseDatabase)
		fmt.Println("\n✅ Teardown completed successfully!")
		return nil
	}

	fmt.Printf("\n🗑️  Cleaning data from database '%s'...\n", cfg.ClickhouseDatabase)

	tables, err := client.DataTables(ctx, cfg.ClickhouseDatabase)
	if err != nil {
		return err
	}

	if len(tables) == 0 {
		fmt.Printf("ℹ️  No data tables found in database '%s'\n", cfg.ClickhouseDatabase)
	} else {
		fmt.Printf("📊 Found %d tables to clean\n", len(tables))

		for _, table := range tables {
			fmt.Printf("  🗑️  Truncating %s...\n", table)
			if err := client.TruncateTable(ctx, cfg.ClickhouseDatabase, table); err != nil {
				// Log warning but continue with other tables
				fmt.Printf("  ⚠️  Warning: %v\n", err)
			}
		}
	}

	fmt.Printf("✅ Database '%s' has been cleaned!\n", cfg.ClickhouseDatabase)

	fmt.Println("\n✅ Teardown completed successfully!")
	return nil
}
