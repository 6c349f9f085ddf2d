// Package config handles configuration loading and management
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	LogLevel           string
	TasksDir           string
	MigrationsDir      string
	ClickhouseHost     string
	ClickhousePort     int
	ClickhouseDatabase string
	ClickhouseUsername string
	ClickhousePassword string
	OrgID              int64
	RunWindowDays      int
	MaxConcurrency     int
}

// Load reads configuration from environment variables and .env file.
func Load() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		// It's okay if the file doesn't exist
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		TasksDir:           getEnv("TASKS_DIR", DefaultTasksDir),
		MigrationsDir:      getEnv("MIGRATIONS_DIR", DefaultMigrationsDir),
		ClickhouseHost:     getEnv("CLICKHOUSE_HOST", "localhost"),
		ClickhouseDatabase: getEnv("CLICKHOUSE_DATABASE", DefaultDatabase),
		ClickhouseUsername: getEnv("CLICKHOUSE_USERNAME", "default"),
		ClickhousePassword: getEnv("CLICKHOUSE_PASSWORD", ""),
	}

	// Parse numeric values
	port, err := strconv.Atoi(getEnv("CLICKHOUSE_PORT", "9000"))
	if err != nil {
		return nil, fmt.Errorf("invalid CLICKHOUSE_PORT: %w", err)
	}
	cfg.ClickhousePort = port

	orgID, err := strconv.ParseInt(getEnv("ORG_ID", "0"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid ORG_ID: %w", err)
	}
	cfg.OrgID = orgID

	windowDays, err := strconv.Atoi(getEnv("RUN_WINDOW_DAYS", strconv.Itoa(DefaultRunWindowDays)))
	if err != nil {
		return nil, fmt.Errorf("invalid RUN_WINDOW_DAYS: %w", err)
	}
	cfg.RunWindowDays = windowDays

	concurrency, err := strconv.Atoi(getEnv("MAX_CONCURRENCY", strconv.Itoa(DefaultMaxConcurrency)))
	if err != nil {
		return nil, fmt.Errorf("invalid MAX_CONCURRENCY: %w", err)
	}
	cfg.MaxConcurrency = concurrency

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ClickHouseURL returns the native-protocol connection URL for the warehouse.
func (c *Config) ClickHouseURL() string {
	return fmt.Sprintf("clickhouse://%s:%s@%s:%d/%s",
		c.ClickhouseUsername,
		c.ClickhousePassword,
		c.ClickhouseHost,
		c.ClickhousePort,
		c.ClickhouseDatabase,
	)
}

func (c *Config) String() string {
	passwordDisplay := "(not set)"
	if c.ClickhousePassword != "" {
		passwordDisplay = "********"
	}

	return fmt.Sprintf(`Current Configuration:
======================
Log Level:           %s
Tasks Dir:           %s
Migrations Dir:      %s
ClickHouse Host:     %s
ClickHouse Port:     %d
ClickHouse Database: %s
ClickHouse Username: %s
ClickHouse Password: %s
Org ID:              %d
Run Window Days:     %d
Max Concurrency:     %d`,
		c.LogLevel,
		c.TasksDir,
		c.MigrationsDir,
		c.ClickhouseHost,
		c.ClickhousePort,
		c.ClickhouseDatabase,
		c.ClickhouseUsername,
		passwordDisplay,
		c.OrgID,
		c.RunWindowDays,
		c.MaxConcurrency,
	)
}
