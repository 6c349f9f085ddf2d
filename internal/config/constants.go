package config

const (
	// DefaultTasksDir is the directory task documents are loaded from.
	DefaultTasksDir = "tasks"
	// DefaultMigrationsDir is the directory warehouse DDL is loaded from.
	DefaultMigrationsDir = "migrations"
	// DefaultDatabase is the warehouse database raw metrics live in.
	DefaultDatabase = "metrics"
	// DefaultRunWindowDays is the request window length when RUN_WINDOW_DAYS is unset.
	DefaultRunWindowDays = 30
	// DefaultMaxConcurrency bounds content item fan-out when MAX_CONCURRENCY is unset.
	DefaultMaxConcurrency = 4
)
