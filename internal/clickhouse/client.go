// Package clickhouse provides warehouse connection and admin utilities
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/sirupsen/logrus"

	"github.com/pressmetrics/metrictask/internal/config"
)

// Client wraps a native-protocol connection for admin operations such as
// the migrate preflight. Metric reads go through the ingest store instead.
type Client struct {
	log  logrus.FieldLogger
	conn driver.Conn
}

// NewClient opens a native connection to the warehouse and verifies it with
// a ping. The connection targets the default database so the configured one
// can be created if it does not exist yet.
func NewClient(log logrus.FieldLogger, cfg *config.Config) (*Client, error) {
	options := &clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%d", cfg.ClickhouseHost, cfg.ClickhousePort)},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.ClickhouseUsername,
			Password: cfg.ClickhousePassword,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     time.Second * 30,
		MaxOpenConns:    5,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Duration(10) * time.Minute,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}

	conn, err := clickhouse.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection: %w", err)
	}

	c := &Client{
		log:  log.WithField("component", "clickhouse"),
		conn: conn,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Ping(ctx); err != nil {
		_ = conn.Close()

		return nil, err
	}

	return c, nil
}

// Ping checks that the warehouse is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return nil
}

// CreateDatabase creates a database if it doesn't exist.
func (c *Client) CreateDatabase(ctx context.Context, name string) error {
	query := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s`", name)

	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create database %s: %w", name, err)
	}

	c.log.WithField("database", name).Debug("Database ready")

	return nil
}

// DatabaseExists reports whether the named database is present.
func (c *Client) DatabaseExists(ctx context.Context, name string) (bool, error) {
	var count uint64
	query := "SELECT count() FROM system.databases WHERE name = ?"

	if err := c.conn.QueryRow(ctx, query, name).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check if database exists: %w", err)
	}

	return count > 0, nil
}

// DataTables lists the tables of a database, skipping the migration
// bookkeeping table.
func (c *Client) DataTables(ctx context.Context, database string) ([]string, error) {
	query := `SELECT name
FROM system.tables
WHERE database = ? AND name != 'schema_migrations'
ORDER BY name`

	rows, err := c.conn.Query(ctx, query, database)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var tables []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}

		tables = append(tables, name)
	}

	return tables, rows.Err()
}

// TruncateTable removes all rows from a table.
func (c *Client) TruncateTable(ctx context.Context, database, table string) error {
	query := fmt.Sprintf("TRUNCATE TABLE `%s`.`%s`", database, table)

	if err := c.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to truncate %s: %w", table, err)
	}

	return nil
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
