// Package domain defines the core interfaces and types for LedgerLens.
package domain

import (
	"context"
	"time"
)

// LedgerStore is a SQL-backed copy of a ledger and its fraud labels.
// The analytics engine only reads from it; Import is used by the loader CLI.
type LedgerStore interface {
	// Import replaces the stored ledger with header, rows and labels.
	Import(ctx context.Context, header []string, rows [][]string, labels map[int64]bool) error

	// ReadLedger returns the header and all rows in import order.
	ReadLedger(ctx context.Context) ([]string, [][]string, error)

	// ReadLabels returns the label table. Empty when no labels were imported.
	ReadLabels(ctx context.Context) (map[int64]bool, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
