package repository

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/domain"
	_ "github.com/lib/pq"
)

const pingTimeout = 5 * time.Second

// openPostgres opens the pro-tier ledger store.
func openPostgres(cfg domain.RepositoryConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", postgresDSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	return db, ping(db, "postgres")
}

// ping verifies a freshly opened pool and closes it on failure.
func ping(db *sql.DB, driver string) error {
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping %s database: %w", driver, err)
	}
	return nil
}

func postgresDSN(cfg domain.RepositoryConfig) string {
	host := cmp.Or(cfg.PostgresHost, "localhost")
	port := cmp.Or(cfg.PostgresPort, 5432)
	dbname := cmp.Or(cfg.PostgresDB, "ledgerlens")
	sslmode := cmp.Or(cfg.PostgresSSLMode, "disable")

	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		host, port, cfg.PostgresUser, cfg.PostgresPassword, dbname, sslmode,
	)
}
