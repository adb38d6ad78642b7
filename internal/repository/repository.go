// Package repository stores an imported ledger in SQLite or PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/ledgerlens/internal/domain"
)

var (
	ErrNotFound     = domain.ErrNotFound
	ErrInvalidInput = domain.ErrInvalidArgument
)

// SQLRepository implements domain.LedgerStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver: %s", ErrInvalidInput, cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Import replaces the stored ledger in a single database transaction.
func (r *SQLRepository) Import(ctx context.Context, header []string, rows [][]string, labels map[int64]bool) error {
	if len(header) == 0 {
		return fmt.Errorf("%w: header is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, table := range []string{"ledger_columns", "ledger_rows", "fraud_labels"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	colStmt, err := tx.PrepareContext(ctx, r.rebind(`INSERT INTO ledger_columns (position, name) VALUES (?, ?)`))
	if err != nil {
		return err
	}
	defer colStmt.Close()
	for i, name := range header {
		if _, err := colStmt.ExecContext(ctx, i, name); err != nil {
			return fmt.Errorf("failed to insert column %q: %w", name, err)
		}
	}

	rowStmt, err := tx.PrepareContext(ctx, r.rebind(`INSERT INTO ledger_rows (seq, payload) VALUES (?, ?)`))
	if err != nil {
		return err
	}
	defer rowStmt.Close()
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("%w: row %d has %d cells, header has %d", ErrInvalidInput, i, len(row), len(header))
		}
		payload, err := json.Marshal(row)
		if err != nil {
			return err
		}
		if _, err := rowStmt.ExecContext(ctx, int64(i), string(payload)); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}

	labelStmt, err := tx.PrepareContext(ctx, r.rebind(`INSERT INTO fraud_labels (tx_id, label) VALUES (?, ?)`))
	if err != nil {
		return err
	}
	defer labelStmt.Close()
	for id, fraud := range labels {
		label := 0
		if fraud {
			label = 1
		}
		if _, err := labelStmt.ExecContext(ctx, id, label); err != nil {
			return fmt.Errorf("failed to insert label %d: %w", id, err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		r.rebind(`INSERT INTO ledger_imports (row_count, label_count, imported_at) VALUES (?, ?, ?)`),
		int64(len(rows)), int64(len(labels)), time.Now().UTC(),
	); err != nil {
		return err
	}

	return tx.Commit()
}

// ReadLedger returns the imported header and rows in seq order.
// Returns ErrNotFound when nothing has been imported.
func (r *SQLRepository) ReadLedger(ctx context.Context) ([]string, [][]string, error) {
	colRows, err := r.db.QueryContext(ctx, `SELECT name FROM ledger_columns ORDER BY position`)
	if err != nil {
		return nil, nil, err
	}
	defer colRows.Close()

	var header []string
	for colRows.Next() {
		var name string
		if err := colRows.Scan(&name); err != nil {
			return nil, nil, err
		}
		header = append(header, name)
	}
	if err := colRows.Err(); err != nil {
		return nil, nil, err
	}
	if len(header) == 0 {
		return nil, nil, fmt.Errorf("%w: no ledger imported", ErrNotFound)
	}

	dataRows, err := r.db.QueryContext(ctx, `SELECT seq, payload FROM ledger_rows ORDER BY seq`)
	if err != nil {
		return nil, nil, err
	}
	defer dataRows.Close()

	var rows [][]string
	for dataRows.Next() {
		var seq int64
		var payload string
		if err := dataRows.Scan(&seq, &payload); err != nil {
			return nil, nil, err
		}
		var cells []string
		if err := json.Unmarshal([]byte(payload), &cells); err != nil {
			return nil, nil, fmt.Errorf("%w: row %s payload: %v", domain.ErrInternal, strconv.FormatInt(seq, 10), err)
		}
		rows = append(rows, cells)
	}

	return header, rows, dataRows.Err()
}

// ReadLabels returns the imported fraud labels keyed by transaction id.
func (r *SQLRepository) ReadLabels(ctx context.Context) (map[int64]bool, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT tx_id, label FROM fraud_labels`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	labels := make(map[int64]bool)
	for rows.Next() {
		var id int64
		var label int
		if err := rows.Scan(&id, &label); err != nil {
			return nil, err
		}
		labels[id] = label == 1
	}

	return labels, rows.Err()
}

// LastImport returns the time of the most recent import, or zero if none.
func (r *SQLRepository) LastImport(ctx context.Context) (time.Time, error) {
	var ts time.Time
	err := r.db.QueryRowContext(ctx, `SELECT imported_at FROM ledger_imports ORDER BY imported_at DESC LIMIT 1`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return ts, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}

var _ domain.LedgerStore = (*SQLRepository)(nil)
