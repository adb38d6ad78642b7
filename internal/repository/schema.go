package repository

// Schema definitions for the imported ledger.
// Compatible with both SQLite and PostgreSQL.

const schemaLedgerColumns = `
CREATE TABLE IF NOT EXISTS ledger_columns (
    position INTEGER PRIMARY KEY,
    name TEXT NOT NULL
);
`

// payload is a JSON array of the row's cells in header order.
const schemaLedgerRows = `
CREATE TABLE IF NOT EXISTS ledger_rows (
    seq BIGINT PRIMARY KEY,
    payload TEXT NOT NULL
);
`

const schemaFraudLabels = `
CREATE TABLE IF NOT EXISTS fraud_labels (
    tx_id BIGINT PRIMARY KEY,
    label INTEGER NOT NULL
);
`

const schemaImports = `
CREATE TABLE IF NOT EXISTS ledger_imports (
    row_count BIGINT NOT NULL,
    label_count BIGINT NOT NULL,
    imported_at TIMESTAMP NOT NULL
);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaLedgerColumns,
		schemaLedgerRows,
		schemaFraudLabels,
		schemaImports,
	}
}
