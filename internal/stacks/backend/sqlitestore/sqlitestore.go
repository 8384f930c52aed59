// Package sqlitestore implements backend.Backend on top of a SQLite
// database, for deployments that want Stacks' volumes alongside other
// application tables instead of a dedicated flat file.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Backend stores Stacks' opaque volume blobs in a single table.
type Backend struct {
	db    *sql.DB
	table string
}

// Config configures the sqlite backend.
type Config struct {
	// Path is the database file path, or ":memory:" for an ephemeral store.
	Path string
	// Table overrides the default table name ("stacks_records").
	Table string
}

// New opens (creating if necessary) the sqlite database and its records
// table.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Table == "" {
		cfg.Table = "stacks_records"
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}

	b := &Backend{db: db, table: cfg.Table}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s (key TEXT PRIMARY KEY, value BLOB NOT NULL)`,
		b.table,
	))
	if err != nil {
		return fmt.Errorf("sqlitestore: create table: %w", err)
	}
	return nil
}

// Load returns every stored record.
func (b *Backend) Load(ctx context.Context) (map[string][]byte, error) {
	rows, err := b.db.QueryContext(ctx, fmt.Sprintf(`SELECT key, value FROM %s`, b.table))
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: query: %w", err)
	}
	defer rows.Close()

	records := make(map[string][]byte)
	for rows.Next() {
		var key string
		var value []byte
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan: %w", err)
		}
		records[key] = value
	}
	return records, rows.Err()
}

// Save replaces the table contents with records in a single transaction.
func (b *Backend) Save(ctx context.Context, records map[string][]byte) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlitestore: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s`, b.table)); err != nil {
		return fmt.Errorf("sqlitestore: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		`INSERT INTO %s (key, value) VALUES (?, ?)`, b.table,
	))
	if err != nil {
		return fmt.Errorf("sqlitestore: prepare: %w", err)
	}
	defer stmt.Close()

	for key, value := range records {
		if _, err := stmt.ExecContext(ctx, key, value); err != nil {
			return fmt.Errorf("sqlitestore: insert: %w", err)
		}
	}

	return tx.Commit()
}

// Close releases the underlying database handle.
func (b *Backend) Close() error {
	return b.db.Close()
}
