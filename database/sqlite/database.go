package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/strongbox"

	_ "modernc.org/sqlite" // SQLite driver
)

// DB provides SQLite database operations.
type DB struct {
	db     *sql.DB
	tables strongbox.Tables
}

// Connect opens the SQLite database at dsn. The pool is limited to one
// connection: SQLite serialises writers anyway, and an in-memory database
// only exists on the connection that created it.
func Connect(ctx context.Context, dsn string, tables strongbox.Tables) (*DB, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}

	return &DB{
		db:     db,
		tables: tables,
	}, nil
}

// Ping verifies the database connection is alive.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Migrate runs database migrations to create required tables.
func (d *DB) Migrate(ctx context.Context) error {
	if err := Migrate(ctx, d.db, d.tables); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Validate checks that the database schema matches expected structure.
func (d *DB) Validate(ctx context.Context) error {
	return ValidateSchema(ctx, d.db, d.tables)
}

// DropTables removes all tables in reverse dependency order.
func (d *DB) DropTables(ctx context.Context) error {
	return DropTables(ctx, d.db, d.tables)
}

// Store returns the MetaDataStore backed by this database.
func (d *DB) Store() strongbox.MetaDataStore {
	return &Store{db: d.db, tables: d.tables}
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.db.Close()
}
