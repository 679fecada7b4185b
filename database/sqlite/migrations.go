package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/strongbox"
)

// quoteIdentifier safely quotes a SQLite identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, db *sql.DB) error
	Down      func(ctx context.Context, db *sql.DB) error
}

// getTableMigrations returns all table migrations in dependency order.
func getTableMigrations(tables strongbox.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.Buckets,
			Up:        createBucketsTable(tables.Buckets),
			Down:      dropTable(tables.Buckets),
		},
		{
			TableName: tables.Objects,
			Up:        createObjectsTable(tables.Objects, tables.Buckets),
			Down:      dropTable(tables.Objects),
		},
	}
}

func Migrate(ctx context.Context, db *sql.DB, tables strongbox.Tables) error {
	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}
	return nil
}

func DropTables(ctx context.Context, db *sql.DB, tables strongbox.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, db); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createBucketsTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)
		indexOwner := quoteIdentifier(fmt.Sprintf("idx_%s_owner", tableName))

		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL PRIMARY KEY,
				name TEXT NOT NULL UNIQUE,
				owner_id TEXT NOT NULL,
				owner_name TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)
		`, quotedTable)

		if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		indexSQL := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_name, name)`, indexOwner, quotedTable)
		if _, err := db.ExecContext(ctx, indexSQL); err != nil {
			return fmt.Errorf("create index owner: %w", err)
		}

		return nil
	}
}

func createObjectsTable(tableName, bucketsTable string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)
		indexOwner := quoteIdentifier(fmt.Sprintf("idx_%s_owner", tableName))
		indexBucket := quoteIdentifier(fmt.Sprintf("idx_%s_bucket_id", tableName))
		indexScan := quoteIdentifier(fmt.Sprintf("idx_%s_scan", tableName))

		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id TEXT NOT NULL PRIMARY KEY,
				bucket_id TEXT NOT NULL REFERENCES %s (id),
				bucket_name TEXT NOT NULL,
				object_key TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				owner_name TEXT NOT NULL,
				file_storage_path TEXT NOT NULL,
				extension TEXT NOT NULL,
				size INTEGER NOT NULL,
				etag TEXT NOT NULL,
				download_url TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL,
				UNIQUE (bucket_name, object_key)
			)
		`, quotedTable, quoteIdentifier(bucketsTable))

		if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		indexes := []struct {
			name, sql string
		}{
			{"owner", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (owner_name, bucket_name, object_key)`, indexOwner, quotedTable)},
			{"bucket_id", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (bucket_id)`, indexBucket, quotedTable)},
			{"scan", fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (created_at, id)`, indexScan, quotedTable)},
		}
		for _, idx := range indexes {
			if _, err := db.ExecContext(ctx, idx.sql); err != nil {
				return fmt.Errorf("create index %s: %w", idx.name, err)
			}
		}

		return nil
	}
}

func dropTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		quotedTable := quoteIdentifier(tableName)
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quotedTable)

		_, err := db.ExecContext(ctx, dropSQL)
		return err
	}
}
