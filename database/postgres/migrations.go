package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/strongbox"
)

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, pool *pgxpool.Pool) error
	Down      func(ctx context.Context, pool *pgxpool.Pool) error
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

func Migrate(ctx context.Context, pool *pgxpool.Pool, tables strongbox.Tables) error {
	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, pool); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}
	return nil
}

func DropTables(ctx context.Context, pool *pgxpool.Pool, tables strongbox.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, pool); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

func createBucketsTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		quotedTable := pgx.Identifier{tableName}.Sanitize()
		indexOwner := pgx.Identifier{fmt.Sprintf("idx_%s_owner", tableName)}.Sanitize()

		sql := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				name TEXT NOT NULL UNIQUE,
				owner_id TEXT NOT NULL,
				owner_name TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (owner_name, name);
		`,
			quotedTable,
			indexOwner, quotedTable,
		)

		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create buckets table: %w", err)
		}
		return nil
	}
}

func createObjectsTable(tableName, bucketsTable string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		quotedTable := pgx.Identifier{tableName}.Sanitize()
		quotedBuckets := pgx.Identifier{bucketsTable}.Sanitize()
		indexOwner := pgx.Identifier{fmt.Sprintf("idx_%s_owner", tableName)}.Sanitize()
		indexBucket := pgx.Identifier{fmt.Sprintf("idx_%s_bucket_id", tableName)}.Sanitize()
		indexScan := pgx.Identifier{fmt.Sprintf("idx_%s_scan", tableName)}.Sanitize()

		sql := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
				bucket_id UUID NOT NULL REFERENCES %s (id),
				bucket_name TEXT NOT NULL,
				object_key TEXT NOT NULL,
				owner_id TEXT NOT NULL,
				owner_name TEXT NOT NULL,
				file_storage_path TEXT NOT NULL,
				extension TEXT NOT NULL,
				size BIGINT NOT NULL,
				etag TEXT NOT NULL,
				download_url TEXT NOT NULL,
				created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
				UNIQUE (bucket_name, object_key)
			);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (owner_name, bucket_name, object_key);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (bucket_id);

			CREATE INDEX IF NOT EXISTS %s
			ON %s (created_at, id);
		`,
			quotedTable, quotedBuckets,
			indexOwner, quotedTable,
			indexBucket, quotedTable,
			indexScan, quotedTable,
		)

		if _, err := pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("create objects table: %w", err)
		}
		return nil
	}
}

func dropTable(tableName string) func(context.Context, *pgxpool.Pool) error {
	return func(ctx context.Context, pool *pgxpool.Pool) error {
		sql := fmt.Sprintf("DROP TABLE IF EXISTS %s", pgx.Identifier{tableName}.Sanitize())
		_, err := pool.Exec(ctx, sql)
		return err
	}
}
