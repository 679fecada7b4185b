package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database/internal"
)

const timestamptz = "timestamp with time zone"

var bucketsTableSchema = internal.Schema{
	"id":         {Type: "uuid"},
	"name":       {Type: "text"},
	"owner_id":   {Type: "text"},
	"owner_name": {Type: "text"},
	"created_at": {Type: timestamptz},
	"updated_at": {Type: timestamptz},
}

var objectsTableSchema = internal.Schema{
	"id":                {Type: "uuid"},
	"bucket_id":         {Type: "uuid"},
	"bucket_name":       {Type: "text"},
	"object_key":        {Type: "text"},
	"owner_id":          {Type: "text"},
	"owner_name":        {Type: "text"},
	"file_storage_path": {Type: "text"},
	"extension":         {Type: "text"},
	"size":              {Type: "bigint"},
	"etag":              {Type: "text"},
	"download_url":      {Type: "text"},
	"created_at":        {Type: timestamptz},
	"updated_at":        {Type: timestamptz},
}

// liveSchema reads the columns of table in the current schema. A missing
// table yields an empty schema.
func liveSchema(ctx context.Context, pool *pgxpool.Pool, table string) (internal.Schema, error) {
	rows, err := pool.Query(ctx, `
		SELECT column_name, data_type, is_nullable = 'YES'
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}

	schema := internal.Schema{}
	var name, dataType string
	var nullable bool
	_, err = pgx.ForEachRow(rows, []any{&name, &dataType, &nullable}, func() error {
		schema[name] = internal.Column{Type: dataType, Nullable: nullable}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}
	return schema, nil
}

// ValidateSchema checks that both tables exist with the expected columns.
func ValidateSchema(ctx context.Context, pool *pgxpool.Pool, tables strongbox.Tables) error {
	for _, tv := range []struct {
		name   string
		schema internal.Schema
	}{
		{tables.Buckets, bucketsTableSchema},
		{tables.Objects, objectsTableSchema},
	} {
		if !strongbox.IsValidTableName(tv.name) {
			return fmt.Errorf("validate schema: invalid table name: %s", tv.name)
		}

		live, err := liveSchema(ctx, pool, tv.name)
		if err != nil {
			return fmt.Errorf("validate schema %s: %w", tv.name, err)
		}

		if err := internal.CompareSchema(tv.name, tv.schema, live); err != nil {
			return fmt.Errorf("validate schema: %w", err)
		}
	}

	return nil
}
