package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database/internal"
)

var bucketsTableSchema = internal.Schema{
	"id":         {Type: "text"},
	"name":       {Type: "text"},
	"owner_id":   {Type: "text"},
	"owner_name": {Type: "text"},
	"created_at": {Type: "text"},
	"updated_at": {Type: "text"},
}

var objectsTableSchema = internal.Schema{
	"id":                {Type: "text"},
	"bucket_id":         {Type: "text"},
	"bucket_name":       {Type: "text"},
	"object_key":        {Type: "text"},
	"owner_id":          {Type: "text"},
	"owner_name":        {Type: "text"},
	"file_storage_path": {Type: "text"},
	"extension":         {Type: "text"},
	"size":              {Type: "integer"},
	"etag":              {Type: "text"},
	"download_url":      {Type: "text"},
	"created_at":        {Type: "text"},
	"updated_at":        {Type: "text"},
}

// liveSchema reads a table's columns with the pragma_table_info table-valued
// function, which returns no rows for a missing table.
func liveSchema(ctx context.Context, db *sql.DB, table string) (internal.Schema, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, type, "notnull" FROM pragma_table_info(?)`, table)
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	schema := internal.Schema{}
	for rows.Next() {
		var name, dataType string
		var notNull bool
		if err := rows.Scan(&name, &dataType, &notNull); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		schema[name] = internal.Column{Type: dataType, Nullable: !notNull}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan columns: %w", err)
	}

	return schema, nil
}

// ValidateSchema checks that both tables exist with the expected columns.
func ValidateSchema(ctx context.Context, db *sql.DB, tables strongbox.Tables) error {
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

		live, err := liveSchema(ctx, db, tv.name)
		if err != nil {
			return fmt.Errorf("validate schema %s: %w", tv.name, err)
		}

		if err := internal.CompareSchema(tv.name, tv.schema, live); err != nil {
			return fmt.Errorf("validate schema: %w", err)
		}
	}

	return nil
}
