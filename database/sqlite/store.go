// Package sqlite implements strongbox.MetaDataStore on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database/internal"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// timeFormat is fixed width so that text ordering matches time ordering.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

const bucketColumns = `id, name, owner_id, owner_name, created_at, updated_at`

const objectColumns = `id, bucket_id, bucket_name, object_key, owner_id, owner_name,
	file_storage_path, extension, size, etag, download_url, created_at, updated_at`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// Store runs metadata operations inside SQLite transactions.
type Store struct {
	db     *sql.DB
	tables strongbox.Tables
}

var _ strongbox.MetaDataStore = (*Store)(nil)

// WithTx commits when fn returns nil and rolls back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx strongbox.MetaDataTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", strongbox.ErrPersistence, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if fnErr := fn(&txStore{tx: tx, buckets: quoteIdentifier(s.tables.Buckets), objects: quoteIdentifier(s.tables.Objects)}); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return fnErr
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w: %w", strongbox.ErrPersistence, err)
	}
	return nil
}

type txStore struct {
	tx      *sql.Tx
	buckets string
	objects string
}

func wrapErr(op string, err error) error {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%s: %w", op, strongbox.ErrAlreadyExists)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, strongbox.ErrPersistence, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanBucket(row scanner) (strongbox.Bucket, error) {
	var (
		b                    strongbox.Bucket
		id                   string
		createdAt, updatedAt string
	)
	if err := row.Scan(&id, &b.Name, &b.OwnerID, &b.OwnerName, &createdAt, &updatedAt); err != nil {
		return strongbox.Bucket{}, err
	}

	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return strongbox.Bucket{}, fmt.Errorf("parse uuid: %w", err)
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return strongbox.Bucket{}, fmt.Errorf("parse created_at: %w", err)
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return strongbox.Bucket{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return b, nil
}

func scanObject(row scanner) (strongbox.Object, error) {
	var (
		o                    strongbox.Object
		id, bucketID         string
		createdAt, updatedAt string
	)
	err := row.Scan(&id, &bucketID, &o.BucketName, &o.Key, &o.OwnerID, &o.OwnerName,
		&o.StoragePath, &o.Extension, &o.Size, &o.Etag, &o.DownloadURL, &createdAt, &updatedAt)
	if err != nil {
		return strongbox.Object{}, err
	}

	if o.ID, err = uuid.Parse(id); err != nil {
		return strongbox.Object{}, fmt.Errorf("parse uuid: %w", err)
	}
	if o.BucketID, err = uuid.Parse(bucketID); err != nil {
		return strongbox.Object{}, fmt.Errorf("parse bucket uuid: %w", err)
	}
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return strongbox.Object{}, fmt.Errorf("parse created_at: %w", err)
	}
	if o.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return strongbox.Object{}, fmt.Errorf("parse updated_at: %w", err)
	}
	return o, nil
}

func collectObjects(rows *sql.Rows) ([]strongbox.Object, error) {
	defer func() { _ = rows.Close() }()

	objects := []strongbox.Object{}
	for rows.Next() {
		o, err := scanObject(rows)
		if err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		objects = append(objects, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return objects, nil
}

func (t *txStore) InsertBucket(ctx context.Context, b strongbox.Bucket) (strongbox.Bucket, error) {
	now := time.Now().UTC()
	id := uuid.New()

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, name, owner_id, owner_name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`, t.buckets)

	_, err := t.tx.ExecContext(ctx, query, id.String(), b.Name, b.OwnerID, b.OwnerName, formatTime(now), formatTime(now))
	if err != nil {
		return strongbox.Bucket{}, wrapErr("insert bucket", err)
	}

	b.ID = id
	b.CreatedAt = now
	b.UpdatedAt = now
	return b, nil
}

func (t *txStore) GetBucketByName(ctx context.Context, name string) (strongbox.Bucket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE name = ?`, bucketColumns, t.buckets) //nolint:gosec // table name is validated

	b, err := scanBucket(t.tx.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return strongbox.Bucket{}, strongbox.ErrNotFound
		}
		return strongbox.Bucket{}, wrapErr("get bucket", err)
	}
	return b, nil
}

func (t *txStore) ListBucketsByOwner(ctx context.Context, ownerName string) ([]strongbox.Bucket, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE owner_name = ? ORDER BY name`, bucketColumns, t.buckets)

	rows, err := t.tx.QueryContext(ctx, query, ownerName)
	if err != nil {
		return nil, wrapErr("list buckets", err)
	}
	defer func() { _ = rows.Close() }()

	buckets := []strongbox.Bucket{}
	for rows.Next() {
		b, scanErr := scanBucket(rows)
		if scanErr != nil {
			return nil, wrapErr("list buckets: scan", scanErr)
		}
		buckets = append(buckets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list buckets: rows", err)
	}
	return buckets, nil
}

func (t *txStore) DeleteBucket(ctx context.Context, id uuid.UUID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, t.buckets) //nolint:gosec // table name is validated

	result, err := t.tx.ExecContext(ctx, query, id.String())
	if err != nil {
		return wrapErr("delete bucket", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return wrapErr("delete bucket: rows affected", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("delete bucket: %w", strongbox.ErrNotFound)
	}
	return nil
}

func (t *txStore) CountObjects(ctx context.Context, bucketID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE bucket_id = ?`, t.objects) //nolint:gosec // table name is validated

	var count int64
	if err := t.tx.QueryRowContext(ctx, query, bucketID.String()).Scan(&count); err != nil {
		return 0, wrapErr("count objects", err)
	}
	return count, nil
}

func (t *txStore) UpsertObject(ctx context.Context, row strongbox.ObjectRow) (strongbox.Object, bool, error) {
	now := formatTime(time.Now())
	newID := uuid.New()

	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (id, bucket_id, bucket_name, object_key, owner_id, owner_name,
			file_storage_path, extension, size, etag, download_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (bucket_name, object_key) DO UPDATE
		SET bucket_id = excluded.bucket_id,
			owner_id = excluded.owner_id,
			owner_name = excluded.owner_name,
			file_storage_path = excluded.file_storage_path,
			extension = excluded.extension,
			size = excluded.size,
			etag = excluded.etag,
			download_url = excluded.download_url,
			updated_at = excluded.updated_at
		RETURNING %s`, t.objects, objectColumns)

	o, err := scanObject(t.tx.QueryRowContext(ctx, query,
		newID.String(), row.BucketID.String(), row.BucketName, row.Key, row.OwnerID, row.OwnerName,
		row.StoragePath, row.Extension, row.Size, row.Etag, row.DownloadURL, now, now,
	))
	if err != nil {
		return strongbox.Object{}, false, wrapErr("upsert object", err)
	}

	return o, o.ID == newID, nil
}

func (t *txStore) GetObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT %s FROM %s WHERE bucket_name = ? AND object_key = ? AND owner_name = ?`, objectColumns, t.objects)

	o, err := scanObject(t.tx.QueryRowContext(ctx, query, bucketName, key, ownerName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return strongbox.Object{}, strongbox.ErrNotFound
		}
		return strongbox.Object{}, wrapErr("get object", err)
	}
	return o, nil
}

func (t *txStore) ListObjects(ctx context.Context, bucketName, ownerName string) ([]strongbox.Object, error) {
	var (
		query string
		args  []any
	)
	if bucketName == "" {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s WHERE owner_name = ? ORDER BY bucket_name, object_key`, objectColumns, t.objects)
		args = []any{ownerName}
	} else {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s WHERE owner_name = ? AND bucket_name = ? ORDER BY object_key`, objectColumns, t.objects)
		args = []any{ownerName, bucketName}
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list objects", err)
	}

	objects, err := collectObjects(rows)
	if err != nil {
		return nil, wrapErr("list objects", err)
	}
	return objects, nil
}

func (t *txStore) DeleteObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE bucket_name = ? AND object_key = ? AND owner_name = ? RETURNING %s`, t.objects, objectColumns)

	o, err := scanObject(t.tx.QueryRowContext(ctx, query, bucketName, key, ownerName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return strongbox.Object{}, strongbox.ErrNotFound
		}
		return strongbox.Object{}, wrapErr("delete object", err)
	}
	return o, nil
}

func (t *txStore) DeleteObjectsInBucket(ctx context.Context, bucketID uuid.UUID) ([]strongbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`DELETE FROM %s WHERE bucket_id = ? RETURNING %s`, t.objects, objectColumns)

	rows, err := t.tx.QueryContext(ctx, query, bucketID.String())
	if err != nil {
		return nil, wrapErr("delete objects in bucket", err)
	}

	objects, err := collectObjects(rows)
	if err != nil {
		return nil, wrapErr("delete objects in bucket", err)
	}
	return objects, nil
}

func (t *txStore) ListAllObjects(ctx context.Context, q strongbox.ListQuery) (strongbox.ListResult, error) {
	if q.Limit <= 0 {
		return strongbox.ListResult{}, fmt.Errorf("list all objects: %w: limit must be positive", strongbox.ErrInvalidInput)
	}

	cursor, err := internal.DecodeCursor(q.Cursor)
	if err != nil {
		return strongbox.ListResult{}, fmt.Errorf("list all objects: %w: %w", strongbox.ErrInvalidInput, err)
	}

	var (
		query string
		args  []any
	)
	if q.Cursor == "" {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s ORDER BY created_at, id LIMIT ?`, objectColumns, t.objects)
		args = []any{q.Limit + 1}
	} else {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is validated
			`SELECT %s FROM %s WHERE (created_at, id) > (?, ?) ORDER BY created_at, id LIMIT ?`, objectColumns, t.objects)
		args = []any{formatTime(cursor.CreatedAt), cursor.ID, q.Limit + 1}
	}

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return strongbox.ListResult{}, wrapErr("list all objects", err)
	}

	items, err := collectObjects(rows)
	if err != nil {
		return strongbox.ListResult{}, wrapErr("list all objects", err)
	}

	var nextCursor string
	if len(items) > q.Limit {
		// Cursor points to the last item of the current page
		last := items[q.Limit-1]
		nextCursor = internal.EncodeCursor(last.CreatedAt, last.ID.String())
		items = items[:q.Limit]
	}

	return strongbox.ListResult{Items: items, NextCursor: nextCursor}, nil
}
