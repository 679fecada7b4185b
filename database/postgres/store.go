// Package postgres implements strongbox.MetaDataStore on PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database/internal"
)

const uniqueViolation = "23505"

const bucketColumns = `id, name, owner_id, owner_name, created_at, updated_at`

const objectColumns = `id, bucket_id, bucket_name, object_key, owner_id, owner_name,
	file_storage_path, extension, size, etag, download_url, created_at, updated_at`

// Store runs metadata operations inside PostgreSQL transactions.
type Store struct {
	pool   *pgxpool.Pool
	tables strongbox.Tables
}

var _ strongbox.MetaDataStore = (*Store)(nil)

func NewStore(pool *pgxpool.Pool, tables strongbox.Tables) *Store {
	return &Store{pool: pool, tables: tables}
}

// WithTx commits when fn returns nil and rolls back on error or panic.
func (s *Store) WithTx(ctx context.Context, fn func(tx strongbox.MetaDataTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w: %w", strongbox.ErrPersistence, err)
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(context.Background())
			panic(p)
		}
	}()

	store := &txStore{
		tx:      tx,
		buckets: pgx.Identifier{s.tables.Buckets}.Sanitize(),
		objects: pgx.Identifier{s.tables.Objects}.Sanitize(),
	}

	if fnErr := fn(store); fnErr != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			slog.Warn("rollback failed", "error", rbErr)
		}
		return fnErr
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w: %w", strongbox.ErrPersistence, err)
	}
	return nil
}

type txStore struct {
	tx      pgx.Tx
	buckets string
	objects string
}

func wrapErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%s: %w", op, strongbox.ErrAlreadyExists)
	}
	return fmt.Errorf("%s: %w: %w", op, strongbox.ErrPersistence, err)
}

func scanBucket(row pgx.Row) (strongbox.Bucket, error) {
	var b strongbox.Bucket
	if err := row.Scan(&b.ID, &b.Name, &b.OwnerID, &b.OwnerName, &b.CreatedAt, &b.UpdatedAt); err != nil {
		return strongbox.Bucket{}, err
	}
	b.CreatedAt = b.CreatedAt.UTC()
	b.UpdatedAt = b.UpdatedAt.UTC()
	return b, nil
}

func scanObject(row pgx.Row, extra ...any) (strongbox.Object, error) {
	var o strongbox.Object
	dest := []any{&o.ID, &o.BucketID, &o.BucketName, &o.Key, &o.OwnerID, &o.OwnerName,
		&o.StoragePath, &o.Extension, &o.Size, &o.Etag, &o.DownloadURL, &o.CreatedAt, &o.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return strongbox.Object{}, err
	}
	o.CreatedAt = o.CreatedAt.UTC()
	o.UpdatedAt = o.UpdatedAt.UTC()
	return o, nil
}

func collectObjects(rows pgx.Rows) ([]strongbox.Object, error) {
	defer rows.Close()

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
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`INSERT INTO %s (name, owner_id, owner_name)
		VALUES ($1, $2, $3)
		RETURNING %s`, t.buckets, bucketColumns)

	inserted, err := scanBucket(t.tx.QueryRow(ctx, query, b.Name, b.OwnerID, b.OwnerName))
	if err != nil {
		return strongbox.Bucket{}, wrapErr("insert bucket", err)
	}
	return inserted, nil
}

func (t *txStore) GetBucketByName(ctx context.Context, name string) (strongbox.Bucket, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE name = $1`, bucketColumns, t.buckets) //nolint:gosec // table name is sanitized

	b, err := scanBucket(t.tx.QueryRow(ctx, query, name))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return strongbox.Bucket{}, strongbox.ErrNotFound
		}
		return strongbox.Bucket{}, wrapErr("get bucket", err)
	}
	return b, nil
}

func (t *txStore) ListBucketsByOwner(ctx context.Context, ownerName string) ([]strongbox.Bucket, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`SELECT %s FROM %s WHERE owner_name = $1 ORDER BY name`, bucketColumns, t.buckets)

	rows, err := t.tx.Query(ctx, query, ownerName)
	if err != nil {
		return nil, wrapErr("list buckets", err)
	}
	defer rows.Close()

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
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, t.buckets) //nolint:gosec // table name is sanitized

	tag, err := t.tx.Exec(ctx, query, id)
	if err != nil {
		return wrapErr("delete bucket", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete bucket: %w", strongbox.ErrNotFound)
	}
	return nil
}

func (t *txStore) CountObjects(ctx context.Context, bucketID uuid.UUID) (int64, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE bucket_id = $1`, t.objects) //nolint:gosec // table name is sanitized

	var count int64
	if err := t.tx.QueryRow(ctx, query, bucketID).Scan(&count); err != nil {
		return 0, wrapErr("count objects", err)
	}
	return count, nil
}

func (t *txStore) UpsertObject(ctx context.Context, row strongbox.ObjectRow) (strongbox.Object, bool, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`INSERT INTO %s (bucket_id, bucket_name, object_key, owner_id, owner_name,
			file_storage_path, extension, size, etag, download_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (bucket_name, object_key) DO UPDATE
		SET bucket_id = EXCLUDED.bucket_id,
			owner_id = EXCLUDED.owner_id,
			owner_name = EXCLUDED.owner_name,
			file_storage_path = EXCLUDED.file_storage_path,
			extension = EXCLUDED.extension,
			size = EXCLUDED.size,
			etag = EXCLUDED.etag,
			download_url = EXCLUDED.download_url,
			updated_at = NOW()
		RETURNING %s, (xmax = 0) AS inserted`, t.objects, objectColumns)

	var inserted bool
	o, err := scanObject(t.tx.QueryRow(ctx, query,
		row.BucketID, row.BucketName, row.Key, row.OwnerID, row.OwnerName,
		row.StoragePath, row.Extension, row.Size, row.Etag, row.DownloadURL,
	), &inserted)
	if err != nil {
		return strongbox.Object{}, false, wrapErr("upsert object", err)
	}
	return o, inserted, nil
}

func (t *txStore) GetObject(ctx context.Context, bucketName, key, ownerName string) (strongbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`SELECT %s FROM %s WHERE bucket_name = $1 AND object_key = $2 AND owner_name = $3`, objectColumns, t.objects)

	o, err := scanObject(t.tx.QueryRow(ctx, query, bucketName, key, ownerName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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
		query = fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
			`SELECT %s FROM %s WHERE owner_name = $1 ORDER BY bucket_name, object_key`, objectColumns, t.objects)
		args = []any{ownerName}
	} else {
		query = fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
			`SELECT %s FROM %s WHERE owner_name = $1 AND bucket_name = $2 ORDER BY object_key`, objectColumns, t.objects)
		args = []any{ownerName, bucketName}
	}

	rows, err := t.tx.Query(ctx, query, args...)
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
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`DELETE FROM %s WHERE bucket_name = $1 AND object_key = $2 AND owner_name = $3 RETURNING %s`, t.objects, objectColumns)

	o, err := scanObject(t.tx.QueryRow(ctx, query, bucketName, key, ownerName))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return strongbox.Object{}, strongbox.ErrNotFound
		}
		return strongbox.Object{}, wrapErr("delete object", err)
	}
	return o, nil
}

func (t *txStore) DeleteObjectsInBucket(ctx context.Context, bucketID uuid.UUID) ([]strongbox.Object, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
		`DELETE FROM %s WHERE bucket_id = $1 RETURNING %s`, t.objects, objectColumns)

	rows, err := t.tx.Query(ctx, query, bucketID)
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
		query = fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
			`SELECT %s FROM %s ORDER BY created_at, id LIMIT $1`, objectColumns, t.objects)
		args = []any{q.Limit + 1}
	} else {
		cursorID, parseErr := uuid.Parse(cursor.ID)
		if parseErr != nil {
			return strongbox.ListResult{}, fmt.Errorf("list all objects: %w: cursor id: %w", strongbox.ErrInvalidInput, parseErr)
		}
		query = fmt.Sprintf( //nolint:gosec // G201: table name is sanitized
			`SELECT %s FROM %s WHERE (created_at, id) > ($1, $2) ORDER BY created_at, id LIMIT $3`, objectColumns, t.objects)
		args = []any{cursor.CreatedAt, cursorID, q.Limit + 1}
	}

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return strongbox.ListResult{}, wrapErr("list all objects", err)
	}

	items, err := collectObjects(rows)
	if err != nil {
		return strongbox.ListResult{}, wrapErr("list all objects", err)
	}

	var nextCursor string
	if len(items) > q.Limit {
		last := items[q.Limit-1]
		nextCursor = internal.EncodeCursor(last.CreatedAt, last.ID.String())
		items = items[:q.Limit]
	}

	return strongbox.ListResult{Items: items, NextCursor: nextCursor}, nil
}
