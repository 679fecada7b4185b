// Package storetest holds behaviour tests every strongbox.MetaDataStore
// backend must pass. Backends call Run from their own test files.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sagarc03/strongbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, migrated and empty store.
type Factory func(t *testing.T) strongbox.MetaDataStore

// Run executes the full suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertBucket", func(t *testing.T) { testInsertBucket(t, newStore(t)) })
	t.Run("DeleteBucket", func(t *testing.T) { testDeleteBucket(t, newStore(t)) })
	t.Run("ListBucketsByOwner", func(t *testing.T) { testListBucketsByOwner(t, newStore(t)) })
	t.Run("UpsertObject", func(t *testing.T) { testUpsertObject(t, newStore(t)) })
	t.Run("GetObject", func(t *testing.T) { testGetObject(t, newStore(t)) })
	t.Run("ListObjects", func(t *testing.T) { testListObjects(t, newStore(t)) })
	t.Run("DeleteObject", func(t *testing.T) { testDeleteObject(t, newStore(t)) })
	t.Run("DeleteObjectsInBucket", func(t *testing.T) { testDeleteObjectsInBucket(t, newStore(t)) })
	t.Run("ListAllObjects", func(t *testing.T) { testListAllObjects(t, newStore(t)) })
	t.Run("Rollback", func(t *testing.T) { testRollback(t, newStore(t)) })
	t.Run("RollbackOnPanic", func(t *testing.T) { testRollbackOnPanic(t, newStore(t)) })
}

func inTx[T any](t *testing.T, store strongbox.MetaDataStore, fn func(ctx context.Context, tx strongbox.MetaDataTx) (T, error)) (T, error) {
	t.Helper()

	ctx := context.Background()
	var out T
	err := store.WithTx(ctx, func(tx strongbox.MetaDataTx) error {
		var err error
		out, err = fn(ctx, tx)
		return err
	})
	return out, err
}

func mustBucket(t *testing.T, store strongbox.MetaDataStore, name, owner string) strongbox.Bucket {
	t.Helper()

	b, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.InsertBucket(ctx, strongbox.Bucket{Name: name, OwnerID: "id-" + owner, OwnerName: owner})
	})
	require.NoError(t, err)
	return b
}

func row(b strongbox.Bucket, key string, size int64) strongbox.ObjectRow {
	return strongbox.ObjectRow{
		BucketID:    b.ID,
		BucketName:  b.Name,
		Key:         key,
		OwnerID:     b.OwnerID,
		OwnerName:   b.OwnerName,
		StoragePath: "/data/" + b.Name + "/" + key,
		Extension:   strongbox.ExtensionOf(key),
		Size:        size,
		Etag:        "etag-" + key,
		DownloadURL: "https://files.example.com/presigned/" + b.Name + "/" + key,
	}
}

func mustObject(t *testing.T, store strongbox.MetaDataStore, b strongbox.Bucket, key string, size int64) strongbox.Object {
	t.Helper()

	o, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Object, error) {
		o, _, err := tx.UpsertObject(ctx, row(b, key, size))
		return o, err
	})
	require.NoError(t, err)
	return o
}

func testInsertBucket(t *testing.T, store strongbox.MetaDataStore) {
	b := mustBucket(t, store, "alpha", "alice")

	assert.NotEqual(t, uuid.Nil, b.ID)
	assert.Equal(t, "alpha", b.Name)
	assert.Equal(t, "alice", b.OwnerName)
	assert.Equal(t, "id-alice", b.OwnerID)
	assert.False(t, b.CreatedAt.IsZero())

	got, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.GetBucketByName(ctx, "alpha")
	})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, "alice", got.OwnerName)
	assert.WithinDuration(t, b.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.InsertBucket(ctx, strongbox.Bucket{Name: "alpha", OwnerID: "id-bob", OwnerName: "bob"})
	})
	assert.ErrorIs(t, err, strongbox.ErrAlreadyExists)

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.GetBucketByName(ctx, "missing")
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound)
}

func testDeleteBucket(t *testing.T, store strongbox.MetaDataStore) {
	b := mustBucket(t, store, "alpha", "alice")

	_, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (struct{}, error) {
		return struct{}{}, tx.DeleteBucket(ctx, b.ID)
	})
	require.NoError(t, err)

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.GetBucketByName(ctx, "alpha")
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound)

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (struct{}, error) {
		return struct{}{}, tx.DeleteBucket(ctx, b.ID)
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound)
}

func testListBucketsByOwner(t *testing.T, store strongbox.MetaDataStore) {
	mustBucket(t, store, "zeta", "alice")
	mustBucket(t, store, "alpha", "alice")
	mustBucket(t, store, "beta", "bob")

	buckets, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) ([]strongbox.Bucket, error) {
		return tx.ListBucketsByOwner(ctx, "alice")
	})
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, "alpha", buckets[0].Name)
	assert.Equal(t, "zeta", buckets[1].Name)

	buckets, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) ([]strongbox.Bucket, error) {
		return tx.ListBucketsByOwner(ctx, "nobody")
	})
	require.NoError(t, err)
	assert.NotNil(t, buckets)
	assert.Empty(t, buckets)
}

func testUpsertObject(t *testing.T, store strongbox.MetaDataStore) {
	b := mustBucket(t, store, "alpha", "alice")

	type result struct {
		obj     strongbox.Object
		created bool
	}
	upsert := func(r strongbox.ObjectRow) result {
		res, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (result, error) {
			o, created, err := tx.UpsertObject(ctx, r)
			return result{o, created}, err
		})
		require.NoError(t, err)
		return res
	}

	first := upsert(row(b, "report.csv", 10))
	assert.True(t, first.created)
	assert.NotEqual(t, uuid.Nil, first.obj.ID)
	assert.Equal(t, b.ID, first.obj.BucketID)
	assert.Equal(t, "alpha", first.obj.BucketName)
	assert.Equal(t, "report.csv", first.obj.Key)
	assert.Equal(t, "alice", first.obj.OwnerName)
	assert.Equal(t, "id-alice", first.obj.OwnerID)
	assert.Equal(t, "/data/alpha/report.csv", first.obj.StoragePath)
	assert.Equal(t, "csv", first.obj.Extension)
	assert.Equal(t, int64(10), first.obj.Size)
	assert.Equal(t, "etag-report.csv", first.obj.Etag)

	updated := row(b, "report.csv", 42)
	updated.DownloadURL = "https://files.example.com/new"
	updated.Etag = "etag-2"
	second := upsert(updated)

	assert.False(t, second.created)
	assert.Equal(t, first.obj.ID, second.obj.ID, "overwrite keeps id")
	assert.WithinDuration(t, first.obj.CreatedAt, second.obj.CreatedAt, time.Millisecond, "overwrite keeps created_at")
	assert.Equal(t, int64(42), second.obj.Size)
	assert.Equal(t, "etag-2", second.obj.Etag)
	assert.Equal(t, "https://files.example.com/new", second.obj.DownloadURL)
	assert.False(t, second.obj.UpdatedAt.Before(first.obj.UpdatedAt))
}

func testGetObject(t *testing.T, store strongbox.MetaDataStore) {
	b := mustBucket(t, store, "alpha", "alice")
	o := mustObject(t, store, b, "report.csv", 10)

	got, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Object, error) {
		return tx.GetObject(ctx, "alpha", "report.csv", "alice")
	})
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	tests := []struct {
		name, bucket, key, owner string
	}{
		{"wrong owner", "alpha", "report.csv", "bob"},
		{"missing key", "alpha", "missing.txt", "alice"},
		{"missing bucket", "beta", "report.csv", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Object, error) {
				return tx.GetObject(ctx, tt.bucket, tt.key, tt.owner)
			})
			assert.ErrorIs(t, err, strongbox.ErrNotFound)
		})
	}
}

func testListObjects(t *testing.T, store strongbox.MetaDataStore) {
	alpha := mustBucket(t, store, "alpha", "alice")
	gamma := mustBucket(t, store, "gamma", "alice")
	beta := mustBucket(t, store, "beta", "bob")

	mustObject(t, store, alpha, "b.txt", 1)
	mustObject(t, store, alpha, "a.txt", 1)
	mustObject(t, store, gamma, "c.txt", 1)
	mustObject(t, store, beta, "d.txt", 1)

	list := func(bucket, owner string) []strongbox.Object {
		objs, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) ([]strongbox.Object, error) {
			return tx.ListObjects(ctx, bucket, owner)
		})
		require.NoError(t, err)
		return objs
	}
	keys := func(objs []strongbox.Object) []string {
		out := make([]string, 0, len(objs))
		for _, o := range objs {
			out = append(out, o.BucketName+"/"+o.Key)
		}
		return out
	}

	assert.Equal(t, []string{"alpha/a.txt", "alpha/b.txt"}, keys(list("alpha", "alice")))
	assert.Equal(t, []string{"alpha/a.txt", "alpha/b.txt", "gamma/c.txt"}, keys(list("", "alice")))
	assert.Equal(t, []string{"beta/d.txt"}, keys(list("", "bob")))
	assert.Empty(t, list("beta", "alice"))
	assert.NotNil(t, list("", "nobody"))
}

func testDeleteObject(t *testing.T, store strongbox.MetaDataStore) {
	b := mustBucket(t, store, "alpha", "alice")
	o := mustObject(t, store, b, "report.csv", 10)

	_, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Object, error) {
		return tx.DeleteObject(ctx, "alpha", "report.csv", "bob")
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound, "foreign owner cannot delete")

	deleted, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Object, error) {
		return tx.DeleteObject(ctx, "alpha", "report.csv", "alice")
	})
	require.NoError(t, err)
	assert.Equal(t, o.ID, deleted.ID)
	assert.Equal(t, o.StoragePath, deleted.StoragePath)

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Object, error) {
		return tx.DeleteObject(ctx, "alpha", "report.csv", "alice")
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound)
}

func testDeleteObjectsInBucket(t *testing.T, store strongbox.MetaDataStore) {
	alpha := mustBucket(t, store, "alpha", "alice")
	beta := mustBucket(t, store, "beta", "alice")
	mustObject(t, store, alpha, "a.txt", 1)
	mustObject(t, store, alpha, "b.txt", 2)
	mustObject(t, store, beta, "c.txt", 3)

	count, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (int64, error) {
		return tx.CountObjects(ctx, alpha.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	removed, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) ([]strongbox.Object, error) {
		return tx.DeleteObjectsInBucket(ctx, alpha.ID)
	})
	require.NoError(t, err)
	assert.Len(t, removed, 2)

	count, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (int64, error) {
		return tx.CountObjects(ctx, alpha.ID)
	})
	require.NoError(t, err)
	assert.Zero(t, count)

	count, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (int64, error) {
		return tx.CountObjects(ctx, beta.ID)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func testListAllObjects(t *testing.T, store strongbox.MetaDataStore) {
	alpha := mustBucket(t, store, "alpha", "alice")
	beta := mustBucket(t, store, "beta", "bob")

	want := map[uuid.UUID]bool{}
	for i, key := range []string{"1.txt", "2.txt", "3.txt", "4.txt", "5.txt"} {
		b := alpha
		if i%2 == 1 {
			b = beta
		}
		want[mustObject(t, store, b, key, int64(i)).ID] = true
	}

	seen := map[uuid.UUID]bool{}
	cursor := ""
	pages := 0
	for {
		page, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.ListResult, error) {
			return tx.ListAllObjects(ctx, strongbox.ListQuery{Limit: 2, Cursor: cursor})
		})
		require.NoError(t, err)
		pages++
		assert.LessOrEqual(t, len(page.Items), 2)

		for _, o := range page.Items {
			assert.False(t, seen[o.ID], "object returned twice")
			seen[o.ID] = true
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
		require.Less(t, pages, 10, "pagination does not terminate")
	}

	assert.Equal(t, want, seen)
	assert.Equal(t, 3, pages)

	_, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.ListResult, error) {
		return tx.ListAllObjects(ctx, strongbox.ListQuery{Limit: 2, Cursor: "not-a-cursor!!"})
	})
	assert.ErrorIs(t, err, strongbox.ErrInvalidInput)

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.ListResult, error) {
		return tx.ListAllObjects(ctx, strongbox.ListQuery{Limit: 0})
	})
	assert.ErrorIs(t, err, strongbox.ErrInvalidInput)
}

func testRollback(t *testing.T, store strongbox.MetaDataStore) {
	boom := errors.New("boom")

	err := store.WithTx(context.Background(), func(tx strongbox.MetaDataTx) error {
		if _, err := tx.InsertBucket(context.Background(), strongbox.Bucket{Name: "alpha", OwnerID: "1", OwnerName: "alice"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom, "error from fn is returned unchanged")

	_, err = inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.GetBucketByName(ctx, "alpha")
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound, "insert was rolled back")
}

func testRollbackOnPanic(t *testing.T, store strongbox.MetaDataStore) {
	assert.Panics(t, func() {
		_ = store.WithTx(context.Background(), func(tx strongbox.MetaDataTx) error {
			if _, err := tx.InsertBucket(context.Background(), strongbox.Bucket{Name: "alpha", OwnerID: "1", OwnerName: "alice"}); err != nil {
				return err
			}
			panic("boom")
		})
	})

	_, err := inTx(t, store, func(ctx context.Context, tx strongbox.MetaDataTx) (strongbox.Bucket, error) {
		return tx.GetBucketByName(ctx, "alpha")
	})
	assert.ErrorIs(t, err, strongbox.ErrNotFound, "insert was rolled back")
}
