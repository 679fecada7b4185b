package sqlite_test

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"testing"

	"github.com/sagarc03/strongbox"
	"github.com/sagarc03/strongbox/database/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	assert.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

func randomTables(t *testing.T) strongbox.Tables {
	t.Helper()
	suffix := getRandomString(t)
	return strongbox.Tables{
		Buckets: "buckets_" + suffix,
		Objects: "objects_" + suffix,
	}
}

// setupTestDB creates a migrated in-memory database with unique table names
// for test isolation.
func setupTestDB(t *testing.T) (*sqlite.DB, strongbox.MetaDataStore) {
	t.Helper()

	ctx := context.Background()

	db, err := sqlite.Connect(ctx, ":memory:", randomTables(t))
	require.NoError(t, err, "failed to connect")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, db.Migrate(ctx), "failed to migrate")

	return db, db.Store()
}

func insertBucket(t *testing.T, store strongbox.MetaDataStore, name, owner string) strongbox.Bucket {
	t.Helper()

	var b strongbox.Bucket
	err := store.WithTx(context.Background(), func(tx strongbox.MetaDataTx) error {
		var err error
		b, err = tx.InsertBucket(context.Background(), strongbox.Bucket{Name: name, OwnerID: "id-" + owner, OwnerName: owner})
		return err
	})
	require.NoError(t, err)
	return b
}

func upsertObject(t *testing.T, store strongbox.MetaDataStore, b strongbox.Bucket, key string, size int64) strongbox.Object {
	t.Helper()

	var o strongbox.Object
	err := store.WithTx(context.Background(), func(tx strongbox.MetaDataTx) error {
		var err error
		o, _, err = tx.UpsertObject(context.Background(), strongbox.ObjectRow{
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
		})
		return err
	})
	require.NoError(t, err)
	return o
}
