package strongbox

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// MetaDataStore is the persistence collaborator for bucket and object records.
//
// WithTx runs fn inside one transaction. The transaction is committed when fn
// returns nil and rolled back when fn returns an error or panics. The error
// returned by fn is passed back unchanged so callers can match sentinels.
type MetaDataStore interface {
	WithTx(ctx context.Context, fn func(tx MetaDataTx) error) error
}

// MetaDataTx is a unit of work over the bucket and object tables.
//
// Implementations map a missing row to ErrNotFound, a unique violation to
// ErrAlreadyExists, and wrap every other driver failure in ErrPersistence.
type MetaDataTx interface {
	// InsertBucket stores a new bucket. ID and timestamps are assigned by the
	// store; Name, OwnerID and OwnerName are taken from b.
	InsertBucket(ctx context.Context, b Bucket) (Bucket, error)

	// GetBucketByName looks a bucket up by its globally unique name.
	GetBucketByName(ctx context.Context, name string) (Bucket, error)

	// ListBucketsByOwner returns every bucket owned by ownerName ordered by name.
	ListBucketsByOwner(ctx context.Context, ownerName string) ([]Bucket, error)

	// DeleteBucket removes the bucket row.
	DeleteBucket(ctx context.Context, id uuid.UUID) error

	// CountObjects returns the number of object rows in the bucket.
	CountObjects(ctx context.Context, bucketID uuid.UUID) (int64, error)

	// UpsertObject inserts or updates the row for (BucketName, Key). On update
	// ID and CreatedAt are preserved. The bool is true when a row was created.
	UpsertObject(ctx context.Context, row ObjectRow) (Object, bool, error)

	// GetObject returns the object only if it is owned by ownerName.
	GetObject(ctx context.Context, bucketName, key, ownerName string) (Object, error)

	// ListObjects returns objects owned by ownerName ordered by bucket and key.
	// An empty bucketName lists across all buckets.
	ListObjects(ctx context.Context, bucketName, ownerName string) ([]Object, error)

	// DeleteObject removes the row owned by ownerName and returns it.
	DeleteObject(ctx context.Context, bucketName, key, ownerName string) (Object, error)

	// DeleteObjectsInBucket removes every object row of a bucket and returns them.
	DeleteObjectsInBucket(ctx context.Context, bucketID uuid.UUID) ([]Object, error)

	// ListAllObjects pages through every object regardless of owner.
	ListAllObjects(ctx context.Context, q ListQuery) (ListResult, error)
}

// FileStorage is the byte-level filesystem collaborator. Paths are the
// absolute paths produced by a PathResolver.
type FileStorage interface {
	// Write stores content at path atomically and creates missing parent
	// directories. A partial write never leaves a file at path.
	Write(ctx context.Context, path string, content io.Reader) (SaveResult, error)

	// Open returns the file for reading. ErrNotFound if it does not exist.
	Open(ctx context.Context, path string) (io.ReadSeekCloser, error)

	// Stat returns size and modification time. ErrNotFound if it does not exist.
	Stat(ctx context.Context, path string) (StoredFile, error)

	// Delete removes the file. ErrNotFound if it does not exist.
	Delete(ctx context.Context, path string) error

	// DirStats walks a bucket directory and sums file count and bytes.
	// A missing directory yields zero stats.
	DirStats(ctx context.Context, bucketName string) (BucketStats, error)

	// List walks the whole root and returns every stored object file.
	List(ctx context.Context) ([]StoredFile, error)

	// RemoveBucket detaches the bucket directory and deletes it with
	// everything left inside. A missing directory is not an error.
	RemoveBucket(ctx context.Context, bucketName string) error
}

// PathResolver maps a (bucket, key) pair to a path under the storage root.
type PathResolver interface {
	Resolve(bucketName, objectKey string) (string, error)
}

// IdentityResolver resolves a username to the caller identity frozen into
// new buckets.
type IdentityResolver interface {
	ResolveOwner(ctx context.Context, username string) (Identity, error)
}
