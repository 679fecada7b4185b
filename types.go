package strongbox

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// Identity is an authenticated caller as seen by the core.
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

type Bucket struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"bucket_name"`
	OwnerID   string    `json:"owner_id"`
	OwnerName string    `json:"owner_name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BucketStats is computed from the filesystem on every read and never persisted.
type BucketStats struct {
	FileCount int64 `json:"file_count"`
	SizeBytes int64 `json:"size_bytes"`
}

type BucketWithStats struct {
	Bucket
	BucketStats
}

type Object struct {
	ID          uuid.UUID `json:"id"`
	BucketID    uuid.UUID `json:"bucket_id"`
	BucketName  string    `json:"bucket_name"`
	Key         string    `json:"object_key"`
	OwnerID     string    `json:"owner_id"`
	OwnerName   string    `json:"owner_name"`
	StoragePath string    `json:"-"`
	Extension   string    `json:"extension"`
	Size        int64     `json:"size"`
	Etag        string    `json:"etag"`
	DownloadURL string    `json:"download_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewObject carries the fields a caller supplies when recording an object.
// Bucket and owner identifiers are filled in by the repository.
type NewObject struct {
	BucketName  string
	Key         string
	OwnerName   string
	Extension   string
	StoragePath string
	DownloadURL string
	Size        int64
	Etag        string
}

// ObjectRow is what the metadata store persists for an object.
type ObjectRow struct {
	BucketID    uuid.UUID
	BucketName  string
	Key         string
	OwnerID     string
	OwnerName   string
	StoragePath string
	Extension   string
	Size        int64
	Etag        string
	DownloadURL string
}

type ListQuery struct {
	Limit  int
	Cursor string
}

type ListResult struct {
	Items      []Object `json:"items"`
	NextCursor string   `json:"next_cursor,omitempty"`
}

type SaveResult struct {
	Path         string
	BytesWritten int64
	Etag         string
	Replaced     bool
}

// StoredFile is a file found on disk under a bucket directory.
type StoredFile struct {
	BucketName string
	Key        string
	Path       string
	Size       int64
	ModTime    time.Time
}

// PutObject describes an upload.
type PutObject struct {
	BucketName string
	Key        string
	OwnerName  string
	// FileName is the client-side file name; its extension is recorded.
	// When empty the key is used.
	FileName string
}

// Tables holds configurable table names for metadata storage.
// This allows multi-tenant deployments to use different table names.
type Tables struct {
	Buckets string `mapstructure:"buckets"`
	Objects string `mapstructure:"objects"`
}

var validTableNameRegex = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// IsValidTableName checks if a table name is valid (lowercase, alphanumeric with underscores, max 63 chars).
func IsValidTableName(name string) bool {
	return validTableNameRegex.MatchString(name) && len(name) <= 63
}

// Validate checks that all required table names are set, valid and distinct.
func (t Tables) Validate() error {
	names := []struct{ label, name string }{
		{"buckets", t.Buckets},
		{"objects", t.Objects},
	}
	for _, n := range names {
		label, name := n.label, n.name
		if name == "" {
			return fmt.Errorf("validate tables: %s table name cannot be empty", label)
		}
		if !IsValidTableName(name) {
			return fmt.Errorf("validate tables: invalid %s table name: %s (must match ^[a-z_][a-z0-9_]*$ and be <= 63 chars)", label, name)
		}
	}

	if t.Buckets == t.Objects {
		return errors.New("validate tables: buckets and objects tables must differ")
	}

	return nil
}
