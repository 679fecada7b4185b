package strongbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultCapabilityExpiryMinutes = 60
	DefaultCleanupTimeout          = 30 * time.Second
	// PresignedPathPrefix is the route capabilities are minted for.
	PresignedPathPrefix = "/presigned"
)

// ServiceConfig holds configuration options for Service.
type ServiceConfig struct {
	// PublicURL is the externally visible base URL, e.g. https://files.example.com.
	// Capabilities are minted and verified against URLs built from it.
	PublicURL               string
	CapabilityExpiryMinutes int
	CleanupTimeout          time.Duration // Timeout for cleanup operations (default: 30s)
	StatsConcurrency        int
}

// Service orchestrates uploads, downloads and deletes across the metadata
// store, the filesystem and the capability signer.
type Service struct {
	buckets  *BucketRepository
	objects  *ObjectRepository
	store    MetaDataStore
	storage  FileStorage
	resolver PathResolver
	signer   *Signer
	locks    *keyLocks

	publicURL      string
	expiryMinutes  int
	cleanupTimeout time.Duration
}

func NewService(store MetaDataStore, storage FileStorage, resolver PathResolver, identity IdentityResolver, signer *Signer, cfg ServiceConfig) (*Service, error) {
	publicURL := strings.TrimRight(cfg.PublicURL, "/")
	if publicURL == "" {
		return nil, fmt.Errorf("new service: %w: public url cannot be empty", ErrInvalidInput)
	}
	u, err := url.Parse(publicURL)
	if err != nil || u.Scheme == "" || u.Host == "" || u.RawQuery != "" {
		return nil, fmt.Errorf("new service: %w: invalid public url %q", ErrInvalidInput, cfg.PublicURL)
	}
	if store == nil || storage == nil || resolver == nil || identity == nil || signer == nil {
		return nil, fmt.Errorf("new service: %w: missing collaborator", ErrInvalidInput)
	}

	expiry := cfg.CapabilityExpiryMinutes
	if expiry <= 0 {
		expiry = DefaultCapabilityExpiryMinutes
	}
	cleanupTimeout := cfg.CleanupTimeout
	if cleanupTimeout <= 0 {
		cleanupTimeout = DefaultCleanupTimeout
	}

	return &Service{
		buckets:        NewBucketRepository(store, identity, storage, cfg.StatsConcurrency),
		objects:        NewObjectRepository(store),
		store:          store,
		storage:        storage,
		resolver:       resolver,
		signer:         signer,
		locks:          newKeyLocks(),
		publicURL:      publicURL,
		expiryMinutes:  expiry,
		cleanupTimeout: cleanupTimeout,
	}, nil
}

// CanonicalURL is the URL a capability for (bucketName, key) is bound to.
func (s *Service) CanonicalURL(bucketName, key string) string {
	return s.publicURL + PresignedPathPrefix + "/" + url.PathEscape(bucketName) + "/" + url.PathEscape(key)
}

func (s *Service) CreateBucket(ctx context.Context, name, ownerName string) (Bucket, error) {
	if err := ctx.Err(); err != nil {
		return Bucket{}, fmt.Errorf("create bucket: %w", err)
	}
	return s.buckets.CreateBucket(ctx, name, ownerName)
}

// DeleteBucket deletes an owned bucket. With cascade the object rows are
// removed first, in one transaction. The bucket directory goes afterwards as a
// whole, so bytes left behind by crashes or failed removals never show up in a
// bucket later created under the same name. A directory that cannot be removed
// is reported as ErrStorage and left for reconciliation.
func (s *Service) DeleteBucket(ctx context.Context, name, ownerName string, cascade bool) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete bucket: %w", err)
	}

	removed, err := s.buckets.DeleteBucket(ctx, name, ownerName, cascade)
	if err != nil {
		return err
	}

	if err := s.storage.RemoveBucket(ctx, name); err != nil {
		slog.Error("remove bucket directory", "bucket", name, "objects", len(removed), "error", err)
		return fmt.Errorf("delete bucket %s: metadata removed but files remain on disk: %w", name, err)
	}

	return nil
}

func (s *Service) ListBuckets(ctx context.Context, ownerName string) ([]BucketWithStats, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	return s.buckets.ListByOwner(ctx, ownerName)
}

// PutObject stores content under (bucket, key) and records its metadata.
//
// The steps are:
//  1. Validate the bucket name and key
//  2. Check the caller owns the bucket, before any filesystem I/O
//  3. Take the per-key lock
//  4. Write the bytes (temp file, fsync, rename)
//  5. Mint a download capability for the object
//  6. Upsert the metadata row
//
// If step 6 fails and the file did not exist before, it is removed using a
// background context bounded by the cleanup timeout. A replaced file is left
// in place since its previous row still references it.
func (s *Service) PutObject(ctx context.Context, req PutObject, content io.Reader) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("put object: %w", err)
	}
	if err := ValidateBucketName(req.BucketName); err != nil {
		return Object{}, fmt.Errorf("put object: %w", err)
	}
	if err := ValidateObjectKey(req.Key); err != nil {
		return Object{}, fmt.Errorf("put object: %w", err)
	}

	if _, err := s.buckets.GetOwned(ctx, req.BucketName, req.OwnerName); err != nil {
		return Object{}, fmt.Errorf("put object: %w", err)
	}

	path, err := s.resolver.Resolve(req.BucketName, req.Key)
	if err != nil {
		return Object{}, fmt.Errorf("put object: %w", err)
	}

	unlock := s.locks.Lock(req.BucketName, req.Key)
	defer unlock()

	saved, err := s.storage.Write(ctx, path, content)
	if err != nil {
		return Object{}, fmt.Errorf("put object %s/%s: write failed: %w", req.BucketName, req.Key, err)
	}

	downloadURL, err := s.signer.Mint(s.CanonicalURL(req.BucketName, req.Key), http.MethodGet, s.expiryMinutes)
	if err != nil {
		return Object{}, s.cleanupAfterFailure(req, saved, fmt.Errorf("mint capability: %w", err))
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = req.Key
	}

	obj, _, err := s.objects.CreateObject(ctx, NewObject{
		BucketName:  req.BucketName,
		Key:         req.Key,
		OwnerName:   req.OwnerName,
		Extension:   ExtensionOf(fileName),
		StoragePath: saved.Path,
		DownloadURL: downloadURL,
		Size:        saved.BytesWritten,
		Etag:        saved.Etag,
	})
	if err != nil {
		return Object{}, s.cleanupAfterFailure(req, saved, err)
	}

	return obj, nil
}

func (s *Service) cleanupAfterFailure(req PutObject, saved SaveResult, cause error) error {
	if saved.Replaced {
		slog.Warn("metadata write failed after overwrite, file left for reconcile",
			"bucket", req.BucketName, "key", req.Key, "error", cause)
		return fmt.Errorf("put object %s/%s: %w", req.BucketName, req.Key, cause)
	}

	// The request context may already be cancelled.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.cleanupTimeout)
	defer cancel()

	if delErr := s.storage.Delete(cleanupCtx, saved.Path); delErr != nil && !errors.Is(delErr, ErrNotFound) {
		return fmt.Errorf("put object %s/%s: %w and cleanup failed: %w", req.BucketName, req.Key, cause, delErr)
	}
	return fmt.Errorf("put object %s/%s: %w", req.BucketName, req.Key, cause)
}

// StatObject returns the metadata of an owned object. A foreign bucket is
// ErrForbidden; a missing or foreign object is ErrNotFound.
func (s *Service) StatObject(ctx context.Context, bucketName, key, ownerName string) (Object, error) {
	if err := ctx.Err(); err != nil {
		return Object{}, fmt.Errorf("stat object: %w", err)
	}
	if _, err := s.buckets.GetOwned(ctx, bucketName, ownerName); err != nil {
		return Object{}, fmt.Errorf("stat object: %w", err)
	}
	return s.objects.ReadOne(ctx, bucketName, key, ownerName)
}

// GetObject returns the metadata and an open reader for an owned object.
// The caller is responsible for closing the reader.
func (s *Service) GetObject(ctx context.Context, bucketName, key, ownerName string) (Object, io.ReadSeekCloser, error) {
	obj, err := s.StatObject(ctx, bucketName, key, ownerName)
	if err != nil {
		return Object{}, nil, fmt.Errorf("get object: %w", err)
	}

	f, err := s.storage.Open(ctx, obj.StoragePath)
	if err != nil {
		return Object{}, nil, fmt.Errorf("get object %s/%s: %w", bucketName, key, err)
	}

	return obj, f, nil
}

// CapabilityRequest is an unauthenticated request carrying a capability.
type CapabilityRequest struct {
	Method     string
	BucketName string
	Key        string
	Query      url.Values
}

// OpenWithCapability verifies the capability before anything else and only
// then resolves and opens the file. The metadata store is not consulted, so
// failures reveal nothing about whether the object exists.
func (s *Service) OpenWithCapability(ctx context.Context, req CapabilityRequest) (StoredFile, io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return StoredFile{}, nil, fmt.Errorf("open with capability: %w", err)
	}

	if err := s.signer.Verify(req.Method, s.CanonicalURL(req.BucketName, req.Key), req.Query); err != nil {
		return StoredFile{}, nil, fmt.Errorf("open with capability: %w", err)
	}

	path, err := s.resolver.Resolve(req.BucketName, req.Key)
	if err != nil {
		return StoredFile{}, nil, fmt.Errorf("open with capability: %w", err)
	}

	info, err := s.storage.Stat(ctx, path)
	if err != nil {
		return StoredFile{}, nil, fmt.Errorf("open with capability: %w", err)
	}

	f, err := s.storage.Open(ctx, path)
	if err != nil {
		return StoredFile{}, nil, fmt.Errorf("open with capability: %w", err)
	}

	return info, f, nil
}

// DeleteObject removes the metadata row and then the file. A missing object
// returns ErrNotFound without touching the filesystem. When the row is gone
// but the file cannot be removed the error wraps ErrStorage.
func (s *Service) DeleteObject(ctx context.Context, bucketName, key, ownerName string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if err := ValidateObjectKey(key); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	if _, err := s.buckets.GetOwned(ctx, bucketName, ownerName); err != nil {
		return fmt.Errorf("delete object: %w", err)
	}

	unlock := s.locks.Lock(bucketName, key)
	defer unlock()

	obj, err := s.objects.DeleteObject(ctx, bucketName, key, ownerName)
	if err != nil {
		return err
	}

	if err := s.removeFile(ctx, obj); err != nil {
		return fmt.Errorf("delete object %s/%s: metadata removed, file remains: %w", bucketName, key, err)
	}

	return nil
}

func (s *Service) removeFile(ctx context.Context, obj Object) error {
	err := s.storage.Delete(ctx, obj.StoragePath)
	if errors.Is(err, ErrNotFound) {
		slog.Warn("object file already missing", "bucket", obj.BucketName, "key", obj.Key)
		return nil
	}
	if err != nil {
		slog.Error("remove object file", "bucket", obj.BucketName, "key", obj.Key, "error", err)
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// ListObjects lists the caller's objects in one bucket, or in all of their
// buckets when bucketName is empty.
func (s *Service) ListObjects(ctx context.Context, bucketName, ownerName string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	if bucketName != "" {
		if _, err := s.buckets.GetOwned(ctx, bucketName, ownerName); err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
	}
	return s.objects.ListByOwner(ctx, bucketName, ownerName)
}

// PresignObject mints a fresh download capability for an owned object.
// A non-positive expiry uses the configured default.
func (s *Service) PresignObject(ctx context.Context, bucketName, key, ownerName string, expiryMinutes int) (string, error) {
	if _, err := s.StatObject(ctx, bucketName, key, ownerName); err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}

	if expiryMinutes <= 0 {
		expiryMinutes = s.expiryMinutes
	}

	u, err := s.signer.Mint(s.CanonicalURL(bucketName, key), http.MethodGet, expiryMinutes)
	if err != nil {
		return "", fmt.Errorf("presign object: %w", err)
	}
	return u, nil
}
