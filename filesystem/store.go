// Package filesystem provides the local file system backend for strongbox.
// Objects live at <root>/<bucket>/<key>. Writes are atomic (temp file, fsync,
// rename) and every operation goes through an os.Root so nothing outside the
// root can be reached.
package filesystem

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sagarc03/strongbox"
)

// tmpDir holds in-flight uploads. Bucket names cannot start with a dot so it
// never collides with a bucket.
const tmpDir = ".tmp"

// Store provides file system storage operations.
type Store struct {
	*Resolver
	root *os.Root
}

// NewStore creates the root directory if needed and opens it as an os.Root.
func NewStore(resolver *Resolver) (*Store, error) {
	if err := os.MkdirAll(resolver.Root(), 0o755); err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	root, err := os.OpenRoot(resolver.Root())
	if err != nil {
		return nil, fmt.Errorf("new store: %w", err)
	}

	if err := root.MkdirAll(tmpDir, 0o755); err != nil {
		_ = root.Close()
		return nil, fmt.Errorf("new store: create temp dir: %w", err)
	}

	return &Store{Resolver: resolver, root: root}, nil
}

// Close releases the root handle.
func (s *Store) Close() error {
	return s.root.Close()
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (n int, err error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// Write atomically writes content to path. The data is copied into a temp
// file, synced and closed, and only then renamed into place, so a cancelled
// or failed upload never leaves a partial file at path.
func (s *Store) Write(ctx context.Context, path string, content io.Reader) (strongbox.SaveResult, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return strongbox.SaveResult{}, ctxErr
	}

	rel, err := s.relative(path)
	if err != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: %w", err)
	}

	_, statErr := s.root.Stat(rel)
	replaced := statErr == nil

	tmpFile := tmpFileName()
	t, createErr := s.root.Create(tmpFile)
	if createErr != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: %w: could not open temp file: %w", strongbox.ErrStorage, createErr)
	}

	closed := false
	success := false
	defer func() {
		if !closed {
			if closeErr := t.Close(); closeErr != nil {
				slog.Warn("failed to close tmp file", "err", closeErr)
			}
		}
		if !success {
			if rmErr := s.root.Remove(tmpFile); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				slog.Warn("failed to remove tmp file", "err", rmErr)
			}
		}
	}()

	h := sha256.New()
	w := io.MultiWriter(h, t)

	written, err := io.Copy(w, &ctxReader{ctx: ctx, r: content})
	if err != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: could not copy file contents: %w", err)
	}

	if err := t.Sync(); err != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: %w: could not sync written file: %w", strongbox.ErrStorage, err)
	}

	closed = true
	if err := t.Close(); err != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: %w: could not close written file: %w", strongbox.ErrStorage, err)
	}

	if err := s.EnsureParentDirs(path); err != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: %w", err)
	}

	if renameErr := s.root.Rename(tmpFile, rel); renameErr != nil {
		return strongbox.SaveResult{}, fmt.Errorf("write: %w: failed to rename file: %w", strongbox.ErrStorage, renameErr)
	}

	success = true

	return strongbox.SaveResult{
		Path:         path,
		BytesWritten: written,
		Etag:         hex.EncodeToString(h.Sum(nil)),
		Replaced:     replaced,
	}, nil
}

// Open opens a file for reading. Returns strongbox.ErrNotFound if the file does not exist.
func (s *Store) Open(ctx context.Context, path string) (io.ReadSeekCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel, err := s.relative(path)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	f, err := s.root.Open(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, strongbox.ErrNotFound
		}
		return nil, fmt.Errorf("open: %w: %w", strongbox.ErrStorage, err)
	}

	return f, nil
}

func (s *Store) Stat(ctx context.Context, path string) (strongbox.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return strongbox.StoredFile{}, err
	}

	rel, err := s.relative(path)
	if err != nil {
		return strongbox.StoredFile{}, fmt.Errorf("stat: %w", err)
	}

	info, err := s.root.Stat(rel)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return strongbox.StoredFile{}, strongbox.ErrNotFound
		}
		return strongbox.StoredFile{}, fmt.Errorf("stat: %w: %w", strongbox.ErrStorage, err)
	}
	if info.IsDir() {
		return strongbox.StoredFile{}, strongbox.ErrNotFound
	}

	bucket, key, _ := strings.Cut(filepath.ToSlash(rel), "/")
	return strongbox.StoredFile{
		BucketName: bucket,
		Key:        key,
		Path:       path,
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}, nil
}

// Delete removes a file. Returns strongbox.ErrNotFound if the file does not exist.
func (s *Store) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	rel, err := s.relative(path)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}

	if err := s.root.Remove(rel); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return strongbox.ErrNotFound
		}
		return fmt.Errorf("delete: %w: %w", strongbox.ErrStorage, err)
	}
	return nil
}

// DirStats counts files and bytes under a bucket directory. A bucket that has
// never received an object has no directory and yields zero stats.
func (s *Store) DirStats(ctx context.Context, bucketName string) (strongbox.BucketStats, error) {
	if !strongbox.IsValidPathSegment(bucketName) || strings.HasPrefix(bucketName, ".") {
		return strongbox.BucketStats{}, fmt.Errorf("dir stats: %w: invalid bucket name %q", strongbox.ErrInvalidInput, bucketName)
	}

	var stats strongbox.BucketStats
	err := fs.WalkDir(s.root.FS(), bucketName, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		stats.FileCount++
		stats.SizeBytes += info.Size()
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return strongbox.BucketStats{}, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return strongbox.BucketStats{}, ctxErr
		}
		return strongbox.BucketStats{}, fmt.Errorf("dir stats %s: %w: %w", bucketName, strongbox.ErrStorage, err)
	}

	return stats, nil
}

// List walks every bucket directory and returns the object files found.
// Dot directories at the root, such as the temp directory, are skipped.
func (s *Store) List(ctx context.Context) ([]strongbox.StoredFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buckets, err := fs.ReadDir(s.root.FS(), ".")
	if err != nil {
		return nil, fmt.Errorf("list: %w: %w", strongbox.ErrStorage, err)
	}

	files := []strongbox.StoredFile{}
	for _, b := range buckets {
		if !b.IsDir() || strings.HasPrefix(b.Name(), ".") {
			continue
		}

		entries, err := fs.ReadDir(s.root.FS(), b.Name())
		if err != nil {
			return nil, fmt.Errorf("list %s: %w: %w", b.Name(), strongbox.ErrStorage, err)
		}

		for _, entry := range entries {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			if entry.IsDir() {
				slog.Warn("unexpected directory in bucket", "bucket", b.Name(), "name", entry.Name())
				continue
			}

			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("list %s: %w: %w", b.Name(), strongbox.ErrStorage, err)
			}

			files = append(files, strongbox.StoredFile{
				BucketName: b.Name(),
				Key:        entry.Name(),
				Path:       filepath.Join(s.Root(), b.Name(), entry.Name()),
				Size:       info.Size(),
				ModTime:    info.ModTime(),
			})
		}
	}

	return files, nil
}

// RemoveBucket renames the bucket directory into the temp directory and then
// deletes it. The rename is atomic, so once it succeeds a bucket created later
// under the same name starts from an empty directory even if the delete that
// follows fails.
func (s *Store) RemoveBucket(ctx context.Context, bucketName string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !strongbox.IsValidPathSegment(bucketName) || strings.HasPrefix(bucketName, ".") {
		return fmt.Errorf("remove bucket: %w: invalid bucket name %q", strongbox.ErrInvalidInput, bucketName)
	}

	retired := tmpFileName()
	if err := s.root.Rename(bucketName, retired); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("remove bucket %s: %w: %w", bucketName, strongbox.ErrStorage, err)
	}

	if err := s.root.RemoveAll(retired); err != nil {
		slog.Warn("retired bucket directory not removed", "bucket", bucketName, "path", retired, "error", err)
		return fmt.Errorf("remove bucket %s: %w: %w", bucketName, strongbox.ErrStorage, err)
	}
	return nil
}

func tmpFileName() string {
	return filepath.Join(tmpDir, uuid.New().String())
}
