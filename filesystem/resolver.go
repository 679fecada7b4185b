package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sagarc03/strongbox"
)

// Resolver maps (bucket, key) pairs to absolute paths under a root directory.
type Resolver struct {
	root string
}

// NewResolver expands a leading ~, makes rootDir absolute and cleans it.
func NewResolver(rootDir string) (*Resolver, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("new resolver: %w: root directory cannot be empty", strongbox.ErrInvalidInput)
	}

	expanded, err := expandHome(rootDir)
	if err != nil {
		return nil, fmt.Errorf("new resolver: %w", err)
	}

	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, fmt.Errorf("new resolver: %w", err)
	}

	return &Resolver{root: filepath.Clean(abs)}, nil
}

func expandHome(p string) (string, error) {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("expand home: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
}

// Root returns the absolute storage root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve returns root/bucketName/objectKey. Both segments are checked
// against the path-control denylist, and the joined path is then checked to
// still be a strict descendant of the root.
func (r *Resolver) Resolve(bucketName, objectKey string) (string, error) {
	if !strongbox.IsValidPathSegment(bucketName) {
		return "", fmt.Errorf("resolve: %w: invalid bucket name %q", strongbox.ErrInvalidInput, bucketName)
	}
	if !strongbox.IsValidPathSegment(objectKey) {
		return "", fmt.Errorf("resolve: %w: invalid object key %q", strongbox.ErrInvalidInput, objectKey)
	}

	p := filepath.Join(r.root, bucketName, objectKey)
	if _, err := r.relative(p); err != nil {
		return "", fmt.Errorf("resolve: %w", err)
	}

	return p, nil
}

// EnsureParentDirs creates every missing ancestor of path. It is safe to call
// concurrently for the same path.
func (r *Resolver) EnsureParentDirs(path string) error {
	rel, err := r.relative(path)
	if err != nil {
		return fmt.Errorf("ensure parent dirs: %w", err)
	}

	dir := filepath.Dir(rel)
	if dir == "." {
		return nil
	}

	if err := os.MkdirAll(filepath.Join(r.root, dir), 0o755); err != nil {
		return fmt.Errorf("ensure parent dirs: %w: %w", strongbox.ErrStorage, err)
	}
	return nil
}

// relative returns path relative to the root, failing unless path lies
// strictly below it.
func (r *Resolver) relative(path string) (string, error) {
	if !filepath.IsAbs(path) {
		return "", fmt.Errorf("%w: path %q is not absolute", strongbox.ErrInvalidInput, path)
	}

	rel, err := filepath.Rel(r.root, filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("%w: %w", strongbox.ErrInvalidInput, err)
	}

	if rel == "." || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: path %q escapes storage root", strongbox.ErrInvalidInput, path)
	}

	return rel, nil
}
