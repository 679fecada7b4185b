package strongbox

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// PathControlChars are rejected in bucket names and object keys.
const PathControlChars = `<>:"/\|?*`

const (
	MinBucketNameLength = 3
	MaxBucketNameLength = 63
	// A key is stored as a single file name, so it shares the NAME_MAX limit.
	MaxObjectKeyLength = 255
)

// IsValidPathSegment reports whether s can be used as a single directory
// or file name under the storage root. It rejects:
//   - empty strings, "." and anything containing ".."
//   - the path-control characters < > : " / \ | ? *
//   - NUL, control characters (< 0x20) and DEL (0x7f)
//   - invalid UTF-8
func IsValidPathSegment(s string) bool {
	if s == "" || s == "." {
		return false
	}

	if strings.Contains(s, "..") {
		return false
	}

	if strings.ContainsAny(s, PathControlChars) {
		return false
	}

	if !utf8.ValidString(s) {
		return false
	}

	for _, r := range s {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}

	return true
}

// ValidateBucketName checks the bucket naming rules: 3-63 characters of
// lowercase letters, digits and hyphens, not starting or ending with a hyphen.
func ValidateBucketName(name string) error {
	if len(name) < MinBucketNameLength || len(name) > MaxBucketNameLength {
		return fmt.Errorf("bucket name %q: %w: must be %d-%d characters", name, ErrInvalidInput, MinBucketNameLength, MaxBucketNameLength)
	}

	for _, c := range name {
		if !((c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '-') {
			return fmt.Errorf("bucket name %q: %w: only lowercase letters, digits and hyphens are allowed", name, ErrInvalidInput)
		}
	}

	if name[0] == '-' || name[len(name)-1] == '-' {
		return fmt.Errorf("bucket name %q: %w: must not start or end with a hyphen", name, ErrInvalidInput)
	}

	return nil
}

// ValidateObjectKey checks that key is a usable single path segment.
func ValidateObjectKey(key string) error {
	if len(key) > MaxObjectKeyLength {
		return fmt.Errorf("object key: %w: longer than %d bytes", ErrInvalidInput, MaxObjectKeyLength)
	}

	if !IsValidPathSegment(key) {
		return fmt.Errorf("object key %q: %w", key, ErrInvalidInput)
	}

	return nil
}

// ExtensionOf returns the file extension of name without the leading dot.
func ExtensionOf(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
