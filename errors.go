package strongbox

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a bucket or object does not exist, or when an
	// object exists but is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when a bucket exists but belongs to another owner.
	ErrForbidden = errors.New("forbidden")
	// ErrAlreadyExists is returned when a bucket name is already taken.
	ErrAlreadyExists = errors.New("already exists")
	// ErrBucketNotEmpty is returned when deleting a bucket that still holds objects without cascade.
	ErrBucketNotEmpty = errors.New("bucket not empty")
	// ErrInvalidInput is returned when input validation fails
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when a capability or identity cannot be verified
	ErrUnauthorized = errors.New("unauthorized")
	// ErrPersistence wraps any metadata store failure.
	ErrPersistence = errors.New("persistence failure")
	// ErrStorage wraps any filesystem failure.
	ErrStorage = errors.New("storage failure")
)

var (
	// ErrCapabilityMalformed is returned when a capability is missing parameters.
	ErrCapabilityMalformed = fmt.Errorf("capability malformed: %w", ErrInvalidInput)
	// ErrCapabilityExpired is returned when a capability is past its expiry.
	ErrCapabilityExpired = fmt.Errorf("capability expired: %w", ErrUnauthorized)
	// ErrCapabilityInvalid is returned for unknown keys and signature mismatches.
	ErrCapabilityInvalid = fmt.Errorf("capability invalid: %w", ErrUnauthorized)
)
