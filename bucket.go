package strongbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// BucketStatter computes live statistics for a bucket directory.
type BucketStatter interface {
	DirStats(ctx context.Context, bucketName string) (BucketStats, error)
}

// BucketRepository enforces the global bucket namespace and per-owner scoping.
type BucketRepository struct {
	store            MetaDataStore
	identity         IdentityResolver
	stats            BucketStatter
	statsConcurrency int
}

func NewBucketRepository(store MetaDataStore, identity IdentityResolver, stats BucketStatter, statsConcurrency int) *BucketRepository {
	if statsConcurrency <= 0 {
		statsConcurrency = 4
	}
	return &BucketRepository{
		store:            store,
		identity:         identity,
		stats:            stats,
		statsConcurrency: statsConcurrency,
	}
}

// CreateBucket registers name for ownerName. Names are global: an existing
// bucket of any owner yields ErrAlreadyExists.
func (r *BucketRepository) CreateBucket(ctx context.Context, name, ownerName string) (Bucket, error) {
	if err := ValidateBucketName(name); err != nil {
		return Bucket{}, fmt.Errorf("create bucket: %w", err)
	}
	if ownerName == "" {
		return Bucket{}, fmt.Errorf("create bucket: %w: owner cannot be empty", ErrInvalidInput)
	}

	owner, err := r.identity.ResolveOwner(ctx, ownerName)
	if err != nil {
		return Bucket{}, fmt.Errorf("create bucket %s: resolve owner: %w", name, err)
	}

	var created Bucket
	err = r.store.WithTx(ctx, func(tx MetaDataTx) error {
		_, getErr := tx.GetBucketByName(ctx, name)
		if getErr == nil {
			return ErrAlreadyExists
		}
		if !errors.Is(getErr, ErrNotFound) {
			return getErr
		}

		var insertErr error
		created, insertErr = tx.InsertBucket(ctx, Bucket{
			Name:      name,
			OwnerID:   owner.ID,
			OwnerName: owner.Username,
		})
		return insertErr
	})
	if err != nil {
		return Bucket{}, fmt.Errorf("create bucket %s: %w", name, err)
	}

	return created, nil
}

// DeleteBucket removes the bucket row. A bucket still holding objects is
// refused with ErrBucketNotEmpty unless cascade is set, in which case the
// object rows are deleted in the same transaction and returned so the caller
// can remove their bytes after commit.
func (r *BucketRepository) DeleteBucket(ctx context.Context, name, ownerName string, cascade bool) ([]Object, error) {
	var removed []Object
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		b, err := getOwned(ctx, tx, name, ownerName)
		if err != nil {
			return err
		}

		count, err := tx.CountObjects(ctx, b.ID)
		if err != nil {
			return err
		}

		if count > 0 {
			if !cascade {
				return fmt.Errorf("%w: %d objects remain", ErrBucketNotEmpty, count)
			}
			removed, err = tx.DeleteObjectsInBucket(ctx, b.ID)
			if err != nil {
				return err
			}
		}

		return tx.DeleteBucket(ctx, b.ID)
	})
	if err != nil {
		return nil, fmt.Errorf("delete bucket %s: %w", name, err)
	}

	return removed, nil
}

func (r *BucketRepository) GetByName(ctx context.Context, name string) (Bucket, error) {
	var b Bucket
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		var err error
		b, err = tx.GetBucketByName(ctx, name)
		return err
	})
	if err != nil {
		return Bucket{}, fmt.Errorf("get bucket %s: %w", name, err)
	}
	return b, nil
}

// GetOwned returns the bucket when ownerName owns it, ErrForbidden when
// someone else does and ErrNotFound when it does not exist.
func (r *BucketRepository) GetOwned(ctx context.Context, name, ownerName string) (Bucket, error) {
	var b Bucket
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		var err error
		b, err = getOwned(ctx, tx, name, ownerName)
		return err
	})
	if err != nil {
		return Bucket{}, fmt.Errorf("get bucket %s: %w", name, err)
	}
	return b, nil
}

func getOwned(ctx context.Context, tx MetaDataTx, name, ownerName string) (Bucket, error) {
	b, err := tx.GetBucketByName(ctx, name)
	if err != nil {
		return Bucket{}, err
	}
	if b.OwnerName != ownerName {
		return Bucket{}, ErrForbidden
	}
	return b, nil
}

// ListByOwner returns the owner's buckets with file count and size computed
// from the filesystem on every call.
func (r *BucketRepository) ListByOwner(ctx context.Context, ownerName string) ([]BucketWithStats, error) {
	var buckets []Bucket
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		var err error
		buckets, err = tx.ListBucketsByOwner(ctx, ownerName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	result := make([]BucketWithStats, len(buckets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.statsConcurrency)

	for i, b := range buckets {
		result[i].Bucket = b
		g.Go(func() error {
			stats, statErr := r.stats.DirStats(gctx, b.Name)
			if statErr != nil {
				return fmt.Errorf("stats for %s: %w", b.Name, statErr)
			}
			result[i].BucketStats = stats
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Warn("bucket stats failed", "owner", ownerName, "error", err)
		return nil, fmt.Errorf("list buckets: %w", err)
	}

	return result, nil
}
