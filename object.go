package strongbox

import (
	"context"
	"fmt"
)

// ObjectRepository scopes object metadata to its owner. An object owned by
// someone else is reported as ErrNotFound, never ErrForbidden.
type ObjectRepository struct {
	store MetaDataStore
}

func NewObjectRepository(store MetaDataStore) *ObjectRepository {
	return &ObjectRepository{store: store}
}

// CreateObject records metadata for bytes already durably written at
// obj.StoragePath. The caller must own the bucket; the object's owner is
// copied from the bucket row. The bool reports whether a row was created.
func (r *ObjectRepository) CreateObject(ctx context.Context, obj NewObject) (Object, bool, error) {
	if err := ValidateObjectKey(obj.Key); err != nil {
		return Object{}, false, fmt.Errorf("create object: %w", err)
	}
	if obj.StoragePath == "" {
		return Object{}, false, fmt.Errorf("create object: %w: storage path cannot be empty", ErrInvalidInput)
	}
	if obj.Size < 0 {
		return Object{}, false, fmt.Errorf("create object: %w: negative size", ErrInvalidInput)
	}

	var (
		stored  Object
		created bool
	)
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		b, err := getOwned(ctx, tx, obj.BucketName, obj.OwnerName)
		if err != nil {
			return err
		}

		stored, created, err = tx.UpsertObject(ctx, ObjectRow{
			BucketID:    b.ID,
			BucketName:  b.Name,
			Key:         obj.Key,
			OwnerID:     b.OwnerID,
			OwnerName:   b.OwnerName,
			StoragePath: obj.StoragePath,
			Extension:   obj.Extension,
			Size:        obj.Size,
			Etag:        obj.Etag,
			DownloadURL: obj.DownloadURL,
		})
		return err
	})
	if err != nil {
		return Object{}, false, fmt.Errorf("create object %s/%s: %w", obj.BucketName, obj.Key, err)
	}

	return stored, created, nil
}

// ListByOwner lists the owner's objects in bucketName, or across all of the
// owner's buckets when bucketName is empty.
func (r *ObjectRepository) ListByOwner(ctx context.Context, bucketName, ownerName string) ([]Object, error) {
	var objects []Object
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		var err error
		objects, err = tx.ListObjects(ctx, bucketName, ownerName)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	return objects, nil
}

func (r *ObjectRepository) ReadOne(ctx context.Context, bucketName, key, ownerName string) (Object, error) {
	var obj Object
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		var err error
		obj, err = tx.GetObject(ctx, bucketName, key, ownerName)
		return err
	})
	if err != nil {
		return Object{}, fmt.Errorf("read object %s/%s: %w", bucketName, key, err)
	}
	return obj, nil
}

// DeleteObject removes the metadata row only and returns what was deleted.
// Removing the bytes is the caller's job and must happen afterwards.
func (r *ObjectRepository) DeleteObject(ctx context.Context, bucketName, key, ownerName string) (Object, error) {
	var obj Object
	err := r.store.WithTx(ctx, func(tx MetaDataTx) error {
		var err error
		obj, err = tx.DeleteObject(ctx, bucketName, key, ownerName)
		return err
	})
	if err != nil {
		return Object{}, fmt.Errorf("delete object %s/%s: %w", bucketName, key, err)
	}
	return obj, nil
}
