package strongbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

const DefaultReconcilePageSize = 500

type ReconcileOptions struct {
	// Fix removes orphan files and orphan rows. Without it the pass only reports.
	Fix      bool
	PageSize int
}

// ReconcileReport lists the inconsistencies found between the metadata store
// and the filesystem.
type ReconcileReport struct {
	// OrphanFiles exist on disk with no metadata row.
	OrphanFiles []StoredFile `json:"orphan_files"`
	// OrphanObjects are rows whose file is missing.
	OrphanObjects  []Object `json:"orphan_objects"`
	FilesRemoved   int      `json:"files_removed"`
	ObjectsRemoved int      `json:"objects_removed"`
}

// Reconcile compares every stored file with every object row. It is meant to
// run offline; with Fix each candidate is rechecked under its key lock before
// removal so an upload racing the pass in this process is never undone.
func (s *Service) Reconcile(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error) {
	if err := ctx.Err(); err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile: %w", err)
	}

	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultReconcilePageSize
	}

	files, err := s.storage.List(ctx)
	if err != nil {
		return ReconcileReport{}, fmt.Errorf("reconcile: list files: %w", err)
	}

	onDisk := make(map[string]StoredFile, len(files))
	for _, f := range files {
		onDisk[f.Path] = f
	}

	var report ReconcileReport
	referenced := make(map[string]struct{})
	cursor := ""

	for {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("reconcile: %w", err)
		}

		var page ListResult
		err := s.store.WithTx(ctx, func(tx MetaDataTx) error {
			var listErr error
			page, listErr = tx.ListAllObjects(ctx, ListQuery{Limit: pageSize, Cursor: cursor})
			return listErr
		})
		if err != nil {
			return report, fmt.Errorf("reconcile: list objects: %w", err)
		}

		for _, obj := range page.Items {
			referenced[obj.StoragePath] = struct{}{}
			if _, ok := onDisk[obj.StoragePath]; !ok {
				report.OrphanObjects = append(report.OrphanObjects, obj)
			}
		}

		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}

	for _, f := range files {
		if _, ok := referenced[f.Path]; !ok {
			report.OrphanFiles = append(report.OrphanFiles, f)
		}
	}

	slog.Info("reconcile scan complete",
		"files", len(files),
		"orphan_files", len(report.OrphanFiles),
		"orphan_objects", len(report.OrphanObjects),
	)

	if !opts.Fix {
		return report, nil
	}

	for _, obj := range report.OrphanObjects {
		removed, fixErr := s.removeOrphanObject(ctx, obj)
		if fixErr != nil {
			return report, fmt.Errorf("reconcile: %w", fixErr)
		}
		if removed {
			report.ObjectsRemoved++
		}
	}

	for _, f := range report.OrphanFiles {
		removed, fixErr := s.removeOrphanFile(ctx, f)
		if fixErr != nil {
			return report, fmt.Errorf("reconcile: %w", fixErr)
		}
		if removed {
			report.FilesRemoved++
		}
	}

	return report, nil
}

func (s *Service) removeOrphanObject(ctx context.Context, obj Object) (bool, error) {
	unlock := s.locks.Lock(obj.BucketName, obj.Key)
	defer unlock()

	if _, err := s.storage.Stat(ctx, obj.StoragePath); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, fmt.Errorf("stat %s: %w", obj.StoragePath, err)
	}

	err := s.store.WithTx(ctx, func(tx MetaDataTx) error {
		_, delErr := tx.DeleteObject(ctx, obj.BucketName, obj.Key, obj.OwnerName)
		return delErr
	})
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("remove orphan object %s/%s: %w", obj.BucketName, obj.Key, err)
	}

	slog.Info("removed orphan object", "bucket", obj.BucketName, "key", obj.Key)
	return true, nil
}

func (s *Service) removeOrphanFile(ctx context.Context, f StoredFile) (bool, error) {
	unlock := s.locks.Lock(f.BucketName, f.Key)
	defer unlock()

	referenced := false
	err := s.store.WithTx(ctx, func(tx MetaDataTx) error {
		b, err := tx.GetBucketByName(ctx, f.BucketName)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		obj, err := tx.GetObject(ctx, f.BucketName, f.Key, b.OwnerName)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}

		referenced = obj.StoragePath == f.Path
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("recheck orphan file %s: %w", f.Path, err)
	}
	if referenced {
		return false, nil
	}

	if err := s.storage.Delete(ctx, f.Path); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("remove orphan file %s: %w", f.Path, err)
	}

	slog.Info("removed orphan file", "bucket", f.BucketName, "key", f.Key, "size", f.Size)
	return true, nil
}
