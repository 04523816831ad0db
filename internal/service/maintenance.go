package service

import (
	"context"
	"fmt"
	"time"

	"webora/storage-sync/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MaintenanceService covers the slow housekeeping around buckets:
// hard-deleting buckets past the retention window and reconciling the
// incrementally maintained size counter against the real sum.
type MaintenanceService struct {
	DB      *gorm.DB
	Staging StagingStore
}

func NewMaintenanceService(db *gorm.DB, staging StagingStore) *MaintenanceService {
	return &MaintenanceService{
		DB:      db,
		Staging: staging,
	}
}

// MarkedBucketsDue lists buckets soft-deleted longer ago than the
// retention window.
func (m *MaintenanceService) MarkedBucketsDue(retention time.Duration) ([]model.Bucket, error) {
	cutoff := time.Now().Add(-retention).Unix()

	var buckets []model.Bucket

	err := m.DB.
		Where("status = ? AND marked_at IS NOT NULL AND marked_at < ?", model.StatusMarkedForDeletion, cutoff).
		Find(&buckets).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to list buckets due for deletion, %w", err)
	}

	return buckets, nil
}

// DeleteBucket finalizes a marked bucket: contained files and
// directories are deleted, leftover staged objects removed and the
// bucket's pin requests dropped so their storage orders simply lapse at
// contract expiry instead of being renewed.
func (m *MaintenanceService) DeleteBucket(ctx context.Context, bucket *model.Bucket) error {
	staged, err := m.Staging.List(ctx, fmt.Sprintf("%s_sessions/%d/", bucket.BucketType, bucket.ID))
	if err != nil {
		zap.L().Error("Failed to list staged leftovers of deleted bucket", zap.Error(err))
	} else if len(staged) > 0 {
		keys := make([]string, len(staged))
		for i, o := range staged {
			keys[i] = o.Key
		}
		if err := m.Staging.RemoveMany(ctx, keys); err != nil {
			zap.L().Error("Failed to remove staged leftovers of deleted bucket", zap.Error(err))
		}
	}

	err = m.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().Unix()

		err := tx.
			Model(model.File{}).
			Where("bucket_id = ?", bucket.ID).
			Updates(map[string]any{"status": model.StatusDeleted, "updated_at": now}).
			Error
		if err != nil {
			return fmt.Errorf("failed to delete bucket files, %w", err)
		}

		err = tx.
			Model(model.Directory{}).
			Where("bucket_id = ?", bucket.ID).
			Update("status", model.StatusDeleted).
			Error
		if err != nil {
			return fmt.Errorf("failed to delete bucket directories, %w", err)
		}

		err = tx.
			Where("bucket_uuid = ?", bucket.BucketUUID).
			Delete(model.PinToCrustRequest{}).
			Error
		if err != nil {
			return fmt.Errorf("failed to drop bucket pin requests, %w", err)
		}

		err = tx.
			Model(model.IpnsRecord{}).
			Where("bucket_id = ?", bucket.ID).
			Update("status", model.StatusDeleted).
			Error
		if err != nil {
			return fmt.Errorf("failed to retire bucket ipns records, %w", err)
		}

		err = tx.
			Model(model.Bucket{}).
			Where("id = ?", bucket.ID).
			Updates(map[string]any{"status": model.StatusDeleted, "size": 0}).
			Error
		if err != nil {
			return fmt.Errorf("failed to delete bucket, %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	bucket.Status = model.StatusDeleted

	zap.L().Info("Bucket deleted",
		zap.String("bucket_uuid", bucket.BucketUUID))

	return nil
}

// RecalculateSize replaces the drift-prone incremental counter with the
// actual sum of active file sizes.
func (m *MaintenanceService) RecalculateSize(bucket *model.Bucket) error {
	var sum int64

	err := m.DB.
		Model(model.File{}).
		Where("bucket_id = ? AND status = ?", bucket.ID, model.StatusActive).
		Select("COALESCE(SUM(size), 0)").
		Scan(&sum).
		Error
	if err != nil {
		return fmt.Errorf("failed to sum bucket file sizes, %w", err)
	}

	if sum == bucket.Size {
		return nil
	}

	zap.L().Warn("Bucket size drifted from file sum, correcting",
		zap.String("bucket_uuid", bucket.BucketUUID),
		zap.Int64("recorded", bucket.Size),
		zap.Int64("actual", sum))

	err = m.DB.
		Model(model.Bucket{}).
		Where("id = ?", bucket.ID).
		Update("size", sum).
		Error
	if err != nil {
		return fmt.Errorf("failed to correct bucket size, %w", err)
	}

	bucket.Size = sum

	return nil
}
