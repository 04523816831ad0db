package worker

import (
	"context"
	"fmt"
	"time"

	"webora/storage-sync/internal/model"
	"webora/storage-sync/internal/service"

	"github.com/spf13/viper"
)

const (
	WorkerBucketDelete    = "bucket-delete"
	WorkerBucketReconcile = "bucket-size-reconcile"
)

// BucketDeleteWorker finalizes buckets whose retention window has run
// out since they were marked for deletion.
type BucketDeleteWorker struct {
	Maintenance *service.MaintenanceService
}

func (w *BucketDeleteWorker) Name() string { return WorkerBucketDelete }

func (w *BucketDeleteWorker) Plan(ctx context.Context) ([]int64, error) {
	retention := time.Duration(viper.GetInt("buckets.retention_days")) * 24 * time.Hour

	buckets, err := w.Maintenance.MarkedBucketsDue(retention)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(buckets))
	for i, b := range buckets {
		ids[i] = int64(b.ID)
	}

	return ids, nil
}

func (w *BucketDeleteWorker) ExecuteItem(ctx context.Context, id int64) error {
	var bucket model.Bucket

	if err := w.Maintenance.DB.First(&bucket, id).Error; err != nil {
		return fmt.Errorf("failed to load bucket %d, %w", id, err)
	}

	if bucket.Status != model.StatusMarkedForDeletion {
		return nil
	}

	return w.Maintenance.DeleteBucket(ctx, &bucket)
}

// BucketReconcileWorker corrects size drift of the incremental counter
// against SUM(files.size).
type BucketReconcileWorker struct {
	Maintenance *service.MaintenanceService
}

func (w *BucketReconcileWorker) Name() string { return WorkerBucketReconcile }

func (w *BucketReconcileWorker) Plan(ctx context.Context) ([]int64, error) {
	var ids []int64

	err := w.Maintenance.DB.
		Model(model.Bucket{}).
		Where("status = ?", model.StatusActive).
		Order("id ASC").
		Limit(planLimit).
		Pluck("id", &ids).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to plan bucket reconcile, %w", err)
	}

	return ids, nil
}

func (w *BucketReconcileWorker) ExecuteItem(ctx context.Context, id int64) error {
	var bucket model.Bucket

	if err := w.Maintenance.DB.First(&bucket, id).Error; err != nil {
		return fmt.Errorf("failed to load bucket %d, %w", id, err)
	}

	if bucket.Status != model.StatusActive {
		return nil
	}

	return w.Maintenance.RecalculateSize(&bucket)
}
