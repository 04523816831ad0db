package worker

import (
	"context"
	"fmt"

	"webora/storage-sync/internal/model"
	"webora/storage-sync/internal/service"
)

const WorkerIpnsRepublish = "ipns-republish"

// IpnsWorker periodically re-announces every active name record. IPNS
// records expire on the network if nobody republishes them.
type IpnsWorker struct {
	Naming *service.IpnsService
}

func (w *IpnsWorker) Name() string { return WorkerIpnsRepublish }

func (w *IpnsWorker) Plan(ctx context.Context) ([]int64, error) {
	var ids []int64

	err := w.Naming.DB.
		Model(model.IpnsRecord{}).
		Where("status = ? AND cid != ''", model.StatusActive).
		Order("id ASC").
		Limit(planLimit).
		Pluck("id", &ids).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to plan ipns republish, %w", err)
	}

	return ids, nil
}

func (w *IpnsWorker) ExecuteItem(ctx context.Context, id int64) error {
	var record model.IpnsRecord

	if err := w.Naming.DB.First(&record, id).Error; err != nil {
		return fmt.Errorf("failed to load ipns record %d, %w", id, err)
	}

	if record.Status != model.StatusActive || record.CID == "" {
		return nil
	}

	return w.Naming.Republish(ctx, &record)
}
