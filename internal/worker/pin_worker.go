package worker

import (
	"context"
	"fmt"

	"webora/storage-sync/internal/model"
	"webora/storage-sync/internal/service"
)

// Worker names double as queue task types and jobs-table keys.
const (
	WorkerPinToCrust = "pin-to-crust"
	WorkerPinRenewal = "pin-renewal"
)

// How much pending work one planner run picks up. Anything beyond this
// waits for the next tick.
const planLimit = 500

// PinWorker drains the pin request queue against the storage market.
type PinWorker struct {
	Pins *service.PinService
}

func (w *PinWorker) Name() string { return WorkerPinToCrust }

func (w *PinWorker) Plan(ctx context.Context) ([]int64, error) {
	reqs, err := w.Pins.PollPending(planLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = int64(r.ID)
	}

	return ids, nil
}

func (w *PinWorker) ExecuteItem(ctx context.Context, id int64) error {
	var req model.PinToCrustRequest

	if err := w.Pins.DB.First(&req, id).Error; err != nil {
		return fmt.Errorf("failed to load pin request %d, %w", id, err)
	}

	// The poll predicate re-checks nothing here: a request that
	// succeeded between plan and execute is skipped by status
	if req.PinningStatus == model.PinningStatusSuccessful ||
		req.NumOfExecutions >= model.MaxPinExecutions {
		return nil
	}

	return w.Pins.Execute(ctx, &req)
}

// RenewalWorker re-queues expiring storage orders through the regular
// pin executor path.
type RenewalWorker struct {
	Pins *service.PinService
}

func (w *RenewalWorker) Name() string { return WorkerPinRenewal }

func (w *RenewalWorker) Plan(ctx context.Context) ([]int64, error) {
	reqs, err := w.Pins.PollForRenewal(planLimit)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, len(reqs))
	for i, r := range reqs {
		ids[i] = int64(r.ID)
	}

	return ids, nil
}

func (w *RenewalWorker) ExecuteItem(ctx context.Context, id int64) error {
	var req model.PinToCrustRequest

	if err := w.Pins.DB.First(&req, id).Error; err != nil {
		return fmt.Errorf("failed to load pin request %d, %w", id, err)
	}

	if req.PinningStatus != model.PinningStatusSuccessful {
		return nil
	}

	return w.Pins.MarkForRenewal(&req)
}
