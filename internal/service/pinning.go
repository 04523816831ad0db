package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webora/storage-sync/internal/model"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Pinning contracts expire, a successful order has to be re-placed
// periodically.
const renewalInterval = time.Hour * 24 * 30 * 6

// PinService is the durable pin request queue and its executor.
type PinService struct {
	DB     *gorm.DB
	Ledger PinningLedger
}

func NewPinService(db *gorm.DB, ledger PinningLedger) *PinService {
	return &PinService{
		DB:     db,
		Ledger: ledger,
	}
}

// Enqueue records one pin request per CID. A CID already queued is left
// alone, the unique index makes this race-safe.
func (p *PinService) Enqueue(bucketUUID, cid string, size int64, isDirectory bool, refID, refTable string) {
	if cid == "" {
		return
	}

	req := model.PinToCrustRequest{
		BucketUUID:    bucketUUID,
		CID:           cid,
		Size:          size,
		IsDirectory:   isDirectory,
		RefID:         refID,
		RefTable:      refTable,
		PinningStatus: model.PinningStatusPending,
		CreatedAt:     time.Now().Unix(),
	}

	err := p.DB.Create(&req).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return
	}
	if err != nil {
		zap.L().Error("Failed to enqueue pin request",
			zap.String("cid", cid), zap.Error(err))
	}
}

// PollPending returns requests eligible for execution: pending or failed
// with attempts left, lowest execution count first so stragglers aren't
// starved by a burst of fresh work.
func (p *PinService) PollPending(limit int) ([]model.PinToCrustRequest, error) {
	var reqs []model.PinToCrustRequest

	err := p.DB.
		Where("pinning_status IN ? AND num_of_executions < ?",
			[]model.PinningStatus{model.PinningStatusPending, model.PinningStatusFailed},
			model.MaxPinExecutions).
		Order("num_of_executions ASC, id ASC").
		Limit(limit).
		Find(&reqs).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to poll pending pin requests, %w", err)
	}

	return reqs, nil
}

// PollForRenewal returns successfully pinned requests whose storage
// order is older than the renewal interval.
func (p *PinService) PollForRenewal(limit int) ([]model.PinToCrustRequest, error) {
	cutoff := time.Now().Add(-renewalInterval).Unix()

	var reqs []model.PinToCrustRequest

	err := p.DB.
		Where("pinning_status = ?", model.PinningStatusSuccessful).
		Where("(renewal_date IS NULL AND created_at < ?) OR renewal_date < ?", cutoff, cutoff).
		Order("id ASC").
		Limit(limit).
		Find(&reqs).
		Error
	if err != nil {
		return nil, fmt.Errorf("failed to poll pin requests for renewal, %w", err)
	}

	return reqs, nil
}

// Execute places the storage order for one request and records the
// outcome. Failures are retried on later polls until the execution cap,
// after which the request is surfaced as an operator alert.
func (p *PinService) Execute(ctx context.Context, req *model.PinToCrustRequest) error {
	now := time.Now().Unix()

	_, err := p.Ledger.PlaceStorageOrder(ctx, req.CID, req.Size, req.BucketUUID)
	if err != nil {
		req.NumOfExecutions++
		req.PinningStatus = model.PinningStatusFailed
		req.Message = err.Error()

		dbErr := p.DB.
			Model(model.PinToCrustRequest{}).
			Where("id = ?", req.ID).
			Updates(map[string]any{
				"num_of_executions": req.NumOfExecutions,
				"pinning_status":    model.PinningStatusFailed,
				"message":           req.Message,
				"updated_at":        now,
			}).
			Error
		if dbErr != nil {
			return fmt.Errorf("failed to record pin failure, %w", dbErr)
		}

		if req.NumOfExecutions >= model.MaxPinExecutions {
			p.alertExhausted(req)
		}

		return fmt.Errorf("failed to place storage order for %s, %w", req.CID, err)
	}

	req.PinningStatus = model.PinningStatusSuccessful
	req.Message = ""
	renewal := now
	req.RenewalDate = &renewal

	err = p.DB.
		Model(model.PinToCrustRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]any{
			"pinning_status": model.PinningStatusSuccessful,
			"message":        "",
			"renewal_date":   renewal,
			"updated_at":     now,
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to record pin success, %w", err)
	}

	if req.RefTable == model.RefTableFile {
		err = p.DB.
			Model(model.File{}).
			Where("file_uuid = ? AND file_status = ?", req.RefID, model.FileStatusUploadedToIPFS).
			Updates(map[string]any{
				"file_status": model.FileStatusPinnedToCrust,
				"updated_at":  now,
			}).
			Error
		if err != nil {
			return fmt.Errorf("failed to advance file status, %w", err)
		}
	}

	zap.L().Debug("Storage order placed",
		zap.String("cid", req.CID),
		zap.Int64("size", req.Size))

	return nil
}

// MarkForRenewal pushes a previously successful request back through
// the executor with a fresh attempt budget.
func (p *PinService) MarkForRenewal(req *model.PinToCrustRequest) error {
	err := p.DB.
		Model(model.PinToCrustRequest{}).
		Where("id = ?", req.ID).
		Updates(map[string]any{
			"pinning_status":    model.PinningStatusPending,
			"num_of_executions": 0,
			"message":           "",
			"updated_at":        time.Now().Unix(),
		}).
		Error
	if err != nil {
		return fmt.Errorf("failed to mark pin request for renewal, %w", err)
	}

	req.PinningStatus = model.PinningStatusPending
	req.NumOfExecutions = 0

	return nil
}

func (p *PinService) alertExhausted(req *model.PinToCrustRequest) {
	alert := model.WorkerAlert{
		WorkerName: "pin-to-crust",
		RefTable:   "pin_to_crust_requests",
		RefID:      fmt.Sprint(req.ID),
		Message:    fmt.Sprintf("pin request for %s exhausted %d executions: %s", req.CID, req.NumOfExecutions, req.Message),
		CreatedAt:  time.Now().Unix(),
	}

	if err := p.DB.Create(&alert).Error; err != nil {
		zap.L().Error("Failed to write worker alert", zap.Error(err))
	}

	zap.L().Error("Pin request permanently failed",
		zap.String("cid", req.CID),
		zap.String("message", req.Message))
}
