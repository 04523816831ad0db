// Package worker is the background job orchestration layer: planners
// enumerate work and slice it into bounded batches, executors drain one
// batch each with bounded concurrency and per-item isolation. Batches
// travel as queue messages keyed by worker name.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

// Planner enumerates the pending work of one job as item ids. The
// orchestrator slices the result into batches. Planners must be
// idempotent: re-planning after a crash only ever re-selects items whose
// state still qualifies.
type Planner interface {
	Name() string
	Plan(ctx context.Context) ([]int64, error)
}

// Executor processes a single item of a batch. Item failures are
// isolated and reported individually; they never stop batch siblings.
type Executor interface {
	Name() string
	ExecuteItem(ctx context.Context, id int64) error
}

// Message is the queue contract between planners and executors.
type Message struct {
	WorkerName string  `json:"workerName"`
	JobID      string  `json:"jobId"`
	Parameters []int64 `json:"parameters"`
}

// EncodeMessage builds the payload for one batch, minting a job id.
func EncodeMessage(workerName string, items []int64) ([]byte, error) {
	jobID, err := gonanoid.New(12)
	if err != nil {
		return nil, err
	}

	return json.Marshal(Message{
		WorkerName: workerName,
		JobID:      jobID,
		Parameters: items,
	})
}

// DecodeMessage parses a queue payload.
func DecodeMessage(payload []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("failed to decode worker message, %w", err)
	}
	return &msg, nil
}

// SliceBatches splits items into chunks of at most size.
func SliceBatches(items []int64, size int) [][]int64 {
	if size <= 0 {
		size = 1
	}

	var batches [][]int64
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}

	return batches
}

// RunBatch fans one batch out over the executor with at most
// concurrency items in flight. Every failure is logged on its own; a
// panicking item is contained the same way. The batch itself always
// "succeeds": requeueing is pointless because the polling predicates
// re-select anything still unfinished on the next planner run.
func RunBatch(ctx context.Context, e Executor, msg *Message, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}

	log := zap.L().With(
		zap.String("worker", e.Name()),
		zap.String("job_id", msg.JobID),
	)

	var (
		wg   sync.WaitGroup
		sem  = make(chan struct{}, concurrency)
		fail int
		mu   sync.Mutex
	)

	for _, id := range msg.Parameters {
		wg.Add(1)
		sem <- struct{}{}

		go func(id int64) {
			defer wg.Done()
			defer func() { <-sem }()
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					fail++
					mu.Unlock()
					log.Error("Worker item panicked",
						zap.Int64("item_id", id),
						zap.Any("panic", r))
				}
			}()

			if err := e.ExecuteItem(ctx, id); err != nil {
				mu.Lock()
				fail++
				mu.Unlock()
				log.Warn("Worker item failed",
					zap.Int64("item_id", id),
					zap.Error(err))
			}
		}(id)
	}

	wg.Wait()

	log.Debug("Batch finished",
		zap.Int("items", len(msg.Parameters)),
		zap.Int("failed", fail))
}
