package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"webora/storage-sync/internal/model"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Orchestrator owns the worker registry, the queue transport and the
// cron schedule driven by the jobs table. Unknown worker names are
// rejected at registration, not per message.
type Orchestrator struct {
	DB          *gorm.DB
	BatchSize   int
	Concurrency int

	client *asynq.Client
	server *asynq.Server
	mux    *asynq.ServeMux
	cron   *cron.Cron

	planners  map[string]Planner
	executors map[string]Executor
}

func NewOrchestrator(db *gorm.DB, redisAddr string, concurrency, batchSize int) *Orchestrator {
	redis := asynq.RedisClientOpt{Addr: redisAddr}

	return &Orchestrator{
		DB:          db,
		BatchSize:   batchSize,
		Concurrency: concurrency,
		client:      asynq.NewClient(redis),
		server: asynq.NewServer(redis, asynq.Config{
			// One batch per message; item fan-out happens inside the
			// handler, so a single worker slot per batch is enough
			Concurrency: max(concurrency/4, 1),
		}),
		mux:       asynq.NewServeMux(),
		cron:      cron.New(),
		planners:  make(map[string]Planner),
		executors: make(map[string]Executor),
	}
}

// Register wires one job: the planner that enumerates its work and the
// executor that drains a batch. Names must match and be unique.
func (o *Orchestrator) Register(p Planner, e Executor) error {
	if p.Name() != e.Name() {
		return fmt.Errorf("planner %q and executor %q don't belong to the same job", p.Name(), e.Name())
	}
	if _, ok := o.executors[e.Name()]; ok {
		return fmt.Errorf("worker %q registered twice", e.Name())
	}

	o.planners[p.Name()] = p
	o.executors[e.Name()] = e

	o.mux.HandleFunc(e.Name(), func(ctx context.Context, t *asynq.Task) error {
		msg, err := DecodeMessage(t.Payload())
		if err != nil {
			return err
		}

		RunBatch(ctx, e, msg, o.Concurrency)
		return nil
	})

	return nil
}

// RunPlanner plans one job and enqueues its batches.
func (o *Orchestrator) RunPlanner(ctx context.Context, name string) error {
	p, ok := o.planners[name]
	if !ok {
		return fmt.Errorf("no planner registered for %q", name)
	}

	items, err := p.Plan(ctx)
	if err != nil {
		return fmt.Errorf("planner %s failed, %w", name, err)
	}

	if len(items) == 0 {
		return nil
	}

	batches := SliceBatches(items, o.BatchSize)
	for _, batch := range batches {
		payload, err := EncodeMessage(name, batch)
		if err != nil {
			return err
		}

		if _, err := o.client.EnqueueContext(ctx, asynq.NewTask(name, payload)); err != nil {
			return fmt.Errorf("failed to enqueue batch for %s, %w", name, err)
		}
	}

	zap.L().Debug("Planner dispatched",
		zap.String("worker", name),
		zap.Int("items", len(items)),
		zap.Int("batches", len(batches)))

	return nil
}

// EnsureJob seeds the jobs table row driving one schedule, leaving an
// operator-tuned cron expression alone.
func (o *Orchestrator) EnsureJob(name, cronExpr string) error {
	var job model.Job

	err := o.DB.Where("name = ?", name).First(&job).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("failed to look up job %s, %w", name, err)
	}

	return o.DB.Create(&model.Job{
		Name:    name,
		Cron:    cronExpr,
		Enabled: true,
	}).Error
}

// StartScheduler loads the jobs table and attaches every enabled job
// with a registered planner to the cron runner.
func (o *Orchestrator) StartScheduler(ctx context.Context) error {
	var jobs []model.Job

	if err := o.DB.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load jobs, %w", err)
	}

	for _, job := range jobs {
		if _, ok := o.planners[job.Name]; !ok {
			zap.L().Warn("Job has no registered planner, skipping",
				zap.String("job", job.Name))
			continue
		}

		name := job.Name
		timeout := time.Duration(job.Timeout) * time.Second
		jobID := job.ID

		_, err := o.cron.AddFunc(job.Cron, func() {
			runCtx := ctx
			cancel := func() {}
			if timeout > 0 {
				runCtx, cancel = context.WithTimeout(ctx, timeout)
			}
			defer cancel()

			if err := o.RunPlanner(runCtx, name); err != nil {
				zap.L().Error("Scheduled planner run failed",
					zap.String("job", name),
					zap.Error(err))
			}

			now := time.Now().Unix()
			err := o.DB.
				Model(model.Job{}).
				Where("id = ?", jobID).
				Update("last_run", now).
				Error
			if err != nil {
				zap.L().Error("Failed to record job run", zap.Error(err))
			}
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression for job %s, %w", name, err)
		}

		zap.L().Debug("Job scheduled",
			zap.String("job", name),
			zap.String("cron", job.Cron))
	}

	o.cron.Start()

	return nil
}

// RunAllPlanners fires every registered planner once, used by the
// --sync-on-start flag and by tests.
func (o *Orchestrator) RunAllPlanners(ctx context.Context) {
	for name := range o.planners {
		if err := o.RunPlanner(ctx, name); err != nil {
			zap.L().Error("Planner run failed",
				zap.String("job", name),
				zap.Error(err))
		}
	}
}

// Run starts the queue consumer and blocks.
func (o *Orchestrator) Run() error {
	return o.server.Run(o.mux)
}

// Stop shuts the scheduler and consumer down.
func (o *Orchestrator) Stop() {
	o.cron.Stop()
	o.server.Shutdown()
	o.client.Close()
}
