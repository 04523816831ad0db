package main

import (
	"context"
	"fmt"

	"webora/storage-sync/api"
	"webora/storage-sync/aws"
	"webora/storage-sync/config"
	"webora/storage-sync/crust"
	"webora/storage-sync/db"
	"webora/storage-sync/internal"
	"webora/storage-sync/internal/service"
	"webora/storage-sync/internal/worker"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	err := config.Setup()
	if err != nil {
		panic(err)
	}

	deps, err := buildDeps()
	if err != nil {
		panic(err)
	}

	a := api.NewRouter(deps)

	// NewRouter installs the global logger, degraded-config notices
	// are only visible from here on
	warnDegradedConfig()

	ctx := context.Background()

	if err := seedJobs(deps.Orchestrator); err != nil {
		panic(err)
	}

	if err := deps.Orchestrator.StartScheduler(ctx); err != nil {
		panic(err)
	}

	go func() {
		if err := deps.Orchestrator.Run(); err != nil {
			zap.L().Fatal("Worker server stopped", zap.Error(err))
		}
	}()

	if viper.GetBool("workers.sync_on_start") {
		deps.Orchestrator.RunAllPlanners(ctx)
	}

	zap.L().Info("Server starting")

	err = a.Router.Run(fmt.Sprintf(":%d", viper.GetInt("host.port")))
	if err != nil {
		panic(err)
	}
}

func warnDegradedConfig() {
	if viper.GetString("crust.endpoint") == "" {
		zap.L().Warn("No crust.endpoint specified, pin requests will stay pending")
	}
}

func buildDeps() (*internal.Deps, error) {
	gormDB, err := db.New()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database, %w", err)
	}

	s3, err := aws.NewS3()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize staging client, %w", err)
	}

	ledger := crust.New(
		viper.GetString("crust.endpoint"),
		viper.GetInt64("crust.tips"),
		viper.GetInt("crust.orders_per_minute"),
	)

	clusters := service.NewClusterService(gormDB)
	pins := service.NewPinService(gormDB, ledger)
	naming := service.NewIpnsService(gormDB, clusters)

	orch := worker.NewOrchestrator(
		gormDB,
		viper.GetString("workers.redis_addr"),
		viper.GetInt("workers.concurrency"),
		viper.GetInt("workers.batch_size"),
	)

	maintenance := service.NewMaintenanceService(gormDB, s3)

	workers := []struct {
		planner  worker.Planner
		executor worker.Executor
	}{
		{&worker.PinWorker{Pins: pins}, &worker.PinWorker{Pins: pins}},
		{&worker.RenewalWorker{Pins: pins}, &worker.RenewalWorker{Pins: pins}},
		{&worker.IpnsWorker{Naming: naming}, &worker.IpnsWorker{Naming: naming}},
		{&worker.BucketDeleteWorker{Maintenance: maintenance}, &worker.BucketDeleteWorker{Maintenance: maintenance}},
		{&worker.BucketReconcileWorker{Maintenance: maintenance}, &worker.BucketReconcileWorker{Maintenance: maintenance}},
	}
	for _, w := range workers {
		if err := orch.Register(w.planner, w.executor); err != nil {
			return nil, err
		}
	}

	return &internal.Deps{
		DB:           gormDB,
		S3:           s3,
		Uploads:      service.NewUploadService(gormDB, s3),
		Sync:         service.NewSyncService(gormDB, s3, pins, naming, clusters),
		Pins:         pins,
		Naming:       naming,
		Clusters:     clusters,
		Quota:        service.NewQuotaService(),
		Maintenance:  maintenance,
		Orchestrator: orch,
	}, nil
}

func seedJobs(orch *worker.Orchestrator) error {
	seeds := map[string]string{
		worker.WorkerPinToCrust:      "*/2 * * * *",
		worker.WorkerPinRenewal:      "0 3 * * *",
		worker.WorkerIpnsRepublish:   "0 */6 * * *",
		worker.WorkerBucketDelete:    "30 4 * * *",
		worker.WorkerBucketReconcile: "0 5 * * 0",
	}

	for name, expr := range seeds {
		if err := orch.EnsureJob(name, expr); err != nil {
			return err
		}
	}

	return nil
}
