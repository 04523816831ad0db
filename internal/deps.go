package internal

import (
	"webora/storage-sync/aws"
	"webora/storage-sync/internal/service"
	"webora/storage-sync/internal/worker"

	"gorm.io/gorm"
)

// Deps is the one explicit wiring point of the application. Everything
// is constructed once in main and passed down, there is no global state
// besides zap's logger.
type Deps struct {
	DB           *gorm.DB
	S3           *aws.S3Client
	Uploads      *service.UploadService
	Sync         *service.SyncService
	Pins         *service.PinService
	Naming       *service.IpnsService
	Clusters     *service.ClusterService
	Quota        *service.QuotaService
	Maintenance  *service.MaintenanceService
	Orchestrator *worker.Orchestrator
}
