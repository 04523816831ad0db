package model

// Job drives scheduled invocation of one planner. Cron holds a standard
// five-field expression; NextRun/LastRun are bookkeeping only, the cron
// runner is authoritative for actual firing.
type Job struct {
	ID      uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	Name    string `gorm:"uniqueIndex" json:"name"`
	Cron    string `json:"cron"`
	Timeout int64  `json:"timeout"` // seconds, 0 means no limit
	NextRun *int64 `json:"next_run"`
	LastRun *int64 `json:"last_run"`
	Enabled bool   `gorm:"default:true" json:"enabled"`
}

// WorkerAlert is the operator-facing channel for unretryable failures,
// e.g. a pin request that burned through all its executions.
type WorkerAlert struct {
	ID         uint   `gorm:"primaryKey;autoIncrement" json:"id"`
	WorkerName string `gorm:"index" json:"worker_name"`
	RefTable   string `json:"ref_table"`
	RefID      string `json:"ref_id"`
	Message    string `json:"message"`
	CreatedAt  int64  `gorm:"not null" json:"created_at"`
}
