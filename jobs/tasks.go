package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskReportWarmup rebuilds the cached dashboard and summary.
	TaskReportWarmup = "reports:warmup"
	// TaskOverdueScan counts overdue payment schedules per currency.
	TaskOverdueScan = "schedules:overdue_scan"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

const asOfLayout = "2006-01-02"

// ReportWarmupPayload selects the report day to warm. Empty means today.
type ReportWarmupPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewReportWarmupTask constructs a warm-up task.
func NewReportWarmupTask(asOf string) (*asynq.Task, error) {
	data, err := json.Marshal(ReportWarmupPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportWarmup, data), nil
}

// OverdueScanPayload selects the day overdue is measured against. Empty means today.
type OverdueScanPayload struct {
	AsOf string `json:"as_of,omitempty"`
}

// NewOverdueScanTask constructs an overdue scan task.
func NewOverdueScanTask(asOf string) (*asynq.Task, error) {
	data, err := json.Marshal(OverdueScanPayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOverdueScan, data), nil
}

// IdempotencyCleanupPayload sets how long keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: int(retention / time.Hour)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// parseAsOf reads a payload date, falling back to today.
func parseAsOf(raw string, today time.Time) (time.Time, error) {
	if raw == "" {
		return today, nil
	}
	return time.Parse(asOfLayout, raw)
}
