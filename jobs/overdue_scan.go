package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/po-master/po-master/internal/jobs"
	"github.com/po-master/po-master/internal/reporting"
)

// OverdueReader groups overdue schedules by currency.
type OverdueReader interface {
	Today() time.Time
	Overdue(ctx context.Context, asOf time.Time) ([]reporting.OverdueBucket, error)
}

// OverdueScanJob logs overdue schedules and publishes them as gauges.
type OverdueScanJob struct {
	Reports OverdueReader
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewOverdueScanJob wires dependencies for the scan handler.
func NewOverdueScanJob(reports OverdueReader, logger *slog.Logger, metrics *jobmetrics.Metrics) *OverdueScanJob {
	return &OverdueScanJob{Reports: reports, Logger: logger, Metrics: metrics}
}

// Handle processes overdue scan tasks.
func (j *OverdueScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("overdue scan: handler not configured")
	}
	var payload OverdueScanPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	asOf, err := parseAsOf(payload.AsOf, j.Reports.Today())
	if err != nil {
		return asynq.SkipRetry
	}

	metrics := metricsOrDefault(j.Metrics)
	tracker := metrics.Track(TaskOverdueScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := jobLogger(j.Logger, TaskOverdueScan).With(slog.String("as_of", asOf.Format(asOfLayout)))
	buckets, err := j.Reports.Overdue(ctx, asOf)
	if err != nil {
		logger.Error("load overdue schedules", slog.Any("error", err))
		return err
	}

	counts := make(map[string]int, len(buckets))
	amounts := make(map[string]float64, len(buckets))
	total := 0
	for _, b := range buckets {
		counts[b.Currency] = b.Count
		amounts[b.Currency] = b.Amount
		total += b.Count
		logger.Warn("overdue schedules",
			slog.String("currency", b.Currency),
			slog.Int("count", b.Count),
			slog.Float64("amount", b.Amount),
		)
	}
	metrics.SetOverdue(counts, amounts)
	logger.Info("completed overdue scan", slog.Int("overdue", total))
	return nil
}
