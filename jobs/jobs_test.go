package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/po-master/po-master/internal/jobs"
	"github.com/po-master/po-master/internal/procurement"
	"github.com/po-master/po-master/internal/reporting"
	_ "github.com/po-master/po-master/testing"
)

var today = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeReports struct {
	warmed  []time.Time
	buckets []reporting.OverdueBucket
	err     error
}

func (f *fakeReports) Today() time.Time { return today }

func (f *fakeReports) Warmup(ctx context.Context, asOf time.Time) error {
	f.warmed = append(f.warmed, asOf)
	return f.err
}

func (f *fakeReports) Overdue(ctx context.Context, asOf time.Time) ([]reporting.OverdueBucket, error) {
	return f.buckets, f.err
}

type fakePurger struct {
	retention time.Duration
	purged    int64
}

func (f *fakePurger) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	f.retention = olderThan
	return f.purged, nil
}

type fakeEnqueuer struct {
	days []string
	err  error
}

func (f *fakeEnqueuer) EnqueueReportWarmup(ctx context.Context, asOf string) (*asynq.TaskInfo, error) {
	f.days = append(f.days, asOf)
	return &asynq.TaskInfo{}, f.err
}

func newMetrics() *jobmetrics.Metrics {
	return jobmetrics.NewMetrics(prometheus.NewRegistry())
}

func TestReportWarmupDefaultsToToday(t *testing.T) {
	reports := &fakeReports{}
	job := NewReportWarmupJob(reports, quietLogger(), newMetrics())

	task, err := NewReportWarmupTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	task, err = NewReportWarmupTask("2024-04-01")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, []time.Time{today, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}, reports.warmed)
}

func TestReportWarmupRejectsBadPayload(t *testing.T) {
	job := NewReportWarmupJob(&fakeReports{}, quietLogger(), newMetrics())
	err := job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, []byte(`{"as_of":"May 1"}`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
	err = job.Handle(context.Background(), asynq.NewTask(TaskReportWarmup, []byte(`not json`)))
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReportWarmupPropagatesFailure(t *testing.T) {
	boom := errors.New("store down")
	job := NewReportWarmupJob(&fakeReports{err: boom}, quietLogger(), newMetrics())
	task, err := NewReportWarmupTask("")
	require.NoError(t, err)
	require.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestOverdueScan(t *testing.T) {
	reports := &fakeReports{buckets: []reporting.OverdueBucket{
		{Currency: "EUR", Count: 2, Amount: 700},
		{Currency: "USD", Count: 1, Amount: 40},
	}}
	job := NewOverdueScanJob(reports, quietLogger(), newMetrics())
	task, err := NewOverdueScanTask("")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	purger := &fakePurger{purged: 4}
	job := NewIdempotencyCleanupJob(purger, quietLogger(), newMetrics())

	task, err := NewIdempotencyCleanupTask(24 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 24*time.Hour, purger.retention)

	task, err = NewIdempotencyCleanupTask(0)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, defaultKeyRetention, purger.retention)
}

func TestWarmupNotifierEnqueuesToday(t *testing.T) {
	enqueuer := &fakeEnqueuer{}
	notifier := NewWarmupNotifier(enqueuer, func() time.Time { return today })
	var _ procurement.ChangeNotifier = notifier

	evt := procurement.ChangeEvent{Entity: "payment", Action: "create"}
	require.NoError(t, notifier.NotifyChange(context.Background(), evt))
	require.Equal(t, []string{"2024-05-10"}, enqueuer.days)

	enqueuer.err = asynq.ErrDuplicateTask
	require.NoError(t, notifier.NotifyChange(context.Background(), evt))

	enqueuer.err = errors.New("redis down")
	require.Error(t, notifier.NotifyChange(context.Background(), evt))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	NewHandler(nil, quietLogger()).MountRoutes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0}`, rec.Body.String())
}
