// Package reporting serves the read side: it loads every record in parallel,
// builds report views with the reports engine and caches them in Redis.
package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/po-master/po-master/internal/procurement"
	"github.com/po-master/po-master/internal/reports"
)

// DataSource is the subset of the record store the read side needs.
type DataSource interface {
	ListProjects(ctx context.Context, filter procurement.ListFilter) ([]procurement.Project, error)
	ListPurchaseOrders(ctx context.Context, filter procurement.ListFilter) ([]procurement.PurchaseOrder, error)
	ListSchedules(ctx context.Context, filter procurement.ListFilter) ([]procurement.PaymentSchedule, error)
	ListPayments(ctx context.Context, filter procurement.ListFilter) ([]procurement.Payment, error)
	ListSuppliers(ctx context.Context) ([]procurement.Supplier, error)
}

// Service coordinates dataset loading, view building and the cache layer.
type Service struct {
	source DataSource
	cache  *Cache
	logger *slog.Logger
	loc    *time.Location
	now    func() time.Time
	group  singleflight.Group
}

// NewService wires a DataSource with a Cache helper. A nil cache computes every view directly.
func NewService(source DataSource, cache *Cache, logger *slog.Logger, loc *time.Location) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{source: source, cache: cache, logger: logger, loc: loc, now: time.Now}
}

// Today returns the current calendar date in the report time zone.
func (s *Service) Today() time.Time {
	return reports.DateOnly(s.now().In(s.loc))
}

// LoadDataset reads every table concurrently and waits for all of them.
// Any failed read fails the whole load.
func (s *Service) LoadDataset(ctx context.Context) (Dataset, error) {
	var ds Dataset
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		ds.Projects, err = s.source.ListProjects(ctx, procurement.ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		ds.PurchaseOrders, err = s.source.ListPurchaseOrders(ctx, procurement.ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		ds.Schedules, err = s.source.ListSchedules(ctx, procurement.ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		ds.Payments, err = s.source.ListPayments(ctx, procurement.ListFilter{})
		return err
	})
	g.Go(func() error {
		var err error
		ds.Suppliers, err = s.source.ListSuppliers(ctx)
		return err
	})
	if err := g.Wait(); err != nil {
		var storeErr *procurement.StoreError
		if !errors.As(err, &storeErr) {
			err = &procurement.StoreError{Kind: procurement.KindFetch, Table: "dataset", Err: err}
		}
		return Dataset{}, err
	}
	return ds, nil
}

// Dashboard returns the landing page view for asOf.
func (s *Service) Dashboard(ctx context.Context, asOf time.Time) (Dashboard, error) {
	return cachedView(ctx, s, "dashboard", func(ds Dataset) (Dashboard, error) {
		return BuildDashboard(ds, asOf), nil
	}, FormatDate(asOf))
}

// Summary returns the reports page view for asOf.
func (s *Service) Summary(ctx context.Context, asOf time.Time) (Summary, error) {
	return cachedView(ctx, s, "summary", func(ds Dataset) (Summary, error) {
		return BuildSummary(ds, asOf), nil
	}, FormatDate(asOf))
}

// Projects returns every project with its totals.
func (s *Service) Projects(ctx context.Context) (ProjectsView, error) {
	return cachedView(ctx, s, "projects", func(ds Dataset) (ProjectsView, error) {
		return BuildProjects(ds), nil
	})
}

// PurchaseOrders returns every order, newest first.
func (s *Service) PurchaseOrders(ctx context.Context) (PurchaseOrdersView, error) {
	return cachedView(ctx, s, "purchase_orders", func(ds Dataset) (PurchaseOrdersView, error) {
		return BuildPurchaseOrders(ds), nil
	})
}

// PurchaseOrderDetail returns the view of one order for asOf.
func (s *Service) PurchaseOrderDetail(ctx context.Context, id uuid.UUID, asOf time.Time) (PurchaseOrderDetail, error) {
	return cachedView(ctx, s, "purchase_order_detail", func(ds Dataset) (PurchaseOrderDetail, error) {
		return BuildPurchaseOrderDetail(ds, id, asOf)
	}, id.String(), FormatDate(asOf))
}

// Payments returns every payment, newest first.
func (s *Service) Payments(ctx context.Context) (PaymentsView, error) {
	return cachedView(ctx, s, "payments", func(ds Dataset) (PaymentsView, error) {
		return BuildPayments(ds), nil
	})
}

// Overdue groups overdue tranches by currency. It always reads fresh data.
func (s *Service) Overdue(ctx context.Context, asOf time.Time) ([]OverdueBucket, error) {
	ds, err := s.LoadDataset(ctx)
	if err != nil {
		return nil, err
	}
	return BuildOverdue(ds, asOf), nil
}

// Warmup builds and caches the dashboard and summary for asOf.
func (s *Service) Warmup(ctx context.Context, asOf time.Time) error {
	if _, err := s.Dashboard(ctx, asOf); err != nil {
		return fmt.Errorf("warm dashboard: %w", err)
	}
	if _, err := s.Summary(ctx, asOf); err != nil {
		return fmt.Errorf("warm summary: %w", err)
	}
	return nil
}

// NotifyChange invalidates cached views after a write.
func (s *Service) NotifyChange(ctx context.Context, evt procurement.ChangeEvent) error {
	if err := s.cache.Bump(ctx); err != nil {
		return fmt.Errorf("bump report cache after %s %s: %w", evt.Entity, evt.Action, err)
	}
	return nil
}

// cachedView serves a view from the cache or builds it once per key.
// Cache failures degrade to a direct build; dataset failures are returned.
func cachedView[T any](ctx context.Context, s *Service, view string, build func(Dataset) (T, error), keyParts ...string) (T, error) {
	var zero T
	if len(keyParts) == 0 {
		keyParts = []string{"all"}
	}
	key, keyErr := s.cache.BuildKey(ctx, append([]string{view}, keyParts...)...)
	if keyErr != nil {
		key = view + ":" + fmt.Sprint(keyParts)
	}

	var loadErr error
	loader := func(ctx context.Context) (any, error) {
		start := time.Now()
		value, err, _ := s.buildOnce(ctx, key, func(ctx context.Context) (any, error) {
			ds, err := s.LoadDataset(ctx)
			if err != nil {
				return nil, err
			}
			return build(ds)
		})
		if err != nil {
			loadErr = err
			return nil, err
		}
		observeBuildDuration(view, time.Since(start))
		return value, nil
	}

	if !s.cache.Enabled() || keyErr != nil {
		if keyErr != nil {
			s.logger.Warn("report cache unavailable", slog.String("view", view), slog.Any("error", keyErr))
		}
		value, err := loader(ctx)
		if err != nil {
			return zero, err
		}
		return value.(T), nil
	}

	var out T
	hit, err := s.cache.FetchJSON(ctx, key, &out, loader)
	if err != nil {
		if loadErr != nil {
			return zero, loadErr
		}
		s.logger.Warn("report cache unavailable", slog.String("view", view), slog.Any("error", err))
		value, err := loader(ctx)
		if err != nil {
			return zero, err
		}
		return value.(T), nil
	}
	if hit {
		recordCacheHit(view)
	} else {
		recordCacheMiss(view)
	}
	return out, nil
}
