package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/po-master/po-master/internal/app"
	"github.com/po-master/po-master/internal/observability"
	"github.com/po-master/po-master/internal/platform/cache"
	"github.com/po-master/po-master/internal/platform/db"
	"github.com/po-master/po-master/internal/platform/storage"
	"github.com/po-master/po-master/internal/procurement"
	"github.com/po-master/po-master/internal/reporting"
	"github.com/po-master/po-master/internal/shared"
	"github.com/po-master/po-master/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var redisClient *redis.Client
	if client, err := cache.New(ctx, cfg.Redis()); err != nil {
		logger.Warn("redis unavailable, report cache disabled", slog.Any("error", err))
	} else {
		redisClient = client
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}()
	}

	metrics := observability.NewMetrics()
	if err := reporting.SetupCacheMetrics(metrics.Registerer()); err != nil {
		logger.Warn("register report cache metrics", slog.Any("error", err))
	}

	repo := procurement.NewRepository(pool)
	reportCache := reporting.NewCache(redisClient, cfg.ReportCacheTTL)
	reportService := reporting.NewService(repo, reportCache, logger, cfg.Location())
	if err := reportCache.ListenForInvalidation(ctx, func(version int64) {
		logger.Debug("report cache bumped", slog.Int64("version", version))
	}); err != nil {
		logger.Warn("subscribe report invalidations", slog.Any("error", err))
	}

	var invoiceStorage procurement.InvoiceStorage
	if storageCfg := cfg.Storage(); storageCfg.Enabled() {
		store, err := storage.New(storageCfg)
		if err != nil {
			logger.Error("init object storage", slog.Any("error", err))
			os.Exit(1)
		}
		if err := store.EnsureBucket(ctx); err != nil {
			logger.Warn("ensure invoice bucket", slog.Any("error", err))
		}
		invoiceStorage = store
	}

	notifiers := procurement.Notifiers{reportService}
	var jobHandler *jobs.Handler
	if redisClient != nil {
		jobClient := jobs.NewClient(cfg.Redis().AsynqOpt())
		defer func() {
			if err := jobClient.Close(); err != nil {
				logger.Warn("job client close", slog.Any("error", err))
			}
		}()
		notifiers = append(notifiers, jobs.NewWarmupNotifier(jobClient, reportService.Today))

		inspector := asynq.NewInspector(cfg.Redis().AsynqOpt())
		defer func() { _ = inspector.Close() }()
		jobHandler = jobs.NewHandler(inspector, logger)
	} else {
		jobHandler = jobs.NewHandler(nil, logger)
	}

	procurementService := procurement.NewService(repo, procurement.ServiceOptions{
		Policy:      cfg.Policy(),
		Audit:       shared.NewAuditLogger(pool),
		Idempotency: shared.NewIdempotencyStore(pool),
		Storage:     invoiceStorage,
		Notifier:    notifiers,
		Logger:      logger,
	})

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		ProcurementHandler: procurement.NewHandler(logger, procurementService),
		ReportingHandler:   reporting.NewHandler(logger, reportService),
		JobHandler:         jobHandler,
		Metrics:            metrics,
		Ready:              pool.Ping,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("http server listening",
			slog.String("addr", cfg.AppAddr),
			slog.String("settlement_policy", string(cfg.Policy())),
			slog.String("report_timezone", cfg.Location().String()),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
