package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/donorhub/donorhub/internal/app"
	"github.com/donorhub/donorhub/internal/audit"
	jobmetrics "github.com/donorhub/donorhub/internal/jobs"
	"github.com/donorhub/donorhub/internal/observability"
	"github.com/donorhub/donorhub/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
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
	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("worker config", slog.Any("error", err))
		os.Exit(1)
	}

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	metrics := observability.NewMetrics()
	core, err := app.NewCore(cfg, app.CoreOptions{
		Store:      backend.Store,
		Registerer: metrics.Registerer(),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	appendJob := jobs.NewAuditAppendJob(audit.NewStoreSink(backend.Store), logger, jobMetrics)
	scanJob := jobs.NewOverrideScanJob(core.Users, core.Config, logger, jobMetrics)

	var cron []jobs.CronRegistration
	if cfg.OverrideScanCron != "" {
		cron = append(cron, jobs.CronRegistration{
			Spec:    cfg.OverrideScanCron,
			Task:    jobs.NewOverrideScanTask(),
			Options: []asynq.Option{asynq.MaxRetry(3)},
		})
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskAuditAppend, Handler: appendJob.Handle},
			{Type: jobs.TaskOverrideScan, Handler: scanJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
