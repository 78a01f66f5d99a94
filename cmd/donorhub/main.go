package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/donorhub/donorhub/internal/app"
	"github.com/donorhub/donorhub/internal/audit"
	"github.com/donorhub/donorhub/internal/observability"
	"github.com/donorhub/donorhub/jobs"
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

	backend, err := app.OpenBackend(ctx, cfg, logger)
	if err != nil {
		logger.Error("open store", slog.String("driver", cfg.StoreDriver), slog.Any("error", err))
		os.Exit(1)
	}
	defer backend.Close()

	metrics := observability.NewMetrics()
	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}

	var sink audit.Sink
	var jobHandler *jobs.Handler
	if cfg.AuditAsync {
		client := jobs.NewClient(redisOpts)
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("jobs client close", slog.Any("error", err))
			}
		}()
		sink = client.AuditSink()

		inspector := asynq.NewInspector(redisOpts)
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobHandler = jobs.NewHandler(inspector, logger)
	}

	core, err := app.NewCore(cfg, app.CoreOptions{
		Store:      backend.Store,
		AuditSink:  sink,
		Registerer: metrics.Registerer(),
		Logger:     logger,
	})
	if err != nil {
		logger.Error("wire services", slog.Any("error", err))
		os.Exit(1)
	}

	if len(os.Args) > 1 && os.Args[1] == "scan-overrides" {
		if err := scanOverrides(ctx, core, logger); err != nil {
			logger.Error("scan overrides", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	router := app.NewRouter(app.RouterParams{
		Logger:     logger,
		Config:     cfg,
		Core:       core,
		Metrics:    metrics,
		JobHandler: jobHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.String("store", cfg.StoreDriver),
			slog.Bool("audit_async", cfg.AuditAsync),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
	core.Audit.Wait()
}

// scanOverrides runs the redundant override report once and prints it.
func scanOverrides(ctx context.Context, core *app.Core, logger *slog.Logger) error {
	job := jobs.NewOverrideScanJob(core.Users, core.Config, logger, nil)
	report, err := job.Scan(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("users scanned: %d\n", report.UsersScanned)
	for _, f := range report.Findings {
		fmt.Printf("%s\t%s\t%s\t%t\n", f.UserID, f.Override.Kind, f.Override.Key, f.Override.Value)
	}
	return nil
}
