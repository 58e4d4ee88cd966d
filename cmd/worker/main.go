package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/termination-portal/internal/bootstrap"
	"github.com/kirillkom/termination-portal/internal/config"
	"github.com/kirillkom/termination-portal/internal/core/domain"
	"github.com/kirillkom/termination-portal/internal/core/ports"
	"github.com/kirillkom/termination-portal/internal/infrastructure/schedule"
	"github.com/kirillkom/termination-portal/internal/observability/logging"
	"github.com/kirillkom/termination-portal/internal/observability/metrics"
)

const service = "termination-worker"

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger(service, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	workerMetrics := metrics.NewWorkerMetrics(service, registry)

	app, err := bootstrap.New(ctx, cfg, "worker", logger, registry)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	reminders, err := schedule.NewReminderScheduler(cfg.ReminderSchedule, app.Reminders, schedule.Options{
		Logger: logger,
		Observer: func(report ports.ReminderReport, err error) {
			workerMetrics.RecordSweep(service, report.Sent, report.Failed, err)
		},
	})
	if err != nil {
		logger.Error("reminder_scheduler_init_failed", "error", err)
		os.Exit(1)
	}

	handleSignatureBound := func(handlerCtx context.Context, event ports.LifecycleEvent) error {
		start := time.Now()
		workerMetrics.StartEvent()
		if !event.OccurredAt.IsZero() {
			workerMetrics.ObserveEventLag(service, start.Sub(event.OccurredAt))
		}
		err := app.SignedRenditions.HandleSignatureBound(handlerCtx, event)
		workerMetrics.FinishEvent(service, string(event.Type), time.Since(start), err)
		return err
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return app.Bus.Subscribe(groupCtx, domain.CaseEventSignatureBound, handleSignatureBound)
	})
	group.Go(func() error {
		return reminders.Run(groupCtx)
	})
	group.Go(func() error {
		logger.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker_stopped_with_error", "error", err)
		os.Exit(1)
	}
	logger.Info("worker_stopped")
}
