package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/expediente-labs/legal-case-assistant/internal/bootstrap"
	"github.com/expediente-labs/legal-case-assistant/internal/config"
	"github.com/expediente-labs/legal-case-assistant/internal/core/domain"
	"github.com/expediente-labs/legal-case-assistant/internal/observability/logging"
	"github.com/expediente-labs/legal-case-assistant/internal/observability/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.NewJSONLogger("worker", "error").Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeReferenceObserved(ctx, func(handlerCtx context.Context, sessionID string, ref domain.CaseFileReference, observedAt time.Time) error {
		workerMetrics.StartEvent()
		start := time.Now()
		if !observedAt.IsZero() {
			workerMetrics.ObserveQueueLag("worker", start.Sub(observedAt))
		}

		writeCtx, cancel := context.WithTimeout(handlerCtx, 30*time.Second)
		defer cancel()
		writeErr := app.Sessions.RecordReference(writeCtx, sessionID, ref)

		workerMetrics.FinishEvent("worker", time.Since(start), writeErr)
		return writeErr
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}
