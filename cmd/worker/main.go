package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/trustdoc/custody/internal/bootstrap"
	"github.com/trustdoc/custody/internal/config"
	"github.com/trustdoc/custody/internal/core/domain"
	"github.com/trustdoc/custody/internal/observability/logging"
	"github.com/trustdoc/custody/internal/observability/metrics"
)

const service = "custody-worker"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	slog.SetDefault(logging.NewJSONLogger(service, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(service)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: metricsMux(workerMetrics),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeReconcile(ctx, func(handlerCtx context.Context, rec domain.ReconcileRecord) error {
		workerMetrics.StartReconcile()
		workerMetrics.ObserveReconcileLag(service, time.Since(rec.FailedAt))

		start := time.Now()
		reconcileCtx, cancel := context.WithTimeout(handlerCtx, time.Minute)
		defer cancel()

		reconcileErr := app.ReconcileUC.Reconcile(reconcileCtx, rec)
		workerMetrics.FinishReconcile(service, time.Since(start), reconcileErr)
		return reconcileErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

func metricsMux(workerMetrics *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}
