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

	"github.com/panjf2000/ants/v2"

	"github.com/kirillkom/agentic-rag/internal/bootstrap"
	"github.com/kirillkom/agentic-rag/internal/config"
	"github.com/kirillkom/agentic-rag/internal/observability/logging"
	"github.com/kirillkom/agentic-rag/internal/observability/metrics"
)

const (
	serviceName    = "worker"
	processTimeout = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config_load_failed", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Service:    serviceName,
		Ingestion:  true,
		Registerer: workerMetrics.Registry(),
	})
	if err != nil {
		slog.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           workerMetrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	// Submit blocks while every worker is busy, which holds back the NATS callback.
	pool, err := ants.NewPool(cfg.WorkerConcurrency)
	if err != nil {
		slog.Error("worker_pool_init_failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := pool.ReleaseTimeout(processTimeout); err != nil {
			slog.Warn("worker_pool_release_timeout", "error", err)
		}
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject, "concurrency", cfg.WorkerConcurrency)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		// In-flight documents finish on shutdown instead of being marked failed.
		processCtx := context.WithoutCancel(handlerCtx)
		return pool.Submit(func() {
			processDocument(processCtx, app, workerMetrics, documentID)
		})
	})
	if err != nil {
		slog.Error("worker_subscribe_failed", "error", err)
		os.Exit(1)
	}
}

func processDocument(ctx context.Context, app *bootstrap.App, workerMetrics *metrics.WorkerMetrics, documentID string) {
	processCtx, cancel := context.WithTimeout(ctx, processTimeout)
	defer cancel()

	if doc, err := app.Repo.GetByID(processCtx, documentID); err == nil {
		workerMetrics.ObserveQueueLag(serviceName, time.Since(doc.CreatedAt))
	}

	start := time.Now()
	workerMetrics.StartDocument()
	err := app.ProcessUC.ProcessByID(processCtx, documentID)
	workerMetrics.FinishDocument(serviceName, time.Since(start), err)
	if err != nil {
		slog.ErrorContext(processCtx, "document_process_failed", "document_id", documentID, "error", err)
		return
	}

	doc, err := app.Repo.GetByID(processCtx, documentID)
	if err != nil {
		slog.WarnContext(processCtx, "document_reload_failed", "document_id", documentID, "error", err)
		return
	}
	workerMetrics.AddIndexedChunks(serviceName, doc.ChunkCount)
	slog.InfoContext(processCtx, "document_processed",
		"document_id", documentID,
		"chunks", doc.ChunkCount,
		"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
	)
}
