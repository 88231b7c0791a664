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

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/lessons-learned/internal/bootstrap"
	"github.com/kirillkom/lessons-learned/internal/config"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/queue/nats"
	"github.com/kirillkom/lessons-learned/internal/observability/logging"
	"github.com/kirillkom/lessons-learned/internal/observability/metrics"
)

const (
	serviceName      = "worker"
	knowledgeTimeout = 5 * time.Minute
)

func main() {
	if err := run(); err != nil {
		slog.Error("worker_exit", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{
		Registerer:   workerMetrics.Registry(),
		DispatchMode: config.DispatchNATS,
		Worker:       true,
	})
	if err != nil {
		return err
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metricsMux(workerMetrics),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		slog.Info("worker_metrics_listening", "addr", metricsServer.Addr)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	searchHandler := instrument(workerMetrics, metrics.TaskSearch, cfg.SearchTaskTimeout, app.Searches.Process)
	knowledgeHandler := instrument(workerMetrics, metrics.TaskKnowledge, knowledgeTimeout, app.Process.ProcessByID)

	// Each subscription blocks until ctx is cancelled.
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := app.Queue.SubscribeSearchRequested(groupCtx, searchHandler); err != nil {
			return fmt.Errorf("subscribe search: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		if err := app.Queue.SubscribeKnowledgeIngested(groupCtx, knowledgeHandler); err != nil {
			return fmt.Errorf("subscribe knowledge: %w", err)
		}
		return nil
	})
	slog.Info("worker_subscribed", "search_subject", cfg.NATSSearchSubject, "knowledge_subject", cfg.NATSKnowledgeSubject)

	if err := group.Wait(); err != nil {
		return err
	}
	slog.Info("worker_stopped")
	return nil
}

func metricsMux(workerMetrics *metrics.WorkerMetrics) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", workerMetrics.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return mux
}

// instrument bounds one queued task by timeout and records its lag and outcome.
func instrument(
	workerMetrics *metrics.WorkerMetrics,
	kind string,
	timeout time.Duration,
	process func(context.Context, string) error,
) func(context.Context, string) error {
	return func(ctx context.Context, id string) error {
		started := time.Now()
		if publishedAt, ok := nats.PublishedAt(ctx); ok {
			workerMetrics.ObserveQueueLag(serviceName, kind, started.Sub(publishedAt))
		}

		workerMetrics.StartTask(kind)
		taskCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		err := process(taskCtx, id)
		workerMetrics.FinishTask(serviceName, kind, time.Since(started), err)
		if err != nil {
			slog.Error("worker_task_failed", "kind", kind, "id", id, "error", err)
		}
		return err
	}
}
