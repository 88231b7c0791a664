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

	httpadapter "github.com/kirillkom/lessons-learned/internal/adapters/http"
	"github.com/kirillkom/lessons-learned/internal/bootstrap"
	"github.com/kirillkom/lessons-learned/internal/config"
	"github.com/kirillkom/lessons-learned/internal/infrastructure/export/xlsx"
	"github.com/kirillkom/lessons-learned/internal/observability/logging"
	"github.com/kirillkom/lessons-learned/internal/observability/metrics"
)

const serviceName = "api"

func main() {
	if err := run(); err != nil {
		slog.Error("api_exit", "error", err)
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

	httpMetrics := metrics.NewHTTPServerMetrics(serviceName)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{Registerer: httpMetrics.Registry()})
	if err != nil {
		return err
	}
	defer app.Close()

	handler, err := httpadapter.NewRouter(cfg, app.Searches, app.Ingest, xlsx.Exporter{}, httpMetrics).Handler()
	if err != nil {
		return err
	}
	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("api_listening", "addr", server.Addr, "dispatch_mode", cfg.DispatchMode)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Warn("api_shutdown_error", "error", err)
	}
	// Searches still running in process get the rest of the shutdown window to finalize.
	if app.Tasks != nil {
		if err := app.Tasks.Shutdown(shutdownCtx); err != nil {
			slog.Warn("task_shutdown_error", "error", err)
		}
	}
	slog.Info("api_stopped")
	return nil
}
