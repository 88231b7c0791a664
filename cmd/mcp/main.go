// Command mcp serves the solution search tools over the MCP stdio transport.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpadapter "github.com/kirillkom/lessons-learned/internal/adapters/mcp"
	"github.com/kirillkom/lessons-learned/internal/bootstrap"
	"github.com/kirillkom/lessons-learned/internal/config"
	"github.com/kirillkom/lessons-learned/internal/observability/logging"
)

const serviceName = "mcp"

func main() {
	if err := run(); err != nil {
		slog.Error("mcp_exit", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	// Stdout carries protocol frames.
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := mcpadapter.NewServer(app.Searches, app.Ingest)
	if err != nil {
		return err
	}
	slog.Info("mcp_serving_stdio", "dispatch_mode", cfg.DispatchMode)
	if err := server.ServeStdio(); err != nil {
		return err
	}

	if app.Tasks != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := app.Tasks.Shutdown(shutdownCtx); err != nil {
			slog.Warn("task_shutdown_error", "error", err)
		}
	}
	return nil
}
