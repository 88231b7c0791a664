// Command kbctl manages the knowledge base from the shell: it ingests documents,
// runs the knowledge source against a query and prints index statistics.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kirillkom/lessons-learned/internal/bootstrap"
	"github.com/kirillkom/lessons-learned/internal/config"
	"github.com/kirillkom/lessons-learned/internal/observability/logging"
)

var rootCmd = &cobra.Command{
	Use:           "kbctl",
	Short:         "Manage the lessons learned knowledge base",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level written to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "kbctl:", err)
		os.Exit(1)
	}
}

// openApp bootstraps the services with in-process dispatch so ingestion finishes
// before the command returns.
func openApp(cmd *cobra.Command) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	level, _ := cmd.Flags().GetString("log-level")
	slog.SetDefault(logging.NewJSONLoggerTo(os.Stderr, "kbctl", level))
	slog.Debug("kbctl_config_loaded", "storage_path", cfg.StoragePath, "text_index_path", cfg.TextIndexPath)

	return bootstrap.New(cmd.Context(), cfg, bootstrap.Options{DispatchMode: config.DispatchInProcess})
}
