// Package cli implements the artifactctl admin commands.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"media-bundler/internal/config"
	"media-bundler/internal/metrics"
	"media-bundler/internal/repository"
	"media-bundler/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App is what every command operates on
type App struct {
	Config  *config.Config
	Store   repository.Store
	Jobs    *service.JobService
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// NewApp wires the job service over an opened store
func NewApp(cfg *config.Config, store repository.Store, logger *zap.Logger) *App {
	m := metrics.NewMetrics(nil)
	return &App{
		Config:  cfg,
		Store:   store,
		Jobs:    service.NewJobService(store, service.NewRateLimiter(0), m, logger, cfg.MaxRetries),
		Metrics: m,
		Logger:  logger,
	}
}

// NewRootCmd builds the artifactctl command tree
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "artifactctl",
		Short:         "Inspect and drive media artifact jobs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(EnqueueCmd(app))
	rootCmd.AddCommand(StatusCmd(app))
	rootCmd.AddCommand(ListCmd(app))
	rootCmd.AddCommand(RetryCmd(app))
	rootCmd.AddCommand(StatsCmd(app))
	rootCmd.AddCommand(TickCmd(app))
	rootCmd.AddCommand(CatalogCmd(app))
	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
