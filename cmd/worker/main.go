package main

import (
	"context"
	"flag"
	"log"
	"media-bundler/internal/bootstrap"
	"media-bundler/internal/config"
	"media-bundler/internal/logging"
	"media-bundler/internal/metrics"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite database")
	flag.DurationVar(&cfg.PollInterval, "interval", cfg.PollInterval, "time between scheduler ticks")
	metricsAddr := flag.String("metrics-addr", "", "serve /metrics on this address when set")
	flag.Parse()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := bootstrap.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize repository", zap.Error(err))
	}
	defer store.Close()

	metricsInstance := metrics.NewMetrics(prometheus.DefaultRegisterer)

	if *metricsAddr != "" {
		srv := &http.Server{Addr: *metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 10 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
		defer srv.Close()
	}

	pipeline, err := bootstrap.NewPipeline(ctx, cfg, store, metricsInstance, logger)
	if err != nil {
		logger.Fatal("failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	if pipeline.Scheduler.Start(ctx) {
		logger.Info("worker started", zap.Duration("interval", cfg.PollInterval))
	} else {
		logger.Warn("worker idle until blob storage is configured")
	}

	<-ctx.Done()
	logger.Info("shutting down worker...")

	// waits for the in-flight job to reach a terminal write
	pipeline.Scheduler.Stop()
	logger.Info("worker stopped")
}
