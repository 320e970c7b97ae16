package main

import (
	"context"
	"flag"
	"log"
	"media-bundler/internal/bootstrap"
	"media-bundler/internal/config"
	"media-bundler/internal/handler"
	"media-bundler/internal/logging"
	"media-bundler/internal/metrics"
	"media-bundler/internal/notify"
	"media-bundler/internal/service"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()

	flag.StringVar(&cfg.HTTPAddr, "addr", cfg.HTTPAddr, "HTTP listen address")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "path to SQLite database")
	runScheduler := flag.Bool("scheduler", false, "also run the processing loop in this process")
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
	rateLimiter := service.NewRateLimiter(cfg.SubmissionsPerMinute)
	jobService := service.NewJobService(store, rateLimiter, metricsInstance, logger, cfg.MaxRetries)

	// POST /tick stays available without -scheduler so an external cron can drive processing
	pipeline, err := bootstrap.NewPipeline(ctx, cfg, store, metricsInstance, logger)
	if err != nil {
		logger.Fatal("failed to initialize pipeline", zap.Error(err))
	}
	defer pipeline.Close()
	if *runScheduler && pipeline.Scheduler.Start(ctx) {
		defer pipeline.Scheduler.Stop()
	}

	var events handler.EventCache
	if cfg.RedisAddr != "" {
		client, err := notify.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn("event cache disabled", zap.Error(err))
		} else {
			defer client.Close()
			events = notify.NewRedisNotifier(client, cfg.RedisChannel)
		}
	}

	jobHandler := handler.NewJobHandler(jobService, pipeline.Scheduler, events, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.NewRouter(jobHandler, prometheus.DefaultGatherer, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("API server starting", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error shutting down server", zap.Error(err))
	}
	logger.Info("server stopped")
}
