// Package bootstrap wires the stores, notifiers and processing pipeline shared
// by the api, worker and artifactctl binaries.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"media-bundler/internal/archiver"
	"media-bundler/internal/blobstore"
	"media-bundler/internal/config"
	"media-bundler/internal/downloader"
	"media-bundler/internal/metrics"
	"media-bundler/internal/notify"
	"media-bundler/internal/repository"
	"media-bundler/internal/service"
	"media-bundler/internal/uploader"
	"net/http"

	"go.uber.org/zap"
)

// OpenStore opens the Postgres store when DB_DRIVER=postgres, otherwise SQLite
func OpenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (repository.Store, error) {
	if cfg.UsePostgres() {
		logger.Info("using postgres job store")
		repo, err := repository.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}

	logger.Info("using sqlite job store", zap.String("path", cfg.DBPath))
	repo, err := repository.NewSQLiteRepository(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Pipeline is a ready-to-start scheduler plus the connections it owns
type Pipeline struct {
	Scheduler *service.Scheduler
	closers   []func() error
}

// Close releases the notifier connections
func (p *Pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewPipeline builds the reaper, claimer, processor and scheduler on top of store.
// Without S3 settings the scheduler is built disabled: Start and Tick are no-ops.
// Redis and Kafka notifiers are added only when their addresses are set; a
// notifier that fails to connect is logged and skipped.
func NewPipeline(ctx context.Context, cfg *config.Config, store repository.Store, m *metrics.Metrics, logger *zap.Logger) (*Pipeline, error) {
	var blobs blobstore.BlobStore = blobstore.Unconfigured{}
	if cfg.StorageConfigured() {
		minioStore, err := blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
			Endpoint:      cfg.S3Endpoint,
			Bucket:        cfg.S3Bucket,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			UseSSL:        cfg.S3UseSSL,
			PublicBaseURL: cfg.S3PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize blob store: %w", err)
		}
		blobs = minioStore
	}

	p := &Pipeline{}
	notifier := notify.Multi{notify.NewLogNotifier(logger)}

	if cfg.RedisAddr != "" {
		client, err := notify.ConnectRedis(cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis notifier disabled", zap.Error(err))
		} else {
			notifier = append(notifier, notify.NewRedisNotifier(client, cfg.RedisChannel))
			p.closers = append(p.closers, client.Close)
		}
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := notify.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.Warn("kafka notifier disabled", zap.Error(err))
		} else {
			kn := notify.NewKafkaNotifier(producer, cfg.KafkaTopic)
			notifier = append(notifier, kn)
			p.closers = append(p.closers, kn.Close)
		}
	}

	fetcher := downloader.New(&http.Client{}, downloader.Config{
		Concurrency: cfg.DownloadConcurrency,
		Timeout:     cfg.DownloadTimeout,
		Retries:     cfg.DownloadRetries,
		BackoffBase: cfg.DownloadBackoffBase,
		BackoffMax:  cfg.DownloadBackoffMax,
	}, cfg.MediaBaseURL, logger)

	processor := service.NewProcessor(
		store,
		store,
		service.Guardrails{MaxFiles: cfg.MaxFiles, MaxTotalBytes: cfg.MaxTotalBytes},
		fetcher,
		archiver.New(cfg.ScratchDir),
		uploader.New(blobs, logger),
		notifier,
		m,
		logger,
		service.ProcessorConfig{BackoffBase: cfg.JobBackoffBase, BackoffMax: cfg.JobBackoffMax},
	)

	p.Scheduler = service.NewScheduler(
		service.NewReaper(store, cfg.ProcessingTimeout, cfg.ReapBatchSize, m, logger),
		service.NewClaimer(store, m, logger),
		processor,
		cfg.PollInterval,
		cfg.StorageConfigured(),
		m,
		logger,
	)
	return p, nil
}
