package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"media-bundler/internal/models"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config controls fan-out and per-item retry behaviour
type Config struct {
	Concurrency int
	Timeout     time.Duration
	Retries     int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// DefaultConfig returns the production defaults
func DefaultConfig() Config {
	return Config{
		Concurrency: 5,
		Timeout:     30 * time.Second,
		Retries:     2,
		BackoffBase: time.Second,
		BackoffMax:  10 * time.Second,
	}
}

// File is a successfully downloaded media item
type File struct {
	Item *models.MediaItem
	Data []byte
}

// Skip records an item that was dropped and why
type Skip struct {
	Item *models.MediaItem
	Err  error
}

// Result holds the outcome of a fan-out. Files keep the input order.
type Result struct {
	Files   []File
	Skipped []Skip
}

// TransientFetchError is a failure worth retrying: a 5xx, a network error or a timeout
type TransientFetchError struct {
	StatusCode int
	Err        error
}

func (e *TransientFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("transient fetch error: %v", e.Err)
}

func (e *TransientFetchError) Unwrap() error { return e.Err }

// StatusError is a non-retryable HTTP response
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.StatusCode)
}

var errNoURL = errors.New("media item has neither a CDN URL nor a resolvable key")

// Downloader fetches media items with bounded concurrency
type Downloader struct {
	client  *http.Client
	cfg     Config
	baseURL string
	logger  *zap.Logger
}

// New creates a downloader. baseURL resolves items that carry only a storage key.
func New(client *http.Client, cfg Config, baseURL string, logger *zap.Logger) *Downloader {
	if client == nil {
		client = &http.Client{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	return &Downloader{
		client:  client,
		cfg:     cfg,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// URL returns the address an item is fetched from
func (d *Downloader) URL(item *models.MediaItem) (string, error) {
	if item.CDNURL != "" {
		return item.CDNURL, nil
	}
	if d.baseURL == "" || item.Key == "" {
		return "", errNoURL
	}
	return d.baseURL + "/" + strings.TrimLeft(item.Key, "/"), nil
}

// DownloadAll fetches every item. Individual failures never fail the call; they
// are reported in Result.Skipped.
func (d *Downloader) DownloadAll(ctx context.Context, items []*models.MediaItem) *Result {
	type outcome struct {
		data []byte
		err  error
	}

	outcomes := make([]outcome, len(items))
	work := make(chan int, len(items))
	for i := range items {
		work <- i
	}
	close(work)

	workers := d.cfg.Concurrency
	if workers > len(items) {
		workers = len(items)
	}

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range work {
				data, err := d.fetchWithRetry(ctx, items[i])
				outcomes[i] = outcome{data: data, err: err}
			}
		}()
	}
	wg.Wait()

	res := &Result{}
	for i, o := range outcomes {
		if o.err != nil {
			d.logger.Warn("skipping media item",
				zap.String("key", items[i].Key),
				zap.Error(o.err),
			)
			res.Skipped = append(res.Skipped, Skip{Item: items[i], Err: o.err})
			continue
		}
		res.Files = append(res.Files, File{Item: items[i], Data: o.data})
	}
	return res
}

func (d *Downloader) fetchWithRetry(ctx context.Context, item *models.MediaItem) ([]byte, error) {
	url, err := d.URL(item)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= d.cfg.Retries; attempt++ {
		if attempt > 0 {
			delay := Backoff(d.cfg.BackoffBase, d.cfg.BackoffMax, attempt)
			d.logger.Debug("retrying media download",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
			)
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}

		data, err := d.fetch(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var transient *TransientFetchError
		if !errors.As(err, &transient) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("giving up after %d attempts: %w", d.cfg.Retries+1, lastErr)
}

func (d *Downloader) fetch(ctx context.Context, url string) ([]byte, error) {
	reqCtx := ctx
	if d.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientFetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		io.Copy(io.Discard, resp.Body)
		return nil, &TransientFetchError{StatusCode: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &TransientFetchError{Err: err}
	}
	return data, nil
}

// Backoff returns base doubled for every attempt after the first, capped at max
func Backoff(base, max time.Duration, attempt int) time.Duration {
	if base <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if max > 0 && d >= max {
			return max
		}
	}
	if max > 0 && d > max {
		return max
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
