package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings shared by the api, worker and cli binaries
type Config struct {
	Env      string
	LogLevel string
	HTTPAddr string

	DBDriver    string
	DBPath      string
	DatabaseURL string

	S3Endpoint      string
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3UseSSL        bool
	S3PublicBaseURL string

	RedisAddr    string
	RedisChannel string
	KafkaBrokers []string
	KafkaTopic   string

	MediaBaseURL string

	ScratchDir        string
	PollInterval      time.Duration
	ProcessingTimeout time.Duration
	ReapBatchSize     int
	MaxRetries        int
	JobBackoffBase    time.Duration
	JobBackoffMax     time.Duration

	MaxFiles      int
	MaxTotalBytes int64

	DownloadConcurrency int
	DownloadTimeout     time.Duration
	DownloadRetries     int
	DownloadBackoffBase time.Duration
	DownloadBackoffMax  time.Duration

	SubmissionsPerMinute int
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		Env:      getEnv("APP_ENV", "production"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8080"),

		DBDriver:    getEnv("DB_DRIVER", "sqlite"),
		DBPath:      getEnv("DB_PATH", "./artifacts.db"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		S3Endpoint:      getEnv("S3_ENDPOINT", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3AccessKey:     getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("S3_SECRET_KEY", ""),
		S3UseSSL:        getEnvAsBool("S3_USE_SSL", true),
		S3PublicBaseURL: getEnv("S3_PUBLIC_BASE_URL", ""),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "artifact:events"),
		KafkaBrokers: getEnvAsList("KAFKA_BROKERS"),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "artifact_events"),

		MediaBaseURL: getEnv("MEDIA_BASE_URL", ""),

		ScratchDir:        getEnv("SCRATCH_DIR", os.TempDir()),
		PollInterval:      getEnvAsDuration("POLL_INTERVAL", 30*time.Second),
		ProcessingTimeout: getEnvAsDuration("PROCESSING_TIMEOUT", 15*time.Minute),
		ReapBatchSize:     getEnvAsInt("REAP_BATCH_SIZE", 10),
		MaxRetries:        getEnvAsInt("MAX_RETRIES", 3),
		JobBackoffBase:    getEnvAsDuration("JOB_BACKOFF_BASE", 30*time.Second),
		JobBackoffMax:     getEnvAsDuration("JOB_BACKOFF_MAX", 10*time.Minute),

		MaxFiles:      getEnvAsInt("MAX_FILES", 500),
		MaxTotalBytes: getEnvAsInt64("MAX_TOTAL_BYTES", 2<<30),

		DownloadConcurrency: getEnvAsInt("DOWNLOAD_CONCURRENCY", 5),
		DownloadTimeout:     getEnvAsDuration("DOWNLOAD_TIMEOUT", 30*time.Second),
		DownloadRetries:     getEnvAsInt("DOWNLOAD_RETRIES", 2),
		DownloadBackoffBase: getEnvAsDuration("DOWNLOAD_BACKOFF_BASE", time.Second),
		DownloadBackoffMax:  getEnvAsDuration("DOWNLOAD_BACKOFF_MAX", 10*time.Second),

		SubmissionsPerMinute: getEnvAsInt("SUBMISSIONS_PER_MINUTE", 10),
	}
}

// StorageConfigured reports whether enough blob storage settings are present to upload artifacts
func (c *Config) StorageConfigured() bool {
	return c.S3Endpoint != "" && c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

// UsePostgres reports whether the Postgres job store is selected
func (c *Config) UsePostgres() bool {
	return strings.EqualFold(c.DBDriver, "postgres") && c.DatabaseURL != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
