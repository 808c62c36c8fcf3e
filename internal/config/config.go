package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"

	"github.com/kirillkom/praxis-intake/internal/core/domain"
)

type Config struct {
	APIPort  string
	LogLevel string

	ClassifierURL            string
	ClassifierTimeoutSeconds int
	ClassifierBreakerEnabled bool

	DispatchMode             string
	MaxUploadBytes           int64
	AcceptedArchiveMimeTypes []string
	StoragePath              string

	SubmissionStore string
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	NATSURL     string
	NATSSubject string

	PostgresDSN string

	APIRateLimitRPS       float64
	APIRateLimitBurst     int
	APIMaxInFlight        int
	APIBackpressureWaitMS int

	WorkerMetricsPort string
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		ClassifierURL:            mustEnv("CLASSIFIER_URL", "http://localhost:8000"),
		ClassifierTimeoutSeconds: mustEnvInt("CLASSIFIER_TIMEOUT_SECONDS", 120),
		ClassifierBreakerEnabled: mustEnvBool("CLASSIFIER_BREAKER_ENABLED", false),

		DispatchMode:             mustEnv("DISPATCH_MODE", "classify"),
		MaxUploadBytes:           mustEnvInt64("MAX_UPLOAD_BYTES", 100*1024*1024),
		AcceptedArchiveMimeTypes: mustEnvList("ACCEPTED_ARCHIVE_MIME_TYPES", []string{"application/zip", "application/x-zip-compressed"}),
		StoragePath:              mustEnv("STORAGE_PATH", "./data/spool"),

		SubmissionStore: mustEnv("SUBMISSION_STORE", "memory"),
		RedisAddr:       mustEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   mustEnv("REDIS_PASSWORD", ""),
		RedisDB:         mustEnvInt("REDIS_DB", 0),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "praxis.submissions"),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		APIRateLimitRPS:       mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:     mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIMaxInFlight:        mustEnvInt("API_MAX_IN_FLIGHT", 64),
		APIBackpressureWaitMS: mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),
	}
}

// BatchLimits converts upload settings into batch limits, keeping defaults
// for anything left unset.
func (c Config) BatchLimits() domain.BatchLimits {
	limits := domain.DefaultBatchLimits()
	if c.MaxUploadBytes > 0 {
		limits.MaxFileBytes = c.MaxUploadBytes
	}
	if len(c.AcceptedArchiveMimeTypes) > 0 {
		limits.AcceptedMimeTypes = c.AcceptedArchiveMimeTypes
	}
	return limits
}

// LoadDotEnv reads KEY=VALUE pairs from the given files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			return err
		}
	}
	return nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
