package upload

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/docker/go-units"
)

// Defaults for the upload pipeline tuning constants.
const (
	DefaultMultipartThresholdBytes = 50 * 1024 * 1024
	DefaultChunkSizeBytes          = 10 * 1024 * 1024
	DefaultChunkConcurrency        = 3
	DefaultFileConcurrency         = 3
	DefaultURLBatchSize            = 10
	DefaultProgressInterval        = 200 * time.Millisecond
)

// Config holds the tuning constants of the upload pipeline.
type Config struct {
	// MultipartThresholdBytes is the size at and above which files use the
	// multipart strategy.
	MultipartThresholdBytes int64

	// ChunkSizeBytes is the fixed multipart part size. Larger chunks reduce
	// per-part overhead but increase wasted retransmission on part failure.
	ChunkSizeBytes int64

	// ChunkConcurrency is the number of part uploads kept in flight per file.
	ChunkConcurrency int

	// FileConcurrency is the number of files uploaded concurrently in a batch.
	FileConcurrency int

	// URLBatchSize is how many presigned part URLs are fetched per refill.
	URLBatchSize int

	// ProgressInterval rate-limits progress callbacks. A final callback is
	// always delivered regardless of the interval.
	ProgressInterval time.Duration

	// MaxChunkRetries is the number of attempts per chunk before the whole
	// session is aborted. The default of 1 preserves the historical
	// abort-on-first-failure behavior; raising it is an opt-in extension.
	MaxChunkRetries int

	// ChunkTimeout bounds a single chunk or whole-file PUT.
	// Zero relies on the transport's own connection timeouts.
	ChunkTimeout time.Duration

	// HTTPClient is used for the presigned PUTs themselves.
	// If nil, a client tuned for parallel uploads is created.
	HTTPClient *http.Client
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		MultipartThresholdBytes: DefaultMultipartThresholdBytes,
		ChunkSizeBytes:          DefaultChunkSizeBytes,
		ChunkConcurrency:        DefaultChunkConcurrency,
		FileConcurrency:         DefaultFileConcurrency,
		URLBatchSize:            DefaultURLBatchSize,
		ProgressInterval:        DefaultProgressInterval,
		MaxChunkRetries:         1,
	}
}

// DefaultHTTPClient creates an HTTP client tuned for parallel chunk uploads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{
		// No overall timeout: per-chunk deadlines come from Config.ChunkTimeout
		Timeout: 0,
		Transport: &http.Transport{
			MaxIdleConns:        50,
			MaxConnsPerHost:     20,
			IdleConnTimeout:     10 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
			Proxy:               http.ProxyFromEnvironment,
		},
	}
}

// normalized fills zero values with defaults so a partially populated Config
// is usable.
func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.MultipartThresholdBytes <= 0 {
		c.MultipartThresholdBytes = defaults.MultipartThresholdBytes
	}
	if c.ChunkSizeBytes <= 0 {
		c.ChunkSizeBytes = defaults.ChunkSizeBytes
	}
	if c.ChunkConcurrency <= 0 {
		c.ChunkConcurrency = defaults.ChunkConcurrency
	}
	if c.FileConcurrency <= 0 {
		c.FileConcurrency = defaults.FileConcurrency
	}
	if c.URLBatchSize <= 0 {
		c.URLBatchSize = defaults.URLBatchSize
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaults.ProgressInterval
	}
	if c.MaxChunkRetries <= 0 {
		c.MaxChunkRetries = 1
	}
	if c.HTTPClient == nil {
		c.HTTPClient = DefaultHTTPClient()
	}
	return c
}

// Environment variables read by ConfigFromEnv. Sizes accept human-readable
// values like "50MB" or "10485760".
const (
	EnvMultipartThreshold = "GAMEVAULT_MULTIPART_THRESHOLD"
	EnvChunkSize          = "GAMEVAULT_CHUNK_SIZE"
	EnvChunkConcurrency   = "GAMEVAULT_CHUNK_CONCURRENCY"
	EnvFileConcurrency    = "GAMEVAULT_FILE_CONCURRENCY"
	EnvURLBatchSize       = "GAMEVAULT_URL_BATCH_SIZE"
	EnvProgressIntervalMS = "GAMEVAULT_PROGRESS_INTERVAL_MS"
	EnvChunkTimeoutS      = "GAMEVAULT_CHUNK_TIMEOUT_S"
	EnvMaxChunkRetries    = "GAMEVAULT_MAX_CHUNK_RETRIES"
)

// ConfigFromEnv builds a Config from environment variables, falling back to
// defaults for anything unset. Unparsable values are logged and skipped.
func ConfigFromEnv(envRepo env.Repository, logger log.Logger) Config {
	config := DefaultConfig()

	if value := envRepo.Get(EnvMultipartThreshold); value != "" {
		if size, err := units.RAMInBytes(value); err == nil {
			config.MultipartThresholdBytes = size
		} else {
			logger.Warnf("invalid %s value %q: %s", EnvMultipartThreshold, value, err)
		}
	}
	if value := envRepo.Get(EnvChunkSize); value != "" {
		if size, err := units.RAMInBytes(value); err == nil {
			config.ChunkSizeBytes = size
		} else {
			logger.Warnf("invalid %s value %q: %s", EnvChunkSize, value, err)
		}
	}
	config.ChunkConcurrency = intFromEnv(envRepo, logger, EnvChunkConcurrency, config.ChunkConcurrency)
	config.FileConcurrency = intFromEnv(envRepo, logger, EnvFileConcurrency, config.FileConcurrency)
	config.URLBatchSize = intFromEnv(envRepo, logger, EnvURLBatchSize, config.URLBatchSize)
	config.MaxChunkRetries = intFromEnv(envRepo, logger, EnvMaxChunkRetries, config.MaxChunkRetries)

	if ms := intFromEnv(envRepo, logger, EnvProgressIntervalMS, 0); ms > 0 {
		config.ProgressInterval = time.Duration(ms) * time.Millisecond
	}
	if s := intFromEnv(envRepo, logger, EnvChunkTimeoutS, 0); s > 0 {
		config.ChunkTimeout = time.Duration(s) * time.Second
	}

	return config
}

func intFromEnv(envRepo env.Repository, logger log.Logger, key string, fallback int) int {
	value := envRepo.Get(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		logger.Warnf("invalid %s value %q, using %d", key, value, fallback)
		return fallback
	}
	return parsed
}
