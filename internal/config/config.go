package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Raster source kinds.
const (
	SourceNetCDF = "netcdf"
	SourceHTTP   = "http"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Raster backend.
	RasterSource     string
	RasterDataDir    string
	RasterAPIURL     string
	RasterAPIToken   string
	RasterAPITimeout time.Duration

	// Analysis engine.
	Concurrency     int
	NominalScale    float64
	CacheSize       int
	AnalysisTimeout time.Duration

	// Backend retry policy.
	MaxAttempts int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	// Result sinks.
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaResultsTopic string
	PostgresDSN       string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	apiTimeout, err := parseDuration("RASTER_API_TIMEOUT", "30s")
	if err != nil {
		return nil, err
	}
	baseBackoff, err := parseDuration("BACKEND_BASE_BACKOFF", "200ms")
	if err != nil {
		return nil, err
	}
	maxBackoff, err := parseDuration("BACKEND_MAX_BACKOFF", "5s")
	if err != nil {
		return nil, err
	}
	analysisTimeout, err := parseDuration("ANALYSIS_TIMEOUT", "5m")
	if err != nil {
		return nil, err
	}

	concurrency, err := parsePositiveInt("ANALYSIS_CONCURRENCY", 8)
	if err != nil {
		return nil, err
	}
	maxAttempts, err := parsePositiveInt("BACKEND_MAX_ATTEMPTS", 4)
	if err != nil {
		return nil, err
	}
	cacheSize, err := parsePositiveInt("RESULT_CACHE_SIZE", 128)
	if err != nil {
		return nil, err
	}

	nominalScale, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("ANALYSIS_NOMINAL_SCALE", "0"), 64)
	if err != nil || nominalScale < 0 {
		return nil, errors.New("invalid ANALYSIS_NOMINAL_SCALE")
	}

	cfg := &Config{
		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		RasterSource:     sharedcfg.EnvOrDefault("RASTER_SOURCE", SourceNetCDF),
		RasterDataDir:    sharedcfg.EnvOrDefault("RASTER_DATA_DIR", "./data"),
		RasterAPIURL:     os.Getenv("RASTER_API_URL"),
		RasterAPIToken:   os.Getenv("RASTER_API_TOKEN"),
		RasterAPITimeout: apiTimeout,

		Concurrency:     concurrency,
		NominalScale:    nominalScale,
		CacheSize:       cacheSize,
		AnalysisTimeout: analysisTimeout,

		MaxAttempts: maxAttempts,
		BaseBackoff: baseBackoff,
		MaxBackoff:  maxBackoff,

		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaResultsTopic: sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "climate-series-results"),
		PostgresDSN:       os.Getenv("POSTGRES_DSN"),
	}

	switch cfg.RasterSource {
	case SourceNetCDF:
		if cfg.RasterDataDir == "" {
			return nil, errors.New("RASTER_DATA_DIR is required when RASTER_SOURCE is netcdf")
		}
	case SourceHTTP:
		if cfg.RasterAPIURL == "" {
			return nil, errors.New("RASTER_API_URL is required when RASTER_SOURCE is http")
		}
	default:
		return nil, fmt.Errorf("invalid RASTER_SOURCE %q", cfg.RasterSource)
	}
	if cfg.MaxBackoff < cfg.BaseBackoff {
		return nil, errors.New("BACKEND_MAX_BACKOFF must not be below BACKEND_BASE_BACKOFF")
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required")
		}
		if cfg.KafkaResultsTopic == "" {
			return nil, errors.New("KAFKA_RESULTS_TOPIC is required")
		}
	}

	return cfg, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}
