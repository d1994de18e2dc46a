package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const defaultBroker = "localhost:9092"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, SourceNetCDF, cfg.RasterSource)
	assert.Equal(t, "./data", cfg.RasterDataDir)
	assert.Equal(t, 30*time.Second, cfg.RasterAPITimeout)
	assert.Equal(t, 8, cfg.Concurrency)
	assert.Zero(t, cfg.NominalScale)
	assert.Equal(t, 128, cfg.CacheSize)
	assert.Equal(t, 5*time.Minute, cfg.AnalysisTimeout)
	assert.Equal(t, 4, cfg.MaxAttempts)
	assert.Equal(t, 200*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 5*time.Second, cfg.MaxBackoff)
	assert.False(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{defaultBroker}, cfg.KafkaBrokers)
	assert.Equal(t, "climate-series-results", cfg.KafkaResultsTopic)
	assert.Empty(t, cfg.PostgresDSN)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("RASTER_SOURCE", "http")
	t.Setenv("RASTER_API_URL", "https://rasters.example.com")
	t.Setenv("RASTER_API_TOKEN", "secret")
	t.Setenv("RASTER_API_TIMEOUT", "1m")
	t.Setenv("ANALYSIS_CONCURRENCY", "3")
	t.Setenv("ANALYSIS_NOMINAL_SCALE", "250")
	t.Setenv("RESULT_CACHE_SIZE", "16")
	t.Setenv("BACKEND_MAX_ATTEMPTS", "6")
	t.Setenv("BACKEND_BASE_BACKOFF", "100ms")
	t.Setenv("BACKEND_MAX_BACKOFF", "2s")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_RESULTS_TOPIC", "series")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/series?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, SourceHTTP, cfg.RasterSource)
	assert.Equal(t, "https://rasters.example.com", cfg.RasterAPIURL)
	assert.Equal(t, "secret", cfg.RasterAPIToken)
	assert.Equal(t, time.Minute, cfg.RasterAPITimeout)
	assert.Equal(t, 3, cfg.Concurrency)
	assert.Equal(t, 250.0, cfg.NominalScale)
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Equal(t, 6, cfg.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.BaseBackoff)
	assert.Equal(t, 2*time.Second, cfg.MaxBackoff)
	assert.True(t, cfg.KafkaEnabled)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "series", cfg.KafkaResultsTopic)
	assert.Equal(t, "postgres://localhost/series?sslmode=disable", cfg.PostgresDSN)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
		want  string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration", "SHUTDOWN_TIMEOUT"},
		{"SHUTDOWN_TIMEOUT", "-1s", "SHUTDOWN_TIMEOUT"},
		{"RASTER_API_TIMEOUT", "bad", "RASTER_API_TIMEOUT"},
		{"BACKEND_BASE_BACKOFF", "0s", "BACKEND_BASE_BACKOFF"},
		{"BACKEND_MAX_BACKOFF", "10ms", "BACKEND_MAX_BACKOFF"},
		{"ANALYSIS_CONCURRENCY", "0", "ANALYSIS_CONCURRENCY"},
		{"ANALYSIS_CONCURRENCY", "many", "ANALYSIS_CONCURRENCY"},
		{"BACKEND_MAX_ATTEMPTS", "-2", "BACKEND_MAX_ATTEMPTS"},
		{"RESULT_CACHE_SIZE", "0", "RESULT_CACHE_SIZE"},
		{"ANALYSIS_NOMINAL_SCALE", "-5", "ANALYSIS_NOMINAL_SCALE"},
		{"RASTER_SOURCE", "s3", "RASTER_SOURCE"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_HTTPSourceRequiresURL(t *testing.T) {
	t.Setenv("RASTER_SOURCE", "http")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RASTER_API_URL")
}
