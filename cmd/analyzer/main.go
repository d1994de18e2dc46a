package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/climate-series-service/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/climate-series-service/internal/adapter/kafka"
	"github.com/couchcryptid/climate-series-service/internal/adapter/netcdf"
	"github.com/couchcryptid/climate-series-service/internal/adapter/postgres"
	"github.com/couchcryptid/climate-series-service/internal/adapter/rasterapi"
	"github.com/couchcryptid/climate-series-service/internal/config"
	"github.com/couchcryptid/climate-series-service/internal/observability"
	"github.com/couchcryptid/climate-series-service/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var provider pipeline.RasterProvider
	switch cfg.RasterSource {
	case config.SourceHTTP:
		provider = rasterapi.NewClient(cfg.RasterAPIURL, cfg.RasterAPIToken, cfg.RasterAPITimeout, logger)
		logger.Info("raster source: http", "url", cfg.RasterAPIURL, "timeout", cfg.RasterAPITimeout)
	default:
		provider = netcdf.NewProvider(cfg.RasterDataDir)
		logger.Info("raster source: netcdf", "dir", cfg.RasterDataDir)
	}

	policy := pipeline.RetryPolicy{MaxAttempts: cfg.MaxAttempts, BaseBackoff: cfg.BaseBackoff, MaxBackoff: cfg.MaxBackoff}
	catalog := pipeline.NewCatalog(provider, policy, cfg.Concurrency, logger, metrics)

	// Result sinks are optional: Kafka via KAFKA_ENABLED, Postgres via POSTGRES_DSN.
	var loaders []pipeline.ResultLoader
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled {
		writer = kafkaadapter.NewWriter(cfg, logger)
		loaders = append(loaders, writer)
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaResultsTopic)
	}
	var store *postgres.Store
	if cfg.PostgresDSN != "" {
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			logger.Error("failed to open postgres", "error", err)
			os.Exit(1)
		}
		loaders = append(loaders, store)
		logger.Info("postgres sink enabled")
	}

	analyzer := pipeline.NewAnalyzer(catalog, logger, metrics, pipeline.Options{
		Cache:        pipeline.NewResultCache(cfg.CacheSize),
		Loaders:      loaders,
		NominalScale: cfg.NominalScale,
	})

	opts := httpadapter.Options{Regions: pipeline.NewRegionStore(), RunTimeout: cfg.AnalysisTimeout}
	if store != nil {
		opts.Results = store
	}
	srv := httpadapter.NewServer(cfg.HTTPAddr, analyzer, logger, opts)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Readiness flips once the backend answers; a failed warmup leaves /readyz
	// at 503 until the first successful run.
	go func() {
		if err := analyzer.Warmup(ctx); err != nil {
			logger.Warn("raster backend warmup failed", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("postgres close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}
