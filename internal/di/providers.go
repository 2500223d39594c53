package di

import (
	"context"
	"fmt"
	"time"

	"CandleGrid/internal/domain/models"
	domrepo "CandleGrid/internal/domain/repository"
	"CandleGrid/internal/handler/api"
	internalrepo "CandleGrid/internal/repository"
	"CandleGrid/internal/service/binance"
	icache "CandleGrid/internal/service/cache"
	"CandleGrid/internal/service/ratelimit"
	"CandleGrid/internal/services/align"
	"CandleGrid/internal/usecase"
	pkgcache "CandleGrid/pkg/cache"
	pkgch "CandleGrid/pkg/clickhouse"
	"CandleGrid/pkg/config"
	xhttp "CandleGrid/pkg/http"
	pkgkafka "CandleGrid/pkg/kafka"
	applogger "CandleGrid/pkg/logger"
	"CandleGrid/pkg/metrics"
	"CandleGrid/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	return applogger.New(&applogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
	})
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() domrepo.Metrics {
	return metrics.New()
}

// ProvideAlignEngine creates the temporal alignment engine.
func ProvideAlignEngine(cfg *config.Config, log *applogger.Logger) *align.Engine {
	return align.New(align.Config{CoverageFloor: cfg.Alignment.CoverageFloor}, log)
}

// ProvideStorageManager creates the hybrid hot/cold storage manager and,
// when enabled, attaches the ClickHouse archive mirror.
func ProvideStorageManager(cfg *config.Config, log *applogger.Logger, m domrepo.Metrics) (*internalrepo.Manager, error) {
	mgr, err := internalrepo.NewManager(internalrepo.StorageConfig{
		BasePath:            cfg.Storage.BasePath,
		HotDataDays:         cfg.Storage.HotDataDays,
		MaxWorkers:          cfg.Storage.MaxWorkers,
		BackupEnabled:       cfg.Storage.BackupEnabled,
		BackupRetentionDays: cfg.Storage.BackupRetentionDays,
	}, log, m)
	if err != nil {
		return nil, fmt.Errorf("storage manager: %w", err)
	}

	if cfg.ClickHouse.Enabled {
		client, err := pkgch.NewClient(
			pkgch.WithHost(cfg.ClickHouse.Host),
			pkgch.WithPort(cfg.ClickHouse.Port),
			pkgch.WithDatabase(cfg.ClickHouse.Database),
			pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
			pkgch.WithMaxConnections(10, 5),
			pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("clickhouse client: %w", err)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.InitSchema(ctx, internalrepo.ArchiveSchema(cfg.ClickHouse.Database)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("clickhouse schema: %w", err)
		}
		mgr.SetArchive(internalrepo.NewCandleArchive(client, cfg.ClickHouse.Database, log))
	}
	return mgr, nil
}

// ProvideCandleStore narrows the storage manager to the domain interface.
func ProvideCandleStore(mgr *internalrepo.Manager) domrepo.CandleStore {
	return mgr
}

// ProvideCandleCache creates the tiered candle cache. The Redis layer is
// optional shared state between replicas.
func ProvideCandleCache(cfg *config.Config, log *applogger.Logger, m domrepo.Metrics) (*icache.CandleCache, error) {
	var shared pkgcache.Service
	if cfg.Cache.Redis.Enabled {
		redisCache, err := pkgcache.NewRedisCache(
			pkgcache.WithRedisAddr(cfg.Cache.Redis.Addr),
			pkgcache.WithRedisPassword(cfg.Cache.Redis.Password),
			pkgcache.WithRedisDB(cfg.Cache.Redis.DB),
		)
		if err != nil {
			return nil, fmt.Errorf("redis cache: %w", err)
		}
		shared = redisCache
	}
	cache, err := icache.New(icache.Config{
		Dir:             cfg.Cache.Dir,
		MaxSizeMB:       cfg.Cache.MaxSizeMB,
		CleanupInterval: time.Duration(cfg.Cache.CleanupIntervalSeconds) * time.Second,
		Compression:     cfg.Cache.CompressionEnabled,
		UseIndex:        cfg.Cache.UseMetadataIndex,
	}, shared, log, m)
	if err != nil {
		return nil, fmt.Errorf("candle cache: %w", err)
	}
	return cache, nil
}

// ProvideCandleCacheInterface narrows the cache to the domain interface.
func ProvideCandleCacheInterface(c *icache.CandleCache) domrepo.CandleCache {
	return c
}

// ProvideDataSource creates the Binance kline fallback source.
func ProvideDataSource(cfg *config.Config, log *applogger.Logger) domrepo.DataSource {
	return binance.New(cfg.Source.BaseURL, cfg.Source.Timeout, log)
}

// ProvideEventPublisher creates the Kafka session publisher, or a no-op
// when Kafka is disabled.
func ProvideEventPublisher(cfg *config.Config) (domrepo.EventPublisher, error) {
	if !cfg.Kafka.Enabled {
		return internalrepo.NopSessionPublisher{}, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return internalrepo.NewKafkaSessionPublisher(producer, cfg.Kafka.Topic), nil
}

// ProvideCoordinator creates the multi-timeframe coordinator use case.
func ProvideCoordinator(
	cfg *config.Config,
	engine *align.Engine,
	store domrepo.CandleStore,
	cache domrepo.CandleCache,
	source domrepo.DataSource,
	events domrepo.EventPublisher,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.Coordinator {
	tfs := make([]models.Timeframe, 0, len(cfg.Alignment.Timeframes))
	for _, s := range cfg.Alignment.Timeframes {
		tfs = append(tfs, models.NormalizeTimeframe(s))
	}
	return usecase.NewCoordinator(usecase.CoordinatorConfig{
		BaseTimeframe:          models.NormalizeTimeframe(cfg.Alignment.BaseTimeframe),
		Timeframes:             tfs,
		SpanCoverageWeight:     cfg.Coordinator.SpanCoverageWeight,
		PriceConsistencyWeight: cfg.Coordinator.PriceConsistencyWeight,
		MinAggregationQuality:  cfg.Coordinator.MinAggregationQuality,
		Tolerances:             cfg.Coordinator.Tolerances,
	}, engine, store, cache, source, events, m, log)
}

// ProvideAlignedReader creates the read-through use case.
func ProvideAlignedReader(
	engine *align.Engine,
	store domrepo.CandleStore,
	cache domrepo.CandleCache,
	m domrepo.Metrics,
	log *applogger.Logger,
) *usecase.AlignedReader {
	return usecase.NewAlignedReader(engine, store, cache, m, log)
}

// ProvideRateLimiter creates the shared request limiter. The app prunes its
// idle buckets from the maintenance cycle.
func ProvideRateLimiter() *ratelimit.Limiter {
	return ratelimit.New()
}

// ProvideHTTPHandler creates the Echo route handler.
func ProvideHTTPHandler(
	log *applogger.Logger,
	reader *usecase.AlignedReader,
	coordinator *usecase.Coordinator,
	store domrepo.CandleStore,
	cache domrepo.CandleCache,
	rl *ratelimit.Limiter,
) xhttp.Handler {
	return api.NewCandlesEchoHandler(log, reader, coordinator, store, cache, rl)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	log *applogger.Logger,
	handler xhttp.Handler,
	mgr *internalrepo.Manager,
	cache *icache.CandleCache,
	events domrepo.EventPublisher,
	rl *ratelimit.Limiter,
) *server.App {
	return server.New(cfg, log, handler, mgr, cache, events, rl)
}
