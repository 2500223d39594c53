package repository

import (
	"context"
	"time"

	"CandleGrid/internal/domain/models"
)

// CandleStore persists aligned candles across the hot and cold tiers and
// merges them transparently on load.
type CandleStore interface {
	Store(ctx context.Context, data map[string]models.SymbolSeries, tf models.Timeframe, sessionID string, meta map[string]interface{}) error
	Load(ctx context.Context, symbols []string, tf models.Timeframe, start, end time.Time) (map[string]models.SymbolSeries, error)
	Statistics(ctx context.Context) (models.StorageStats, error)
	Close() error
}

// CandleCache memoizes (symbols, timeframe, range) results with
// per-timeframe TTL. Get never errors on a miss.
type CandleCache interface {
	Get(ctx context.Context, symbols []string, tf models.Timeframe, start, end time.Time) (map[string]models.SymbolSeries, bool)
	Set(ctx context.Context, symbols []string, tf models.Timeframe, data map[string]models.SymbolSeries) error
	InvalidateTimeframe(ctx context.Context, tf models.Timeframe) int
	Statistics() models.CacheStats
	Close() error
}

// DataSource is the external fetch collaborator the coordinator falls back
// to when stored base-timeframe data is insufficient.
type DataSource interface {
	FetchCandles(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Candle, error)
}

// EventPublisher appends session summaries to the external operation log.
type EventPublisher interface {
	PublishSession(ctx context.Context, ev models.SessionEvent) error
	Close() error
}

// Metrics records operational counters. Implementations must be safe for
// concurrent use.
type Metrics interface {
	RecordCacheHit(tf string)
	RecordCacheMiss(tf string)
	RecordLatency(op string, seconds float64)
	RecordCandlesPersisted(tier, tf string, n int)
	RecordCoherence(pair string, score float64)
	RecordError(kind string)
}
