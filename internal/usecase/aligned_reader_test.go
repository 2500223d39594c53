package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CandleGrid/internal/domain/models"
	"CandleGrid/internal/services/align"
)

type recordingCache struct {
	fakeCache
	stored map[string]models.SymbolSeries
	hit    map[string]models.SymbolSeries
	gets   int
}

func (c *recordingCache) Get(context.Context, []string, models.Timeframe, time.Time, time.Time) (map[string]models.SymbolSeries, bool) {
	c.gets++
	if c.hit != nil {
		return c.hit, true
	}
	return nil, false
}

func (c *recordingCache) Set(_ context.Context, _ []string, _ models.Timeframe, data map[string]models.SymbolSeries) error {
	c.stored = data
	return nil
}

func TestGetAlignedCacheHitShortCircuits(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore() // empty on purpose
	cache := &recordingCache{hit: map[string]models.SymbolSeries{
		"BTCUSDT": baseDay("BTCUSDT", day),
	}}
	r := NewAlignedReader(align.New(align.Config{}, nil), store, cache, nil, nil)

	res, err := r.GetAligned(context.Background(), []string{"BTCUSDT"}, models.TF5m, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Success {
		t.Fatal("expected success from cache hit")
	}
	if len(res.Aligned["BTCUSDT"].Candles) != 288 {
		t.Fatalf("cache hit returned %d candles", len(res.Aligned["BTCUSDT"].Candles))
	}
	if cache.gets != 1 {
		t.Fatalf("cache consulted %d times, want 1", cache.gets)
	}
}

func TestGetAlignedReadsThroughAndCaches(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.data[models.TF5m] = map[string]models.SymbolSeries{
		"BTCUSDT": baseDay("BTCUSDT", day),
	}
	cache := &recordingCache{}
	r := NewAlignedReader(align.New(align.Config{}, nil), store, cache, nil, nil)

	res, err := r.GetAligned(context.Background(), []string{"BTCUSDT"}, models.TF5m, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if res.Quality <= 0.9 {
		t.Fatalf("quality %v, want near 1 for a full day", res.Quality)
	}
	if cache.stored == nil {
		t.Fatal("aligned result was not written back to the cache")
	}
	if len(res.MasterTimeline) == 0 {
		t.Fatal("expected a master timeline on the store path")
	}
}

func TestGetAlignedNoData(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewAlignedReader(align.New(align.Config{}, nil), newFakeStore(), &recordingCache{}, nil, nil)

	_, err := r.GetAligned(context.Background(), []string{"BTCUSDT"}, models.TF5m, day, day.AddDate(0, 0, 1))
	if !errors.Is(err, models.ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestGetAlignedInvalidInput(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	r := NewAlignedReader(align.New(align.Config{}, nil), newFakeStore(), &recordingCache{}, nil, nil)

	if _, err := r.GetAligned(context.Background(), nil, models.TF5m, day, day.Add(time.Hour)); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("empty symbols: %v", err)
	}
	if _, err := r.GetAligned(context.Background(), []string{"BTCUSDT"}, models.Timeframe("7m"), day, day.Add(time.Hour)); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("unknown timeframe: %v", err)
	}
	if _, err := r.GetAligned(context.Background(), []string{"BTCUSDT"}, models.TF5m, day, day); !errors.Is(err, models.ErrInvalidInput) {
		t.Fatalf("degenerate range: %v", err)
	}
}
