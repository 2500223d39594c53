package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"CandleGrid/internal/domain/models"
	"CandleGrid/internal/services/align"
)

type fakeStore struct {
	data     map[models.Timeframe]map[string]models.SymbolSeries
	failTF   models.Timeframe
	sessions []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[models.Timeframe]map[string]models.SymbolSeries)}
}

func (s *fakeStore) Store(_ context.Context, data map[string]models.SymbolSeries, tf models.Timeframe, sessionID string, _ map[string]interface{}) error {
	if tf == s.failTF {
		return errors.New("disk full")
	}
	s.data[tf] = data
	s.sessions = append(s.sessions, sessionID)
	return nil
}

func (s *fakeStore) Load(_ context.Context, symbols []string, tf models.Timeframe, start, end time.Time) (map[string]models.SymbolSeries, error) {
	out := make(map[string]models.SymbolSeries, len(symbols))
	stored := s.data[tf]
	for _, symbol := range symbols {
		series := stored[symbol]
		var filtered []models.Candle
		for _, c := range series.Candles {
			if !c.Ts.Before(start) && c.Ts.Before(end) {
				filtered = append(filtered, c)
			}
		}
		out[symbol] = models.SymbolSeries{Symbol: symbol, Timeframe: tf, Candles: filtered}
	}
	return out, nil
}

func (s *fakeStore) Statistics(context.Context) (models.StorageStats, error) {
	return models.StorageStats{}, nil
}
func (s *fakeStore) Close() error { return nil }

type fakeCache struct {
	invalidated []models.Timeframe
}

func (c *fakeCache) Get(context.Context, []string, models.Timeframe, time.Time, time.Time) (map[string]models.SymbolSeries, bool) {
	return nil, false
}
func (c *fakeCache) Set(context.Context, []string, models.Timeframe, map[string]models.SymbolSeries) error {
	return nil
}
func (c *fakeCache) InvalidateTimeframe(_ context.Context, tf models.Timeframe) int {
	c.invalidated = append(c.invalidated, tf)
	return 0
}
func (c *fakeCache) Statistics() models.CacheStats { return models.CacheStats{} }
func (c *fakeCache) Close() error                  { return nil }

type fakeEvents struct {
	published []models.SessionEvent
}

func (e *fakeEvents) PublishSession(_ context.Context, ev models.SessionEvent) error {
	e.published = append(e.published, ev)
	return nil
}
func (e *fakeEvents) Close() error { return nil }

func baseDay(symbol string, start time.Time) models.SymbolSeries {
	candles := make([]models.Candle, 0, 288)
	for i := 0; i < 288; i++ {
		p := 100 + float64(i)*0.1
		candles = append(candles, models.Candle{
			Ts:     start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   p,
			High:   p + 0.2,
			Low:    p - 0.2,
			Close:  p + 0.1,
			Volume: 5,
		})
	}
	return models.SymbolSeries{Symbol: symbol, Timeframe: models.TF5m, Candles: candles}
}

func newTestCoordinator(store *fakeStore, cache *fakeCache, events *fakeEvents) *Coordinator {
	c := NewCoordinator(CoordinatorConfig{},
		align.New(align.Config{}, nil),
		store, cache, nil, events, nil, nil)
	return c
}

func TestProcessAllTimeframesHappyPath(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.data[models.TF5m] = map[string]models.SymbolSeries{
		"BTCUSDT": baseDay("BTCUSDT", day),
	}
	cache := &fakeCache{}
	events := &fakeEvents{}
	c := newTestCoordinator(store, cache, events)
	c.now = func() time.Time { return day.AddDate(0, 0, 1) }

	res := c.ProcessAllTimeframes(context.Background(), []string{"BTCUSDT"}, 1, true)
	if !res.Success {
		t.Fatalf("expected success, errors: %v", res.Errors)
	}
	if len(res.ProcessedTimeframes) != 5 {
		t.Fatalf("processed %v, want all five timeframes", res.ProcessedTimeframes)
	}
	if len(store.data[models.TF1h]["BTCUSDT"].Candles) != 24 {
		t.Fatalf("1h candles %d, want 24", len(store.data[models.TF1h]["BTCUSDT"].Candles))
	}
	if len(store.data[models.TF1d]["BTCUSDT"].Candles) != 1 {
		t.Fatalf("1d candles %d, want 1", len(store.data[models.TF1d]["BTCUSDT"].Candles))
	}
	if len(events.published) != 1 || !events.published[0].Success {
		t.Fatalf("expected one successful session event, got %+v", events.published)
	}
	// derived timeframes must be invalidated so readers see fresh data
	if len(cache.invalidated) != 4 {
		t.Fatalf("invalidated %v, want four derived timeframes", cache.invalidated)
	}
}

func TestProcessAllTimeframesPartialFailure(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore()
	store.data[models.TF5m] = map[string]models.SymbolSeries{
		"BTCUSDT": baseDay("BTCUSDT", day),
	}
	store.failTF = models.TF1h
	c := newTestCoordinator(store, &fakeCache{}, &fakeEvents{})
	c.now = func() time.Time { return day.AddDate(0, 0, 1) }

	res := c.ProcessAllTimeframes(context.Background(), []string{"BTCUSDT"}, 1, true)
	if res.Success {
		t.Fatal("expected failure when one timeframe cannot persist")
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected recorded errors")
	}
	var found bool
	for _, e := range res.Errors {
		if e.Timeframe == models.TF1h && e.Stage == "persist" {
			found = true
		}
	}
	if !found {
		t.Fatalf("errors %v missing 1h persist failure", res.Errors)
	}
	// 15m is independent of the 1h failure and must still be processed
	processed := map[models.Timeframe]bool{}
	for _, tf := range res.ProcessedTimeframes {
		processed[tf] = true
	}
	if !processed[models.TF15m] {
		t.Fatal("15m should still process when 1h fails")
	}
	// 4h depends on 1h, so it cannot process
	if processed[models.TF4h] {
		t.Fatal("4h must not process when its source failed")
	}
}

func TestProcessAllTimeframesRejectsInvalidInput(t *testing.T) {
	c := newTestCoordinator(newFakeStore(), &fakeCache{}, &fakeEvents{})
	res := c.ProcessAllTimeframes(context.Background(), nil, 1, true)
	if res.Success {
		t.Fatal("expected failure for empty symbols")
	}
	res = c.ProcessAllTimeframes(context.Background(), []string{"BTCUSDT"}, 0, true)
	if res.Success {
		t.Fatal("expected failure for non-positive days")
	}
}

func TestAutoAggregateTimeframesLadder(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(newFakeStore(), &fakeCache{}, &fakeEvents{})
	base := map[string]models.SymbolSeries{"BTCUSDT": baseDay("BTCUSDT", day)}

	out := c.AutoAggregateTimeframes(base)
	wantCounts := map[models.Timeframe]int{
		models.TF5m:  288,
		models.TF15m: 96,
		models.TF1h:  24,
		models.TF4h:  6,
		models.TF1d:  1,
	}
	for tf, want := range wantCounts {
		got := len(out[tf]["BTCUSDT"].Candles)
		if got != want {
			t.Errorf("%s: %d candles, want %d", tf, got, want)
		}
	}
}

func TestValidateTimeframeCoherence(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(newFakeStore(), &fakeCache{}, &fakeEvents{})
	base := map[string]models.SymbolSeries{"BTCUSDT": baseDay("BTCUSDT", day)}
	data := c.AutoAggregateTimeframes(base)

	report := c.ValidateTimeframeCoherence(data)
	if len(report.PairScores) == 0 {
		t.Fatal("expected pair scores")
	}
	for pair, score := range report.PairScores {
		if score < -1 || score > 1 {
			t.Errorf("%s score %v outside [-1,1]", pair, score)
		}
	}
	// aggregated data from a monotone series must correlate near-perfectly
	if s, ok := report.PairScores["5m->15m"]; !ok || s < 0.99 {
		t.Errorf("5m->15m score %v, want near 1", s)
	}
	if report.Overall < 0.99 {
		t.Errorf("overall coherence %v, want near 1", report.Overall)
	}
}

func TestValidateTimeframeCoherenceOmitsNonOverlapping(t *testing.T) {
	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c := newTestCoordinator(newFakeStore(), &fakeCache{}, &fakeEvents{})

	// 15m data from a totally disjoint period: no overlap with 5m
	data := map[models.Timeframe]map[string]models.SymbolSeries{
		models.TF5m: {"BTCUSDT": baseDay("BTCUSDT", day)},
		models.TF15m: {"BTCUSDT": {
			Symbol:    "BTCUSDT",
			Timeframe: models.TF15m,
			Candles: []models.Candle{
				{Ts: day.AddDate(0, 2, 0), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 1},
				{Ts: day.AddDate(0, 2, 0).Add(15 * time.Minute), Open: 1, High: 2, Low: 0.5, Close: 1.6, Volume: 1},
			},
		}},
	}
	report := c.ValidateTimeframeCoherence(data)
	if _, ok := report.PairScores["5m->15m"]; ok {
		t.Fatal("non-overlapping pair must be omitted, not scored")
	}
}
