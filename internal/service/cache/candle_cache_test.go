package cache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"CandleGrid/internal/domain/models"
)

func testCache(t *testing.T) *CandleCache {
	t.Helper()
	c, err := New(Config{
		Dir:         t.TempDir(),
		MaxSizeMB:   1,
		Compression: true,
		UseIndex:    true,
	}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func cachedSeries(symbol string, tf models.Timeframe, start time.Time, n int) map[string]models.SymbolSeries {
	candles := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		p := 50 + float64(i)
		candles = append(candles, models.Candle{
			Ts:     start.Add(time.Duration(i) * tf.Step()),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p,
			Volume: 1,
		})
	}
	return map[string]models.SymbolSeries{
		symbol: {Symbol: symbol, Timeframe: tf, Candles: candles},
	}
}

func TestSetAndGetByDataSpan(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	data := cachedSeries("BTCUSDT", models.TF5m, t0, 12)
	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, data); err != nil {
		t.Fatal(err)
	}

	// the key covers exactly the data's span, first to last candle
	got, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(55*time.Minute))
	if !ok {
		t.Fatal("expected hit for the exact data span")
	}
	if len(got["BTCUSDT"].Candles) != 12 {
		t.Fatalf("hit returned %d candles, want 12", len(got["BTCUSDT"].Candles))
	}

	// a broader request must not be satisfied by the narrower entry
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(2*time.Hour)); ok {
		t.Fatal("broader range must miss")
	}
	// symbol order must not matter
	data2 := map[string]models.SymbolSeries{}
	for k, v := range cachedSeries("ETHUSDT", models.TF5m, t0, 12) {
		data2[k] = v
	}
	for k, v := range cachedSeries("BTCUSDT", models.TF5m, t0, 12) {
		data2[k] = v
	}
	if err := c.Set(context.Background(), []string{"ETHUSDT", "BTCUSDT"}, models.TF5m, data2); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, models.TF5m, t0, t0.Add(55*time.Minute)); !ok {
		t.Fatal("symbol order changed the key")
	}
}

func TestTTLBoundary(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	data := cachedSeries("BTCUSDT", models.TF5m, t0, 12)
	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, data); err != nil {
		t.Fatal(err)
	}
	span := 55 * time.Minute

	// 5m entries live two hours from creation
	c.now = func() time.Time { return t0.Add(time.Hour + 59*time.Minute) }
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(span)); !ok {
		t.Fatal("expected hit just inside TTL")
	}

	c.now = func() time.Time { return t0.Add(2*time.Hour + time.Minute) }
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(span)); ok {
		t.Fatal("expected miss just past TTL")
	}
}

func TestExpiryDoesNotExtendOnAccess(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	data := cachedSeries("BTCUSDT", models.TF5m, t0, 12)
	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, data); err != nil {
		t.Fatal(err)
	}
	span := 55 * time.Minute

	// repeated access near the end of life must not push expiry out
	c.now = func() time.Time { return t0.Add(time.Hour + 55*time.Minute) }
	for i := 0; i < 5; i++ {
		if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(span)); !ok {
			t.Fatal("expected hit inside TTL")
		}
	}
	c.now = func() time.Time { return t0.Add(2*time.Hour + time.Minute) }
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(span)); ok {
		t.Fatal("access must not extend expiry")
	}
}

func TestDiskPromotion(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	data := cachedSeries("BTCUSDT", models.TF1h, t0, 6)
	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF1h, data); err != nil {
		t.Fatal(err)
	}

	// drop the memory layer, keep disk
	c.mu.Lock()
	c.entries = make(map[string]*memEntry)
	c.lru = nil
	c.totalBytes = 0
	c.mu.Unlock()

	got, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF1h, t0, t0.Add(5*time.Hour))
	if !ok {
		t.Fatal("expected disk hit after memory flush")
	}
	if len(got["BTCUSDT"].Candles) != 6 {
		t.Fatalf("disk hit returned %d candles, want 6", len(got["BTCUSDT"].Candles))
	}

	// a disk hit promotes back into memory
	c.mu.Lock()
	n := len(c.entries)
	c.mu.Unlock()
	if n != 1 {
		t.Fatalf("expected promotion into memory, have %d entries", n)
	}
}

func TestInvalidateTimeframe(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, cachedSeries("BTCUSDT", models.TF5m, t0, 12)); err != nil {
		t.Fatal(err)
	}
	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF1h, cachedSeries("BTCUSDT", models.TF1h, t0, 6)); err != nil {
		t.Fatal(err)
	}

	removed := c.InvalidateTimeframe(context.Background(), models.TF5m)
	if removed != 1 {
		t.Fatalf("invalidated %d entries, want 1", removed)
	}
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(55*time.Minute)); ok {
		t.Fatal("5m entry survived invalidation")
	}
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF1h, t0, t0.Add(5*time.Hour)); !ok {
		t.Fatal("1h entry should be untouched")
	}
}

func TestEvictionDropsOldestFifth(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	// each entry ~2000 candles * 48B ≈ 94KB; twelve overflow the 1MB budget
	for i := 0; i < 12; i++ {
		now := t0.Add(time.Duration(i) * time.Minute)
		c.now = func() time.Time { return now }
		symbol := string(rune('A'+i)) + "USDT"
		if err := c.Set(context.Background(), []string{symbol}, models.TF5m, cachedSeries(symbol, models.TF5m, t0, 2000)); err != nil {
			t.Fatal(err)
		}
	}

	c.mu.Lock()
	remaining := len(c.entries)
	budget := int64(c.cfg.MaxSizeMB) * 1024 * 1024
	total := c.totalBytes
	_, oldestAlive := c.entries[Key([]string{"AUSDT"}, models.TF5m, t0, t0.Add(1999*5*time.Minute))]
	c.mu.Unlock()

	if remaining == 12 {
		t.Fatal("expected eviction to have run")
	}
	if total > budget+int64(100*1024*1024) {
		t.Fatalf("total bytes %d far above budget", total)
	}
	if oldestAlive {
		t.Fatal("oldest entry survived eviction")
	}
}

func TestCleanupExpiredKeepsCounters(t *testing.T) {
	c := testCache(t)
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return t0 }

	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, cachedSeries("BTCUSDT", models.TF5m, t0, 12)); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(55*time.Minute)); !ok {
		t.Fatal("expected hit")
	}
	c.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(24*time.Hour)) // miss

	before := c.Statistics()
	if before.Hits != 1 || before.Misses != 1 {
		t.Fatalf("counters hits=%d misses=%d, want 1/1", before.Hits, before.Misses)
	}

	c.now = func() time.Time { return t0.Add(3 * time.Hour) }
	if n := c.CleanupExpired(); n == 0 {
		t.Fatal("expected expired entries to be removed")
	}

	after := c.Statistics()
	if after.Hits != before.Hits || after.Misses != before.Misses {
		t.Fatal("cleanup must not reset lifetime counters")
	}
	if after.Entries != 0 {
		t.Fatalf("entries %d after cleanup, want 0", after.Entries)
	}
}

func TestIndexPersistenceFollowsConfig(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	withIndex := t.TempDir()
	c, err := New(Config{Dir: withIndex, MaxSizeMB: 1, Compression: true, UseIndex: true}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c.now = func() time.Time { return t0 }
	if err := c.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, cachedSeries("BTCUSDT", models.TF5m, t0, 12)); err != nil {
		t.Fatal(err)
	}
	_ = c.Close()
	if _, err := os.Stat(filepath.Join(withIndex, "index.json")); err != nil {
		t.Fatalf("index file missing with UseIndex on: %v", err)
	}

	// a reopened cache must serve the entry from the persisted index
	c2, err := New(Config{Dir: withIndex, MaxSizeMB: 1, Compression: true, UseIndex: true}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c2.now = func() time.Time { return t0 }
	if _, ok := c2.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(55*time.Minute)); !ok {
		t.Fatal("expected disk hit after reopen with persisted index")
	}
	_ = c2.Close()

	noIndex := t.TempDir()
	c3, err := New(Config{Dir: noIndex, MaxSizeMB: 1, Compression: true, UseIndex: false}, nil, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	c3.now = func() time.Time { return t0 }
	if err := c3.Set(context.Background(), []string{"BTCUSDT"}, models.TF5m, cachedSeries("BTCUSDT", models.TF5m, t0, 12)); err != nil {
		t.Fatal(err)
	}
	// the entry still serves within this process
	if _, ok := c3.Get(context.Background(), []string{"BTCUSDT"}, models.TF5m, t0, t0.Add(55*time.Minute)); !ok {
		t.Fatal("expected hit from in-memory index")
	}
	_ = c3.Close()
	if _, err := os.Stat(filepath.Join(noIndex, "index.json")); !os.IsNotExist(err) {
		t.Fatal("index file written with UseIndex off")
	}
}
