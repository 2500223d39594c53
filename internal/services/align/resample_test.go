package align

import (
	"testing"
	"time"

	"CandleGrid/internal/domain/models"
)

func TestAggregateOHLCReduction(t *testing.T) {
	e := New(Config{}, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	series := models.SymbolSeries{
		Symbol:    "BTCUSDT",
		Timeframe: models.TF5m,
		Candles: []models.Candle{
			{Ts: start, Open: 100, High: 105, Low: 99, Close: 101, Volume: 10},
			{Ts: start.Add(5 * time.Minute), Open: 101, High: 110, Low: 100, Close: 108, Volume: 20},
			{Ts: start.Add(10 * time.Minute), Open: 108, High: 109, Low: 95, Close: 96, Volume: 30},
		},
	}

	agg, stats := e.AggregateToHigherTimeframe(series, models.TF15m)
	if len(agg.Candles) != 1 {
		t.Fatalf("expected 1 window, got %d", len(agg.Candles))
	}
	c := agg.Candles[0]
	if c.Open != 100 {
		t.Errorf("open %v, want first open 100", c.Open)
	}
	if c.Close != 96 {
		t.Errorf("close %v, want last close 96", c.Close)
	}
	if c.High != 110 {
		t.Errorf("high %v, want max 110", c.High)
	}
	if c.Low != 95 {
		t.Errorf("low %v, want min 95", c.Low)
	}
	if c.Volume != 60 {
		t.Errorf("volume %v, want sum 60", c.Volume)
	}
	if stats.Windows != 1 || stats.PartialWindows != 0 {
		t.Errorf("stats %+v, want 1 full window", stats)
	}
	if stats.SpanCoverage != 1 {
		t.Errorf("span coverage %v, want 1", stats.SpanCoverage)
	}
}

func TestAggregatePartialWindow(t *testing.T) {
	e := New(Config{}, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	// first window has all 3 bars, second window only 1
	series := models.SymbolSeries{
		Symbol:    "BTCUSDT",
		Timeframe: models.TF5m,
		Candles: append(
			mkCandles(start, 5*time.Minute, 3, 100),
			models.Candle{Ts: start.Add(20 * time.Minute), Open: 1, High: 2, Low: 0.5, Close: 1, Volume: 1},
		),
	}

	agg, stats := e.AggregateToHigherTimeframe(series, models.TF15m)
	if len(agg.Candles) != 2 {
		t.Fatalf("expected 2 windows, got %d", len(agg.Candles))
	}
	if stats.PartialWindows != 1 {
		t.Fatalf("partial windows %d, want 1", stats.PartialWindows)
	}
	want := 4.0 / 6.0
	if stats.SpanCoverage != want {
		t.Fatalf("span coverage %v, want %v", stats.SpanCoverage, want)
	}
}

func TestAggregateRejectsWrongSource(t *testing.T) {
	e := New(Config{}, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	series := models.SymbolSeries{
		Symbol:    "BTCUSDT",
		Timeframe: models.TF5m,
		Candles:   mkCandles(start, 5*time.Minute, 12, 100),
	}

	// 1h must come from 15m, not 5m
	agg, stats := e.AggregateToHigherTimeframe(series, models.TF1h)
	if len(agg.Candles) != 0 || stats.Windows != 0 {
		t.Fatalf("expected no output for non-ladder source, got %d windows", stats.Windows)
	}
}

func TestAggregateFullDayLadder(t *testing.T) {
	e := New(Config{}, nil)
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	day5m := models.SymbolSeries{
		Symbol:    "BTCUSDT",
		Timeframe: models.TF5m,
		Candles:   mkCandles(start, 5*time.Minute, 288, 100),
	}

	m15, _ := e.AggregateToHigherTimeframe(day5m, models.TF15m)
	if len(m15.Candles) != 96 {
		t.Fatalf("15m windows %d, want 96", len(m15.Candles))
	}
	h1, _ := e.AggregateToHigherTimeframe(m15, models.TF1h)
	if len(h1.Candles) != 24 {
		t.Fatalf("1h windows %d, want 24", len(h1.Candles))
	}
	h4, _ := e.AggregateToHigherTimeframe(h1, models.TF4h)
	if len(h4.Candles) != 6 {
		t.Fatalf("4h windows %d, want 6", len(h4.Candles))
	}
	d1, stats := e.AggregateToHigherTimeframe(h4, models.TF1d)
	if len(d1.Candles) != 1 {
		t.Fatalf("1d windows %d, want 1", len(d1.Candles))
	}
	if stats.SpanCoverage != 1 {
		t.Fatalf("1d span coverage %v, want 1", stats.SpanCoverage)
	}

	// the daily bar must preserve the whole day's extremes and volume
	day := d1.Candles[0]
	if day.Open != day5m.Candles[0].Open {
		t.Errorf("day open %v, want %v", day.Open, day5m.Candles[0].Open)
	}
	if day.Close != day5m.Candles[287].Close {
		t.Errorf("day close %v, want %v", day.Close, day5m.Candles[287].Close)
	}
	var vol, hi, lo float64
	lo = day5m.Candles[0].Low
	for _, c := range day5m.Candles {
		vol += c.Volume
		if c.High > hi {
			hi = c.High
		}
		if c.Low < lo {
			lo = c.Low
		}
	}
	if day.Volume != vol {
		t.Errorf("day volume %v, want %v", day.Volume, vol)
	}
	if day.High != hi || day.Low != lo {
		t.Errorf("day extremes (%v,%v), want (%v,%v)", day.High, day.Low, hi, lo)
	}
}

func TestPearson(t *testing.T) {
	a := []float64{1, 2, 3, 4, 5}
	b := []float64{2, 4, 6, 8, 10}
	r, ok := Pearson(a, b)
	if !ok {
		t.Fatal("expected ok")
	}
	if r < 0.9999 || r > 1 {
		t.Fatalf("perfect correlation got %v", r)
	}

	inv := []float64{10, 8, 6, 4, 2}
	r, ok = Pearson(a, inv)
	if !ok || r > -0.9999 {
		t.Fatalf("perfect anticorrelation got %v ok=%v", r, ok)
	}

	if _, ok := Pearson([]float64{1}, []float64{2}); ok {
		t.Fatal("expected not ok for single point")
	}
	if _, ok := Pearson(a, []float64{1, 2, 3}); ok {
		t.Fatal("expected not ok for length mismatch")
	}
	flat := []float64{3, 3, 3, 3, 3}
	if _, ok := Pearson(a, flat); ok {
		t.Fatal("expected not ok for zero variance")
	}
}
