package repository

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/s2"

	"CandleGrid/internal/domain/models"
)

func seriesFixture(start time.Time, step time.Duration, n int) []models.Candle {
	out := make([]models.Candle, 0, n)
	for i := 0; i < n; i++ {
		p := 100 + float64(i)
		out = append(out, models.Candle{
			Ts:     start.Add(time.Duration(i) * step),
			Open:   p,
			High:   p + 1,
			Low:    p - 1,
			Close:  p + 0.5,
			Volume: float64(i + 1),
		})
	}
	return out
}

func TestColdStoreRoundTrip(t *testing.T) {
	cs, err := NewColdStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	candles := seriesFixture(start, time.Hour, 24)

	if err := cs.Write("BTCUSDT", models.TF1h, candles, "s1"); err != nil {
		t.Fatal(err)
	}
	got, err := cs.Read("BTCUSDT", models.TF1h, start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 24 {
		t.Fatalf("read %d candles, want 24", len(got))
	}
	for i, c := range got {
		want := candles[i]
		if !c.Ts.Equal(want.Ts) || c.Open != want.Open || c.High != want.High ||
			c.Low != want.Low || c.Close != want.Close || c.Volume != want.Volume {
			t.Fatalf("candle %d mismatch: got %+v want %+v", i, c, want)
		}
	}
}

func TestColdStoreWriteIsCompressed(t *testing.T) {
	dir := t.TempDir()
	cs, err := NewColdStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := cs.Write("BTCUSDT", models.TF5m, seriesFixture(start, 5*time.Minute, 288), "s1"); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "cold", "5m", "BTCUSDT_5m_20250301.cg")
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// the raw file must not parse as JSON, only the decoded stream does
	var decoded map[string]interface{}
	if json.Unmarshal(b, &decoded) == nil {
		t.Fatal("block file parses as plain JSON, expected compressed")
	}
	raw, err := s2.Decode(nil, b)
	if err != nil {
		t.Fatalf("block file does not decode as s2: %v", err)
	}
	if json.Unmarshal(raw, &decoded) != nil {
		t.Fatal("decoded block is not the JSON payload")
	}
	// a repetitive columnar block must shrink
	if len(b) >= len(raw) {
		t.Fatalf("compressed size %d not smaller than raw %d", len(b), len(raw))
	}
}

func TestColdStoreMergeLastWriteWins(t *testing.T) {
	cs, err := NewColdStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	first := seriesFixture(start, time.Hour, 4)
	if err := cs.Write("BTCUSDT", models.TF1h, first, "s1"); err != nil {
		t.Fatal(err)
	}

	// overwrite one bar, add one new
	update := []models.Candle{
		{Ts: start.Add(2 * time.Hour), Open: 999, High: 1000, Low: 998, Close: 999.5, Volume: 50},
		{Ts: start.Add(4 * time.Hour), Open: 5, High: 6, Low: 4, Close: 5.5, Volume: 1},
	}
	if err := cs.Write("BTCUSDT", models.TF1h, update, "s2"); err != nil {
		t.Fatal(err)
	}

	got, err := cs.Read("BTCUSDT", models.TF1h, start, start.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 {
		t.Fatalf("merged to %d candles, want 5", len(got))
	}
	if got[2].Open != 999 {
		t.Fatalf("overwritten bar open %v, want 999", got[2].Open)
	}
}

func TestColdStoreReadHalfOpen(t *testing.T) {
	cs, err := NewColdStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	start := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := cs.Write("BTCUSDT", models.TF1h, seriesFixture(start, time.Hour, 24), "s1"); err != nil {
		t.Fatal(err)
	}

	got, err := cs.Read("BTCUSDT", models.TF1h, start.Add(2*time.Hour), start.Add(5*time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 {
		t.Fatalf("read %d candles, want 3 in [start+2h, start+5h)", len(got))
	}
	if !got[0].Ts.Equal(start.Add(2 * time.Hour)) {
		t.Fatalf("start bound not inclusive: first %v", got[0].Ts)
	}
	for _, c := range got {
		if !c.Ts.Before(start.Add(5 * time.Hour)) {
			t.Fatalf("end bound not exclusive: got %v", c.Ts)
		}
	}
}

func TestColdStoreArchiveIdempotent(t *testing.T) {
	dir := t.TempDir()
	cs, err := NewColdStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	old := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := cs.Write("BTCUSDT", models.TF1d, seriesFixture(old, 24*time.Hour, 1), "s1"); err != nil {
		t.Fatal(err)
	}
	if err := cs.Write("BTCUSDT", models.TF1d, seriesFixture(recent, 24*time.Hour, 1), "s1"); err != nil {
		t.Fatal(err)
	}

	cutoff := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	moved, err := cs.Archive(cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(moved) != 1 {
		t.Fatalf("archived %d blocks, want 1", len(moved))
	}
	if moved[0].Symbol != "BTCUSDT" || len(moved[0].Ts) != 1 {
		t.Fatalf("unexpected archived block %+v", moved[0])
	}

	// second pass must not re-archive anything
	moved, err = cs.Archive(cutoff)
	if err != nil {
		t.Fatal(err)
	}
	if len(moved) != 0 {
		t.Fatalf("second archive pass moved %d blocks, want 0", len(moved))
	}

	// archived data must still be readable through the cold store
	got, err := cs.Read("BTCUSDT", models.TF1d, old, old.AddDate(0, 0, 1))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("archived day unreadable: got %d candles", len(got))
	}

	if _, err := os.Stat(filepath.Join(dir, "cold", "1d", "BTCUSDT_1d_20240110.cg")); !os.IsNotExist(err) {
		t.Fatal("archived file still present in cold tree")
	}
}

func TestColdStoreCleanup(t *testing.T) {
	cs, err := NewColdStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	old := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	recent := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := cs.Write("BTCUSDT", models.TF1d, seriesFixture(old, 24*time.Hour, 1), "s1"); err != nil {
		t.Fatal(err)
	}
	if err := cs.Write("BTCUSDT", models.TF1d, seriesFixture(recent, 24*time.Hour, 1), "s1"); err != nil {
		t.Fatal(err)
	}

	removed, err := cs.Cleanup(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("removed %d files, want 1", removed)
	}
	got, _ := cs.Read("BTCUSDT", models.TF1d, recent, recent.AddDate(0, 0, 1))
	if len(got) != 1 {
		t.Fatal("recent file should survive cleanup")
	}
}
