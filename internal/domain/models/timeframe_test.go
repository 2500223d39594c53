package models

import (
	"fmt"
	"testing"
	"time"
)

func TestLadderDerivation(t *testing.T) {
	ladder := Ladder()
	if len(ladder) != 5 || ladder[0] != TF5m {
		t.Fatalf("unexpected ladder %v", ladder)
	}
	// each rung after the base derives from its immediate predecessor and
	// the factors multiply out so the grids nest exactly
	for i := 1; i < len(ladder); i++ {
		source, factor, ok := ladder[i].AggregationSource()
		if !ok {
			t.Fatalf("%s has no aggregation source", ladder[i])
		}
		if source != ladder[i-1] {
			t.Errorf("%s derives from %s, want %s", ladder[i], source, ladder[i-1])
		}
		if ladder[i].Step() != time.Duration(factor)*source.Step() {
			t.Errorf("%s: factor %d does not bridge %v to %v", ladder[i], factor, source.Step(), ladder[i].Step())
		}
	}
	if _, _, ok := TF5m.AggregationSource(); ok {
		t.Error("base timeframe must not have a source")
	}
}

func TestTTLTable(t *testing.T) {
	want := map[Timeframe]time.Duration{
		TF5m:  2 * time.Hour,
		TF15m: 6 * time.Hour,
		TF1h:  12 * time.Hour,
		TF4h:  24 * time.Hour,
		TF1d:  72 * time.Hour,
	}
	for tf, d := range want {
		if tf.TTL() != d {
			t.Errorf("%s TTL %v, want %v", tf, tf.TTL(), d)
		}
	}
	if Timeframe("weird").TTL() != 24*time.Hour {
		t.Error("unknown timeframe should fall back to 24h")
	}
}

func TestNormalizeTimeframe(t *testing.T) {
	if NormalizeTimeframe("1h") != TF1h {
		t.Error("valid value should pass through")
	}
	if NormalizeTimeframe("") != TF5m || NormalizeTimeframe("2m") != TF5m {
		t.Error("invalid values should fall back to the base timeframe")
	}
}

func TestErrorKind(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, "none"},
		{ErrInvalidInput, "invalid_input"},
		{fmt.Errorf("wrap: %w", ErrNoData), "no_data"},
		{fmt.Errorf("deep: %w", fmt.Errorf("wrap: %w", ErrStorageIO)), "storage_io"},
		{ErrAggregationQuality, "aggregation_quality"},
		{fmt.Errorf("plain"), "internal"},
	}
	for _, tc := range cases {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestCandleValid(t *testing.T) {
	good := Candle{Open: 10, High: 12, Low: 9, Close: 11, Volume: 1}
	if !good.Valid() {
		t.Error("well-formed candle rejected")
	}
	if (Candle{Open: 10, High: 9, Low: 8, Close: 8.5, Volume: 1}).Valid() {
		t.Error("high below open accepted")
	}
	if (Candle{Open: 10, High: 12, Low: 11, Close: 11.5, Volume: 1}).Valid() {
		t.Error("low above open accepted")
	}
	if (Candle{Open: 10, High: 12, Low: 9, Close: 11, Volume: -1}).Valid() {
		t.Error("negative volume accepted")
	}
}
