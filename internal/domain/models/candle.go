package models

import "time"

// Candle represents one OHLCV bucket on the canonical UTC grid.
type Candle struct {
	Ts     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Valid checks the OHLC invariant: high covers open/close, low under them,
// volume non-negative.
func (c Candle) Valid() bool {
	if c.High < c.Open || c.High < c.Close {
		return false
	}
	if c.Low > c.Open || c.Low > c.Close {
		return false
	}
	return c.Volume >= 0
}

// SymbolSeries is an ordered-by-timestamp candle sequence for one
// (symbol, timeframe). Timestamps are strictly increasing on the timeframe
// grid; slots with no data are listed in Gaps, never interpolated.
type SymbolSeries struct {
	Symbol    string      `json:"symbol"`
	Timeframe Timeframe   `json:"timeframe"`
	Candles   []Candle    `json:"candles"`
	Gaps      []time.Time `json:"gaps,omitempty"`
}

// Empty reports whether the series has no candles.
func (s SymbolSeries) Empty() bool { return len(s.Candles) == 0 }

// Span returns the first and last candle timestamps. ok is false when empty.
func (s SymbolSeries) Span() (start, end time.Time, ok bool) {
	if len(s.Candles) == 0 {
		return time.Time{}, time.Time{}, false
	}
	return s.Candles[0].Ts, s.Candles[len(s.Candles)-1].Ts, true
}

// Closes returns the close column.
func (s SymbolSeries) Closes() []float64 {
	out := make([]float64, len(s.Candles))
	for i, c := range s.Candles {
		out[i] = c.Close
	}
	return out
}
