package align

import (
	"CandleGrid/internal/domain/models"
)

// AggregateToHigherTimeframe groups the source series into fixed windows on
// the target grid and reduces each window to one candle:
// open = first open, close = last close, high = max, low = min,
// volume = sum. A window is emitted only when it has at least one source
// bar; windows missing bars are counted as partial in the returned stats.
func (e *Engine) AggregateToHigherTimeframe(series models.SymbolSeries, target models.Timeframe) (models.SymbolSeries, models.AggregateStats) {
	out := models.SymbolSeries{Symbol: series.Symbol, Timeframe: target}
	stats := models.AggregateStats{SourceBars: len(series.Candles)}

	source, factor, ok := target.AggregationSource()
	if !ok || source != series.Timeframe || series.Empty() {
		return out, stats
	}

	step := target.Step()
	var (
		current models.Candle
		count   int
		open    bool
	)
	flush := func() {
		if !open {
			return
		}
		out.Candles = append(out.Candles, current)
		stats.Windows++
		if count < factor {
			stats.PartialWindows++
		}
		open = false
		count = 0
	}

	for _, c := range series.Candles {
		bucket := c.Ts.UTC().Truncate(step)
		if open && !bucket.Equal(current.Ts) {
			flush()
		}
		if !open {
			current = models.Candle{
				Ts:     bucket,
				Open:   c.Open,
				High:   c.High,
				Low:    c.Low,
				Close:  c.Close,
				Volume: c.Volume,
			}
			open = true
			count = 1
			continue
		}
		if c.High > current.High {
			current.High = c.High
		}
		if c.Low < current.Low {
			current.Low = c.Low
		}
		current.Close = c.Close
		current.Volume += c.Volume
		count++
	}
	flush()

	if stats.Windows > 0 {
		stats.SpanCoverage = float64(stats.SourceBars) / float64(stats.Windows*factor)
		if stats.SpanCoverage > 1 {
			stats.SpanCoverage = 1
		}
	}
	return out, stats
}
