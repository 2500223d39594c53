package align

import (
	"time"

	"CandleGrid/internal/domain/models"
	applogger "CandleGrid/pkg/logger"
)

// Config holds alignment engine tunables.
type Config struct {
	// CoverageFloor flags symbols whose alignment quality falls below it.
	CoverageFloor float64
}

// Engine builds canonical timelines, reindexes per-symbol series onto them
// and resamples series up the timeframe ladder. Stateless between calls.
type Engine struct {
	cfg Config
	log *applogger.Logger
}

func New(cfg Config, log *applogger.Logger) *Engine {
	if cfg.CoverageFloor <= 0 || cfg.CoverageFloor > 1 {
		cfg.CoverageFloor = 0.95
	}
	return &Engine{cfg: cfg, log: log}
}

// CreateMasterTimeline returns the fixed-step grid from start to end
// inclusive at the timeframe's interval. Pure function of its inputs;
// returns nil on a degenerate range or unknown timeframe.
func (e *Engine) CreateMasterTimeline(tf models.Timeframe, start, end time.Time) []time.Time {
	step := tf.Step()
	if step <= 0 || !start.Before(end) {
		return nil
	}
	start = start.UTC().Truncate(step)
	end = end.UTC().Truncate(step)
	n := int(end.Sub(start)/step) + 1
	out := make([]time.Time, 0, n)
	for ts := start; !ts.After(end); ts = ts.Add(step) {
		out = append(out, ts)
	}
	return out
}

// AlignSymbolData reindexes each raw series onto the master timeline.
// Missing slots are recorded as gaps, never forward-filled; forward-filling
// would corrupt OHLC semantics. Duplicate timestamps resolve last-write-wins.
func (e *Engine) AlignSymbolData(raw map[string][]models.Candle, timeline []time.Time, tf models.Timeframe) map[string]models.SymbolSeries {
	out := make(map[string]models.SymbolSeries, len(raw))
	step := tf.Step()
	for symbol, candles := range raw {
		series := models.SymbolSeries{Symbol: symbol, Timeframe: tf}
		if len(timeline) == 0 || len(candles) == 0 {
			series.Gaps = append([]time.Time(nil), timeline...)
			out[symbol] = series
			continue
		}

		byTs := make(map[int64]models.Candle, len(candles))
		for _, c := range candles {
			c.Ts = c.Ts.UTC().Truncate(step)
			byTs[c.Ts.Unix()] = c // last write wins
		}

		series.Candles = make([]models.Candle, 0, len(timeline))
		for _, ts := range timeline {
			if c, ok := byTs[ts.Unix()]; ok {
				c.Ts = ts
				series.Candles = append(series.Candles, c)
			} else {
				series.Gaps = append(series.Gaps, ts)
			}
		}
		out[symbol] = series
	}
	return out
}

// ValidateAlignment computes per-symbol quality as 1 − missing/expected and
// averages it. Symbols below the coverage floor are listed in LowCoverage.
func (e *Engine) ValidateAlignment(aligned map[string]models.SymbolSeries, timeline []time.Time) models.AlignmentReport {
	report := models.AlignmentReport{
		PerSymbol: make(map[string]float64, len(aligned)),
		Gaps:      make(map[string][]time.Time),
	}
	expected := len(timeline)
	if expected == 0 || len(aligned) == 0 {
		return report
	}

	var sum float64
	for symbol, series := range aligned {
		quality := float64(len(series.Candles)) / float64(expected)
		report.PerSymbol[symbol] = quality
		if len(series.Gaps) > 0 {
			report.Gaps[symbol] = series.Gaps
		}
		if quality < e.cfg.CoverageFloor {
			report.LowCoverage = append(report.LowCoverage, symbol)
			if e.log != nil {
				e.log.Warn("symbol below coverage floor",
					applogger.String("symbol", symbol),
					applogger.Float64("quality", quality),
					applogger.Float64("floor", e.cfg.CoverageFloor),
				)
			}
		}
		sum += quality
	}
	report.OverallQuality = sum / float64(len(aligned))
	return report
}
