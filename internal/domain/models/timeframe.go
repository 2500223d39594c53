package models

import "time"

// Timeframe is the candle bucket width defining the canonical grid.
type Timeframe string

const (
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1d  Timeframe = "1d"
)

// Ladder returns all supported timeframes in aggregation order, base first.
// Each entry after the first is derived from its immediate predecessor.
func Ladder() []Timeframe {
	return []Timeframe{TF5m, TF15m, TF1h, TF4h, TF1d}
}

// Step returns the grid step of the timeframe.
func (tf Timeframe) Step() time.Duration {
	switch tf {
	case TF5m:
		return 5 * time.Minute
	case TF15m:
		return 15 * time.Minute
	case TF1h:
		return time.Hour
	case TF4h:
		return 4 * time.Hour
	case TF1d:
		return 24 * time.Hour
	default:
		return 0
	}
}

// Valid reports whether tf is a supported timeframe.
func (tf Timeframe) Valid() bool {
	return tf.Step() > 0
}

// AggregationSource returns the immediate lower timeframe tf is derived from
// and the number of source bars per target window. ok is false for the base
// timeframe and for unknown values.
func (tf Timeframe) AggregationSource() (source Timeframe, factor int, ok bool) {
	switch tf {
	case TF15m:
		return TF5m, 3, true
	case TF1h:
		return TF15m, 4, true
	case TF4h:
		return TF1h, 4, true
	case TF1d:
		return TF4h, 6, true
	default:
		return "", 0, false
	}
}

// TTL returns how long a cached result for this timeframe stays fresh.
// Coarser timeframes change less often and live longer.
func (tf Timeframe) TTL() time.Duration {
	switch tf {
	case TF5m:
		return 2 * time.Hour
	case TF15m:
		return 6 * time.Hour
	case TF1h:
		return 12 * time.Hour
	case TF4h:
		return 24 * time.Hour
	case TF1d:
		return 72 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// CoherenceTolerance returns how far below perfect correlation the derived
// timeframe is allowed to drift from this source before the pair is flagged.
// Coarser derivations lose more information, so the tolerance widens.
func (tf Timeframe) CoherenceTolerance() float64 {
	switch tf {
	case TF5m:
		return 0.001
	case TF15m:
		return 0.005
	case TF1h:
		return 0.01
	case TF4h:
		return 0.02
	default:
		return 0.02
	}
}

// NormalizeTimeframe converts a raw string to a valid timeframe or the base.
func NormalizeTimeframe(s string) Timeframe {
	tf := Timeframe(s)
	if tf.Valid() {
		return tf
	}
	return TF5m
}

// PairLabel names a source→target ladder pair for coherence reports.
func PairLabel(source, target Timeframe) string {
	return string(source) + "->" + string(target)
}
