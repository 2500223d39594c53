package models

import "errors"

// Error kinds let callers distinguish "no data" from "I/O failure" from
// "invalid input" instead of collapsing every failure into an empty result.
var (
	// ErrInvalidInput covers degenerate ranges, unknown timeframes and
	// empty symbol lists. Detected early, no side effects.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoData means the requested range genuinely holds nothing.
	ErrNoData = errors.New("no data")

	// ErrStorageIO wraps file or row read/write failures. Caught per symbol
	// so one bad file never aborts a multi-symbol batch.
	ErrStorageIO = errors.New("storage i/o failure")

	// ErrAggregationQuality marks a derived timeframe that failed its
	// validation tolerance. Recorded as an issue, processing continues.
	ErrAggregationQuality = errors.New("aggregation quality below tolerance")
)

// ErrorKind classifies err into one of the domain kinds for logging and
// metrics labels.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrNoData):
		return "no_data"
	case errors.Is(err, ErrStorageIO):
		return "storage_io"
	case errors.Is(err, ErrAggregationQuality):
		return "aggregation_quality"
	default:
		return "internal"
	}
}
