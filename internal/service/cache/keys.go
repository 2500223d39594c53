package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"CandleGrid/internal/domain/models"
)

// Key derives the stable cache key for (symbols, timeframe, range): a hash
// of the sorted symbol list, the timeframe and the RFC3339 bounds, so symbol
// ordering never splits the cache.
func Key(symbols []string, tf models.Timeframe, start, end time.Time) string {
	sorted := append([]string(nil), symbols...)
	sort.Strings(sorted)
	h := sha1.New()
	h.Write([]byte(strings.Join(sorted, ",")))
	h.Write([]byte{'|'})
	h.Write([]byte(tf))
	h.Write([]byte{'|'})
	h.Write([]byte(start.UTC().Format(time.RFC3339)))
	h.Write([]byte{'|'})
	h.Write([]byte(end.UTC().Format(time.RFC3339)))
	return hex.EncodeToString(h.Sum(nil))
}

// DataSpan finds the actual min/max timestamps present in data. Keys for Set
// are derived from this span, not the requested range, so partially
// available data never produces false hits for the full range.
func DataSpan(data map[string]models.SymbolSeries) (start, end time.Time, ok bool) {
	for _, series := range data {
		s, e, has := series.Span()
		if !has {
			continue
		}
		if !ok || s.Before(start) {
			start = s
		}
		if !ok || e.After(end) {
			end = e
		}
		ok = true
	}
	return start, end, ok
}
