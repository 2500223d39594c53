package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cacheHits        *prometheus.CounterVec
	cacheMisses      *prometheus.CounterVec
	errorsTotal      *prometheus.CounterVec
	candlesPersisted *prometheus.CounterVec
	coherence        *prometheus.GaugeVec
	latency          *prometheus.HistogramVec
}

// New creates a new Prometheus metrics recorder.
func New() *Recorder {
	return &Recorder{
		cacheHits: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlegrid_cache_hits_total",
				Help: "Cache hits by timeframe",
			},
			[]string{"timeframe"},
		),
		cacheMisses: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlegrid_cache_misses_total",
				Help: "Cache misses by timeframe",
			},
			[]string{"timeframe"},
		),
		errorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlegrid_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		candlesPersisted: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "candlegrid_candles_persisted_total",
				Help: "Candles written by storage tier and timeframe",
			},
			[]string{"tier", "timeframe"},
		),
		coherence: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "candlegrid_coherence_score",
				Help: "Latest cross-timeframe coherence score per ladder pair",
			},
			[]string{"pair"},
		),
		latency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "candlegrid_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}
}

// RecordCacheHit records a cache hit for a timeframe.
func (r *Recorder) RecordCacheHit(tf string) {
	r.cacheHits.WithLabelValues(tf).Inc()
}

// RecordCacheMiss records a cache miss for a timeframe.
func (r *Recorder) RecordCacheMiss(tf string) {
	r.cacheMisses.WithLabelValues(tf).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordCandlesPersisted counts candles written to a storage tier.
func (r *Recorder) RecordCandlesPersisted(tier, tf string, n int) {
	r.candlesPersisted.WithLabelValues(tier, tf).Add(float64(n))
}

// RecordCoherence records the latest score for a ladder pair.
func (r *Recorder) RecordCoherence(pair string, score float64) {
	r.coherence.WithLabelValues(pair).Set(score)
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}
