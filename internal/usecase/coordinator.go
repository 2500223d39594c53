package usecase

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"CandleGrid/internal/domain/models"
	domrepo "CandleGrid/internal/domain/repository"
	"CandleGrid/internal/services/align"
	applogger "CandleGrid/pkg/logger"
)

// CoordinatorConfig holds the quality and coherence tunables. The quality
// weights and per-pair tolerances are configurable constants, not baked-in
// truths; the defaults mirror long-standing operational values.
type CoordinatorConfig struct {
	BaseTimeframe          models.Timeframe
	Timeframes             []models.Timeframe
	SpanCoverageWeight     float64
	PriceConsistencyWeight float64
	MinAggregationQuality  float64
	Tolerances             map[string]float64
}

func (c *CoordinatorConfig) applyDefaults() {
	if c.BaseTimeframe == "" {
		c.BaseTimeframe = models.TF5m
	}
	if len(c.Timeframes) == 0 {
		c.Timeframes = models.Ladder()
	}
	if c.SpanCoverageWeight <= 0 {
		c.SpanCoverageWeight = 0.3
	}
	if c.PriceConsistencyWeight <= 0 {
		c.PriceConsistencyWeight = 0.7
	}
	if c.MinAggregationQuality <= 0 {
		c.MinAggregationQuality = 0.8
	}
}

func (c *CoordinatorConfig) tolerance(source models.Timeframe) float64 {
	if tol, ok := c.Tolerances[string(source)]; ok {
		return tol
	}
	return source.CoherenceTolerance()
}

// Coordinator drives end-to-end multi-timeframe processing: fetch and align
// the base timeframe, derive each higher timeframe from its ladder source,
// persist, and score cross-timeframe coherence. Per-timeframe failures are
// collected, never propagated to sibling timeframes.
type Coordinator struct {
	cfg     CoordinatorConfig
	engine  *align.Engine
	store   domrepo.CandleStore
	cache   domrepo.CandleCache
	source  domrepo.DataSource
	events  domrepo.EventPublisher
	metrics domrepo.Metrics
	log     *applogger.Logger
	now     func() time.Time
}

func NewCoordinator(
	cfg CoordinatorConfig,
	engine *align.Engine,
	store domrepo.CandleStore,
	cache domrepo.CandleCache,
	source domrepo.DataSource,
	events domrepo.EventPublisher,
	metrics domrepo.Metrics,
	log *applogger.Logger,
) *Coordinator {
	cfg.applyDefaults()
	return &Coordinator{
		cfg:     cfg,
		engine:  engine,
		store:   store,
		cache:   cache,
		source:  source,
		events:  events,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// ProcessAllTimeframes runs one coordinated pass over the ladder for the
// given symbols. Success is true only when Errors is empty, but
// ProcessedTimeframes always reflects whatever did succeed.
func (c *Coordinator) ProcessAllTimeframes(ctx context.Context, symbols []string, daysBack int, useAggregation bool) *models.CoordinationResult {
	started := c.now()
	result := &models.CoordinationResult{
		AlignmentResults: make(map[models.Timeframe]*models.AlignmentResult),
		CoherenceScores:  make(map[models.Timeframe]float64),
		Metadata: map[string]interface{}{
			"symbols":   symbols,
			"days_back": daysBack,
		},
	}
	finish := func() *models.CoordinationResult {
		result.ProcessingTime = c.now().Sub(started)
		result.Success = len(result.Errors) == 0
		c.publishEvent(ctx, symbols, result)
		return result
	}

	if len(symbols) == 0 || daysBack <= 0 {
		result.Errors = append(result.Errors, models.CoordinationError{
			Timeframe: c.cfg.BaseTimeframe,
			Stage:     "init",
			Detail:    models.ErrInvalidInput.Error(),
		})
		return finish()
	}

	end := c.now().UTC().Truncate(c.cfg.BaseTimeframe.Step())
	start := end.AddDate(0, 0, -daysBack)
	sessionID := uuid.NewString()

	// FETCH_BASE + ALIGN_BASE
	baseResult, err := c.processBase(ctx, symbols, start, end, sessionID)
	if err != nil {
		result.Errors = append(result.Errors, models.CoordinationError{
			Timeframe: c.cfg.BaseTimeframe,
			Stage:     "align_base",
			Detail:    err.Error(),
		})
		return finish()
	}
	result.AlignmentResults[c.cfg.BaseTimeframe] = baseResult
	result.ProcessedTimeframes = append(result.ProcessedTimeframes, c.cfg.BaseTimeframe)
	result.CoherenceScores[c.cfg.BaseTimeframe] = baseResult.Quality

	if err := c.store.Store(ctx, baseResult.Aligned, c.cfg.BaseTimeframe, sessionID, map[string]interface{}{
		"quality": baseResult.Quality,
	}); err != nil {
		result.Errors = append(result.Errors, models.CoordinationError{
			Timeframe: c.cfg.BaseTimeframe,
			Stage:     "persist_base",
			Detail:    err.Error(),
		})
	}

	if !useAggregation {
		return finish()
	}

	// ladder walk: AGGREGATE -> VALIDATE -> PERSIST per derived timeframe
	previous := map[models.Timeframe]map[string]models.SymbolSeries{
		c.cfg.BaseTimeframe: baseResult.Aligned,
	}
	for _, tf := range c.derivedLadder() {
		source, _, _ := tf.AggregationSource()
		sourceData, ok := previous[source]
		if !ok {
			result.Errors = append(result.Errors, models.CoordinationError{
				Timeframe: tf,
				Stage:     "aggregate",
				Detail:    fmt.Sprintf("source timeframe %s missing from run", source),
			})
			continue
		}

		derived, quality, err := c.aggregateTimeframe(sourceData, tf)
		if err != nil {
			result.Errors = append(result.Errors, models.CoordinationError{
				Timeframe: tf,
				Stage:     "validate",
				Detail:    err.Error(),
			})
			if c.metrics != nil {
				c.metrics.RecordError(models.ErrorKind(err))
			}
			continue
		}

		if err := c.store.Store(ctx, derived, tf, sessionID, map[string]interface{}{
			"aggregated_from": string(source),
			"quality":         quality,
		}); err != nil {
			result.Errors = append(result.Errors, models.CoordinationError{
				Timeframe: tf,
				Stage:     "persist",
				Detail:    err.Error(),
			})
			continue
		}
		if c.cache != nil {
			c.cache.InvalidateTimeframe(ctx, tf)
		}

		previous[tf] = derived
		result.ProcessedTimeframes = append(result.ProcessedTimeframes, tf)
		result.CoherenceScores[tf] = quality
	}

	report := c.ValidateTimeframeCoherence(previous)
	result.Metadata["coherence"] = report
	return finish()
}

func (c *Coordinator) processBase(ctx context.Context, symbols []string, start, end time.Time, sessionID string) (*models.AlignmentResult, error) {
	began := c.now()
	tf := c.cfg.BaseTimeframe
	timeline := c.engine.CreateMasterTimeline(tf, start, end)
	if len(timeline) == 0 {
		return nil, fmt.Errorf("%w: degenerate range %s..%s", models.ErrInvalidInput, start, end)
	}

	stored, err := c.store.Load(ctx, symbols, tf, start, end)
	if err != nil {
		return nil, err
	}

	raw := make(map[string][]models.Candle, len(symbols))
	for _, symbol := range symbols {
		candles := stored[symbol].Candles
		// insufficient history: fall back to the external source
		if len(candles) < len(timeline)/2 && c.source != nil {
			fetched, err := c.source.FetchCandles(ctx, symbol, tf, start, end)
			if err != nil {
				if c.log != nil {
					c.log.Warn("source fetch failed",
						applogger.String("symbol", symbol),
						applogger.Error(err),
					)
				}
			} else if len(fetched) > len(candles) {
				candles = fetched
			}
		}
		raw[symbol] = candles
	}

	aligned := c.engine.AlignSymbolData(raw, timeline, tf)
	report := c.engine.ValidateAlignment(aligned, timeline)
	return &models.AlignmentResult{
		Success:        report.OverallQuality > 0,
		Aligned:        aligned,
		MasterTimeline: timeline,
		Quality:        report.OverallQuality,
		GapsDetected:   report.Gaps,
		SessionID:      sessionID,
		ProcessingTime: c.now().Sub(began),
		Metadata: map[string]interface{}{
			"per_symbol_quality": report.PerSymbol,
			"low_coverage":       report.LowCoverage,
		},
	}, nil
}

// aggregateTimeframe derives every symbol and validates the result:
// quality = spanWeight×span-coverage + priceWeight×price-consistency.
func (c *Coordinator) aggregateTimeframe(sourceData map[string]models.SymbolSeries, tf models.Timeframe) (map[string]models.SymbolSeries, float64, error) {
	derived := make(map[string]models.SymbolSeries, len(sourceData))
	var qualitySum float64
	scored := 0
	for symbol, series := range sourceData {
		agg, stats := c.engine.AggregateToHigherTimeframe(series, tf)
		derived[symbol] = agg
		if stats.Windows == 0 {
			continue
		}
		consistency := priceConsistency(series, agg)
		qualitySum += c.cfg.SpanCoverageWeight*stats.SpanCoverage + c.cfg.PriceConsistencyWeight*consistency
		scored++
	}
	if scored == 0 {
		return derived, 0, fmt.Errorf("%w: no source bars for %s", models.ErrNoData, tf)
	}
	quality := qualitySum / float64(scored)
	if quality < c.cfg.MinAggregationQuality {
		return derived, quality, fmt.Errorf("%w: %s quality %.3f below %.3f",
			models.ErrAggregationQuality, tf, quality, c.cfg.MinAggregationQuality)
	}
	return derived, quality, nil
}

// priceConsistency checks the OHLC reduction against the source window by
// window: the share of windows whose high/low actually bound the source.
func priceConsistency(source, derived models.SymbolSeries) float64 {
	if derived.Empty() {
		return 0
	}
	step := derived.Timeframe.Step()
	sourceByBucket := make(map[int64][]models.Candle)
	for _, c := range source.Candles {
		b := c.Ts.UTC().Truncate(step).Unix()
		sourceByBucket[b] = append(sourceByBucket[b], c)
	}
	consistent := 0
	for _, d := range derived.Candles {
		window := sourceByBucket[d.Ts.Unix()]
		if len(window) == 0 {
			continue
		}
		hi, lo := window[0].High, window[0].Low
		for _, w := range window[1:] {
			hi = math.Max(hi, w.High)
			lo = math.Min(lo, w.Low)
		}
		if d.High == hi && d.Low == lo && d.Open == window[0].Open && d.Close == window[len(window)-1].Close {
			consistent++
		}
	}
	return float64(consistent) / float64(len(derived.Candles))
}

// AutoAggregateTimeframes walks the ladder once from base data without
// persistence, for ad-hoc derivation.
func (c *Coordinator) AutoAggregateTimeframes(base map[string]models.SymbolSeries) map[models.Timeframe]map[string]models.SymbolSeries {
	out := map[models.Timeframe]map[string]models.SymbolSeries{
		c.cfg.BaseTimeframe: base,
	}
	for _, tf := range c.derivedLadder() {
		source, _, _ := tf.AggregationSource()
		sourceData, ok := out[source]
		if !ok {
			continue
		}
		derived := make(map[string]models.SymbolSeries, len(sourceData))
		for symbol, series := range sourceData {
			agg, _ := c.engine.AggregateToHigherTimeframe(series, tf)
			derived[symbol] = agg
		}
		out[tf] = derived
	}
	return out
}

// ValidateTimeframeCoherence scores each ladder pair with the mean Pearson
// correlation of close prices over the pair's time overlap. Pairs with no
// overlapping data are omitted, not scored as zero. Scores below the pair's
// tolerance become issues, never failures.
func (c *Coordinator) ValidateTimeframeCoherence(data map[models.Timeframe]map[string]models.SymbolSeries) *models.CoherenceReport {
	report := &models.CoherenceReport{
		PairScores: make(map[string]float64),
		PerSymbol:  make(map[string]map[string]float64),
	}

	var pairSum float64
	pairs := 0
	for _, target := range c.derivedLadder() {
		source, _, _ := target.AggregationSource()
		sourceData, okS := data[source]
		targetData, okT := data[target]
		if !okS || !okT {
			continue
		}
		label := models.PairLabel(source, target)

		var symbolSum float64
		scored := 0
		for symbol, src := range sourceData {
			dst, ok := targetData[symbol]
			if !ok {
				continue
			}
			r, ok := pairCorrelation(src, dst)
			if !ok {
				continue
			}
			if report.PerSymbol[label] == nil {
				report.PerSymbol[label] = make(map[string]float64)
			}
			report.PerSymbol[label][symbol] = r
			symbolSum += r
			scored++
		}
		if scored == 0 {
			continue
		}
		score := symbolSum / float64(scored)
		report.PairScores[label] = score
		if c.metrics != nil {
			c.metrics.RecordCoherence(label, score)
		}
		pairSum += score
		pairs++

		if tol := c.cfg.tolerance(source); score < 1-tol {
			report.Issues = append(report.Issues, models.CoherenceIssue{
				Pair:      label,
				Score:     score,
				Tolerance: tol,
			})
			if c.log != nil {
				c.log.Warn("coherence below tolerance",
					applogger.String("pair", label),
					applogger.Float64("score", score),
					applogger.Float64("tolerance", tol),
				)
			}
		}
	}
	if pairs > 0 {
		report.Overall = pairSum / float64(pairs)
	}
	return report
}

// pairCorrelation resamples the source onto the target buckets (taking each
// bucket's last close) and correlates over the overlap.
func pairCorrelation(source, target models.SymbolSeries) (float64, bool) {
	if source.Empty() || target.Empty() {
		return 0, false
	}
	step := target.Timeframe.Step()
	lastClose := make(map[int64]float64)
	for _, c := range source.Candles {
		lastClose[c.Ts.UTC().Truncate(step).Unix()] = c.Close
	}
	var a, b []float64
	for _, c := range target.Candles {
		if v, ok := lastClose[c.Ts.Unix()]; ok {
			a = append(a, v)
			b = append(b, c.Close)
		}
	}
	return align.Pearson(a, b)
}

func (c *Coordinator) derivedLadder() []models.Timeframe {
	allowed := make(map[models.Timeframe]bool, len(c.cfg.Timeframes))
	for _, tf := range c.cfg.Timeframes {
		allowed[tf] = true
	}
	var out []models.Timeframe
	for _, tf := range models.Ladder() {
		if tf == c.cfg.BaseTimeframe || !allowed[tf] {
			continue
		}
		out = append(out, tf)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Step() < out[j].Step() })
	return out
}

func (c *Coordinator) publishEvent(ctx context.Context, symbols []string, result *models.CoordinationResult) {
	if c.events == nil {
		return
	}
	tfs := make([]string, 0, len(result.ProcessedTimeframes))
	for _, tf := range result.ProcessedTimeframes {
		tfs = append(tfs, string(tf))
	}
	var quality float64
	if base, ok := result.AlignmentResults[c.cfg.BaseTimeframe]; ok {
		quality = base.Quality
	}
	ev := models.SessionEvent{
		SessionID:  sessionIDOf(result),
		Kind:       "coordination",
		Timeframes: tfs,
		Symbols:    symbols,
		Success:    result.Success,
		Quality:    quality,
		ErrorCount: len(result.Errors),
		Timestamp:  c.now().UTC(),
	}
	if err := c.events.PublishSession(ctx, ev); err != nil && c.log != nil {
		c.log.Warn("session event publish failed", applogger.Error(err))
	}
}

func sessionIDOf(result *models.CoordinationResult) string {
	for _, ar := range result.AlignmentResults {
		if ar.SessionID != "" {
			return ar.SessionID
		}
	}
	return uuid.NewString()
}
