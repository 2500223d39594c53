package models

import "time"

// AlignmentResult is produced by one alignment session. Immutable once
// returned; the coordinator that produced it owns it for the run.
type AlignmentResult struct {
	Success         bool                     `json:"success"`
	Aligned         map[string]SymbolSeries  `json:"aligned"`
	MasterTimeline  []time.Time              `json:"master_timeline"`
	Quality         float64                  `json:"alignment_quality"`
	CoherenceScores map[string]float64       `json:"coherence_scores,omitempty"`
	GapsDetected    map[string][]time.Time   `json:"gaps_detected,omitempty"`
	SessionID       string                   `json:"session_id"`
	ProcessingTime  time.Duration            `json:"processing_time"`
	Metadata        map[string]interface{}   `json:"metadata,omitempty"`
}

// AlignmentReport carries per-symbol quality from ValidateAlignment.
type AlignmentReport struct {
	OverallQuality float64                `json:"overall_quality"`
	PerSymbol      map[string]float64     `json:"per_symbol_quality"`
	Gaps           map[string][]time.Time `json:"gaps"`
	LowCoverage    []string               `json:"low_coverage,omitempty"`
}

// AggregateStats describes one aggregation pass to a higher timeframe.
// Partial windows are emitted but tracked here, not silently hidden.
type AggregateStats struct {
	SourceBars     int     `json:"source_bars"`
	Windows        int     `json:"windows"`
	PartialWindows int     `json:"partial_windows"`
	SpanCoverage   float64 `json:"span_coverage"`
}

// CoordinationError records one per-timeframe failure inside a coordinated
// run. Sibling timeframes keep processing.
type CoordinationError struct {
	Timeframe Timeframe `json:"timeframe"`
	Stage     string    `json:"stage"`
	Detail    string    `json:"detail"`
}

// CoordinationResult is produced once per coordinated run.
// Success is true only when Errors is empty; ProcessedTimeframes reflects
// whatever actually succeeded.
type CoordinationResult struct {
	Success             bool                           `json:"success"`
	ProcessedTimeframes []Timeframe                    `json:"processed_timeframes"`
	AlignmentResults    map[Timeframe]*AlignmentResult `json:"alignment_results,omitempty"`
	CoherenceScores     map[Timeframe]float64          `json:"coherence_scores,omitempty"`
	ProcessingTime      time.Duration                  `json:"processing_time"`
	Errors              []CoordinationError            `json:"errors,omitempty"`
	Metadata            map[string]interface{}         `json:"metadata,omitempty"`
}

// CoherenceIssue flags a ladder pair whose correlation fell below tolerance.
// An issue is advisory, not a failure.
type CoherenceIssue struct {
	Pair      string  `json:"pair"`
	Score     float64 `json:"score"`
	Tolerance float64 `json:"tolerance"`
}

// CoherenceReport scores cross-timeframe consistency. Pair scores are mean
// Pearson correlations of close prices over the pair's time overlap; pairs
// with zero overlap are omitted rather than scored 0.
type CoherenceReport struct {
	PairScores map[string]float64            `json:"pair_scores"`
	PerSymbol  map[string]map[string]float64 `json:"per_symbol,omitempty"`
	Overall    float64                       `json:"overall_coherence"`
	Issues     []CoherenceIssue              `json:"issues,omitempty"`
}

// StorageStats is advisory: approximate, not transactionally consistent
// with concurrent writers.
type StorageStats struct {
	HotRows          int64       `json:"hot_rows"`
	ColdFiles        int         `json:"cold_files"`
	ArchivedFiles    int         `json:"archived_files"`
	ArchivedRows     int64       `json:"archived_rows,omitempty"`
	TotalBytes       int64       `json:"total_bytes"`
	CompressionRatio float64     `json:"compression_ratio"`
	Symbols          []string    `json:"symbols"`
	Timeframes       []Timeframe `json:"timeframes"`
	OldestFile       time.Time   `json:"oldest_file,omitempty"`
	NewestFile       time.Time   `json:"newest_file,omitempty"`
}

// CacheStats exposes lifetime hit counters; the expiry sweep never resets them.
type CacheStats struct {
	Hits       uint64   `json:"hits"`
	Misses     uint64   `json:"misses"`
	HitRate    float64  `json:"hit_rate"`
	Entries    int      `json:"entries"`
	SizeMB     float64  `json:"size_mb"`
	Expired    int      `json:"expired"`
	Timeframes []string `json:"timeframes"`
	Symbols    []string `json:"symbols"`
}

// SessionEvent summarizes an alignment or coordination session for the
// external operation log.
type SessionEvent struct {
	SessionID  string    `json:"session_id"`
	Kind       string    `json:"kind"` // "alignment" or "coordination"
	Timeframes []string  `json:"timeframes"`
	Symbols    []string  `json:"symbols"`
	Success    bool      `json:"success"`
	Quality    float64   `json:"quality"`
	ErrorCount int       `json:"error_count"`
	Timestamp  time.Time `json:"timestamp"`
}
