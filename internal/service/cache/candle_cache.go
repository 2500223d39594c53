package cache

import (
	"container/heap"
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"CandleGrid/internal/domain/models"
	pkgcache "CandleGrid/pkg/cache"
	applogger "CandleGrid/pkg/logger"
)

// Config holds cache manager tunables. UseIndex persists the disk metadata
// index across restarts; without it the disk tier starts cold.
type Config struct {
	Dir             string
	MaxSizeMB       int
	CleanupInterval time.Duration
	Compression     bool
	UseIndex        bool
}

type memEntry struct {
	meta    entryMeta
	data    map[string]models.SymbolSeries
	heapIdx int
}

type hitRecorder interface {
	RecordCacheHit(tf string)
	RecordCacheMiss(tf string)
}

// CandleCache memoizes aligned results keyed by (symbols, timeframe, range)
// with per-timeframe TTL. Layers: in-memory map, serialized disk blobs with
// a metadata side index, and optionally a shared Redis tier. One lock guards
// the in-memory map; a second guards disk metadata so the expiry sweep never
// blocks hot-path reads.
type CandleCache struct {
	cfg Config

	mu         sync.Mutex
	entries    map[string]*memEntry
	lru        accessHeap
	totalBytes int64

	diskMu sync.Mutex
	disk   *diskIndex

	shared pkgcache.Service // optional, may be nil

	hits   atomic.Uint64
	misses atomic.Uint64

	log     *applogger.Logger
	metrics hitRecorder
	now     func() time.Time

	done      chan struct{}
	sweeperWg sync.WaitGroup
}

// New builds the cache manager. shared may be nil when no Redis tier is
// configured; metrics may be nil in tests.
func New(cfg Config, shared pkgcache.Service, log *applogger.Logger, metrics hitRecorder) (*CandleCache, error) {
	if cfg.MaxSizeMB <= 0 {
		cfg.MaxSizeMB = 1000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	disk, err := newDiskIndex(cfg.Dir, cfg.Compression, cfg.UseIndex)
	if err != nil {
		return nil, err
	}
	return &CandleCache{
		cfg:     cfg,
		entries: make(map[string]*memEntry),
		disk:    disk,
		shared:  shared,
		log:     log,
		metrics: metrics,
		now:     time.Now,
		done:    make(chan struct{}),
	}, nil
}

// Get checks memory, then disk (promoting a hit into memory), then the
// shared tier. A miss returns (nil, false), never an error.
func (c *CandleCache) Get(ctx context.Context, symbols []string, tf models.Timeframe, start, end time.Time) (map[string]models.SymbolSeries, bool) {
	key := Key(symbols, tf, start, end)
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if now.Before(e.meta.ExpiresAt) {
			e.meta.AccessCount++
			e.meta.LastAccessed = now
			if e.heapIdx >= 0 {
				heap.Fix(&c.lru, e.heapIdx)
			}
			data := e.data
			c.mu.Unlock()
			c.recordHit(tf)
			return data, true
		}
		c.removeEntryLocked(e)
	}
	c.mu.Unlock()

	c.diskMu.Lock()
	blob, ok := c.disk.read(key, now)
	c.diskMu.Unlock()
	if ok {
		c.promote(blob.Meta, blob.Data)
		c.recordHit(tf)
		return blob.Data, true
	}

	if c.shared != nil {
		var sharedBlob diskBlob
		if err := c.shared.Get(ctx, key, &sharedBlob); err == nil && now.Before(sharedBlob.Meta.ExpiresAt) {
			c.promote(sharedBlob.Meta, sharedBlob.Data)
			c.recordHit(tf)
			return sharedBlob.Data, true
		}
	}

	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheMiss(string(tf))
	}
	return nil, false
}

// Set stores data under a key derived from the actual min/max timestamps in
// data, so incomplete fetches never satisfy a broader request later. Expiry
// is fixed at creation from the per-timeframe TTL table.
func (c *CandleCache) Set(ctx context.Context, symbols []string, tf models.Timeframe, data map[string]models.SymbolSeries) error {
	start, end, ok := DataSpan(data)
	if !ok {
		return nil // nothing cacheable
	}
	now := c.now()
	meta := entryMeta{
		Key:          Key(symbols, tf, start, end),
		Timeframe:    string(tf),
		Symbols:      sortedCopy(symbols),
		CreatedAt:    now,
		ExpiresAt:    now.Add(tf.TTL()),
		AccessCount:  0,
		LastAccessed: now,
		SizeBytes:    estimateSize(data),
		Status:       statusValid,
	}

	c.storeInMemory(meta, data)

	c.diskMu.Lock()
	err := c.disk.write(meta, data)
	c.diskMu.Unlock()
	if err != nil && c.log != nil {
		c.log.Warn("disk cache write failed", applogger.String("key", meta.Key), applogger.Error(err))
	}

	if c.shared != nil {
		if err := c.shared.Set(ctx, meta.Key, diskBlob{Meta: meta, Data: data}, tf.TTL()); err != nil && c.log != nil {
			c.log.Warn("shared cache write failed", applogger.Error(err))
		}
	}
	return nil
}

func (c *CandleCache) storeInMemory(meta entryMeta, data map[string]models.SymbolSeries) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.entries[meta.Key]; ok {
		c.removeEntryLocked(old)
	}
	e := &memEntry{meta: meta, data: data}
	c.entries[meta.Key] = e
	heap.Push(&c.lru, e)
	c.totalBytes += meta.SizeBytes
	c.evictIfNeededLocked()
}

func (c *CandleCache) promote(meta entryMeta, data map[string]models.SymbolSeries) {
	meta.LastAccessed = c.now()
	c.storeInMemory(meta, data)
}

// evictIfNeededLocked drops the oldest ~20% of entries by last access when
// the in-memory budget is exceeded. Approximate LRU on purpose: entries are
// derived data, cheaply recomputable.
func (c *CandleCache) evictIfNeededLocked() {
	budget := int64(c.cfg.MaxSizeMB) * 1024 * 1024
	if c.totalBytes <= budget {
		return
	}
	target := len(c.entries) / 5
	if target < 1 {
		target = 1
	}
	evicted := 0
	for evicted < target && c.lru.Len() > 0 {
		e := heap.Pop(&c.lru).(*memEntry)
		delete(c.entries, e.meta.Key)
		c.totalBytes -= e.meta.SizeBytes
		evicted++
	}
	if c.log != nil {
		c.log.Debug("cache eviction pass", applogger.Int("evicted", evicted))
	}
}

func (c *CandleCache) removeEntryLocked(e *memEntry) {
	if e.heapIdx >= 0 {
		heap.Remove(&c.lru, e.heapIdx)
	}
	delete(c.entries, e.meta.Key)
	c.totalBytes -= e.meta.SizeBytes
}

// InvalidateTimeframe removes every entry whose timeframe matches, across
// all layers. Used after a re-alignment or backfill changed history.
func (c *CandleCache) InvalidateTimeframe(ctx context.Context, tf models.Timeframe) int {
	var keys []string

	c.mu.Lock()
	for key, e := range c.entries {
		if e.meta.Timeframe == string(tf) {
			c.removeEntryLocked(e)
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	c.diskMu.Lock()
	diskKeys := c.disk.invalidateTimeframe(string(tf))
	c.diskMu.Unlock()

	seen := make(map[string]bool, len(keys)+len(diskKeys))
	for _, k := range append(keys, diskKeys...) {
		seen[k] = true
	}
	if c.shared != nil && len(seen) > 0 {
		all := make([]string, 0, len(seen))
		for k := range seen {
			all = append(all, k)
		}
		if err := c.shared.Delete(ctx, all...); err != nil && c.log != nil {
			c.log.Warn("shared cache invalidate failed", applogger.Error(err))
		}
	}
	if c.log != nil {
		c.log.Info("timeframe invalidated",
			applogger.String("timeframe", string(tf)),
			applogger.Int("entries", len(seen)),
		)
	}
	return len(seen)
}

// CleanupExpired removes entries past their expiry plus orphaned disk blobs.
// Lifetime hit counters are untouched.
func (c *CandleCache) CleanupExpired() int {
	now := c.now()
	removed := 0

	c.mu.Lock()
	for _, e := range c.entries {
		if now.After(e.meta.ExpiresAt) {
			c.removeEntryLocked(e)
			removed++
		}
	}
	c.mu.Unlock()

	c.diskMu.Lock()
	removed += c.disk.sweep(now)
	c.diskMu.Unlock()
	return removed
}

// StartSweeper launches the periodic expiry sweep. Stops when Close is
// called; no bare sleeps, so shutdown is prompt.
func (c *CandleCache) StartSweeper() {
	c.sweeperWg.Add(1)
	go func() {
		defer c.sweeperWg.Done()
		ticker := time.NewTicker(c.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				n := c.CleanupExpired()
				if n > 0 && c.log != nil {
					c.log.Debug("cache sweep", applogger.Int("removed", n))
				}
			case <-c.done:
				return
			}
		}
	}()
}

// Statistics reports lifetime counters and the current inventory.
func (c *CandleCache) Statistics() models.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	stats := models.CacheStats{Hits: hits, Misses: misses}
	if hits+misses > 0 {
		stats.HitRate = float64(hits) / float64(hits+misses)
	}

	tfSet := make(map[string]bool)
	symbolSet := make(map[string]bool)

	c.mu.Lock()
	stats.Entries = len(c.entries)
	stats.SizeMB = float64(c.totalBytes) / (1024 * 1024)
	now := c.now()
	for _, e := range c.entries {
		tfSet[e.meta.Timeframe] = true
		for _, s := range e.meta.Symbols {
			symbolSet[s] = true
		}
		if now.After(e.meta.ExpiresAt) {
			stats.Expired++
		}
	}
	c.mu.Unlock()

	c.diskMu.Lock()
	for _, meta := range c.disk.entries {
		tfSet[meta.Timeframe] = true
		for _, s := range meta.Symbols {
			symbolSet[s] = true
		}
		if meta.Status != statusValid || now.After(meta.ExpiresAt) {
			stats.Expired++
		}
	}
	c.diskMu.Unlock()

	for tf := range tfSet {
		stats.Timeframes = append(stats.Timeframes, tf)
	}
	sort.Strings(stats.Timeframes)
	for s := range symbolSet {
		stats.Symbols = append(stats.Symbols, s)
	}
	sort.Strings(stats.Symbols)
	return stats
}

// Close stops the sweeper and the shared tier connection.
func (c *CandleCache) Close() error {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
	c.sweeperWg.Wait()
	if c.shared != nil {
		return c.shared.Close()
	}
	return nil
}

func (c *CandleCache) recordHit(tf models.Timeframe) {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.RecordCacheHit(string(tf))
	}
}

func sortedCopy(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}

// estimateSize approximates the in-memory footprint: six float64-width
// fields per candle plus per-series overhead.
func estimateSize(data map[string]models.SymbolSeries) int64 {
	var n int64
	for _, series := range data {
		n += int64(len(series.Candles))*48 + 128
	}
	return n
}
