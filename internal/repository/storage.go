package repository

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"CandleGrid/internal/domain/models"
	applogger "CandleGrid/pkg/logger"
)

// StorageConfig holds hybrid storage tunables.
type StorageConfig struct {
	BasePath            string
	HotDataDays         int
	MaxWorkers          int
	BackupEnabled       bool
	BackupRetentionDays int
}

// Manager is the hybrid storage manager: candles younger than the hot
// cutoff live in the SQLite row store, older ones in compressed columnar
// files. The cutoff is recomputed from wall-clock time on every call, so
// data migrates between tier eligibility without an explicit step; the
// compaction pass re-tiers aged hot rows.
type Manager struct {
	cfg     StorageConfig
	hot     *HotStore
	cold    *ColdStore
	archive *CandleArchive // optional ClickHouse mirror
	log     *applogger.Logger
	metrics metricsRecorder

	mu  sync.Mutex // serializes writers; cold files must not interleave
	now func() time.Time
}

type metricsRecorder interface {
	RecordLatency(op string, seconds float64)
	RecordCandlesPersisted(tier, tf string, n int)
	RecordError(kind string)
}

// NewManager builds the hybrid manager rooted at cfg.BasePath.
func NewManager(cfg StorageConfig, log *applogger.Logger, metrics metricsRecorder) (*Manager, error) {
	if cfg.HotDataDays <= 0 {
		cfg.HotDataDays = 30
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 4
	}
	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("%w: storage base: %v", models.ErrStorageIO, err)
	}
	hot, err := NewHotStore(filepath.Join(cfg.BasePath, "hot.db"))
	if err != nil {
		return nil, err
	}
	cold, err := NewColdStore(cfg.BasePath)
	if err != nil {
		_ = hot.Close()
		return nil, err
	}
	return &Manager{
		cfg:     cfg,
		hot:     hot,
		cold:    cold,
		log:     log,
		metrics: metrics,
		now:     time.Now,
	}, nil
}

// SetArchive attaches the optional ClickHouse mirror for archived blocks.
func (m *Manager) SetArchive(a *CandleArchive) { m.archive = a }

func (m *Manager) hotCutoff() time.Time {
	return m.now().UTC().AddDate(0, 0, -m.cfg.HotDataDays)
}

// Store splits each series at the hot/cold cutoff and persists both slices.
// Hot rows upsert last-write-wins; cold slices write one file per day plus a
// combined multi-symbol file when more than one symbol is present.
func (m *Manager) Store(ctx context.Context, data map[string]models.SymbolSeries, tf models.Timeframe, sessionID string, meta map[string]interface{}) error {
	if len(data) == 0 || !tf.Valid() {
		return fmt.Errorf("%w: store needs data and a known timeframe", models.ErrInvalidInput)
	}
	start := m.now()
	cutoff := m.hotCutoff()

	m.mu.Lock()
	defer m.mu.Unlock()

	coldBatch := make(map[string][]models.Candle)
	var firstErr error
	for symbol, series := range data {
		var hotSlice, coldSlice []models.Candle
		for _, c := range series.Candles {
			if c.Ts.Before(cutoff) {
				coldSlice = append(coldSlice, c)
			} else {
				hotSlice = append(hotSlice, c)
			}
		}
		if err := m.hot.Upsert(ctx, symbol, tf, hotSlice, sessionID); err != nil {
			m.fail("store_hot", symbol, err, &firstErr)
			continue
		}
		if m.metrics != nil && len(hotSlice) > 0 {
			m.metrics.RecordCandlesPersisted("hot", string(tf), len(hotSlice))
		}
		if len(coldSlice) > 0 {
			coldBatch[symbol] = coldSlice
		}
	}

	// fan cold writes out per symbol; each symbol touches distinct files
	if len(coldBatch) > 0 {
		var wg sync.WaitGroup
		sem := make(chan struct{}, m.cfg.MaxWorkers)
		errCh := make(chan error, len(coldBatch))
		for symbol, candles := range coldBatch {
			wg.Add(1)
			sem <- struct{}{}
			go func(symbol string, candles []models.Candle) {
				defer wg.Done()
				defer func() { <-sem }()
				if err := m.cold.Write(symbol, tf, candles, sessionID); err != nil {
					errCh <- fmt.Errorf("%s: %w", symbol, err)
					return
				}
				if m.metrics != nil {
					m.metrics.RecordCandlesPersisted("cold", string(tf), len(candles))
				}
			}(symbol, candles)
		}
		wg.Wait()
		close(errCh)
		for err := range errCh {
			m.fail("store_cold", "", err, &firstErr)
		}
		if len(coldBatch) > 1 {
			if err := m.cold.WriteMulti(tf, coldBatch, sessionID); err != nil {
				m.fail("store_multi", "", err, &firstErr)
			}
		}
	}

	if err := m.hot.RecordSession(ctx, sessionID, tf, meta); err != nil {
		m.fail("record_session", "", err, &firstErr)
	}
	if m.metrics != nil {
		m.metrics.RecordLatency("store", time.Since(start).Seconds())
	}
	return firstErr
}

func (m *Manager) fail(op, symbol string, err error, firstErr *error) {
	if m.log != nil {
		m.log.Error("storage operation failed",
			applogger.String("op", op),
			applogger.String("symbol", symbol),
			applogger.Error(err),
		)
	}
	if m.metrics != nil {
		m.metrics.RecordError(models.ErrorKind(err))
	}
	if *firstErr == nil {
		*firstErr = err
	}
}

// Load merges the cold slice (before the cutoff) with the hot slice,
// de-duplicates by timestamp last-write-wins and sorts. The hot store is
// queried over the full range: rows that aged past the cutoff stay readable
// until the next compaction pass re-tiers them. A symbol with no data yields
// an empty series, never an error.
func (m *Manager) Load(ctx context.Context, symbols []string, tf models.Timeframe, start, end time.Time) (map[string]models.SymbolSeries, error) {
	if len(symbols) == 0 || !tf.Valid() || !start.Before(end) {
		return nil, fmt.Errorf("%w: load needs symbols, a known timeframe and start < end", models.ErrInvalidInput)
	}
	began := m.now()
	cutoff := m.hotCutoff()

	out := make(map[string]models.SymbolSeries, len(symbols))
	for _, symbol := range symbols {
		var candles []models.Candle
		if start.Before(cutoff) {
			coldEnd := end
			if coldEnd.After(cutoff) {
				coldEnd = cutoff
			}
			cold, err := m.cold.Read(symbol, tf, start, coldEnd)
			if err != nil {
				// a bad file never aborts the batch
				if m.log != nil {
					m.log.Warn("cold read failed", applogger.String("symbol", symbol), applogger.Error(err))
				}
			} else {
				candles = append(candles, cold...)
			}
		}
		hot, err := m.hot.Query(ctx, symbol, tf, start, end)
		if err != nil {
			if m.log != nil {
				m.log.Warn("hot read failed", applogger.String("symbol", symbol), applogger.Error(err))
			}
		} else {
			candles = append(candles, hot...)
		}
		merged := mergeCandles(nil, candles)
		sortCandles(merged)
		out[symbol] = models.SymbolSeries{Symbol: symbol, Timeframe: tf, Candles: merged}
	}
	if m.metrics != nil {
		m.metrics.RecordLatency("load", time.Since(began).Seconds())
	}
	return out, nil
}

// CompressOldData moves cold files older than the threshold into the archive
// tier; when a ClickHouse mirror is attached the moved blocks are inserted
// there for bulk scans. Re-running on archived files is a no-op.
func (m *Manager) CompressOldData(ctx context.Context, olderThanDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().UTC().AddDate(0, 0, -olderThanDays)
	blocks, err := m.cold.Archive(cutoff)
	if err != nil {
		return len(blocks), err
	}
	if m.archive != nil && len(blocks) > 0 {
		if err := m.archive.InsertBlocks(ctx, blocks); err != nil {
			// archive mirror is best effort; files already moved
			if m.log != nil {
				m.log.Warn("archive mirror insert failed", applogger.Error(err))
			}
		}
	}
	if m.log != nil && len(blocks) > 0 {
		m.log.Info("cold data archived",
			applogger.Int("files", len(blocks)),
			applogger.Time("cutoff", cutoff),
		)
	}
	return len(blocks), nil
}

// CleanupExpiredData hard-deletes rows and files older than retention.
// Irreversible; every deletion is logged.
func (m *Manager) CleanupExpiredData(ctx context.Context, retentionDays int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)
	files, err := m.cold.Cleanup(cutoff)
	if err != nil {
		return files, err
	}
	rows, err := m.hot.DeleteBefore(ctx, cutoff)
	if m.log != nil {
		m.log.Info("expired data removed",
			applogger.Int("files", files),
			applogger.Int64("rows", rows),
			applogger.Time("cutoff", cutoff),
		)
	}
	return files + int(rows), err
}

// CompactHot re-tiers hot rows that have aged past the cutoff into cold
// files. Without this pass the hot store would grow without bound.
func (m *Manager) CompactHot(ctx context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.hotCutoff()
	aged, err := m.hot.QueryBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	moved := 0
	for tf, perSymbol := range aged {
		for symbol, candles := range perSymbol {
			if err := m.cold.Write(symbol, tf, candles, "compaction"); err != nil {
				return moved, err
			}
			moved += len(candles)
		}
	}
	if moved > 0 {
		if _, err := m.hot.DeleteBefore(ctx, cutoff); err != nil {
			return moved, err
		}
		if m.log != nil {
			m.log.Info("hot tier compacted", applogger.Int("candles", moved))
		}
	}
	return moved, nil
}

// Backup copies the hot store file and the whole cold tree into a named
// directory. Copy-then-swap per file; readers are not interrupted.
func (m *Manager) Backup(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if name == "" {
		name = m.now().UTC().Format("20060102T150405")
	}
	dst := filepath.Join(m.cfg.BasePath, "backups", name)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("%w: backup dir: %v", models.ErrStorageIO, err)
	}
	if err := copyFile(filepath.Join(m.cfg.BasePath, "hot.db"), filepath.Join(dst, "hot.db")); err != nil {
		return err
	}
	for _, tree := range []string{"cold", "archive"} {
		src := filepath.Join(m.cfg.BasePath, tree)
		err := filepath.Walk(src, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			rel, _ := filepath.Rel(m.cfg.BasePath, path)
			target := filepath.Join(dst, rel)
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			return copyFile(path, target)
		})
		if err != nil {
			return fmt.Errorf("%w: backup %s: %v", models.ErrStorageIO, tree, err)
		}
	}
	if m.log != nil {
		m.log.Info("backup complete", applogger.String("name", name))
	}
	return nil
}

// PruneBackups drops backups older than the retention window.
func (m *Manager) PruneBackups() (int, error) {
	root := filepath.Join(m.cfg.BasePath, "backups")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: list backups: %v", models.ErrStorageIO, err)
	}
	cutoff := m.now().AddDate(0, 0, -m.cfg.BackupRetentionDays)
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || !info.IsDir() {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.RemoveAll(filepath.Join(root, e.Name())); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Statistics aggregates advisory numbers across tiers.
func (m *Manager) Statistics(ctx context.Context) (models.StorageStats, error) {
	var stats models.StorageStats

	symbols, tfs, rows, err := m.hot.Inventory(ctx)
	if err != nil {
		return stats, err
	}
	stats.HotRows = rows
	symbolSet := make(map[string]bool)
	tfSet := make(map[models.Timeframe]bool)
	for _, s := range symbols {
		symbolSet[s] = true
	}
	for _, tf := range tfs {
		tfSet[tf] = true
	}

	if m.archive != nil {
		n, err := m.archive.Count(ctx)
		if err != nil {
			// mirror outage must not break local statistics
			if m.log != nil {
				m.log.Warn("archive count failed", applogger.Error(err))
			}
		} else {
			stats.ArchivedRows = n
		}
	}

	coldFiles, archived, bytes, rawBytes, coldSymbols, coldTfs, oldest, newest := m.cold.Inventory()
	stats.ColdFiles = coldFiles
	stats.ArchivedFiles = archived
	stats.TotalBytes = bytes
	if bytes > 0 {
		stats.CompressionRatio = float64(rawBytes) / float64(bytes)
	}
	stats.OldestFile = oldest
	stats.NewestFile = newest
	for s := range coldSymbols {
		symbolSet[s] = true
	}
	for tf := range coldTfs {
		tfSet[tf] = true
	}

	for s := range symbolSet {
		stats.Symbols = append(stats.Symbols, s)
	}
	sort.Strings(stats.Symbols)
	for tf := range tfSet {
		stats.Timeframes = append(stats.Timeframes, tf)
	}
	sort.Slice(stats.Timeframes, func(i, j int) bool {
		return stats.Timeframes[i].Step() < stats.Timeframes[j].Step()
	})
	return stats, nil
}

// Health checks the hot tier connection.
func (m *Manager) Health(ctx context.Context) error {
	return m.hot.Health(ctx)
}

// Close flushes and closes the underlying stores.
func (m *Manager) Close() error {
	return m.hot.Close()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", models.ErrStorageIO, src, err)
	}
	defer in.Close()
	tmp := dst + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", models.ErrStorageIO, tmp, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: copy %s: %v", models.ErrStorageIO, src, err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", models.ErrStorageIO, tmp, err)
	}
	return os.Rename(tmp, dst)
}
