package repository

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/s2"

	"CandleGrid/internal/domain/models"
	"CandleGrid/pkg/util"
)

const coldFileExt = ".cg"

// ColdBlock is the columnar on-disk representation of one symbol's candles:
// parallel arrays reindexed by timestamp, block-compressed as a unit.
type ColdBlock struct {
	Symbol    string    `json:"symbol"`
	Timeframe string    `json:"timeframe"`
	Ts        []int64   `json:"ts"`
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
	SessionID string    `json:"session_id,omitempty"`
}

// Candles converts the columnar block back to row form.
func (b ColdBlock) Candles() []models.Candle {
	out := make([]models.Candle, len(b.Ts))
	for i := range b.Ts {
		out[i] = models.Candle{
			Ts:     time.Unix(b.Ts[i], 0).UTC(),
			Open:   b.Open[i],
			High:   b.High[i],
			Low:    b.Low[i],
			Close:  b.Close[i],
			Volume: b.Volume[i],
		}
	}
	return out
}

func blockFromCandles(symbol string, tf models.Timeframe, candles []models.Candle, sessionID string) ColdBlock {
	b := ColdBlock{
		Symbol:    symbol,
		Timeframe: string(tf),
		Ts:        make([]int64, len(candles)),
		Open:      make([]float64, len(candles)),
		High:      make([]float64, len(candles)),
		Low:       make([]float64, len(candles)),
		Close:     make([]float64, len(candles)),
		Volume:    make([]float64, len(candles)),
		SessionID: sessionID,
	}
	for i, c := range candles {
		b.Ts[i] = c.Ts.UTC().Unix()
		b.Open[i] = c.Open
		b.High[i] = c.High
		b.Low[i] = c.Low
		b.Close[i] = c.Close
		b.Volume[i] = c.Volume
	}
	return b
}

type multiBlock struct {
	Timeframe string      `json:"timeframe"`
	Blocks    []ColdBlock `json:"blocks"`
}

// ColdStore is the compressed columnar tier: one file per
// (symbol, timeframe, first day), append-mostly, immutable once archived.
type ColdStore struct {
	baseDir string
}

// NewColdStore prepares the cold tier directory tree under baseDir.
func NewColdStore(baseDir string) (*ColdStore, error) {
	for _, dir := range []string{coldDir(baseDir), archiveDir(baseDir)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create cold dirs: %v", models.ErrStorageIO, err)
		}
	}
	return &ColdStore{baseDir: baseDir}, nil
}

func coldDir(base string) string    { return filepath.Join(base, "cold") }
func archiveDir(base string) string { return filepath.Join(base, "archive") }

func (c *ColdStore) tfDir(tf models.Timeframe) string {
	return filepath.Join(coldDir(c.baseDir), string(tf))
}

func fileName(symbol string, tf models.Timeframe, day string) string {
	return fmt.Sprintf("%s_%s_%s%s", symbol, tf, day, coldFileExt)
}

// Write persists candles for one symbol, one file per UTC day. Existing day
// files are merged with last-write-wins per timestamp.
func (c *ColdStore) Write(symbol string, tf models.Timeframe, candles []models.Candle, sessionID string) error {
	if len(candles) == 0 {
		return nil
	}
	byDay := make(map[string][]models.Candle)
	for _, cd := range candles {
		day := util.DayKey(cd.Ts)
		byDay[day] = append(byDay[day], cd)
	}

	dir := c.tfDir(tf)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: cold mkdir: %v", models.ErrStorageIO, err)
	}
	for day, dayCandles := range byDay {
		path := filepath.Join(dir, fileName(symbol, tf, day))
		merged := dayCandles
		if existing, err := readBlockFile(path); err == nil {
			merged = mergeCandles(existing.Candles(), dayCandles)
		}
		sortCandles(merged)
		if err := writeBlockFile(path, blockFromCandles(symbol, tf, merged, sessionID)); err != nil {
			return err
		}
	}
	return nil
}

// WriteMulti writes the combined multi-symbol file for bulk scans, one per
// timeframe and day covered by the call.
func (c *ColdStore) WriteMulti(tf models.Timeframe, data map[string][]models.Candle, sessionID string) error {
	byDay := make(map[string]map[string][]models.Candle)
	for symbol, candles := range data {
		for _, cd := range candles {
			day := util.DayKey(cd.Ts)
			if byDay[day] == nil {
				byDay[day] = make(map[string][]models.Candle)
			}
			byDay[day][symbol] = append(byDay[day][symbol], cd)
		}
	}

	dir := c.tfDir(tf)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: cold mkdir: %v", models.ErrStorageIO, err)
	}
	for day, symbols := range byDay {
		mb := multiBlock{Timeframe: string(tf)}
		names := make([]string, 0, len(symbols))
		for s := range symbols {
			names = append(names, s)
		}
		sort.Strings(names)
		for _, s := range names {
			candles := symbols[s]
			sortCandles(candles)
			mb.Blocks = append(mb.Blocks, blockFromCandles(s, tf, candles, sessionID))
		}
		path := filepath.Join(dir, fmt.Sprintf("multi_symbol_%s_%s%s", tf, day, coldFileExt))
		if err := writeCompressed(path, mb); err != nil {
			return err
		}
	}
	return nil
}

// Read returns a symbol's candles within [start, end), unioned over the
// per-day files in both the cold and archive trees.
func (c *ColdStore) Read(symbol string, tf models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	var out []models.Candle
	for day := start.UTC().Truncate(24 * time.Hour); day.Before(end); day = day.AddDate(0, 0, 1) {
		name := fileName(symbol, tf, util.DayKey(day))
		for _, dir := range []string{c.tfDir(tf), filepath.Join(archiveDir(c.baseDir), string(tf))} {
			block, err := readBlockFile(filepath.Join(dir, name))
			if err != nil {
				continue // per-file miss, not fatal
			}
			for _, cd := range block.Candles() {
				if !cd.Ts.Before(start) && cd.Ts.Before(end) {
					out = append(out, cd)
				}
			}
			break
		}
	}
	sortCandles(out)
	return out, nil
}

// Archive moves cold files whose day is older than the cutoff into the
// archive tree. Idempotent: files already archived are skipped, and a source
// whose archive copy exists is simply removed. Returns the moved blocks so
// callers can mirror them elsewhere.
func (c *ColdStore) Archive(cutoff time.Time) ([]ColdBlock, error) {
	var moved []ColdBlock
	entries, err := os.ReadDir(coldDir(c.baseDir))
	if err != nil {
		return nil, fmt.Errorf("%w: list cold tiers: %v", models.ErrStorageIO, err)
	}
	for _, tfEntry := range entries {
		if !tfEntry.IsDir() {
			continue
		}
		srcDir := filepath.Join(coldDir(c.baseDir), tfEntry.Name())
		dstDir := filepath.Join(archiveDir(c.baseDir), tfEntry.Name())
		files, err := os.ReadDir(srcDir)
		if err != nil {
			continue
		}
		for _, f := range files {
			day, ok := dayOfFile(f.Name())
			if !ok || !day.Before(cutoff) {
				continue
			}
			src := filepath.Join(srcDir, f.Name())
			dst := filepath.Join(dstDir, f.Name())
			if _, err := os.Stat(dst); err == nil {
				_ = os.Remove(src)
				continue
			}
			if err := os.MkdirAll(dstDir, 0o755); err != nil {
				return moved, fmt.Errorf("%w: archive mkdir: %v", models.ErrStorageIO, err)
			}
			if !strings.HasPrefix(f.Name(), "multi_symbol_") {
				if block, err := readBlockFile(src); err == nil {
					moved = append(moved, block)
				}
			}
			if err := os.Rename(src, dst); err != nil {
				return moved, fmt.Errorf("%w: archive move %s: %v", models.ErrStorageIO, f.Name(), err)
			}
		}
	}
	return moved, nil
}

// Cleanup hard-deletes cold and archive files older than the cutoff.
func (c *ColdStore) Cleanup(cutoff time.Time) (int, error) {
	removed := 0
	for _, root := range []string{coldDir(c.baseDir), archiveDir(c.baseDir)} {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if day, ok := dayOfFile(info.Name()); ok && day.Before(cutoff) {
				if err := os.Remove(path); err == nil {
					removed++
				}
			}
			return nil
		})
		if err != nil {
			return removed, fmt.Errorf("%w: cleanup walk: %v", models.ErrStorageIO, err)
		}
	}
	return removed, nil
}

// Inventory scans file names for stats: counts, sizes, symbols, timeframes
// and the oldest/newest file days. Advisory only.
func (c *ColdStore) Inventory() (coldFiles, archivedFiles int, totalBytes, rawBytes int64, symbols map[string]bool, tfs map[models.Timeframe]bool, oldest, newest time.Time) {
	symbols = make(map[string]bool)
	tfs = make(map[models.Timeframe]bool)
	scan := func(root string, archived bool) {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() || !strings.HasSuffix(info.Name(), coldFileExt) {
				return nil
			}
			if archived {
				archivedFiles++
			} else {
				coldFiles++
			}
			totalBytes += info.Size()
			if block, err := readBlockFile(path); err == nil {
				symbols[block.Symbol] = true
				tfs[models.Timeframe(block.Timeframe)] = true
				// six float64-width columns per row uncompressed
				rawBytes += int64(len(block.Ts)) * 48
			}
			if day, ok := dayOfFile(info.Name()); ok {
				if oldest.IsZero() || day.Before(oldest) {
					oldest = day
				}
				if day.After(newest) {
					newest = day
				}
			}
			return nil
		})
	}
	scan(coldDir(c.baseDir), false)
	scan(archiveDir(c.baseDir), true)
	return
}

// BaseDir exposes the tier root for backups.
func (c *ColdStore) BaseDir() string { return c.baseDir }

func dayOfFile(name string) (time.Time, bool) {
	name = strings.TrimSuffix(name, coldFileExt)
	idx := strings.LastIndex(name, "_")
	if idx < 0 {
		return time.Time{}, false
	}
	day, err := time.Parse("20060102", name[idx+1:])
	if err != nil {
		return time.Time{}, false
	}
	return day.UTC(), true
}

func sortCandles(candles []models.Candle) {
	sort.Slice(candles, func(i, j int) bool { return candles[i].Ts.Before(candles[j].Ts) })
}

// mergeCandles unions two slices by timestamp; entries in update win.
func mergeCandles(existing, update []models.Candle) []models.Candle {
	byTs := make(map[int64]models.Candle, len(existing)+len(update))
	for _, c := range existing {
		byTs[c.Ts.Unix()] = c
	}
	for _, c := range update {
		byTs[c.Ts.Unix()] = c
	}
	out := make([]models.Candle, 0, len(byTs))
	for _, c := range byTs {
		out = append(out, c)
	}
	return out
}

func writeBlockFile(path string, block ColdBlock) error {
	return writeCompressed(path, block)
}

func readBlockFile(path string) (ColdBlock, error) {
	var block ColdBlock
	err := readCompressed(path, &block)
	return block, err
}

// writeCompressed serializes v, snappy-compresses it with s2 and writes the
// file atomically (tmp + rename) so readers never observe a partial block.
func writeCompressed(path string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("%w: encode block: %v", models.ErrStorageIO, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, s2.Encode(nil, raw), 0o644); err != nil {
		return fmt.Errorf("%w: write block: %v", models.ErrStorageIO, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("%w: swap block: %v", models.ErrStorageIO, err)
	}
	return nil
}

func readCompressed(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%w: read block: %v", models.ErrStorageIO, err)
	}
	raw, err := s2.Decode(nil, b)
	if err != nil {
		return fmt.Errorf("%w: decompress block %s: %v", models.ErrStorageIO, path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: decode block %s: %v", models.ErrStorageIO, path, err)
	}
	return nil
}
