package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/s2"

	"CandleGrid/internal/domain/models"
)

const (
	blobExt   = ".cgc"
	indexFile = "index.json"

	statusValid   = "valid"
	statusExpired = "expired"
	statusInvalid = "invalid"
)

// entryMeta is the bookkeeping row kept per cache entry, both in memory and
// in the on-disk side index.
type entryMeta struct {
	Key          string    `json:"key"`
	Timeframe    string    `json:"timeframe"`
	Symbols      []string  `json:"symbols"`
	CreatedAt    time.Time `json:"created_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	AccessCount  int64     `json:"access_count"`
	LastAccessed time.Time `json:"last_accessed"`
	SizeBytes    int64     `json:"size_bytes"`
	Status       string    `json:"status"`
	Path         string    `json:"path"`
}

// diskBlob is the serialized snapshot written per cache key. It is an
// independent copy: no aliasing with the in-memory entry across processes.
type diskBlob struct {
	Meta entryMeta                      `json:"meta"`
	Data map[string]models.SymbolSeries `json:"data"`
}

// diskIndex guards the blob directory and its metadata side index. Callers
// hold c.diskMu, not the in-memory lock, so sweeps do not block hot reads.
// With persist=false the index lives only in memory: nothing is written to
// index.json and a restart cold-starts the disk tier.
type diskIndex struct {
	dir      string
	compress bool
	persist  bool
	entries  map[string]*entryMeta
}

func newDiskIndex(dir string, compress, persist bool) (*diskIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	idx := &diskIndex{dir: dir, compress: compress, persist: persist, entries: make(map[string]*entryMeta)}
	if !persist {
		return idx, nil
	}
	if b, err := os.ReadFile(filepath.Join(dir, indexFile)); err == nil {
		var rows []*entryMeta
		if err := json.Unmarshal(b, &rows); err == nil {
			for _, r := range rows {
				idx.entries[r.Key] = r
			}
		}
	}
	return idx, nil
}

func (d *diskIndex) save() {
	if !d.persist {
		return
	}
	rows := make([]*entryMeta, 0, len(d.entries))
	for _, r := range d.entries {
		rows = append(rows, r)
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return
	}
	tmp := filepath.Join(d.dir, indexFile+".tmp")
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return
	}
	_ = os.Rename(tmp, filepath.Join(d.dir, indexFile))
}

func (d *diskIndex) write(meta entryMeta, data map[string]models.SymbolSeries) error {
	meta.Path = filepath.Join(d.dir, meta.Key+blobExt)
	raw, err := json.Marshal(diskBlob{Meta: meta, Data: data})
	if err != nil {
		return fmt.Errorf("encode cache blob: %w", err)
	}
	if d.compress {
		raw = s2.Encode(nil, raw)
	}
	if err := os.WriteFile(meta.Path, raw, 0o644); err != nil {
		return fmt.Errorf("write cache blob: %w", err)
	}
	meta.SizeBytes = int64(len(raw))
	d.entries[meta.Key] = &meta
	d.save()
	return nil
}

func (d *diskIndex) read(key string, now time.Time) (*diskBlob, bool) {
	meta, ok := d.entries[key]
	if !ok || meta.Status != statusValid {
		return nil, false
	}
	if now.After(meta.ExpiresAt) {
		meta.Status = statusExpired
		d.save()
		return nil, false
	}
	raw, err := os.ReadFile(meta.Path)
	if err != nil {
		meta.Status = statusInvalid
		d.save()
		return nil, false
	}
	if d.compress {
		raw, err = s2.Decode(nil, raw)
		if err != nil {
			meta.Status = statusInvalid
			d.save()
			return nil, false
		}
	}
	var blob diskBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		meta.Status = statusInvalid
		d.save()
		return nil, false
	}
	meta.AccessCount++
	meta.LastAccessed = now
	return &blob, true
}

func (d *diskIndex) remove(key string) {
	if meta, ok := d.entries[key]; ok {
		_ = os.Remove(meta.Path)
		delete(d.entries, key)
	}
}

// sweep drops expired/invalid entries and orphaned blob files with no
// matching index row. Returns how many entries were removed.
func (d *diskIndex) sweep(now time.Time) int {
	removed := 0
	for key, meta := range d.entries {
		if meta.Status != statusValid || now.After(meta.ExpiresAt) {
			_ = os.Remove(meta.Path)
			delete(d.entries, key)
			removed++
		}
	}
	files, err := os.ReadDir(d.dir)
	if err == nil {
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), blobExt) {
				continue
			}
			key := strings.TrimSuffix(f.Name(), blobExt)
			if _, ok := d.entries[key]; !ok {
				_ = os.Remove(filepath.Join(d.dir, f.Name()))
				removed++
			}
		}
	}
	d.save()
	return removed
}

// invalidateTimeframe removes every entry whose timeframe matches.
func (d *diskIndex) invalidateTimeframe(tf string) (keys []string) {
	for key, meta := range d.entries {
		if meta.Timeframe == tf {
			_ = os.Remove(meta.Path)
			delete(d.entries, key)
			keys = append(keys, key)
		}
	}
	d.save()
	return keys
}
