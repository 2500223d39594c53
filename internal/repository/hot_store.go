package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"CandleGrid/internal/domain/models"
	pkgsqlite "CandleGrid/pkg/sqlite"
)

// hotSchema keeps recent candles in a row store that tolerates point
// upserts. One row per (symbol, timeframe, ts), last write wins.
var hotSchema = []string{
	`CREATE TABLE IF NOT EXISTS hot_candles (
		symbol          TEXT NOT NULL,
		timeframe       TEXT NOT NULL,
		ts              INTEGER NOT NULL,
		open            REAL NOT NULL,
		high            REAL NOT NULL,
		low             REAL NOT NULL,
		close           REAL NOT NULL,
		volume          REAL NOT NULL,
		session_id      TEXT,
		coherence_score REAL NOT NULL DEFAULT 1.0,
		PRIMARY KEY (symbol, timeframe, ts)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_hot_tf_ts ON hot_candles(timeframe, ts)`,
	`CREATE TABLE IF NOT EXISTS alignment_sessions (
		session_id TEXT NOT NULL,
		timeframe  TEXT NOT NULL,
		ts         INTEGER NOT NULL,
		metadata   TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_ts ON alignment_sessions(ts)`,
}

// HotStore is the fast tier: recent candles in SQLite.
type HotStore struct {
	client *pkgsqlite.Client
	db     *sql.DB
}

// NewHotStore opens the hot tier database at path and ensures the schema.
func NewHotStore(path string) (*HotStore, error) {
	client, err := pkgsqlite.NewClient(pkgsqlite.WithPath(path))
	if err != nil {
		return nil, fmt.Errorf("hot store: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.InitSchema(ctx, hotSchema); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("hot store schema: %w", err)
	}
	return &HotStore{client: client, db: client.DB()}, nil
}

// Upsert writes candles for one (symbol, timeframe), last write wins per
// timestamp. All rows of a call commit in one transaction.
func (h *HotStore) Upsert(ctx context.Context, symbol string, tf models.Timeframe, candles []models.Candle, sessionID string) error {
	if len(candles) == 0 {
		return nil
	}
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin hot upsert: %v", models.ErrStorageIO, err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO hot_candles (symbol, timeframe, ts, open, high, low, close, volume, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, timeframe, ts) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, volume = excluded.volume,
			session_id = excluded.session_id`)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: prepare hot upsert: %v", models.ErrStorageIO, err)
	}
	defer stmt.Close()

	for _, c := range candles {
		if _, err := stmt.ExecContext(ctx, symbol, string(tf), c.Ts.UTC().Unix(),
			c.Open, c.High, c.Low, c.Close, c.Volume, sessionID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("%w: hot upsert %s@%s: %v", models.ErrStorageIO, symbol, c.Ts, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit hot upsert: %v", models.ErrStorageIO, err)
	}
	return nil
}

// Query returns candles for [start, end) sorted by timestamp.
func (h *HotStore) Query(ctx context.Context, symbol string, tf models.Timeframe, start, end time.Time) ([]models.Candle, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM hot_candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC`,
		symbol, string(tf), start.UTC().Unix(), end.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: hot query: %v", models.ErrStorageIO, err)
	}
	defer rows.Close()

	var out []models.Candle
	for rows.Next() {
		var c models.Candle
		var ts int64
		if err := rows.Scan(&ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan hot candle: %v", models.ErrStorageIO, err)
		}
		c.Ts = time.Unix(ts, 0).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: hot rows: %v", models.ErrStorageIO, err)
	}
	return out, nil
}

// QueryBefore returns all candles older than cutoff, grouped by symbol and
// timeframe, for the compaction pass.
func (h *HotStore) QueryBefore(ctx context.Context, cutoff time.Time) (map[models.Timeframe]map[string][]models.Candle, error) {
	rows, err := h.db.QueryContext(ctx, `
		SELECT symbol, timeframe, ts, open, high, low, close, volume
		FROM hot_candles WHERE ts < ? ORDER BY symbol, timeframe, ts`,
		cutoff.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: hot query before: %v", models.ErrStorageIO, err)
	}
	defer rows.Close()

	out := make(map[models.Timeframe]map[string][]models.Candle)
	for rows.Next() {
		var (
			symbol, tfStr string
			ts            int64
			c             models.Candle
		)
		if err := rows.Scan(&symbol, &tfStr, &ts, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("%w: scan aged candle: %v", models.ErrStorageIO, err)
		}
		c.Ts = time.Unix(ts, 0).UTC()
		tf := models.Timeframe(tfStr)
		if out[tf] == nil {
			out[tf] = make(map[string][]models.Candle)
		}
		out[tf][symbol] = append(out[tf][symbol], c)
	}
	return out, rows.Err()
}

// DeleteBefore removes rows older than cutoff and reports how many.
func (h *HotStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM hot_candles WHERE ts < ?`, cutoff.UTC().Unix())
	if err != nil {
		return 0, fmt.Errorf("%w: hot delete: %v", models.ErrStorageIO, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecordSession appends one alignment session metadata row.
func (h *HotStore) RecordSession(ctx context.Context, sessionID string, tf models.Timeframe, meta map[string]interface{}) error {
	var metaJSON []byte
	if meta != nil {
		metaJSON, _ = json.Marshal(meta)
	}
	_, err := h.db.ExecContext(ctx, `
		INSERT INTO alignment_sessions (session_id, timeframe, ts, metadata)
		VALUES (?, ?, ?, ?)`,
		sessionID, string(tf), time.Now().UTC().Unix(), string(metaJSON))
	if err != nil {
		return fmt.Errorf("%w: record session: %v", models.ErrStorageIO, err)
	}
	return nil
}

// Inventory reports distinct symbols and timeframes plus the row count.
func (h *HotStore) Inventory(ctx context.Context) (symbols []string, timeframes []models.Timeframe, rowCount int64, err error) {
	if err = h.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hot_candles`).Scan(&rowCount); err != nil {
		return nil, nil, 0, fmt.Errorf("%w: hot count: %v", models.ErrStorageIO, err)
	}
	rows, err := h.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM hot_candles ORDER BY symbol`)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: hot symbols: %v", models.ErrStorageIO, err)
	}
	defer rows.Close()
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err == nil {
			symbols = append(symbols, s)
		}
	}
	tfRows, err := h.db.QueryContext(ctx, `SELECT DISTINCT timeframe FROM hot_candles`)
	if err != nil {
		return symbols, nil, rowCount, fmt.Errorf("%w: hot timeframes: %v", models.ErrStorageIO, err)
	}
	defer tfRows.Close()
	for tfRows.Next() {
		var s string
		if err := tfRows.Scan(&s); err == nil {
			timeframes = append(timeframes, models.Timeframe(s))
		}
	}
	return symbols, timeframes, rowCount, nil
}

// Path-level health check.
func (h *HotStore) Health(ctx context.Context) error {
	return h.client.Health(ctx)
}

// Close closes the underlying database.
func (h *HotStore) Close() error {
	return h.client.Close()
}
