package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"CandleGrid/internal/domain/models"
	pkgch "CandleGrid/pkg/clickhouse"
	applogger "CandleGrid/pkg/logger"
)

// ArchiveSchema creates the MergeTree table archived blocks mirror into.
func ArchiveSchema(database string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", database),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.archived_candles (
			symbol    String,
			timeframe String,
			ts        DateTime,
			open      Float64,
			high      Float64,
			low       Float64,
			close     Float64,
			volume    Float64
		) ENGINE = MergeTree ORDER BY (symbol, timeframe, ts)`, database),
	}
}

// CandleArchive mirrors archived cold blocks into ClickHouse so bulk
// analytical scans do not have to walk the file tree.
type CandleArchive struct {
	db    *sql.DB
	table string
	log   *applogger.Logger
}

func NewCandleArchive(ch *pkgch.Client, database string, log *applogger.Logger) *CandleArchive {
	return &CandleArchive{db: ch.DB(), table: database + ".archived_candles", log: log}
}

// InsertBlocks appends each block's rows in one transaction per call.
// Duplicate rows are tolerated; MergeTree keeps them and queries de-dup by
// taking the latest insert, matching the last-write-wins contract.
func (a *CandleArchive) InsertBlocks(ctx context.Context, blocks []ColdBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	start := time.Now()
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: archive begin: %v", models.ErrStorageIO, err)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (symbol, timeframe, ts, open, high, low, close, volume) VALUES (?, ?, ?, ?, ?, ?, ?, ?)", a.table))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: archive prepare: %v", models.ErrStorageIO, err)
	}
	defer stmt.Close()

	rows := 0
	for _, b := range blocks {
		for i := range b.Ts {
			if _, err := stmt.ExecContext(ctx, b.Symbol, b.Timeframe, time.Unix(b.Ts[i], 0).UTC(),
				b.Open[i], b.High[i], b.Low[i], b.Close[i], b.Volume[i]); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("%w: archive insert %s: %v", models.ErrStorageIO, b.Symbol, err)
			}
			rows++
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: archive commit: %v", models.ErrStorageIO, err)
	}
	if a.log != nil {
		a.log.Info("archive mirror updated",
			applogger.Int("blocks", len(blocks)),
			applogger.Int("rows", rows),
			applogger.Duration("duration_ms", time.Since(start)),
		)
	}
	return nil
}

// Count returns the mirrored row count, used by storage statistics.
func (a *CandleArchive) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := a.db.QueryRowContext(ctx, fmt.Sprintf("SELECT count() FROM %s", a.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: archive count: %v", models.ErrStorageIO, err)
	}
	return n, nil
}
