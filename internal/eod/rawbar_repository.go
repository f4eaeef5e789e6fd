package eod

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pricecanon/internal/contracts"
)

// RawBarRepository implements contracts.RawBarRepository on canon.raw_bars.
// The table is append-only: rows are never updated, which is what makes
// rebuild-from-raw trustworthy.
type RawBarRepository struct {
	pool *pgxpool.Pool
}

// NewRawBarRepository creates a raw bar repository.
func NewRawBarRepository(pool *pgxpool.Pool) *RawBarRepository {
	return &RawBarRepository{pool: pool}
}

const insertRawBarQuery = `
	INSERT INTO canon.raw_bars (
		run_id, ticker_id, trade_date, source,
		open_price, high_price, low_price, close_price, adj_close, volume,
		hard_valid, soft_flags, error_code, error_msg, imported_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (run_id, ticker_id, trade_date, source) DO NOTHING
`

// InsertBatch appends raw rows in a single round trip.
func (r *RawBarRepository) InsertBatch(ctx context.Context, bars []contracts.RawBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(insertRawBarQuery,
			b.RunID, b.TickerID, b.TradeDate, b.Source,
			b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
			b.HardValid, contracts.JoinFlags(b.SoftFlags),
			b.ErrorCode, b.ErrorMsg, b.ImportedAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert raw bars: %w", err)
		}
	}
	return nil
}

// CountByRun returns the number of raw rows a run produced.
func (r *RawBarRepository) CountByRun(ctx context.Context, runID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM canon.raw_bars WHERE run_id = $1`, runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count raw bars of run %d: %w", runID, err)
	}
	return count, nil
}

// Stream opens a cursor over a run's raw rows within [from, to], ordered by
// (ticker, date, source). The caller must Close the cursor.
func (r *RawBarRepository) Stream(ctx context.Context, runID int64, from, to time.Time) (contracts.RawBarCursor, error) {
	query := `
		SELECT run_id, ticker_id, trade_date, source,
		       open_price, high_price, low_price, close_price, adj_close, volume,
		       hard_valid, soft_flags, error_code, error_msg, imported_at
		FROM canon.raw_bars
		WHERE run_id = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY ticker_id, trade_date, source
	`

	rows, err := r.pool.Query(ctx, query, runID, from, to)
	if err != nil {
		return nil, fmt.Errorf("stream raw bars of run %d: %w", runID, err)
	}
	return &rawBarCursor{rows: rows}, nil
}

// ValidCloses returns hard-valid closes for disagreement detection, ordered
// by (ticker, date, source).
func (r *RawBarRepository) ValidCloses(ctx context.Context, runID int64, from, to time.Time) ([]contracts.SourceClose, error) {
	query := `
		SELECT ticker_id, trade_date, source, close_price
		FROM canon.raw_bars
		WHERE run_id = $1 AND trade_date BETWEEN $2 AND $3
		  AND hard_valid AND error_code = ''
		ORDER BY ticker_id, trade_date, source
	`

	rows, err := r.pool.Query(ctx, query, runID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load valid closes of run %d: %w", runID, err)
	}
	defer rows.Close()

	var closes []contracts.SourceClose
	for rows.Next() {
		var c contracts.SourceClose
		if err := rows.Scan(&c.TickerID, &c.TradeDate, &c.Source, &c.Close); err != nil {
			return nil, fmt.Errorf("scan valid close: %w", err)
		}
		closes = append(closes, c)
	}
	return closes, rows.Err()
}

// rawBarCursor is the pgx-backed cursor. Restartable only by re-issuing the
// query.
type rawBarCursor struct {
	rows pgx.Rows
}

// Next returns the next row; ok is false once the stream is exhausted.
func (c *rawBarCursor) Next() (contracts.RawBar, bool, error) {
	if !c.rows.Next() {
		return contracts.RawBar{}, false, c.rows.Err()
	}

	var b contracts.RawBar
	var flags string
	err := c.rows.Scan(
		&b.RunID, &b.TickerID, &b.TradeDate, &b.Source,
		&b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume,
		&b.HardValid, &flags, &b.ErrorCode, &b.ErrorMsg, &b.ImportedAt,
	)
	if err != nil {
		return contracts.RawBar{}, false, fmt.Errorf("scan raw bar: %w", err)
	}
	b.SoftFlags = contracts.SplitFlags(flags)
	return b, true, nil
}

// Close releases the underlying rows.
func (c *rawBarCursor) Close() {
	c.rows.Close()
}
