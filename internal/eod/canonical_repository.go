package eod

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pricecanon/internal/contracts"
)

// CanonicalBarRepository implements contracts.CanonicalBarRepository on
// canon.canonical_bars. Rows are wholesale-deletable per run (the hold path).
type CanonicalBarRepository struct {
	pool *pgxpool.Pool
}

// NewCanonicalBarRepository creates a canonical bar repository.
func NewCanonicalBarRepository(pool *pgxpool.Pool) *CanonicalBarRepository {
	return &CanonicalBarRepository{pool: pool}
}

const upsertCanonicalQuery = `
	INSERT INTO canon.canonical_bars (
		run_id, ticker_id, trade_date, chosen_source, reason, flags,
		open_price, high_price, low_price, close_price, adj_close, volume,
		built_at
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (run_id, ticker_id, trade_date) DO UPDATE SET
		chosen_source = EXCLUDED.chosen_source,
		reason = EXCLUDED.reason,
		flags = EXCLUDED.flags,
		open_price = EXCLUDED.open_price,
		high_price = EXCLUDED.high_price,
		low_price = EXCLUDED.low_price,
		close_price = EXCLUDED.close_price,
		adj_close = EXCLUDED.adj_close,
		volume = EXCLUDED.volume,
		built_at = EXCLUDED.built_at
`

// UpsertBatch writes canonical rows for a run in a single round trip.
func (r *CanonicalBarRepository) UpsertBatch(ctx context.Context, bars []contracts.CanonicalBar) error {
	if len(bars) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bars {
		batch.Queue(upsertCanonicalQuery,
			b.RunID, b.TickerID, b.TradeDate, b.ChosenSource, b.Reason,
			contracts.JoinFlags(b.Flags),
			b.Open, b.High, b.Low, b.Close, b.AdjClose, b.Volume,
			b.BuiltAt,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert canonical bars: %w", err)
		}
	}
	return nil
}

// DeleteByRun removes all canonical rows of a run.
func (r *CanonicalBarRepository) DeleteByRun(ctx context.Context, runID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM canon.canonical_bars WHERE run_id = $1`, runID)
	if err != nil {
		return 0, fmt.Errorf("delete canonical bars of run %d: %w", runID, err)
	}
	return tag.RowsAffected(), nil
}

// CountByRun returns the canonical point count of a run.
func (r *CanonicalBarRepository) CountByRun(ctx context.Context, runID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM canon.canonical_bars WHERE run_id = $1`, runID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count canonical bars of run %d: %w", runID, err)
	}
	return count, nil
}

// CountByDay returns per-day canonical counts within [from, to]. Days without
// rows are absent from the result.
func (r *CanonicalBarRepository) CountByDay(ctx context.Context, runID int64, from, to time.Time) ([]contracts.DayCount, error) {
	query := `
		SELECT trade_date, count(*)
		FROM canon.canonical_bars
		WHERE run_id = $1 AND trade_date BETWEEN $2 AND $3
		GROUP BY trade_date
		ORDER BY trade_date
	`

	rows, err := r.pool.Query(ctx, query, runID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count canonical bars by day: %w", err)
	}
	defer rows.Close()

	var counts []contracts.DayCount
	for rows.Next() {
		var dc contracts.DayCount
		if err := rows.Scan(&dc.Day, &dc.Count); err != nil {
			return nil, fmt.Errorf("scan day count: %w", err)
		}
		counts = append(counts, dc)
	}
	return counts, rows.Err()
}

const canonicalColumns = `
	run_id, ticker_id, trade_date, chosen_source, reason, flags,
	open_price, high_price, low_price, close_price, adj_close, volume,
	built_at
`

// ListByDay returns a run's canonical rows for one trading day.
func (r *CanonicalBarRepository) ListByDay(ctx context.Context, runID int64, day time.Time) ([]contracts.CanonicalBar, error) {
	query := `
		SELECT ` + canonicalColumns + `
		FROM canon.canonical_bars
		WHERE run_id = $1 AND trade_date = $2
		ORDER BY ticker_id
	`

	rows, err := r.pool.Query(ctx, query, runID, day)
	if err != nil {
		return nil, fmt.Errorf("list canonical bars by day: %w", err)
	}
	defer rows.Close()

	return scanCanonicalBars(rows)
}

// ListByRun pages a run's canonical rows ordered by (ticker, date).
func (r *CanonicalBarRepository) ListByRun(ctx context.Context, runID int64, limit, offset int) ([]contracts.CanonicalBar, error) {
	query := `
		SELECT ` + canonicalColumns + `
		FROM canon.canonical_bars
		WHERE run_id = $1
		ORDER BY ticker_id, trade_date
		LIMIT $2 OFFSET $3
	`

	rows, err := r.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list canonical bars of run %d: %w", runID, err)
	}
	defer rows.Close()

	return scanCanonicalBars(rows)
}

func scanCanonicalBars(rows pgx.Rows) ([]contracts.CanonicalBar, error) {
	var bars []contracts.CanonicalBar
	for rows.Next() {
		var b contracts.CanonicalBar
		var flags string
		err := rows.Scan(
			&b.RunID, &b.TickerID, &b.TradeDate, &b.ChosenSource, &b.Reason, &flags,
			&b.Open, &b.High, &b.Low, &b.Close, &b.AdjClose, &b.Volume,
			&b.BuiltAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan canonical bar: %w", err)
		}
		b.Flags = contracts.SplitFlags(flags)
		bars = append(bars, b)
	}
	return bars, rows.Err()
}
