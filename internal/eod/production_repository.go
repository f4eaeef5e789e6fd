package eod

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pricecanon/internal/contracts"
)

// ProductionPriceRepository implements contracts.ProductionPriceRepository on
// data.daily_prices, the table downstream consumers read.
type ProductionPriceRepository struct {
	pool *pgxpool.Pool
}

// NewProductionPriceRepository creates a production price repository.
func NewProductionPriceRepository(pool *pgxpool.Pool) *ProductionPriceRepository {
	return &ProductionPriceRepository{pool: pool}
}

const upsertProductionQuery = `
	INSERT INTO data.daily_prices (
		ticker_id, trade_date, open_price, high_price, low_price, close_price,
		adj_close, volume, source, run_id
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	ON CONFLICT (ticker_id, trade_date) DO UPDATE SET
		open_price = EXCLUDED.open_price,
		high_price = EXCLUDED.high_price,
		low_price = EXCLUDED.low_price,
		close_price = EXCLUDED.close_price,
		adj_close = EXCLUDED.adj_close,
		volume = EXCLUDED.volume,
		source = EXCLUDED.source,
		run_id = EXCLUDED.run_id
`

// UpsertBatch promotes canonical rows, keyed (ticker, date).
func (r *ProductionPriceRepository) UpsertBatch(ctx context.Context, prices []contracts.ProductionPrice) error {
	if len(prices) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range prices {
		batch.Queue(upsertProductionQuery,
			p.TickerID, p.TradeDate, p.Open, p.High, p.Low, p.Close,
			p.AdjClose, p.Volume, p.Source, p.RunID,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range prices {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert production prices: %w", err)
		}
	}
	return nil
}

// ListByTicker returns published prices for one ticker in [from, to].
func (r *ProductionPriceRepository) ListByTicker(ctx context.Context, tickerID int64, from, to time.Time) ([]contracts.ProductionPrice, error) {
	query := `
		SELECT ticker_id, trade_date, open_price, high_price, low_price,
		       close_price, adj_close, volume, source, run_id
		FROM data.daily_prices
		WHERE ticker_id = $1 AND trade_date BETWEEN $2 AND $3
		ORDER BY trade_date
	`

	rows, err := r.pool.Query(ctx, query, tickerID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list prices of ticker %d: %w", tickerID, err)
	}
	defer rows.Close()

	var prices []contracts.ProductionPrice
	for rows.Next() {
		var p contracts.ProductionPrice
		err := rows.Scan(
			&p.TickerID, &p.TradeDate, &p.Open, &p.High, &p.Low,
			&p.Close, &p.AdjClose, &p.Volume, &p.Source, &p.RunID,
		)
		if err != nil {
			return nil, fmt.Errorf("scan production price: %w", err)
		}
		prices = append(prices, p)
	}
	return prices, rows.Err()
}
