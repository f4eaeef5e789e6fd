package eod

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pricecanon/internal/contracts"
)

// ErrTickerNotFound is returned when a ticker code does not exist.
var ErrTickerNotFound = errors.New("ticker not found")

// TickerRepository implements contracts.TickerRepository on data.tickers.
type TickerRepository struct {
	pool *pgxpool.Pool
}

// NewTickerRepository creates a ticker repository.
func NewTickerRepository(pool *pgxpool.Pool) *TickerRepository {
	return &TickerRepository{pool: pool}
}

// Active returns the active ticker universe ordered by code.
func (r *TickerRepository) Active(ctx context.Context) ([]contracts.Ticker, error) {
	query := `
		SELECT ticker_id, code, name, status
		FROM data.tickers
		WHERE status = 'active'
		ORDER BY code
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active tickers: %w", err)
	}
	defer rows.Close()

	var tickers []contracts.Ticker
	for rows.Next() {
		var t contracts.Ticker
		if err := rows.Scan(&t.ID, &t.Code, &t.Name, &t.Status); err != nil {
			return nil, fmt.Errorf("scan ticker: %w", err)
		}
		tickers = append(tickers, t)
	}
	return tickers, rows.Err()
}

// GetByCode loads one ticker by its code.
func (r *TickerRepository) GetByCode(ctx context.Context, code string) (*contracts.Ticker, error) {
	query := `
		SELECT ticker_id, code, name, status
		FROM data.tickers
		WHERE code = $1
	`

	var t contracts.Ticker
	err := r.pool.QueryRow(ctx, query, code).Scan(&t.ID, &t.Code, &t.Name, &t.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("ticker %s: %w", code, ErrTickerNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load ticker %s: %w", code, err)
	}
	return &t, nil
}
