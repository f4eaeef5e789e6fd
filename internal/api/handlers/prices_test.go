package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
	"github.com/wonny/pricecanon/pkg/logger"
)

type stubTickerRepo struct {
	tickers map[string]*contracts.Ticker
}

func (s *stubTickerRepo) Active(ctx context.Context) ([]contracts.Ticker, error) {
	return nil, nil
}

func (s *stubTickerRepo) GetByCode(ctx context.Context, code string) (*contracts.Ticker, error) {
	ticker, ok := s.tickers[code]
	if !ok {
		return nil, eod.ErrTickerNotFound
	}
	return ticker, nil
}

type stubProductionRepo struct {
	rows []contracts.ProductionPrice
}

func (s *stubProductionRepo) UpsertBatch(ctx context.Context, rows []contracts.ProductionPrice) error {
	return nil
}

func (s *stubProductionRepo) ListByTicker(ctx context.Context, tickerID int64, from, to time.Time) ([]contracts.ProductionPrice, error) {
	var out []contracts.ProductionPrice
	for _, row := range s.rows {
		if row.TickerID != tickerID || row.TradeDate.Before(from) || row.TradeDate.After(to) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func newPriceRouter(h *PriceHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/prices/{code}", h.GetByCode).Methods("GET")
	return r
}

func TestPriceHandler_GetByCode(t *testing.T) {
	tickers := &stubTickerRepo{tickers: map[string]*contracts.Ticker{
		"AAPL": {ID: 1, Code: "AAPL", Name: "Apple Inc", Status: "active"},
	}}
	production := &stubProductionRepo{rows: []contracts.ProductionPrice{
		{
			TickerID:  1,
			TradeDate: time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC),
			Open:      100, High: 102, Low: 99, Close: 101, AdjClose: 101, Volume: 1000,
			Source: "stooq",
			RunID:  7,
		},
		{
			TickerID:  2,
			TradeDate: time.Date(2025, 11, 4, 0, 0, 0, 0, time.UTC),
			Open:      50, High: 51, Low: 49, Close: 50, AdjClose: 50, Volume: 500,
			Source: "stooq",
			RunID:  7,
		},
	}}
	h := NewPriceHandler(tickers, production, logger.NewNop())
	router := newPriceRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/prices/AAPL?from=2025-11-01&to=2025-11-07", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp TickerPricesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "AAPL", resp.Code)
	assert.Equal(t, "2025-11-01", resp.From)
	require.Len(t, resp.Prices, 1)
	assert.Equal(t, "2025-11-04", resp.Prices[0].TradeDate)
	assert.Equal(t, "stooq", resp.Prices[0].Source)
	assert.Equal(t, int64(7), resp.Prices[0].RunID)
}

func TestPriceHandler_UnknownTicker(t *testing.T) {
	h := NewPriceHandler(&stubTickerRepo{tickers: map[string]*contracts.Ticker{}}, &stubProductionRepo{}, logger.NewNop())
	router := newPriceRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/prices/ZZZZ", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPriceHandler_BadDateRange(t *testing.T) {
	tickers := &stubTickerRepo{tickers: map[string]*contracts.Ticker{
		"AAPL": {ID: 1, Code: "AAPL"},
	}}
	h := NewPriceHandler(tickers, &stubProductionRepo{}, logger.NewNop())
	router := newPriceRouter(h)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/prices/AAPL?from=2025-11-07&to=2025-11-01", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/api/prices/AAPL?from=11/01/2025", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
