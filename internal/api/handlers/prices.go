package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
	"github.com/wonny/pricecanon/pkg/logger"
)

// PriceHandler serves published production prices.
type PriceHandler struct {
	tickers    contracts.TickerRepository
	production contracts.ProductionPriceRepository
	logger     *logger.Logger
}

// NewPriceHandler creates a new price handler
func NewPriceHandler(tickers contracts.TickerRepository, production contracts.ProductionPriceRepository, log *logger.Logger) *PriceHandler {
	return &PriceHandler{
		tickers:    tickers,
		production: production,
		logger:     log,
	}
}

// PriceResponse is the JSON shape of one published price row.
type PriceResponse struct {
	TradeDate string  `json:"trade_date"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	AdjClose  float64 `json:"adj_close"`
	Volume    int64   `json:"volume"`
	Source    string  `json:"source"`
	RunID     int64   `json:"run_id"`
}

// TickerPricesResponse wraps a ticker's published rows.
type TickerPricesResponse struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	From   string          `json:"from"`
	To     string          `json:"to"`
	Prices []PriceResponse `json:"prices"`
}

// GetByCode returns published prices for one ticker
// GET /api/prices/{code}?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *PriceHandler) GetByCode(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := mux.Vars(r)["code"]

	to := time.Now().UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -30)

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'from' date format (expected YYYY-MM-DD)")
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "Invalid 'to' date format (expected YYYY-MM-DD)")
			return
		}
		to = parsed
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "'from' must not be after 'to'")
		return
	}

	ticker, err := h.tickers.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, eod.ErrTickerNotFound) {
			respondError(w, http.StatusNotFound, "Ticker not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get ticker")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve ticker")
		return
	}

	rows, err := h.production.ListByTicker(ctx, ticker.ID, from, to)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list prices")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve prices")
		return
	}

	prices := make([]PriceResponse, 0, len(rows))
	for _, row := range rows {
		prices = append(prices, PriceResponse{
			TradeDate: row.TradeDate.Format("2006-01-02"),
			Open:      row.Open,
			High:      row.High,
			Low:       row.Low,
			Close:     row.Close,
			AdjClose:  row.AdjClose,
			Volume:    row.Volume,
			Source:    row.Source,
			RunID:     row.RunID,
		})
	}

	respondJSON(w, http.StatusOK, TickerPricesResponse{
		Code:   ticker.Code,
		Name:   ticker.Name,
		From:   from.Format("2006-01-02"),
		To:     to.Format("2006-01-02"),
		Prices: prices,
	})
}
