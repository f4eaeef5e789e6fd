package provider

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/config"
	"github.com/wonny/pricecanon/pkg/httputil"
	"github.com/wonny/pricecanon/pkg/logger"
)

// Stooq fetches EOD bars from the Stooq CSV endpoint.
type Stooq struct {
	client       *httputil.Client
	logger       *logger.Logger
	baseURL      string
	symbolSuffix string
}

// NewStooq creates a Stooq adapter.
func NewStooq(client *httputil.Client, cfg config.StooqConfig, log *logger.Logger) *Stooq {
	return &Stooq{
		client:       client,
		logger:       log.WithField("provider", "stooq"),
		baseURL:      cfg.BaseURL,
		symbolSuffix: cfg.SymbolSuffix,
	}
}

// Name returns the source identifier.
func (s *Stooq) Name() string {
	return "stooq"
}

// MapTickerCodeToSymbol translates a ticker code to Stooq's lowercase
// suffixed form, e.g. AAPL -> aapl.us.
func (s *Stooq) MapTickerCodeToSymbol(code string) string {
	return strings.ToLower(code) + s.symbolSuffix
}

// Fetch downloads and parses the daily CSV for [from, to].
func (s *Stooq) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]contracts.ProviderBar, error) {
	fullURL := fmt.Sprintf("%s/q/d/l/?s=%s&d1=%s&d2=%s&i=d",
		s.baseURL, url.QueryEscape(symbol),
		from.Format("20060102"), to.Format("20060102"))

	resp, err := s.client.Get(ctx, fullURL)
	if err != nil {
		return nil, &contracts.ProviderError{Code: "network_error", Msg: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &contracts.ProviderError{
			Code: fmt.Sprintf("http_%d", resp.StatusCode),
			Msg:  fmt.Sprintf("unexpected status code for %s", symbol),
		}
	}

	bars, err := parseStooqCSV(resp.Body)
	if err != nil {
		return nil, &contracts.ProviderError{Code: "parse_error", Msg: err.Error()}
	}

	s.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched bars")
	return bars, nil
}

// parseStooqCSV reads the Date,Open,High,Low,Close,Volume format. Stooq
// serves already-adjusted closes, so AdjClose mirrors Close.
func parseStooqCSV(r io.Reader) ([]contracts.ProviderBar, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	body := strings.TrimSpace(string(raw))
	if body == "" || strings.EqualFold(body, "no data") {
		return nil, nil
	}

	reader := csv.NewReader(strings.NewReader(body))
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 || !strings.EqualFold(records[0][0], "date") {
		return nil, fmt.Errorf("unexpected csv header")
	}

	var bars []contracts.ProviderBar
	for _, rec := range records[1:] {
		if len(rec) < 5 {
			continue
		}

		tradeDate, err := time.Parse("2006-01-02", rec[0])
		if err != nil {
			continue
		}

		open, err1 := strconv.ParseFloat(rec[1], 64)
		high, err2 := strconv.ParseFloat(rec[2], 64)
		low, err3 := strconv.ParseFloat(rec[3], 64)
		closePrice, err4 := strconv.ParseFloat(rec[4], 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}

		var volume int64
		if len(rec) > 5 && rec[5] != "" {
			volume, _ = strconv.ParseInt(rec[5], 10, 64)
		}

		bars = append(bars, contracts.ProviderBar{
			TradeDate: tradeDate,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			AdjClose:  closePrice,
			Volume:    volume,
		})
	}
	return bars, nil
}
