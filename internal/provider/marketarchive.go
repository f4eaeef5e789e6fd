package provider

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/config"
	"github.com/wonny/pricecanon/pkg/httputil"
	"github.com/wonny/pricecanon/pkg/logger"
)

// MarketArchive scrapes EOD bars from the market-archive history pages.
type MarketArchive struct {
	client  *httputil.Client
	logger  *logger.Logger
	baseURL string
}

// NewMarketArchive creates a market-archive adapter.
func NewMarketArchive(client *httputil.Client, cfg config.MarketArchiveConfig, log *logger.Logger) *MarketArchive {
	return &MarketArchive{
		client:  client,
		logger:  log.WithField("provider", "marketarchive"),
		baseURL: cfg.BaseURL,
	}
}

// Name returns the source identifier.
func (m *MarketArchive) Name() string {
	return "marketarchive"
}

// MapTickerCodeToSymbol translates a ticker code to the archive's
// uppercase symbol form.
func (m *MarketArchive) MapTickerCodeToSymbol(code string) string {
	return strings.ToUpper(code)
}

// Fetch downloads the history page for [from, to] and parses its table.
func (m *MarketArchive) Fetch(ctx context.Context, symbol string, from, to time.Time) ([]contracts.ProviderBar, error) {
	fullURL := fmt.Sprintf("%s/history/%s?from=%s&to=%s",
		m.baseURL, url.PathEscape(symbol),
		from.Format("2006-01-02"), to.Format("2006-01-02"))

	resp, err := m.client.Get(ctx, fullURL)
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

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &contracts.ProviderError{Code: "parse_error", Msg: err.Error()}
	}

	bars := m.parseHistoryTable(doc)

	m.logger.WithFields(map[string]interface{}{
		"symbol": symbol,
		"count":  len(bars),
	}).Debug("Fetched bars")
	return bars, nil
}

// parseHistoryTable walks the history table rows. Columns are
// date, open, high, low, close, adj close, volume. Rows that fail to
// parse are skipped.
func (m *MarketArchive) parseHistoryTable(doc *goquery.Document) []contracts.ProviderBar {
	var bars []contracts.ProviderBar

	doc.Find("table.history tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 7 {
			return
		}

		tradeDate, err := time.Parse("2006-01-02", strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}

		open, err1 := parseArchiveNumber(cells.Eq(1).Text())
		high, err2 := parseArchiveNumber(cells.Eq(2).Text())
		low, err3 := parseArchiveNumber(cells.Eq(3).Text())
		closePrice, err4 := parseArchiveNumber(cells.Eq(4).Text())
		adjClose, err5 := parseArchiveNumber(cells.Eq(5).Text())
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil {
			return
		}

		var volume int64
		if v, err := parseArchiveNumber(cells.Eq(6).Text()); err == nil {
			volume = int64(v)
		}

		bars = append(bars, contracts.ProviderBar{
			TradeDate: tradeDate,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closePrice,
			AdjClose:  adjClose,
			Volume:    volume,
		})
	})

	return bars
}

// parseArchiveNumber strips thousands separators before parsing.
func parseArchiveNumber(s string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if cleaned == "" || cleaned == "-" {
		return 0, fmt.Errorf("empty cell")
	}
	return strconv.ParseFloat(cleaned, 64)
}
