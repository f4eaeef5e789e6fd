package contracts

import (
	"context"
	"fmt"
	"time"
)

// ProviderBar is one normalized EOD bar as returned by a provider adapter,
// before quality gating.
type ProviderBar struct {
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    int64
}

// ProviderError is a structured provider failure. The orchestrator tallies
// these by source and code; they never fail a run by themselves.
type ProviderError struct {
	Code string
	Msg  string
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %s: %s", e.Code, e.Msg)
}

// Provider is the fetch contract every data vendor adapter implements. The
// core treats all providers identically regardless of vendor.
type Provider interface {
	// Name returns the source identifier used in priority lists and raw rows.
	Name() string

	// MapTickerCodeToSymbol translates an internal ticker code to the
	// vendor's symbol.
	MapTickerCodeToSymbol(code string) string

	// Fetch returns EOD bars for the symbol within [from, to]. Failures are
	// returned as *ProviderError where the vendor gave a classifiable code.
	Fetch(ctx context.Context, symbol string, from, to time.Time) ([]ProviderBar, error)
}

// Calendar is the trading-calendar contract.
type Calendar interface {
	// Location returns the exchange's time zone.
	Location() *time.Location

	// IsTradingDay reports whether the exchange is open on the date.
	IsTradingDay(date time.Time) bool

	// PreviousTradingDate returns the last trading day strictly before date.
	PreviousTradingDate(date time.Time) time.Time

	// TradingDatesBetween returns trading days in [from, to] ascending.
	TradingDatesBetween(from, to time.Time) []time.Time

	// LookbackStartDate returns the trading day n trading days before end.
	LookbackStartDate(end time.Time, n int) time.Time
}
