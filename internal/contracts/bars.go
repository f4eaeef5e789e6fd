package contracts

import (
	"strings"
	"time"
)

// SelectionReason records why the canonical selector picked a source.
type SelectionReason string

const (
	// ReasonPriorityWin means the top-priority source supplied a hard-valid bar.
	ReasonPriorityWin SelectionReason = "PRIORITY_WIN"
	// ReasonFallbackUsed means a lower-priority source won because the ones
	// above it were absent or hard-invalid.
	ReasonFallbackUsed SelectionReason = "FALLBACK_USED"
	// ReasonOnlySource means exactly one candidate existed for the bar.
	ReasonOnlySource SelectionReason = "ONLY_SOURCE"
)

// Soft flag codes attached to bars. Closed set; tests match exhaustively.
const (
	FlagVolumeMissing    = "volume_missing"
	FlagAdjCloseMissing  = "adj_close_missing"
	FlagGapExtreme       = "gap_extreme"
	FlagStaleBar         = "stale_bar"
	FlagFlatBar          = "flat_bar"
	FlagFlatRepeat       = "flat_repeat"
	FlagFutureDate       = "future_date"
	FlagOHLCInconsistent = "ohlc_inconsistent"
)

// Hold reason codes. Closed set.
const (
	HoldCoverageBelowMin = "coverage_below_min"
	HoldDisagreeMajor    = "disagree_major"
	HoldMissingDay       = "missing_trading_day"
	HoldLowCoverageDays  = "low_coverage_days"
	HoldFutureDate       = "future_date"
	HoldOHLCInconsistent = "ohlc_inconsistent"
	HoldGapExtremeMass   = "gap_extreme_mass"
	HoldStaleMass        = "stale_mass"
	HoldFlatRepeatMass   = "flat_repeat_mass"
)

// NotePublishNotSuccess prefixes the failure note written when a publish is
// refused because the run is not SUCCESS. The run's status follows the colon.
const NotePublishNotSuccess = "run_status_not_success"

// RawBar is one source's observation for (run, ticker, date). Raw bars are
// append-only: once written they are never updated, which is what makes
// rebuild-from-raw trustworthy.
type RawBar struct {
	RunID     int64
	TickerID  int64
	TradeDate time.Time
	Source    string

	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64

	HardValid bool
	SoftFlags []string

	// Set when the source failed instead of returning a bar.
	ErrorCode string
	ErrorMsg  string

	ImportedAt time.Time
}

// IsError reports whether this row records a provider failure rather than
// an observation.
func (b *RawBar) IsError() bool {
	return b.ErrorCode != ""
}

// CanonicalBar is the selected record for (run, ticker, date).
type CanonicalBar struct {
	RunID        int64
	TickerID     int64
	TradeDate    time.Time
	ChosenSource string
	Reason       SelectionReason
	Flags        []string // inherited from the winning candidate

	Open     float64
	High     float64
	Low      float64
	Close    float64
	AdjClose float64
	Volume   int64

	BuiltAt time.Time
}

// ProductionPrice is one row of the production price table, upserted by the
// publish service with full provenance.
type ProductionPrice struct {
	TickerID  int64
	TradeDate time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	AdjClose  float64
	Volume    int64
	Source    string
	RunID     int64
}

// Ticker is one exchange-listed instrument in the active universe.
type Ticker struct {
	ID     int64
	Code   string
	Name   string
	Status string
}

// JoinFlags serializes soft flag codes for storage.
func JoinFlags(flags []string) string {
	return strings.Join(flags, ",")
}

// SplitFlags parses stored soft flag codes.
func SplitFlags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
