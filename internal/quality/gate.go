package quality

import (
	"github.com/wonny/pricecanon/internal/contracts"
)

// Hard reject codes. Closed set; a hard-rejected bar is excluded from
// canonical candidacy but still recorded as raw evidence.
const (
	RejectNegativePrice    = "negative_price"
	RejectHighBelowLow     = "high_below_low"
	RejectCloseOutOfRange  = "close_out_of_range"
	RejectOpenOutOfRange   = "open_out_of_range"
	RejectNonPositiveClose = "non_positive_close"
	RejectRangeTooWide     = "intraday_range_too_wide"
)

// Result is the gate verdict for one bar.
type Result struct {
	HardValid bool
	Flags     []string
	ErrorCode string
	ErrorMsg  string
}

// Gate validates one normalized bar against hard and soft rules. It is
// stateless and pure given its rules, so rebuilds under the same rules
// reproduce identical verdicts.
type Gate struct {
	rules contracts.QualityRules
}

// NewGate creates a gate for the given rule set.
func NewGate(rules contracts.QualityRules) *Gate {
	return &Gate{rules: rules}
}

// Rules returns the rule set the gate was built with.
func (g *Gate) Rules() contracts.QualityRules {
	return g.rules
}

// Validate applies hard rules first, then soft rules. A hard failure sets
// ErrorCode and leaves the bar non-selectable; soft failures only append
// flags.
func (g *Gate) Validate(bar contracts.ProviderBar) Result {
	if code := g.hardReject(bar); code != "" {
		return Result{
			HardValid: false,
			ErrorCode: code,
			ErrorMsg:  hardRejectMessage(code),
		}
	}

	return Result{
		HardValid: true,
		Flags:     g.softFlags(bar),
	}
}

// hardReject returns the first matching hard reject code, or "".
func (g *Gate) hardReject(bar contracts.ProviderBar) string {
	if bar.Open < 0 || bar.High < 0 || bar.Low < 0 || bar.Close < 0 {
		return RejectNegativePrice
	}
	if bar.Close <= 0 {
		return RejectNonPositiveClose
	}
	if bar.High < bar.Low {
		return RejectHighBelowLow
	}
	if bar.Close > bar.High || bar.Close < bar.Low {
		return RejectCloseOutOfRange
	}
	if bar.Open > bar.High || bar.Open < bar.Low {
		return RejectOpenOutOfRange
	}
	if g.rules.MaxIntradayRangePct > 0 && bar.Low > 0 {
		if (bar.High-bar.Low)/bar.Low > g.rules.MaxIntradayRangePct {
			return RejectRangeTooWide
		}
	}
	return ""
}

// softFlags returns the soft flag codes for a hard-valid bar.
func (g *Gate) softFlags(bar contracts.ProviderBar) []string {
	var flags []string
	if g.rules.FlagZeroVolume && bar.Volume <= 0 {
		flags = append(flags, contracts.FlagVolumeMissing)
	}
	if g.rules.FlagMissingAdjClose && bar.AdjClose == 0 {
		flags = append(flags, contracts.FlagAdjCloseMissing)
	}
	return flags
}

func hardRejectMessage(code string) string {
	switch code {
	case RejectNegativePrice:
		return "bar has a negative price field"
	case RejectHighBelowLow:
		return "high is below low"
	case RejectCloseOutOfRange:
		return "close is outside [low, high]"
	case RejectOpenOutOfRange:
		return "open is outside [low, high]"
	case RejectNonPositiveClose:
		return "close is not positive"
	case RejectRangeTooWide:
		return "intraday range exceeds configured maximum"
	default:
		return code
	}
}
