package contracts

// QualityRules are the thresholds consumed by the quality gate. The gate is
// pure given these rules, so a rebuild under the same rules reproduces the
// same verdicts byte for byte.
type QualityRules struct {
	// MaxIntradayRangePct hard-rejects bars whose (high-low)/low exceeds the
	// threshold. Zero disables the check.
	MaxIntradayRangePct float64

	// FlagZeroVolume attaches volume_missing to bars with volume <= 0.
	FlagZeroVolume bool

	// FlagMissingAdjClose attaches adj_close_missing to bars without an
	// adjusted close.
	FlagMissingAdjClose bool
}

// DefaultQualityRules returns the production rule set.
func DefaultQualityRules() QualityRules {
	return QualityRules{
		MaxIntradayRangePct: 0,
		FlagZeroVolume:      true,
		FlagMissingAdjClose: true,
	}
}

// ProviderPriority is the ordered source list consumed by the selector.
// Earlier entries win.
type ProviderPriority []string

// Rank returns the position of a source, or -1 when the source is not
// configured.
func (p ProviderPriority) Rank(source string) int {
	for i, s := range p {
		if s == source {
			return i
		}
	}
	return -1
}

// Top returns the highest-priority source.
func (p ProviderPriority) Top() string {
	if len(p) == 0 {
		return ""
	}
	return p[0]
}

// ImportPolicy holds run-level import gating.
type ImportPolicy struct {
	// CoverageMinPct holds the run when coverage_pct falls below it.
	CoverageMinPct float64

	// LookbackTradingDays bounds how far back a default import window reaches.
	LookbackTradingDays int
}
