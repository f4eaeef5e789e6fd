package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

// SoftQualityConfig holds the mass-anomaly thresholds.
type SoftQualityConfig struct {
	// GapExtremePct flags a bar whose close moved this fraction or more
	// against the previous trading day's close.
	GapExtremePct float64

	// GapMassRatio holds the run when the fraction of tickers gapping on
	// one day reaches it.
	GapMassRatio float64

	// StaleMassRatio holds the run when the fraction of stale tickers on
	// one day reaches it.
	StaleMassRatio float64

	// FlatMassRatio holds the run when the fraction of flat-repeat tickers
	// on one day reaches it.
	FlatMassRatio float64

	// FlatRepeatDays is the flat streak length that counts as a repeat.
	FlatRepeatDays int

	// MaxSamples caps the recorded sample list.
	MaxSamples int
}

// DefaultSoftQualityConfig returns the production thresholds.
func DefaultSoftQualityConfig() SoftQualityConfig {
	return SoftQualityConfig{
		GapExtremePct:  0.25,
		GapMassRatio:   0.05,
		StaleMassRatio: 0.30,
		FlatMassRatio:  0.15,
		FlatRepeatDays: 3,
		MaxSamples:     20,
	}
}

// SoftQualityResult is the structured evaluator output.
type SoftQualityResult struct {
	SoftFlags  int
	RuleCounts map[string]int
	Hold       bool
	HoldReason string
	Samples    []string
}

// tickerState is the per-ticker rolling context carried between days.
type tickerState struct {
	close      float64
	volume     int64
	seen       bool
	flatStreak int // consecutive flat days, all with volume > 0
}

// SoftQualityEvaluator walks canonical rows day by day looking for anomaly
// patterns that individually are tolerable but in aggregate mean the feed
// itself is broken.
type SoftQualityEvaluator struct {
	canonical contracts.CanonicalBarRepository
	calendar  contracts.Calendar
	config    SoftQualityConfig
	logger    *logger.Logger
	now       func() time.Time
}

// NewSoftQualityEvaluator creates an evaluator over the canonical store.
func NewSoftQualityEvaluator(canonical contracts.CanonicalBarRepository, cal contracts.Calendar, config SoftQualityConfig, log *logger.Logger) *SoftQualityEvaluator {
	return &SoftQualityEvaluator{
		canonical: canonical,
		calendar:  cal,
		config:    config,
		logger:    log.WithField("module", "soft_quality"),
		now:       time.Now,
	}
}

// WithNow overrides the clock. Used in tests.
func (e *SoftQualityEvaluator) WithNow(now func() time.Time) *SoftQualityEvaluator {
	e.now = now
	return e
}

// Evaluate walks trading days in [from, to] in order. The first hard stop
// (future date, inconsistent OHLC, or a mass threshold) wins for the whole
// run; evaluation stops there.
func (e *SoftQualityEvaluator) Evaluate(ctx context.Context, runID int64, from, to time.Time, expectedTickers int) (*SoftQualityResult, error) {
	result := &SoftQualityResult{
		RuleCounts: make(map[string]int),
	}

	// Trade dates are calendar dates, not instants. Compare them as dates
	// against the wall-clock date in the exchange's zone so a run on an
	// east-of-UTC clock does not see its own current-day bars as future.
	today := e.now().In(e.calendar.Location()).Format("2006-01-02")
	expected := expectedTickers
	if expected == 0 {
		expected = 1
	}

	state := make(map[int64]*tickerState)

	for _, day := range e.calendar.TradingDatesBetween(from, to) {
		rows, err := e.canonical.ListByDay(ctx, runID, day)
		if err != nil {
			return nil, fmt.Errorf("list canonical for %s: %w", day.Format("2006-01-02"), err)
		}

		var gapHits, staleHits, flatRepeatHits int

		for _, bar := range rows {
			// 1. future_date: the feed handed us a bar from the future.
			if bar.TradeDate.Format("2006-01-02") > today {
				result.RuleCounts[contracts.FlagFutureDate]++
				e.hold(result, contracts.HoldFutureDate, bar, "trade date beyond today")
				return result, nil
			}

			// 2. ohlc_inconsistent: canonical rows passed the gate once, so
			// this firing means selection or storage corrupted the bar.
			if inconsistentOHLC(bar) {
				result.RuleCounts[contracts.FlagOHLCInconsistent]++
				e.hold(result, contracts.HoldOHLCInconsistent, bar, "inconsistent OHLC")
				return result, nil
			}

			// 3. volume_missing
			if bar.Volume <= 0 {
				result.RuleCounts[contracts.FlagVolumeMissing]++
				result.SoftFlags++
			}

			prev := state[bar.TickerID]

			// 4. gap_extreme
			if prev != nil && prev.seen && prev.close > 0 {
				move := bar.Close - prev.close
				if move < 0 {
					move = -move
				}
				if move/prev.close >= e.config.GapExtremePct {
					result.RuleCounts[contracts.FlagGapExtreme]++
					result.SoftFlags++
					gapHits++
					e.sample(result, contracts.FlagGapExtreme, bar)
				}
			}

			// 5. stale_bar: identical close and volume versus the previous
			// day. Zero-volume repeats are legitimate on illiquid tickers
			// and excluded.
			if prev != nil && prev.seen &&
				bar.Close == prev.close && bar.Volume == prev.volume &&
				bar.Volume > 0 && prev.volume > 0 {
				result.RuleCounts[contracts.FlagStaleBar]++
				result.SoftFlags++
				staleHits++
				e.sample(result, contracts.FlagStaleBar, bar)
			}

			// 6. flat_bar / flat_repeat
			flat := bar.Open == bar.High && bar.High == bar.Low && bar.Low == bar.Close
			if flat {
				result.RuleCounts[contracts.FlagFlatBar]++
				result.SoftFlags++
			}

			streak := 0
			if prev != nil {
				streak = prev.flatStreak
			}
			if flat && bar.Volume > 0 {
				streak++
			} else {
				streak = 0
			}
			if streak >= e.config.FlatRepeatDays {
				result.RuleCounts[contracts.FlagFlatRepeat]++
				result.SoftFlags++
				flatRepeatHits++
				e.sample(result, contracts.FlagFlatRepeat, bar)
			}

			state[bar.TickerID] = &tickerState{
				close:      bar.Close,
				volume:     bar.Volume,
				seen:       true,
				flatStreak: streak,
			}
		}

		// Mass checks for the day, in rule priority order.
		if float64(gapHits)/float64(expected) >= e.config.GapMassRatio {
			e.holdDay(result, contracts.HoldGapExtremeMass, day, gapHits)
			return result, nil
		}
		if float64(staleHits)/float64(expected) >= e.config.StaleMassRatio {
			e.holdDay(result, contracts.HoldStaleMass, day, staleHits)
			return result, nil
		}
		if float64(flatRepeatHits)/float64(expected) >= e.config.FlatMassRatio {
			e.holdDay(result, contracts.HoldFlatRepeatMass, day, flatRepeatHits)
			return result, nil
		}
	}

	return result, nil
}

func (e *SoftQualityEvaluator) hold(result *SoftQualityResult, reason string, bar contracts.CanonicalBar, msg string) {
	result.Hold = true
	result.HoldReason = reason
	e.sampleMsg(result, fmt.Sprintf("%s ticker=%d date=%s: %s",
		reason, bar.TickerID, bar.TradeDate.Format("2006-01-02"), msg))
	e.logger.WithFields(map[string]interface{}{
		"run_id": bar.RunID,
		"reason": reason,
		"ticker": bar.TickerID,
		"date":   bar.TradeDate.Format("2006-01-02"),
	}).Warn("Soft quality hard stop")
}

func (e *SoftQualityEvaluator) holdDay(result *SoftQualityResult, reason string, day time.Time, hits int) {
	result.Hold = true
	result.HoldReason = reason
	e.sampleMsg(result, fmt.Sprintf("%s date=%s hits=%d", reason, day.Format("2006-01-02"), hits))
	e.logger.WithFields(map[string]interface{}{
		"reason": reason,
		"date":   day.Format("2006-01-02"),
		"hits":   hits,
	}).Warn("Soft quality mass hold")
}

func (e *SoftQualityEvaluator) sample(result *SoftQualityResult, rule string, bar contracts.CanonicalBar) {
	e.sampleMsg(result, fmt.Sprintf("%s ticker=%d date=%s close=%.4f",
		rule, bar.TickerID, bar.TradeDate.Format("2006-01-02"), bar.Close))
}

func (e *SoftQualityEvaluator) sampleMsg(result *SoftQualityResult, msg string) {
	if len(result.Samples) < e.config.MaxSamples {
		result.Samples = append(result.Samples, msg)
	}
}

// inconsistentOHLC mirrors the gate's hard OHLC rules.
func inconsistentOHLC(bar contracts.CanonicalBar) bool {
	if bar.High < bar.Low {
		return true
	}
	if bar.Open < 0 || bar.High < 0 || bar.Low < 0 || bar.Close < 0 {
		return true
	}
	return bar.Close > bar.High || bar.Close < bar.Low
}
