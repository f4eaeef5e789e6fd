package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

// CoverageConfig holds missing-day / low-coverage thresholds.
type CoverageConfig struct {
	// MinCoveragePerDay is the canonical-rows / expected-tickers fraction
	// below which a non-empty day counts as low coverage.
	MinCoveragePerDay float64

	// HoldLowCoverageDays holds the run at this many low-coverage days.
	HoldLowCoverageDays int

	// MaxSamples caps the recorded date lists.
	MaxSamples int
}

// DefaultCoverageConfig returns the production thresholds.
func DefaultCoverageConfig() CoverageConfig {
	return CoverageConfig{
		MinCoveragePerDay:   0.60,
		HoldLowCoverageDays: 2,
		MaxSamples:          20,
	}
}

// CoverageResult is the structured detector output.
type CoverageResult struct {
	MissingDays      int
	MissingDates     []time.Time
	LowCoverageDays  int
	LowCoverageDates []time.Time
	Hold             bool
	HoldReason       string
}

// MissingDayDetector compares expected trading days against actual canonical
// coverage to find zero-coverage or low-coverage days.
type MissingDayDetector struct {
	canonical contracts.CanonicalBarRepository
	calendar  contracts.Calendar
	config    CoverageConfig
	logger    *logger.Logger
}

// NewMissingDayDetector creates a detector over the canonical store.
func NewMissingDayDetector(canonical contracts.CanonicalBarRepository, cal contracts.Calendar, config CoverageConfig, log *logger.Logger) *MissingDayDetector {
	return &MissingDayDetector{
		canonical: canonical,
		calendar:  cal,
		config:    config,
		logger:    log.WithField("module", "missing_day"),
	}
}

// Compute checks every trading day in [from, to] against expectedTickers.
// Any missing day, or HoldLowCoverageDays low-coverage days, holds the run.
func (d *MissingDayDetector) Compute(ctx context.Context, runID int64, from, to time.Time, expectedTickers int) (*CoverageResult, error) {
	counts, err := d.canonical.CountByDay(ctx, runID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count canonical by day: %w", err)
	}

	byDay := make(map[string]int, len(counts))
	for _, dc := range counts {
		byDay[dc.Day.Format("2006-01-02")] = dc.Count
	}

	expected := expectedTickers
	if expected == 0 {
		expected = 1
	}

	result := &CoverageResult{}
	for _, day := range d.calendar.TradingDatesBetween(from, to) {
		count := byDay[day.Format("2006-01-02")]
		if count == 0 {
			result.MissingDays++
			if len(result.MissingDates) < d.config.MaxSamples {
				result.MissingDates = append(result.MissingDates, day)
			}
			continue
		}

		if float64(count)/float64(expected) < d.config.MinCoveragePerDay {
			result.LowCoverageDays++
			if len(result.LowCoverageDates) < d.config.MaxSamples {
				result.LowCoverageDates = append(result.LowCoverageDates, day)
			}
		}
	}

	if result.MissingDays > 0 {
		result.Hold = true
		result.HoldReason = contracts.HoldMissingDay
	} else if result.LowCoverageDays >= d.config.HoldLowCoverageDays {
		result.Hold = true
		result.HoldReason = contracts.HoldLowCoverageDays
	}

	d.logger.WithFields(map[string]interface{}{
		"run_id":       runID,
		"missing":      result.MissingDays,
		"low_coverage": result.LowCoverageDays,
		"hold":         result.Hold,
	}).Debug("Coverage scan completed")

	return result, nil
}
