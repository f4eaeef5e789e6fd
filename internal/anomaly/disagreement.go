package anomaly

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

// DisagreementConfig holds the cross-source disagreement thresholds.
type DisagreementConfig struct {
	// ThresholdPct is the symmetric close spread above which a bar counts
	// as a major disagreement.
	ThresholdPct float64

	// HoldRatio holds the run when major count / canonical points reaches it.
	HoldRatio float64

	// HoldCount holds the run when the absolute major count reaches it.
	HoldCount int

	// MaxSamples caps the recorded sample list.
	MaxSamples int
}

// DefaultDisagreementConfig returns the production thresholds.
func DefaultDisagreementConfig() DisagreementConfig {
	return DisagreementConfig{
		ThresholdPct: 0.03,
		HoldRatio:    0.01,
		HoldCount:    20,
		MaxSamples:   20,
	}
}

// DisagreementSample is one flagged (ticker, date) pair.
type DisagreementSample struct {
	TickerID  int64
	TradeDate time.Time
	SpreadPct float64
	Sources   []string
}

// DisagreementResult is the structured detector output. Detectors never
// fail a run themselves; the orchestrator interprets Hold.
type DisagreementResult struct {
	Major      int
	Ratio      float64
	Samples    []DisagreementSample
	Hold       bool
	HoldReason string
}

// DisagreementDetector flags (ticker, date) pairs where independent sources
// diverge beyond a percentage threshold. Only hard-valid raw closes can
// trigger it: a bar the gate rejected could never have influenced canonical
// output and must not be able to hold a run.
type DisagreementDetector struct {
	raw    contracts.RawBarRepository
	config DisagreementConfig
	logger *logger.Logger
}

// NewDisagreementDetector creates a detector over the raw bar store.
func NewDisagreementDetector(raw contracts.RawBarRepository, config DisagreementConfig, log *logger.Logger) *DisagreementDetector {
	return &DisagreementDetector{
		raw:    raw,
		config: config,
		logger: log.WithField("module", "disagreement"),
	}
}

// Compute scans the raw bars of rawRunID within [from, to]. canonicalPoints
// is the denominator for the ratio; zero is treated as one so the ratio is
// always defined.
func (d *DisagreementDetector) Compute(ctx context.Context, rawRunID int64, from, to time.Time, canonicalPoints int) (*DisagreementResult, error) {
	closes, err := d.raw.ValidCloses(ctx, rawRunID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load valid closes: %w", err)
	}

	result := &DisagreementResult{}

	// Rows arrive ordered by (ticker, date, source); walk group by group.
	var group []contracts.SourceClose
	flush := func() {
		if len(group) >= 2 {
			d.checkGroup(group, result)
		}
		group = group[:0]
	}

	for _, c := range closes {
		if len(group) > 0 {
			prev := group[len(group)-1]
			if prev.TickerID != c.TickerID || !prev.TradeDate.Equal(c.TradeDate) {
				flush()
			}
		}
		group = append(group, c)
	}
	flush()

	denominator := canonicalPoints
	if denominator == 0 {
		denominator = 1
	}
	result.Ratio = float64(result.Major) / float64(denominator)

	if result.Ratio >= d.config.HoldRatio || result.Major >= d.config.HoldCount {
		result.Hold = true
		result.HoldReason = contracts.HoldDisagreeMajor
	}

	d.logger.WithFields(map[string]interface{}{
		"raw_run_id": rawRunID,
		"major":      result.Major,
		"ratio":      result.Ratio,
		"hold":       result.Hold,
	}).Debug("Disagreement scan completed")

	return result, nil
}

// checkGroup evaluates one (ticker, date) group with >= 2 sources.
func (d *DisagreementDetector) checkGroup(group []contracts.SourceClose, result *DisagreementResult) {
	min, max := group[0].Close, group[0].Close
	for _, c := range group[1:] {
		if c.Close < min {
			min = c.Close
		}
		if c.Close > max {
			max = c.Close
		}
	}

	mid := (max + min) / 2
	if mid == 0 {
		return
	}

	spread := (max - min) / mid
	if spread < d.config.ThresholdPct {
		return
	}

	result.Major++
	if len(result.Samples) < d.config.MaxSamples {
		sources := make([]string, 0, len(group))
		for _, c := range group {
			sources = append(sources, c.Source)
		}
		result.Samples = append(result.Samples, DisagreementSample{
			TickerID:  group[0].TickerID,
			TradeDate: group[0].TradeDate,
			SpreadPct: spread,
			Sources:   sources,
		})
	}
}
