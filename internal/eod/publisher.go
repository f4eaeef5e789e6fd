package eod

import (
	"context"
	"fmt"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

// Publisher promotes a SUCCESS run's canonical rows into the production
// price table with full provenance.
type Publisher struct {
	runs       contracts.RunRepository
	canonical  contracts.CanonicalBarRepository
	production contracts.ProductionPriceRepository
	logger     *logger.Logger
}

// NewPublisher wires a publisher.
func NewPublisher(
	runs contracts.RunRepository,
	canonical contracts.CanonicalBarRepository,
	production contracts.ProductionPriceRepository,
	log *logger.Logger,
) *Publisher {
	return &Publisher{
		runs:       runs,
		canonical:  canonical,
		production: production,
		logger:     log.WithField("module", "publisher"),
	}
}

// Publish streams the run's canonical rows in batches into the production
// table. Rows missing required fields are counted and skipped, never fatal;
// publishing zero rows is itself a failure.
func (p *Publisher) Publish(ctx context.Context, runID int64, batchSize int) (*contracts.PublishResult, error) {
	run, err := p.runs.Get(ctx, runID)
	if err != nil {
		return nil, err
	}

	// Explicit status assertion: held and failed runs have zero publishable
	// rows by contract, and a RUNNING run is not yet decided.
	if run.Status != contracts.RunStatusSuccess {
		return &contracts.PublishResult{
			Status: contracts.RunStatusFailed,
			Notes:  []string{fmt.Sprintf("%s:%s", contracts.NotePublishNotSuccess, run.Status)},
		}, nil
	}

	if batchSize <= 0 {
		batchSize = 500
	}

	result := &contracts.PublishResult{Status: contracts.RunStatusSuccess}
	for offset := 0; ; offset += batchSize {
		bars, err := p.canonical.ListByRun(ctx, runID, batchSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list canonical rows of run %d: %w", runID, err)
		}
		if len(bars) == 0 {
			break
		}

		page := make([]contracts.ProductionPrice, 0, len(bars))
		for _, b := range bars {
			if !publishable(b) {
				result.Rejected++
				continue
			}
			page = append(page, contracts.ProductionPrice{
				TickerID:  b.TickerID,
				TradeDate: b.TradeDate,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
				Close:     b.Close,
				AdjClose:  b.AdjClose,
				Volume:    b.Volume,
				Source:    b.ChosenSource,
				RunID:     runID,
			})
		}

		if err := p.production.UpsertBatch(ctx, page); err != nil {
			return nil, fmt.Errorf("upsert production prices: %w", err)
		}
		result.Published += len(page)

		if len(bars) < batchSize {
			break
		}
	}

	if result.Published < 1 {
		result.Status = contracts.RunStatusFailed
		result.Notes = append(result.Notes, "no_canonical_rows")
		return result, nil
	}

	note := fmt.Sprintf("published=%d rejected=%d", result.Published, result.Rejected)
	result.Notes = append(result.Notes, note)

	// Best-effort audit annotation; a failure here does not undo the publish.
	if err := p.runs.AppendNotes(ctx, runID, note); err != nil {
		p.logger.WithRun(runID).WithError(err).Warn("Failed to annotate run after publish")
	}

	p.logger.WithRun(runID).WithFields(map[string]interface{}{
		"published": result.Published,
		"rejected":  result.Rejected,
	}).Info("Publish completed")
	return result, nil
}

// publishable checks the required fields of one canonical row.
func publishable(b contracts.CanonicalBar) bool {
	if b.TickerID <= 0 || b.TradeDate.IsZero() {
		return false
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return false
	}
	return true
}
