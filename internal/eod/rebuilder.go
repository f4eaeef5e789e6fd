package eod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/quality"
	"github.com/wonny/pricecanon/internal/selection"
	"github.com/wonny/pricecanon/pkg/logger"
)

// RebuildRequest is one rebuild invocation. A nil SourceRunID auto-resolves
// the latest SUCCESS import whose window covers the requested end date.
type RebuildRequest struct {
	SourceRunID *int64
	From        time.Time
	To          time.Time
	TickerCode  string // optional single-ticker filter
}

// Rebuilder re-runs selection and all quality detectors against
// already-stored raw bars. It never calls a provider and never writes raw
// rows, so operators can change quality rules or provider priority
// retroactively while raw immutability guarantees the evidence is intact.
type Rebuilder struct {
	pipeline

	raw     contracts.RawBarRepository
	tickers contracts.TickerRepository

	gate     *quality.Gate
	selector *selection.Selector
	window   *WindowResolver

	timezone string
	cutoff   string
	config   ImporterConfig
	now      func() time.Time
}

// NewRebuilder wires a rebuilder.
func NewRebuilder(
	runs contracts.RunRepository,
	raw contracts.RawBarRepository,
	canonical contracts.CanonicalBarRepository,
	tickers contracts.TickerRepository,
	gate *quality.Gate,
	selector *selection.Selector,
	window *WindowResolver,
	detect *Detectors,
	policy contracts.ImportPolicy,
	timezone, cutoff string,
	config ImporterConfig,
	log *logger.Logger,
) *Rebuilder {
	return &Rebuilder{
		pipeline: pipeline{
			runs:      runs,
			canonical: canonical,
			detect:    detect,
			policy:    policy,
			logger:    log.WithField("module", "rebuilder"),
		},
		raw:      raw,
		tickers:  tickers,
		gate:     gate,
		selector: selector,
		window:   window,
		timezone: timezone,
		cutoff:   cutoff,
		config:   config,
		now:      time.Now,
	}
}

// WithNow overrides the clock for tests.
func (r *Rebuilder) WithNow(now func() time.Time) *Rebuilder {
	r.now = now
	return r
}

// Run executes one rebuild. A missing source run fails before any run row is
// created; there is nothing to audit when the input does not exist.
func (r *Rebuilder) Run(ctx context.Context, req RebuildRequest) (*contracts.RunSummary, error) {
	win, err := r.window.Resolve(req.From, req.To, r.policy.LookbackTradingDays)
	if err != nil {
		return nil, fmt.Errorf("resolve window: %w", err)
	}

	source, err := r.resolveSource(ctx, req.SourceRunID, win.To)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return &contracts.RunSummary{
			Status: contracts.RunStatusFailed,
			Reason: "source_run_not_found",
			Notes:  []string{"source_run_not_found"},
		}, nil
	}

	var tickerFilter int64
	targetTickers := source.TargetTickers
	if req.TickerCode != "" {
		t, err := r.tickers.GetByCode(ctx, req.TickerCode)
		if err != nil {
			return nil, err
		}
		tickerFilter = t.ID
		targetTickers = 1
	}

	run := &contracts.Run{
		Job:            contracts.RunJobRebuildCanonical,
		Mode:           contracts.RunModeRebuild,
		ParentRunID:    &source.ID,
		RawSourceRunID: &source.ID,
		Timezone:       r.timezone,
		Cutoff:         r.cutoff,
		FromDate:       win.From,
		ToDate:         win.To,
		TargetTickers:  targetTickers,
		TargetDays:     len(win.Days),
		StartedAt:      r.now(),
	}
	runID, err := r.runs.Create(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create rebuild run: %w", err)
	}

	r.logger.WithRun(runID).WithFields(map[string]interface{}{
		"source_run": source.ID,
		"from":       win.From.Format("2006-01-02"),
		"to":         win.To.Format("2006-01-02"),
	}).Info("Rebuild run started")

	st := newRunState(runID, targetTickers, len(win.Days))
	st.note(fmt.Sprintf("raw_source_run_id=%d", source.ID))

	if len(win.Days) == 0 {
		note := "zero trading days in range"
		st.status = contracts.RunStatusFailed
		st.reason = note
		st.note(note)
		if err := r.runs.Finish(ctx, runID, contracts.RunStatusFailed, st.metrics(), st.joinedNotes()); err != nil {
			return nil, fmt.Errorf("finish empty run %d: %w", runID, err)
		}
		return st.summary(), nil
	}

	if err := r.replay(ctx, source.ID, tickerFilter, win, st); err != nil {
		return r.fail(ctx, runID, st, fmt.Sprintf("rebuild aborted: %v", err), err)
	}

	if err := r.finalize(ctx, runID, source.ID, win, st); err != nil {
		return nil, err
	}
	return st.summary(), nil
}

// replay streams the source run's raw rows grouped by (ticker, date),
// re-gates each with the current rules and re-selects under the current
// priority.
func (r *Rebuilder) replay(ctx context.Context, sourceRunID, tickerFilter int64, win Window, st *runState) error {
	cursor, err := r.raw.Stream(ctx, sourceRunID, win.From, win.To)
	if err != nil {
		return err
	}
	defer cursor.Close()

	writer := NewBatchWriter(r.config.CanonicalBatchSize, r.canonical.UpsertBatch)

	var (
		groupTicker int64
		groupDate   time.Time
		candidates  = make(map[string]selection.Candidate)
	)
	flush := func(ctx context.Context) error {
		if len(candidates) == 0 {
			return nil
		}
		err := r.selectGroup(ctx, groupTicker, groupDate, candidates, st, writer)
		candidates = make(map[string]selection.Candidate)
		return err
	}

	for {
		bar, ok, err := cursor.Next()
		if err != nil {
			return fmt.Errorf("read raw stream: %w", err)
		}
		if !ok {
			break
		}
		if tickerFilter != 0 && bar.TickerID != tickerFilter {
			continue
		}
		if bar.IsError() {
			// Provider failure rows carry no bar to re-gate.
			continue
		}

		if bar.TickerID != groupTicker || !bar.TradeDate.Equal(groupDate) {
			if err := flush(ctx); err != nil {
				return err
			}
			groupTicker = bar.TickerID
			groupDate = bar.TradeDate
		}

		verdict := r.gate.Validate(contracts.ProviderBar{
			TradeDate: bar.TradeDate,
			Open:      bar.Open,
			High:      bar.High,
			Low:       bar.Low,
			Close:     bar.Close,
			AdjClose:  bar.AdjClose,
			Volume:    bar.Volume,
		})
		if !verdict.HardValid {
			st.hardRejects++
		}
		st.softFlags += len(verdict.Flags)

		candidates[bar.Source] = selection.Candidate{
			Source: bar.Source,
			Bar: contracts.ProviderBar{
				TradeDate: bar.TradeDate,
				Open:      bar.Open,
				High:      bar.High,
				Low:       bar.Low,
				Close:     bar.Close,
				AdjClose:  bar.AdjClose,
				Volume:    bar.Volume,
			},
			HardValid: verdict.HardValid,
			Flags:     verdict.Flags,
		}
	}
	if err := flush(ctx); err != nil {
		return err
	}

	return writer.Close(ctx)
}

// selectGroup runs the selector for one (ticker, date) group.
func (r *Rebuilder) selectGroup(
	ctx context.Context,
	tickerID int64,
	day time.Time,
	candidates map[string]selection.Candidate,
	st *runState,
	writer *BatchWriter[contracts.CanonicalBar],
) error {
	pick := r.selector.Select(day, candidates)
	if pick == nil {
		return nil
	}

	st.canonicalPoints++
	if pick.Reason == contracts.ReasonFallbackUsed {
		st.fallbacks++
	}

	return writer.Add(ctx, contracts.CanonicalBar{
		RunID:        st.runID,
		TickerID:     tickerID,
		TradeDate:    day,
		ChosenSource: pick.Source,
		Reason:       pick.Reason,
		Flags:        pick.Flags,
		Open:         pick.Bar.Open,
		High:         pick.Bar.High,
		Low:          pick.Bar.Low,
		Close:        pick.Bar.Close,
		AdjClose:     pick.Bar.AdjClose,
		Volume:       pick.Bar.Volume,
		BuiltAt:      r.now(),
	})
}

// resolveSource locates the raw source run and verifies its raw rows exist.
// Returns nil when no usable source exists.
func (r *Rebuilder) resolveSource(ctx context.Context, sourceRunID *int64, end time.Time) (*contracts.Run, error) {
	var source *contracts.Run
	if sourceRunID != nil {
		run, err := r.runs.Get(ctx, *sourceRunID)
		if errors.Is(err, ErrRunNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		source = run
	} else {
		run, err := r.runs.LatestSuccessImport(ctx, end)
		if err != nil {
			return nil, err
		}
		if run == nil {
			return nil, nil
		}
		source = run
	}

	count, err := r.raw.CountByRun(ctx, source.ID)
	if err != nil {
		return nil, fmt.Errorf("count raw bars of source run %d: %w", source.ID, err)
	}
	if count == 0 {
		return nil, nil
	}
	return source, nil
}
