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

// ImporterConfig bounds the importer's buffers and chunking. ChunkSize bounds
// memory only; tickers are still processed one at a time.
type ImporterConfig struct {
	ChunkSize          int
	RawBatchSize       int
	CanonicalBatchSize int
}

// DefaultImporterConfig returns the production sizes.
func DefaultImporterConfig() ImporterConfig {
	return ImporterConfig{
		ChunkSize:          100,
		RawBatchSize:       500,
		CanonicalBatchSize: 500,
	}
}

// ImportRequest is one import invocation. Zero From/To fall back to the
// lookback window ending at the effective trading day.
type ImportRequest struct {
	From       time.Time
	To         time.Time
	TickerCode string // optional single-ticker filter
	ChunkSize  int    // optional override
}

// Importer drives fetch, gate, raw buffering, selection and canonical
// buffering for a date range and ticker universe. It is the only component
// that talks to provider adapters.
type Importer struct {
	pipeline

	raw       contracts.RawBarRepository
	tickers   contracts.TickerRepository
	providers []contracts.Provider

	gate     *quality.Gate
	selector *selection.Selector
	window   *WindowResolver

	timezone string
	cutoff   string
	config   ImporterConfig
	now      func() time.Time
}

// NewImporter wires an importer.
func NewImporter(
	runs contracts.RunRepository,
	raw contracts.RawBarRepository,
	canonical contracts.CanonicalBarRepository,
	tickers contracts.TickerRepository,
	providers []contracts.Provider,
	gate *quality.Gate,
	selector *selection.Selector,
	window *WindowResolver,
	detect *Detectors,
	policy contracts.ImportPolicy,
	timezone, cutoff string,
	config ImporterConfig,
	log *logger.Logger,
) *Importer {
	return &Importer{
		pipeline: pipeline{
			runs:      runs,
			canonical: canonical,
			detect:    detect,
			policy:    policy,
			logger:    log.WithField("module", "importer"),
		},
		raw:       raw,
		tickers:   tickers,
		providers: providers,
		gate:      gate,
		selector:  selector,
		window:    window,
		timezone:  timezone,
		cutoff:    cutoff,
		config:    config,
		now:       time.Now,
	}
}

// WithNow overrides the clock for tests.
func (i *Importer) WithNow(now func() time.Time) *Importer {
	i.now = now
	return i
}

// Run executes one import. Every invocation leaves a permanent run row;
// operators diagnose the outcome from its metrics and notes.
func (i *Importer) Run(ctx context.Context, req ImportRequest) (*contracts.RunSummary, error) {
	win, err := i.window.Resolve(req.From, req.To, i.policy.LookbackTradingDays)
	if err != nil {
		return nil, fmt.Errorf("resolve window: %w", err)
	}

	universe, err := i.resolveUniverse(ctx, req.TickerCode)
	if err != nil {
		return nil, fmt.Errorf("resolve ticker universe: %w", err)
	}

	run := &contracts.Run{
		Job:           contracts.RunJobImportEOD,
		Mode:          contracts.RunModeFetch,
		Timezone:      i.timezone,
		Cutoff:        i.cutoff,
		FromDate:      win.From,
		ToDate:        win.To,
		TargetTickers: len(universe),
		TargetDays:    len(win.Days),
		StartedAt:     i.now(),
	}
	runID, err := i.runs.Create(ctx, run)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	i.logger.WithRun(runID).WithFields(map[string]interface{}{
		"from":    win.From.Format("2006-01-02"),
		"to":      win.To.Format("2006-01-02"),
		"tickers": len(universe),
		"days":    len(win.Days),
	}).Info("Import run started")

	st := newRunState(runID, len(universe), len(win.Days))

	if len(win.Days) == 0 {
		// The run could not even be attempted; FAILED, not held.
		note := "zero trading days in range"
		st.status = contracts.RunStatusFailed
		st.reason = note
		st.note(note)
		if err := i.runs.Finish(ctx, runID, contracts.RunStatusFailed, st.metrics(), st.joinedNotes()); err != nil {
			return nil, fmt.Errorf("finish empty run %d: %w", runID, err)
		}
		return st.summary(), nil
	}

	rawWriter := NewBatchWriter(i.config.RawBatchSize, i.raw.InsertBatch)
	canonicalWriter := NewBatchWriter(i.config.CanonicalBatchSize, i.canonical.UpsertBatch)

	chunkSize := i.config.ChunkSize
	if req.ChunkSize > 0 {
		chunkSize = req.ChunkSize
	}

	for start := 0; start < len(universe); start += chunkSize {
		end := start + chunkSize
		if end > len(universe) {
			end = len(universe)
		}
		for _, ticker := range universe[start:end] {
			if err := i.importTicker(ctx, ticker, win, st, rawWriter, canonicalWriter); err != nil {
				return i.fail(ctx, runID, st, fmt.Sprintf("import aborted: %v", err), err)
			}
		}
	}

	if err := rawWriter.Close(ctx); err != nil {
		return i.fail(ctx, runID, st, fmt.Sprintf("raw flush failed: %v", err), err)
	}
	// Detectors read the canonical table, so the buffer must land first.
	if err := canonicalWriter.Close(ctx); err != nil {
		return i.fail(ctx, runID, st, fmt.Sprintf("canonical flush failed: %v", err), err)
	}

	if err := i.finalize(ctx, runID, runID, win, st); err != nil {
		return nil, err
	}
	return st.summary(), nil
}

// importTicker runs the fetch-gate loop for one ticker across all providers,
// then selects per trading day.
func (i *Importer) importTicker(
	ctx context.Context,
	ticker contracts.Ticker,
	win Window,
	st *runState,
	rawWriter *BatchWriter[contracts.RawBar],
	canonicalWriter *BatchWriter[contracts.CanonicalBar],
) error {
	candidates := make(map[string]map[string]selection.Candidate, len(win.Days))
	importedAt := i.now()

	for _, p := range i.providers {
		symbol := p.MapTickerCodeToSymbol(ticker.Code)
		bars, err := p.Fetch(ctx, symbol, win.From, win.To)
		if err != nil {
			// Provider failures suppress this ticker's coverage for this
			// source only; they are recorded as raw evidence, not failures.
			code, msg := providerErrorCode(err)
			st.tallyProviderError(p.Name(), code)
			errRow := contracts.RawBar{
				RunID:      st.runID,
				TickerID:   ticker.ID,
				TradeDate:  win.To,
				Source:     p.Name(),
				ErrorCode:  code,
				ErrorMsg:   msg,
				ImportedAt: importedAt,
			}
			if werr := rawWriter.Add(ctx, errRow); werr != nil {
				return werr
			}
			continue
		}

		for _, bar := range bars {
			if bar.TradeDate.Before(win.From) || bar.TradeDate.After(win.To) {
				continue
			}
			day := dayKey(bar.TradeDate)

			verdict := i.gate.Validate(bar)
			raw := contracts.RawBar{
				RunID:      st.runID,
				TickerID:   ticker.ID,
				TradeDate:  bar.TradeDate,
				Source:     p.Name(),
				Open:       bar.Open,
				High:       bar.High,
				Low:        bar.Low,
				Close:      bar.Close,
				AdjClose:   bar.AdjClose,
				Volume:     bar.Volume,
				HardValid:  verdict.HardValid,
				SoftFlags:  verdict.Flags,
				ErrorCode:  verdict.ErrorCode,
				ErrorMsg:   verdict.ErrorMsg,
				ImportedAt: importedAt,
			}
			if err := rawWriter.Add(ctx, raw); err != nil {
				return err
			}

			if !verdict.HardValid {
				st.hardRejects++
			}
			st.softFlags += len(verdict.Flags)

			if candidates[day] == nil {
				candidates[day] = make(map[string]selection.Candidate, len(i.providers))
			}
			candidates[day][p.Name()] = selection.Candidate{
				Source:    p.Name(),
				Bar:       bar,
				HardValid: verdict.HardValid,
				Flags:     verdict.Flags,
			}
		}
	}

	builtAt := i.now()
	for _, day := range win.Days {
		pick := i.selector.Select(day, candidates[dayKey(day)])
		if pick == nil {
			continue
		}

		st.canonicalPoints++
		if pick.Reason == contracts.ReasonFallbackUsed {
			st.fallbacks++
		}

		err := canonicalWriter.Add(ctx, contracts.CanonicalBar{
			RunID:        st.runID,
			TickerID:     ticker.ID,
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
			BuiltAt:      builtAt,
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// resolveUniverse loads the active universe, or the single filtered ticker.
func (i *Importer) resolveUniverse(ctx context.Context, code string) ([]contracts.Ticker, error) {
	if code != "" {
		t, err := i.tickers.GetByCode(ctx, code)
		if err != nil {
			return nil, err
		}
		return []contracts.Ticker{*t}, nil
	}
	return i.tickers.Active(ctx)
}

// providerErrorCode classifies a fetch failure for the per-source tally.
func providerErrorCode(err error) (code, msg string) {
	var perr *contracts.ProviderError
	if errors.As(err, &perr) {
		return perr.Code, perr.Msg
	}
	return "fetch_failed", err.Error()
}

func dayKey(t time.Time) string {
	return t.Format("2006-01-02")
}
