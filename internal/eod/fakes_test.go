package eod

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
)

// fakeRunRepo is an in-memory contracts.RunRepository.
type fakeRunRepo struct {
	runs   map[int64]*contracts.Run
	nextID int64
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[int64]*contracts.Run)}
}

func (r *fakeRunRepo) Create(_ context.Context, run *contracts.Run) (int64, error) {
	r.nextID++
	stored := *run
	stored.ID = r.nextID
	stored.Status = contracts.RunStatusRunning
	r.runs[stored.ID] = &stored
	return stored.ID, nil
}

func (r *fakeRunRepo) Get(_ context.Context, id int64) (*contracts.Run, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	copied := *run
	return &copied, nil
}

func (r *fakeRunRepo) List(_ context.Context, limit int) ([]*contracts.Run, error) {
	ids := make([]int64, 0, len(r.runs))
	for id := range r.runs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] > ids[b] })

	var runs []*contracts.Run
	for _, id := range ids {
		if len(runs) == limit {
			break
		}
		copied := *r.runs[id]
		runs = append(runs, &copied)
	}
	return runs, nil
}

func (r *fakeRunRepo) Finish(_ context.Context, id int64, status contracts.RunStatus, metrics contracts.RunMetrics, notes string) error {
	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if run.Status != contracts.RunStatusRunning {
		return fmt.Errorf("finish run %d: run is not RUNNING", id)
	}
	run.Status = status
	run.CoveragePct = metrics.CoveragePct
	run.FallbackPct = metrics.FallbackPct
	run.HardRejects = metrics.HardRejects
	run.SoftFlags = metrics.SoftFlags
	run.DisagreeMajor = metrics.DisagreeMajor
	run.MissingTradingDay = metrics.MissingTradingDay
	run.Notes = notes
	now := time.Now()
	run.FinishedAt = &now
	return nil
}

func (r *fakeRunRepo) AppendNotes(_ context.Context, id int64, note string) error {
	run, ok := r.runs[id]
	if !ok {
		return fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if run.Notes == "" {
		run.Notes = note
	} else {
		run.Notes += contracts.NoteSeparator + note
	}
	return nil
}

func (r *fakeRunRepo) LatestSuccessImport(_ context.Context, end time.Time) (*contracts.Run, error) {
	var latest *contracts.Run
	for _, run := range r.runs {
		if run.Job != contracts.RunJobImportEOD || run.Status != contracts.RunStatusSuccess {
			continue
		}
		if run.FromDate.After(end) || run.ToDate.Before(end) {
			continue
		}
		if latest == nil || run.ID > latest.ID {
			latest = run
		}
	}
	if latest == nil {
		return nil, nil
	}
	copied := *latest
	return &copied, nil
}

func (r *fakeRunRepo) SweepStuck(_ context.Context, maxAge time.Duration) (int, error) {
	swept := 0
	cutoff := time.Now().Add(-maxAge)
	for _, run := range r.runs {
		if run.Status == contracts.RunStatusRunning && run.StartedAt.Before(cutoff) {
			run.Status = contracts.RunStatusFailed
			swept++
		}
	}
	return swept, nil
}

// fakeRawRepo is an in-memory contracts.RawBarRepository.
type fakeRawRepo struct {
	bars      []contracts.RawBar
	insertErr error
}

func (r *fakeRawRepo) InsertBatch(_ context.Context, bars []contracts.RawBar) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.bars = append(r.bars, bars...)
	return nil
}

func (r *fakeRawRepo) CountByRun(_ context.Context, runID int64) (int64, error) {
	var count int64
	for _, b := range r.bars {
		if b.RunID == runID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRawRepo) Stream(_ context.Context, runID int64, from, to time.Time) (contracts.RawBarCursor, error) {
	var matched []contracts.RawBar
	for _, b := range r.bars {
		if b.RunID == runID && !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			matched = append(matched, b)
		}
	}
	sortRawBars(matched)
	return &sliceCursor{bars: matched}, nil
}

func (r *fakeRawRepo) ValidCloses(_ context.Context, runID int64, from, to time.Time) ([]contracts.SourceClose, error) {
	var matched []contracts.RawBar
	for _, b := range r.bars {
		if b.RunID == runID && b.HardValid && !b.IsError() &&
			!b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			matched = append(matched, b)
		}
	}
	sortRawBars(matched)

	closes := make([]contracts.SourceClose, 0, len(matched))
	for _, b := range matched {
		closes = append(closes, contracts.SourceClose{
			TickerID:  b.TickerID,
			TradeDate: b.TradeDate,
			Source:    b.Source,
			Close:     b.Close,
		})
	}
	return closes, nil
}

func sortRawBars(bars []contracts.RawBar) {
	sort.Slice(bars, func(a, b int) bool {
		if bars[a].TickerID != bars[b].TickerID {
			return bars[a].TickerID < bars[b].TickerID
		}
		if !bars[a].TradeDate.Equal(bars[b].TradeDate) {
			return bars[a].TradeDate.Before(bars[b].TradeDate)
		}
		return bars[a].Source < bars[b].Source
	})
}

type sliceCursor struct {
	bars []contracts.RawBar
	pos  int
}

func (c *sliceCursor) Next() (contracts.RawBar, bool, error) {
	if c.pos >= len(c.bars) {
		return contracts.RawBar{}, false, nil
	}
	bar := c.bars[c.pos]
	c.pos++
	return bar, true, nil
}

func (c *sliceCursor) Close() {}

// fakeCanonicalRepo is an in-memory contracts.CanonicalBarRepository.
type fakeCanonicalRepo struct {
	bars []contracts.CanonicalBar
}

func canonicalKey(b contracts.CanonicalBar) string {
	return fmt.Sprintf("%d/%d/%s", b.RunID, b.TickerID, b.TradeDate.Format("2006-01-02"))
}

func (r *fakeCanonicalRepo) UpsertBatch(_ context.Context, bars []contracts.CanonicalBar) error {
	for _, b := range bars {
		replaced := false
		for i, existing := range r.bars {
			if canonicalKey(existing) == canonicalKey(b) {
				r.bars[i] = b
				replaced = true
				break
			}
		}
		if !replaced {
			r.bars = append(r.bars, b)
		}
	}
	return nil
}

func (r *fakeCanonicalRepo) DeleteByRun(_ context.Context, runID int64) (int64, error) {
	var kept []contracts.CanonicalBar
	var deleted int64
	for _, b := range r.bars {
		if b.RunID == runID {
			deleted++
			continue
		}
		kept = append(kept, b)
	}
	r.bars = kept
	return deleted, nil
}

func (r *fakeCanonicalRepo) CountByRun(_ context.Context, runID int64) (int64, error) {
	var count int64
	for _, b := range r.bars {
		if b.RunID == runID {
			count++
		}
	}
	return count, nil
}

func (r *fakeCanonicalRepo) CountByDay(_ context.Context, runID int64, from, to time.Time) ([]contracts.DayCount, error) {
	byDay := make(map[string]*contracts.DayCount)
	for _, b := range r.bars {
		if b.RunID != runID || b.TradeDate.Before(from) || b.TradeDate.After(to) {
			continue
		}
		key := b.TradeDate.Format("2006-01-02")
		if byDay[key] == nil {
			byDay[key] = &contracts.DayCount{Day: b.TradeDate}
		}
		byDay[key].Count++
	}

	keys := make([]string, 0, len(byDay))
	for k := range byDay {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	counts := make([]contracts.DayCount, 0, len(keys))
	for _, k := range keys {
		counts = append(counts, *byDay[k])
	}
	return counts, nil
}

func (r *fakeCanonicalRepo) ListByDay(_ context.Context, runID int64, day time.Time) ([]contracts.CanonicalBar, error) {
	var matched []contracts.CanonicalBar
	for _, b := range r.bars {
		if b.RunID == runID && b.TradeDate.Equal(day) {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].TickerID < matched[b].TickerID })
	return matched, nil
}

func (r *fakeCanonicalRepo) ListByRun(_ context.Context, runID int64, limit, offset int) ([]contracts.CanonicalBar, error) {
	var matched []contracts.CanonicalBar
	for _, b := range r.bars {
		if b.RunID == runID {
			matched = append(matched, b)
		}
	}
	sort.Slice(matched, func(a, b int) bool {
		if matched[a].TickerID != matched[b].TickerID {
			return matched[a].TickerID < matched[b].TickerID
		}
		return matched[a].TradeDate.Before(matched[b].TradeDate)
	})

	if offset >= len(matched) {
		return nil, nil
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	return matched, nil
}

// fakeProductionRepo is an in-memory contracts.ProductionPriceRepository.
type fakeProductionRepo struct {
	rows map[string]contracts.ProductionPrice
}

func newFakeProductionRepo() *fakeProductionRepo {
	return &fakeProductionRepo{rows: make(map[string]contracts.ProductionPrice)}
}

func (r *fakeProductionRepo) UpsertBatch(_ context.Context, prices []contracts.ProductionPrice) error {
	for _, p := range prices {
		key := fmt.Sprintf("%d/%s", p.TickerID, p.TradeDate.Format("2006-01-02"))
		r.rows[key] = p
	}
	return nil
}

func (r *fakeProductionRepo) ListByTicker(_ context.Context, tickerID int64, from, to time.Time) ([]contracts.ProductionPrice, error) {
	var matched []contracts.ProductionPrice
	for _, p := range r.rows {
		if p.TickerID == tickerID && !p.TradeDate.Before(from) && !p.TradeDate.After(to) {
			matched = append(matched, p)
		}
	}
	sort.Slice(matched, func(a, b int) bool { return matched[a].TradeDate.Before(matched[b].TradeDate) })
	return matched, nil
}

// fakeTickerRepo is an in-memory contracts.TickerRepository.
type fakeTickerRepo struct {
	tickers []contracts.Ticker
}

func (r *fakeTickerRepo) Active(_ context.Context) ([]contracts.Ticker, error) {
	return r.tickers, nil
}

func (r *fakeTickerRepo) GetByCode(_ context.Context, code string) (*contracts.Ticker, error) {
	for _, t := range r.tickers {
		if t.Code == code {
			copied := t
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("ticker %s: %w", code, ErrTickerNotFound)
}

// fakeProvider serves canned bars per symbol.
type fakeProvider struct {
	name string
	bars map[string][]contracts.ProviderBar
	err  error
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) MapTickerCodeToSymbol(code string) string { return code }

func (p *fakeProvider) Fetch(_ context.Context, symbol string, from, to time.Time) ([]contracts.ProviderBar, error) {
	if p.err != nil {
		return nil, p.err
	}
	var matched []contracts.ProviderBar
	for _, b := range p.bars[symbol] {
		if !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			matched = append(matched, b)
		}
	}
	return matched, nil
}
