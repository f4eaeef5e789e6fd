package anomaly

import (
	"context"
	"sort"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
)

// fakeRawRepo is an in-memory RawBarRepository for detector tests.
type fakeRawRepo struct {
	bars []contracts.RawBar
}

func (f *fakeRawRepo) InsertBatch(_ context.Context, bars []contracts.RawBar) error {
	f.bars = append(f.bars, bars...)
	return nil
}

func (f *fakeRawRepo) CountByRun(_ context.Context, runID int64) (int64, error) {
	var n int64
	for _, b := range f.bars {
		if b.RunID == runID {
			n++
		}
	}
	return n, nil
}

func (f *fakeRawRepo) Stream(_ context.Context, runID int64, from, to time.Time) (contracts.RawBarCursor, error) {
	var rows []contracts.RawBar
	for _, b := range f.bars {
		if b.RunID == runID && !b.TradeDate.Before(from) && !b.TradeDate.After(to) {
			rows = append(rows, b)
		}
	}
	sortRawBars(rows)
	return &sliceCursor{rows: rows}, nil
}

func (f *fakeRawRepo) ValidCloses(_ context.Context, runID int64, from, to time.Time) ([]contracts.SourceClose, error) {
	var out []contracts.SourceClose
	for _, b := range f.bars {
		if b.RunID != runID || !b.HardValid || b.IsError() {
			continue
		}
		if b.TradeDate.Before(from) || b.TradeDate.After(to) {
			continue
		}
		out = append(out, contracts.SourceClose{
			TickerID:  b.TickerID,
			TradeDate: b.TradeDate,
			Source:    b.Source,
			Close:     b.Close,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TickerID != out[j].TickerID {
			return out[i].TickerID < out[j].TickerID
		}
		if !out[i].TradeDate.Equal(out[j].TradeDate) {
			return out[i].TradeDate.Before(out[j].TradeDate)
		}
		return out[i].Source < out[j].Source
	})
	return out, nil
}

func sortRawBars(rows []contracts.RawBar) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TickerID != rows[j].TickerID {
			return rows[i].TickerID < rows[j].TickerID
		}
		if !rows[i].TradeDate.Equal(rows[j].TradeDate) {
			return rows[i].TradeDate.Before(rows[j].TradeDate)
		}
		return rows[i].Source < rows[j].Source
	})
}

type sliceCursor struct {
	rows []contracts.RawBar
	pos  int
}

func (c *sliceCursor) Next() (contracts.RawBar, bool, error) {
	if c.pos >= len(c.rows) {
		return contracts.RawBar{}, false, nil
	}
	bar := c.rows[c.pos]
	c.pos++
	return bar, true, nil
}

func (c *sliceCursor) Close() {}

// fakeCanonicalRepo is an in-memory CanonicalBarRepository for detector tests.
type fakeCanonicalRepo struct {
	bars []contracts.CanonicalBar
}

func (f *fakeCanonicalRepo) UpsertBatch(_ context.Context, bars []contracts.CanonicalBar) error {
	f.bars = append(f.bars, bars...)
	return nil
}

func (f *fakeCanonicalRepo) DeleteByRun(_ context.Context, runID int64) (int64, error) {
	var kept []contracts.CanonicalBar
	var deleted int64
	for _, b := range f.bars {
		if b.RunID == runID {
			deleted++
			continue
		}
		kept = append(kept, b)
	}
	f.bars = kept
	return deleted, nil
}

func (f *fakeCanonicalRepo) CountByRun(_ context.Context, runID int64) (int64, error) {
	var n int64
	for _, b := range f.bars {
		if b.RunID == runID {
			n++
		}
	}
	return n, nil
}

func (f *fakeCanonicalRepo) CountByDay(_ context.Context, runID int64, from, to time.Time) ([]contracts.DayCount, error) {
	counts := make(map[string]*contracts.DayCount)
	for _, b := range f.bars {
		if b.RunID != runID || b.TradeDate.Before(from) || b.TradeDate.After(to) {
			continue
		}
		key := b.TradeDate.Format("2006-01-02")
		if counts[key] == nil {
			counts[key] = &contracts.DayCount{Day: b.TradeDate}
		}
		counts[key].Count++
	}

	out := make([]contracts.DayCount, 0, len(counts))
	for _, dc := range counts {
		out = append(out, *dc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Day.Before(out[j].Day) })
	return out, nil
}

func (f *fakeCanonicalRepo) ListByDay(_ context.Context, runID int64, day time.Time) ([]contracts.CanonicalBar, error) {
	var out []contracts.CanonicalBar
	for _, b := range f.bars {
		if b.RunID == runID && b.TradeDate.Equal(day) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TickerID < out[j].TickerID })
	return out, nil
}

func (f *fakeCanonicalRepo) ListByRun(_ context.Context, runID int64, limit, offset int) ([]contracts.CanonicalBar, error) {
	var all []contracts.CanonicalBar
	for _, b := range f.bars {
		if b.RunID == runID {
			all = append(all, b)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].TickerID != all[j].TickerID {
			return all[i].TickerID < all[j].TickerID
		}
		return all[i].TradeDate.Before(all[j].TradeDate)
	})
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}
