package contracts

import (
	"context"
	"time"
)

// RunRepository owns the run state machine rows.
type RunRepository interface {
	// Create inserts a new run in RUNNING state and returns its id.
	Create(ctx context.Context, run *Run) (int64, error)

	// Get loads one run.
	Get(ctx context.Context, id int64) (*Run, error)

	// List returns the most recent runs, newest first.
	List(ctx context.Context, limit int) ([]*Run, error)

	// Finish is the single terminal write: status, aggregate metrics and
	// notes land together, along with finished_at.
	Finish(ctx context.Context, id int64, status RunStatus, metrics RunMetrics, notes string) error

	// AppendNotes appends to an already-finished run's notes (publish audit).
	AppendNotes(ctx context.Context, id int64, note string) error

	// LatestSuccessImport resolves the newest SUCCESS import run whose
	// effective window covers end. Returns nil when none exists.
	LatestSuccessImport(ctx context.Context, end time.Time) (*Run, error)

	// SweepStuck flips RUNNING runs older than maxAge to FAILED and returns
	// how many were swept.
	SweepStuck(ctx context.Context, maxAge time.Duration) (int, error)
}

// SourceClose is one hard-valid raw close used by the disagreement detector.
type SourceClose struct {
	TickerID  int64
	TradeDate time.Time
	Source    string
	Close     float64
}

// RawBarCursor is a lazy finite iterator over raw rows ordered by
// (ticker, date). Restartable only by re-issuing the query.
type RawBarCursor interface {
	// Next returns the next row; ok is false once the stream is exhausted.
	Next() (bar RawBar, ok bool, err error)

	// Close releases the underlying rows.
	Close()
}

// RawBarRepository stores per-source observations. Append-only.
type RawBarRepository interface {
	// InsertBatch appends raw rows. Rows are never updated.
	InsertBatch(ctx context.Context, bars []RawBar) error

	// CountByRun returns the number of raw rows a run produced.
	CountByRun(ctx context.Context, runID int64) (int64, error)

	// Stream opens a cursor over a run's raw rows within [from, to],
	// ordered by (ticker, date, source).
	Stream(ctx context.Context, runID int64, from, to time.Time) (RawBarCursor, error)

	// ValidCloses returns hard-valid closes for disagreement detection,
	// ordered by (ticker, date, source).
	ValidCloses(ctx context.Context, runID int64, from, to time.Time) ([]SourceClose, error)
}

// DayCount is the canonical row count for one trading day of a run.
type DayCount struct {
	Day   time.Time
	Count int
}

// CanonicalBarRepository stores per-run canonical picks.
type CanonicalBarRepository interface {
	// UpsertBatch writes canonical rows for a run.
	UpsertBatch(ctx context.Context, bars []CanonicalBar) error

	// DeleteByRun removes all canonical rows of a run (hold path).
	DeleteByRun(ctx context.Context, runID int64) (int64, error)

	// CountByRun returns the canonical point count of a run.
	CountByRun(ctx context.Context, runID int64) (int64, error)

	// CountByDay returns per-day canonical counts within [from, to].
	// Days without rows are absent from the result.
	CountByDay(ctx context.Context, runID int64, from, to time.Time) ([]DayCount, error)

	// ListByDay returns a run's canonical rows for one trading day.
	ListByDay(ctx context.Context, runID int64, day time.Time) ([]CanonicalBar, error)

	// ListByRun pages a run's canonical rows ordered by (ticker, date).
	ListByRun(ctx context.Context, runID int64, limit, offset int) ([]CanonicalBar, error)
}

// ProductionPriceRepository is the production price table surface.
type ProductionPriceRepository interface {
	// UpsertBatch promotes canonical rows, keyed (ticker, date).
	UpsertBatch(ctx context.Context, rows []ProductionPrice) error

	// ListByTicker returns published prices for one ticker in [from, to].
	ListByTicker(ctx context.Context, tickerID int64, from, to time.Time) ([]ProductionPrice, error)
}

// TickerRepository is the ticker universe surface.
type TickerRepository interface {
	// Active returns the active ticker universe ordered by code.
	Active(ctx context.Context) ([]Ticker, error)

	// GetByCode loads one ticker by its code.
	GetByCode(ctx context.Context, code string) (*Ticker, error)
}

// PublishResult is what the publish service returns.
type PublishResult struct {
	Status    RunStatus
	Published int
	Rejected  int
	Notes     []string
}
