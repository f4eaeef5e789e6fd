package eod

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pricecanon/internal/contracts"
)

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("run not found")

// RunRepository implements contracts.RunRepository on canon.runs.
type RunRepository struct {
	pool *pgxpool.Pool
}

// NewRunRepository creates a run repository.
func NewRunRepository(pool *pgxpool.Pool) *RunRepository {
	return &RunRepository{pool: pool}
}

const runColumns = `
	run_id, job, mode, parent_run_id, raw_source_run_id, timezone, cutoff,
	from_date, to_date, target_tickers, target_days, status,
	coverage_pct, fallback_pct, hard_rejects, soft_flags, disagree_major,
	missing_trading_day, notes, started_at, finished_at
`

// Create inserts a new run in RUNNING state and returns its id.
func (r *RunRepository) Create(ctx context.Context, run *contracts.Run) (int64, error) {
	query := `
		INSERT INTO canon.runs (
			job, mode, parent_run_id, raw_source_run_id, timezone, cutoff,
			from_date, to_date, target_tickers, target_days, status, started_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING run_id
	`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		run.Job, run.Mode, run.ParentRunID, run.RawSourceRunID,
		run.Timezone, run.Cutoff, run.FromDate, run.ToDate,
		run.TargetTickers, run.TargetDays, contracts.RunStatusRunning, run.StartedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// Get loads one run.
func (r *RunRepository) Get(ctx context.Context, id int64) (*contracts.Run, error) {
	query := `SELECT ` + runColumns + ` FROM canon.runs WHERE run_id = $1`

	run, err := scanRun(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("run %d: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %d: %w", id, err)
	}
	return run, nil
}

// List returns the most recent runs, newest first.
func (r *RunRepository) List(ctx context.Context, limit int) ([]*contracts.Run, error) {
	query := `SELECT ` + runColumns + ` FROM canon.runs ORDER BY run_id DESC LIMIT $1`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*contracts.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Finish is the single terminal write. It only applies to a RUNNING run, so a
// run can never terminate twice.
func (r *RunRepository) Finish(ctx context.Context, id int64, status contracts.RunStatus, metrics contracts.RunMetrics, notes string) error {
	query := `
		UPDATE canon.runs SET
			status = $2,
			coverage_pct = $3,
			fallback_pct = $4,
			hard_rejects = $5,
			soft_flags = $6,
			disagree_major = $7,
			missing_trading_day = $8,
			notes = $9,
			finished_at = now()
		WHERE run_id = $1 AND status = $10
	`

	tag, err := r.pool.Exec(ctx, query, id, status,
		metrics.CoveragePct, metrics.FallbackPct, metrics.HardRejects,
		metrics.SoftFlags, metrics.DisagreeMajor, metrics.MissingTradingDay,
		notes, contracts.RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finish run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish run %d: run is not RUNNING", id)
	}
	return nil
}

// AppendNotes appends to a run's notes column.
func (r *RunRepository) AppendNotes(ctx context.Context, id int64, note string) error {
	query := `
		UPDATE canon.runs SET
			notes = CASE WHEN notes = '' THEN $2 ELSE notes || $3 || $2 END
		WHERE run_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, id, note, contracts.NoteSeparator)
	if err != nil {
		return fmt.Errorf("append notes to run %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("append notes to run %d: %w", id, ErrRunNotFound)
	}
	return nil
}

// LatestSuccessImport resolves the newest SUCCESS import run whose effective
// window covers end. Returns nil when none exists.
func (r *RunRepository) LatestSuccessImport(ctx context.Context, end time.Time) (*contracts.Run, error) {
	query := `
		SELECT ` + runColumns + `
		FROM canon.runs
		WHERE job = $1 AND status = $2 AND from_date <= $3 AND to_date >= $3
		ORDER BY run_id DESC
		LIMIT 1
	`

	run, err := scanRun(r.pool.QueryRow(ctx, query,
		contracts.RunJobImportEOD, contracts.RunStatusSuccess, end))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve latest success import: %w", err)
	}
	return run, nil
}

// SweepStuck flips RUNNING runs older than maxAge to FAILED. A process that
// died mid-run leaves its row RUNNING forever; this is the operational
// backstop.
func (r *RunRepository) SweepStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	query := `
		UPDATE canon.runs SET
			status = $1,
			notes = CASE WHEN notes = '' THEN $2 ELSE notes || $3 || $2 END,
			finished_at = now()
		WHERE status = $4 AND started_at < $5
	`

	tag, err := r.pool.Exec(ctx, query,
		contracts.RunStatusFailed, "stuck_run_swept", contracts.NoteSeparator,
		contracts.RunStatusRunning, time.Now().Add(-maxAge),
	)
	if err != nil {
		return 0, fmt.Errorf("sweep stuck runs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// scanRun reads one run row.
func scanRun(row pgx.Row) (*contracts.Run, error) {
	var run contracts.Run
	err := row.Scan(
		&run.ID, &run.Job, &run.Mode, &run.ParentRunID, &run.RawSourceRunID,
		&run.Timezone, &run.Cutoff, &run.FromDate, &run.ToDate,
		&run.TargetTickers, &run.TargetDays, &run.Status,
		&run.CoveragePct, &run.FallbackPct, &run.HardRejects, &run.SoftFlags,
		&run.DisagreeMajor, &run.MissingTradingDay,
		&run.Notes, &run.StartedAt, &run.FinishedAt,
	)
	if err != nil {
		return nil, err
	}
	return &run, nil
}
