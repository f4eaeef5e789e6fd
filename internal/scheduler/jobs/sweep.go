package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

// StuckRunSweepJob fails RUNNING runs that never reached a terminal state,
// usually after a process crash mid-run.
type StuckRunSweepJob struct {
	runs     contracts.RunRepository
	maxAge   time.Duration
	schedule string
	logger   *logger.Logger
}

// NewStuckRunSweepJob creates the stuck-run sweep job.
func NewStuckRunSweepJob(runs contracts.RunRepository, maxAge time.Duration, schedule string, log *logger.Logger) *StuckRunSweepJob {
	return &StuckRunSweepJob{
		runs:     runs,
		maxAge:   maxAge,
		schedule: schedule,
		logger:   log,
	}
}

// Name returns the job name
func (j *StuckRunSweepJob) Name() string {
	return "stuck_run_sweep"
}

// Schedule returns the cron schedule expression
func (j *StuckRunSweepJob) Schedule() string {
	return j.schedule
}

// Run executes the sweep
func (j *StuckRunSweepJob) Run(ctx context.Context) error {
	swept, err := j.runs.SweepStuck(ctx, j.maxAge)
	if err != nil {
		return fmt.Errorf("sweep stuck runs: %w", err)
	}

	if swept > 0 {
		j.logger.WithField("swept", swept).Warn("Stuck runs failed by sweep")
	}

	return nil
}
