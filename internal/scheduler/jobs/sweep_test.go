package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/pkg/logger"
)

type sweepStubRepo struct {
	swept    int
	sweepErr error
	gotAge   time.Duration
}

func (s *sweepStubRepo) Create(context.Context, *contracts.Run) (int64, error) { return 0, nil }
func (s *sweepStubRepo) Get(context.Context, int64) (*contracts.Run, error)   { return nil, nil }
func (s *sweepStubRepo) List(context.Context, int) ([]*contracts.Run, error)  { return nil, nil }
func (s *sweepStubRepo) Finish(context.Context, int64, contracts.RunStatus, contracts.RunMetrics, string) error {
	return nil
}
func (s *sweepStubRepo) AppendNotes(context.Context, int64, string) error { return nil }
func (s *sweepStubRepo) LatestSuccessImport(context.Context, time.Time) (*contracts.Run, error) {
	return nil, nil
}

func (s *sweepStubRepo) SweepStuck(ctx context.Context, maxAge time.Duration) (int, error) {
	s.gotAge = maxAge
	return s.swept, s.sweepErr
}

func TestStuckRunSweepJob_Run(t *testing.T) {
	repo := &sweepStubRepo{swept: 2}
	job := NewStuckRunSweepJob(repo, 6*time.Hour, "0 30 * * * *", logger.NewNop())

	assert.Equal(t, "stuck_run_sweep", job.Name())
	assert.Equal(t, "0 30 * * * *", job.Schedule())

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 6*time.Hour, repo.gotAge)
}

func TestStuckRunSweepJob_RunError(t *testing.T) {
	repo := &sweepStubRepo{sweepErr: errors.New("db down")}
	job := NewStuckRunSweepJob(repo, time.Hour, "@hourly", logger.NewNop())

	assert.Error(t, job.Run(context.Background()))
}
