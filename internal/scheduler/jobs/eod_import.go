package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/pricecanon/internal/contracts"
	"github.com/wonny/pricecanon/internal/eod"
	"github.com/wonny/pricecanon/pkg/logger"
)

// EODImportJob runs the nightly import and, on success, publishes the run
// to the production price table.
type EODImportJob struct {
	importer  *eod.Importer
	publisher *eod.Publisher
	schedule  string
	batchSize int
	logger    *logger.Logger
}

// NewEODImportJob creates the nightly import job.
func NewEODImportJob(importer *eod.Importer, publisher *eod.Publisher, schedule string, batchSize int, log *logger.Logger) *EODImportJob {
	return &EODImportJob{
		importer:  importer,
		publisher: publisher,
		schedule:  schedule,
		batchSize: batchSize,
		logger:    log,
	}
}

// Name returns the job name
func (j *EODImportJob) Name() string {
	return "eod_import"
}

// Schedule returns the cron schedule expression
func (j *EODImportJob) Schedule() string {
	return j.schedule
}

// Run executes one import. A held run is terminal and waits for an
// operator, so it does not count as a job failure.
func (j *EODImportJob) Run(ctx context.Context) error {
	summary, err := j.importer.Run(ctx, eod.ImportRequest{})
	if err != nil {
		return fmt.Errorf("run import: %w", err)
	}

	switch summary.Status {
	case contracts.RunStatusSuccess:
		result, err := j.publisher.Publish(ctx, summary.RunID, j.batchSize)
		if err != nil {
			return fmt.Errorf("publish run %d: %w", summary.RunID, err)
		}
		j.logger.WithFields(map[string]interface{}{
			"run_id":    summary.RunID,
			"published": result.Published,
			"rejected":  result.Rejected,
		}).Info("Nightly import published")
		return nil

	case contracts.RunStatusCanonicalHeld:
		j.logger.WithFields(map[string]interface{}{
			"run_id": summary.RunID,
			"reason": summary.Reason,
		}).Warn("Nightly import held, operator review required")
		return nil

	default:
		return fmt.Errorf("import run %d finished %s: %s", summary.RunID, summary.Status, summary.Reason)
	}
}
