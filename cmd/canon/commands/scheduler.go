package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/pricecanon/internal/scheduler"
	"github.com/wonny/pricecanon/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Manage the job scheduler",
	Long: `Starts the scheduler daemon or runs a registered job immediately.

Registered jobs:
  eod_import       - nightly import and publish (EOD_IMPORT_SCHEDULE)
  stuck_run_sweep  - fails RUNNING runs older than EOD_STUCK_RUN_MAX_AGE
                     (EOD_SWEEP_SCHEDULE)

Example:
  go run ./cmd/canon scheduler start
  go run ./cmd/canon scheduler list
  go run ./cmd/canon scheduler run eod_import`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "Start the scheduler daemon",
		RunE:  runSchedulerStart,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "List registered jobs",
		RunE:  runSchedulerList,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "Run one job immediately",
		Args:  cobra.ExactArgs(1),
		RunE:  runSchedulerRun,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
}

func initScheduler(ctx context.Context) (*scheduler.Scheduler, *app, error) {
	app, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}

	sched := scheduler.New(app.log)

	importJob := jobs.NewEODImportJob(
		app.importer, app.publisher,
		app.cfg.EOD.ImportSchedule, app.cfg.EOD.PublishBatchSize, app.log,
	)
	sweepJob := jobs.NewStuckRunSweepJob(
		app.runs, app.cfg.EOD.StuckRunMaxAge, app.cfg.EOD.SweepSchedule, app.log,
	)

	if err := sched.AddJob(importJob); err != nil {
		app.Close()
		return nil, nil, fmt.Errorf("register import job: %w", err)
	}
	if err := sched.AddJob(sweepJob); err != nil {
		app.Close()
		return nil, nil, fmt.Errorf("register sweep job: %w", err)
	}

	return sched, app, nil
}

func runSchedulerStart(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sched, app, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer app.Close()

	sched.Start()

	fmt.Println("Scheduler started")
	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()

	return nil
}

func runSchedulerList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	sched, app, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer app.Close()

	fmt.Println("Registered jobs:")
	for _, jobName := range sched.GetAllJobs() {
		fmt.Printf("  - %s\n", jobName)
	}
	return nil
}

func runSchedulerRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jobName := args[0]

	sched, app, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer app.Close()

	fmt.Printf("Running job: %s\n", jobName)
	if err := sched.RunJob(jobName); err != nil {
		return fmt.Errorf("run job: %w", err)
	}

	// RunJob is asynchronous; wait for the history entry before exiting.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			return nil
		case <-time.After(500 * time.Millisecond):
		}

		history, err := sched.GetJobHistory(jobName)
		if err != nil {
			return err
		}
		if len(history.Results) > 0 {
			result := history.Results[len(history.Results)-1]
			if result.Success {
				fmt.Printf("Job %s completed in %s\n", jobName, result.Duration)
				return nil
			}
			return fmt.Errorf("job %s failed: %s", jobName, result.Error)
		}
	}
}
