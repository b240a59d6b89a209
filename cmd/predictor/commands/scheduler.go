package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dansontsui/taiwan-stock-system-sub002/internal/scheduler"
	"github.com/dansontsui/taiwan-stock-system-sub002/internal/scheduler/jobs"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Run the job scheduler",
	Long: `Runs the background job scheduler.

Jobs:
  collect_filings  - daily filing collection (6 PM)
  retrain_model    - monthly model retraining (12th, 2 AM)

Example:
  go run ./cmd/predictor scheduler
  go run ./cmd/predictor scheduler --run-now collect_filings`,
	RunE: runScheduler,
}

var schedulerRunNowFlag string

func init() {
	rootCmd.AddCommand(schedulerCmd)

	schedulerCmd.Flags().StringVar(&schedulerRunNowFlag, "run-now", "", "run the named job immediately on startup")
}

func runScheduler(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	d, err := initDeps(ctx)
	if err != nil {
		return err
	}
	defer d.close()

	s := scheduler.New(d.log)

	if err := s.AddJob(jobs.NewCollectJob(d.newCollector(), d.pg, d.log)); err != nil {
		return fmt.Errorf("adding collect job: %w", err)
	}
	if err := s.AddJob(jobs.NewRetrainJob(d.newTrainer(), d.pg, d.log)); err != nil {
		return fmt.Errorf("adding retrain job: %w", err)
	}

	s.Start()
	defer s.Stop()

	if schedulerRunNowFlag != "" {
		if err := s.RunJob(schedulerRunNowFlag); err != nil {
			return err
		}
	}

	fmt.Println("Scheduler running (Ctrl+C to stop)")
	fmt.Printf("Jobs: %v\n", s.GetAllJobs())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	return nil
}
