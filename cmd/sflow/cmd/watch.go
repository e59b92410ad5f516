package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/scoreflow/scoreflow/pkg/models"
)

var (
	watchInterval time.Duration
	watchAttempts int
)

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Poll a job until it finishes",
	Long:  `Poll a job's status until it reaches a terminal state or the attempt limit is hit.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().DurationVar(&watchInterval, "interval", 2*time.Second, "polling interval")
	watchCmd.Flags().IntVar(&watchAttempts, "attempts", 150, "maximum polls before giving up")
}

func runWatch(cmd *cobra.Command, args []string) error {
	jobID := args[0]
	fmt.Printf("Watching job %s (press Ctrl+C to stop)...\n", jobID)

	for attempt := 0; attempt < watchAttempts; attempt++ {
		var job models.Job
		if err := fetchJSON("/results/"+jobID, &job); err != nil {
			return err
		}

		if models.IsTerminalState(job.Status) {
			fmt.Println()
			printJob(&job)
			if job.Status == models.JobStatusFailed {
				return fmt.Errorf("job failed: %s", job.Error)
			}
			return nil
		}

		fmt.Printf("  %s status=%s\n", time.Now().Format("15:04:05"), job.Status)
		time.Sleep(watchInterval)
	}

	return fmt.Errorf("job %s did not finish within %d polls", jobID, watchAttempts)
}
