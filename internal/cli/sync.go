package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"
)

var syncHeaders = []string{"RUNNING", "STARTED", "END_AT", "LAST_RUN", "RUNS", "LAST_ERROR"}

func syncRow(s *SyncStatusResponse) []string {
	return []string{strconv.FormatBool(s.Running), s.StartedAt, s.EndAt, s.LastRunAt, strconv.Itoa(s.Runs), s.LastError}
}

// NewSyncCmd создаёт группу команд для цикла redeem-sync.
func NewSyncCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Control the background redeem sync loop",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show loop status",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := clientFn().SyncStatus()
				if err != nil {
					return err
				}
				outputFn().Print(syncHeaders, [][]string{syncRow(st)}, st)
				return nil
			},
		},
		newSyncStartCmd(clientFn, outputFn),
		&cobra.Command{
			Use:   "stop",
			Short: "Stop the loop",
			RunE: func(cmd *cobra.Command, args []string) error {
				st, err := clientFn().StopSync()
				if err != nil {
					return err
				}
				out := outputFn()
				out.Success("Sync loop stopped")
				out.Print(syncHeaders, [][]string{syncRow(st)}, st)
				return nil
			},
		},
	)

	return cmd
}

func newSyncStartCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the loop (no-op if already running)",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := clientFn().StartSync(duration)
			if err != nil {
				return err
			}
			out := outputFn()
			out.Success("Sync loop running")
			out.Print(syncHeaders, [][]string{syncRow(st)}, st)
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "How long to run (default: server setting)")

	return cmd
}
