package cli

import (
	"context"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/storesync/internal/store"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recent runs from the run ledger",
		Long: `Show the most recent runs, newest first, with their outcome and counts.

Example:
  storesync status --limit 5
  storesync status --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of runs to show")

	return cmd
}

func runStatus(opts *RootOptions, cmd *cobra.Command, limit int) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if limit <= 0 {
		return NewExitError(ExitCommandError, "--limit must be positive")
	}

	a, err := openApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	runs, err := a.store.RecentRuns(ctx, limit)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read run ledger", err)
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}

	rows := make([][]string, len(runs))
	for i, r := range runs {
		rows[i] = []string{
			r.RunID,
			r.StartedAt.Format(time.RFC3339),
			string(r.Phase),
			strconv.FormatInt(r.Inserted, 10),
			strconv.FormatInt(r.Removed, 10),
			strconv.FormatInt(r.Rejected, 10),
			strconv.FormatInt(r.MasterCount, 10),
		}
	}
	return formatter.Table(
		[]string{"run_id", "started", "phase", "inserted", "removed", "rejected", "master"},
		rows, runs)
}
