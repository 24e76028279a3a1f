package cli

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/engine"
)

// PendingResult is the JSON payload of the pending command.
type PendingResult struct {
	New         []delta.DeltaRecord `json:"new"`
	Removed     []delta.DeltaRecord `json:"removed"`
	Fingerprint string              `json:"fingerprint"`
}

// NewPendingCommand creates the pending command.
func NewPendingCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List the queued deltas without applying them",
		Long: `List the New and Removed partitions of the change queue in the order a
run would process them. Nothing is geocoded or written.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPending(rootOpts, cmd)
		},
	}
	return cmd
}

func runPending(opts *RootOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	a, err := openApp(opts, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	sel := engine.NewSelector(a.logger)
	news, err := sel.Select(ctx, a.store, delta.KindNew)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read queue", err)
	}
	removed, err := sel.Select(ctx, a.store, delta.KindRemoved)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to read queue", err)
	}

	result := PendingResult{
		New:         news.Records,
		Removed:     removed.Records,
		Fingerprint: delta.Fingerprint(news.Records, removed.Records),
	}

	var rows [][]string
	for _, p := range []engine.Partition{news, removed} {
		for _, r := range p.Records {
			rows = append(rows, []string{
				strconv.FormatInt(r.ObjectID, 10),
				string(r.Kind),
				r.StoreID,
				r.Address.String(),
			})
		}
	}
	return formatter.Table([]string{"objectid", "kind", "store_id", "address"}, rows, result)
}
