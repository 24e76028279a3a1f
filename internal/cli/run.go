package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/storesync/internal/engine"
	"github.com/roach88/storesync/internal/geocode"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions

	// RunIDs allows overriding the run ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RunIDs engine.RunIDGenerator

	// Resolver allows overriding the geocoder (for testing).
	Resolver geocode.Resolver

	// Clock allows overriding the wall clock (for testing).
	Clock engine.Clock
}

// RunResult is the JSON payload of a successful run.
type RunResult struct {
	engine.Summary
	Projected []string `json:"projected,omitempty"`
	Skipped   []string `json:"skipped,omitempty"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	return newRunCommand(&RunOptions{RootOptions: rootOpts})
}

func newRunCommand(opts *RunOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Apply the pending deltas to the master dataset",
		Long: `Run one synchronization batch.

Selects the New and Removed deltas, geocodes the New addresses, then inserts
accepted stores and deletes removed ones in a single transaction. On success
the feature collections are reprojected; on failure nothing is committed and
an alert is mailed to every recipient.

Example:
  storesync run --config storesync.yaml
  STORESYNC_DATABASE_DSN=file:/data/stores.db storesync run --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(opts, cmd)
		},
	}

	return cmd
}

func runSync(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	a, err := newApp(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var runIDs engine.RunIDGenerator = engine.UUIDv7Generator{}
	if opts.RunIDs != nil {
		runIDs = opts.RunIDs
	}

	notifier, err := a.notifier()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to configure alerts", err)
	}

	deps, err := a.engineDeps(ctx, notifier)
	if err != nil {
		return abortRun(ctx, a, formatter, notifier, runIDs.Generate(), err)
	}
	deps.RunIDs = runIDs
	if opts.Resolver != nil {
		deps.Resolver = opts.Resolver
	}
	if opts.Clock != nil {
		deps.Clock = opts.Clock
	}

	eng, err := engine.New(deps)
	if err != nil {
		return abortRun(ctx, a, formatter, notifier, runIDs.Generate(), err)
	}

	summary, runErr := eng.Run(ctx)
	a.pushMetrics(context.WithoutCancel(ctx), deps.Metrics)

	if runErr != nil {
		_ = formatter.RunFailure(runErr)
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	result := RunResult{Summary: summary}
	for _, p := range summary.Projections {
		switch {
		case p.IsOk():
			result.Projected = append(result.Projected, p.Value.Table)
		case p.IsSkip():
			result.Skipped = append(result.Skipped, p.Reason)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	return formatter.Success(formatRunText(result))
}

// abortRun reports a fault that stopped the run before the engine started.
// The failure is logged, alerted and printed like any failed run.
func abortRun(ctx context.Context, a *app, formatter *OutputFormatter, notifier engine.Alerter, runID string, err error) error {
	var failure *engine.RunError
	if !errors.As(err, &failure) {
		failure = startupFailure(err)
	}
	failure.RunID = runID

	a.logger.ErrorContext(ctx, "run failed",
		"run_id", runID,
		"code", failure.Code,
		"stage", failure.Stage,
		"error", failure.Err,
	)
	engine.NotifyFailure(context.WithoutCancel(ctx), a.logger, notifier, failure)

	_ = formatter.RunFailure(failure)
	return WrapExitError(ExitFailure, "run failed", failure)
}

func formatRunText(r RunResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run %s complete\n", r.RunID)
	fmt.Fprintf(&b, "  selected: %d new, %d removed\n", r.SelectedNew, r.SelectedRemoved)
	fmt.Fprintf(&b, "  inserted: %d\n", r.Report.Inserted)
	fmt.Fprintf(&b, "  removed:  %d\n", r.Report.Removed)

	tiers := make([]string, 0, len(r.Rejected))
	for tier := range r.Rejected {
		tiers = append(tiers, tier)
	}
	sort.Strings(tiers)
	parts := make([]string, len(tiers))
	for i, tier := range tiers {
		parts[i] = fmt.Sprintf("%s=%d", tier, r.Rejected[tier])
	}
	fmt.Fprintf(&b, "  rejected: %d %s\n", r.Report.RejectedTotal(), strings.Join(parts, " "))
	fmt.Fprintf(&b, "  master records: %d", r.Report.After)
	for _, t := range r.Projected {
		fmt.Fprintf(&b, "\n  projected: %s", t)
	}
	return b.String()
}
