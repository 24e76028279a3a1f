package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/geocode"
	"github.com/roach88/storesync/internal/lock"
	"github.com/roach88/storesync/internal/project"
	"github.com/roach88/storesync/internal/store"
	"github.com/roach88/storesync/internal/telemetry"
)

// Ledger is a Dataset that also records failed runs outside any unit of work.
type Ledger interface {
	Dataset
	RecordRun(ctx context.Context, run store.RunRecord) error
}

// Alerter delivers failure alerts. Implemented by *notify.Notifier.
type Alerter interface {
	Alert(ctx context.Context, failure error) error
}

// Deps is the explicit execution context of an Engine. Dataset and Resolver
// are required; everything else is optional.
type Deps struct {
	Dataset  Ledger
	Resolver geocode.Resolver

	// Notifier receives every fatal failure.
	Notifier Alerter

	// Projector and Collections run the post-commit reprojection.
	Projector   *project.Projector
	Collections project.Source

	Locker  lock.Locker
	Logger  *slog.Logger
	Metrics *telemetry.Metrics
	Tracer  trace.Tracer
	RunIDs  RunIDGenerator
	Clock   Clock

	// ConsumeQueue deletes processed queue rows inside the batch.
	ConsumeQueue bool
}

// Summary describes a completed run.
type Summary struct {
	RunID           string                          `json:"run_id"`
	SelectedNew     int                             `json:"selected_new"`
	SelectedRemoved int                             `json:"selected_removed"`
	Report          Report                          `json:"report"`
	Rejected        map[string]int                  `json:"rejected"`
	Projections     []delta.Result[project.Summary] `json:"-"`
	Duration        time.Duration                   `json:"duration"`
}

// Engine runs the select, resolve, synchronize and post-process pipeline.
// Runs are strictly sequential; one Engine must not run concurrently with
// itself.
type Engine struct {
	deps     Deps
	logger   *slog.Logger
	selector *Selector
	sync     *Synchronizer
}

// New creates an Engine, filling optional dependencies with no-op defaults.
func New(deps Deps) (*Engine, error) {
	if deps.Dataset == nil {
		return nil, errors.New("engine: dataset is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("engine: resolver is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Locker == nil {
		deps.Locker = lock.Noop{}
	}
	if deps.RunIDs == nil {
		deps.RunIDs = UUIDv7Generator{}
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	return &Engine{
		deps:     deps,
		logger:   deps.Logger,
		selector: NewSelector(deps.Logger),
		sync: NewSynchronizer(deps.Logger,
			WithConsumeQueue(deps.ConsumeQueue),
			WithSyncClock(deps.Clock),
		),
	}, nil
}

// Run executes one batch. On failure nothing is committed, the failure is
// recorded in the run ledger and routed to the Notifier, and a *RunError is
// returned. Post-processing faults are alerted but do not fail the run.
func (e *Engine) Run(ctx context.Context) (summary Summary, err error) {
	runID := e.deps.RunIDs.Generate()
	start := e.deps.Clock.Now()
	logger := e.logger.With("run_id", runID)

	ctx, span := telemetry.StartSpan(ctx, e.deps.Tracer, "storesync.run",
		trace.WithAttributes(telemetry.AttrRunID.String(runID)))
	defer span.End()

	stage := StageLock
	defer func() {
		if r := recover(); r != nil {
			err = e.fail(ctx, logger, runID, start, asRunError(fmt.Errorf("panic: %v", r), stage))
		}
	}()

	lease, err := e.deps.Locker.TryLock(ctx)
	if err != nil {
		if !errors.Is(err, lock.ErrHeld) {
			return Summary{}, e.fail(ctx, logger, runID, start, asRunError(err, StageLock))
		}
		return Summary{}, e.fail(ctx, logger, runID, start, &RunError{
			Code:    ErrCodeLockUnavailable,
			Stage:   StageLock,
			Message: "another run holds the run lock",
			Err:     err,
		})
	}
	defer func() {
		if rerr := lease.Release(context.WithoutCancel(ctx)); rerr != nil {
			logger.Warn("release run lock", "error", rerr)
		}
	}()

	logger.InfoContext(ctx, "run started")

	stage = StageSelect
	news, err := e.selectPartition(ctx, delta.KindNew)
	if err != nil {
		return Summary{}, e.fail(ctx, logger, runID, start, asRunError(err, stage))
	}
	removed, err := e.selectPartition(ctx, delta.KindRemoved)
	if err != nil {
		return Summary{}, e.fail(ctx, logger, runID, start, asRunError(err, stage))
	}

	stage = StageResolve
	outcomes, err := e.resolve(ctx, news.Records)
	if err != nil {
		return Summary{}, e.fail(ctx, logger, runID, start, asRunError(err, stage))
	}

	rejected := delta.CountTiers(outcomes)
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveRejected(rejectedByName(rejected))
	}
	logger.InfoContext(ctx, "resolved addresses",
		"submitted", len(news.Records),
		"accepted", len(outcomes)-rejected.Rejected(),
		"rejected", rejected.Rejected(),
	)
	byName := rejectedByName(rejected)
	for _, tier := range slices.Sorted(maps.Keys(byName)) {
		logger.InfoContext(ctx, "rejected matches", "tier", tier, "count", byName[tier])
	}

	stage = StageSynchronize
	report, err := e.synchronize(ctx, Batch{
		RunID:     runID,
		StartedAt: start,
		News:      news.Records,
		Outcomes:  outcomes,
	})
	if err != nil {
		return Summary{}, e.fail(ctx, logger, runID, start, asRunError(err, stage))
	}

	logger.InfoContext(ctx, "batch committed",
		"inserted", report.Inserted,
		"removed", report.Removed,
		"rejected", report.RejectedTotal(),
		"consumed", report.Consumed,
	)
	logger.InfoContext(ctx, "master dataset updated", "records", report.After)
	span.SetAttributes(
		telemetry.AttrInserted.Int(report.Inserted),
		telemetry.AttrRemoved.Int(report.Removed),
	)
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveCommit(start, int64(report.Inserted), int64(report.Removed), report.After)
	}

	stage = StageProject
	projections := e.postProcess(ctx, logger, runID)

	summary = Summary{
		RunID:           runID,
		SelectedNew:     news.Count(),
		SelectedRemoved: removed.Count(),
		Report:          report,
		Rejected:        rejectedByName(rejected),
		Projections:     projections,
		Duration:        e.deps.Clock.Now().Sub(start),
	}
	logger.InfoContext(ctx, "run complete", "duration", summary.Duration)
	return summary, nil
}

func (e *Engine) selectPartition(ctx context.Context, kind delta.ChangeKind) (Partition, error) {
	ctx, span := telemetry.StartSpan(ctx, e.deps.Tracer, "storesync.select",
		trace.WithAttributes(telemetry.AttrChangeKind.String(string(kind))))
	defer span.End()

	p, err := e.selector.Select(ctx, e.deps.Dataset, kind)
	if err != nil {
		telemetry.RecordError(span, err)
		return Partition{}, err
	}
	span.SetAttributes(telemetry.AttrCount.Int(p.Count()))
	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveSelected(string(kind), p.Count())
	}
	return p, nil
}

func (e *Engine) resolve(ctx context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error) {
	ctx, span := telemetry.StartSpan(ctx, e.deps.Tracer, "storesync.resolve",
		trace.WithAttributes(telemetry.AttrCount.Int(len(records))))
	defer span.End()

	outcomes, err := e.deps.Resolver.Resolve(ctx, records)
	if err == nil {
		err = geocode.ValidateOutcomes(records, outcomes)
	}
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, NewResolutionFailure(len(records), err)
	}
	return outcomes, nil
}

func (e *Engine) synchronize(ctx context.Context, b Batch) (Report, error) {
	ctx, span := telemetry.StartSpan(ctx, e.deps.Tracer, "storesync.synchronize")
	defer span.End()

	report, err := e.sync.Apply(ctx, e.deps.Dataset, b)
	if err != nil {
		telemetry.RecordError(span, err)
		return Report{}, err
	}
	return report, nil
}

// postProcess reprojects the feature collections. Faults are logged and
// alerted; the batch is already committed.
func (e *Engine) postProcess(ctx context.Context, logger *slog.Logger, runID string) []delta.Result[project.Summary] {
	if e.deps.Projector == nil || e.deps.Collections == nil {
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, e.deps.Tracer, "storesync.project")
	defer span.End()

	results := e.deps.Projector.Project(ctx, e.deps.Collections)

	var faults []error
	for _, r := range results {
		if !r.IsFatal() {
			continue
		}
		logger.ErrorContext(ctx, "post-processing failed",
			"code", ErrCodePostProcessingFailure,
			"error", r.Err,
		)
		faults = append(faults, r.Err)
	}
	if len(faults) == 0 {
		return results
	}

	failure := NewPostProcessingFailure(errors.Join(faults...))
	failure.RunID = runID
	telemetry.RecordError(span, failure)
	e.alert(ctx, logger, failure)
	return results
}

// fail records a failed run and routes it to the Notifier. The returned
// error is always the original failure.
func (e *Engine) fail(ctx context.Context, logger *slog.Logger, runID string, start time.Time, failure *RunError) error {
	failure.RunID = runID
	ctx = context.WithoutCancel(ctx)

	span := trace.SpanFromContext(ctx)
	span.SetAttributes(telemetry.AttrErrorCode.String(string(failure.Code)))
	telemetry.RecordError(span, failure)

	logger.ErrorContext(ctx, "run failed",
		"code", failure.Code,
		"stage", failure.Stage,
		"error", failure.Err,
	)

	if e.deps.Metrics != nil {
		e.deps.Metrics.ObserveFailure(start, string(failure.Code))
	}

	if err := e.deps.Dataset.RecordRun(ctx, store.RunRecord{
		RunID:      runID,
		StartedAt:  start,
		FinishedAt: e.deps.Clock.Now(),
		Phase:      store.PhaseFailed,
		Message:    failure.Error(),
	}); err != nil {
		logger.WarnContext(ctx, "record failed run", "error", err)
	}

	e.alert(ctx, logger, failure)
	return failure
}

// alert sends a failure to the Notifier.
func (e *Engine) alert(ctx context.Context, logger *slog.Logger, failure *RunError) {
	NotifyFailure(ctx, logger, e.deps.Notifier, failure)
}

// NotifyFailure sends failure to alerter. Delivery faults are logged and
// never replace the failure being reported. A nil alerter only logs.
func NotifyFailure(ctx context.Context, logger *slog.Logger, alerter Alerter, failure *RunError) {
	if alerter == nil {
		logger.WarnContext(ctx, "no notifier configured, alert not sent", "code", failure.Code)
		return
	}
	if err := alerter.Alert(ctx, failure); err != nil {
		nf := NewNotificationFailure(err)
		nf.RunID = failure.RunID
		logger.ErrorContext(ctx, "alert delivery failed",
			"code", nf.Code,
			"alerted_code", failure.Code,
			"error", err,
		)
	}
}

// rejectedByName keeps only the tiers the acceptance policy filtered out.
func rejectedByName(counts delta.TierCounts) map[string]int {
	out := make(map[string]int)
	for tier, n := range counts {
		if !delta.Accepts(tier) {
			out[tier.String()] = n
		}
	}
	return out
}
