package engine

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/geocode"
	"github.com/roach88/storesync/internal/store"
)

// Dataset is the database holding the queue and the master dataset. Both
// must be reachable from the same unit of work.
type Dataset interface {
	Queue
	WithinTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error
}

// Batch is the input of one synchronization.
type Batch struct {
	RunID     string
	StartedAt time.Time
	News      []delta.DeltaRecord
	Outcomes  []delta.GeocodeOutcome
}

// Report summarizes a committed batch.
type Report struct {
	Inserted    int              `json:"inserted"`
	Rejected    delta.TierCounts `json:"-"`
	Removed     int              `json:"removed"`
	Consumed    int              `json:"consumed"`
	Before      int64            `json:"before"`
	After       int64            `json:"after"`
	Fingerprint string           `json:"fingerprint"`
}

// RejectedTotal returns how many outcomes the acceptance policy filtered.
func (r Report) RejectedTotal() int {
	return r.Rejected.Rejected()
}

// Synchronizer applies one batch of inserts and removals atomically.
type Synchronizer struct {
	logger  *slog.Logger
	clock   Clock
	consume bool
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithConsumeQueue deletes processed queue rows inside the unit of work.
func WithConsumeQueue(consume bool) SynchronizerOption {
	return func(s *Synchronizer) {
		s.consume = consume
	}
}

// WithSyncClock sets the clock stamped on the run ledger.
func WithSyncClock(c Clock) SynchronizerOption {
	return func(s *Synchronizer) {
		s.clock = c
	}
}

// NewSynchronizer creates a Synchronizer.
func NewSynchronizer(logger *slog.Logger, opts ...SynchronizerOption) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Synchronizer{logger: logger, clock: SystemClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Apply filters the outcomes by the acceptance policy, then inside one unit
// of work inserts the accepted stores, re-selects the Removed partition,
// deletes the matching master rows and records the run. Any fault rolls the
// whole batch back and is returned as SYNCHRONIZATION_FAILURE.
func (s *Synchronizer) Apply(ctx context.Context, db Dataset, b Batch) (Report, error) {
	accepted, err := joinOutcomes(b.News, b.Outcomes)
	if err != nil {
		return Report{}, NewSynchronizationFailure(err)
	}

	report := Report{Rejected: delta.CountTiers(b.Outcomes)}

	err = db.WithinTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		projection, err := attributeProjection(ctx, uow)
		if err != nil {
			return err
		}

		report.Before, err = uow.CountStores(ctx)
		if err != nil {
			return err
		}

		for _, rec := range accepted {
			if err := uow.InsertStore(ctx, projection, rec); err != nil {
				return err
			}
			s.logger.InfoContext(ctx, "inserted store", "store_id", rec.StoreID, "geohash", rec.Geohash)
			report.Inserted++
		}

		removed, err := store.Collect(uow.Deltas(ctx, delta.KindRemoved))
		if err != nil {
			return fmt.Errorf("re-select removed deltas: %w", err)
		}
		n, err := s.removeStores(ctx, uow, removed)
		if err != nil {
			return err
		}
		report.Removed = n

		if s.consume {
			ids := objectIDs(b.News, removed)
			consumed, err := uow.ConsumeDeltas(ctx, ids)
			if err != nil {
				return err
			}
			report.Consumed = int(consumed)
			s.logger.DebugContext(ctx, "consumed deltas", "count", consumed)
		}

		report.After, err = uow.CountStores(ctx)
		if err != nil {
			return err
		}
		if want := report.Before + int64(report.Inserted) - int64(report.Removed); report.After != want {
			return fmt.Errorf("master count %d after batch, want %d (before %d + inserted %d - removed %d)",
				report.After, want, report.Before, report.Inserted, report.Removed)
		}

		report.Fingerprint = delta.Fingerprint(b.News, removed)
		return uow.RecordRun(ctx, store.RunRecord{
			RunID:       b.RunID,
			StartedAt:   b.StartedAt,
			FinishedAt:  s.clock.Now(),
			Phase:       store.PhaseComplete,
			Fingerprint: report.Fingerprint,
			SelectedNew: int64(len(b.News)),
			Rejected:    int64(report.RejectedTotal()),
			Inserted:    int64(report.Inserted),
			Removed:     int64(report.Removed),
			Consumed:    int64(report.Consumed),
			MasterCount: report.After,
		})
	})
	if err != nil {
		return Report{}, NewSynchronizationFailure(err)
	}
	return report, nil
}

// removeStores deletes every master row whose store_id is in removed. Master
// ids are collected before deleting so no cursor is open during writes.
func (s *Synchronizer) removeStores(ctx context.Context, uow store.UnitOfWork, removed []delta.DeltaRecord) (int, error) {
	if len(removed) == 0 {
		return 0, nil
	}
	wanted := make(map[string]struct{}, len(removed))
	for _, r := range removed {
		wanted[r.StoreID] = struct{}{}
	}

	var matches []string
	for id, err := range uow.StoreIDs(ctx) {
		if err != nil {
			return 0, fmt.Errorf("scan master store ids: %w", err)
		}
		if _, ok := wanted[id]; ok {
			matches = append(matches, id)
		}
	}

	total := 0
	for _, id := range matches {
		n, err := uow.DeleteStore(ctx, id)
		if err != nil {
			return 0, err
		}
		s.logger.InfoContext(ctx, "removed store", "store_id", id)
		total += int(n)
	}
	return total, nil
}

// joinOutcomes pairs each outcome with the record at the same position and
// builds the master records for the accepted ones.
func joinOutcomes(news []delta.DeltaRecord, outcomes []delta.GeocodeOutcome) ([]delta.MasterStoreRecord, error) {
	if len(news) != len(outcomes) {
		return nil, fmt.Errorf("%w: %d records, %d outcomes", geocode.ErrCardinality, len(news), len(outcomes))
	}
	var accepted []delta.MasterStoreRecord
	for i, o := range outcomes {
		rec := news[i]
		if o.StoreID != rec.StoreID {
			return nil, fmt.Errorf("%w: position %d has %q, want %q", geocode.ErrOrder, i, o.StoreID, rec.StoreID)
		}
		if !o.Accepted() {
			continue
		}
		if !o.Location.Valid() {
			return nil, fmt.Errorf("store %s: location out of range (%g, %g)", rec.StoreID, o.Location.Lat, o.Location.Lon)
		}
		accepted = append(accepted, delta.MasterStoreRecord{
			StoreID:    rec.StoreID,
			Location:   o.Location,
			Geohash:    geocode.Geohash(o.Location),
			Address:    rec.Address,
			Attributes: rec.Attributes,
		})
	}
	return accepted, nil
}

// attributeProjection is the queue columns minus bookkeeping fields,
// restricted to columns the master dataset has.
func attributeProjection(ctx context.Context, uow store.UnitOfWork) ([]string, error) {
	queueCols, err := uow.Columns(ctx, store.TableDeltas)
	if err != nil {
		return nil, err
	}
	masterCols, err := uow.Columns(ctx, store.TableStores)
	if err != nil {
		return nil, err
	}

	var projection []string
	for _, c := range queueCols {
		if delta.IsExcluded(c) || !slices.Contains(masterCols, c) {
			continue
		}
		projection = append(projection, c)
	}
	return projection, nil
}

func objectIDs(batches ...[]delta.DeltaRecord) []int64 {
	var ids []int64
	for _, batch := range batches {
		for _, r := range batch {
			ids = append(ids, r.ObjectID)
		}
	}
	return ids
}
