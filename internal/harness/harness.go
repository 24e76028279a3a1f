package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/engine"
	"github.com/roach88/storesync/internal/geocode"
	"github.com/roach88/storesync/internal/project"
	"github.com/roach88/storesync/internal/store"
	"github.com/roach88/storesync/internal/testutil"
)

// masterProjection is the column set used to seed master rows.
var masterProjection = []string{
	delta.ColStoreID, delta.ColStreet, delta.ColCity, delta.ColRegion, delta.ColPostalCode, "store_name",
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The engine is wired with
// a stub geocoder, a recording notifier, a fixed run ID and a deterministic
// clock, then runs exactly one batch. A failed run is a valid result;
// Run only returns an error when the scenario cannot be set up.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := seed(ctx, st, scenario); err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}

	recorder := newTraceRecorder()
	logger := slog.New(recorder)
	alerts := &alertRecorder{}

	runID := scenario.RunID
	if runID == "" {
		runID = testutil.NewFixedRunIDGenerator("").Generate()
	}

	eng, err := engine.New(engine.Deps{
		Dataset:      st,
		Resolver:     stubResolver(scenario),
		Notifier:     alerts,
		Projector:    project.New(project.SRIDWebMercator, nil, logger),
		Collections:  st,
		Logger:       logger,
		RunIDs:       testutil.NewFixedRunIDGenerator(runID),
		Clock:        testutil.NewDeterministicClock(),
		ConsumeQueue: scenario.ConsumeQueue,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	result := NewResult()
	result.RunID = runID
	result.Outcome = OutcomeSuccess
	if _, runErr := eng.Run(ctx); runErr != nil {
		result.Outcome = OutcomeFailure
		var re *engine.RunError
		if errors.As(runErr, &re) {
			result.Code = string(re.Code)
		}
	}
	result.Trace = recorder.Events()
	result.Alerts = alerts.codes

	ids, err := store.Collect(st.StoreIDs(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to read master ids: %w", err)
	}
	if ids != nil {
		result.Master = ids
	}

	actx := &AssertionContext{Store: st, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

// seed writes the scenario's master rows, queue rows and collections.
func seed(ctx context.Context, st *store.Store, s *Scenario) error {
	for i, row := range s.Master {
		loc := delta.Location{Lat: row.Lat, Lon: row.Lon}
		err := st.InsertStore(ctx, masterProjection, delta.MasterStoreRecord{
			StoreID:  row.StoreID,
			Location: loc,
			Geohash:  geocode.Geohash(loc),
			Address: delta.Address{
				Street:     row.Street,
				City:       row.City,
				Region:     row.Region,
				PostalCode: row.PostalCode,
			},
			Attributes: map[string]any{"store_name": row.Name},
		})
		if err != nil {
			return fmt.Errorf("master[%d]: %w", i, err)
		}
	}

	for i, row := range s.Queue {
		_, err := st.EnqueueDelta(ctx, delta.DeltaRecord{
			StoreID: row.StoreID,
			Kind:    delta.ChangeKind(row.Kind),
			Address: delta.Address{
				Street:     row.Street,
				City:       row.City,
				Region:     row.Region,
				PostalCode: row.PostalCode,
			},
			Attributes: map[string]any{"store_name": row.Name},
		})
		if err != nil {
			return fmt.Errorf("queue[%d]: %w", i, err)
		}
	}

	for i, id := range s.RejectDeletes {
		trigger := fmt.Sprintf(
			"CREATE TRIGGER reject_delete_%d BEFORE DELETE ON %s WHEN OLD.store_id = '%s' "+
				"BEGIN SELECT RAISE(ABORT, 'delete conflict on %s'); END",
			i, store.TableStores, sqlQuote(id), sqlQuote(id))
		if _, err := st.DB().ExecContext(ctx, trigger); err != nil {
			return fmt.Errorf("reject_deletes[%d]: %w", i, err)
		}
	}

	for i, c := range s.Collections {
		var srid *int
		if c.SRID != "" {
			n, err := project.ParseSRID(c.SRID)
			if err != nil {
				return fmt.Errorf("collections[%d]: %w", i, err)
			}
			srid = &n
		}
		if err := st.RegisterCollection(ctx, c.Name, srid); err != nil {
			return fmt.Errorf("collections[%d]: %w", i, err)
		}
	}
	return nil
}

func sqlQuote(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

// stubResolver answers from the scenario's geocode table, in input order.
func stubResolver(s *Scenario) geocode.Resolver {
	return geocode.ResolverFunc(func(_ context.Context, records []delta.DeltaRecord) ([]delta.GeocodeOutcome, error) {
		if s.GeocodeError != "" {
			return nil, errors.New(s.GeocodeError)
		}
		outcomes := make([]delta.GeocodeOutcome, len(records))
		for i, rec := range records {
			m := s.Geocode[rec.StoreID]
			outcomes[i] = delta.GeocodeOutcome{
				StoreID:  rec.StoreID,
				Location: delta.Location{Lat: m.Lat, Lon: m.Lon},
				Tier:     delta.ParseMatchTier(m.Tier),
				Score:    m.Score,
			}
		}
		return outcomes, nil
	})
}

// alertRecorder is a notifier that keeps the codes it was handed.
type alertRecorder struct {
	codes []string
}

func (a *alertRecorder) Alert(_ context.Context, failure error) error {
	code := string(engine.ErrCodeUnexpected)
	var re *engine.RunError
	if errors.As(failure, &re) {
		code = string(re.Code)
	}
	a.codes = append(a.codes, code)
	return nil
}

// traceRecorder is a slog.Handler that captures records as TraceEvents.
// Attributes added with With are dropped; time and duration values are
// omitted so traces are reproducible.
type traceRecorder struct {
	mu     *sync.Mutex
	events *[]TraceEvent
}

func newTraceRecorder() *traceRecorder {
	return &traceRecorder{mu: &sync.Mutex{}, events: &[]TraceEvent{}}
}

func (h *traceRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (h *traceRecorder) Handle(_ context.Context, r slog.Record) error {
	ev := TraceEvent{Level: r.Level.String(), Message: r.Message}
	r.Attrs(func(a slog.Attr) bool {
		if v, ok := traceValue(a.Value.Resolve()); ok {
			if ev.Attrs == nil {
				ev.Attrs = make(map[string]any)
			}
			ev.Attrs[a.Key] = v
		}
		return true
	})

	h.mu.Lock()
	defer h.mu.Unlock()
	ev.Seq = int64(len(*h.events) + 1)
	*h.events = append(*h.events, ev)
	return nil
}

func (h *traceRecorder) WithAttrs([]slog.Attr) slog.Handler { return h }

func (h *traceRecorder) WithGroup(string) slog.Handler { return h }

// Events returns a copy of the captured events.
func (h *traceRecorder) Events() []TraceEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]TraceEvent{}, *h.events...)
}

func traceValue(v slog.Value) (any, bool) {
	switch v.Kind() {
	case slog.KindString:
		return v.String(), true
	case slog.KindInt64:
		return v.Int64(), true
	case slog.KindUint64:
		return int64(v.Uint64()), true
	case slog.KindFloat64:
		return v.Float64(), true
	case slog.KindBool:
		return v.Bool(), true
	case slog.KindDuration, slog.KindTime:
		return nil, false
	default:
		return fmt.Sprint(v.Any()), true
	}
}
