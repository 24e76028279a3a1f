package engine

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
	"github.com/roach88/storesync/internal/store"
)

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.DriverSQLite, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

// testLogger returns a logger writing text records into a buffer.
func testLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})), &buf
}

func newDelta(storeID string, kind delta.ChangeKind) delta.DeltaRecord {
	return delta.DeltaRecord{
		StoreID: storeID,
		Kind:    kind,
		Address: delta.Address{
			Street:     "100 " + storeID + " Ave",
			City:       "Springfield",
			Region:     "IL",
			PostalCode: "62701",
		},
		Attributes:  map[string]any{"store_name": "Store " + storeID},
		SubChannel:  "retail",
		StoreStatus: "open",
	}
}

func enqueue(t *testing.T, s *store.Store, storeID string, kind delta.ChangeKind) {
	t.Helper()
	_, err := s.EnqueueDelta(context.Background(), newDelta(storeID, kind))
	require.NoError(t, err)
}

var seedProjection = []string{"store_id", "store_addr1", "store_city", "state_code", "zip", "store_name"}

func seedMaster(t *testing.T, s *store.Store, storeIDs ...string) {
	t.Helper()
	for _, id := range storeIDs {
		rec := newDelta(id, delta.KindNew)
		err := s.InsertStore(context.Background(), seedProjection, delta.MasterStoreRecord{
			StoreID:    id,
			Location:   delta.Location{Lat: 39.78, Lon: -89.65},
			Geohash:    "dp0n2k",
			Address:    rec.Address,
			Attributes: rec.Attributes,
		})
		require.NoError(t, err)
	}
}

func masterIDs(t *testing.T, s *store.Store) []string {
	t.Helper()
	ids, err := store.Collect(s.StoreIDs(context.Background()))
	require.NoError(t, err)
	return ids
}

func selectNew(t *testing.T, s *store.Store) []delta.DeltaRecord {
	t.Helper()
	recs, err := store.Collect(s.Deltas(context.Background(), delta.KindNew))
	require.NoError(t, err)
	return recs
}

// outcomesFor returns one outcome per record with the given tiers.
func outcomesFor(records []delta.DeltaRecord, tiers ...delta.MatchTier) []delta.GeocodeOutcome {
	out := make([]delta.GeocodeOutcome, len(records))
	for i, r := range records {
		out[i] = delta.GeocodeOutcome{
			StoreID:  r.StoreID,
			Location: delta.Location{Lat: 40.0 + float64(i)*0.01, Lon: -89.0},
			Tier:     tiers[i],
			Score:    90,
		}
	}
	return out
}

// faultyDataset wraps a Store and injects faults into reads or into the
// unit of work.
type faultyDataset struct {
	*store.Store
	queryErr  error
	insertErr error
	deleteErr error
	recordErr error
}

func (f *faultyDataset) Deltas(ctx context.Context, kind delta.ChangeKind) iter.Seq2[delta.DeltaRecord, error] {
	if f.queryErr != nil {
		return func(yield func(delta.DeltaRecord, error) bool) {
			yield(delta.DeltaRecord{}, f.queryErr)
		}
	}
	return f.Store.Deltas(ctx, kind)
}

func (f *faultyDataset) WithinTx(ctx context.Context, fn func(ctx context.Context, uow store.UnitOfWork) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, uow store.UnitOfWork) error {
		return fn(ctx, &faultyUnitOfWork{UnitOfWork: uow, f: f})
	})
}

type faultyUnitOfWork struct {
	store.UnitOfWork
	f *faultyDataset
}

func (u *faultyUnitOfWork) InsertStore(ctx context.Context, projection []string, rec delta.MasterStoreRecord) error {
	if u.f.insertErr != nil {
		return u.f.insertErr
	}
	return u.UnitOfWork.InsertStore(ctx, projection, rec)
}

func (u *faultyUnitOfWork) DeleteStore(ctx context.Context, storeID string) (int64, error) {
	if u.f.deleteErr != nil {
		return 0, u.f.deleteErr
	}
	return u.UnitOfWork.DeleteStore(ctx, storeID)
}

func (u *faultyUnitOfWork) RecordRun(ctx context.Context, run store.RunRecord) error {
	if u.f.recordErr != nil {
		return u.f.recordErr
	}
	return u.UnitOfWork.RecordRun(ctx, run)
}
