package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
)

func TestWithinTx_CommitsAllChanges(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsertStore(t, s, "OLD")
	qid := mustEnqueue(t, s, newDelta("NEW", delta.KindNew))

	err := s.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		if err := uow.InsertStore(ctx, defaultProjection, masterRecord("NEW")); err != nil {
			return err
		}
		if _, err := uow.DeleteStore(ctx, "OLD"); err != nil {
			return err
		}
		if _, err := uow.ConsumeDeltas(ctx, []int64{qid}); err != nil {
			return err
		}
		return uow.RecordRun(ctx, RunRecord{
			RunID:      "run-1",
			StartedAt:  time.Unix(100, 0),
			FinishedAt: time.Unix(101, 0),
			Phase:      PhaseComplete,
		})
	})
	require.NoError(t, err)

	ids, err := Collect(s.StoreIDs(ctx))
	require.NoError(t, err)
	assert.Equal(t, []string{"NEW"}, ids)

	n, err := s.CountDeltas(ctx, delta.KindNew)
	require.NoError(t, err)
	assert.Zero(t, n)

	_, ok, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestWithinTx_RollsBackOnError(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustInsertStore(t, s, "OLD")
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		require.NoError(t, uow.InsertStore(ctx, defaultProjection, masterRecord("NEW")))
		_, err := uow.DeleteStore(ctx, "OLD")
		require.NoError(t, err)

		n, err := uow.CountStores(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
		return boom
	})
	require.ErrorIs(t, err, boom)

	ids, err := Collect(s.StoreIDs(ctx))
	require.NoError(t, err)
	assert.Equal(t, []string{"OLD"}, ids)

	_, ok, err := s.LastRun(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWithinTx_RollsBackOnPanic(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	assert.Panics(t, func() {
		_ = s.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
			_ = uow.InsertStore(ctx, defaultProjection, masterRecord("NEW"))
			panic("fault")
		})
	})

	n, err := s.CountStores(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestWithinTx_ReadsQueueInsideUnitOfWork(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustEnqueue(t, s, newDelta("GONE", delta.KindRemoved))

	var got []delta.DeltaRecord
	err := s.WithinTx(ctx, func(ctx context.Context, uow UnitOfWork) error {
		cols, err := uow.Columns(ctx, TableDeltas)
		if err != nil {
			return err
		}
		assert.Contains(t, cols, "store_id")

		got, err = Collect(uow.Deltas(ctx, delta.KindRemoved))
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "GONE", got[0].StoreID)
}

func TestWithinTx_BeginFailure(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.WithinTx(ctx, func(context.Context, UnitOfWork) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called)
}
