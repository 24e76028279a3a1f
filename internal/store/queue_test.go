package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/storesync/internal/delta"
)

func TestDeltas_FiltersByKindInObjectIDOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustEnqueue(t, s, newDelta("S3", delta.KindNew))
	mustEnqueue(t, s, newDelta("S1", delta.KindRemoved))
	mustEnqueue(t, s, newDelta("S2", delta.KindNew))

	news, err := Collect(s.Deltas(ctx, delta.KindNew))
	require.NoError(t, err)
	require.Len(t, news, 2)
	assert.Equal(t, "S3", news[0].StoreID)
	assert.Equal(t, "S2", news[1].StoreID)
	assert.Less(t, news[0].ObjectID, news[1].ObjectID)

	removed, err := Collect(s.Deltas(ctx, delta.KindRemoved))
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "S1", removed[0].StoreID)
}

func TestDeltas_MapsColumns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	id := mustEnqueue(t, s, newDelta("S1", delta.KindNew))

	recs, err := Collect(s.Deltas(ctx, delta.KindNew))
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	assert.Equal(t, id, rec.ObjectID)
	assert.Equal(t, delta.KindNew, rec.Kind)
	assert.Equal(t, "1 Main St", rec.Address.Street)
	assert.Equal(t, "Springfield", rec.Address.City)
	assert.Equal(t, "IL", rec.Address.Region)
	assert.Equal(t, "62701", rec.Address.PostalCode)
	assert.Equal(t, "retail", rec.SubChannel)
	assert.Equal(t, "open", rec.StoreStatus)
	assert.Equal(t, map[string]any{"store_name": "Store S1"}, rec.Attributes)
}

func TestDeltas_DoesNotMutateQueue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	mustEnqueue(t, s, newDelta("S1", delta.KindNew))

	for i := 0; i < 2; i++ {
		recs, err := Collect(s.Deltas(ctx, delta.KindNew))
		require.NoError(t, err)
		assert.Len(t, recs, 1)
	}

	n, err := s.CountDeltas(ctx, delta.KindNew)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeltas_EarlyBreakReleasesCursor(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"S1", "S2", "S3"} {
		mustEnqueue(t, s, newDelta(id, delta.KindNew))
	}

	for rec, err := range s.Deltas(ctx, delta.KindNew) {
		require.NoError(t, err)
		assert.Equal(t, "S1", rec.StoreID)
		break
	}

	// With a single pooled connection a leaked cursor would block here.
	n, err := s.CountDeltas(ctx, delta.KindNew)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestDeltas_Empty(t *testing.T) {
	s := createTestStore(t)

	recs, err := Collect(s.Deltas(context.Background(), delta.KindRemoved))
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestDeltas_QueryFailure(t *testing.T) {
	s := createTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Collect(s.Deltas(ctx, delta.KindNew))
	require.Error(t, err)
}

func TestEnqueueDelta_RejectsUnknownKind(t *testing.T) {
	s := createTestStore(t)

	_, err := s.EnqueueDelta(context.Background(), newDelta("S1", delta.ChangeKind("Updated")))
	require.Error(t, err)
}

func TestConsumeDeltas(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	a := mustEnqueue(t, s, newDelta("S1", delta.KindNew))
	b := mustEnqueue(t, s, newDelta("S2", delta.KindRemoved))
	mustEnqueue(t, s, newDelta("S3", delta.KindNew))

	n, err := s.ConsumeDeltas(ctx, []int64{a, b, 9999})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	recs, err := Collect(s.Deltas(ctx, delta.KindNew))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "S3", recs[0].StoreID)
}

func TestCollect_StopsAtFirstError(t *testing.T) {
	seq := func(yield func(int, error) bool) {
		if !yield(1, nil) {
			return
		}
		if !yield(0, assert.AnError) {
			return
		}
		yield(3, nil)
	}

	got, err := Collect(seq)
	require.ErrorIs(t, err, assert.AnError)
	assert.Nil(t, got)
}
